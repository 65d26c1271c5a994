package utils

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/flaboy/aira-checkout/pkg/database"
	"github.com/flaboy/aira-checkout/pkg/errors"
	"github.com/flaboy/aira-checkout/pkg/extensions/payment/types"
	"github.com/flaboy/aira-checkout/pkg/hashid"
	"github.com/flaboy/aira-checkout/pkg/models"
	"github.com/flaboy/aira-checkout/pkg/orders"
	"gorm.io/gorm"
)

// DecodePaymentHashID 解码支付HashID获取数据库ID
func DecodePaymentHashID(hashID string) (uint, error) {
	id, err := hashid.Decode(hashid.TypePayment, hashID)
	if err != nil {
		return 0, errors.ErrPaymentInvalidID
	}
	return id, nil
}

// EncodePaymentID 编码数据库ID为HashID
func EncodePaymentID(id uint) string {
	return hashid.Encode(hashid.TypePayment, id)
}

// SerializeBusinessContext 序列化业务上下文为JSON字符串
func SerializeBusinessContext(ctx interface{}) (string, error) {
	data, err := json.Marshal(ctx)
	return string(data), err
}

// DeserializeBusinessContext 反序列化JSON字符串为业务上下文
func DeserializeBusinessContext(data string, target interface{}) error {
	return json.Unmarshal([]byte(data), target)
}

// FormatAmount renders cents the way gateway APIs expect, e.g. "49.90".
func FormatAmount(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
}

// NewPaymentRecord stores a record for order on channel.
func NewPaymentRecord(ctx context.Context, channel string, order *models.Order, status models.PaymentStatus) (*models.PaymentRecord, error) {
	bc, err := SerializeBusinessContext(types.BusinessContext{
		OrderRef:      hashid.Encode(hashid.TypeOrder, order.ID),
		ProductID:     order.ProductID,
		CustomerEmail: order.CustomerEmail,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize business context: %w", err)
	}

	record := &models.PaymentRecord{
		OrderID:         order.ID,
		Channel:         channel,
		Amount:          order.Amount,
		Currency:        strings.ToUpper(order.Currency),
		Status:          status,
		BusinessContext: bc,
	}
	if err := database.Database().WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("failed to create payment record: %w", err)
	}
	return record, nil
}

// GetPaymentRecord loads a record by its public id.
func GetPaymentRecord(ctx context.Context, paymentHashID string) (*models.PaymentRecord, error) {
	paymentID, err := DecodePaymentHashID(paymentHashID)
	if err != nil {
		return nil, err
	}
	var record models.PaymentRecord
	if err := database.Database().WithContext(ctx).First(&record, paymentID).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrPaymentNotFound
		}
		return nil, err
	}
	return &record, nil
}

// UpdatePaymentStatus 更新支付状态，已完成的记录不会被覆盖
func UpdatePaymentStatus(ctx context.Context, paymentID uint, status models.PaymentStatus) error {
	err := database.Database().WithContext(ctx).Model(&models.PaymentRecord{}).
		Where("id = ? AND status <> ?", paymentID, models.PaymentStatusCompleted).
		Update("status", status).Error
	if err != nil {
		return err
	}
	slog.Info("[Payment] Updated payment status", "paymentID", paymentID, "status", status)
	return nil
}

// CompletePayment settles a payment. The record and its order are completed
// in one transaction and order.completed is emitted after commit. Repeated
// calls are no-ops. When another payment already settled the order, the
// record is marked duplicate and ErrPaymentDuplicate is returned.
func CompletePayment(ctx context.Context, record *models.PaymentRecord) (*models.Order, error) {
	slog.Info("[Payment] Completing payment", "paymentID", record.ID, "orderID", record.OrderID, "channel", record.Channel, "amount", record.Amount)

	db := database.Database()
	svc := orders.NewService(db)
	current, err := svc.Get(ctx, record.OrderID)
	if err != nil {
		return nil, err
	}
	if current.Amount != record.Amount || !strings.EqualFold(current.Currency, record.Currency) {
		return nil, errors.Wrap(errors.ErrCurrencyMismatch,
			fmt.Sprintf("payment %s %s, order %s %s", FormatAmount(record.Amount), record.Currency, FormatAmount(current.Amount), current.Currency))
	}

	now := time.Now().UTC()
	applied := false
	order, err := svc.Complete(ctx, record.OrderID, record.Channel, func(tx *gorm.DB) error {
		applied = true
		return tx.Model(&models.PaymentRecord{}).
			Where("id = ? AND status <> ?", record.ID, models.PaymentStatusCompleted).
			Updates(map[string]interface{}{
				"status":       models.PaymentStatusCompleted,
				"completed_at": now,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	if applied {
		record.Status = models.PaymentStatusCompleted
		record.CompletedAt = &now
		return order, nil
	}

	// 订单此前已完成：同一笔支付重复回调直接返回
	var stored models.PaymentRecord
	if err := db.WithContext(ctx).First(&stored, record.ID).Error; err != nil {
		return nil, err
	}
	*record = stored
	switch stored.Status {
	case models.PaymentStatusCompleted:
		return order, nil
	case models.PaymentStatusDuplicate:
		return order, errors.Wrap(errors.ErrPaymentDuplicate, EncodePaymentID(record.ID))
	}

	err = db.WithContext(ctx).Model(&models.PaymentRecord{}).
		Where("id = ? AND status NOT IN ?", record.ID, []models.PaymentStatus{models.PaymentStatusCompleted, models.PaymentStatusDuplicate}).
		Updates(map[string]interface{}{
			"status":       models.PaymentStatusDuplicate,
			"completed_at": now,
		}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to flag duplicate payment: %w", err)
	}
	record.Status = models.PaymentStatusDuplicate
	record.CompletedAt = &now

	slog.Error("[Payment] Order already settled by another payment, refund required",
		"paymentID", record.ID, "orderID", record.OrderID, "channel", record.Channel,
		"amount", record.Amount, "currency", record.Currency)
	return order, errors.Wrap(errors.ErrPaymentDuplicate, EncodePaymentID(record.ID))
}
