// Package checkout records abandoned checkouts and resolves them when the
// customer completes an order.
package checkout

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/flaboy/aira-checkout/pkg/errors"
	"github.com/flaboy/aira-checkout/pkg/events"
	"github.com/flaboy/aira-checkout/pkg/hashid"
	"github.com/flaboy/aira-checkout/pkg/models"
	"github.com/flaboy/aira-checkout/pkg/types"
	"gorm.io/gorm"
)

const DefaultWindow = 30 * time.Minute

type AbandonInput struct {
	ProductID     uint   `json:"product_id"`
	CustomerEmail string `json:"customer_email"`
	CustomerName  string `json:"customer_name"`
	Amount        int64  `json:"amount"` // 为0时使用商品价格
	Currency      string `json:"currency"`
}

type Service struct {
	db     *gorm.DB
	window time.Duration
	now    func() time.Time
}

func NewService(db *gorm.DB, window time.Duration) *Service {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Service{
		db:     db,
		window: window,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// NormalizeEmail trims and lowercases an address, rejecting obvious garbage.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t\r\n") {
		return "", errors.ErrInvalidEmail
	}
	return email, nil
}

// RecordAbandoned upserts the abandoned purchase for (product, email). A row
// abandoned within the window is refreshed instead of duplicated.
func (s *Service) RecordAbandoned(ctx context.Context, in AbandonInput) (*models.AbandonedPurchase, error) {
	if in.ProductID == 0 {
		return nil, errors.ErrProductRequired
	}
	email, err := NormalizeEmail(in.CustomerEmail)
	if err != nil {
		return nil, err
	}
	if in.Amount < 0 {
		return nil, errors.ErrInvalidAmount
	}

	db := s.db.WithContext(ctx)

	var product models.Product
	if err := db.First(&product, in.ProductID).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrProductNotFound
		}
		return nil, err
	}

	var purchased int64
	err = db.Model(&models.Order{}).
		Where("product_id = ? AND customer_email = ? AND status = ?", product.ID, email, models.OrderStatusCompleted).
		Count(&purchased).Error
	if err != nil {
		return nil, err
	}
	if purchased > 0 {
		return nil, errors.ErrAlreadyPurchased
	}

	amount := in.Amount
	if amount == 0 {
		amount = product.Price
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = product.Currency
	}

	now := s.now()
	var existing models.AbandonedPurchase
	err = db.Where("product_id = ? AND customer_email = ? AND status = ? AND abandoned_at >= ?",
		product.ID, email, models.AbandonedStatusAbandoned, now.Add(-s.window)).
		Order("abandoned_at DESC").
		Limit(1).
		Find(&existing).Error
	if err != nil {
		return nil, err
	}

	if existing.ID != 0 {
		updates := map[string]interface{}{
			"amount":       amount,
			"currency":     currency,
			"abandoned_at": now,
		}
		if in.CustomerName != "" {
			updates["customer_name"] = in.CustomerName
		}
		if err := db.Model(&existing).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to refresh abandoned purchase %d: %w", existing.ID, err)
		}
		existing.Amount = amount
		existing.Currency = currency
		existing.AbandonedAt = now
		if in.CustomerName != "" {
			existing.CustomerName = in.CustomerName
		}
		slog.Info("[Checkout] Refreshed abandoned purchase", "id", existing.ID, "productID", product.ID)
		return &existing, nil
	}

	record := &models.AbandonedPurchase{
		ProductID:     product.ID,
		CustomerEmail: email,
		CustomerName:  in.CustomerName,
		Amount:        amount,
		Currency:      currency,
		Status:        models.AbandonedStatusAbandoned,
		AbandonedAt:   now,
	}
	if err := db.Create(record).Error; err != nil {
		return nil, fmt.Errorf("failed to create abandoned purchase: %w", err)
	}
	slog.Info("[Checkout] Recorded abandoned purchase", "id", record.ID, "productID", product.ID)

	events.Emit(ctx, &types.Event{
		Type:       types.EventPurchaseAbandoned,
		OwnerID:    product.SellerID,
		OccurredAt: now,
		Data: &types.PurchaseAbandonedEvent{
			AbandonedID:   record.ID,
			AbandonedRef:  hashid.Encode(hashid.TypeAbandoned, record.ID),
			ProductID:     record.ProductID,
			CustomerEmail: record.CustomerEmail,
			CustomerName:  record.CustomerName,
			Amount:        types.MinorToDecimal(record.Amount),
			Currency:      record.Currency,
			AbandonedAt:   record.AbandonedAt,
		},
	})
	return record, nil
}

// MarkRecovered resolves every open abandoned purchase for (product, email)
// and returns how many rows changed.
func (s *Service) MarkRecovered(ctx context.Context, productID uint, email string, orderID uint) (int, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return 0, err
	}

	db := s.db.WithContext(ctx)
	var open []models.AbandonedPurchase
	err = db.Where("product_id = ? AND customer_email = ? AND status = ?",
		productID, email, models.AbandonedStatusAbandoned).
		Find(&open).Error
	if err != nil {
		return 0, err
	}
	if len(open) == 0 {
		return 0, nil
	}

	var product models.Product
	if err := db.First(&product, productID).Error; err != nil && !stderrors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	recovered := 0
	for i := range open {
		a := &open[i]
		res := db.Model(&models.AbandonedPurchase{}).
			Where("id = ? AND status = ?", a.ID, models.AbandonedStatusAbandoned).
			Updates(map[string]interface{}{
				"status":             models.AbandonedStatusRecovered,
				"recovered_order_id": orderID,
			})
		if res.Error != nil {
			slog.Error("[Checkout] Failed to mark recovered", "id", a.ID, "error", res.Error)
			continue
		}
		if res.RowsAffected == 0 {
			continue
		}
		recovered++

		events.Emit(ctx, &types.Event{
			Type:    types.EventPurchaseRecovered,
			OwnerID: product.SellerID,
			Data: &types.PurchaseRecoveredEvent{
				AbandonedRef:     hashid.Encode(hashid.TypeAbandoned, a.ID),
				ProductID:        a.ProductID,
				CustomerEmail:    a.CustomerEmail,
				OrderRef:         hashid.Encode(hashid.TypeOrder, orderID),
				RecoveryAttempts: a.RecoveryAttemptsCount,
			},
		})
	}

	slog.Info("[Checkout] Marked abandoned purchases recovered", "productID", productID, "count", recovered)
	return recovered, nil
}

// HandleEvent resolves abandoned purchases when an order completes.
func (s *Service) HandleEvent(ctx context.Context, event *types.Event) error {
	if event.Type != types.EventOrderCompleted {
		return nil
	}
	data, ok := event.Data.(*types.OrderCompletedEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Data, event.Type)
	}
	_, err := s.MarkRecovered(ctx, data.ProductID, data.CustomerEmail, data.OrderID)
	return err
}

// Get loads one abandoned purchase.
func (s *Service) Get(ctx context.Context, id uint) (*models.AbandonedPurchase, error) {
	var a models.AbandonedPurchase
	if err := s.db.WithContext(ctx).First(&a, id).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrAbandonedNotFound
		}
		return nil, err
	}
	return &a, nil
}
