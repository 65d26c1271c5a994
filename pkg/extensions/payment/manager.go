package payment

import (
	"context"
	"log/slog"

	"github.com/flaboy/aira-checkout/pkg/errors"
	"github.com/flaboy/aira-checkout/pkg/extensions/payment/types"
	"github.com/flaboy/aira-checkout/pkg/extensions/payment/utils"
	"github.com/flaboy/aira-checkout/pkg/models"
)

// PaymentManager 支付管理器
type PaymentManager struct{}

// NewPaymentManager 创建支付管理器
func NewPaymentManager() *PaymentManager {
	return &PaymentManager{}
}

// CreatePayment 创建支付订单
func (pm *PaymentManager) CreatePayment(ctx context.Context, channel string, order *models.Order) (*types.CreatePaymentResult, error) {
	paymentChannel := Get(channel)
	if paymentChannel == nil {
		return nil, errors.Wrap(errors.ErrChannelNotFound, channel)
	}
	if order.Status != models.OrderStatusPending {
		return nil, errors.Wrap(errors.ErrOrderNotPending, string(order.Status))
	}

	slog.Info("[PaymentManager] Calling CreatePayment", "channel", channel, "orderID", order.ID, "amount", order.Amount)
	result, err := paymentChannel.CreatePayment(ctx, order)
	if err != nil {
		return nil, err
	}
	slog.Info("[PaymentManager] CreatePayment returned", "channel", channel, "payment", result.PaymentHashID, "status", result.Status)

	return result, nil
}

// GetPaymentRecord 根据HashID获取支付记录
func (pm *PaymentManager) GetPaymentRecord(ctx context.Context, paymentHashID string) (*models.PaymentRecord, error) {
	return utils.GetPaymentRecord(ctx, paymentHashID)
}

// GetPaymentRecordWithBusinessContext 获取支付记录并反序列化业务上下文
func (pm *PaymentManager) GetPaymentRecordWithBusinessContext(ctx context.Context, paymentHashID string) (*models.PaymentRecord, *types.BusinessContext, error) {
	record, err := pm.GetPaymentRecord(ctx, paymentHashID)
	if err != nil {
		return nil, nil, err
	}

	bc := &types.BusinessContext{}
	if record.BusinessContext != "" {
		if err := utils.DeserializeBusinessContext(record.BusinessContext, bc); err != nil {
			return nil, nil, err
		}
	}
	return record, bc, nil
}
