// Package orders owns the order lifecycle from checkout to completion.
package orders

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/flaboy/aira-checkout/pkg/checkout"
	"github.com/flaboy/aira-checkout/pkg/errors"
	"github.com/flaboy/aira-checkout/pkg/events"
	"github.com/flaboy/aira-checkout/pkg/hashid"
	"github.com/flaboy/aira-checkout/pkg/models"
	"github.com/flaboy/aira-checkout/pkg/types"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Create opens a pending order priced from the product.
func (s *Service) Create(ctx context.Context, productID uint, email, name string) (*models.Order, error) {
	email, err := checkout.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	var product models.Product
	if err := db.First(&product, productID).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrProductNotFound
		}
		return nil, err
	}
	if !product.Active {
		return nil, errors.ErrProductInactive
	}

	order := &models.Order{
		ProductID:     product.ID,
		SellerID:      product.SellerID,
		CustomerEmail: email,
		CustomerName:  strings.TrimSpace(name),
		Amount:        product.Price,
		Currency:      product.Currency,
		Status:        models.OrderStatusPending,
	}
	if err := db.Create(order).Error; err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	slog.Info("[Orders] Created order", "orderID", order.ID, "productID", product.ID, "amount", order.Amount)
	return order, nil
}

func (s *Service) Get(ctx context.Context, orderID uint) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).First(&order, orderID).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// GetByRef loads an order by its public id.
func (s *Service) GetByRef(ctx context.Context, ref string) (*models.Order, error) {
	id, err := hashid.Decode(hashid.TypeOrder, ref)
	if err != nil {
		return nil, errors.ErrOrderInvalidID
	}
	return s.Get(ctx, id)
}

// Complete moves a pending order to completed. within runs in the same
// transaction, after the status change, so callers can settle their own rows
// atomically. Completing an already completed order is a no-op and emits
// nothing.
func (s *Service) Complete(ctx context.Context, orderID uint, channel string, within func(tx *gorm.DB) error) (*models.Order, error) {
	var (
		order   models.Order
		changed bool
	)
	now := s.now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", orderID, models.OrderStatusPending).
			Updates(map[string]interface{}{
				"status":          models.OrderStatusCompleted,
				"completed_at":    now,
				"payment_channel": channel,
			})
		if res.Error != nil {
			return res.Error
		}
		if err := tx.First(&order, orderID).Error; err != nil {
			if stderrors.Is(err, gorm.ErrRecordNotFound) {
				return errors.ErrOrderNotFound
			}
			return err
		}
		if res.RowsAffected == 0 {
			if order.Status == models.OrderStatusCompleted {
				return nil
			}
			return errors.Wrap(errors.ErrOrderNotPending, string(order.Status))
		}
		changed = true
		if within != nil {
			return within(tx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !changed {
		slog.Info("[Orders] Order already completed, skipping", "orderID", orderID)
		return &order, nil
	}

	slog.Info("[Orders] Completed order", "orderID", order.ID, "channel", channel, "amount", order.Amount)
	events.Emit(ctx, &types.Event{
		Type:       types.EventOrderCompleted,
		OwnerID:    order.SellerID,
		OccurredAt: now,
		Data:       CompletedEvent(&order),
	})
	return &order, nil
}

// CompletedEvent builds the payload published for a completed order.
func CompletedEvent(order *models.Order) *types.OrderCompletedEvent {
	ev := &types.OrderCompletedEvent{
		OrderID:       order.ID,
		OrderRef:      hashid.Encode(hashid.TypeOrder, order.ID),
		ProductID:     order.ProductID,
		SellerID:      order.SellerID,
		CustomerEmail: order.CustomerEmail,
		CustomerName:  order.CustomerName,
		Amount:        types.MinorToDecimal(order.Amount),
		Currency:      order.Currency,
		Channel:       order.PaymentChannel,
	}
	if order.CompletedAt != nil {
		ev.CompletedAt = *order.CompletedAt
	}
	return ev
}

// Fail marks a pending order failed.
func (s *Service) Fail(ctx context.Context, orderID uint) error {
	return s.transition(ctx, orderID, models.OrderStatusFailed)
}

// Cancel marks a pending order cancelled.
func (s *Service) Cancel(ctx context.Context, orderID uint) error {
	return s.transition(ctx, orderID, models.OrderStatusCancelled)
}

func (s *Service) transition(ctx context.Context, orderID uint, to models.OrderStatus) error {
	res := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, models.OrderStatusPending).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		order, err := s.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == to {
			return nil
		}
		return errors.Wrap(errors.ErrOrderNotPending, string(order.Status))
	}
	slog.Info("[Orders] Order status changed", "orderID", orderID, "status", to)
	return nil
}
