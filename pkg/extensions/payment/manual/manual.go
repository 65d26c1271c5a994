// Package manual is a payment channel settled by an operator, for bank
// transfers and testing.
package manual

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/flaboy/aira-checkout/pkg/errors"
	"github.com/flaboy/aira-checkout/pkg/extensions/payment/types"
	"github.com/flaboy/aira-checkout/pkg/extensions/payment/utils"
	"github.com/flaboy/aira-checkout/pkg/hashid"
	"github.com/flaboy/aira-checkout/pkg/models"
	"github.com/gin-gonic/gin"
)

const (
	ChannelName  = "manual"
	SecretHeader = "X-Confirm-Secret"
)

type Manual struct {
	secret string
}

func New(secret string) *Manual {
	return &Manual{secret: secret}
}

func (m *Manual) Init() error {
	if m.secret == "" {
		slog.Warn("[Manual] No confirmation secret configured, confirmations will be rejected")
	}
	return nil
}

func (m *Manual) GetChannelName() string {
	return ChannelName
}

func (m *Manual) CreatePayment(ctx context.Context, order *models.Order) (*types.CreatePaymentResult, error) {
	record, err := utils.NewPaymentRecord(ctx, ChannelName, order, models.PaymentStatusCreated)
	if err != nil {
		return nil, err
	}
	paymentHashID := utils.EncodePaymentID(record.ID)

	return &types.CreatePaymentResult{
		PaymentHashID: paymentHashID,
		OrderRef:      hashid.Encode(hashid.TypeOrder, order.ID),
		Amount:        record.Amount,
		Currency:      record.Currency,
		Status:        string(record.Status),
		ClientArgs: map[string]interface{}{
			"manual": map[string]interface{}{
				"payment_hash_id": paymentHashID,
				"amount":          utils.FormatAmount(record.Amount),
				"currency":        record.Currency,
			},
		},
		Message: "Awaiting manual confirmation",
	}, nil
}

// Confirm completes the payment when secret matches the configured one.
func (m *Manual) Confirm(ctx context.Context, paymentHashID, secret string) (*models.Order, error) {
	if m.secret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(m.secret)) != 1 {
		return nil, errors.ErrInvalidConfirmSecret
	}
	record, err := utils.GetPaymentRecord(ctx, paymentHashID)
	if err != nil {
		return nil, err
	}
	if record.Channel != ChannelName {
		return nil, errors.Wrap(errors.ErrPaymentNotFound, "not a manual payment")
	}
	return utils.CompletePayment(ctx, record)
}

// HandleRequest serves POST confirm/{payment_hash_id}.
func (m *Manual) HandleRequest(c *gin.Context, path string) error {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] != "confirm" {
		c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
		return nil
	}
	if c.Request.Method != http.MethodPost {
		c.JSON(http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
		return nil
	}

	order, err := m.Confirm(c.Request.Context(), parts[1], c.GetHeader(SecretHeader))
	if err != nil {
		return err
	}

	c.JSON(http.StatusOK, &types.PaymentCallbackResult{
		Success:       true,
		PaymentHashID: parts[1],
		OrderRef:      hashid.Encode(hashid.TypeOrder, order.ID),
		Status:        string(models.PaymentStatusCompleted),
		Message:       "Payment confirmed",
	})
	return nil
}
