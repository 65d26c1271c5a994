package server

import (
	"time"

	paymentTypes "github.com/flaboy/aira-checkout/pkg/extensions/payment/types"
	"github.com/flaboy/aira-checkout/pkg/hashid"
	"github.com/flaboy/aira-checkout/pkg/models"
	"github.com/flaboy/aira-checkout/pkg/types"
	"github.com/shopspring/decimal"
)

type orderResponse struct {
	ID            string           `json:"id"`
	ProductID     string           `json:"product_id"`
	CustomerEmail string           `json:"customer_email"`
	CustomerName  string           `json:"customer_name"`
	Amount        *decimal.Decimal `json:"amount"`
	Currency      string           `json:"currency"`
	Status        string           `json:"status"`
	Channel       string           `json:"channel,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
}

func orderView(o *models.Order) orderResponse {
	return orderResponse{
		ID:            hashid.Encode(hashid.TypeOrder, o.ID),
		ProductID:     hashid.Encode(hashid.TypeProduct, o.ProductID),
		CustomerEmail: o.CustomerEmail,
		CustomerName:  o.CustomerName,
		Amount:        types.MinorToDecimal(o.Amount),
		Currency:      o.Currency,
		Status:        string(o.Status),
		Channel:       o.PaymentChannel,
		CreatedAt:     o.CreatedAt,
		CompletedAt:   o.CompletedAt,
	}
}

type paymentResponse struct {
	ID            string           `json:"id"`
	OrderID       string           `json:"order_id"`
	ProductID     string           `json:"product_id,omitempty"`
	CustomerEmail string           `json:"customer_email,omitempty"`
	Channel       string           `json:"channel"`
	Amount        *decimal.Decimal `json:"amount"`
	Currency      string           `json:"currency"`
	Status        string           `json:"status"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
}

func paymentView(p *models.PaymentRecord, bc *paymentTypes.BusinessContext) paymentResponse {
	out := paymentResponse{
		ID:            hashid.Encode(hashid.TypePayment, p.ID),
		OrderID:       bc.OrderRef,
		CustomerEmail: bc.CustomerEmail,
		Channel:       p.Channel,
		Amount:        types.MinorToDecimal(p.Amount),
		Currency:      p.Currency,
		Status:        string(p.Status),
		CompletedAt:   p.CompletedAt,
	}
	// 旧记录可能没有业务上下文
	if out.OrderID == "" {
		out.OrderID = hashid.Encode(hashid.TypeOrder, p.OrderID)
	}
	if bc.ProductID != 0 {
		out.ProductID = hashid.Encode(hashid.TypeProduct, bc.ProductID)
	}
	return out
}

type abandonedResponse struct {
	ID               string           `json:"id"`
	ProductID        string           `json:"product_id"`
	CustomerEmail    string           `json:"customer_email"`
	Amount           *decimal.Decimal `json:"amount"`
	Currency         string           `json:"currency"`
	Status           string           `json:"status"`
	AbandonedAt      time.Time        `json:"abandoned_at"`
	RecoveryAttempts int              `json:"recovery_attempts"`
}

func abandonedView(a *models.AbandonedPurchase) abandonedResponse {
	return abandonedResponse{
		ID:               hashid.Encode(hashid.TypeAbandoned, a.ID),
		ProductID:        hashid.Encode(hashid.TypeProduct, a.ProductID),
		CustomerEmail:    a.CustomerEmail,
		Amount:           types.MinorToDecimal(a.Amount),
		Currency:         a.Currency,
		Status:           string(a.Status),
		AbandonedAt:      a.AbandonedAt,
		RecoveryAttempts: a.RecoveryAttemptsCount,
	}
}

type transactionView struct {
	Type        string           `json:"type"`
	Amount      *decimal.Decimal `json:"amount"`
	Currency    string           `json:"currency"`
	Description string           `json:"description"`
	OrderID     string           `json:"order_id,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

func txView(tx *models.BalanceTransaction) transactionView {
	v := transactionView{
		Type:        string(tx.Type),
		Amount:      types.MinorToDecimal(tx.Amount),
		Currency:    tx.Currency,
		Description: tx.Description,
		CreatedAt:   tx.CreatedAt,
	}
	if tx.OrderID != nil {
		v.OrderID = hashid.Encode(hashid.TypeOrder, *tx.OrderID)
	}
	return v
}

type webhookLogResponse struct {
	DeliveryID     string    `json:"delivery_id"`
	EventType      string    `json:"event_type"`
	ResponseStatus int       `json:"response_status"`
	ResponseBody   string    `json:"response_body"`
	Success        bool      `json:"success"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func webhookLogView(l *models.WebhookLog) webhookLogResponse {
	return webhookLogResponse{
		DeliveryID:     l.DeliveryID,
		EventType:      l.EventType,
		ResponseStatus: l.ResponseStatus,
		ResponseBody:   l.ResponseBody,
		Success:        l.Success,
		Error:          l.Error,
		CreatedAt:      l.CreatedAt,
	}
}
