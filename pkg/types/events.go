package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventOrderCompleted    EventType = "order.completed"
	EventPurchaseAbandoned EventType = "purchase.abandoned"
	EventPurchaseRecovered EventType = "purchase.recovered"
	EventPurchaseExpired   EventType = "purchase.expired"
	EventPaymentReleased   EventType = "payment.released"
	EventWebhookTest       EventType = "webhook.test"
)

// Event is what the bus fans out. OwnerID selects the merchant whose webhook
// endpoints receive it.
type Event struct {
	Type       EventType
	OwnerID    uint
	OccurredAt time.Time
	Data       interface{}
}

type OrderCompletedEvent struct {
	OrderID       uint             `json:"-"`
	OrderRef      string           `json:"order_id"`
	ProductID     uint             `json:"product_id"`
	SellerID      uint             `json:"seller_id"`
	CustomerEmail string           `json:"customer_email"`
	CustomerName  string           `json:"customer_name"`
	Amount        *decimal.Decimal `json:"amount"`
	Currency      string           `json:"currency"`
	Channel       string           `json:"channel"`
	CompletedAt   time.Time        `json:"completed_at"`
}

type PurchaseAbandonedEvent struct {
	AbandonedID   uint             `json:"-"`
	AbandonedRef  string           `json:"abandoned_id"`
	ProductID     uint             `json:"product_id"`
	CustomerEmail string           `json:"customer_email"`
	CustomerName  string           `json:"customer_name"`
	Amount        *decimal.Decimal `json:"amount"`
	Currency      string           `json:"currency"`
	AbandonedAt   time.Time        `json:"abandoned_at"`
}

type PurchaseRecoveredEvent struct {
	AbandonedRef     string `json:"abandoned_id"`
	ProductID        uint   `json:"product_id"`
	CustomerEmail    string `json:"customer_email"`
	OrderRef         string `json:"order_id"`
	RecoveryAttempts int    `json:"recovery_attempts"`
}

type PurchaseExpiredEvent struct {
	AbandonedRef     string `json:"abandoned_id"`
	ProductID        uint   `json:"product_id"`
	CustomerEmail    string `json:"customer_email"`
	RecoveryAttempts int    `json:"recovery_attempts"`
}

type ReleaseShare struct {
	UserID uint             `json:"user_id"`
	Role   string           `json:"role"` // seller, coproducer
	Amount *decimal.Decimal `json:"amount"`
}

type PaymentReleasedEvent struct {
	OrderRef    string           `json:"order_id"`
	SellerID    uint             `json:"seller_id"`
	Amount      *decimal.Decimal `json:"amount"`
	Currency    string           `json:"currency"`
	ReleaseDate time.Time        `json:"release_date"`
	ReleasedAt  time.Time        `json:"released_at"`
	Shares      []ReleaseShare   `json:"shares"`
}

type WebhookTestEvent struct {
	Message string `json:"message"`
}

var dec100 = decimal.NewFromInt(100)

// MinorToDecimal converts cents into a decimal amount.
func MinorToDecimal(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v).Div(dec100)
	return &d
}
