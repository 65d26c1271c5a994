package models

import (
	"time"

	"github.com/flaboy/aira-checkout/pkg/database"
)

type BalanceTransactionType string

const (
	BalanceCredit BalanceTransactionType = "credit"
	BalanceDebit  BalanceTransactionType = "debit"
)

// BalanceTransaction rows are append-only.
type BalanceTransaction struct {
	ID          uint                   `gorm:"primaryKey"`
	UserID      uint                   `gorm:"index;not null"`
	Type        BalanceTransactionType `gorm:"size:10;not null"`
	Amount      int64                  `gorm:"not null"` // 金额（分），始终为正
	Currency    string                 `gorm:"size:10;not null"`
	Description string                 `gorm:"size:255"`
	OrderID     *uint                  `gorm:"index"`
	CreatedAt   time.Time
}

func (b *BalanceTransaction) TableName() string {
	return "ar_balance_transactions"
}

// PaymentRelease marks an order whose funds were moved to the seller balance.
type PaymentRelease struct {
	ID          uint      `gorm:"primaryKey"`
	OrderID     uint      `gorm:"uniqueIndex;not null"`
	SellerID    uint      `gorm:"index"`
	Amount      int64     `gorm:"not null"`
	Currency    string    `gorm:"size:10"`
	ReleaseDate time.Time // 可结算时间
	ReleasedAt  time.Time // 实际结算时间
	CreatedAt   time.Time
}

func (p *PaymentRelease) TableName() string {
	return "ar_payment_releases"
}

func init() {
	database.RegisterAutoMigrateModels(&BalanceTransaction{}, &PaymentRelease{})
}
