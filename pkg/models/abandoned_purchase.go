package models

import (
	"time"

	"github.com/flaboy/aira-checkout/pkg/database"
)

type AbandonedStatus string

const (
	AbandonedStatusAbandoned AbandonedStatus = "abandoned"
	AbandonedStatusRecovered AbandonedStatus = "recovered"
	AbandonedStatusExpired   AbandonedStatus = "expired"
)

// AbandonedPurchase is a checkout with customer data captured but no payment.
type AbandonedPurchase struct {
	ID                    uint            `gorm:"primaryKey"`
	ProductID             uint            `gorm:"index:idx_abandoned_product_email"`
	CustomerEmail         string          `gorm:"size:255;index:idx_abandoned_product_email"`
	CustomerName          string          `gorm:"size:255"`
	Amount                int64           `gorm:"not null"` // 金额（分）
	Currency              string          `gorm:"size:10;default:'USD'"`
	Status                AbandonedStatus `gorm:"size:20;index"`
	AbandonedAt           time.Time       `gorm:"index"`
	RecoveryAttemptsCount int             `gorm:"not null;default:0"`
	LastRecoveryAttemptAt *time.Time
	RecoveredOrderID      *uint
	CreatedAt             time.Time
	UpdatedAt             time.Time

	// 发送失败次数，成功后清零；RecoveryRetryAt之前不再选中
	RecoveryFailures int        `gorm:"not null;default:0"`
	RecoveryRetryAt  *time.Time `gorm:"index"`
}

func (a *AbandonedPurchase) TableName() string {
	return "ar_abandoned_purchases"
}

func init() {
	database.RegisterAutoMigrateModels(&AbandonedPurchase{})
}
