package models

import (
	"time"

	"github.com/flaboy/aira-checkout/pkg/database"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCreated   PaymentStatus = "created"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	// 订单已由另一笔支付结清，本笔款项需退还
	PaymentStatusDuplicate PaymentStatus = "duplicate"
)

type PaymentRecord struct {
	ID              uint          `gorm:"primaryKey"`
	OrderID         uint          `gorm:"index"`
	ExternalOrderID string        `gorm:"size:100;index"` // 外部支付系统订单ID
	Channel         string        `gorm:"size:50"`        // 支付渠道：paypal, manual
	Amount          int64         `gorm:"not null"`       // 金额（分）
	Currency        string        `gorm:"size:10;default:'USD'"`
	Status          PaymentStatus `gorm:"size:20"`

	// 业务上下文 - 由调用方提供，支付渠道只负责存储和传递
	BusinessContext string `gorm:"type:text"`

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

func (p *PaymentRecord) TableName() string {
	return "ar_payments"
}

func init() {
	database.RegisterAutoMigrateModels(&PaymentRecord{})
}
