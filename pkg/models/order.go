package models

import (
	"time"

	"github.com/flaboy/aira-checkout/pkg/database"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusFailed    OrderStatus = "failed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRefunded  OrderStatus = "refunded"
)

type Order struct {
	ID             uint        `gorm:"primaryKey"`
	ProductID      uint        `gorm:"index"`
	SellerID       uint        `gorm:"index"`
	CustomerEmail  string      `gorm:"size:255;index"`
	CustomerName   string      `gorm:"size:255"`
	Amount         int64       `gorm:"not null"` // 金额（分）
	Currency       string      `gorm:"size:10;default:'USD'"`
	Status         OrderStatus `gorm:"size:20;index"`
	PaymentChannel string      `gorm:"size:50"`
	CompletedAt    *time.Time  `gorm:"index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// 结算失败后的重试时间，之前不再进入结算批次
	ReleaseFailures int        `gorm:"not null;default:0"`
	ReleaseRetryAt  *time.Time `gorm:"index"`
}

func (o *Order) TableName() string {
	return "ar_orders"
}

func init() {
	database.RegisterAutoMigrateModels(&Order{})
}
