package models

import (
	"time"

	"github.com/flaboy/aira-checkout/pkg/database"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID        uint   `gorm:"primaryKey"`
	SellerID  uint   `gorm:"index"`
	Name      string `gorm:"size:255"`
	Price     int64  `gorm:"not null"` // 金额（分）
	Currency  string `gorm:"size:10;default:'USD'"`
	Active    bool   `gorm:"default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Coproducers []ProductCoproducer `gorm:"foreignKey:ProductID"`
}

func (p *Product) TableName() string {
	return "ar_products"
}

// ProductCoproducer is a revenue-share participant credited on release.
type ProductCoproducer struct {
	ID                uint            `gorm:"primaryKey"`
	ProductID         uint            `gorm:"index;not null"`
	UserID            uint            `gorm:"index;not null"`
	CommissionPercent decimal.Decimal `gorm:"type:decimal(5,2);not null"`
	CreatedAt         time.Time
}

func (c *ProductCoproducer) TableName() string {
	return "ar_product_coproducers"
}

func init() {
	database.RegisterAutoMigrateModels(&Product{}, &ProductCoproducer{})
}
