// Package paymenttest prepares a database with a product and a pending order
// for payment channel tests.
package paymenttest

import (
	"context"
	"testing"

	"github.com/flaboy/aira-checkout/pkg/database"
	"github.com/flaboy/aira-checkout/pkg/database/dbtest"
	"github.com/flaboy/aira-checkout/pkg/models"
	"github.com/flaboy/aira-checkout/pkg/orders"
	"gorm.io/gorm"
)

// Setup installs a fresh database as the process-wide handle and returns a
// pending order for a 49.90 USD product.
func Setup(t *testing.T) (*gorm.DB, *models.Order) {
	t.Helper()
	db := dbtest.New(t)
	database.Use(db)

	p := &models.Product{SellerID: 5, Name: "Course", Price: 4990, Currency: "USD", Active: true}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	order, err := orders.NewService(db).Create(context.Background(), p.ID, "buyer@example.com", "Buyer")
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return db, order
}
