// Package ledger appends balance transactions and sums them into balances.
package ledger

import (
	"context"
	"fmt"

	"github.com/flaboy/aira-checkout/pkg/errors"
	"github.com/flaboy/aira-checkout/pkg/models"
	"gorm.io/gorm"
)

type Entry struct {
	UserID      uint
	Amount      int64 // 金额（分），必须为正
	Currency    string
	Description string
	OrderID     *uint
}

type Ledger struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// WithTx returns a ledger bound to an open transaction.
func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	return &Ledger{db: tx}
}

func (l *Ledger) Credit(ctx context.Context, e Entry) (*models.BalanceTransaction, error) {
	return l.append(ctx, models.BalanceCredit, e)
}

func (l *Ledger) Debit(ctx context.Context, e Entry) (*models.BalanceTransaction, error) {
	return l.append(ctx, models.BalanceDebit, e)
}

func (l *Ledger) append(ctx context.Context, typ models.BalanceTransactionType, e Entry) (*models.BalanceTransaction, error) {
	if e.Amount <= 0 {
		return nil, errors.ErrInvalidAmount
	}
	if e.UserID == 0 || e.Currency == "" {
		return nil, fmt.Errorf("ledger entry needs user and currency")
	}

	tx := &models.BalanceTransaction{
		UserID:      e.UserID,
		Type:        typ,
		Amount:      e.Amount,
		Currency:    e.Currency,
		Description: e.Description,
		OrderID:     e.OrderID,
	}
	if err := l.db.WithContext(ctx).Create(tx).Error; err != nil {
		return nil, fmt.Errorf("failed to append %s for user %d: %w", typ, e.UserID, err)
	}
	return tx, nil
}

// Balance returns credits minus debits for one currency, in cents.
func (l *Ledger) Balance(ctx context.Context, userID uint, currency string) (int64, error) {
	var row struct {
		Credits int64
		Debits  int64
	}
	err := l.db.WithContext(ctx).Model(&models.BalanceTransaction{}).
		Select("COALESCE(SUM(CASE WHEN type = ? THEN amount ELSE 0 END), 0) AS credits, "+
			"COALESCE(SUM(CASE WHEN type = ? THEN amount ELSE 0 END), 0) AS debits",
			models.BalanceCredit, models.BalanceDebit).
		Where("user_id = ? AND currency = ?", userID, currency).
		Scan(&row).Error
	if err != nil {
		return 0, err
	}
	return row.Credits - row.Debits, nil
}

// Balances returns the balance per currency for a user.
func (l *Ledger) Balances(ctx context.Context, userID uint) (map[string]int64, error) {
	var rows []struct {
		Currency string
		Type     models.BalanceTransactionType
		Total    int64
	}
	err := l.db.WithContext(ctx).Model(&models.BalanceTransaction{}).
		Select("currency, type, COALESCE(SUM(amount), 0) AS total").
		Where("user_id = ?", userID).
		Group("currency, type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[string]int64)
	for _, r := range rows {
		if r.Type == models.BalanceDebit {
			out[r.Currency] -= r.Total
		} else {
			out[r.Currency] += r.Total
		}
	}
	return out, nil
}

// List returns the newest transactions first. limit <= 0 means no limit.
func (l *Ledger) List(ctx context.Context, userID uint, limit int) ([]models.BalanceTransaction, error) {
	q := l.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var txs []models.BalanceTransaction
	if err := q.Find(&txs).Error; err != nil {
		return nil, err
	}
	return txs, nil
}
