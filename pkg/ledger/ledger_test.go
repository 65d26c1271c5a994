package ledger

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/flaboy/aira-checkout/pkg/database/dbtest"
	"github.com/flaboy/aira-checkout/pkg/errors"
	"github.com/flaboy/aira-checkout/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCreditDebitBalance(t *testing.T) {
	db := dbtest.New(t)
	l := New(db)
	ctx := context.Background()

	orderID := uint(9)
	_, err := l.Credit(ctx, Entry{UserID: 1, Amount: 10000, Currency: "USD", Description: "sale", OrderID: &orderID})
	require.NoError(t, err)
	_, err = l.Credit(ctx, Entry{UserID: 1, Amount: 2550, Currency: "USD"})
	require.NoError(t, err)
	_, err = l.Debit(ctx, Entry{UserID: 1, Amount: 3000, Currency: "USD", Description: "withdrawal"})
	require.NoError(t, err)
	_, err = l.Credit(ctx, Entry{UserID: 1, Amount: 700, Currency: "EUR"})
	require.NoError(t, err)
	_, err = l.Credit(ctx, Entry{UserID: 2, Amount: 999, Currency: "USD"})
	require.NoError(t, err)

	bal, err := l.Balance(ctx, 1, "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(9550), bal)

	all, err := l.Balances(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"USD": 9550, "EUR": 700}, all)

	empty, err := l.Balance(ctx, 3, "USD")
	require.NoError(t, err)
	assert.Zero(t, empty)
}

func TestAppend_RejectsNonPositive(t *testing.T) {
	l := New(dbtest.New(t))
	_, err := l.Credit(context.Background(), Entry{UserID: 1, Amount: 0, Currency: "USD"})
	assert.True(t, stderrors.Is(err, errors.ErrInvalidAmount))

	_, err = l.Debit(context.Background(), Entry{UserID: 1, Amount: -5, Currency: "USD"})
	assert.True(t, stderrors.Is(err, errors.ErrInvalidAmount))
}

func TestList_NewestFirst(t *testing.T) {
	l := New(dbtest.New(t))
	ctx := context.Background()
	for _, amt := range []int64{100, 200, 300} {
		_, err := l.Credit(ctx, Entry{UserID: 4, Amount: amt, Currency: "USD"})
		require.NoError(t, err)
	}

	txs, err := l.List(ctx, 4, 2)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, int64(300), txs[0].Amount)
	assert.Equal(t, int64(200), txs[1].Amount)
}

func TestWithTx_RollsBack(t *testing.T) {
	db := dbtest.New(t)
	l := New(db)
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := l.WithTx(tx).Credit(ctx, Entry{UserID: 5, Amount: 100, Currency: "USD"}); err != nil {
			return err
		}
		return stderrors.New("abort")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.BalanceTransaction{}).Where("user_id = ?", 5).Count(&count).Error)
	assert.Zero(t, count)
}
