package recovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/flaboy/aira-checkout/pkg/database/dbtest"
	"github.com/flaboy/aira-checkout/pkg/events/eventstest"
	emailTypes "github.com/flaboy/aira-checkout/pkg/extensions/email/types"
	"github.com/flaboy/aira-checkout/pkg/models"
	"github.com/flaboy/aira-checkout/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeMailer struct {
	mu   sync.Mutex
	sent []*emailTypes.Message
	fail map[string]bool
}

func (m *fakeMailer) Send(ctx context.Context, msg *emailTypes.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[msg.To] {
		return errors.New("smtp down")
	}
	m.sent = append(m.sent, msg)
	return nil
}

func setup(t *testing.T) (*gorm.DB, *fakeMailer, *Job, *models.Product) {
	t.Helper()
	db := dbtest.New(t)
	p := &models.Product{SellerID: 9, Name: "Go Course", Price: 4990, Currency: "USD", Active: true}
	require.NoError(t, db.Create(p).Error)

	m := &fakeMailer{fail: map[string]bool{}}
	j := NewJob(db, m, nil, Options{Delay: time.Hour, Interval: 24 * time.Hour, MaxAttempts: 2, BatchSize: 10})
	j.SetClock(func() time.Time { return now })
	return db, m, j, p
}

func abandoned(t *testing.T, db *gorm.DB, productID uint, email string, at time.Time, attempts int, last *time.Time) *models.AbandonedPurchase {
	t.Helper()
	a := &models.AbandonedPurchase{
		ProductID:             productID,
		CustomerEmail:         email,
		CustomerName:          "Ana",
		Amount:                4990,
		Currency:              "USD",
		Status:                models.AbandonedStatusAbandoned,
		AbandonedAt:           at,
		RecoveryAttemptsCount: attempts,
		LastRecoveryAttemptAt: last,
	}
	require.NoError(t, db.Create(a).Error)
	return a
}

func reload(t *testing.T, db *gorm.DB, id uint) *models.AbandonedPurchase {
	t.Helper()
	var a models.AbandonedPurchase
	require.NoError(t, db.First(&a, id).Error)
	return &a
}

func TestRunBatch_SendsDue(t *testing.T) {
	db, m, j, p := setup(t)
	due := abandoned(t, db, p.ID, "due@example.com", now.Add(-2*time.Hour), 0, nil)
	abandoned(t, db, p.ID, "fresh@example.com", now.Add(-30*time.Minute), 0, nil)

	s, err := j.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Summary{Scanned: 1, Sent: 1}, s)

	require.Len(t, m.sent, 1)
	assert.Equal(t, "due@example.com", m.sent[0].To)
	assert.Equal(t, "You left Go Course behind", m.sent[0].Subject)
	assert.Contains(t, m.sent[0].HTML, "49.90 USD")
	assert.Equal(t, "1", m.sent[0].Tags["attempt"])

	got := reload(t, db, due.ID)
	assert.Equal(t, 1, got.RecoveryAttemptsCount)
	require.NotNil(t, got.LastRecoveryAttemptAt)
	assert.True(t, got.LastRecoveryAttemptAt.Equal(now))
}

func TestRunBatch_RespectsInterval(t *testing.T) {
	db, m, j, p := setup(t)
	recent := now.Add(-time.Hour)
	old := now.Add(-25 * time.Hour)
	abandoned(t, db, p.ID, "recent@example.com", now.Add(-48*time.Hour), 1, &recent)
	second := abandoned(t, db, p.ID, "old@example.com", now.Add(-48*time.Hour), 1, &old)

	s, err := j.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, s.Sent)
	require.Len(t, m.sent, 1)
	assert.Equal(t, "old@example.com", m.sent[0].To)
	assert.Equal(t, "Still thinking about Go Course?", m.sent[0].Subject)
	assert.Equal(t, 2, reload(t, db, second.ID).RecoveryAttemptsCount)
}

func TestRunBatch_ExpiresAfterMax(t *testing.T) {
	rec := eventstest.Install(t)
	db, m, j, p := setup(t)
	old := now.Add(-25 * time.Hour)
	a := abandoned(t, db, p.ID, "max@example.com", now.Add(-72*time.Hour), 2, &old)

	s, err := j.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Summary{Scanned: 1, Expired: 1}, s)
	assert.Empty(t, m.sent)
	assert.Equal(t, models.AbandonedStatusExpired, reload(t, db, a.ID).Status)

	evs := rec.OfType(types.EventPurchaseExpired)
	require.Len(t, evs, 1)
	assert.Equal(t, uint(9), evs[0].OwnerID)
	data := evs[0].Data.(*types.PurchaseExpiredEvent)
	assert.Equal(t, 2, data.RecoveryAttempts)
	assert.Equal(t, "max@example.com", data.CustomerEmail)

	// 再跑一次不会重复处理
	s, err = j.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, s.Scanned)
}

func TestRunBatch_SendFailureLeavesRow(t *testing.T) {
	db, m, j, p := setup(t)
	m.fail["broken@example.com"] = true
	bad := abandoned(t, db, p.ID, "broken@example.com", now.Add(-2*time.Hour), 0, nil)
	good := abandoned(t, db, p.ID, "ok@example.com", now.Add(-2*time.Hour), 0, nil)

	s, err := j.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Summary{Scanned: 2, Sent: 1, Failed: 1}, s)

	got := reload(t, db, bad.ID)
	assert.Equal(t, 0, got.RecoveryAttemptsCount)
	assert.Nil(t, got.LastRecoveryAttemptAt)
	assert.Equal(t, 1, reload(t, db, good.ID).RecoveryAttemptsCount)
}

func TestRunBatch_FailingRowsDoNotBlockQueue(t *testing.T) {
	db, m, j, p := setup(t)
	j.opts.BatchSize = 2
	m.fail["bounce1@example.com"] = true
	m.fail["bounce2@example.com"] = true
	bad1 := abandoned(t, db, p.ID, "bounce1@example.com", now.Add(-5*time.Hour), 0, nil)
	bad2 := abandoned(t, db, p.ID, "bounce2@example.com", now.Add(-4*time.Hour), 0, nil)
	good := abandoned(t, db, p.ID, "ok@example.com", now.Add(-2*time.Hour), 0, nil)

	s, err := j.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Summary{Scanned: 2, Failed: 2}, s)

	got := reload(t, db, bad1.ID)
	assert.Equal(t, 1, got.RecoveryFailures)
	require.NotNil(t, got.RecoveryRetryAt)
	assert.True(t, got.RecoveryRetryAt.Equal(now.Add(15*time.Minute)))

	// 失败记录在重试时间前不再占用批次
	s, err = j.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Summary{Scanned: 1, Sent: 1}, s)
	assert.Equal(t, 1, reload(t, db, good.ID).RecoveryAttemptsCount)

	// 到期后重试，间隔翻倍
	later := now.Add(15 * time.Minute)
	j.SetClock(func() time.Time { return later })
	delete(m.fail, "bounce2@example.com")

	s, err = j.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Summary{Scanned: 2, Sent: 1, Failed: 1}, s)

	got = reload(t, db, bad1.ID)
	assert.Equal(t, 2, got.RecoveryFailures)
	assert.True(t, got.RecoveryRetryAt.Equal(later.Add(30*time.Minute)))

	recovered := reload(t, db, bad2.ID)
	assert.Equal(t, 1, recovered.RecoveryAttemptsCount)
	assert.Zero(t, recovered.RecoveryFailures)
	assert.Nil(t, recovered.RecoveryRetryAt)
}

func TestRunBatch_MissingProductBacksOff(t *testing.T) {
	db, m, j, p := setup(t)
	j.opts.BatchSize = 1
	orphan := abandoned(t, db, p.ID+100, "orphan@example.com", now.Add(-3*time.Hour), 0, nil)
	abandoned(t, db, p.ID, "ok@example.com", now.Add(-2*time.Hour), 0, nil)

	s, err := j.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, reload(t, db, orphan.ID).RecoveryFailures)

	s, err = j.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, s.Sent)
	require.Len(t, m.sent, 1)
	assert.Equal(t, "ok@example.com", m.sent[0].To)
}

func TestRunBatch_SkipsResolved(t *testing.T) {
	db, m, j, p := setup(t)
	a := abandoned(t, db, p.ID, "done@example.com", now.Add(-2*time.Hour), 0, nil)
	require.NoError(t, db.Model(a).Update("status", models.AbandonedStatusRecovered).Error)

	s, err := j.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, s.Scanned)
	assert.Empty(t, m.sent)
}

func TestRunBatch_BatchSize(t *testing.T) {
	db, m, j, p := setup(t)
	j.opts.BatchSize = 2
	for _, e := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		abandoned(t, db, p.ID, e, now.Add(-2*time.Hour), 0, nil)
	}

	s, err := j.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, s.Sent)

	s, err = j.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, s.Sent)
	assert.Len(t, m.sent, 3)
}

func TestCheckoutURL(t *testing.T) {
	_, _, j, p := setup(t)
	a := &models.AbandonedPurchase{ID: 3, ProductID: p.ID, CustomerEmail: "a+b@example.com"}
	u := j.CheckoutURL(a)
	assert.Contains(t, u, "/checkout/1?")
	assert.Contains(t, u, "email=a%2Bb%40example.com")
	assert.Contains(t, u, "recover=ab-")
}
