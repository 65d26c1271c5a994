// Package release moves completed order funds into seller balances once the
// holding period has passed.
package release

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flaboy/aira-checkout/pkg/errors"
	"github.com/flaboy/aira-checkout/pkg/events"
	"github.com/flaboy/aira-checkout/pkg/hashid"
	"github.com/flaboy/aira-checkout/pkg/ledger"
	"github.com/flaboy/aira-checkout/pkg/models"
	"github.com/flaboy/aira-checkout/pkg/scheduler"
	"github.com/flaboy/aira-checkout/pkg/types"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	JobName             = "payment-release"
	DefaultBusinessDays = 3
	DefaultBatchSize    = 100
)

var errAlreadyReleased = stderrors.New("already released")

type Options struct {
	BusinessDays int
	BatchSize    int
	// 单笔结算失败后的首次重试间隔，之后每次翻倍
	RetryBackoff time.Duration
}

type Summary struct {
	Scanned  int
	Released int
	Pending  int
	Failed   int
}

type Job struct {
	db     *gorm.DB
	ledger *ledger.Ledger
	opts   Options
	now    func() time.Time
}

func NewJob(db *gorm.DB, opts Options) *Job {
	if opts.BusinessDays <= 0 {
		opts.BusinessDays = DefaultBusinessDays
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = scheduler.DefaultRetryBackoff
	}
	return &Job{
		db:     db,
		ledger: ledger.New(db),
		opts:   opts,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (j *Job) SetClock(now func() time.Time) {
	j.now = now
}

func (j *Job) Name() string {
	return JobName
}

func (j *Job) Run(ctx context.Context) error {
	_, err := j.RunBatch(ctx)
	return err
}

// ReleaseDate is when a completed order's funds become available.
func (j *Job) ReleaseDate(completedAt time.Time) time.Time {
	return AddBusinessDays(completedAt, j.opts.BusinessDays)
}

// RunBatch releases every due order in one pass. Per-order failures are
// logged and counted; only a failed candidate query aborts the run.
func (j *Job) RunBatch(ctx context.Context) (*Summary, error) {
	now := j.now()
	summary := &Summary{}

	// n个工作日至少是n个自然日，先用自然日粗筛
	cutoff := now.AddDate(0, 0, -j.opts.BusinessDays)

	var candidates []models.Order
	err := j.db.WithContext(ctx).
		Where("status = ? AND completed_at IS NOT NULL AND completed_at <= ?", models.OrderStatusCompleted, cutoff).
		Where("NOT EXISTS (SELECT 1 FROM ar_payment_releases pr WHERE pr.order_id = ar_orders.id)").
		Where("release_retry_at IS NULL OR release_retry_at <= ?", now).
		Order("completed_at ASC, id ASC").
		Limit(j.opts.BatchSize).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load release candidates: %w", err)
	}

	for i := range candidates {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		order := &candidates[i]
		summary.Scanned++

		releaseDate := j.ReleaseDate(*order.CompletedAt)
		if releaseDate.After(now) {
			summary.Pending++
			continue
		}

		ev, err := j.release(ctx, order, releaseDate, now)
		if err != nil {
			if stderrors.Is(err, errAlreadyReleased) {
				continue
			}
			summary.Failed++
			slog.Error("[Release] Failed to release order", "orderID", order.ID, "error", err)
			j.markFailed(ctx, order, now)
			continue
		}
		summary.Released++

		events.Emit(ctx, &types.Event{
			Type:       types.EventPaymentReleased,
			OwnerID:    order.SellerID,
			OccurredAt: now,
			Data:       ev,
		})
	}

	slog.Info("[Release] Run finished",
		"scanned", summary.Scanned, "released", summary.Released,
		"pending", summary.Pending, "failed", summary.Failed)
	return summary, nil
}

// markFailed 推迟失败订单的下次结算，避免其长期占据批次头部
func (j *Job) markFailed(ctx context.Context, order *models.Order, now time.Time) {
	failures := order.ReleaseFailures + 1
	retryAt := now.Add(scheduler.Backoff(j.opts.RetryBackoff, failures))
	err := j.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", order.ID).
		UpdateColumns(map[string]interface{}{
			"release_failures": failures,
			"release_retry_at": retryAt,
		}).Error
	if err != nil {
		slog.Error("[Release] Failed to schedule retry", "orderID", order.ID, "error", err)
		return
	}
	slog.Warn("[Release] Retry scheduled", "orderID", order.ID, "failures", failures, "retryAt", retryAt)
}

func (j *Job) release(ctx context.Context, order *models.Order, releaseDate, now time.Time) (*types.PaymentReleasedEvent, error) {
	var shares []types.ReleaseShare

	err := j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&models.PaymentRelease{}).Where("order_id = ?", order.ID).Count(&exists).Error; err != nil {
			return err
		}
		if exists > 0 {
			return errAlreadyReleased
		}

		var coproducers []models.ProductCoproducer
		if err := tx.Where("product_id = ?", order.ProductID).Order("id ASC").Find(&coproducers).Error; err != nil {
			return err
		}
		splits, err := Split(order.Amount, order.SellerID, coproducers)
		if err != nil {
			return err
		}

		rel := &models.PaymentRelease{
			OrderID:     order.ID,
			SellerID:    order.SellerID,
			Amount:      order.Amount,
			Currency:    order.Currency,
			ReleaseDate: releaseDate,
			ReleasedAt:  now,
		}
		if err := tx.Create(rel).Error; err != nil {
			return fmt.Errorf("failed to record release: %w", err)
		}

		l := j.ledger.WithTx(tx)
		orderRef := hashid.Encode(hashid.TypeOrder, order.ID)
		orderID := order.ID
		for _, sp := range splits {
			if sp.Amount == 0 {
				continue
			}
			_, err := l.Credit(ctx, ledger.Entry{
				UserID:      sp.UserID,
				Amount:      sp.Amount,
				Currency:    order.Currency,
				Description: fmt.Sprintf("Release of order %s (%s)", orderRef, sp.Role),
				OrderID:     &orderID,
			})
			if err != nil {
				return err
			}
			shares = append(shares, types.ReleaseShare{
				UserID: sp.UserID,
				Role:   sp.Role,
				Amount: types.MinorToDecimal(sp.Amount),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("[Release] Released order", "orderID", order.ID, "sellerID", order.SellerID, "amount", order.Amount)
	return &types.PaymentReleasedEvent{
		OrderRef:    hashid.Encode(hashid.TypeOrder, order.ID),
		SellerID:    order.SellerID,
		Amount:      types.MinorToDecimal(order.Amount),
		Currency:    order.Currency,
		ReleaseDate: releaseDate,
		ReleasedAt:  now,
		Shares:      shares,
	}, nil
}

const (
	RoleSeller     = "seller"
	RoleCoproducer = "coproducer"
)

type Share struct {
	UserID uint
	Role   string
	Amount int64
}

var dec100 = decimal.NewFromInt(100)

// Split divides amount between co-producers by commission percent, rounding
// each share down to the cent, and gives the remainder to the seller. The
// seller share comes first.
func Split(amount int64, sellerID uint, coproducers []models.ProductCoproducer) ([]Share, error) {
	total := decimal.Zero
	for _, c := range coproducers {
		if c.CommissionPercent.IsNegative() {
			return nil, errors.Wrap(errors.ErrCommissionOverflow, "negative commission")
		}
		total = total.Add(c.CommissionPercent)
	}
	if total.GreaterThan(dec100) {
		return nil, errors.Wrap(errors.ErrCommissionOverflow, total.String()+"%")
	}

	base := decimal.NewFromInt(amount)
	remainder := amount
	shares := make([]Share, 0, len(coproducers)+1)
	shares = append(shares, Share{UserID: sellerID, Role: RoleSeller})
	for _, c := range coproducers {
		part := base.Mul(c.CommissionPercent).Div(dec100).Floor().IntPart()
		remainder -= part
		shares = append(shares, Share{UserID: c.UserID, Role: RoleCoproducer, Amount: part})
	}
	shares[0].Amount = remainder
	return shares, nil
}
