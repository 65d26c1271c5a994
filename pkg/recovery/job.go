// Package recovery emails customers who abandoned a checkout, up to a
// maximum number of attempts, then expires the purchase.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/flaboy/aira-checkout/pkg/config"
	"github.com/flaboy/aira-checkout/pkg/events"
	emailTypes "github.com/flaboy/aira-checkout/pkg/extensions/email/types"
	"github.com/flaboy/aira-checkout/pkg/hashid"
	"github.com/flaboy/aira-checkout/pkg/models"
	"github.com/flaboy/aira-checkout/pkg/scheduler"
	"github.com/flaboy/aira-checkout/pkg/types"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const (
	JobName             = "abandoned-recovery"
	DefaultDelay        = time.Hour
	DefaultInterval     = 24 * time.Hour
	DefaultMaxAttempts  = 3
	DefaultBatchSize    = 100
	DefaultCheckoutPath = "/checkout/{product_id}"
)

// Mailer delivers one rendered message.
type Mailer interface {
	Send(ctx context.Context, msg *emailTypes.Message) error
}

type Options struct {
	Delay        time.Duration
	Interval     time.Duration
	MaxAttempts  int
	BatchSize    int
	SendRate     float64 // 每秒发送上限，<=0不限速
	CheckoutPath string
	// 单条失败后的首次重试间隔，之后每次翻倍
	RetryBackoff time.Duration
}

// OptionsFromConfig maps the recovery config section.
func OptionsFromConfig(c config.RecoveryConfig) Options {
	return Options{
		Delay:        c.Delay,
		Interval:     c.Interval,
		MaxAttempts:  c.MaxAttempts,
		BatchSize:    c.BatchSize,
		SendRate:     c.SendRate,
		CheckoutPath: c.CheckoutPath,
		RetryBackoff: c.RetryBackoff,
	}
}

type Summary struct {
	Scanned int
	Sent    int
	Expired int
	Failed  int
}

type Job struct {
	db        *gorm.DB
	mailer    Mailer
	templates *Templates
	limiter   *rate.Limiter
	opts      Options
	now       func() time.Time
}

func NewJob(db *gorm.DB, mailer Mailer, templates *Templates, opts Options) *Job {
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.CheckoutPath == "" {
		opts.CheckoutPath = DefaultCheckoutPath
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = scheduler.DefaultRetryBackoff
	}
	if templates == nil {
		templates = DefaultTemplates()
	}

	limit := rate.Inf
	if opts.SendRate > 0 {
		limit = rate.Limit(opts.SendRate)
	}
	return &Job{
		db:        db,
		mailer:    mailer,
		templates: templates,
		limiter:   rate.NewLimiter(limit, 1),
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
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

// RunBatch processes one batch of due abandoned purchases.
func (j *Job) RunBatch(ctx context.Context) (*Summary, error) {
	now := j.now()
	summary := &Summary{}
	db := j.db.WithContext(ctx)

	var due []models.AbandonedPurchase
	err := db.
		Where("status = ? AND abandoned_at <= ?", models.AbandonedStatusAbandoned, now.Add(-j.opts.Delay)).
		Where("last_recovery_attempt_at IS NULL OR last_recovery_attempt_at <= ?", now.Add(-j.opts.Interval)).
		Where("recovery_retry_at IS NULL OR recovery_retry_at <= ?", now).
		Order("abandoned_at ASC, id ASC").
		Limit(j.opts.BatchSize).
		Find(&due).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load abandoned purchases: %w", err)
	}

	products, err := j.loadProducts(ctx, due)
	if err != nil {
		return nil, err
	}

	for i := range due {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		a := &due[i]
		summary.Scanned++

		if a.RecoveryAttemptsCount >= j.opts.MaxAttempts {
			expired, err := j.expire(ctx, a, now)
			if err != nil {
				summary.Failed++
				slog.Error("[Recovery] Failed to expire purchase", "abandonedID", a.ID, "error", err)
				j.markFailed(ctx, a, now)
			} else if expired {
				summary.Expired++
			}
			continue
		}

		product, ok := products[a.ProductID]
		if !ok {
			summary.Failed++
			slog.Error("[Recovery] Product missing for abandoned purchase", "abandonedID", a.ID, "productID", a.ProductID)
			j.markFailed(ctx, a, now)
			continue
		}

		if err := j.send(ctx, a, product, now); err != nil {
			summary.Failed++
			slog.Error("[Recovery] Failed to send recovery email", "abandonedID", a.ID, "attempt", a.RecoveryAttemptsCount+1, "error", err)
			j.markFailed(ctx, a, now)
			continue
		}
		summary.Sent++
	}

	slog.Info("[Recovery] Run finished",
		"scanned", summary.Scanned, "sent", summary.Sent,
		"expired", summary.Expired, "failed", summary.Failed)
	return summary, nil
}

func (j *Job) loadProducts(ctx context.Context, due []models.AbandonedPurchase) (map[uint]*models.Product, error) {
	ids := make([]uint, 0, len(due))
	for _, a := range due {
		ids = append(ids, a.ProductID)
	}
	out := make(map[uint]*models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var products []models.Product
	if err := j.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	for i := range products {
		out[products[i].ID] = &products[i]
	}
	return out, nil
}

func (j *Job) send(ctx context.Context, a *models.AbandonedPurchase, product *models.Product, now time.Time) error {
	attempt := a.RecoveryAttemptsCount + 1
	subject, body, err := j.templates.Render(TemplateData{
		ProductName:  product.Name,
		CustomerName: a.CustomerName,
		Amount:       types.MinorToDecimal(a.Amount).StringFixed(2),
		Currency:     a.Currency,
		CheckoutURL:  j.CheckoutURL(a),
		Attempt:      attempt,
	})
	if err != nil {
		return err
	}

	if err := j.limiter.Wait(ctx); err != nil {
		return err
	}

	msg := &emailTypes.Message{
		To:      a.CustomerEmail,
		ToName:  a.CustomerName,
		Subject: subject,
		HTML:    body,
		Tags: map[string]string{
			"kind":      "abandoned-recovery",
			"abandoned": hashid.Encode(hashid.TypeAbandoned, a.ID),
			"attempt":   strconv.Itoa(attempt),
		},
	}
	if err := j.mailer.Send(ctx, msg); err != nil {
		return err
	}

	// 只在仍为abandoned且计数未变时记账，避免和并发运行重复计数
	res := j.db.WithContext(ctx).Model(&models.AbandonedPurchase{}).
		Where("id = ? AND status = ? AND recovery_attempts_count = ?", a.ID, models.AbandonedStatusAbandoned, a.RecoveryAttemptsCount).
		Updates(map[string]interface{}{
			"recovery_attempts_count":  gorm.Expr("recovery_attempts_count + 1"),
			"last_recovery_attempt_at": now,
			"recovery_failures":        0,
			"recovery_retry_at":        nil,
		})
	if res.Error != nil {
		return fmt.Errorf("email sent but attempt not recorded: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		slog.Warn("[Recovery] Purchase changed while sending", "abandonedID", a.ID)
	}

	slog.Info("[Recovery] Sent recovery email", "abandonedID", a.ID, "attempt", attempt)
	return nil
}

// markFailed 推迟失败记录的下次重试，避免其长期占据批次头部
func (j *Job) markFailed(ctx context.Context, a *models.AbandonedPurchase, now time.Time) {
	failures := a.RecoveryFailures + 1
	retryAt := now.Add(scheduler.Backoff(j.opts.RetryBackoff, failures))
	err := j.db.WithContext(ctx).Model(&models.AbandonedPurchase{}).
		Where("id = ?", a.ID).
		Updates(map[string]interface{}{
			"recovery_failures": failures,
			"recovery_retry_at": retryAt,
		}).Error
	if err != nil {
		slog.Error("[Recovery] Failed to schedule retry", "abandonedID", a.ID, "error", err)
		return
	}
	slog.Warn("[Recovery] Retry scheduled", "abandonedID", a.ID, "failures", failures, "retryAt", retryAt)
}

func (j *Job) expire(ctx context.Context, a *models.AbandonedPurchase, now time.Time) (bool, error) {
	res := j.db.WithContext(ctx).Model(&models.AbandonedPurchase{}).
		Where("id = ? AND status = ?", a.ID, models.AbandonedStatusAbandoned).
		Updates(map[string]interface{}{
			"status":     models.AbandonedStatusExpired,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	var product models.Product
	ownerID := uint(0)
	if err := j.db.WithContext(ctx).Select("id", "seller_id").First(&product, a.ProductID).Error; err == nil {
		ownerID = product.SellerID
	}

	events.Emit(ctx, &types.Event{
		Type:       types.EventPurchaseExpired,
		OwnerID:    ownerID,
		OccurredAt: now,
		Data: &types.PurchaseExpiredEvent{
			AbandonedRef:     hashid.Encode(hashid.TypeAbandoned, a.ID),
			ProductID:        a.ProductID,
			CustomerEmail:    a.CustomerEmail,
			RecoveryAttempts: a.RecoveryAttemptsCount,
		},
	})
	slog.Info("[Recovery] Expired purchase", "abandonedID", a.ID, "attempts", a.RecoveryAttemptsCount)
	return true, nil
}

// CheckoutURL links back to the product checkout with the customer prefilled.
func (j *Job) CheckoutURL(a *models.AbandonedPurchase) string {
	path := strings.ReplaceAll(j.opts.CheckoutPath, "{product_id}", strconv.FormatUint(uint64(a.ProductID), 10))
	q := url.Values{}
	q.Set("email", a.CustomerEmail)
	q.Set("recover", hashid.Encode(hashid.TypeAbandoned, a.ID))
	return config.BuildURL(path) + "?" + q.Encode()
}
