// Package webhook posts signed event payloads to merchant endpoints and keeps
// an audit log of every attempt.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/flaboy/aira-checkout/pkg/config"
	"github.com/flaboy/aira-checkout/pkg/errors"
	"github.com/flaboy/aira-checkout/pkg/hashid"
	"github.com/flaboy/aira-checkout/pkg/models"
	"github.com/flaboy/aira-checkout/pkg/types"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"
)

const (
	DefaultTimeout = 10 * time.Second
	DefaultVersion = "1.0"

	// 日志中响应体最多保留4KiB
	maxResponseBody = 4096
)

type Options struct {
	Timeout time.Duration
	Version string
	Async   bool
}

func OptionsFromConfig(c config.WebhookConfig) Options {
	return Options{Timeout: c.Timeout, Version: c.Version, Async: c.Async}
}

// Payload is the JSON body posted to endpoints.
type Payload struct {
	Event     types.EventType `json:"event"`
	Timestamp string          `json:"timestamp"`
	Data      interface{}     `json:"data"`
	WebhookID string          `json:"webhook_id"`
	Version   string          `json:"version"`
}

type Dispatcher struct {
	db     *gorm.DB
	opts   Options
	client *fasthttp.Client
	wg     sync.WaitGroup
}

func NewDispatcher(db *gorm.DB, opts Options) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Version == "" {
		opts.Version = DefaultVersion
	}
	return &Dispatcher{
		db:   db,
		opts: opts,
		client: &fasthttp.Client{
			Name:                "aira-checkout-webhook",
			MaxIdleConnDuration: 90 * time.Second,
		},
	}
}

// HandleEvent lets the dispatcher subscribe to the event bus.
func (d *Dispatcher) HandleEvent(ctx context.Context, event *types.Event) error {
	return d.Dispatch(ctx, event)
}

// Dispatch delivers event to every active endpoint of its owner that
// subscribes to the event type. Delivery failures are only logged.
func (d *Dispatcher) Dispatch(ctx context.Context, event *types.Event) error {
	if event.OwnerID == 0 {
		return nil
	}

	var endpoints []models.WebhookEndpoint
	err := d.db.WithContext(ctx).
		Where("user_id = ? AND active = ?", event.OwnerID, true).
		Order("id ASC").
		Find(&endpoints).Error
	if err != nil {
		return fmt.Errorf("failed to load webhook endpoints: %w", err)
	}

	for i := range endpoints {
		ep := endpoints[i]
		if !ep.Subscribed(string(event.Type)) {
			continue
		}
		if d.opts.Async {
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				// 请求结束后仍需完成投递
				d.deliver(context.WithoutCancel(ctx), &ep, event)
			}()
			continue
		}
		d.deliver(ctx, &ep, event)
	}
	return nil
}

// Wait blocks until in-flight async deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Test sends a webhook.test event to one endpoint and returns the log row.
func (d *Dispatcher) Test(ctx context.Context, endpointID uint) (*models.WebhookLog, error) {
	var ep models.WebhookEndpoint
	if err := d.db.WithContext(ctx).First(&ep, endpointID).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrWebhookNotFound
		}
		return nil, err
	}
	if !ep.Active {
		return nil, errors.ErrWebhookInactive
	}

	event := &types.Event{
		Type:       types.EventWebhookTest,
		OwnerID:    ep.UserID,
		OccurredAt: time.Now().UTC(),
		Data:       &types.WebhookTestEvent{Message: "This is a test webhook"},
	}
	return d.deliver(ctx, &ep, event), nil
}

// Logs lists the newest delivery attempts for an endpoint.
func (d *Dispatcher) Logs(ctx context.Context, endpointID uint, limit int) ([]models.WebhookLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var count int64
	if err := d.db.WithContext(ctx).Model(&models.WebhookEndpoint{}).Where("id = ?", endpointID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, errors.ErrWebhookNotFound
	}

	var logs []models.WebhookLog
	err := d.db.WithContext(ctx).
		Where("webhook_id = ?", endpointID).
		Order("id DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// Sign returns the X-Webhook-Signature value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (d *Dispatcher) deliver(ctx context.Context, ep *models.WebhookEndpoint, event *types.Event) *models.WebhookLog {
	deliveryID := uuid.NewString()
	entry := &models.WebhookLog{
		WebhookID:  ep.ID,
		DeliveryID: deliveryID,
		EventType:  string(event.Type),
	}

	body, err := json.Marshal(Payload{
		Event:     event.Type,
		Timestamp: event.OccurredAt.UTC().Format(time.RFC3339),
		Data:      event.Data,
		WebhookID: hashid.Encode(hashid.TypeWebhook, ep.ID),
		Version:   d.opts.Version,
	})
	if err != nil {
		entry.Error = truncate("marshal payload: "+err.Error(), 500)
		d.saveLog(ctx, entry)
		return entry
	}
	entry.Payload = string(body)

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(ep.URL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("X-Webhook-Event", string(event.Type))
	req.Header.Set("X-Webhook-Delivery", deliveryID)
	if ep.Secret != "" {
		req.Header.Set("X-Webhook-Secret", ep.Secret)
		req.Header.Set("Authorization", "Bearer "+ep.Secret)
		req.Header.Set("X-Webhook-Signature", Sign(ep.Secret, body))
	}
	req.SetBody(body)

	timeout := d.opts.Timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}

	if err := d.client.DoTimeout(req, resp, timeout); err != nil {
		entry.Error = truncate(err.Error(), 500)
		slog.Warn("[Webhook] Delivery failed", "webhookID", ep.ID, "event", event.Type, "error", err)
	} else {
		entry.ResponseStatus = resp.StatusCode()
		entry.ResponseBody = truncate(string(resp.Body()), maxResponseBody)
		entry.Success = entry.ResponseStatus >= 200 && entry.ResponseStatus < 300
		if entry.Success {
			slog.Info("[Webhook] Delivered", "webhookID", ep.ID, "event", event.Type, "status", entry.ResponseStatus)
		} else {
			slog.Warn("[Webhook] Endpoint rejected delivery", "webhookID", ep.ID, "event", event.Type, "status", entry.ResponseStatus)
		}
	}

	d.saveLog(ctx, entry)
	return entry
}

func (d *Dispatcher) saveLog(ctx context.Context, entry *models.WebhookLog) {
	if err := d.db.WithContext(ctx).Create(entry).Error; err != nil {
		slog.Error("[Webhook] Failed to write log", "webhookID", entry.WebhookID, "error", err)
	}
}

// truncate 按字节截断但不拆开多字节字符；非法UTF-8和NUL会被postgres拒绝，一并去掉
func truncate(s string, n int) string {
	if len(s) > n {
		for n > 0 && !utf8.RuneStart(s[n]) {
			n--
		}
		s = s[:n]
	}
	s = strings.ToValidUTF8(s, "")
	return strings.ReplaceAll(s, "\x00", "")
}
