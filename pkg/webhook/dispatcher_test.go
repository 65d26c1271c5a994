package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/flaboy/aira-checkout/pkg/database/dbtest"
	"github.com/flaboy/aira-checkout/pkg/errors"
	"github.com/flaboy/aira-checkout/pkg/models"
	"github.com/flaboy/aira-checkout/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type received struct {
	header http.Header
	body   []byte
}

type sink struct {
	mu     sync.Mutex
	calls  []received
	status int
	reply  string
}

func newSink(t *testing.T, status int, reply string) (*sink, *httptest.Server) {
	s := &sink{status: status, reply: reply}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.calls = append(s.calls, received{header: r.Header.Clone(), body: body})
		s.mu.Unlock()
		w.WriteHeader(s.status)
		_, _ = w.Write([]byte(s.reply))
	}))
	t.Cleanup(srv.Close)
	return s, srv
}

func endpoint(t *testing.T, db *gorm.DB, userID uint, url, events string) *models.WebhookEndpoint {
	t.Helper()
	ep := &models.WebhookEndpoint{UserID: userID, URL: url, Secret: "s3cret", Events: events, Active: true}
	require.NoError(t, db.Create(ep).Error)
	return ep
}

func orderEvent(owner uint) *types.Event {
	return &types.Event{
		Type:       types.EventOrderCompleted,
		OwnerID:    owner,
		OccurredAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		Data:       &types.OrderCompletedEvent{OrderRef: "od-abc", Currency: "USD", Amount: types.MinorToDecimal(4990)},
	}
}

func TestDispatch_PostsSignedPayload(t *testing.T) {
	db := dbtest.New(t)
	s, srv := newSink(t, http.StatusOK, "ok")
	ep := endpoint(t, db, 7, srv.URL, "order.completed")

	d := NewDispatcher(db, Options{Timeout: 2 * time.Second, Version: "1.0"})
	require.NoError(t, d.Dispatch(context.Background(), orderEvent(7)))

	require.Len(t, s.calls, 1)
	call := s.calls[0]
	assert.Equal(t, "application/json", call.header.Get("Content-Type"))
	assert.Equal(t, "s3cret", call.header.Get("X-Webhook-Secret"))
	assert.Equal(t, "Bearer s3cret", call.header.Get("Authorization"))
	assert.Equal(t, "order.completed", call.header.Get("X-Webhook-Event"))
	assert.Len(t, call.header.Get("X-Webhook-Delivery"), 36)
	assert.Equal(t, Sign("s3cret", call.body), call.header.Get("X-Webhook-Signature"))

	var p map[string]interface{}
	require.NoError(t, json.Unmarshal(call.body, &p))
	assert.Equal(t, "order.completed", p["event"])
	assert.Equal(t, "2026-03-10T12:00:00Z", p["timestamp"])
	assert.Equal(t, "1.0", p["version"])
	assert.True(t, strings.HasPrefix(p["webhook_id"].(string), "wh-"))
	data := p["data"].(map[string]interface{})
	assert.Equal(t, "od-abc", data["order_id"])
	assert.Equal(t, "49.9", data["amount"])

	var logs []models.WebhookLog
	require.NoError(t, db.Where("webhook_id = ?", ep.ID).Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Success)
	assert.Equal(t, 200, logs[0].ResponseStatus)
	assert.Equal(t, "ok", logs[0].ResponseBody)
	assert.Equal(t, call.header.Get("X-Webhook-Delivery"), logs[0].DeliveryID)
}

func TestDispatch_FiltersEndpoints(t *testing.T) {
	db := dbtest.New(t)
	s, srv := newSink(t, http.StatusOK, "")
	endpoint(t, db, 7, srv.URL, "*")
	endpoint(t, db, 7, srv.URL, "purchase.abandoned")
	endpoint(t, db, 8, srv.URL, "*")
	off := endpoint(t, db, 7, srv.URL, "order.completed")
	require.NoError(t, db.Model(off).Update("active", false).Error)

	d := NewDispatcher(db, Options{})
	require.NoError(t, d.Dispatch(context.Background(), orderEvent(7)))
	assert.Len(t, s.calls, 1)
}

func TestDispatch_FailureIsLogged(t *testing.T) {
	db := dbtest.New(t)
	_, srv := newSink(t, http.StatusInternalServerError, strings.Repeat("x", 5000))
	ep := endpoint(t, db, 7, srv.URL, "*")

	d := NewDispatcher(db, Options{})
	require.NoError(t, d.Dispatch(context.Background(), orderEvent(7)))

	var log models.WebhookLog
	require.NoError(t, db.Where("webhook_id = ?", ep.ID).First(&log).Error)
	assert.False(t, log.Success)
	assert.Equal(t, 500, log.ResponseStatus)
	assert.Len(t, log.ResponseBody, maxResponseBody)
}

func TestDispatch_MultibyteBodyKeptValid(t *testing.T) {
	db := dbtest.New(t)
	_, srv := newSink(t, http.StatusBadGateway, strings.Repeat("a", maxResponseBody-1)+strings.Repeat("é", 100))
	ep := endpoint(t, db, 7, srv.URL, "*")

	d := NewDispatcher(db, Options{})
	require.NoError(t, d.Dispatch(context.Background(), orderEvent(7)))

	var log models.WebhookLog
	require.NoError(t, db.Where("webhook_id = ?", ep.ID).First(&log).Error)
	assert.True(t, utf8.ValidString(log.ResponseBody))
	assert.Equal(t, strings.Repeat("a", maxResponseBody-1), log.ResponseBody)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "ab", truncate("abc", 2))

	cut := truncate(strings.Repeat("a", 4095)+"é", 4096)
	assert.True(t, utf8.ValidString(cut))
	assert.Len(t, cut, 4095)

	assert.Equal(t, "日本", truncate("日本語", 8))
	assert.Equal(t, "okbin", truncate("ok\xff\x00bin", 100))
}

func TestDispatch_UnreachableEndpoint(t *testing.T) {
	db := dbtest.New(t)
	_, srv := newSink(t, http.StatusOK, "")
	url := srv.URL
	srv.Close()
	ep := endpoint(t, db, 7, url, "*")

	d := NewDispatcher(db, Options{Timeout: time.Second})
	require.NoError(t, d.Dispatch(context.Background(), orderEvent(7)))

	var log models.WebhookLog
	require.NoError(t, db.Where("webhook_id = ?", ep.ID).First(&log).Error)
	assert.False(t, log.Success)
	assert.Zero(t, log.ResponseStatus)
	assert.NotEmpty(t, log.Error)
}

func TestDispatch_Async(t *testing.T) {
	db := dbtest.New(t)
	s, srv := newSink(t, http.StatusOK, "")
	endpoint(t, db, 7, srv.URL, "*")
	endpoint(t, db, 7, srv.URL, "*")

	d := NewDispatcher(db, Options{Async: true})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Dispatch(ctx, orderEvent(7)))
	cancel()
	d.Wait()

	assert.Len(t, s.calls, 2)
	var n int64
	require.NoError(t, db.Model(&models.WebhookLog{}).Where("success = ?", true).Count(&n).Error)
	assert.Equal(t, int64(2), n)
}

func TestTestAndLogs(t *testing.T) {
	db := dbtest.New(t)
	s, srv := newSink(t, http.StatusOK, "pong")
	ep := endpoint(t, db, 7, srv.URL, "order.completed")
	d := NewDispatcher(db, Options{})

	log, err := d.Test(context.Background(), ep.ID)
	require.NoError(t, err)
	assert.True(t, log.Success)
	assert.Equal(t, "webhook.test", log.EventType)
	require.Len(t, s.calls, 1)
	assert.Equal(t, "webhook.test", s.calls[0].header.Get("X-Webhook-Event"))

	logs, err := d.Logs(context.Background(), ep.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "pong", logs[0].ResponseBody)

	_, err = d.Test(context.Background(), 999)
	assert.True(t, stderrors.Is(err, errors.ErrWebhookNotFound))
	_, err = d.Logs(context.Background(), 999, 10)
	assert.True(t, stderrors.Is(err, errors.ErrWebhookNotFound))

	require.NoError(t, db.Model(ep).Update("active", false).Error)
	_, err = d.Test(context.Background(), ep.ID)
	assert.True(t, stderrors.Is(err, errors.ErrWebhookInactive))
}

func TestSign(t *testing.T) {
	mac := hmac.New(sha256.New, []byte("key"))
	mac.Write([]byte("{}"))
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, Sign("key", []byte("{}")))
	assert.NotEqual(t, Sign("a", []byte("{}")), Sign("b", []byte("{}")))
}
