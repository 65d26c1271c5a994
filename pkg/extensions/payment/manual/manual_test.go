package manual

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flaboy/aira-checkout/pkg/errors"
	"github.com/flaboy/aira-checkout/pkg/events/eventstest"
	"github.com/flaboy/aira-checkout/pkg/extensions/payment/paymenttest"
	"github.com/flaboy/aira-checkout/pkg/extensions/payment/types"
	"github.com/flaboy/aira-checkout/pkg/models"
	typ "github.com/flaboy/aira-checkout/pkg/types"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndConfirm(t *testing.T) {
	rec := eventstest.Install(t)
	db, order := paymenttest.Setup(t)
	m := New("letmein")
	require.NoError(t, m.Init())

	res, err := m.CreatePayment(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, "created", res.Status)
	assert.Equal(t, int64(4990), res.Amount)
	assert.Contains(t, res.PaymentHashID, "pm-")

	_, err = m.Confirm(context.Background(), res.PaymentHashID, "wrong")
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfirmSecret))

	completed, err := m.Confirm(context.Background(), res.PaymentHashID, "letmein")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, completed.Status)
	assert.Equal(t, ChannelName, completed.PaymentChannel)

	var record models.PaymentRecord
	require.NoError(t, db.Where("order_id = ?", order.ID).First(&record).Error)
	assert.Equal(t, models.PaymentStatusCompleted, record.Status)
	assert.NotNil(t, record.CompletedAt)

	// 重复确认不再发事件
	_, err = m.Confirm(context.Background(), res.PaymentHashID, "letmein")
	require.NoError(t, err)
	assert.Len(t, rec.OfType(typ.EventOrderCompleted), 1)
}

func TestConfirm_NoSecretConfigured(t *testing.T) {
	_, order := paymenttest.Setup(t)
	m := New("")
	res, err := m.CreatePayment(context.Background(), order)
	require.NoError(t, err)

	_, err = m.Confirm(context.Background(), res.PaymentHashID, "")
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfirmSecret))
}

func TestConfirm_UnknownPayment(t *testing.T) {
	paymenttest.Setup(t)
	m := New("s")
	_, err := m.Confirm(context.Background(), "pm-nope", "s")
	assert.True(t, stderrors.Is(err, errors.ErrPaymentInvalidID))
}

func TestHandleRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, order := paymenttest.Setup(t)
	m := New("letmein")
	res, err := m.CreatePayment(context.Background(), order)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/payment/manual/confirm/"+res.PaymentHashID, nil)
	c.Request.Header.Set(SecretHeader, "letmein")

	require.NoError(t, m.HandleRequest(c, "confirm/"+res.PaymentHashID))
	assert.Equal(t, http.StatusOK, w.Code)

	var out types.PaymentCallbackResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.True(t, out.Success)
	assert.Equal(t, res.OrderRef, out.OrderRef)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/payment/manual/other", nil)
	require.NoError(t, m.HandleRequest(c, "other"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
