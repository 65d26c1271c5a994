package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flaboy/aira-checkout/pkg/extensions/email/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend(t *testing.T) {
	var (
		gotAuth string
		gotBody sendRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"msg_1"}`))
	}))
	defer srv.Close()

	p := New(srv.URL, "key-123")
	require.NoError(t, p.Init())

	err := p.Send(context.Background(), &types.Message{
		From: "shop@example.com", To: "a@example.com", ToName: "Ana",
		Subject: "Hi", HTML: "<p>hi</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer key-123", gotAuth)
	assert.Equal(t, []string{`"Ana" <a@example.com>`}, gotBody.To)
	assert.Equal(t, "Hi", gotBody.Subject)
}

func TestSend_EncodesDisplayName(t *testing.T) {
	var gotBody sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := New(srv.URL, "k")
	require.NoError(t, p.Init())

	for _, c := range []struct{ name, want string }{
		{"Souza, Ana", `"Souza, Ana" <a@example.com>`},
		{`Ana "Jr"`, `"Ana \"Jr\"" <a@example.com>`},
		{"José", "=?utf-8?q?Jos=C3=A9?= <a@example.com>"},
	} {
		require.NoError(t, p.Send(context.Background(), &types.Message{To: "a@example.com", ToName: c.name}))
		assert.Equal(t, []string{c.want}, gotBody.To, c.name)
	}
}

func TestSend_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"bad recipient"}`))
	}))
	defer srv.Close()

	p := New(srv.URL, "k")
	require.NoError(t, p.Init())
	err := p.Send(context.Background(), &types.Message{To: "a@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}

func TestInit_RequiresConfig(t *testing.T) {
	assert.Error(t, New("", "k").Init())
	assert.Error(t, New("http://x", "").Init())
}
