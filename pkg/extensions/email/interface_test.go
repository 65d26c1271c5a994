package email

import (
	"context"
	"testing"

	"github.com/flaboy/aira-checkout/pkg/config"
	"github.com/flaboy/aira-checkout/pkg/extensions/email/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_LogProvider(t *testing.T) {
	p, err := Init(config.EmailConfig{Provider: "log", From: "shop@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "log", p.GetProviderName())

	msg := &types.Message{To: "a@example.com", Subject: "x"}
	require.NoError(t, p.Send(context.Background(), msg))
	assert.Equal(t, "shop@example.com", msg.From)
	assert.Equal(t, []string{"log"}, GetAvailableProviders())
}

func TestInit_Unknown(t *testing.T) {
	_, err := Init(config.EmailConfig{Provider: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestInit_HTTPNeedsURL(t *testing.T) {
	_, err := Init(config.EmailConfig{Provider: "http"})
	assert.Error(t, err)
}
