package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	assert.Equal(t, 15*time.Minute, Backoff(0, 1))
	assert.Equal(t, 10*time.Minute, Backoff(10*time.Minute, 0))
	assert.Equal(t, 10*time.Minute, Backoff(10*time.Minute, 1))
	assert.Equal(t, 20*time.Minute, Backoff(10*time.Minute, 2))
	assert.Equal(t, 80*time.Minute, Backoff(10*time.Minute, 4))
	assert.Equal(t, MaxRetryBackoff, Backoff(10*time.Minute, 40))
	assert.Equal(t, MaxRetryBackoff, Backoff(48*time.Hour, 1))
}
