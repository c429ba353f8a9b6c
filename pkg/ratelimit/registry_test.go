package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestRegistry(rps float64, burst int) (*Registry, *time.Time) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewRegistry(rps, burst, time.Minute)
	r.now = func() time.Time { return now }
	return r, &now
}

func TestAllowPerKey(t *testing.T) {
	r, now := newTestRegistry(1, 2)

	assert.True(t, r.Allow("a"))
	assert.True(t, r.Allow("a"))
	assert.False(t, r.Allow("a"))
	// 其他 key 不受影响
	assert.True(t, r.Allow("b"))

	*now = now.Add(time.Second)
	assert.True(t, r.Allow("a"))
	assert.False(t, r.Allow("a"))
}

func TestRetryAfter(t *testing.T) {
	r, _ := newTestRegistry(2, 1)

	assert.Equal(t, time.Duration(0), r.RetryAfter("a"))
	assert.True(t, r.Allow("a"))
	assert.Equal(t, 500*time.Millisecond, r.RetryAfter("a"))
	// RetryAfter 不消耗令牌
	assert.Equal(t, 500*time.Millisecond, r.RetryAfter("a"))
}

func TestIdleLimitersEvicted(t *testing.T) {
	r, now := newTestRegistry(1, 1)
	r.Allow("a")
	r.Allow("b")
	assert.Equal(t, 2, r.Len())

	*now = now.Add(2 * time.Minute)
	r.Allow("c")
	assert.Equal(t, 1, r.Len())
}
