package httpserver

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalConnectionLimiter(t *testing.T) {
	l := NewGlobalConnectionLimiter(2)

	assert.True(t, l.Acquire())
	assert.True(t, l.Acquire())
	assert.False(t, l.Acquire())
	assert.Equal(t, int64(2), l.Current())

	l.Release()
	assert.True(t, l.Acquire())
}

func TestGlobalConnectionLimiter_Concurrent(t *testing.T) {
	l := NewGlobalConnectionLimiter(50)

	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0
	for n := 0; n < 200; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Acquire() {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, acquired)
}

func TestIPConnectionLimiter(t *testing.T) {
	l := NewIPConnectionLimiter(2)

	assert.True(t, l.Acquire("a"))
	assert.True(t, l.Acquire("a"))
	assert.False(t, l.Acquire("a"))
	assert.True(t, l.Acquire("b"))

	l.Release("a")
	assert.Equal(t, 1, l.Count("a"))
	l.Release("a")
	l.Release("a")
	assert.Equal(t, 0, l.Count("a"))
}

func TestConnectionRateLimiter(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := NewConnectionRateLimiter(clock, 1, 2)

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))

	clock.Advance(time.Second)
	assert.True(t, l.Allow("a"))
}

func TestConnectionRateLimiter_CleansUpIdle(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := NewConnectionRateLimiter(clock, 1, 1)

	l.Allow("a")
	l.Allow("b")
	assert.Equal(t, 2, l.ActiveLimiters())

	clock.Advance(rateLimiterIdleAfter + time.Minute)
	l.Allow("c")
	assert.Equal(t, 1, l.ActiveLimiters())
}

func TestConnectionLimits(t *testing.T) {
	tests := []struct {
		name       string
		global     int64
		perIP      int
		burst      int
		attempts   []string
		wantReason LimitReason
	}{
		{"under all limits", 10, 10, 10, []string{"a", "a", "b"}, ""},
		{"global limit", 2, 10, 10, []string{"a", "b", "c"}, LimitReasonGlobal},
		{"per ip limit", 10, 1, 10, []string{"a", "a"}, LimitReasonPerIP},
		{"rate limit", 10, 10, 1, []string{"a", "a"}, LimitReasonRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewConnectionLimits(clockwork.NewFakeClock(), tt.global, tt.perIP, 0.001, tt.burst)

			var reason LimitReason
			for _, ip := range tt.attempts {
				_, reason = l.Acquire(ip)
			}
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestConnectionLimits_PerIPRejectRollsBackGlobal(t *testing.T) {
	l := NewConnectionLimits(clockwork.NewFakeClock(), 2, 1, 100, 100)

	ok, _ := l.Acquire("a")
	assert.True(t, ok)
	ok, reason := l.Acquire("a")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonPerIP, reason)

	ok, _ = l.Acquire("b")
	assert.True(t, ok, "rejected per-ip attempt must not hold a global slot")

	l.Release("a")
	l.Release("b")
	assert.Equal(t, int64(0), l.global.Current())
}

func TestConnectionLimits_Stats(t *testing.T) {
	l := NewConnectionLimits(clockwork.NewFakeClock(), 10, 5, 100, 100)
	assert.Equal(t, AdmissionStats{}, l.Stats())

	for _, ip := range []string{"a", "a", "b"} {
		ok, _ := l.Acquire(ip)
		require.True(t, ok)
	}

	assert.Equal(t, AdmissionStats{OpenConnections: 3, RateBuckets: 2}, l.Stats())
	assert.Equal(t, 2, l.OpenFor("a"))
	assert.Equal(t, 1, l.OpenFor("b"))
	assert.Equal(t, 0, l.OpenFor("c"))

	l.Release("a")
	assert.Equal(t, int64(2), l.Stats().OpenConnections)
	assert.Equal(t, 1, l.OpenFor("a"))
}
