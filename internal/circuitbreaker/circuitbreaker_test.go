package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeClock lets tests move past the recovery timeout without sleeping.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg Config) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := New(cfg, zap.NewNop())
	cb.now = clock.now
	return cb, clock
}

func trip(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		cb.Allow()
		cb.RecordFailure()
	}
}

func TestCircuitBreaker_ClosedAllowsTraffic(t *testing.T) {
	cb, _ := newTestBreaker(DefaultConfig("app-1"))
	assert.Equal(t, StateClosed, cb.GetState())
	for i := 0; i < 10; i++ {
		require.True(t, cb.Allow(), "request %d", i)
	}
}

func TestCircuitBreaker_Lifecycle(t *testing.T) {
	cb, clock := newTestBreaker(Config{Name: "app-1", MaxFailures: 3, RecoveryTimeout: time.Minute})

	trip(cb, 3)
	require.Equal(t, StateOpen, cb.GetState())
	assert.False(t, cb.Allow(), "open breaker rejects")

	clock.advance(59 * time.Second)
	assert.False(t, cb.Allow(), "still inside the recovery window")

	clock.advance(time.Second)
	require.True(t, cb.Allow(), "probe allowed after recovery timeout")
	assert.Equal(t, StateHalfOpen, cb.GetState())
	assert.False(t, cb.Allow(), "only one probe in half-open")

	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb, clock := newTestBreaker(Config{Name: "app-1", MaxFailures: 2, RecoveryTimeout: time.Second})
	trip(cb, 2)
	clock.advance(time.Second)

	require.True(t, cb.Allow())
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.GetState())
	assert.False(t, cb.Allow())
}

func TestCircuitBreaker_SuccessResetsStreak(t *testing.T) {
	cb, _ := newTestBreaker(Config{Name: "app-1", MaxFailures: 3})
	trip(cb, 2)
	cb.Allow()
	cb.RecordSuccess()
	trip(cb, 2)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(Config{Name: "app-1", MaxFailures: 2, RecoveryTimeout: time.Hour})
	trip(cb, 2)
	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
	assert.True(t, cb.Allow())
}

func TestCircuitBreaker_Stats(t *testing.T) {
	cb, _ := newTestBreaker(Config{Name: "stats-test", MaxFailures: 5})
	cb.Allow()
	cb.RecordSuccess()
	cb.Allow()
	cb.RecordFailure()
	cb.Allow()
	cb.RecordSuccess()

	stats := cb.Stats()
	assert.Equal(t, "stats-test", stats.Name)
	assert.Equal(t, int64(3), stats.TotalRequests)
	assert.Equal(t, int64(2), stats.TotalSuccesses)
	assert.Equal(t, int64(1), stats.TotalFailures)
	assert.NotEmpty(t, stats.LastFailure)
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var transitions []string
	cb, _ := newTestBreaker(Config{
		Name:        "app-1",
		MaxFailures: 1,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})
	trip(cb, 1)
	cb.Reset()

	assert.Equal(t, []string{"app-1:closed->open", "app-1:open->closed"}, transitions)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("svc")
	assert.Equal(t, 5, cfg.MaxFailures)
	assert.Equal(t, 30*time.Second, cfg.RecoveryTimeout)
	assert.Equal(t, 1, cfg.HalfOpenMaxRequests)
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.s.String())
		})
	}
}

func TestRegistry_OneBreakerPerApp(t *testing.T) {
	r := NewRegistry(Config{MaxFailures: 1}, zap.NewNop())

	a := r.For("app-a")
	assert.Same(t, a, r.For("app-a"))
	b := r.For("app-b")
	assert.NotSame(t, a, b)

	trip(a, 1)
	assert.Equal(t, StateOpen, a.GetState())
	assert.Equal(t, StateClosed, b.GetState(), "apps are isolated")

	stats := r.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, "app-a", stats[0].Name)
	assert.Equal(t, "open", stats[0].State)
}
