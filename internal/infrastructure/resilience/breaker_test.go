package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errUpstream = errors.New("upstream down")

func tripAfter(n uint32) func(Counts) bool {
	return func(c Counts) bool { return c.ConsecutiveFailures >= n }
}

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name     string
		requests []bool // true = success, false = failure
		want     State
	}{
		{"stays closed on successes", []bool{true, true, true}, StateClosed},
		{"opens after consecutive failures", []bool{false, false, false}, StateOpen},
		{"success resets the streak", []bool{false, false, true, false, false}, StateClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("cdn", Settings{ReadyToTrip: tripAfter(3)})
			for _, ok := range tt.requests {
				_ = b.Do(func() error {
					if ok {
						return nil
					}
					return errUpstream
				})
			}
			assert.Equal(t, tt.want, b.State())
		})
	}
}

func TestBreakerOpenFailsFast(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	b := New("cdn", Settings{ReadyToTrip: tripAfter(1), Timeout: time.Minute, Now: clock.Now})

	require.ErrorIs(t, b.Do(func() error { return errUpstream }), errUpstream)

	called := false
	err := b.Do(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	var transitions []string
	b := New("cdn", Settings{
		ReadyToTrip: tripAfter(1),
		Timeout:     time.Minute,
		Now:         clock.Now,
		OnStateChange: func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = b.Do(func() error { return errUpstream })
	clock.Advance(2 * time.Minute)
	assert.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Do(func() error { return nil }))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	b := New("cdn", Settings{ReadyToTrip: tripAfter(1), Timeout: time.Minute, Now: clock.Now})

	_ = b.Do(func() error { return errUpstream })
	clock.Advance(2 * time.Minute)
	_ = b.Do(func() error { return errUpstream })

	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerIgnoresNonFailures(t *testing.T) {
	errRejected := errors.New("content rejected")
	b := New("cdn", Settings{
		ReadyToTrip: tripAfter(1),
		IsFailure:   func(err error) bool { return err != nil && !errors.Is(err, errRejected) },
	})

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, b.Do(func() error { return errRejected }), errRejected)
	}
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, uint32(5), b.Counts().TotalSuccesses)
}

func TestBreakerPanicCountsAsFailure(t *testing.T) {
	b := New("cdn", Settings{ReadyToTrip: tripAfter(1)})

	assert.Panics(t, func() {
		_ = b.Do(func() error { panic("boom") })
	})
	assert.Equal(t, StateOpen, b.State())
}

func TestGroupReusesBreakers(t *testing.T) {
	g := NewGroup(Settings{})
	assert.Same(t, g.Get("esm.sh"), g.Get("esm.sh"))
	assert.NotSame(t, g.Get("esm.sh"), g.Get("unpkg.com"))
}
