package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(cfg Config) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	cb := NewCircuitBreaker("test", cfg)
	cb.now = clock.Now
	cb.toNewGeneration(clock.Now())
	return cb, clock
}

var errDownstream = errors.New("downstream failed")

func fail() error    { return errDownstream }
func succeed() error { return nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	var transitions []string
	cb, _ := newTestBreaker(Config{
		FailureThreshold: 3,
		Timeout:          time.Minute,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail), errDownstream)
	}

	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, succeed), ErrCircuitOpen)
	assert.Equal(t, []string{"closed->open"}, transitions)
}

func TestBreaker_HalfOpenRecovers(t *testing.T) {
	cb, clock := newTestBreaker(Config{FailureThreshold: 1, Timeout: 30 * time.Second})
	ctx := context.Background()

	require.ErrorIs(t, cb.Execute(ctx, fail), errDownstream)
	require.Equal(t, StateOpen, cb.State())

	clock.Advance(31 * time.Second)
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(Config{FailureThreshold: 1, Timeout: 30 * time.Second})
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, fail))
	clock.Advance(31 * time.Second)

	require.Error(t, cb.Execute(ctx, fail))
	assert.Equal(t, StateOpen, cb.State())
}

func TestBreaker_IgnoredErrorsDoNotTrip(t *testing.T) {
	badInput := errors.New("bad input")
	cb, _ := newTestBreaker(Config{
		FailureThreshold: 1,
		IsFailure: func(err error) bool {
			return err != nil && !errors.Is(err, badInput)
		},
	})

	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), func() error { return badInput })
	}

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, uint32(5), cb.Counts().TotalSuccesses)
}

func TestExecuteWithResult(t *testing.T) {
	cb, _ := newTestBreaker(Config{})

	got, err := ExecuteWithResult(context.Background(), cb, func() (int, error) {
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
}
