package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
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

func newTestBreaker(threshold uint32) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(Config{
		Name:    "test",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	})
	cb.now = clock.Now
	cb.newGeneration(clock.Now())
	return cb, clock
}

var errBackend = errors.New("backend down")

func fail(context.Context) error    { return errBackend }
func succeed(context.Context) error { return nil }

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb := NewCircuitBreaker(DefaultConfig("groq"))

	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
	if cb.Name() != "groq" {
		t.Errorf("name = %q, want groq", cb.Name())
	}
}

func TestCircuitBreaker_TripsAndRejects(t *testing.T) {
	cb, _ := newTestBreaker(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := cb.Execute(ctx, fail); !errors.Is(err, errBackend) {
			t.Fatalf("attempt %d: error = %v, want backend error", i, err)
		}
	}

	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	called := false
	err := cb.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("error = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("request ran while the circuit was open")
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	tests := []struct {
		name  string
		probe func(context.Context) error
		want  State
	}{
		{"success closes", succeed, StateClosed},
		{"failure reopens", fail, StateOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, clock := newTestBreaker(1)
			ctx := context.Background()

			cb.Execute(ctx, fail)
			clock.Advance(11 * time.Second)

			if cb.State() != StateHalfOpen {
				t.Fatalf("state after cool-down = %v, want half-open", cb.State())
			}

			cb.Execute(ctx, tt.probe)
			if cb.State() != tt.want {
				t.Errorf("state after probe = %v, want %v", cb.State(), tt.want)
			}
		})
	}
}

func TestCircuitBreaker_HalfOpenProbeBudget(t *testing.T) {
	cb, clock := newTestBreaker(1)
	ctx := context.Background()

	cb.Execute(ctx, fail)
	clock.Advance(11 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	go cb.Execute(ctx, func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	if err := cb.Execute(ctx, succeed); !errors.Is(err, ErrTooManyRequests) {
		t.Errorf("error = %v, want ErrTooManyRequests", err)
	}
	close(release)
}

func TestCircuitBreaker_CancelledContextDoesNotCount(t *testing.T) {
	cb, _ := newTestBreaker(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := cb.Execute(ctx, succeed); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if err := cb.Execute(context.Background(), func(context.Context) error { return context.Canceled }); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}

	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}
	if got := cb.Counts().TotalFailures; got != 0 {
		t.Errorf("failures = %d, want 0", got)
	}
}

func TestCircuitBreaker_StateChangeCallback(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(Config{
		Name: "ollama",
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})

	cb.Execute(context.Background(), fail)

	if len(transitions) != 1 || transitions[0] != "ollama:closed->open" {
		t.Errorf("transitions = %v", transitions)
	}
}

func TestDo(t *testing.T) {
	cb := NewCircuitBreaker(DefaultConfig("test"))

	got, err := Do(context.Background(), cb, func(context.Context) (string, error) {
		return "generated", nil
	})
	if err != nil || got != "generated" {
		t.Errorf("Do = %q, %v", got, err)
	}

	_, err = Do(context.Background(), cb, func(context.Context) (int, error) {
		return 0, errBackend
	})
	if !errors.Is(err, errBackend) {
		t.Errorf("error = %v, want backend error", err)
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(42):     "unknown",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}
