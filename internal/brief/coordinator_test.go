package brief

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeGenerator struct {
	calls   atomic.Int32
	delay   time.Duration
	content string

	mu   sync.Mutex
	errs []error // consumed per call, nil = success
}

func (g *fakeGenerator) Generate(ctx context.Context, userID, contactAddress string) (string, error) {
	g.calls.Add(1)
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	g.mu.Lock()
	var err error
	if len(g.errs) > 0 {
		err, g.errs = g.errs[0], g.errs[1:]
	}
	g.mu.Unlock()
	if err != nil {
		return "", err
	}
	return g.content, nil
}

func TestProduce_CacheHit(t *testing.T) {
	gen := &fakeGenerator{content: "cached brief"}
	c := NewCoordinator(gen, time.Minute, zap.NewNop())

	for i := 0; i < 3; i++ {
		got, err := c.Produce(context.Background(), "u1", "u1@example.com")
		if err != nil || got != "cached brief" {
			t.Fatalf("produce %d: got %q err=%v", i, got, err)
		}
	}
	if n := gen.calls.Load(); n != 1 {
		t.Fatalf("want exactly one generation, got %d", n)
	}
}

func TestProduce_CacheExpiry(t *testing.T) {
	gen := &fakeGenerator{content: "brief"}
	c := NewCoordinator(gen, 10*time.Millisecond, zap.NewNop())

	if _, err := c.Produce(context.Background(), "u1", "a"); err != nil {
		t.Fatalf("produce: %v", err)
	}
	time.Sleep(25 * time.Millisecond)
	if _, err := c.Produce(context.Background(), "u1", "a"); err != nil {
		t.Fatalf("produce: %v", err)
	}
	if n := gen.calls.Load(); n != 2 {
		t.Fatalf("expired entry not regenerated: %d calls", n)
	}
}

func TestProduce_ConcurrentCallsCoalesce(t *testing.T) {
	gen := &fakeGenerator{content: "one brief", delay: 50 * time.Millisecond}
	c := NewCoordinator(gen, time.Minute, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.Produce(context.Background(), "u1", "a")
			if err != nil || got != "one brief" {
				t.Errorf("produce: got %q err=%v", got, err)
			}
		}()
	}
	wg.Wait()
	if n := gen.calls.Load(); n != 1 {
		t.Fatalf("concurrent callers ran %d generations, want 1", n)
	}
}

func TestProduce_JoinerRetriesAfterSharedFailure(t *testing.T) {
	// first attempt fails slowly; a caller that joined it must start a
	// fresh attempt instead of returning the stale failure
	gen := &fakeGenerator{
		content: "recovered brief",
		delay:   40 * time.Millisecond,
		errs:    []error{errors.New("transient")},
	}
	c := NewCoordinator(gen, time.Minute, zap.NewNop())

	leaderErr := make(chan error, 1)
	go func() {
		_, err := c.Produce(context.Background(), "u1", "a")
		leaderErr <- err
	}()
	time.Sleep(10 * time.Millisecond) // let the leader get in flight

	got, err := c.Produce(context.Background(), "u1", "a")
	if err != nil || got != "recovered brief" {
		t.Fatalf("joiner: got %q err=%v", got, err)
	}
	if err := <-leaderErr; err == nil {
		t.Fatal("leader's own failure was swallowed")
	}
	if n := gen.calls.Load(); n != 2 {
		t.Fatalf("want 2 generations (failed + retry), got %d", n)
	}
}

func TestProduce_SoleCallerFailureNotRetried(t *testing.T) {
	gen := &fakeGenerator{content: "later", errs: []error{errors.New("boom")}}
	c := NewCoordinator(gen, time.Minute, zap.NewNop())

	// the only caller ran the attempt itself; its error propagates
	// without a second generation
	if _, err := c.Produce(context.Background(), "u1", "a"); err == nil {
		t.Fatal("own failure was swallowed")
	}
	if n := gen.calls.Load(); n != 1 {
		t.Fatalf("sole caller retried its own failure: %d calls", n)
	}
}

func TestProduce_DistinctUsersDoNotCoalesce(t *testing.T) {
	gen := &fakeGenerator{content: "brief"}
	c := NewCoordinator(gen, time.Minute, zap.NewNop())

	if _, err := c.Produce(context.Background(), "u1", "a"); err != nil {
		t.Fatalf("produce: %v", err)
	}
	if _, err := c.Produce(context.Background(), "u2", "b"); err != nil {
		t.Fatalf("produce: %v", err)
	}
	if n := gen.calls.Load(); n != 2 {
		t.Fatalf("distinct users shared a generation: %d calls", n)
	}
}
