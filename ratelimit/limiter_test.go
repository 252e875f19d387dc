package ratelimit

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"
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

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Advance(d time.Duration) {
	c.Sleep(d)
}

func TestAcquireFirstCallDoesNotWait(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	l := New(200*time.Millisecond, WithClock(clock.Now, clock.Sleep))

	l.Acquire()

	if got := clock.Now(); !got.Equal(time.Unix(1000, 0)) {
		t.Fatalf("first acquire slept: clock at %v", got)
	}
	if !l.Last().Equal(time.Unix(1000, 0)) {
		t.Fatalf("expected last call recorded, got %v", l.Last())
	}
}

func TestAcquireSequentialSpacing(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	interval := 200 * time.Millisecond
	l := New(interval, WithClock(clock.Now, clock.Sleep))

	var stamps []time.Time
	for i := 0; i < 5; i++ {
		l.Acquire()
		stamps = append(stamps, l.Last())
		clock.Advance(30 * time.Millisecond)
	}

	for i := 1; i < len(stamps); i++ {
		if gap := stamps[i].Sub(stamps[i-1]); gap < interval {
			t.Fatalf("gap %d: got %v, want >= %v", i, gap, interval)
		}
	}
}

func TestAcquireNoWaitAfterIdle(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	l := New(200*time.Millisecond, WithClock(clock.Now, clock.Sleep))

	l.Acquire()
	clock.Advance(time.Second)
	before := clock.Now()
	l.Acquire()

	if !clock.Now().Equal(before) {
		t.Fatalf("acquire after idle period should not sleep")
	}
}

func TestAcquireConcurrentSpacing(t *testing.T) {
	interval := 20 * time.Millisecond
	l := New(interval)

	var mu sync.Mutex
	var stamps []time.Time
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Acquire()
			mu.Lock()
			stamps = append(stamps, l.Last())
			mu.Unlock()
		}()
	}
	wg.Wait()

	// Last() may be read after a later Acquire, so dedupe before checking gaps.
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })
	var uniq []time.Time
	for _, s := range stamps {
		if len(uniq) == 0 || !s.Equal(uniq[len(uniq)-1]) {
			uniq = append(uniq, s)
		}
	}
	for i := 1; i < len(uniq); i++ {
		if gap := uniq[i].Sub(uniq[i-1]); gap < interval {
			t.Fatalf("gap %d: got %v, want >= %v", i, gap, interval)
		}
	}
}

func TestAcquireContextCancelled(t *testing.T) {
	l := New(time.Hour)
	l.Acquire()
	first := l.Last()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := l.AcquireContext(ctx); err == nil {
		t.Fatalf("expected context error")
	}
	if !l.Last().Equal(first) {
		t.Fatalf("cancelled acquire must not record a call")
	}
}

func TestAcquireContextUsesInjectedClock(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	interval := time.Hour
	l := New(interval, WithClock(clock.Now, clock.Sleep))

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.AcquireContext(context.Background()); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	if time.Since(start) > time.Second {
		t.Fatalf("context wait slept on the wall clock")
	}
	if want := time.Unix(1000, 0).Add(2 * interval); !l.Last().Equal(want) {
		t.Fatalf("last = %v, want %v", l.Last(), want)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	before := l.Last()
	if err := l.AcquireContext(ctx); err == nil {
		t.Fatalf("expected context error")
	}
	if !l.Last().Equal(before) || !clock.Now().Equal(before) {
		t.Fatalf("cancelled acquire advanced the clock or recorded a call")
	}
}

func TestZeroIntervalNeverWaits(t *testing.T) {
	l := New(0)
	start := time.Now()
	for i := 0; i < 100; i++ {
		l.Acquire()
	}
	if time.Since(start) > time.Second {
		t.Fatalf("zero interval limiter should not delay")
	}
}
