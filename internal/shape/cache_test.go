package shape

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestCacheSingleFlight(t *testing.T) {
	var loads atomic.Int32
	release := make(chan struct{})

	c := NewCache(func() (*Shape, error) {
		loads.Add(1)
		<-release
		return &Shape{Width: 10, Height: 10}, nil
	})

	const n = 8
	results := make([]*Shape, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := c.Get(context.Background())
			if err != nil {
				t.Errorf("Get: %v", err)
			}
			results[i] = s
		}(i)
	}

	close(release)
	wg.Wait()

	if got := loads.Load(); got != 1 {
		t.Fatalf("load ran %d times, want 1", got)
	}
	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatalf("caller %d got a different shape pointer", i)
		}
	}
}

func TestCacheFailureIsNotMemoized(t *testing.T) {
	var loads atomic.Int32
	fail := errors.New("decode failed")

	c := NewCache(func() (*Shape, error) {
		if loads.Add(1) == 1 {
			return nil, fail
		}
		return &Shape{Width: 4, Height: 4}, nil
	})

	if _, err := c.Get(context.Background()); !errors.Is(err, fail) {
		t.Fatalf("first Get err = %v, want %v", err, fail)
	}
	s, err := c.Get(context.Background())
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if s == nil || s.Width != 4 {
		t.Fatalf("second Get shape = %+v", s)
	}
	if loads.Load() != 2 {
		t.Fatalf("load ran %d times, want 2", loads.Load())
	}
}

func TestCacheMemoizesSuccess(t *testing.T) {
	var loads atomic.Int32
	c := NewCache(func() (*Shape, error) {
		loads.Add(1)
		return &Shape{Width: 7}, nil
	})

	a, _ := c.Get(context.Background())
	b, _ := c.Get(context.Background())
	if a != b {
		t.Fatal("repeated Get returned different pointers")
	}
	if loads.Load() != 1 {
		t.Fatalf("load ran %d times, want 1", loads.Load())
	}
}
