package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestSameKeyRunsInOrder(t *testing.T) {
	d := New(4)
	defer d.Close()

	var mu sync.Mutex
	var got []int
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		i := i
		if err := d.Submit(ctx, "votes", func(context.Context) {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	d.Close()

	if len(got) != 100 {
		t.Fatalf("ran %d tasks, want 100", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
}

func TestKeysRunIndependently(t *testing.T) {
	d := New(1)
	defer d.Close()
	ctx := context.Background()

	block := make(chan struct{})
	if err := d.Submit(ctx, "slow", func(context.Context) { <-block }); err != nil {
		t.Fatal(err)
	}
	err := d.Do(ctx, "fast", func(context.Context) error { return nil })
	close(block)
	if err != nil {
		t.Fatalf("fast key was held up by slow key: %v", err)
	}
}

func TestDoReturnsTaskError(t *testing.T) {
	d := New(1)
	defer d.Close()
	want := errors.New("boom")
	if err := d.Do(context.Background(), "k", func(context.Context) error { return want }); !errors.Is(err, want) {
		t.Fatalf("got %v, want %v", err, want)
	}
}

func TestPanicDoesNotKillWorker(t *testing.T) {
	d := New(1)
	defer d.Close()
	ctx := context.Background()
	_ = d.Submit(ctx, "k", func(context.Context) { panic("bad handler") })
	if err := d.Do(ctx, "k", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("worker did not survive panic: %v", err)
	}
}

func TestSubmitAfterClose(t *testing.T) {
	d := New(1)
	d.Close()
	if err := d.Submit(context.Background(), "k", func(context.Context) {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("got %v, want ErrClosed", err)
	}
	d.Close()
}

func TestSubmitHonoursContextWhenFull(t *testing.T) {
	d := New(1)
	defer d.Close()
	block := make(chan struct{})
	defer close(block)
	bg := context.Background()
	_ = d.Submit(bg, "k", func(context.Context) { <-block })
	// one running, one queued
	for {
		if err := d.Submit(bg, "k", func(context.Context) {}); err != nil {
			t.Fatal(err)
		}
		d.mu.Lock()
		full := len(d.queues["k"].tasks) == cap(d.queues["k"].tasks)
		d.mu.Unlock()
		if full {
			break
		}
	}
	ctx, cancel := context.WithTimeout(bg, 20*time.Millisecond)
	defer cancel()
	if err := d.Submit(ctx, "k", func(context.Context) {}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want deadline exceeded", err)
	}
}

func TestManyKeysConcurrently(t *testing.T) {
	d := New(8)
	ctx := context.Background()
	counts := make([]int, 10)
	var wg sync.WaitGroup
	for k := 0; k < 10; k++ {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = d.Submit(ctx, fmt.Sprintf("chan-%d", k), func(context.Context) { counts[k]++ })
			}
		}(k)
	}
	wg.Wait()
	d.Close()
	for k, n := range counts {
		if n != 50 {
			t.Fatalf("key %d ran %d tasks", k, n)
		}
	}
}
