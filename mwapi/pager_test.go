package mwapi

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// pagedFetch serves items from fixed-size pages, counting fetches.
func pagedFetch(items []int, pageSize int, fetches *int) fetchFunc[int] {
	return func(_ context.Context, cont Continuation) ([]int, Continuation, error) {
		*fetches++
		offset := 0
		if cont != nil {
			offset = cont["offset"].(int)
		}
		end := offset + pageSize
		if end > len(items) {
			end = len(items)
		}
		var next Continuation
		if end < len(items) {
			next = Continuation{"offset": end}
		}
		return items[offset:end], next, nil
	}
}

func TestPager_YieldsAllPagesInOrder(t *testing.T) {
	t.Parallel()

	items := []int{1, 2, 3, 4, 5, 6, 7}
	fetches := 0
	p := newPager(pagedFetch(items, 3, &fetches))

	got, err := p.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(got) != len(items) {
		t.Fatalf("got %d items, want %d", len(got), len(items))
	}
	for i := range items {
		if got[i] != items[i] {
			t.Fatalf("got[%d] = %d, want %d", i, got[i], items[i])
		}
	}
	if fetches != 3 {
		t.Fatalf("fetches = %d, want 3", fetches)
	}
}

func TestPager_EmptySequence(t *testing.T) {
	t.Parallel()

	fetches := 0
	p := newPager(pagedFetch(nil, 3, &fetches))

	_, ok, err := p.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ok {
		t.Fatalf("Next returned an item from an empty sequence")
	}
	if fetches != 1 {
		t.Fatalf("fetches = %d, want 1", fetches)
	}
}

func TestPager_StaysExhausted(t *testing.T) {
	t.Parallel()

	fetches := 0
	p := newPager(pagedFetch([]int{1}, 3, &fetches))
	ctx := context.Background()

	if _, err := p.Collect(ctx); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for i := 0; i < 3; i++ {
		_, ok, err := p.Next(ctx)
		if err != nil || ok {
			t.Fatalf("Next after exhaustion = (%v, %v), want (false, nil)", ok, err)
		}
	}
	if fetches != 1 {
		t.Fatalf("fetches = %d, want 1 (no refetch after exhaustion)", fetches)
	}
}

func TestPager_ErrorTerminates(t *testing.T) {
	t.Parallel()

	boom := errors.New("listing failed")
	calls := 0
	p := newPager(func(_ context.Context, cont Continuation) ([]int, Continuation, error) {
		calls++
		if calls == 1 {
			return []int{1, 2}, Continuation{"offset": 2}, nil
		}
		return nil, nil, boom
	})
	ctx := context.Background()

	var got []int
	err := p.Each(ctx, func(n int) error {
		got = append(got, n)
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Each error = %v, want %v", err, boom)
	}
	if len(got) != 2 {
		t.Fatalf("yielded %d items before the error, want 2", len(got))
	}

	// The sequence is permanently done; the failing fetch is not retried.
	_, ok, err := p.Next(ctx)
	if err != nil || ok {
		t.Fatalf("Next after error = (%v, %v), want (false, nil)", ok, err)
	}
	if calls != 2 {
		t.Fatalf("fetch calls = %d, want 2", calls)
	}
}

func TestPager_EachStopsOnCallbackError(t *testing.T) {
	t.Parallel()

	fetches := 0
	p := newPager(pagedFetch([]int{1, 2, 3}, 1, &fetches))

	seen := 0
	err := p.Each(context.Background(), func(n int) error {
		seen++
		if n == 2 {
			return fmt.Errorf("stop at %d", n)
		}
		return nil
	})
	if err == nil {
		t.Fatalf("Each succeeded, want callback error")
	}
	if seen != 2 {
		t.Fatalf("callback ran %d times, want 2", seen)
	}
}
