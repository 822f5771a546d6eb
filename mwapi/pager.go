package mwapi

import "context"

// fetchFunc returns one page of items plus the continuation token for the
// next one. A nil token ends the sequence.
type fetchFunc[T any] func(ctx context.Context, cont Continuation) ([]T, Continuation, error)

// Pager presents a paginated query as a single lazy, finite, forward-only
// sequence. Items are yielded in server order, without deduplication:
// entries deleted or duplicated mid-listing pass through unchanged.
// A Pager is not restartable; after an error or exhaustion it stays done.
type Pager[T any] struct {
	fetch   fetchFunc[T]
	buf     []T
	cont    Continuation
	started bool
	done    bool
}

func newPager[T any](fetch fetchFunc[T]) *Pager[T] {
	return &Pager[T]{fetch: fetch}
}

// Next returns the next item. The second result is false once the
// sequence is exhausted. An error terminates the sequence permanently.
func (p *Pager[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	for len(p.buf) == 0 && !p.done {
		if p.started && p.cont == nil {
			p.done = true
			break
		}
		items, next, err := p.fetch(ctx, p.cont)
		if err != nil {
			p.done = true
			return zero, false, err
		}
		p.started = true
		p.buf = items
		p.cont = next
	}
	if len(p.buf) == 0 {
		return zero, false, nil
	}
	item := p.buf[0]
	p.buf = p.buf[1:]
	return item, true, nil
}

// Each drives the sequence to exhaustion, calling fn per item. An error
// from fn or from the underlying query stops the iteration.
func (p *Pager[T]) Each(ctx context.Context, fn func(T) error) error {
	for {
		item, ok, err := p.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := fn(item); err != nil {
			return err
		}
	}
}

// Collect drains the sequence into a slice.
func (p *Pager[T]) Collect(ctx context.Context) ([]T, error) {
	var out []T
	err := p.Each(ctx, func(item T) error {
		out = append(out, item)
		return nil
	})
	return out, err
}
