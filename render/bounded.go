package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lvillar/docfill"
	"golang.org/x/sync/semaphore"
)

// BoundedRenderer limits how many renders run at once.
type BoundedRenderer struct {
	next    Renderer
	sem     *semaphore.Weighted
	timeout time.Duration
}

// Bounded wraps next so that at most maxConcurrent renders run at a time and
// each one, including the wait for a slot, ends after timeout. A timed out
// render fails with docfill.ErrRenderTimeout; any other failure wraps
// docfill.ErrRender.
func Bounded(next Renderer, maxConcurrent int64, timeout time.Duration) *BoundedRenderer {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &BoundedRenderer{
		next:    next,
		sem:     semaphore.NewWeighted(maxConcurrent),
		timeout: timeout,
	}
}

// Render implements Renderer.
func (b *BoundedRenderer) Render(ctx context.Context, html string, opts Options) ([]byte, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	if err := b.sem.Acquire(ctx, 1); err != nil {
		return nil, classify(ctx, fmt.Errorf("waiting for a render slot: %w", err))
	}
	defer b.sem.Release(1)

	data, err := b.next.Render(ctx, html, opts)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return data, nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, docfill.ErrRender) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", docfill.ErrRenderTimeout, err)
	}
	return fmt.Errorf("%w: %v", docfill.ErrRender, err)
}
