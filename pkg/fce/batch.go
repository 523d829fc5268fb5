package fce

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ClassifyAll classifies records concurrently with at most workers
// goroutines (GOMAXPROCS when workers <= 0). Element i of the result is the
// section of records[i]. The only possible error is ctx's.
func ClassifyAll(ctx context.Context, records []TestRecord, workers int) ([]Section, error) {
	out := make([]Section, len(records))
	err := fanOut(ctx, len(records), workers, func(i int) {
		out[i] = Classify(records[i])
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExplainAll is ClassifyAll returning full decisions.
func ExplainAll(ctx context.Context, records []TestRecord, workers int) ([]Decision, error) {
	out := make([]Decision, len(records))
	err := fanOut(ctx, len(records), workers, func(i int) {
		out[i] = Explain(records[i])
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// InferAll infers norms for names concurrently, preserving input order.
func InferAll(ctx context.Context, names []string, workers int) ([]NormInfo, error) {
	out := make([]NormInfo, len(names))
	err := fanOut(ctx, len(names), workers, func(i int) {
		out[i] = InferNorms(names[i])
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// fanOut runs fn for every index in [0, n). Each call writes only its own
// slot, so no locking is needed.
func fanOut(ctx context.Context, n, workers int, fn func(i int)) error {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		if err := gctx.Err(); err != nil {
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
