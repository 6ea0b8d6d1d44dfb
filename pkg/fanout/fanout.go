// Package fanout runs one function over many items with bounded concurrency.
package fanout

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// DefaultLimit is the number of items processed at once when Options.Limit is unset.
const DefaultLimit = 5

// Policy decides what a failing item does to the rest of the batch.
type Policy int

const (
	// FailFast cancels the batch on the first error and returns it.
	FailFast Policy = iota
	// CollectAll lets every item finish and reports errors per item.
	CollectAll
)

// ParsePolicy maps a config string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "fail-fast", "fail_fast":
		return FailFast, nil
	case "collect-all", "collect_all":
		return CollectAll, nil
	}
	return FailFast, fmt.Errorf("unknown fan-out policy %q (use fail-fast or collect-all)", s)
}

func (p Policy) String() string {
	if p == CollectAll {
		return "collect-all"
	}
	return "fail-fast"
}

// Gauge tracks the number of in-flight items. prometheus.Gauge satisfies it.
type Gauge interface {
	Inc()
	Dec()
}

// Options configures Map.
type Options struct {
	Limit    int
	Policy   Policy
	InFlight Gauge
}

// Result is the outcome for the item at Index.
type Result[R any] struct {
	Index int
	Value R
	Err   error
}

// ItemError identifies which item stopped a FailFast batch.
type ItemError struct {
	Index int
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// Map calls fn for every item with at most opts.Limit calls in flight.
// Results are returned in item order.
//
// With FailFast the first error cancels the context passed to the remaining
// calls, and Map returns an *ItemError alongside the results gathered so far.
// With CollectAll Map never returns an error; failures are in Result.Err.
func Map[T, R any](ctx context.Context, items []T, opts Options, fn func(ctx context.Context, item T) (R, error)) ([]Result[R], error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	results := make([]Result[R], len(items))
	if len(items) == 0 {
		return results, nil
	}

	var g *errgroup.Group
	gctx := ctx
	if opts.Policy == FailFast {
		g, gctx = errgroup.WithContext(ctx)
	} else {
		g = &errgroup.Group{}
	}
	g.SetLimit(limit)

	for i, item := range items {
		g.Go(func() error {
			results[i].Index = i

			if err := gctx.Err(); err != nil {
				results[i].Err = err
				if opts.Policy == FailFast {
					return &ItemError{Index: i, Err: err}
				}
				return nil
			}

			if opts.InFlight != nil {
				opts.InFlight.Inc()
				defer opts.InFlight.Dec()
			}

			value, err := fn(gctx, item)
			results[i].Value = value
			results[i].Err = err
			if err != nil && opts.Policy == FailFast {
				return &ItemError{Index: i, Err: err}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Values returns the values of successful results in order.
func Values[R any](results []Result[R]) []R {
	values := make([]R, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			values = append(values, r.Value)
		}
	}
	return values
}

// Errors returns the failed results in order.
func Errors[R any](results []Result[R]) []Result[R] {
	var failed []Result[R]
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}
