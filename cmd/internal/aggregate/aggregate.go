// Package aggregate runs independent fetches concurrently and joins every outcome.
//
// A failed task never cancels its siblings. Each failure is recorded on its own
// result, so callers can report exactly one problem per failed task.
package aggregate

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Task is one named fetch producing a value of type T.
type Task[T any] struct {
	Name  string
	Fetch func(ctx context.Context) (T, error)
}

// Result is the outcome of one Task. Value is T's zero value when Err is non-nil.
type Result[T any] struct {
	Name  string
	Value T
	Err   error
}

// Results keeps the order of the submitted tasks.
type Results[T any] []Result[T]

// Failed returns only the failed results.
func (rs Results[T]) Failed() Results[T] {
	var out Results[T]
	for _, r := range rs {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// Values maps task name to value; failed tasks map to the zero value.
func (rs Results[T]) Values() map[string]T {
	out := make(map[string]T, len(rs))
	for _, r := range rs {
		out[r.Name] = r.Value
	}
	return out
}

// Collect runs every task concurrently and waits for all of them.
//
// ctx is shared by all tasks but is not cancelled when one fails. A panicking task is
// recorded as a failure.
func Collect[T any](ctx context.Context, tasks ...Task[T]) Results[T] {
	results := make(Results[T], len(tasks))

	// Tasks always return nil to the group; failures live on their Result.
	var g errgroup.Group
	for i, task := range tasks {
		results[i].Name = task.Name
		g.Go(func() error {
			v, err := run(ctx, task)
			if err != nil {
				var zero T
				results[i].Value = zero
				results[i].Err = err
				return nil
			}
			results[i].Value = v
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func run[T any](ctx context.Context, task Task[T]) (v T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task %s panicked: %v", task.Name, rec)
		}
	}()
	if task.Fetch == nil {
		return v, fmt.Errorf("task %s has no fetch", task.Name)
	}
	return task.Fetch(ctx)
}
