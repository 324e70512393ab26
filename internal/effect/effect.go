// Package effect runs side effects whose failure must not change the outcome
// of the operation that triggered them. A Result records what happened so
// callers branch on data instead of on a returned error.
package effect

import (
	"context"
	"time"

	"github.com/mergimg0/ttnts121-sub002/internal/logger"
	"github.com/mergimg0/ttnts121-sub002/internal/metrics"
)

type Result struct {
	Name     string
	OK       bool
	Err      error
	Duration time.Duration
}

// Failed reports whether the effect ran and failed. A skipped effect is not
// a failure.
func (r Result) Failed() bool {
	return r.Err != nil
}

// ErrorText is the error message, or "" when the effect succeeded.
func (r Result) ErrorText() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Run executes fn and never propagates its error. Failures are logged with
// attrs and counted.
func Run(ctx context.Context, name string, fn func(context.Context) error, attrs ...any) Result {
	start := time.Now()
	err := fn(ctx)
	res := Result{Name: name, OK: err == nil, Err: err, Duration: time.Since(start)}

	metrics.RecordSideEffect(name, res.OK)
	if err != nil {
		args := append([]any{"effect", name, "error", err.Error()}, attrs...)
		logger.Error("side effect failed", args...)
	}
	return res
}

// Value is Run for effects that produce something on success.
type Value[T any] struct {
	Result
	Value T
}

func RunValue[T any](ctx context.Context, name string, fn func(context.Context) (T, error), attrs ...any) Value[T] {
	var out T
	res := Run(ctx, name, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, attrs...)
	return Value[T]{Result: res, Value: out}
}
