// Package query evaluates jq filters against archived history entries.
// Callers hand it the raw archive slice; the filter sees a JSON array of
// entry objects and can reshape, select, or aggregate them freely.
package query

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/nodefold/nodefold/pkg/schema"
)

// Runner compiles and evaluates jq filters over history entries.
// Thread-safe: compiled *Code objects are cached and reused across goroutines.
type Runner struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewRunner creates a jq filter runner with an empty compilation cache.
func NewRunner() *Runner {
	return &Runner{
		cache: make(map[string]*gojq.Code),
	}
}

// Apply compiles (or retrieves from cache) a jq filter and runs it against
// the given history entries. The entries are presented to the filter as a
// JSON array, so `.[0].label`, `map(.kind)`, `length` and friends all work.
//
// jq filters can produce multiple outputs. When there is exactly one output,
// it is returned directly. When there are multiple, they are collected into
// a slice and returned as []any.
func (r *Runner) Apply(ctx context.Context, filter string, entries []schema.HistoryEntry) (any, error) {
	if filter == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty jq filter")
	}

	code, err := r.getOrCompile(filter)
	if err != nil {
		return nil, err
	}

	input, err := toJSONValue(entries)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "encode history for jq").WithCause(err)
	}

	iter := code.RunWithContext(ctx, input)

	var results []any
	for {
		val, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := val.(error); isErr {
			return nil, schema.NewErrorf(schema.ErrCodeExecution,
				"jq evaluation failed for %q: %s", filter, err.Error()).
				WithCause(err).
				WithDetails(map[string]any{"filter": filter})
		}
		results = append(results, val)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

// getOrCompile returns a cached compiled filter or compiles and caches a new one.
func (r *Runner) getOrCompile(filter string) (*gojq.Code, error) {
	r.mu.RLock()
	if code, ok := r.cache[filter]; ok {
		r.mu.RUnlock()
		return code, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock.
	if code, ok := r.cache[filter]; ok {
		return code, nil
	}

	query, err := gojq.Parse(filter)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq parse error in %q: %s", filter, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"filter": filter})
	}

	code, err := gojq.Compile(query,
		// Sandbox: return empty env to block $ENV and env access.
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq compile error in %q: %s", filter, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"filter": filter})
	}

	r.cache[filter] = code
	return code, nil
}

// toJSONValue round-trips entries through encoding/json so gojq sees only the
// types it understands (map[string]any, []any, float64, string, bool, nil).
func toJSONValue(entries []schema.HistoryEntry) (any, error) {
	if entries == nil {
		entries = []schema.HistoryEntry{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
