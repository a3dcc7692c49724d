package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is the outcome of one lookup in a batch.
type Result struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// BatchResult aggregates the results of a batch in input order.
type BatchResult struct {
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Results    []Result `json:"results"`
}

// ParseStringOrArray accepts a single id, an array of ids, or a string
// holding a JSON array of ids. A string that only looks like an array is
// treated as a single id.
func ParseStringOrArray(param any, paramName string) ([]string, error) {
	if param == nil {
		return nil, fmt.Errorf("%s is required", paramName)
	}

	switch v := param.(type) {
	case string:
		if v == "" {
			return nil, fmt.Errorf("%s cannot be empty", paramName)
		}
		if strings.HasPrefix(strings.TrimSpace(v), "[") {
			var arr []any
			if err := json.Unmarshal([]byte(v), &arr); err == nil {
				return parseArray(arr, paramName)
			}
		}
		return []string{v}, nil
	case []string:
		arr := make([]any, len(v))
		for i, s := range v {
			arr[i] = s
		}
		return parseArray(arr, paramName)
	case []any:
		return parseArray(v, paramName)
	default:
		return nil, fmt.Errorf("%s must be a string or array of strings", paramName)
	}
}

func parseArray(v []any, paramName string) ([]string, error) {
	if len(v) == 0 {
		return nil, fmt.Errorf("%s cannot be empty", paramName)
	}
	out := make([]string, 0, len(v))
	for i, item := range v {
		str, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be a string", paramName, i)
		}
		if str == "" {
			return nil, fmt.Errorf("%s[%d] cannot be empty", paramName, i)
		}
		out = append(out, str)
	}
	return out, nil
}

// Summarize counts the outcomes of results.
func Summarize(results []Result) BatchResult {
	br := BatchResult{Total: len(results), Results: results}
	for _, r := range results {
		if r.Status == StatusSuccess {
			br.Successful++
		} else {
			br.Failed++
		}
	}
	return br
}

// FormatResults renders results as indented JSON.
func FormatResults(results []Result) string {
	out, _ := json.MarshalIndent(Summarize(results), "", "  ")
	return string(out)
}

// Process runs fn for every id with at most limit calls in flight and
// returns one result per id in input order. A failed id never stops the
// others; only a cancelled ctx does, and the remaining ids report its error.
func Process[T any](ctx context.Context, ids []string, limit int, fn func(ctx context.Context, id string) (T, error)) []Result {
	results := make([]Result, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = NewErrorResult(id, err)
				return nil
			}
			v, err := fn(gctx, id)
			if err != nil {
				results[i] = NewErrorResult(id, err)
				return nil
			}
			results[i] = NewSuccessResult(id, v)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// NewSuccessResult encodes v as the result for id. A value that cannot be
// encoded is reported as an error result.
func NewSuccessResult(id string, v any) Result {
	raw, err := json.Marshal(v)
	if err != nil {
		return NewErrorResult(id, fmt.Errorf("encode result: %w", err))
	}
	return Result{ID: id, Status: StatusSuccess, Result: raw}
}

// NewErrorResult creates an error result
func NewErrorResult(id string, err error) Result {
	return Result{
		ID:     id,
		Status: StatusError,
		Error:  err.Error(),
	}
}
