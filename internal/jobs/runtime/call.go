package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"

	perrors "github.com/yungbote/neurobridge-hydration/internal/pkg/errors"
)

// PanicError is a generator panic recovered by Call.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

func (e *PanicError) ErrorKind() perrors.Kind { return perrors.KindValidation }

// Call runs gen in its own goroutine and returns whichever comes first: the
// generator result or ctx ending. A generator that ignores ctx is abandoned and
// its late result dropped.
func Call(ctx context.Context, gen Generator, req Request) (json.RawMessage, error) {
	type result struct {
		out json.RawMessage
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: &PanicError{Value: r, Stack: string(debug.Stack())}}
			}
		}()
		out, err := gen.Generate(ctx, req)
		done <- result{out: out, err: err}
	}()

	select {
	case r := <-done:
		return r.out, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
