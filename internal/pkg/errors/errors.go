package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = stderrors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = stderrors.New("invalid argument")
)

// Kind classifies a failure for retry, alerting and HTTP mapping.
type Kind string

const (
	KindUnknown            Kind = "unknown"
	KindValidation         Kind = "validation"
	KindConflict           Kind = "conflict"
	KindNotFound           Kind = "not_found"
	KindAlreadyExecuted    Kind = "already_executed"
	KindSchemaInvalid      Kind = "schema_invalid"
	KindPlaceholderContent Kind = "placeholder_content"
	KindSemanticWeakness   Kind = "semantic_weakness"
	KindContextMismatch    Kind = "context_mismatch"
	KindInfra              Kind = "infra"
	KindTimeout            Kind = "timeout"
)

// Retryable reports whether the scheduler may retry a failure of this kind
// without operator involvement.
func Retryable(k Kind) bool {
	return k == KindConflict || k == KindInfra
}

// IsOutputRejection reports whether the kind is one of the AI output rejections.
func IsOutputRejection(k Kind) bool {
	switch k {
	case KindSchemaInvalid, KindPlaceholderContent, KindSemanticWeakness, KindContextMismatch:
		return true
	}
	return false
}

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.Kind)
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) ErrorKind() Kind { return e.Kind }

// Kinded is implemented by any error that knows its own classification.
type Kinded interface {
	ErrorKind() Kind
}

func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Validation(op string, format string, args ...any) *Error {
	return E(KindValidation, op, fmt.Errorf("%w: "+format, append([]any{ErrInvalidArgument}, args...)...))
}

func Conflict(op string, err error) *Error { return E(KindConflict, op, err) }

func Infra(op string, err error) *Error { return E(KindInfra, op, err) }

func Timeout(op string, err error) *Error { return E(KindTimeout, op, err) }

func NotFound(op string, what string) *Error {
	return E(KindNotFound, op, fmt.Errorf("%s %w", what, ErrNotFound))
}

// KindOf classifies err. Unclassified errors are reported as KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var k Kinded
	if stderrors.As(err, &k) {
		return k.ErrorKind()
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if stderrors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	if stderrors.Is(err, ErrInvalidArgument) {
		return KindValidation
	}
	if IsSerializationFailure(err) || IsUniqueViolation(err) {
		return KindConflict
	}
	return KindUnknown
}

// IsSerializationFailure matches Postgres 40001 / 40P01.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// IsUniqueViolation matches Postgres 23505. SQLite constraint errors are matched by
// message so the same code paths run under the test store.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return containsFold(err.Error(), "UNIQUE constraint failed") || containsFold(err.Error(), "duplicate key")
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// Re-exports so callers need a single errors import.
func Is(err, target error) bool     { return stderrors.Is(err, target) }
func As(err error, target any) bool { return stderrors.As(err, target) }
func New(msg string) error          { return stderrors.New(msg) }

func AlreadyExecuted(op string, err error) *Error { return E(KindAlreadyExecuted, op, err) }
