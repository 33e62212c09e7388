package apierr

import (
	"fmt"
	"net/http"

	perrors "github.com/yungbote/neurobridge-hydration/internal/pkg/errors"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// FromError maps a pipeline error onto an HTTP status and a stable code.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if perrors.As(err, &ae) {
		return ae
	}
	kind := perrors.KindOf(err)
	switch kind {
	case perrors.KindValidation:
		return New(http.StatusBadRequest, string(kind), err)
	case perrors.KindNotFound:
		return New(http.StatusNotFound, string(kind), err)
	case perrors.KindConflict, perrors.KindAlreadyExecuted:
		return New(http.StatusConflict, string(kind), err)
	case perrors.KindSchemaInvalid, perrors.KindPlaceholderContent, perrors.KindSemanticWeakness, perrors.KindContextMismatch:
		return New(http.StatusUnprocessableEntity, string(kind), err)
	case perrors.KindInfra:
		return New(http.StatusServiceUnavailable, string(kind), err)
	case perrors.KindTimeout:
		return New(http.StatusGatewayTimeout, string(kind), err)
	default:
		return New(http.StatusInternalServerError, "internal", err)
	}
}
