package validation

import (
	"fmt"
	"strings"

	perrors "github.com/yungbote/neurobridge-hydration/internal/pkg/errors"
)

// SchemaInvalidError means the output does not have the shape expected for its kind.
type SchemaInvalidError struct {
	Kind     string
	Problems []string
}

func (e *SchemaInvalidError) Error() string {
	return fmt.Sprintf("%s output schema invalid: %s", e.Kind, strings.Join(e.Problems, "; "))
}

func (e *SchemaInvalidError) ErrorKind() perrors.Kind { return perrors.KindSchemaInvalid }

// PlaceholderContentError means a string field contains stub text.
type PlaceholderContentError struct {
	Path  string
	Match string
}

func (e *PlaceholderContentError) Error() string {
	return fmt.Sprintf("placeholder content at %s: %q", e.Path, e.Match)
}

func (e *PlaceholderContentError) ErrorKind() perrors.Kind { return perrors.KindPlaceholderContent }

// SemanticWeaknessError means the output is well-formed but too thin to use.
type SemanticWeaknessError struct {
	Path   string
	Reason string
}

func (e *SemanticWeaknessError) Error() string {
	if e.Path == "" {
		return "semantically weak output: " + e.Reason
	}
	return fmt.Sprintf("semantically weak output at %s: %s", e.Path, e.Reason)
}

func (e *SemanticWeaknessError) ErrorKind() perrors.Kind { return perrors.KindSemanticWeakness }

// ContextMismatchError means the output ignored the requested language or difficulty.
type ContextMismatchError struct {
	Field string
	Want  string
	Got   string
}

func (e *ContextMismatchError) Error() string {
	return fmt.Sprintf("output %s %q does not match requested %q", e.Field, e.Got, e.Want)
}

func (e *ContextMismatchError) ErrorKind() perrors.Kind { return perrors.KindContextMismatch }
