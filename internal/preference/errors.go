package preference

import (
	"errors"
	"fmt"
)

var (
	// ErrSchema matches every *SchemaError via errors.Is.
	ErrSchema = errors.New("invalid preference schema")

	// ErrUnknownDomain is returned for a key no registered domain uses.
	ErrUnknownDomain = errors.New("unknown preference domain")
)

// SchemaErrorKind classifies a schema authoring mistake.
type SchemaErrorKind string

const (
	KindNoDefault          SchemaErrorKind = "no_default"
	KindMultipleDefaults   SchemaErrorKind = "multiple_defaults"
	KindDuplicateOption    SchemaErrorKind = "duplicate_option"
	KindDuplicateDomain    SchemaErrorKind = "duplicate_domain"
	KindEmptyKey           SchemaErrorKind = "empty_key"
	KindEmptyOptionID      SchemaErrorKind = "empty_option_id"
	KindConditionalDefault SchemaErrorKind = "conditional_default"
)

// SchemaError reports a domain declaration that breaks the registry
// invariants. These are caught when the registry is built, never on reads.
type SchemaError struct {
	Kind   SchemaErrorKind
	Domain string
	Option string // optional
}

func (e *SchemaError) Error() string {
	if e == nil {
		return "<nil>"
	}
	base := fmt.Sprintf("preference schema: domain %q: %s", e.Domain, e.Kind)
	if e.Option != "" {
		base += fmt.Sprintf(" (option=%s)", e.Option)
	}
	return base
}

func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}

// IsKind reports whether err contains a SchemaError of the given kind.
// It looks through errors.Join results.
func IsKind(err error, kind SchemaErrorKind) bool {
	if err == nil {
		return false
	}
	var se *SchemaError
	if errors.As(err, &se) && se.Kind == kind {
		return true
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if IsKind(e, kind) {
				return true
			}
		}
	}
	return false
}
