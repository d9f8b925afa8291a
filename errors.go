package facet

import (
	"fmt"
)

// ErrorKind categorizes engine errors. Every failure the engine raises is
// an *Error carrying one of these kinds; infrastructure failures are
// wrapped as the Cause.
type ErrorKind string

const (
	// ErrConfiguration: bad attribute definition or unresolvable model
	// substitute. Fatal, operator-facing, never retried.
	ErrConfiguration ErrorKind = "configuration"
	// ErrConflict: slug collision or mismatched redefinition.
	ErrConflict ErrorKind = "conflict"
	// ErrUniqueness: value collision on a unique attribute.
	ErrUniqueness ErrorKind = "uniqueness"
	// ErrTypeMismatch: input not coercible to the attribute datatype.
	ErrTypeMismatch ErrorKind = "type_mismatch"
	// ErrInvalidChoice: enum input not a current member of the group.
	ErrInvalidChoice ErrorKind = "invalid_choice"
	// ErrRequiredField: illegal clear of a required attribute.
	ErrRequiredField ErrorKind = "required_field"
	// ErrUnknownAttribute: slug not applicable to the bound host.
	ErrUnknownAttribute ErrorKind = "unknown_attribute"
	// ErrNotFound: missing row or enum membership.
	ErrNotFound ErrorKind = "not_found"
	// ErrValidation: aggregated façade validation failure.
	ErrValidation ErrorKind = "validation"
)

// Error is the unified engine error.
type Error struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Attribute string    `json:"attribute,omitempty"`
	Cause     error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Attribute != "" {
		return fmt.Sprintf("[%s] attribute %q: %s", e.Kind, e.Attribute, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithCause attaches an underlying error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithAttribute attaches the attribute slug the error concerns.
func (e *Error) WithAttribute(slug string) *Error {
	e.Attribute = slug
	return e
}

// ============================================================================
// Constructors
// ============================================================================

// NewConfigurationError reports a bad definition or unresolvable model.
func NewConfigurationError(message string) *Error {
	return &Error{Kind: ErrConfiguration, Message: message}
}

// NewConflictError reports a slug collision or mismatched redefinition.
func NewConflictError(message string) *Error {
	return &Error{Kind: ErrConflict, Message: message}
}

// NewUniquenessError reports a value collision on a unique attribute.
func NewUniquenessError(slug, message string) *Error {
	return &Error{Kind: ErrUniqueness, Attribute: slug, Message: message}
}

// NewTypeMismatchError reports input that cannot be coerced to the
// attribute's datatype.
func NewTypeMismatchError(slug, message string) *Error {
	return &Error{Kind: ErrTypeMismatch, Attribute: slug, Message: message}
}

// NewInvalidChoiceError reports an enum input outside the group's current
// membership.
func NewInvalidChoiceError(slug, message string) *Error {
	return &Error{Kind: ErrInvalidChoice, Attribute: slug, Message: message}
}

// NewRequiredFieldError reports an attempted clear of a required attribute.
func NewRequiredFieldError(slug string) *Error {
	return &Error{Kind: ErrRequiredField, Attribute: slug, Message: "required attribute cannot be cleared"}
}

// NewUnknownAttributeError reports a slug not applicable to the bound host.
func NewUnknownAttributeError(slug string) *Error {
	return &Error{Kind: ErrUnknownAttribute, Attribute: slug, Message: "attribute not applicable to this entity"}
}

// NewNotFoundError reports a missing row or membership.
func NewNotFoundError(message string) *Error {
	return &Error{Kind: ErrNotFound, Message: message}
}

// ============================================================================
// Predicates
// ============================================================================

func errorKind(err error) (ErrorKind, bool) {
	if fe, ok := err.(*Error); ok {
		return fe.Kind, true
	}
	return "", false
}

// IsConfigurationError checks for ErrConfiguration.
func IsConfigurationError(err error) bool {
	k, ok := errorKind(err)
	return ok && k == ErrConfiguration
}

// IsConflictError checks for ErrConflict.
func IsConflictError(err error) bool {
	k, ok := errorKind(err)
	return ok && k == ErrConflict
}

// IsUniquenessError checks for ErrUniqueness.
func IsUniquenessError(err error) bool {
	k, ok := errorKind(err)
	return ok && k == ErrUniqueness
}

// IsTypeMismatchError checks for ErrTypeMismatch.
func IsTypeMismatchError(err error) bool {
	k, ok := errorKind(err)
	return ok && k == ErrTypeMismatch
}

// IsInvalidChoiceError checks for ErrInvalidChoice.
func IsInvalidChoiceError(err error) bool {
	k, ok := errorKind(err)
	return ok && k == ErrInvalidChoice
}

// IsRequiredFieldError checks for ErrRequiredField.
func IsRequiredFieldError(err error) bool {
	k, ok := errorKind(err)
	return ok && k == ErrRequiredField
}

// IsUnknownAttributeError checks for ErrUnknownAttribute.
func IsUnknownAttributeError(err error) bool {
	k, ok := errorKind(err)
	return ok && k == ErrUnknownAttribute
}

// IsNotFoundError checks for ErrNotFound.
func IsNotFoundError(err error) bool {
	k, ok := errorKind(err)
	return ok && k == ErrNotFound
}

// IsValidationError checks for an aggregated *ValidationError.
func IsValidationError(err error) bool {
	_, ok := err.(*ValidationError)
	return ok
}

// ============================================================================
// ValidationError
// ============================================================================

// Violation is one entry in an aggregated validation failure.
type Violation struct {
	Attribute string    `json:"attribute"`
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: [%s] %s", v.Attribute, v.Kind, v.Message)
}

// ValidationError aggregates every violation found in one validation pass.
// Callers building forms get the complete set in one round trip, not just
// the first failure.
type ValidationError struct {
	Violations []Violation `json:"violations"`
}

// NewValidationError creates an empty aggregate.
func NewValidationError() *ValidationError {
	return &ValidationError{Violations: make([]Violation, 0)}
}

func (ve *ValidationError) Error() string {
	switch len(ve.Violations) {
	case 0:
		return "no violations"
	case 1:
		return "validation failed: " + ve.Violations[0].String()
	}
	return fmt.Sprintf("validation failed: %d violations", len(ve.Violations))
}

// Add appends one violation.
func (ve *ValidationError) Add(attribute string, kind ErrorKind, message string) {
	ve.Violations = append(ve.Violations, Violation{Attribute: attribute, Kind: kind, Message: message})
}

// AddError appends a violation derived from an engine error.
func (ve *ValidationError) AddError(attribute string, err error) {
	if fe, ok := err.(*Error); ok {
		ve.Add(attribute, fe.Kind, fe.Message)
		return
	}
	ve.Add(attribute, ErrValidation, err.Error())
}

// HasViolations reports whether any violation was recorded.
func (ve *ValidationError) HasViolations() bool {
	return len(ve.Violations) > 0
}

// Attributes returns the slugs named by the violations, in order.
func (ve *ValidationError) Attributes() []string {
	slugs := make([]string, 0, len(ve.Violations))
	for _, v := range ve.Violations {
		slugs = append(slugs, v.Attribute)
	}
	return slugs
}

// ToError returns the aggregate as an error when non-empty, nil otherwise.
func (ve *ValidationError) ToError() error {
	if ve.HasViolations() {
		return ve
	}
	return nil
}
