package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidTransition: the action is not legal from the current state for this role.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrUnauthorized: the actor lacks the company or role the action needs.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConcurrentModification: the request changed since it was read.
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrNotFound: nonexistent, or outside the actor's visibility. The two are indistinguishable.
	ErrNotFound = errors.New("not found")
)

// ValidationReason classifies a ValidationError.
type ValidationReason string

const (
	ReasonMissingReason    ValidationReason = "MissingReason"
	ReasonMissingRequired  ValidationReason = "MissingRequired"
	ReasonMissingInput     ValidationReason = "MissingInput"
	ReasonInvalidNumber    ValidationReason = "InvalidNumber"
	ReasonInvalidDate      ValidationReason = "InvalidDate"
	ReasonInvalidBool      ValidationReason = "InvalidBool"
	ReasonInvalidChoice    ValidationReason = "InvalidChoice"
	ReasonInvalidJSON      ValidationReason = "InvalidJSON"
	ReasonUnknownField     ValidationReason = "UnknownField"
	ReasonInvalidField     ValidationReason = "InvalidFieldDefinition"
	ReasonInvariantBreach  ValidationReason = "InvariantViolation"
	ReasonInvalidReference ValidationReason = "InvalidReference"
)

// ValidationError is a recoverable input problem surfaced to the actor.
type ValidationError struct {
	Field   string           `json:"field,omitempty"`
	Reason  ValidationReason `json:"reason"`
	Detail  string           `json:"detail,omitempty"`
	Missing []string         `json:"missing,omitempty"` // labels, for MissingRequired
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("validation error: ")
	b.WriteString(string(e.Reason))
	if e.Field != "" {
		fmt.Fprintf(&b, " (%s)", e.Field)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if len(e.Missing) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Missing, ", "))
	}
	return b.String()
}

func NewValidationError(field string, reason ValidationReason, detail string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, Detail: detail}
}

// AsValidationError unwraps err into a *ValidationError.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
