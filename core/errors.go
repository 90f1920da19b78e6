package core

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// NotFoundError is returned when a resource does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func NewNotFoundError(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

func (err NotFoundError) Error() string {
	if err.ID == "" {
		return err.Resource + " not found"
	}
	return fmt.Sprintf("%s not found: %s", err.Resource, err.ID)
}

// ForbiddenError is returned when the actor is not allowed to perform an action.
type ForbiddenError struct {
	Message string
}

func NewForbiddenError(msg string) error {
	return &ForbiddenError{Message: msg}
}

func (err ForbiddenError) Error() string { return err.Message }

// ConflictError is returned on concurrent modifications and duplicate requests.
type ConflictError struct {
	Message string
}

func NewConflictError(msg string) error {
	return &ConflictError{Message: msg}
}

func (err ConflictError) Error() string { return err.Message }

// BusinessRuleError is returned when a state transition or rule is violated.
type BusinessRuleError struct {
	Code    string
	Message string
}

func NewBusinessRuleError(code, msg string) error {
	return &BusinessRuleError{Code: code, Message: msg}
}

func (err BusinessRuleError) Error() string { return err.Message }

// RateLimitError is returned when a client exceeded its request quota.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (err RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %ds", int(err.RetryAfter.Seconds()))
}

// IsValidationError reports whether err comes from the validator or is a ValidationError.
func IsValidationError(err error) bool {
	switch errors.Cause(err).(type) {
	case *ValidationError, validator.ValidationErrors:
		return true
	}
	return false
}

func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

func IsForbidden(err error) bool {
	_, ok := errors.Cause(err).(*ForbiddenError)
	return ok
}

func IsConflict(err error) bool {
	_, ok := errors.Cause(err).(*ConflictError)
	return ok
}

func IsBusinessRule(err error) bool {
	_, ok := errors.Cause(err).(*BusinessRuleError)
	return ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
