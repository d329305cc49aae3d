package gerror

import (
	"errors"
)

const (
	ErrCodeInternal                  Code = "Internal"
	ErrCodeValidationFailed          Code = "ValidationFailed"
	ErrCodeNotFound                  Code = "NotFound"
	ErrCodeAlreadyExists             Code = "AlreadyExists"
	ErrCodeOptimisticLockFailed      Code = "OptimisticLockFailed"
	ErrCodeInvalidConfiguration      Code = "InvalidConfiguration"
	ErrCodeVariableCompositionFailed Code = "VariableCompositionFailed"
	ErrCodeInvalidStatusTransition   Code = "InvalidStatusTransition"
)

// ToError locates an Error in the provided error chain and returns it if it
// matches the provided code. Otherwise, returns nil.
func ToError(err error, code Code) *Error {
	if err == nil {
		return nil
	}
	var gErr Error
	if errors.As(err, &gErr) && gErr.Code() == code {
		return &gErr
	}
	return nil
}

func NewErrInternal() Error {
	return NewError("An internal server error occurred", AudienceExternal, ErrCodeInternal, nil)
}

func ToInternal(err error) *Error {
	return ToError(err, ErrCodeInternal)
}

func IsInternal(err error) bool {
	return ToInternal(err) != nil
}

func NewErrValidationFailed(message string) Error {
	return NewError(message, AudienceExternal, ErrCodeValidationFailed, nil)
}

func ToValidationFailed(err error) *Error {
	return ToError(err, ErrCodeValidationFailed)
}

func IsValidationFailed(err error) bool {
	return ToValidationFailed(err) != nil
}

func NewErrNotFound(message string) Error {
	return NewError(message, AudienceExternal, ErrCodeNotFound, nil)
}

func ToNotFound(err error) *Error {
	return ToError(err, ErrCodeNotFound)
}

func IsNotFound(err error) bool {
	return ToNotFound(err) != nil
}

func NewErrAlreadyExists(message string) Error {
	return NewError(message, AudienceExternal, ErrCodeAlreadyExists, nil)
}

func ToAlreadyExists(err error) *Error {
	return ToError(err, ErrCodeAlreadyExists)
}

func IsAlreadyExists(err error) bool {
	return ToAlreadyExists(err) != nil
}

func NewErrOptimisticLockFailed(message string) Error {
	return NewError(message, AudienceExternal, ErrCodeOptimisticLockFailed, nil)
}

func ToOptimisticLockFailed(err error) *Error {
	return ToError(err, ErrCodeOptimisticLockFailed)
}

func IsOptimisticLockFailed(err error) bool {
	return ToOptimisticLockFailed(err) != nil
}

// NewErrInvalidConfiguration is returned for configuration problems (unknown drivers, key managers,
// output formats etc.). These are never retried.
func NewErrInvalidConfiguration(message string) Error {
	return NewError(message, AudienceInternal, ErrCodeInvalidConfiguration, nil)
}

func ToInvalidConfiguration(err error) *Error {
	return ToError(err, ErrCodeInvalidConfiguration)
}

func IsInvalidConfiguration(err error) bool {
	return ToInvalidConfiguration(err) != nil
}

// NewErrVariableCompositionFailed is returned when any variable source fails while composing the
// variables for a job. The failed source and the cause only appear in the internal error text.
func NewErrVariableCompositionFailed(source string, err error) Error {
	return NewError("Job setup failed", AudienceExternal, ErrCodeVariableCompositionFailed, nil).
		IDetail("source", source).
		Wrap(err)
}

func ToVariableCompositionFailed(err error) *Error {
	return ToError(err, ErrCodeVariableCompositionFailed)
}

func IsVariableCompositionFailed(err error) bool {
	return ToVariableCompositionFailed(err) != nil
}

func NewErrInvalidStatusTransition(message string) Error {
	return NewError(message, AudienceExternal, ErrCodeInvalidStatusTransition, nil)
}

func ToInvalidStatusTransition(err error) *Error {
	return ToError(err, ErrCodeInvalidStatusTransition)
}

func IsInvalidStatusTransition(err error) bool {
	return ToInvalidStatusTransition(err) != nil
}
