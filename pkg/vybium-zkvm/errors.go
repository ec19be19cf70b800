package vybiumzkvm

import (
	"context"
	"errors"
	"fmt"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/ctl"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/generation"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/tables"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/vm"
)

// ErrorCode represents a Vybium zkVM error code
type ErrorCode int

const (
	// ErrCodeUnknown represents an unknown error
	ErrCodeUnknown ErrorCode = iota

	// ErrCodeInvalidConfig represents an invalid configuration error
	ErrCodeInvalidConfig

	// ErrCodeInvalidInput represents a malformed program or transaction
	ErrCodeInvalidInput

	// ErrCodeStorage represents a storage backend failure
	ErrCodeStorage

	// ErrCodeExecution represents an execution fault
	ErrCodeExecution

	// ErrCodeTraceGeneration represents a table generator failure
	ErrCodeTraceGeneration

	// ErrCodeChallengeUnavailable represents a two-phase table finalized
	// without its challenge
	ErrCodeChallengeUnavailable

	// ErrCodeLookupMismatch represents a failed cross-table lookup check
	ErrCodeLookupMismatch
)

// String returns the name of the code
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeInvalidConfig:
		return "invalid config"
	case ErrCodeInvalidInput:
		return "invalid input"
	case ErrCodeStorage:
		return "storage"
	case ErrCodeExecution:
		return "execution"
	case ErrCodeTraceGeneration:
		return "trace generation"
	case ErrCodeChallengeUnavailable:
		return "challenge unavailable"
	case ErrCodeLookupMismatch:
		return "lookup mismatch"
	default:
		return "unknown"
	}
}

// VMError represents a Vybium zkVM error
type VMError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error returns the error message
func (e *VMError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("vybium-zkvm error [%s]: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("vybium-zkvm error [%s]: %s", e.Code, e.Message)
}

// Unwrap returns the cause of the error
func (e *VMError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error
func (e *VMError) Is(target error) bool {
	t, ok := target.(*VMError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Sentinels for errors.Is matching on the code alone
var (
	ErrInvalidConfig        = &VMError{Code: ErrCodeInvalidConfig}
	ErrInvalidInput         = &VMError{Code: ErrCodeInvalidInput}
	ErrStorage              = &VMError{Code: ErrCodeStorage}
	ErrExecution            = &VMError{Code: ErrCodeExecution}
	ErrTraceGeneration      = &VMError{Code: ErrCodeTraceGeneration}
	ErrChallengeUnavailable = &VMError{Code: ErrCodeChallengeUnavailable}
	ErrLookupMismatch       = &VMError{Code: ErrCodeLookupMismatch}
)

func newError(code ErrorCode, message string, cause error) *VMError {
	return &VMError{Code: code, Message: message, Cause: cause}
}

// generationError classifies an error returned by trace generation
func generationError(err error) *VMError {
	switch {
	case errors.Is(err, tables.ErrChallengeUnavailable):
		return newError(ErrCodeChallengeUnavailable, "table finalized without challenge", err)
	case errors.Is(err, ctl.ErrLookupMismatch):
		return newError(ErrCodeLookupMismatch, "cross-table lookup check failed", err)
	case errors.Is(err, generation.ErrInvariant):
		return newError(ErrCodeTraceGeneration, "table generator failed", err)
	default:
		return newError(ErrCodeTraceGeneration, "trace generation failed", err)
	}
}

// executionError classifies an error returned by the execution engine
func executionError(err error) *VMError {
	var fault *vm.ExecError
	if errors.As(err, &fault) {
		return newError(ErrCodeExecution, "execution fault", err)
	}
	if errors.Is(err, vm.ErrInvariantViolated) {
		return newError(ErrCodeExecution, "execution invariant violated", err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return newError(ErrCodeExecution, "execution interrupted", err)
	}
	return newError(ErrCodeStorage, "execution failed", err)
}
