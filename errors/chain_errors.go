package errors

import (
	"errors"
	"fmt"
)

// ChainErrorCode represents standardized error codes for the client backend
type ChainErrorCode string

const (
	// Terminal per-block rejections. Reported to the submitter; the pipeline
	// continues with the next block.
	ErrCodeInvalidHeader     ChainErrorCode = "invalid_header"
	ErrCodeStateRootMismatch ChainErrorCode = "state_root_mismatch"
	ErrCodeExecutionTrap     ChainErrorCode = "execution_trap"

	// Storage errors. IO is retryable with bounded backoff; retry exhaustion
	// and corruption halt further imports.
	ErrCodeIO            ChainErrorCode = "io_error"
	ErrCodeIOExhausted   ChainErrorCode = "io_retries_exhausted"
	ErrCodeTrieCorrupted ChainErrorCode = "trie_corruption"

	// Invariant violations. These indicate a bug and are fatal.
	ErrCodeInvalidStatusTransition ChainErrorCode = "invalid_status_transition"

	// Facade state
	ErrCodeHalted        ChainErrorCode = "imports_halted"
	ErrCodeBlockNotFound ChainErrorCode = "block_not_found"
)

// ChainError is a coded error carried across the backend's package boundaries.
type ChainError struct {
	Code    ChainErrorCode
	Message string
	Err     error
}

// Error implements the error interface
func (e *ChainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *ChainError) Unwrap() error {
	return e.Err
}

// Is matches two ChainErrors by code, so package-level sentinels work as
// errors.Is targets.
func (e *ChainError) Is(target error) bool {
	var ce *ChainError
	if !errors.As(target, &ce) {
		return false
	}
	return e.Code == ce.Code
}

// Sentinels for errors.Is checks.
var (
	ErrInvalidHeader           = &ChainError{Code: ErrCodeInvalidHeader, Message: "header failed validation"}
	ErrStateRootMismatch       = &ChainError{Code: ErrCodeStateRootMismatch, Message: "declared state root does not match execution"}
	ErrExecutionTrap           = &ChainError{Code: ErrCodeExecutionTrap, Message: "runtime execution trapped"}
	ErrIO                      = &ChainError{Code: ErrCodeIO, Message: "storage backend i/o failure"}
	ErrIOExhausted             = &ChainError{Code: ErrCodeIOExhausted, Message: "storage backend i/o retries exhausted"}
	ErrTrieCorrupted           = &ChainError{Code: ErrCodeTrieCorrupted, Message: "referenced trie node missing"}
	ErrInvalidStatusTransition = &ChainError{Code: ErrCodeInvalidStatusTransition, Message: "illegal block status transition"}
	ErrHalted                  = &ChainError{Code: ErrCodeHalted, Message: "imports halted after fatal storage error"}
	ErrBlockNotFound           = &ChainError{Code: ErrCodeBlockNotFound, Message: "block not found"}
)

// New creates a coded error with a formatted message.
func New(code ChainErrorCode, format string, args ...interface{}) error {
	return &ChainError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a coded error wrapping an underlying cause.
func Wrap(code ChainErrorCode, err error, format string, args ...interface{}) error {
	return &ChainError{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// IsRejection reports whether err is a terminal per-block rejection that the
// pipeline recovers from locally.
func IsRejection(err error) bool {
	return errors.Is(err, ErrInvalidHeader) ||
		errors.Is(err, ErrStateRootMismatch) ||
		errors.Is(err, ErrExecutionTrap)
}

// IsFatal reports whether err must halt further imports until restart.
func IsFatal(err error) bool {
	return errors.Is(err, ErrIOExhausted) ||
		errors.Is(err, ErrTrieCorrupted) ||
		errors.Is(err, ErrInvalidStatusTransition)
}

// IsRetryable reports whether err is a transient storage fault eligible for
// bounded backoff retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrIO) && !errors.Is(err, ErrIOExhausted)
}
