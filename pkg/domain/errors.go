package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidBackup is matched by every ValidationError raised for a malformed
// import document.
var ErrInvalidBackup = errors.New("Invalid backup file") //nolint:staticcheck // user-facing message

// StorageError reports that the underlying engine could not be opened, read or
// written. Single-record operations leave no partial commit behind.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("storage %s failed", e.Op)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError wraps err as a StorageError for op. A nil err yields nil and
// an existing StorageError is returned unchanged.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// ValidationError reports input that was rejected before any state changed.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrInvalidBackup) match backup validation failures.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidBackup && e.Reason == ErrInvalidBackup.Error()
}

// InvalidBackup builds the ValidationError returned for malformed snapshots.
func InvalidBackup(cause error) *ValidationError {
	return &ValidationError{Reason: ErrInvalidBackup.Error(), Err: cause}
}

// IsStorageError reports whether err carries a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// IsValidationError reports whether err carries a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
