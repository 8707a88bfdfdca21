package services

import (
	"errors"
	"fmt"
)

// ServiceError is a sentinel error returned by the enrollment services.
type ServiceError string

// Error implements the error interface
func (e ServiceError) Error() string {
	return string(e)
}

const (
	ErrParticipantNotFound ServiceError = "participant not found"
	ErrApplicationNotFound ServiceError = "application not found"
	ErrInstitutionNotFound ServiceError = "institution not found"
	ErrClassNotFound       ServiceError = "class not found in institution"
	ErrInvalidStatus       ServiceError = "status must not be empty"
	ErrInvalidApplication  ServiceError = "invalid application"
	ErrOrderingConflict    ServiceError = "waitlist is busy, retry the request"
)

// PersistenceError wraps a database failure with the step that failed.
// Nothing is committed when one is returned.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsNotFound reports whether err is one of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrParticipantNotFound) ||
		errors.Is(err, ErrApplicationNotFound) ||
		errors.Is(err, ErrInstitutionNotFound) ||
		errors.Is(err, ErrClassNotFound)
}
