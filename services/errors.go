package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ValidationError rejects malformed or incomplete input. Handlers surface
// it as a 400 / *_error event with the reason verbatim.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

var (
	ErrInvalidMessage      = &ValidationError{Reason: "a message requires a body or at least one attachment"}
	ErrInvalidParticipants = &ValidationError{Reason: "a conversation requires two distinct participants"}

	// ErrForbidden means the authorization predicate said no. Distinct from
	// not-found so clients can render "you can't do this".
	ErrForbidden = errors.New("you are not allowed to perform this action")

	ErrNotFound = errors.New("the requested resource does not exist")

	// ErrEditWindowExpired is a domain rule, not a validation failure: the
	// input was fine, the message is just too old to edit.
	ErrEditWindowExpired = errors.New("messages can only be edited within 15 minutes of sending")
)

// StorageError wraps a persistence-gateway failure. It aborts the current
// operation only and is never followed by a fan-out.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// translate maps raw persistence errors into the service taxonomy.
func translate(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return &StorageError{Op: op, Err: err}
}
