package domain

import (
	"errors"
	"fmt"
)

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// ErrNotFound is the sentinel error for missing resources.
var ErrNotFound = NotFoundError{}

var (
	// ErrDuplicateKey is returned when a uniqueness constraint rejects an insert.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrAlreadyDone is the feature-level form of a saturated counter or a no-op conditional set.
	ErrAlreadyDone = errors.New("already done")
	// ErrRevisionConflict is returned once the compare-and-swap loop gives up.
	ErrRevisionConflict = errors.New("revision conflict")
	ErrInvalidArgument  = errors.New("invalid argument")
)

// Outcome reports how a conditional status write was resolved.
type Outcome int

const (
	OutcomeInserted Outcome = iota + 1
	OutcomeUpdated
	OutcomeUnchanged
	OutcomeAlreadyAtCap
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeUpdated:
		return "updated"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeAlreadyAtCap:
		return "already_at_cap"
	default:
		return "unknown"
	}
}

// Applied is true when the write changed the stored record.
func (o Outcome) Applied() bool {
	return o == OutcomeInserted || o == OutcomeUpdated
}
