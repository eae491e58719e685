package enroll

import (
	"errors"
	"fmt"
)

var (
	// ErrOrphanedVector is matched by an OrphanError.
	ErrOrphanedVector = errors.New("orphaned vector")
	// ErrAlreadyEnrolled is returned by EnrollFile when the file already has a record.
	ErrAlreadyEnrolled = errors.New("already enrolled")
)

// OrphanError reports a vector that was indexed but whose durable record
// could not be written. The vector stays searchable until the next Reconcile.
type OrphanError struct {
	Position int
	ItemID   string
	TenantID string
	Err      error
}

func (e *OrphanError) Error() string {
	return fmt.Sprintf("orphaned vector at position %d (item %s): %v", e.Position, e.ItemID, e.Err)
}

// Is reports whether target is ErrOrphanedVector.
func (e *OrphanError) Is(target error) bool {
	return target == ErrOrphanedVector
}

func (e *OrphanError) Unwrap() error {
	return e.Err
}
