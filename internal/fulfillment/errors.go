package fulfillment

import (
	"fmt"
	"strings"
)

// ValidationError reports bad input shape or values. Always user-fixable.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// DataIntegrityError reports a referenced row missing required linkage,
// e.g. a work order line with no shop. Indicates upstream corruption.
type DataIntegrityError struct {
	Entity string
	ID     string
	Msg    string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Entity, e.ID, e.Msg)
}

// MissingSupplierError reports that a shortfall exists but no supplier
// could be resolved for any missing part. No purchase order is created.
type MissingSupplierError struct {
	UnresolvedParts []string
}

func (e *MissingSupplierError) Error() string {
	return "no supplier resolvable for parts: " + strings.Join(e.UnresolvedParts, ", ")
}

// ReceiptConflictError reports a receipt id already consumed by a
// different request item. Only a retry against the same item dedups;
// reusing a key across items is rejected outright.
type ReceiptConflictError struct {
	ReceiptID string
	ItemID    string
}

func (e *ReceiptConflictError) Error() string {
	return fmt.Sprintf("receipt id %s already recorded against item %s", e.ReceiptID, e.ItemID)
}

// OverReceiveError reports a receive quantity exceeding the remaining
// quantity on the request item.
type OverReceiveError struct {
	Requested float64
	Remaining float64
}

func (e *OverReceiveError) Error() string {
	return fmt.Sprintf("qty %g exceeds remaining %g", e.Requested, e.Remaining)
}

// StorageError wraps a failed database operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
