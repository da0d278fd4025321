/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every error raised inside a transactional operation aborts and rolls
  back that entire transaction; nothing is partially committed.

ERROR CATEGORIES:
  1. Contract violations - Caller passed input upstream validation
     should have rejected (empty entries)
  2. Tally errors        - A balance condition failed on the final
     surviving entry set
  3. Persistence errors  - An insert/update/delete affected fewer rows
     than requested (lost update or stale reference)
  4. Uniqueness/lookup   - Duplicate code, missing document or entry

USAGE:
  Callers map errors with errors.Is/As:

    var tallyErr *ledger.TallyError
    if errors.As(err, &tallyErr) {
        log.Printf("out of balance: %s", tallyErr.Condition)
    }

SEE ALSO:
  - engine.go: Raises these during create/update/delete
  - sync.go:   Bubbles them out of batch reconciliation
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrEmptyEntries is returned when a create call carries no entries.
	ErrEmptyEntries = errors.New("document must have at least one entry")

	// ErrTallyMismatch is returned when a balance condition fails on the
	// surviving entry set. Wrapped by TallyError, which names the
	// condition.
	ErrTallyMismatch = errors.New("entries do not tally with document amount")

	// ErrPersistence is returned when a write affected fewer rows than
	// requested. Wrapped by PersistenceError.
	ErrPersistence = errors.New("persisted row count mismatch")

	// ErrCodeTaken is returned when a document code is already in use by
	// any kind's live documents. Wrapped by CodeTakenError.
	ErrCodeTaken = errors.New("document code already in use")

	// ErrNotFound is returned when a referenced document or entry is
	// missing or already soft-deleted. Wrapped by NotFoundError.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateLine is returned when two surviving entries of one
	// document share a line number. Wrapped by DuplicateLineError.
	ErrDuplicateLine = errors.New("duplicate entry line number")

	// ErrConcurrentModification is returned when an update supplies an
	// expected version and the stored version differs.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrKindNotRegistered is returned when a kind discriminator has no
	// registered Kind configuration.
	ErrKindNotRegistered = errors.New("document kind not registered")
)

// =============================================================================
// TALLY CONDITIONS
// =============================================================================

// TallyCondition names one of the three balance conditions.
type TallyCondition string

const (
	CondDebitCredit    TallyCondition = "debit_credit_balanced"
	CondNetDebitCredit TallyCondition = "net_debit_credit_balanced"
	CondNetAmount      TallyCondition = "net_amount_balanced"
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// TallyError reports which balance condition failed, against which
// declared header amount.
type TallyError struct {
	Condition TallyCondition
	Amount    decimal.Decimal
	Result    TallyResult
}

func (e *TallyError) Error() string {
	return fmt.Sprintf("tally mismatch: %s failed against amount %s", e.Condition, e.Amount)
}

func (e *TallyError) Unwrap() error { return ErrTallyMismatch }

// PersistenceError reports a row-count mismatch on a bulk write. This
// detects silent partial failure of an insert batch, re-deletion of an
// already-deleted entry, or an update against a stale reference.
type PersistenceError struct {
	Op   string
	Want int64
	Got  int64
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: expected %d rows, got %d", e.Op, e.Want, e.Got)
}

func (e *PersistenceError) Unwrap() error { return ErrPersistence }

// CodeTakenError reports a duplicate document code. Codes share one
// uniqueness namespace across every document kind.
type CodeTakenError struct {
	Code string
}

func (e *CodeTakenError) Error() string {
	return fmt.Sprintf("code %q is already used by a live document", e.Code)
}

func (e *CodeTakenError) Unwrap() error { return ErrCodeTaken }

// NotFoundError reports a missing or soft-deleted record.
type NotFoundError struct {
	Resource string // "document", "entry"
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// DuplicateLineError reports a line number shared by two surviving
// entries of the same document.
type DuplicateLineError struct {
	DocumentID DocumentID
	Line       int
}

func (e *DuplicateLineError) Error() string {
	return fmt.Sprintf("document %s has duplicate entries on line %d", e.DocumentID, e.Line)
}

func (e *DuplicateLineError) Unwrap() error { return ErrDuplicateLine }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input
// rather than a storage fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrEmptyEntries) ||
		errors.Is(err, ErrTallyMismatch) ||
		errors.Is(err, ErrCodeTaken) ||
		errors.Is(err, ErrDuplicateLine) ||
		errors.Is(err, ErrConcurrentModification)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
