/*
Package ledger provides the core ledger transaction engine.

PURPOSE:
  This package contains domain-agnostic types and algorithms for managing
  double-entry accounting documents. Whether the document is a loan
  release, a journal voucher, or an official receipt, the same engine
  handles creation, mutation, soft-deletion, tally validation, and batch
  reconciliation of offline edits.

KEY CONCEPTS IN THIS FILE (types.go):
  - Document: Header record for one accounting transaction
  - Entry: One debit-or-credit line belonging to a Document
  - ScheduleEntry: A weekly amortization due date (loan releases only)
  - Kind: Configuration value describing one document kind
  - Actor: Who performed a mutation (for activity records)

DESIGN PRINCIPLES:
  1. One engine, many kinds: document kinds differ only by configuration
     (Kind), never by code path
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Soft deletion: Records are never removed, only marked deleted
  4. Auditability: Every mutation emits an activity record

SEE ALSO:
  - tally.go:    Balance validation over entry sets
  - engine.go:   Atomic create/update/delete of documents with entries
  - sync.go:     Batch reconciliation of offline-authored changes
  - registry.go: Kind registration and code uniqueness
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type DocumentID string
type EntryID string

// Actor identifies who performed a mutation. Authentication happens
// upstream; the engine only records the identity it is handed.
type Actor struct {
	ID   string
	Name string
}

// =============================================================================
// KIND - Configuration value for one document kind
// =============================================================================

// Kind describes one document kind. The engine treats all kinds
// identically; a Kind only parameterizes the discriminator stored with
// each record, the human-readable code prefix, and whether a payment
// schedule is generated at create time.
type Kind struct {
	// ID is the discriminator stored on documents and entries,
	// e.g. "loan_release".
	ID string

	// Name is the human-readable kind name used in activity records.
	Name string

	// CodePrefix is prepended to bare numeric codes, e.g. "LR#".
	// Document codes are unique across ALL kinds while not deleted.
	CodePrefix string

	// HasSchedule is true for kinds that generate a weekly payment
	// schedule at create time (loan releases).
	HasSchedule bool
}

// =============================================================================
// DOCUMENT - Header record for one accounting transaction
// =============================================================================

// Document is the header of one accounting transaction. Its Amount must
// reconcile with its surviving entries at every committed state (see
// tally.go). Documents are never hard-deleted: deletion sets DeletedAt
// and cascades to the entries (and schedule, for loan releases).
type Document struct {
	ID   DocumentID
	Kind string // Kind.ID discriminator
	Code string // normalized, unique across kinds while live

	Amount decimal.Decimal

	// Descriptive/reference fields.
	Date        time.Time
	PeriodMonth int
	PeriodYear  int
	CheckNumber string
	BankCode    string
	PayeeRef    string // counterparty reference
	Remarks     string

	// Term length in weeks; drives schedule generation for loan releases.
	NoOfWeeks int

	// Version increments on every header update. Callers that supply the
	// version they read get optimistic-concurrency protection; see
	// DocumentPatch.ExpectedVersion.
	Version int

	CreatedBy string
	CreatedAt time.Time
	DeletedAt *time.Time

	// Hydrated by the engine on Create/Update and by GetDocument.
	Entries  []Entry         `json:"entries,omitempty"`
	Schedule []ScheduleEntry `json:"schedule,omitempty"`
}

// Deleted reports whether the document is soft-deleted.
func (d *Document) Deleted() bool { return d.DeletedAt != nil }

// =============================================================================
// ENTRY - One debit-or-credit line
// =============================================================================

// Entry is a single line of a document. Line numbers are unique within
// the owning document among surviving entries. Exactly one of Debit and
// Credit is expected to be nonzero by accounting convention, though both
// are stored. Entries are individually soft-deletable and are never
// reparented to a different document.
type Entry struct {
	ID         EntryID
	DocumentID DocumentID
	Kind       string

	Line        int
	AccountCode string
	Debit       decimal.Decimal
	Credit      decimal.Decimal

	// Optional counterparty/client reference.
	ClientRef string

	// Optional due-date/week reference for loan-related entries.
	Week    int
	DueDate *time.Time

	DeletedAt *time.Time
}

// Deleted reports whether the entry is soft-deleted.
func (e *Entry) Deleted() bool { return e.DeletedAt != nil }

// =============================================================================
// SCHEDULE ENTRY - Weekly amortization due date (loan release only)
// =============================================================================

// ScheduleEntry is one week of a loan release's amortization schedule.
// Generated once at release creation; the paid flag is flipped later by
// receipt application, which is outside this engine.
type ScheduleEntry struct {
	ID         string
	DocumentID DocumentID
	Week       int
	DueDate    time.Time
	Paid       bool
	DeletedAt  *time.Time
}

// =============================================================================
// PATCHES - Partial updates applied by the mutation engine
// =============================================================================

// DocumentPatch is a partial header update. Nil fields are left
// untouched.
type DocumentPatch struct {
	Code        *string
	Amount      *decimal.Decimal
	Date        *time.Time
	PeriodMonth *int
	PeriodYear  *int
	CheckNumber *string
	BankCode    *string
	PayeeRef    *string
	Remarks     *string

	// ExpectedVersion, when nonzero, makes the update fail with
	// ErrConcurrentModification if the stored version differs.
	// Zero keeps last-writer-wins behavior.
	ExpectedVersion int
}

// EntryPatch is a partial update to one entry, addressed by ID.
type EntryPatch struct {
	ID EntryID

	Line        *int
	AccountCode *string
	Debit       *decimal.Decimal
	Credit      *decimal.Decimal
	ClientRef   *string
	Week        *int
	DueDate     *time.Time
}

// EntryDiff describes the entry mutations of one Update call.
type EntryDiff struct {
	Create    []Entry
	Update    []EntryPatch
	DeleteIDs []EntryID
}

// Empty reports whether the diff contains no mutations.
func (d EntryDiff) Empty() bool {
	return len(d.Create) == 0 && len(d.Update) == 0 && len(d.DeleteIDs) == 0
}

// =============================================================================
// ACTIVITY - Audit record of one mutation
// =============================================================================

// Activity records who did what to which documents. Activities are
// written through the same transaction as the mutation they describe,
// so an activity write failure rolls the mutation back.
type Activity struct {
	ID       string
	ActorID  string
	Action   string
	Resource string // Kind.ID
	RefIDs   []string
	At       time.Time
}

// =============================================================================
// CASH LEG LOOKUP
// =============================================================================

// CashLegFunc reports whether an account code is flagged as an actual
// cash or bank movement, as opposed to an internal/ledger-only account.
// The chart of accounts is an external collaborator; documents provides
// a concrete implementation.
type CashLegFunc func(accountCode string) bool
