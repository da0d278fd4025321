/*
store.go - Persistence interface for documents, entries, and schedules

PURPOSE:
  Defines the interface between the engine and the database. Different
  implementations use SQLite, PostgreSQL, or in-memory storage.

TRANSACTION MODEL:
  Every engine operation runs inside one transaction acquired through
  TxStore.WithTx. The Store handed to the callback is scoped to that
  transaction; every read inside it sees the transaction's own writes.
  The transaction handle is always passed explicitly this way, never
  held in ambient state, so the engine is safely callable from
  concurrent requests.

ROW COUNTS:
  Bulk writes return the number of rows actually affected. The engine
  compares that against the number requested and fails the transaction
  on mismatch - a mismatch means a silent partial insert, a re-deletion
  of an already-deleted entry, or an update against a stale reference.

SOFT DELETION:
  Nothing is ever physically removed. SoftDeleteEntries touches only
  live entries (so the count check catches double deletion), while the
  Cascade variants are unconditional, matching the delete-cascade rule.

IMPLEMENTATIONS:
  - store/sqlite:        Production SQLite
  - store/postgres:      Production PostgreSQL
  - ledger/store/memory: In-memory for testing/dev

SEE ALSO:
  - engine.go: The only writer through this interface
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Transaction-scoped persistence operations
// =============================================================================

// Store is the persistence surface the engine mutates through. All
// methods must observe the transaction the Store is scoped to.
type Store interface {
	// InsertDocument persists a document header.
	InsertDocument(ctx context.Context, doc Document) error

	// InsertEntries persists entries, returning the number inserted.
	InsertEntries(ctx context.Context, entries []Entry) (int64, error)

	// InsertSchedule persists schedule entries, returning the number
	// inserted.
	InsertSchedule(ctx context.Context, schedule []ScheduleEntry) (int64, error)

	// InsertActivity persists one activity record.
	InsertActivity(ctx context.Context, act Activity) error

	// GetDocument returns a live (not soft-deleted) document header.
	// Returns a NotFoundError when missing or deleted.
	GetDocument(ctx context.Context, kind string, id DocumentID) (*Document, error)

	// LoadEntries returns the surviving entries of a document, ordered
	// by line number.
	LoadEntries(ctx context.Context, id DocumentID) ([]Entry, error)

	// LoadSchedule returns the surviving schedule of a document, ordered
	// by week.
	LoadSchedule(ctx context.Context, id DocumentID) ([]ScheduleEntry, error)

	// ListDocuments returns the live document headers of one kind.
	ListDocuments(ctx context.Context, kind string) ([]Document, error)

	// ListActivities returns the activity records touching a document,
	// newest first.
	ListActivities(ctx context.Context, kind string, id DocumentID) ([]Activity, error)

	// UpdateDocument applies a header patch to a live document and
	// increments its version. When patch.ExpectedVersion is nonzero the
	// match is further restricted to that version. Returns rows matched.
	UpdateDocument(ctx context.Context, kind string, id DocumentID, patch DocumentPatch) (int64, error)

	// UpdateEntry applies a patch to one live entry of the document.
	// Returns rows matched.
	UpdateEntry(ctx context.Context, id DocumentID, patch EntryPatch) (int64, error)

	// SoftDeleteEntries marks the given live entries deleted. Entries
	// already deleted are not matched. Returns rows matched.
	SoftDeleteEntries(ctx context.Context, id DocumentID, entryIDs []EntryID, at time.Time) (int64, error)

	// CascadeDeleteEntries marks every entry of the document deleted,
	// regardless of its own delete state. Returns rows touched.
	CascadeDeleteEntries(ctx context.Context, id DocumentID, at time.Time) (int64, error)

	// CascadeDeleteSchedule marks every schedule entry of the document
	// deleted. Returns rows touched.
	CascadeDeleteSchedule(ctx context.Context, id DocumentID, at time.Time) (int64, error)

	// SoftDeleteDocuments marks the given live documents of one kind
	// deleted. Returns rows matched.
	SoftDeleteDocuments(ctx context.Context, kind string, ids []DocumentID, at time.Time) (int64, error)

	// CodeInUse reports whether any kind has a live document with the
	// given (already normalized) code. One namespace across all kinds.
	CodeInUse(ctx context.Context, code string) (bool, error)
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore provides transactions over a Store.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. The Store passed to fn is
	// scoped to that transaction. If fn returns an error the transaction
	// is rolled back wholesale; otherwise it is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// NOTIFIER - Post-commit activity fan-out
// =============================================================================

// Notifier receives activity records after a transaction commits.
// Unlike the in-transaction activity log, a notifier failure cannot
// roll back the mutation; errors are logged and dropped.
type Notifier interface {
	Notify(ctx context.Context, act Activity) error
}
