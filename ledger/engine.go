/*
engine.go - Atomic mutation of documents with their entries

PURPOSE:
  The Engine owns create/update/soft-delete of a ledger document
  together with its entries as one atomic unit. Every operation runs
  inside one transaction: either the whole mutation commits or none of
  it does.

THE KEY RULE:
  Tally validation happens only AFTER all entry mutations for an
  operation are applied, against the full surviving entry set reloaded
  from the transaction's own view - never against the delta. A
  multi-step update may be transiently unbalanced while still committing
  a balanced final state; an unbalanced final state always aborts.

ACTIVITY RECORDS:
  Every mutation writes activity records through the same transaction.
  An activity write failure therefore rolls the business mutation back.
  That coupling is inherited behavior, kept deliberately; the optional
  post-commit Notifier is the decoupled alternative and cannot abort
  anything.

ERROR HANDLING:
  Row counts of every bulk write are checked against the requested
  count; a mismatch fails the transaction with a PersistenceError.
  Tally failures surface as TallyError naming the failed condition.

SEE ALSO:
  - tally.go: The balance conditions
  - sync.go:  Batch reconciliation built on the same internals
  - store.go: The persistence interface
*/
package ledger

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine applies atomic mutations to ledger documents. Safe for
// concurrent use; all state lives in the store.
type Engine struct {
	store     TxStore
	isCashLeg CashLegFunc
	now       func() time.Time
	notifier  Notifier
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier attaches a best-effort post-commit activity notifier.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithClock overrides the engine clock. For tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine over the given transactional store.
// isCashLeg is the chart-of-accounts lookup deciding which account
// codes count as cash/bank legs.
func NewEngine(store TxStore, isCashLeg CashLegFunc, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		isCashLeg: isCashLeg,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// =============================================================================
// CREATE
// =============================================================================

// Create persists a document with its entries (and, for scheduled
// kinds, its generated payment schedule) in one transaction and returns
// the hydrated document. The entry set must be non-empty and must tally
// against the header amount.
func (e *Engine) Create(ctx context.Context, kind Kind, doc Document, entries []Entry, actor Actor) (*Document, error) {
	var (
		created *Document
		acts    []Activity
	)
	err := e.store.WithTx(ctx, func(s Store) error {
		var err error
		created, acts, err = e.createTx(ctx, s, kind, doc, entries, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.notify(ctx, acts)
	return created, nil
}

func (e *Engine) createTx(ctx context.Context, s Store, kind Kind, doc Document, entries []Entry, actor Actor) (*Document, []Activity, error) {
	id, acts, err := e.insertTx(ctx, s, kind, doc, entries, actor)
	if err != nil {
		return nil, nil, err
	}
	if err := e.checkTally(ctx, s, id, doc.Amount); err != nil {
		return nil, nil, err
	}
	hydrated, err := e.hydrate(ctx, s, kind, id)
	if err != nil {
		return nil, nil, err
	}
	return hydrated, acts, nil
}

// insertTx persists the document, entries, schedule, and activity trail
// without validating the tally. Callers owe a checkTally once ALL of
// their mutations are applied; createTx does it immediately, batch
// reconciliation defers it past a record's trailing entry edits.
func (e *Engine) insertTx(ctx context.Context, s Store, kind Kind, doc Document, entries []Entry, actor Actor) (DocumentID, []Activity, error) {
	if len(entries) == 0 {
		return "", nil, ErrEmptyEntries
	}

	now := e.now()
	doc.Kind = kind.ID
	doc.Code = NormalizeCode(kind, doc.Code)
	doc.Version = 1
	doc.CreatedBy = actor.ID
	doc.CreatedAt = now
	doc.DeletedAt = nil
	if doc.ID == "" {
		doc.ID = DocumentID(uuid.NewString())
	}

	inUse, err := s.CodeInUse(ctx, doc.Code)
	if err != nil {
		return "", nil, err
	}
	if inUse {
		return "", nil, &CodeTakenError{Code: doc.Code}
	}

	if err := s.InsertDocument(ctx, doc); err != nil {
		return "", nil, err
	}

	for i := range entries {
		entries[i].DocumentID = doc.ID
		entries[i].Kind = kind.ID
		entries[i].DeletedAt = nil
		if entries[i].ID == "" {
			entries[i].ID = EntryID(uuid.NewString())
		}
	}
	n, err := s.InsertEntries(ctx, entries)
	if err != nil {
		return "", nil, err
	}
	if n != int64(len(entries)) {
		return "", nil, &PersistenceError{Op: "insert entries", Want: int64(len(entries)), Got: n}
	}

	if kind.HasSchedule && doc.NoOfWeeks > 0 {
		schedule := GenerateSchedule(doc.Date, doc.NoOfWeeks)
		for i := range schedule {
			schedule[i].ID = uuid.NewString()
			schedule[i].DocumentID = doc.ID
		}
		n, err := s.InsertSchedule(ctx, schedule)
		if err != nil {
			return "", nil, err
		}
		if n != int64(len(schedule)) {
			return "", nil, &PersistenceError{Op: "insert schedule", Want: int64(len(schedule)), Got: n}
		}
	}

	acts := make([]Activity, 0, len(entries)+1)
	acts = append(acts, e.activity(actor, fmt.Sprintf("created %s %s", kind.Name, doc.Code), kind.ID, string(doc.ID)))
	for i := range entries {
		acts = append(acts, e.activity(actor,
			fmt.Sprintf("added entry line %d (%s) to %s", entries[i].Line, entries[i].AccountCode, doc.Code),
			kind.ID, string(doc.ID), string(entries[i].ID)))
	}
	for _, act := range acts {
		if err := s.InsertActivity(ctx, act); err != nil {
			return "", nil, err
		}
	}

	return doc.ID, acts, nil
}

// =============================================================================
// UPDATE
// =============================================================================

// Update applies a header patch and an entry diff in one transaction,
// then re-validates the tally against the full surviving entry set and
// the patched amount. Any failing condition aborts the whole update.
func (e *Engine) Update(ctx context.Context, kind Kind, id DocumentID, patch DocumentPatch, diff EntryDiff, actor Actor) (*Document, error) {
	var (
		updated *Document
		acts    []Activity
	)
	err := e.store.WithTx(ctx, func(s Store) error {
		var err error
		updated, acts, err = e.updateTx(ctx, s, kind, id, patch, diff, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.notify(ctx, acts)
	return updated, nil
}

func (e *Engine) updateTx(ctx context.Context, s Store, kind Kind, id DocumentID, patch DocumentPatch, diff EntryDiff, actor Actor) (*Document, []Activity, error) {
	current, err := s.GetDocument(ctx, kind.ID, id)
	if err != nil {
		return nil, nil, err
	}

	// Code uniqueness is re-checked only when the code actually changes.
	// Both sides are normalized first: stored codes from older imports
	// may be bare numbers.
	if patch.Code != nil {
		candidate := NormalizeCode(kind, *patch.Code)
		if !strings.EqualFold(candidate, NormalizeCode(kind, current.Code)) {
			inUse, err := s.CodeInUse(ctx, candidate)
			if err != nil {
				return nil, nil, err
			}
			if inUse {
				return nil, nil, &CodeTakenError{Code: candidate}
			}
		}
		patch.Code = &candidate
	}

	matched, err := s.UpdateDocument(ctx, kind.ID, id, patch)
	if err != nil {
		return nil, nil, err
	}
	if matched != 1 {
		if patch.ExpectedVersion > 0 {
			return nil, nil, fmt.Errorf("%w: document %s version %d", ErrConcurrentModification, id, patch.ExpectedVersion)
		}
		return nil, nil, &PersistenceError{Op: "update document", Want: 1, Got: matched}
	}

	if len(diff.Create) > 0 {
		for i := range diff.Create {
			diff.Create[i].DocumentID = id
			diff.Create[i].Kind = kind.ID
			diff.Create[i].DeletedAt = nil
			if diff.Create[i].ID == "" {
				diff.Create[i].ID = EntryID(uuid.NewString())
			}
		}
		n, err := s.InsertEntries(ctx, diff.Create)
		if err != nil {
			return nil, nil, err
		}
		if n != int64(len(diff.Create)) {
			return nil, nil, &PersistenceError{Op: "insert entries", Want: int64(len(diff.Create)), Got: n}
		}
	}

	if len(diff.DeleteIDs) > 0 {
		// Only live entries match; re-deleting an already-deleted entry
		// shows up as a count mismatch and fails the transaction.
		n, err := s.SoftDeleteEntries(ctx, id, diff.DeleteIDs, e.now())
		if err != nil {
			return nil, nil, err
		}
		if n != int64(len(diff.DeleteIDs)) {
			return nil, nil, &PersistenceError{Op: "delete entries", Want: int64(len(diff.DeleteIDs)), Got: n}
		}
	}

	for i := range diff.Update {
		matched, err := s.UpdateEntry(ctx, id, diff.Update[i])
		if err != nil {
			return nil, nil, err
		}
		if matched != 1 {
			return nil, nil, &PersistenceError{Op: "update entry", Want: 1, Got: matched}
		}
	}

	amount := current.Amount
	if patch.Amount != nil {
		amount = *patch.Amount
	}
	if err := e.checkTally(ctx, s, id, amount); err != nil {
		return nil, nil, err
	}

	code := current.Code
	if patch.Code != nil {
		code = *patch.Code
	}
	act := e.activity(actor, fmt.Sprintf("updated %s %s", kind.Name, code), kind.ID, string(id))
	if err := s.InsertActivity(ctx, act); err != nil {
		return nil, nil, err
	}

	hydrated, err := e.hydrate(ctx, s, kind, id)
	if err != nil {
		return nil, nil, err
	}
	return hydrated, []Activity{act}, nil
}

// =============================================================================
// SOFT DELETE
// =============================================================================

// SoftDelete marks a document deleted and cascades the marker to all of
// its entries (and schedule) unconditionally. A deleted document's
// balance is irrelevant, so no tally runs. Deleting an already-deleted
// document returns a NotFoundError and changes nothing.
func (e *Engine) SoftDelete(ctx context.Context, kind Kind, id DocumentID, actor Actor) (DocumentID, error) {
	var acts []Activity
	err := e.store.WithTx(ctx, func(s Store) error {
		var err error
		acts, err = e.deleteTx(ctx, s, kind, []DocumentID{id}, actor)
		return err
	})
	if err != nil {
		return "", err
	}
	e.notify(ctx, acts)
	return id, nil
}

func (e *Engine) deleteTx(ctx context.Context, s Store, kind Kind, ids []DocumentID, actor Actor) ([]Activity, error) {
	now := e.now()
	matched, err := s.SoftDeleteDocuments(ctx, kind.ID, ids, now)
	if err != nil {
		return nil, err
	}
	if matched != int64(len(ids)) {
		if len(ids) == 1 {
			return nil, &NotFoundError{Resource: "document", ID: string(ids[0])}
		}
		return nil, &PersistenceError{Op: "delete documents", Want: int64(len(ids)), Got: matched}
	}

	for _, id := range ids {
		if _, err := s.CascadeDeleteEntries(ctx, id, now); err != nil {
			return nil, err
		}
		if kind.HasSchedule {
			if _, err := s.CascadeDeleteSchedule(ctx, id, now); err != nil {
				return nil, err
			}
		}
	}

	refs := make([]string, len(ids))
	for i, id := range ids {
		refs[i] = string(id)
	}
	act := e.activity(actor, fmt.Sprintf("deleted %d %s document(s)", len(ids), kind.Name), kind.ID, refs...)
	if err := s.InsertActivity(ctx, act); err != nil {
		return nil, err
	}
	return []Activity{act}, nil
}

// =============================================================================
// READS
// =============================================================================

// GetDocument returns a live document hydrated with its surviving
// entries and schedule.
func (e *Engine) GetDocument(ctx context.Context, kind Kind, id DocumentID) (*Document, error) {
	return e.hydrate(ctx, e.store, kind, id)
}

// ListDocuments returns the live document headers of one kind.
func (e *Engine) ListDocuments(ctx context.Context, kind Kind) ([]Document, error) {
	return e.store.ListDocuments(ctx, kind.ID)
}

// ListActivities returns the activity trail of a document, newest first.
func (e *Engine) ListActivities(ctx context.Context, kind Kind, id DocumentID) ([]Activity, error) {
	return e.store.ListActivities(ctx, kind.ID, id)
}

// =============================================================================
// INTERNAL HELPERS
// =============================================================================

// checkTally reloads the surviving entries and validates duplicate
// lines plus the three balance conditions against the declared amount.
func (e *Engine) checkTally(ctx context.Context, s Store, id DocumentID, amount decimal.Decimal) error {
	entries, err := s.LoadEntries(ctx, id)
	if err != nil {
		return err
	}
	if line, dup := HasDuplicateLines(entries); dup {
		return &DuplicateLineError{DocumentID: id, Line: line}
	}
	result := Tally(entries, amount, e.isCashLeg)
	if !result.OK() {
		return &TallyError{Condition: result.FailedCondition(), Amount: amount, Result: result}
	}
	return nil
}

func (e *Engine) hydrate(ctx context.Context, s Store, kind Kind, id DocumentID) (*Document, error) {
	doc, err := s.GetDocument(ctx, kind.ID, id)
	if err != nil {
		return nil, err
	}
	doc.Code = NormalizeCode(kind, doc.Code)
	if doc.Entries, err = s.LoadEntries(ctx, id); err != nil {
		return nil, err
	}
	if kind.HasSchedule {
		if doc.Schedule, err = s.LoadSchedule(ctx, id); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func (e *Engine) activity(actor Actor, action, resource string, refIDs ...string) Activity {
	return Activity{
		ID:       uuid.NewString(),
		ActorID:  actor.ID,
		Action:   action,
		Resource: resource,
		RefIDs:   refIDs,
		At:       e.now(),
	}
}

// notify fans activities out to the post-commit notifier. Best effort:
// a notifier failure is logged, never surfaced.
func (e *Engine) notify(ctx context.Context, acts []Activity) {
	if e.notifier == nil {
		return
	}
	for _, act := range acts {
		if err := e.notifier.Notify(ctx, act); err != nil {
			log.Printf("activity notify failed (continuing): %v", err)
		}
	}
}
