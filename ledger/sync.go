/*
sync.go - Batch reconciliation of offline-authored changes

PURPOSE:
  A disconnected client records document mutations locally and uploads
  them later as one batch per document kind. Each record is tagged with
  an action (create/update/delete); each nested entry carries its own
  action (create/update/delete/retain). This engine partitions the batch
  and drives the mutation engine per record inside ONE outer
  transaction.

ALL-OR-NOTHING:
  A failure in any single record aborts the whole batch. This is the
  reconciliation contract: the client either fully catches up or stays
  fully behind, never half-applied. (Per-record partial success is a
  known alternative; see DESIGN.md.)

RETAIN:
  A retained entry is already persisted server-side. It is not written
  again, but because tally validation always reloads the full surviving
  entry set, retained entries participate in the recomputation
  automatically.

SEQUENTIAL PHASES:
  Records of one phase are independent of each other and carry no
  ordering guarantee. They are processed sequentially here because a
  database transaction handle does not support concurrent statement
  execution; line-number uniqueness and the tally are checked after all
  of a record's mutations land, so ordering within a phase cannot change
  the outcome.

SEE ALSO:
  - engine.go: The per-record create/update/delete internals
*/
package ledger

import "context"

// =============================================================================
// CHANGE RECORDS
// =============================================================================

// RecordAction tags a whole document record in a sync batch.
type RecordAction string

const (
	ActionCreate RecordAction = "create"
	ActionUpdate RecordAction = "update"
	ActionDelete RecordAction = "delete"
)

// EntryAction tags one entry within a sync record.
type EntryAction string

const (
	EntryCreate EntryAction = "create"
	EntryUpdate EntryAction = "update"
	EntryDelete EntryAction = "delete"
	EntryRetain EntryAction = "retain"
)

// EntryChange is one client-tagged entry. The full entry payload rides
// along for every action; delete and retain only use its ID.
type EntryChange struct {
	Action EntryAction
	Entry  Entry
}

// ChangeRecord wraps a document-shaped payload plus its action and the
// client-tagged entries. Transient: these exist only for the duration
// of one reconciliation call and are never persisted as such.
type ChangeRecord struct {
	Action   RecordAction
	Document Document
	Entries  []EntryChange
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// ReconcileBatch applies an ordered batch of client changes for one
// document kind inside one transaction. Creates are applied first, then
// updates, then one bulk soft-delete. Any record's failure rolls the
// entire batch back.
//
// Existence of entities the records reference (account codes,
// counterparties) is validated before this engine is invoked; only the
// internal ledger invariants are enforced here.
func (e *Engine) ReconcileBatch(ctx context.Context, kind Kind, records []ChangeRecord, actor Actor) error {
	var toCreate, toUpdate []ChangeRecord
	var toDelete []DocumentID
	for _, rec := range records {
		switch rec.Action {
		case ActionCreate:
			toCreate = append(toCreate, rec)
		case ActionUpdate:
			toUpdate = append(toUpdate, rec)
		case ActionDelete:
			toDelete = append(toDelete, rec.Document.ID)
		}
	}

	var acts []Activity
	err := e.store.WithTx(ctx, func(s Store) error {
		for _, rec := range toCreate {
			a, err := e.reconcileCreate(ctx, s, kind, rec, actor)
			if err != nil {
				return err
			}
			acts = append(acts, a...)
		}
		for _, rec := range toUpdate {
			_, a, err := e.updateTx(ctx, s, kind, rec.Document.ID, headerPatch(rec.Document), entryDiff(rec.Entries), actor)
			if err != nil {
				return err
			}
			acts = append(acts, a...)
		}
		if len(toDelete) > 0 {
			a, err := e.deleteTx(ctx, s, kind, toDelete, actor)
			if err != nil {
				return err
			}
			acts = append(acts, a...)
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.notify(ctx, acts)
	return nil
}

// reconcileCreate applies a create-tagged record: the create-tagged
// entries become the document's initial entry set, and any update- or
// delete-tagged entries that arrived alongside (a client that created a
// document and kept editing it before ever syncing) are applied as a
// follow-up diff against the just-created document. The tally runs once
// at the end of the record: the initial entry set may be transiently
// unbalanced when the client's later edits are what balance it.
func (e *Engine) reconcileCreate(ctx context.Context, s Store, kind Kind, rec ChangeRecord, actor Actor) ([]Activity, error) {
	var initial []Entry
	for _, ec := range rec.Entries {
		if ec.Action == EntryCreate {
			initial = append(initial, ec.Entry)
		}
	}

	id, acts, err := e.insertTx(ctx, s, kind, rec.Document, initial, actor)
	if err != nil {
		return nil, err
	}

	diff := entryDiff(rec.Entries)
	diff.Create = nil // already persisted above
	if !diff.Empty() {
		// updateTx runs the tally after applying the diff
		_, a, err := e.updateTx(ctx, s, kind, id, DocumentPatch{}, diff, actor)
		if err != nil {
			return nil, err
		}
		return append(acts, a...), nil
	}

	if err := e.checkTally(ctx, s, id, rec.Document.Amount); err != nil {
		return nil, err
	}
	return acts, nil
}

// =============================================================================
// PAYLOAD → PATCH/DIFF TRANSLATION
// =============================================================================

// headerPatch turns a full document payload into a header patch setting
// every patchable field. Offline clients may be arbitrarily far behind,
// so no expected version is carried: reconciliation is last-writer-wins
// at the header level.
func headerPatch(doc Document) DocumentPatch {
	return DocumentPatch{
		Code:        &doc.Code,
		Amount:      &doc.Amount,
		Date:        &doc.Date,
		PeriodMonth: &doc.PeriodMonth,
		PeriodYear:  &doc.PeriodYear,
		CheckNumber: &doc.CheckNumber,
		BankCode:    &doc.BankCode,
		PayeeRef:    &doc.PayeeRef,
		Remarks:     &doc.Remarks,
	}
}

// entryDiff partitions tagged entries into the mutation engine's diff
// shape. Retained entries are dropped: they are already persisted and
// re-enter the tally through the surviving-set reload.
func entryDiff(changes []EntryChange) EntryDiff {
	var diff EntryDiff
	for _, ec := range changes {
		switch ec.Action {
		case EntryCreate:
			diff.Create = append(diff.Create, ec.Entry)
		case EntryUpdate:
			diff.Update = append(diff.Update, entryPatch(ec.Entry))
		case EntryDelete:
			diff.DeleteIDs = append(diff.DeleteIDs, ec.Entry.ID)
		case EntryRetain:
			// not written; participates via reload
		}
	}
	return diff
}

// entryPatch turns a full entry payload into a patch setting every
// mutable field.
func entryPatch(entry Entry) EntryPatch {
	return EntryPatch{
		ID:          entry.ID,
		Line:        &entry.Line,
		AccountCode: &entry.AccountCode,
		Debit:       &entry.Debit,
		Credit:      &entry.Credit,
		ClientRef:   &entry.ClientRef,
		Week:        &entry.Week,
		DueDate:     entry.DueDate,
	}
}
