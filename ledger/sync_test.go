package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cooplend/ledger-engine/ledger"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func createRecord(id, code, amount string) ledger.ChangeRecord {
	doc, entries := balancedDoc(code, amount)
	doc.ID = ledger.DocumentID(id)
	rec := ledger.ChangeRecord{Action: ledger.ActionCreate, Document: doc}
	for _, e := range entries {
		rec.Entries = append(rec.Entries, ledger.EntryChange{Action: ledger.EntryCreate, Entry: e})
	}
	return rec
}

// =============================================================================
// BATCH RECONCILIATION TESTS
// =============================================================================

func TestReconcileBatch_MixedActions(t *testing.T) {
	// GIVEN: Two server-side vouchers and an offline batch that creates
	//        a third, edits the first, and deletes the second
	// WHEN: Reconciling
	// THEN: All three changes land in one pass

	engine, _ := newTestEngine()
	ctx := context.Background()

	docA, entriesA := balancedDoc("2000", "1000")
	createdA, err := engine.Create(ctx, testVoucher, docA, entriesA, testActor())
	require.NoError(t, err)

	docB, entriesB := balancedDoc("2001", "500")
	createdB, err := engine.Create(ctx, testVoucher, docB, entriesB, testActor())
	require.NoError(t, err)

	// Offline edit of A: bump to 1200 with matching entry edits
	editedA := *createdA
	editedA.Amount = amt("1200")
	updateRec := ledger.ChangeRecord{
		Action:   ledger.ActionUpdate,
		Document: editedA,
		Entries: []ledger.EntryChange{
			{Action: ledger.EntryUpdate, Entry: func() ledger.Entry {
				e := createdA.Entries[0]
				e.Credit = amt("1200")
				return e
			}()},
			{Action: ledger.EntryUpdate, Entry: func() ledger.Entry {
				e := createdA.Entries[1]
				e.Debit = amt("1200")
				return e
			}()},
		},
	}

	batch := []ledger.ChangeRecord{
		createRecord("sync-new", "2002", "300"),
		updateRec,
		{Action: ledger.ActionDelete, Document: ledger.Document{ID: createdB.ID}},
	}

	require.NoError(t, engine.ReconcileBatch(ctx, testVoucher, batch, testActor()))

	// Create landed
	got, err := engine.GetDocument(ctx, testVoucher, "sync-new")
	require.NoError(t, err)
	assert.Equal(t, "TV#2002", got.Code)

	// Update landed
	got, err = engine.GetDocument(ctx, testVoucher, createdA.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(amt("1200")))

	// Delete landed
	_, err = engine.GetDocument(ctx, testVoucher, createdB.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestReconcileBatch_OneBadRecord_AbortsWholeBatch(t *testing.T) {
	// GIVEN: A batch whose last record deletes a nonexistent document
	// WHEN: Reconciling
	// THEN: The valid creates earlier in the batch are rolled back too

	engine, _ := newTestEngine()
	ctx := context.Background()

	batch := []ledger.ChangeRecord{
		createRecord("sync-a", "2100", "100"),
		createRecord("sync-b", "2101", "200"),
		{Action: ledger.ActionDelete, Document: ledger.Document{ID: "ghost"}},
	}

	err := engine.ReconcileBatch(ctx, testVoucher, batch, testActor())
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = engine.GetDocument(ctx, testVoucher, "sync-a")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	_, err = engine.GetDocument(ctx, testVoucher, "sync-b")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestReconcileBatch_UnbalancedUpdate_AbortsWholeBatch(t *testing.T) {
	// A tally failure in one update record rolls back sibling records.
	engine, _ := newTestEngine()
	ctx := context.Background()

	doc, entries := balancedDoc("2200", "1000")
	created, err := engine.Create(ctx, testVoucher, doc, entries, testActor())
	require.NoError(t, err)

	broken := *created
	broken.Amount = amt("9999") // entries still credit 1000

	batch := []ledger.ChangeRecord{
		createRecord("sync-c", "2201", "400"),
		{Action: ledger.ActionUpdate, Document: broken},
	}

	err = engine.ReconcileBatch(ctx, testVoucher, batch, testActor())
	assert.ErrorIs(t, err, ledger.ErrTallyMismatch)

	_, err = engine.GetDocument(ctx, testVoucher, "sync-c")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	got, err := engine.GetDocument(ctx, testVoucher, created.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(amt("1000")))
}

func TestReconcileBatch_CreateWithTrailingEntryEdits(t *testing.T) {
	// GIVEN: A client that created a voucher offline, then deleted one
	//        of its lines and added a replacement before ever syncing
	// WHEN: The whole history arrives as one create record
	// THEN: The final surviving entry set is what the client last saw

	engine, _ := newTestEngine()
	ctx := context.Background()

	rec := ledger.ChangeRecord{
		Action: ledger.ActionCreate,
		Document: ledger.Document{
			ID:     "sync-d",
			Code:   "2300",
			Amount: amt("1000"),
		},
		Entries: []ledger.EntryChange{
			{Action: ledger.EntryCreate, Entry: func() ledger.Entry {
				e := entry(1, "BANK", "0", "1000")
				e.ID = "e-bank"
				return e
			}()},
			{Action: ledger.EntryCreate, Entry: func() ledger.Entry {
				e := entry(2, "4045", "1000", "0")
				e.ID = "e-wrong"
				return e
			}()},
			{Action: ledger.EntryDelete, Entry: ledger.Entry{ID: "e-wrong"}},
			{Action: ledger.EntryCreate, Entry: func() ledger.Entry {
				e := entry(3, "2010", "1000", "0")
				e.ID = "e-right"
				return e
			}()},
		},
	}

	require.NoError(t, engine.ReconcileBatch(ctx, testVoucher, []ledger.ChangeRecord{rec}, testActor()))

	got, err := engine.GetDocument(ctx, testVoucher, "sync-d")
	require.NoError(t, err)
	require.Len(t, got.Entries, 2)
	assert.Equal(t, ledger.EntryID("e-bank"), got.Entries[0].ID)
	assert.Equal(t, ledger.EntryID("e-right"), got.Entries[1].ID)
}

func TestReconcileBatch_RetainedEntriesParticipateInTally(t *testing.T) {
	// GIVEN: A voucher whose client edit touches one entry and retains
	//        the other
	// WHEN: Reconciling an update that would only balance if the
	//        retained entry still counts
	// THEN: The update commits

	engine, _ := newTestEngine()
	ctx := context.Background()

	doc, entries := balancedDoc("2400", "1000")
	created, err := engine.Create(ctx, testVoucher, doc, entries, testActor())
	require.NoError(t, err)

	rec := ledger.ChangeRecord{
		Action:   ledger.ActionUpdate,
		Document: *created,
		Entries: []ledger.EntryChange{
			{Action: ledger.EntryRetain, Entry: created.Entries[0]},
			{Action: ledger.EntryRetain, Entry: created.Entries[1]},
		},
	}

	assert.NoError(t, engine.ReconcileBatch(ctx, testVoucher, []ledger.ChangeRecord{rec}, testActor()))
}

func TestReconcileBatch_EmptyBatch(t *testing.T) {
	engine, _ := newTestEngine()
	assert.NoError(t, engine.ReconcileBatch(context.Background(), testVoucher, nil, testActor()))
}
