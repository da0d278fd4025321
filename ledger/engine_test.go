package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cooplend/ledger-engine/ledger"
	"github.com/cooplend/ledger-engine/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	testVoucher = ledger.Kind{ID: "test_voucher", Name: "Test Voucher", CodePrefix: "TV#"}
	testReceipt = ledger.Kind{ID: "test_receipt", Name: "Test Receipt", CodePrefix: "TC#"}
	testRelease = ledger.Kind{ID: "test_release", Name: "Test Release", CodePrefix: "TR#", HasSchedule: true}
)

func newTestEngine() (*ledger.Engine, *store.Memory) {
	mem := store.NewMemory()
	return ledger.NewEngine(mem, isCash), mem
}

func testActor() ledger.Actor {
	return ledger.Actor{ID: "clerk-1", Name: "Test Clerk"}
}

// balancedDoc returns a document-and-entries pair that satisfies all
// three tally conditions for the given amount.
func balancedDoc(code, amount string) (ledger.Document, []ledger.Entry) {
	doc := ledger.Document{
		Code:   code,
		Amount: amt(amount),
		Date:   time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC),
	}
	entries := []ledger.Entry{
		entry(1, "BANK", "0", amount),
		entry(2, "4045", amount, "0"),
	}
	return doc, entries
}

// =============================================================================
// CREATE TESTS
// =============================================================================

func TestCreate_HydratesDocument(t *testing.T) {
	// GIVEN: A balanced voucher with a bare numeric code
	// WHEN: Creating it
	// THEN: The stored document carries the normalized code, version 1,
	//       the actor, and both entries

	engine, _ := newTestEngine()
	ctx := context.Background()

	doc, entries := balancedDoc("123", "1000")
	created, err := engine.Create(ctx, testVoucher, doc, entries, testActor())
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "TV#123", created.Code)
	assert.Equal(t, testVoucher.ID, created.Kind)
	assert.Equal(t, 1, created.Version)
	assert.Equal(t, "clerk-1", created.CreatedBy)
	assert.Len(t, created.Entries, 2)
	assert.Empty(t, created.Schedule)

	// Reads see the same document
	got, err := engine.GetDocument(ctx, testVoucher, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Code, got.Code)
	assert.Len(t, got.Entries, 2)
}

func TestCreate_EmptyEntries_Rejected(t *testing.T) {
	engine, _ := newTestEngine()

	doc, _ := balancedDoc("200", "1000")
	_, err := engine.Create(context.Background(), testVoucher, doc, nil, testActor())

	assert.ErrorIs(t, err, ledger.ErrEmptyEntries)
}

func TestCreate_TallyFailure_NothingPersisted(t *testing.T) {
	// GIVEN: Entries crediting 900 against a declared amount of 1000
	// WHEN: Creating
	// THEN: The create fails with a tally error and the document is not
	//       visible afterwards

	engine, _ := newTestEngine()
	ctx := context.Background()

	doc := ledger.Document{
		ID:     "doc-unbalanced",
		Code:   "300",
		Amount: amt("1000"),
		Date:   time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC),
	}
	entries := []ledger.Entry{
		entry(1, "BANK", "0", "900"),
		entry(2, "4045", "900", "0"),
	}

	_, err := engine.Create(ctx, testVoucher, doc, entries, testActor())
	assert.ErrorIs(t, err, ledger.ErrTallyMismatch)

	var tallyErr *ledger.TallyError
	require.ErrorAs(t, err, &tallyErr)
	assert.Equal(t, ledger.CondNetAmount, tallyErr.Condition)

	_, err = engine.GetDocument(ctx, testVoucher, "doc-unbalanced")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestCreate_DuplicateLine_Rejected(t *testing.T) {
	engine, _ := newTestEngine()

	doc, _ := balancedDoc("400", "1000")
	entries := []ledger.Entry{
		entry(1, "BANK", "0", "1000"),
		entry(1, "4045", "1000", "0"),
	}

	_, err := engine.Create(context.Background(), testVoucher, doc, entries, testActor())
	assert.ErrorIs(t, err, ledger.ErrDuplicateLine)
}

func TestCreate_CodeSharedAcrossKinds_Rejected(t *testing.T) {
	// GIVEN: A voucher holding code TV#500
	// WHEN: Creating a receipt with the same full code
	// THEN: The create is rejected; codes share one namespace across
	//       all kinds

	engine, _ := newTestEngine()
	ctx := context.Background()

	doc, entries := balancedDoc("TV#500", "1000")
	_, err := engine.Create(ctx, testVoucher, doc, entries, testActor())
	require.NoError(t, err)

	doc2, entries2 := balancedDoc("TV#500", "700")
	_, err = engine.Create(ctx, testReceipt, doc2, entries2, testActor())
	assert.ErrorIs(t, err, ledger.ErrCodeTaken)
}

func TestCreate_LoanRelease_GeneratesSchedule(t *testing.T) {
	// GIVEN: A release kind with a 4-week term
	// WHEN: Creating
	// THEN: The hydrated document carries 4 unpaid schedule entries with
	//       weekly due dates

	engine, _ := newTestEngine()

	doc, entries := balancedDoc("600", "1000")
	doc.NoOfWeeks = 4

	created, err := engine.Create(context.Background(), testRelease, doc, entries, testActor())
	require.NoError(t, err)

	require.Len(t, created.Schedule, 4)
	for i, se := range created.Schedule {
		assert.Equal(t, i+1, se.Week)
		assert.Equal(t, doc.Date.AddDate(0, 0, 7*(i+1)), se.DueDate)
		assert.False(t, se.Paid)
	}
}

func TestCreate_WritesActivityTrail(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()

	doc, entries := balancedDoc("700", "1000")
	created, err := engine.Create(ctx, testVoucher, doc, entries, testActor())
	require.NoError(t, err)

	acts, err := engine.ListActivities(ctx, testVoucher, created.ID)
	require.NoError(t, err)

	// One header activity plus one per entry
	assert.Len(t, acts, 3)
	for _, act := range acts {
		assert.Equal(t, "clerk-1", act.ActorID)
		assert.Equal(t, testVoucher.ID, act.Resource)
		assert.Contains(t, act.RefIDs, string(created.ID))
	}
}

// =============================================================================
// UPDATE TESTS
// =============================================================================

func TestUpdate_HeaderAndEntryDiff(t *testing.T) {
	// GIVEN: A 1000 voucher
	// WHEN: Raising the amount to 1500 and adjusting both entries to
	//       match in the same call
	// THEN: The update commits and the hydrated result reflects it

	engine, _ := newTestEngine()
	ctx := context.Background()

	doc, entries := balancedDoc("800", "1000")
	created, err := engine.Create(ctx, testVoucher, doc, entries, testActor())
	require.NoError(t, err)

	newAmount := amt("1500")
	newCredit := amt("1500")
	newDebit := amt("1500")
	patch := ledger.DocumentPatch{Amount: &newAmount}
	diff := ledger.EntryDiff{
		Update: []ledger.EntryPatch{
			{ID: created.Entries[0].ID, Credit: &newCredit},
			{ID: created.Entries[1].ID, Debit: &newDebit},
		},
	}

	updated, err := engine.Update(ctx, testVoucher, created.ID, patch, diff, testActor())
	require.NoError(t, err)

	assert.True(t, updated.Amount.Equal(amt("1500")))
	assert.Equal(t, 2, updated.Version)
	assert.Len(t, updated.Entries, 2)
}

func TestUpdate_TallyFailure_RollsEverythingBack(t *testing.T) {
	// GIVEN: A balanced 1000 voucher
	// WHEN: An update patches the amount without fixing the entries
	// THEN: Nothing changes, header patch included

	engine, _ := newTestEngine()
	ctx := context.Background()

	doc, entries := balancedDoc("900", "1000")
	created, err := engine.Create(ctx, testVoucher, doc, entries, testActor())
	require.NoError(t, err)

	newAmount := amt("2000")
	_, err = engine.Update(ctx, testVoucher, created.ID, ledger.DocumentPatch{Amount: &newAmount}, ledger.EntryDiff{}, testActor())
	assert.ErrorIs(t, err, ledger.ErrTallyMismatch)

	got, err := engine.GetDocument(ctx, testVoucher, created.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(amt("1000")))
	assert.Equal(t, 1, got.Version)
}

func TestUpdate_AddAndDeleteEntries_TallyOverSurvivors(t *testing.T) {
	// GIVEN: A 1000 voucher
	// WHEN: Deleting both entries and creating a replacement pair for
	//       the same amount in one call
	// THEN: The tally runs over the surviving set and passes

	engine, _ := newTestEngine()
	ctx := context.Background()

	doc, entries := balancedDoc("1000", "1000")
	created, err := engine.Create(ctx, testVoucher, doc, entries, testActor())
	require.NoError(t, err)

	diff := ledger.EntryDiff{
		Create: []ledger.Entry{
			entry(3, "BANK", "0", "1000"),
			entry(4, "2010", "1000", "0"),
		},
		DeleteIDs: []ledger.EntryID{created.Entries[0].ID, created.Entries[1].ID},
	}

	updated, err := engine.Update(ctx, testVoucher, created.ID, ledger.DocumentPatch{}, diff, testActor())
	require.NoError(t, err)

	require.Len(t, updated.Entries, 2)
	assert.Equal(t, 3, updated.Entries[0].Line)
	assert.Equal(t, 4, updated.Entries[1].Line)
}

func TestUpdate_RedeletingEntry_Fails(t *testing.T) {
	// GIVEN: An entry already soft-deleted by a previous update
	// WHEN: Deleting it again
	// THEN: The row-count check fails the transaction

	engine, _ := newTestEngine()
	ctx := context.Background()

	doc, _ := balancedDoc("1100", "1000")
	entries := []ledger.Entry{
		entry(1, "BANK", "0", "1000"),
		entry(2, "4045", "1000", "0"),
		entry(3, "2010", "0", "0"),
	}
	created, err := engine.Create(ctx, testVoucher, doc, entries, testActor())
	require.NoError(t, err)

	dead := created.Entries[2].ID
	_, err = engine.Update(ctx, testVoucher, created.ID, ledger.DocumentPatch{},
		ledger.EntryDiff{DeleteIDs: []ledger.EntryID{dead}}, testActor())
	require.NoError(t, err)

	_, err = engine.Update(ctx, testVoucher, created.ID, ledger.DocumentPatch{},
		ledger.EntryDiff{DeleteIDs: []ledger.EntryID{dead}}, testActor())
	assert.ErrorIs(t, err, ledger.ErrPersistence)
}

func TestUpdate_VersionConflict(t *testing.T) {
	// GIVEN: A document at version 2 after one update
	// WHEN: A second caller updates with the stale version 1
	// THEN: The update fails with a concurrent-modification error

	engine, _ := newTestEngine()
	ctx := context.Background()

	doc, entries := balancedDoc("1200", "1000")
	created, err := engine.Create(ctx, testVoucher, doc, entries, testActor())
	require.NoError(t, err)

	remarks := "first writer"
	_, err = engine.Update(ctx, testVoucher, created.ID,
		ledger.DocumentPatch{Remarks: &remarks, ExpectedVersion: 1}, ledger.EntryDiff{}, testActor())
	require.NoError(t, err)

	stale := "second writer"
	_, err = engine.Update(ctx, testVoucher, created.ID,
		ledger.DocumentPatch{Remarks: &stale, ExpectedVersion: 1}, ledger.EntryDiff{}, testActor())
	assert.ErrorIs(t, err, ledger.ErrConcurrentModification)

	// Zero expected version keeps last-writer-wins behavior
	lww := "offline writer"
	_, err = engine.Update(ctx, testVoucher, created.ID,
		ledger.DocumentPatch{Remarks: &lww}, ledger.EntryDiff{}, testActor())
	assert.NoError(t, err)
}

func TestUpdate_CodeChange_ChecksUniqueness(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()

	docA, entriesA := balancedDoc("1300", "1000")
	_, err := engine.Create(ctx, testVoucher, docA, entriesA, testActor())
	require.NoError(t, err)

	docB, entriesB := balancedDoc("1301", "1000")
	createdB, err := engine.Create(ctx, testVoucher, docB, entriesB, testActor())
	require.NoError(t, err)

	// Taking A's code fails
	taken := "1300"
	_, err = engine.Update(ctx, testVoucher, createdB.ID,
		ledger.DocumentPatch{Code: &taken}, ledger.EntryDiff{}, testActor())
	assert.ErrorIs(t, err, ledger.ErrCodeTaken)

	// Re-submitting your own code in different case is not a change
	same := "tv#1301"
	_, err = engine.Update(ctx, testVoucher, createdB.ID,
		ledger.DocumentPatch{Code: &same}, ledger.EntryDiff{}, testActor())
	assert.NoError(t, err)
}

func TestUpdate_MissingDocument(t *testing.T) {
	engine, _ := newTestEngine()

	_, err := engine.Update(context.Background(), testVoucher, "nope",
		ledger.DocumentPatch{}, ledger.EntryDiff{}, testActor())
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

// =============================================================================
// SOFT DELETE TESTS
// =============================================================================

func TestSoftDelete_CascadesAndHides(t *testing.T) {
	// GIVEN: A release with entries and a schedule
	// WHEN: Soft-deleting it
	// THEN: The document disappears from reads; a second delete reports
	//       not found

	engine, _ := newTestEngine()
	ctx := context.Background()

	doc, entries := balancedDoc("1400", "1000")
	doc.NoOfWeeks = 3
	created, err := engine.Create(ctx, testRelease, doc, entries, testActor())
	require.NoError(t, err)

	deleted, err := engine.SoftDelete(ctx, testRelease, created.ID, testActor())
	require.NoError(t, err)
	assert.Equal(t, created.ID, deleted)

	_, err = engine.GetDocument(ctx, testRelease, created.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = engine.SoftDelete(ctx, testRelease, created.ID, testActor())
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestSoftDelete_FreesCodeForReuse(t *testing.T) {
	// Codes are unique among LIVE documents only; deleting releases the
	// code back into the namespace.
	engine, _ := newTestEngine()
	ctx := context.Background()

	doc, entries := balancedDoc("1500", "1000")
	created, err := engine.Create(ctx, testVoucher, doc, entries, testActor())
	require.NoError(t, err)

	_, err = engine.SoftDelete(ctx, testVoucher, created.ID, testActor())
	require.NoError(t, err)

	doc2, entries2 := balancedDoc("1500", "250")
	_, err = engine.Create(ctx, testVoucher, doc2, entries2, testActor())
	assert.NoError(t, err)
}

// =============================================================================
// CODE UNIQUENESS TESTS
// =============================================================================

func TestIsCodeUnique(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()

	doc, entries := balancedDoc("1600", "1000")
	_, err := engine.Create(ctx, testVoucher, doc, entries, testActor())
	require.NoError(t, err)

	unique, err := engine.IsCodeUnique(ctx, testVoucher, "1600")
	require.NoError(t, err)
	assert.False(t, unique)

	// Case-insensitive match against the normalized stored code
	unique, err = engine.IsCodeUnique(ctx, testVoucher, "tv#1600")
	require.NoError(t, err)
	assert.False(t, unique)

	unique, err = engine.IsCodeUnique(ctx, testVoucher, "1601")
	require.NoError(t, err)
	assert.True(t, unique)
}
