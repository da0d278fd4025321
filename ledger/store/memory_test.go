package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cooplend/ledger-engine/ledger"
	"github.com/cooplend/ledger-engine/ledger/store"
)

func seedDoc(id, code string) ledger.Document {
	return ledger.Document{
		ID:      ledger.DocumentID(id),
		Kind:    "journal_voucher",
		Code:    code,
		Amount:  decimal.NewFromInt(100),
		Date:    time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC),
		Version: 1,
	}
}

func TestWithTx_RollbackOnError(t *testing.T) {
	// GIVEN: A transaction that inserts a document and then fails
	// WHEN: WithTx returns the error
	// THEN: The insert is not visible afterwards

	mem := store.NewMemory()
	ctx := context.Background()

	boom := errors.New("boom")
	err := mem.WithTx(ctx, func(s ledger.Store) error {
		if err := s.InsertDocument(ctx, seedDoc("d1", "JV#1")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = mem.GetDocument(ctx, "journal_voucher", "d1")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestWithTx_CommitKeepsWrites(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	err := mem.WithTx(ctx, func(s ledger.Store) error {
		return s.InsertDocument(ctx, seedDoc("d2", "JV#2"))
	})
	require.NoError(t, err)

	got, err := mem.GetDocument(ctx, "journal_voucher", "d2")
	require.NoError(t, err)
	assert.Equal(t, "JV#2", got.Code)
}

func TestUpdateDocument_VersionSemantics(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.InsertDocument(ctx, seedDoc("d3", "JV#3")))

	remarks := "edited"

	// Wrong expected version matches nothing
	n, err := mem.UpdateDocument(ctx, "journal_voucher", "d3",
		ledger.DocumentPatch{Remarks: &remarks, ExpectedVersion: 9})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	// Matching version applies and increments
	n, err = mem.UpdateDocument(ctx, "journal_voucher", "d3",
		ledger.DocumentPatch{Remarks: &remarks, ExpectedVersion: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := mem.GetDocument(ctx, "journal_voucher", "d3")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, "edited", got.Remarks)
}

func TestCodeInUse_LiveDocumentsOnly(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.InsertDocument(ctx, seedDoc("d4", "JV#4")))

	inUse, err := mem.CodeInUse(ctx, "jv#4")
	require.NoError(t, err)
	assert.True(t, inUse, "match is case-insensitive")

	_, err = mem.SoftDeleteDocuments(ctx, "journal_voucher", []ledger.DocumentID{"d4"}, time.Now())
	require.NoError(t, err)

	inUse, err = mem.CodeInUse(ctx, "JV#4")
	require.NoError(t, err)
	assert.False(t, inUse, "deleted documents release their code")
}
