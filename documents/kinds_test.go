package documents_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cooplend/ledger-engine/documents"
	"github.com/cooplend/ledger-engine/ledger"
)

func TestAllKindsRegistered(t *testing.T) {
	all := documents.All()
	require.Len(t, all, 7)

	for _, k := range all {
		got, err := ledger.LookupKind(k.ID)
		require.NoError(t, err, k.ID)
		assert.Equal(t, k, got)
	}
}

func TestOnlyLoanReleaseHasSchedule(t *testing.T) {
	for _, k := range documents.All() {
		if k.ID == documents.LoanRelease.ID {
			assert.True(t, k.HasSchedule)
		} else {
			assert.False(t, k.HasSchedule, k.ID)
		}
	}
}

func TestCodePrefixesDistinct(t *testing.T) {
	seen := map[string]string{}
	for _, k := range documents.All() {
		require.NotEmpty(t, k.CodePrefix, k.ID)
		prev, dup := seen[k.CodePrefix]
		require.False(t, dup, "prefix %s shared by %s and %s", k.CodePrefix, prev, k.ID)
		seen[k.CodePrefix] = k.ID
	}
}

func TestChart_IsCashLeg(t *testing.T) {
	chart := documents.DefaultChart()

	assert.True(t, chart.IsCashLeg("BANK"))
	assert.True(t, chart.IsCashLeg("bank"))
	assert.True(t, chart.IsCashLeg("101"))
	assert.False(t, chart.IsCashLeg("4045"))

	chart.Flag("4045")
	assert.True(t, chart.IsCashLeg("4045"))
}
