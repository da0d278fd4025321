package ledger_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cooplend/ledger-engine/ledger"
)

func TestGenerateSchedule_FourWeeks(t *testing.T) {
	// GIVEN: A release dated 2025-06-02 with a 4-week term
	// WHEN: Generating the schedule
	// THEN: Weeks 1..4 land exactly 7, 14, 21, 28 days after the release

	start := time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC)

	schedule := ledger.GenerateSchedule(start, 4)

	assert.Len(t, schedule, 4)
	for i, se := range schedule {
		assert.Equal(t, i+1, se.Week)
		assert.Equal(t, start.AddDate(0, 0, 7*(i+1)), se.DueDate)
		assert.False(t, se.Paid)
	}
}

func TestGenerateSchedule_CrossesMonthAndYear(t *testing.T) {
	// Calendar arithmetic, not day-count arithmetic: due dates roll over
	// month and year boundaries.
	start := time.Date(2025, time.December, 25, 0, 0, 0, 0, time.UTC)

	schedule := ledger.GenerateSchedule(start, 2)

	assert.Equal(t, time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC), schedule[0].DueDate)
	assert.Equal(t, time.Date(2026, time.January, 8, 0, 0, 0, 0, time.UTC), schedule[1].DueDate)
}

func TestGenerateSchedule_ZeroOrNegativeWeeks(t *testing.T) {
	start := time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC)

	assert.Empty(t, ledger.GenerateSchedule(start, 0))
	assert.Empty(t, ledger.GenerateSchedule(start, -3))
}
