package documents

import (
	"strings"
	"sync"
)

// =============================================================================
// CHART OF ACCOUNTS - Cash/bank leg lookup
// =============================================================================

// Chart answers whether an account code represents actual cash or bank
// movement. The full chart of accounts lives outside this engine; this
// is only the flag lookup the tally needs.
type Chart struct {
	mu   sync.RWMutex
	cash map[string]bool
}

// NewChart builds a chart flagging the given account codes as cash/bank
// legs. Codes are compared case-insensitively.
func NewChart(cashCodes ...string) *Chart {
	c := &Chart{cash: make(map[string]bool, len(cashCodes))}
	for _, code := range cashCodes {
		c.cash[strings.ToUpper(code)] = true
	}
	return c
}

// DefaultChart returns the cooperative's standard cash/bank accounts:
// cash on hand, cash in bank, and the named bank clearing accounts.
func DefaultChart() *Chart {
	return NewChart("101", "102", "103", "CASH", "BANK")
}

// IsCashLeg reports whether the account code is flagged as a cash/bank
// leg. Satisfies ledger.CashLegFunc via method value.
func (c *Chart) IsCashLeg(accountCode string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cash[strings.ToUpper(accountCode)]
}

// Flag marks an account code as a cash/bank leg at runtime.
func (c *Chart) Flag(accountCode string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cash[strings.ToUpper(accountCode)] = true
}
