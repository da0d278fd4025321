/*
tally.go - Balance validation over entry sets

PURPOSE:
  The tally is the set of balance checks that must hold for a document's
  surviving entries at every committed state. All checks here are pure
  functions of their inputs: no I/O, no side effects, deterministic.

THE THREE CONDITIONS:
  debitCreditBalanced:
    Total debits equal total credits. The basic double-entry rule.

  netDebitCreditBalanced:
    Deductions (credits on non-cash-leg accounts) are pass-through
    amounts withheld from a release, e.g. service fees taken out of a
    loan principal. Netting them out of both sides isolates the actual
    principal movement, which must still balance.

  netAmountBalanced:
    The money that actually moved through cash/bank accounts must equal
    the declared header amount. When a document has no cash/bank leg at
    all (pure journal adjustments), the total credit stands in for it.

EQUALITY:
  Amounts are decimal.Decimal and compared exactly. No epsilon: inputs
  are exact decimal magnitudes, not floats.

DELETED ENTRIES:
  All checks consider only surviving (not soft-deleted) entries. The
  mutation engine validates the FULL surviving set after all entry
  mutations land, never the delta, so a multi-step update cannot
  transiently fail while a balanced final state passes.

SEE ALSO:
  - engine.go: Runs the tally after create/update mutations
  - errors.go: TallyError carries the failed condition
*/
package ledger

import "github.com/shopspring/decimal"

// =============================================================================
// TALLY RESULT
// =============================================================================

// TallyResult holds the three independent balance conditions.
type TallyResult struct {
	DebitCreditBalanced    bool
	NetDebitCreditBalanced bool
	NetAmountBalanced      bool
}

// OK reports whether all three conditions hold.
func (r TallyResult) OK() bool {
	return r.DebitCreditBalanced && r.NetDebitCreditBalanced && r.NetAmountBalanced
}

// FailedCondition returns the first failing condition, or "" if all hold.
func (r TallyResult) FailedCondition() TallyCondition {
	switch {
	case !r.DebitCreditBalanced:
		return CondDebitCredit
	case !r.NetDebitCreditBalanced:
		return CondNetDebitCredit
	case !r.NetAmountBalanced:
		return CondNetAmount
	}
	return ""
}

// =============================================================================
// TALLY - The three balance conditions
// =============================================================================

// Tally evaluates the three balance conditions for the given entries
// against the declared header amount. Soft-deleted entries are ignored.
// isCashLeg reports whether an account code represents actual cash or
// bank movement.
func Tally(entries []Entry, amount decimal.Decimal, isCashLeg CashLegFunc) TallyResult {
	var (
		totalDebit  = decimal.Zero
		totalCredit = decimal.Zero
		cashCredit  = decimal.Zero // credit over cash/bank legs
		deduction   = decimal.Zero // credit over non-cash legs
		hasCashLeg  = false
	)

	for i := range entries {
		e := &entries[i]
		if e.Deleted() {
			continue
		}
		totalDebit = totalDebit.Add(e.Debit)
		totalCredit = totalCredit.Add(e.Credit)
		if isCashLeg != nil && isCashLeg(e.AccountCode) {
			hasCashLeg = true
			cashCredit = cashCredit.Add(e.Credit)
		} else {
			deduction = deduction.Add(e.Credit)
		}
	}

	netCredit := totalCredit.Sub(deduction)
	netDebit := totalDebit.Sub(deduction)

	r := TallyResult{
		DebitCreditBalanced:    totalDebit.Equal(totalCredit),
		NetDebitCreditBalanced: netCredit.Equal(netDebit),
	}
	if hasCashLeg {
		r.NetAmountBalanced = cashCredit.Equal(amount)
	} else {
		r.NetAmountBalanced = totalCredit.Equal(amount)
	}
	return r
}

// =============================================================================
// COMPANION CHECKS
// =============================================================================

// HasBankEntry reports whether at least one surviving entry's account
// code is flagged as a cash/bank leg.
func HasBankEntry(entries []Entry, isCashLeg CashLegFunc) bool {
	if isCashLeg == nil {
		return false
	}
	for i := range entries {
		if !entries[i].Deleted() && isCashLeg(entries[i].AccountCode) {
			return true
		}
	}
	return false
}

// HasDuplicateLines reports whether any two surviving entries share a
// line number, returning the first duplicated line.
func HasDuplicateLines(entries []Entry) (int, bool) {
	seen := make(map[int]bool, len(entries))
	for i := range entries {
		if entries[i].Deleted() {
			continue
		}
		if seen[entries[i].Line] {
			return entries[i].Line, true
		}
		seen[entries[i].Line] = true
	}
	return 0, false
}
