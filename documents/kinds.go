// Package documents configures the ledger engine for the cooperative's
// accounting documents. It registers the seven document kinds and
// provides the chart-of-accounts cash-leg lookup.
//
// The kinds are structurally identical - header plus entries plus
// tally plus code uniqueness - and differ only in their code prefix and
// whether a weekly payment schedule is generated at create time.
package documents

import "github.com/cooplend/ledger-engine/ledger"

// =============================================================================
// DOCUMENT KINDS
// =============================================================================

var (
	// LoanRelease is a regular loan disbursement. The only kind with a
	// generated weekly payment schedule.
	LoanRelease = ledger.Kind{ID: "loan_release", Name: "Loan Release", CodePrefix: "LR#", HasSchedule: true}

	// JournalVoucher records internal ledger-only adjustments.
	JournalVoucher = ledger.Kind{ID: "journal_voucher", Name: "Journal Voucher", CodePrefix: "JV#"}

	// ExpenseVoucher records operating expense disbursements.
	ExpenseVoucher = ledger.Kind{ID: "expense_voucher", Name: "Expense Voucher", CodePrefix: "EV#"}

	// OfficialReceipt records member payments received.
	OfficialReceipt = ledger.Kind{ID: "official_receipt", Name: "Official Receipt", CodePrefix: "OR#"}

	// AcknowledgementReceipt records releases acknowledged outside the
	// loan flow.
	AcknowledgementReceipt = ledger.Kind{ID: "acknowledgement_receipt", Name: "Acknowledgement Receipt", CodePrefix: "AR#"}

	// EmergencyLoan is a short-term member loan released without a
	// weekly amortization schedule.
	EmergencyLoan = ledger.Kind{ID: "emergency_loan", Name: "Emergency Loan", CodePrefix: "EL#"}

	// DamayanFund records mutual-aid fund disbursements.
	DamayanFund = ledger.Kind{ID: "damayan_fund", Name: "Damayan Fund", CodePrefix: "DF#"}
)

func init() {
	ledger.RegisterKind(LoanRelease)
	ledger.RegisterKind(JournalVoucher)
	ledger.RegisterKind(ExpenseVoucher)
	ledger.RegisterKind(OfficialReceipt)
	ledger.RegisterKind(AcknowledgementReceipt)
	ledger.RegisterKind(EmergencyLoan)
	ledger.RegisterKind(DamayanFund)
}

// All returns the seven registered kinds.
func All() []ledger.Kind {
	return []ledger.Kind{
		LoanRelease,
		JournalVoucher,
		ExpenseVoucher,
		OfficialReceipt,
		AcknowledgementReceipt,
		EmergencyLoan,
		DamayanFund,
	}
}
