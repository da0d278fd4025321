/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types
  decouple the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Field-level input validation (formats, lengths, referenced-entity
  existence) belongs to the upstream validation layer; handlers only
  parse and translate. Amounts ride as JSON numbers/strings and decode
  through decimal.Decimal.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/cooplend/ledger-engine/ledger"
	"github.com/shopspring/decimal"
)

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// DocumentDTO represents a ledger document in API responses.
type DocumentDTO struct {
	ID          string             `json:"id"`
	Kind        string             `json:"kind"`
	Code        string             `json:"code"`
	Amount      decimal.Decimal    `json:"amount"`
	Date        string             `json:"date"`
	PeriodMonth int                `json:"period_month,omitempty"`
	PeriodYear  int                `json:"period_year,omitempty"`
	CheckNumber string             `json:"check_number,omitempty"`
	BankCode    string             `json:"bank_code,omitempty"`
	PayeeRef    string             `json:"payee_ref,omitempty"`
	Remarks     string             `json:"remarks,omitempty"`
	NoOfWeeks   int                `json:"no_of_weeks,omitempty"`
	Version     int                `json:"version"`
	CreatedBy   string             `json:"created_by,omitempty"`
	CreatedAt   string             `json:"created_at,omitempty"`
	Entries     []EntryDTO         `json:"entries,omitempty"`
	Schedule    []ScheduleEntryDTO `json:"schedule,omitempty"`
}

// EntryDTO represents one debit/credit line.
type EntryDTO struct {
	ID          string          `json:"id,omitempty"`
	Line        int             `json:"line"`
	AccountCode string          `json:"account_code"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	ClientRef   string          `json:"client_ref,omitempty"`
	Week        int             `json:"week,omitempty"`
	DueDate     string          `json:"due_date,omitempty"`
}

// ScheduleEntryDTO represents one week of a payment schedule.
type ScheduleEntryDTO struct {
	Week    int    `json:"week"`
	DueDate string `json:"due_date"`
	Paid    bool   `json:"paid"`
}

// ActivityDTO represents one audit record.
type ActivityDTO struct {
	ID       string   `json:"id"`
	ActorID  string   `json:"actor_id"`
	Action   string   `json:"action"`
	Resource string   `json:"resource"`
	RefIDs   []string `json:"ref_ids"`
	At       string   `json:"at"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// TallyDTO reports the balance conditions of a tally dry-run.
type TallyDTO struct {
	DebitCreditBalanced    bool `json:"debit_credit_balanced"`
	NetDebitCreditBalanced bool `json:"net_debit_credit_balanced"`
	NetAmountBalanced      bool `json:"net_amount_balanced"`
	HasBankEntry           bool `json:"has_bank_entry"`
	HasDuplicateLines      bool `json:"has_duplicate_lines"`
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateDocumentRequest creates a document with its initial entries.
type CreateDocumentRequest struct {
	Code        string          `json:"code"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date"`
	PeriodMonth int             `json:"period_month"`
	PeriodYear  int             `json:"period_year"`
	CheckNumber string          `json:"check_number"`
	BankCode    string          `json:"bank_code"`
	PayeeRef    string          `json:"payee_ref"`
	Remarks     string          `json:"remarks"`
	NoOfWeeks   int             `json:"no_of_weeks"`
	Entries     []EntryDTO      `json:"entries"`
}

// UpdateDocumentRequest patches a header and applies an entry diff.
// Nil header fields are left untouched.
type UpdateDocumentRequest struct {
	Code            *string          `json:"code"`
	Amount          *decimal.Decimal `json:"amount"`
	Date            *string          `json:"date"`
	PeriodMonth     *int             `json:"period_month"`
	PeriodYear      *int             `json:"period_year"`
	CheckNumber     *string          `json:"check_number"`
	BankCode        *string          `json:"bank_code"`
	PayeeRef        *string          `json:"payee_ref"`
	Remarks         *string          `json:"remarks"`
	ExpectedVersion int              `json:"expected_version"`

	Entries EntryDiffRequest `json:"entries"`
}

// EntryDiffRequest is the entry portion of an update.
type EntryDiffRequest struct {
	Create    []EntryDTO      `json:"create"`
	Update    []EntryPatchDTO `json:"update"`
	DeleteIDs []string        `json:"delete_ids"`
}

// EntryPatchDTO patches one entry by ID. Nil fields are left untouched.
type EntryPatchDTO struct {
	ID          string           `json:"id"`
	Line        *int             `json:"line"`
	AccountCode *string          `json:"account_code"`
	Debit       *decimal.Decimal `json:"debit"`
	Credit      *decimal.Decimal `json:"credit"`
	ClientRef   *string          `json:"client_ref"`
	Week        *int             `json:"week"`
	DueDate     *string          `json:"due_date"`
}

// SyncRequest uploads one offline batch for one document kind.
type SyncRequest struct {
	Records []SyncRecordDTO `json:"records"`
}

// SyncRecordDTO is one client-tagged document change.
type SyncRecordDTO struct {
	Action   string         `json:"action"` // create | update | delete
	Document SyncDocumentDTO `json:"document"`
	Entries  []SyncEntryDTO `json:"entries"`
}

// SyncDocumentDTO is the document payload of a sync record.
type SyncDocumentDTO struct {
	ID          string          `json:"id"`
	Code        string          `json:"code"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date"`
	PeriodMonth int             `json:"period_month"`
	PeriodYear  int             `json:"period_year"`
	CheckNumber string          `json:"check_number"`
	BankCode    string          `json:"bank_code"`
	PayeeRef    string          `json:"payee_ref"`
	Remarks     string          `json:"remarks"`
	NoOfWeeks   int             `json:"no_of_weeks"`
}

// SyncEntryDTO is one client-tagged entry change.
type SyncEntryDTO struct {
	Action string   `json:"action"` // create | update | delete | retain
	Entry  EntryDTO `json:"entry"`
}

// TallyRequest dry-runs the balance conditions without persisting.
type TallyRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	Entries []EntryDTO      `json:"entries"`
}

// =============================================================================
// TRANSLATION
// =============================================================================

const dateLayout = "2006-01-02"

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func toDocumentDTO(doc *ledger.Document) DocumentDTO {
	dto := DocumentDTO{
		ID:          string(doc.ID),
		Kind:        doc.Kind,
		Code:        doc.Code,
		Amount:      doc.Amount,
		Date:        doc.Date.Format(dateLayout),
		PeriodMonth: doc.PeriodMonth,
		PeriodYear:  doc.PeriodYear,
		CheckNumber: doc.CheckNumber,
		BankCode:    doc.BankCode,
		PayeeRef:    doc.PayeeRef,
		Remarks:     doc.Remarks,
		NoOfWeeks:   doc.NoOfWeeks,
		Version:     doc.Version,
		CreatedBy:   doc.CreatedBy,
	}
	if !doc.CreatedAt.IsZero() {
		dto.CreatedAt = doc.CreatedAt.Format(time.RFC3339)
	}
	for i := range doc.Entries {
		dto.Entries = append(dto.Entries, toEntryDTO(&doc.Entries[i]))
	}
	for _, se := range doc.Schedule {
		dto.Schedule = append(dto.Schedule, ScheduleEntryDTO{
			Week:    se.Week,
			DueDate: se.DueDate.Format(dateLayout),
			Paid:    se.Paid,
		})
	}
	return dto
}

func toEntryDTO(e *ledger.Entry) EntryDTO {
	dto := EntryDTO{
		ID:          string(e.ID),
		Line:        e.Line,
		AccountCode: e.AccountCode,
		Debit:       e.Debit,
		Credit:      e.Credit,
		ClientRef:   e.ClientRef,
		Week:        e.Week,
	}
	if e.DueDate != nil {
		dto.DueDate = e.DueDate.Format(dateLayout)
	}
	return dto
}

func fromEntryDTO(dto EntryDTO) (ledger.Entry, error) {
	e := ledger.Entry{
		ID:          ledger.EntryID(dto.ID),
		Line:        dto.Line,
		AccountCode: dto.AccountCode,
		Debit:       dto.Debit,
		Credit:      dto.Credit,
		ClientRef:   dto.ClientRef,
		Week:        dto.Week,
	}
	if dto.DueDate != "" {
		t, err := parseDate(dto.DueDate)
		if err != nil {
			return ledger.Entry{}, err
		}
		e.DueDate = &t
	}
	return e, nil
}

func fromEntryPatchDTO(dto EntryPatchDTO) (ledger.EntryPatch, error) {
	patch := ledger.EntryPatch{
		ID:          ledger.EntryID(dto.ID),
		Line:        dto.Line,
		AccountCode: dto.AccountCode,
		Debit:       dto.Debit,
		Credit:      dto.Credit,
		ClientRef:   dto.ClientRef,
		Week:        dto.Week,
	}
	if dto.DueDate != nil {
		t, err := parseDate(*dto.DueDate)
		if err != nil {
			return ledger.EntryPatch{}, err
		}
		patch.DueDate = &t
	}
	return patch, nil
}

func fromSyncDocumentDTO(kind ledger.Kind, dto SyncDocumentDTO) (ledger.Document, error) {
	doc := ledger.Document{
		ID:          ledger.DocumentID(dto.ID),
		Kind:        kind.ID,
		Code:        dto.Code,
		Amount:      dto.Amount,
		PeriodMonth: dto.PeriodMonth,
		PeriodYear:  dto.PeriodYear,
		CheckNumber: dto.CheckNumber,
		BankCode:    dto.BankCode,
		PayeeRef:    dto.PayeeRef,
		Remarks:     dto.Remarks,
		NoOfWeeks:   dto.NoOfWeeks,
	}
	if dto.Date != "" {
		t, err := parseDate(dto.Date)
		if err != nil {
			return ledger.Document{}, err
		}
		doc.Date = t
	}
	return doc, nil
}

func toActivityDTO(act ledger.Activity) ActivityDTO {
	return ActivityDTO{
		ID:       act.ID,
		ActorID:  act.ActorID,
		Action:   act.Action,
		Resource: act.Resource,
		RefIDs:   act.RefIDs,
		At:       act.At.Format(time.RFC3339),
	}
}
