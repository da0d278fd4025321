/*
handlers.go - HTTP API handlers for the ledger transaction engine

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Documents (kind is one of the registered kind IDs, e.g. loan_release):
    GET    /api/documents/{kind}                 List documents of a kind
    POST   /api/documents/{kind}                 Create document with entries
    POST   /api/documents/{kind}/sync            Reconcile an offline batch
    GET    /api/documents/{kind}/{id}            Get document (entries+schedule)
    PUT    /api/documents/{kind}/{id}            Update header and entry diff
    DELETE /api/documents/{kind}/{id}            Soft-delete with cascade
    GET    /api/documents/{kind}/{id}/activities Activity trail

  Utilities:
    GET    /api/kinds                            Registered document kinds
    GET    /api/codes/check?kind=&code=          Code uniqueness dry-run
    GET    /api/schedule/preview?start=&weeks=   Schedule dry-run
    POST   /api/tally                            Balance-condition dry-run

REQUEST FLOW:
  1. Resolve the kind from the URL
  2. Parse and translate the request body
  3. Call the engine
  4. Serialize response
  5. Map domain errors to HTTP status

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed body, bad dates, empty entries
  - 404: Unknown kind, missing or deleted document
  - 409: Duplicate code, concurrent modification
  - 422: Tally mismatch, duplicate line numbers
  - 500: Persistence and other internal errors

SECURITY NOTE:
  Actor identity is read from X-Actor-ID / X-Actor-Name headers and is
  NOT authenticated here. Authentication happens upstream.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cooplend/ledger-engine/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine    *ledger.Engine
	IsCashLeg ledger.CashLegFunc
}

// NewHandler creates a new handler around the given engine. The cash-leg
// lookup is only used by the stateless tally dry-run endpoint; mutating
// endpoints go through the engine, which carries its own.
func NewHandler(engine *ledger.Engine, isCashLeg ledger.CashLegFunc) *Handler {
	return &Handler{Engine: engine, IsCashLeg: isCashLeg}
}

func actorFrom(r *http.Request) ledger.Actor {
	actor := ledger.Actor{
		ID:   r.Header.Get("X-Actor-ID"),
		Name: r.Header.Get("X-Actor-Name"),
	}
	if actor.ID == "" {
		actor.ID = "system"
	}
	if actor.Name == "" {
		actor.Name = actor.ID
	}
	return actor
}

func (h *Handler) kindFrom(r *http.Request) (ledger.Kind, error) {
	return ledger.LookupKind(chi.URLParam(r, "kind"))
}

// =============================================================================
// DOCUMENT HANDLERS
// =============================================================================

// ListDocuments returns all live documents of one kind, newest first.
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	kind, err := h.kindFrom(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	docs, err := h.Engine.ListDocuments(r.Context(), kind)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]DocumentDTO, 0, len(docs))
	for i := range docs {
		dtos = append(dtos, toDocumentDTO(&docs[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": dtos})
}

// GetDocument returns one document hydrated with its surviving entries
// and, for loan releases, its payment schedule.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	kind, err := h.kindFrom(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	id := ledger.DocumentID(chi.URLParam(r, "id"))
	doc, err := h.Engine.GetDocument(r.Context(), kind, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentDTO(doc))
}

// CreateDocument creates a document with its initial entries in one
// transaction. The response carries the hydrated document, including the
// generated schedule for loan releases.
func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	kind, err := h.kindFrom(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	doc := ledger.Document{
		Kind:        kind.ID,
		Code:        req.Code,
		Amount:      req.Amount,
		PeriodMonth: req.PeriodMonth,
		PeriodYear:  req.PeriodYear,
		CheckNumber: req.CheckNumber,
		BankCode:    req.BankCode,
		PayeeRef:    req.PayeeRef,
		Remarks:     req.Remarks,
		NoOfWeeks:   req.NoOfWeeks,
	}
	if req.Date != "" {
		t, err := parseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
		doc.Date = t
	}

	entries := make([]ledger.Entry, 0, len(req.Entries))
	for _, dto := range req.Entries {
		e, err := fromEntryDTO(dto)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid entry due date (use YYYY-MM-DD)", err)
			return
		}
		entries = append(entries, e)
	}

	created, err := h.Engine.Create(r.Context(), kind, doc, entries, actorFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDocumentDTO(created))
}

// UpdateDocument applies a header patch and an entry diff atomically.
// The tally is re-validated against the full surviving entry set after
// all mutations; on failure nothing is persisted.
func (h *Handler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	kind, err := h.kindFrom(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req UpdateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	patch := ledger.DocumentPatch{
		Code:            req.Code,
		Amount:          req.Amount,
		PeriodMonth:     req.PeriodMonth,
		PeriodYear:      req.PeriodYear,
		CheckNumber:     req.CheckNumber,
		BankCode:        req.BankCode,
		PayeeRef:        req.PayeeRef,
		Remarks:         req.Remarks,
		ExpectedVersion: req.ExpectedVersion,
	}
	if req.Date != nil {
		t, err := parseDate(*req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
		patch.Date = &t
	}

	var diff ledger.EntryDiff
	for _, dto := range req.Entries.Create {
		e, err := fromEntryDTO(dto)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid entry due date (use YYYY-MM-DD)", err)
			return
		}
		diff.Create = append(diff.Create, e)
	}
	for _, dto := range req.Entries.Update {
		p, err := fromEntryPatchDTO(dto)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid entry due date (use YYYY-MM-DD)", err)
			return
		}
		diff.Update = append(diff.Update, p)
	}
	for _, id := range req.Entries.DeleteIDs {
		diff.DeleteIDs = append(diff.DeleteIDs, ledger.EntryID(id))
	}

	id := ledger.DocumentID(chi.URLParam(r, "id"))
	updated, err := h.Engine.Update(r.Context(), kind, id, patch, diff, actorFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentDTO(updated))
}

// DeleteDocument soft-deletes a document and cascades to its entries
// and schedule. Deleting an already-deleted document reports 404.
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	kind, err := h.kindFrom(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	id := ledger.DocumentID(chi.URLParam(r, "id"))
	deleted, err := h.Engine.SoftDelete(r.Context(), kind, id, actorFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "deleted",
		"id":     string(deleted),
	})
}

// ListActivities returns the audit trail touching one document.
func (h *Handler) ListActivities(w http.ResponseWriter, r *http.Request) {
	kind, err := h.kindFrom(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	id := ledger.DocumentID(chi.URLParam(r, "id"))
	acts, err := h.Engine.ListActivities(r.Context(), kind, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]ActivityDTO, 0, len(acts))
	for _, act := range acts {
		dtos = append(dtos, toActivityDTO(act))
	}
	writeJSON(w, http.StatusOK, map[string]any{"activities": dtos})
}

// =============================================================================
// SYNC HANDLER
// =============================================================================

// SyncDocuments reconciles one offline batch for one kind. The whole
// batch commits or none of it does.
func (h *Handler) SyncDocuments(w http.ResponseWriter, r *http.Request) {
	kind, err := h.kindFrom(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	records := make([]ledger.ChangeRecord, 0, len(req.Records))
	for i, recDTO := range req.Records {
		rec, err := fromSyncRecordDTO(kind, recDTO)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid sync record %d", i), err)
			return
		}
		records = append(records, rec)
	}

	if err := h.Engine.ReconcileBatch(r.Context(), kind, records, actorFrom(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "synced",
		"records": len(records),
	})
}

func fromSyncRecordDTO(kind ledger.Kind, dto SyncRecordDTO) (ledger.ChangeRecord, error) {
	action := ledger.RecordAction(dto.Action)
	switch action {
	case ledger.ActionCreate, ledger.ActionUpdate, ledger.ActionDelete:
	default:
		return ledger.ChangeRecord{}, fmt.Errorf("unknown record action %q", dto.Action)
	}

	doc, err := fromSyncDocumentDTO(kind, dto.Document)
	if err != nil {
		return ledger.ChangeRecord{}, err
	}

	rec := ledger.ChangeRecord{Action: action, Document: doc}
	for _, ce := range dto.Entries {
		entryAction := ledger.EntryAction(ce.Action)
		switch entryAction {
		case ledger.EntryCreate, ledger.EntryUpdate, ledger.EntryDelete, ledger.EntryRetain:
		default:
			return ledger.ChangeRecord{}, fmt.Errorf("unknown entry action %q", ce.Action)
		}
		entry, err := fromEntryDTO(ce.Entry)
		if err != nil {
			return ledger.ChangeRecord{}, err
		}
		rec.Entries = append(rec.Entries, ledger.EntryChange{Action: entryAction, Entry: entry})
	}
	return rec, nil
}

// =============================================================================
// UTILITY HANDLERS
// =============================================================================

// ListKinds returns the registered document kinds.
func (h *Handler) ListKinds(w http.ResponseWriter, r *http.Request) {
	kinds := ledger.Kinds()
	out := make([]map[string]any, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, map[string]any{
			"id":           k.ID,
			"name":         k.Name,
			"code_prefix":  k.CodePrefix,
			"has_schedule": k.HasSchedule,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"kinds": out})
}

// CheckCode dry-runs code uniqueness for form-side validation. The
// authoritative check still happens inside the create transaction.
func (h *Handler) CheckCode(w http.ResponseWriter, r *http.Request) {
	kind, err := ledger.LookupKind(r.URL.Query().Get("kind"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "code query parameter is required", nil)
		return
	}

	unique, err := h.Engine.IsCodeUnique(r.Context(), kind, code)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"code":   ledger.NormalizeCode(kind, code),
		"unique": unique,
	})
}

// PreviewSchedule dry-runs schedule generation without persisting.
func (h *Handler) PreviewSchedule(w http.ResponseWriter, r *http.Request) {
	start, err := parseDate(r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start date (use YYYY-MM-DD)", err)
		return
	}
	weeks, err := strconv.Atoi(r.URL.Query().Get("weeks"))
	if err != nil || weeks < 0 {
		writeError(w, http.StatusBadRequest, "weeks must be a non-negative integer", err)
		return
	}

	schedule := ledger.GenerateSchedule(start, weeks)
	dtos := make([]ScheduleEntryDTO, 0, len(schedule))
	for _, se := range schedule {
		dtos = append(dtos, ScheduleEntryDTO{
			Week:    se.Week,
			DueDate: se.DueDate.Format(dateLayout),
			Paid:    se.Paid,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedule": dtos})
}

// CheckTally dry-runs the balance conditions for form-side validation.
func (h *Handler) CheckTally(w http.ResponseWriter, r *http.Request) {
	var req TallyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	entries := make([]ledger.Entry, 0, len(req.Entries))
	for _, dto := range req.Entries {
		e, err := fromEntryDTO(dto)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid entry due date (use YYYY-MM-DD)", err)
			return
		}
		entries = append(entries, e)
	}

	result := ledger.Tally(entries, req.Amount, h.IsCashLeg)
	_, hasDup := ledger.HasDuplicateLines(entries)
	writeJSON(w, http.StatusOK, TallyDTO{
		DebitCreditBalanced:    result.DebitCreditBalanced,
		NetDebitCreditBalanced: result.NetDebitCreditBalanced,
		NetAmountBalanced:      result.NetAmountBalanced,
		HasBankEntry:           ledger.HasBankEntry(entries, h.IsCashLeg),
		HasDuplicateLines:      hasDup,
	})
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrKindNotRegistered):
		writeError(w, http.StatusNotFound, "Unknown document kind", err)
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, "Document not found", err)
	case errors.Is(err, ledger.ErrCodeTaken):
		writeError(w, http.StatusConflict, "Document code already in use", err)
	case errors.Is(err, ledger.ErrConcurrentModification):
		writeError(w, http.StatusConflict, "Document was modified concurrently", err)
	case errors.Is(err, ledger.ErrTallyMismatch):
		writeError(w, http.StatusUnprocessableEntity, "Entries do not tally with document amount", err)
	case errors.Is(err, ledger.ErrDuplicateLine):
		writeError(w, http.StatusUnprocessableEntity, "Duplicate entry line numbers", err)
	case errors.Is(err, ledger.ErrEmptyEntries):
		writeError(w, http.StatusBadRequest, "Document must have at least one entry", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
