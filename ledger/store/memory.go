// Package store provides ledger.TxStore implementations.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cooplend/ledger-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	documents  map[ledger.DocumentID]ledger.Document
	entries    map[ledger.DocumentID][]ledger.Entry
	schedules  map[ledger.DocumentID][]ledger.ScheduleEntry
	activities []ledger.Activity
}

func NewMemory() *Memory {
	return &Memory{
		documents: make(map[ledger.DocumentID]ledger.Document),
		entries:   make(map[ledger.DocumentID][]ledger.Entry),
		schedules: make(map[ledger.DocumentID][]ledger.ScheduleEntry),
	}
}

// WithTx executes fn against a snapshot-backed view. For the memory
// store a transaction is simulated with a full snapshot + restore on
// error, the same all-or-nothing outcome a database transaction gives.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

// =============================================================================
// WRITES
// =============================================================================

func (m *Memory) InsertDocument(ctx context.Context, doc ledger.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertDocumentLocked(doc)
}

func (m *Memory) insertDocumentLocked(doc ledger.Document) error {
	doc.Entries = nil
	doc.Schedule = nil
	m.documents[doc.ID] = doc
	return nil
}

func (m *Memory) InsertEntries(ctx context.Context, entries []ledger.Entry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertEntriesLocked(entries)
}

func (m *Memory) insertEntriesLocked(entries []ledger.Entry) (int64, error) {
	for _, e := range entries {
		m.entries[e.DocumentID] = append(m.entries[e.DocumentID], e)
	}
	return int64(len(entries)), nil
}

func (m *Memory) InsertSchedule(ctx context.Context, schedule []ledger.ScheduleEntry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertScheduleLocked(schedule)
}

func (m *Memory) insertScheduleLocked(schedule []ledger.ScheduleEntry) (int64, error) {
	for _, se := range schedule {
		m.schedules[se.DocumentID] = append(m.schedules[se.DocumentID], se)
	}
	return int64(len(schedule)), nil
}

func (m *Memory) InsertActivity(ctx context.Context, act ledger.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertActivityLocked(act)
}

func (m *Memory) insertActivityLocked(act ledger.Activity) error {
	m.activities = append(m.activities, act)
	return nil
}

func (m *Memory) UpdateDocument(ctx context.Context, kind string, id ledger.DocumentID, patch ledger.DocumentPatch) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateDocumentLocked(kind, id, patch)
}

func (m *Memory) updateDocumentLocked(kind string, id ledger.DocumentID, patch ledger.DocumentPatch) (int64, error) {
	doc, ok := m.documents[id]
	if !ok || doc.Kind != kind || doc.DeletedAt != nil {
		return 0, nil
	}
	if patch.ExpectedVersion > 0 && doc.Version != patch.ExpectedVersion {
		return 0, nil
	}
	if patch.Code != nil {
		doc.Code = *patch.Code
	}
	if patch.Amount != nil {
		doc.Amount = *patch.Amount
	}
	if patch.Date != nil {
		doc.Date = *patch.Date
	}
	if patch.PeriodMonth != nil {
		doc.PeriodMonth = *patch.PeriodMonth
	}
	if patch.PeriodYear != nil {
		doc.PeriodYear = *patch.PeriodYear
	}
	if patch.CheckNumber != nil {
		doc.CheckNumber = *patch.CheckNumber
	}
	if patch.BankCode != nil {
		doc.BankCode = *patch.BankCode
	}
	if patch.PayeeRef != nil {
		doc.PayeeRef = *patch.PayeeRef
	}
	if patch.Remarks != nil {
		doc.Remarks = *patch.Remarks
	}
	doc.Version++
	m.documents[id] = doc
	return 1, nil
}

func (m *Memory) UpdateEntry(ctx context.Context, id ledger.DocumentID, patch ledger.EntryPatch) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateEntryLocked(id, patch)
}

func (m *Memory) updateEntryLocked(id ledger.DocumentID, patch ledger.EntryPatch) (int64, error) {
	entries := m.entries[id]
	for i := range entries {
		e := &entries[i]
		if e.ID != patch.ID || e.DeletedAt != nil {
			continue
		}
		if patch.Line != nil {
			e.Line = *patch.Line
		}
		if patch.AccountCode != nil {
			e.AccountCode = *patch.AccountCode
		}
		if patch.Debit != nil {
			e.Debit = *patch.Debit
		}
		if patch.Credit != nil {
			e.Credit = *patch.Credit
		}
		if patch.ClientRef != nil {
			e.ClientRef = *patch.ClientRef
		}
		if patch.Week != nil {
			e.Week = *patch.Week
		}
		if patch.DueDate != nil {
			due := *patch.DueDate
			e.DueDate = &due
		}
		return 1, nil
	}
	return 0, nil
}

func (m *Memory) SoftDeleteEntries(ctx context.Context, id ledger.DocumentID, entryIDs []ledger.EntryID, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.softDeleteEntriesLocked(id, entryIDs, at)
}

func (m *Memory) softDeleteEntriesLocked(id ledger.DocumentID, entryIDs []ledger.EntryID, at time.Time) (int64, error) {
	wanted := make(map[ledger.EntryID]bool, len(entryIDs))
	for _, eid := range entryIDs {
		wanted[eid] = true
	}
	var matched int64
	entries := m.entries[id]
	for i := range entries {
		if wanted[entries[i].ID] && entries[i].DeletedAt == nil {
			t := at
			entries[i].DeletedAt = &t
			matched++
		}
	}
	return matched, nil
}

func (m *Memory) CascadeDeleteEntries(ctx context.Context, id ledger.DocumentID, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cascadeDeleteEntriesLocked(id, at)
}

func (m *Memory) cascadeDeleteEntriesLocked(id ledger.DocumentID, at time.Time) (int64, error) {
	entries := m.entries[id]
	for i := range entries {
		t := at
		entries[i].DeletedAt = &t
	}
	return int64(len(entries)), nil
}

func (m *Memory) CascadeDeleteSchedule(ctx context.Context, id ledger.DocumentID, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cascadeDeleteScheduleLocked(id, at)
}

func (m *Memory) cascadeDeleteScheduleLocked(id ledger.DocumentID, at time.Time) (int64, error) {
	schedule := m.schedules[id]
	for i := range schedule {
		t := at
		schedule[i].DeletedAt = &t
	}
	return int64(len(schedule)), nil
}

func (m *Memory) SoftDeleteDocuments(ctx context.Context, kind string, ids []ledger.DocumentID, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.softDeleteDocumentsLocked(kind, ids, at)
}

func (m *Memory) softDeleteDocumentsLocked(kind string, ids []ledger.DocumentID, at time.Time) (int64, error) {
	var matched int64
	for _, id := range ids {
		doc, ok := m.documents[id]
		if !ok || doc.Kind != kind || doc.DeletedAt != nil {
			continue
		}
		t := at
		doc.DeletedAt = &t
		m.documents[id] = doc
		matched++
	}
	return matched, nil
}

// =============================================================================
// READS
// =============================================================================

func (m *Memory) GetDocument(ctx context.Context, kind string, id ledger.DocumentID) (*ledger.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getDocumentLocked(kind, id)
}

func (m *Memory) getDocumentLocked(kind string, id ledger.DocumentID) (*ledger.Document, error) {
	doc, ok := m.documents[id]
	if !ok || doc.Kind != kind || doc.DeletedAt != nil {
		return nil, &ledger.NotFoundError{Resource: "document", ID: string(id)}
	}
	return &doc, nil
}

func (m *Memory) LoadEntries(ctx context.Context, id ledger.DocumentID) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadEntriesLocked(id)
}

func (m *Memory) loadEntriesLocked(id ledger.DocumentID) ([]ledger.Entry, error) {
	var result []ledger.Entry
	for _, e := range m.entries[id] {
		if e.DeletedAt == nil {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Line < result[j].Line })
	return result, nil
}

func (m *Memory) LoadSchedule(ctx context.Context, id ledger.DocumentID) ([]ledger.ScheduleEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadScheduleLocked(id)
}

func (m *Memory) loadScheduleLocked(id ledger.DocumentID) ([]ledger.ScheduleEntry, error) {
	var result []ledger.ScheduleEntry
	for _, se := range m.schedules[id] {
		if se.DeletedAt == nil {
			result = append(result, se)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Week < result[j].Week })
	return result, nil
}

func (m *Memory) ListDocuments(ctx context.Context, kind string) ([]ledger.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listDocumentsLocked(kind)
}

func (m *Memory) listDocumentsLocked(kind string) ([]ledger.Document, error) {
	var result []ledger.Document
	for _, doc := range m.documents {
		if doc.Kind == kind && doc.DeletedAt == nil {
			result = append(result, doc)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}

func (m *Memory) ListActivities(ctx context.Context, kind string, id ledger.DocumentID) ([]ledger.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listActivitiesLocked(kind, id)
}

func (m *Memory) listActivitiesLocked(kind string, id ledger.DocumentID) ([]ledger.Activity, error) {
	var result []ledger.Activity
	for _, act := range m.activities {
		if act.Resource != kind {
			continue
		}
		for _, ref := range act.RefIDs {
			if ref == string(id) {
				result = append(result, act)
				break
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].At.After(result[j].At) })
	return result, nil
}

func (m *Memory) CodeInUse(ctx context.Context, code string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.codeInUseLocked(code)
}

func (m *Memory) codeInUseLocked(code string) (bool, error) {
	for _, doc := range m.documents {
		if doc.DeletedAt == nil && strings.EqualFold(doc.Code, code) {
			return true, nil
		}
	}
	return false, nil
}

// =============================================================================
// SNAPSHOT / RESTORE
// =============================================================================

type memorySnapshot struct {
	documents  map[ledger.DocumentID]ledger.Document
	entries    map[ledger.DocumentID][]ledger.Entry
	schedules  map[ledger.DocumentID][]ledger.ScheduleEntry
	activities []ledger.Activity
}

func (m *Memory) snapshot() memorySnapshot {
	docs := make(map[ledger.DocumentID]ledger.Document, len(m.documents))
	for k, v := range m.documents {
		docs[k] = v
	}
	entries := make(map[ledger.DocumentID][]ledger.Entry, len(m.entries))
	for k, v := range m.entries {
		entries[k] = append([]ledger.Entry{}, v...)
	}
	schedules := make(map[ledger.DocumentID][]ledger.ScheduleEntry, len(m.schedules))
	for k, v := range m.schedules {
		schedules[k] = append([]ledger.ScheduleEntry{}, v...)
	}
	return memorySnapshot{
		documents:  docs,
		entries:    entries,
		schedules:  schedules,
		activities: append([]ledger.Activity{}, m.activities...),
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.documents = s.documents
	m.entries = s.entries
	m.schedules = s.schedules
	m.activities = s.activities
}

// =============================================================================
// TRANSACTIONAL VIEW
// =============================================================================

// txView routes calls to the locked internals while WithTx holds the
// write lock.
type txView struct {
	parent *Memory
}

func (tv *txView) InsertDocument(_ context.Context, doc ledger.Document) error {
	return tv.parent.insertDocumentLocked(doc)
}

func (tv *txView) InsertEntries(_ context.Context, entries []ledger.Entry) (int64, error) {
	return tv.parent.insertEntriesLocked(entries)
}

func (tv *txView) InsertSchedule(_ context.Context, schedule []ledger.ScheduleEntry) (int64, error) {
	return tv.parent.insertScheduleLocked(schedule)
}

func (tv *txView) InsertActivity(_ context.Context, act ledger.Activity) error {
	return tv.parent.insertActivityLocked(act)
}

func (tv *txView) GetDocument(_ context.Context, kind string, id ledger.DocumentID) (*ledger.Document, error) {
	return tv.parent.getDocumentLocked(kind, id)
}

func (tv *txView) LoadEntries(_ context.Context, id ledger.DocumentID) ([]ledger.Entry, error) {
	return tv.parent.loadEntriesLocked(id)
}

func (tv *txView) LoadSchedule(_ context.Context, id ledger.DocumentID) ([]ledger.ScheduleEntry, error) {
	return tv.parent.loadScheduleLocked(id)
}

func (tv *txView) ListDocuments(_ context.Context, kind string) ([]ledger.Document, error) {
	return tv.parent.listDocumentsLocked(kind)
}

func (tv *txView) ListActivities(_ context.Context, kind string, id ledger.DocumentID) ([]ledger.Activity, error) {
	return tv.parent.listActivitiesLocked(kind, id)
}

func (tv *txView) UpdateDocument(_ context.Context, kind string, id ledger.DocumentID, patch ledger.DocumentPatch) (int64, error) {
	return tv.parent.updateDocumentLocked(kind, id, patch)
}

func (tv *txView) UpdateEntry(_ context.Context, id ledger.DocumentID, patch ledger.EntryPatch) (int64, error) {
	return tv.parent.updateEntryLocked(id, patch)
}

func (tv *txView) SoftDeleteEntries(_ context.Context, id ledger.DocumentID, entryIDs []ledger.EntryID, at time.Time) (int64, error) {
	return tv.parent.softDeleteEntriesLocked(id, entryIDs, at)
}

func (tv *txView) CascadeDeleteEntries(_ context.Context, id ledger.DocumentID, at time.Time) (int64, error) {
	return tv.parent.cascadeDeleteEntriesLocked(id, at)
}

func (tv *txView) CascadeDeleteSchedule(_ context.Context, id ledger.DocumentID, at time.Time) (int64, error) {
	return tv.parent.cascadeDeleteScheduleLocked(id, at)
}

func (tv *txView) SoftDeleteDocuments(_ context.Context, kind string, ids []ledger.DocumentID, at time.Time) (int64, error) {
	return tv.parent.softDeleteDocumentsLocked(kind, ids, at)
}

func (tv *txView) CodeInUse(_ context.Context, code string) (bool, error) {
	return tv.parent.codeInUseLocked(code)
}

var _ ledger.TxStore = (*Memory)(nil)
var _ ledger.Store = (*txView)(nil)
