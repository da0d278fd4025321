/*
Package sqlite provides a SQLite-backed implementation of ledger.TxStore.

PURPOSE:
  Production persistence for documents, entries, payment schedules, and
  activity records. The same schema and patterns apply to PostgreSQL
  (see store/postgres) - only SQL dialect differences.

TRANSACTIONS:
  WithTx opens a database transaction and hands the engine a Store view
  scoped to it. Every read inside the view sees the transaction's own
  writes, which the engine relies on when it reloads the surviving entry
  set for tally validation.

SOFT DELETION:
  Nothing is ever physically deleted. All delete operations set
  deleted_at; all reads filter on deleted_at IS NULL.

KEY TABLES:
  documents:  Headers of all seven kinds, discriminated by kind column.
              Code uniqueness is one namespace across kinds, enforced
              both by the engine's pre-check and by a partial unique
              index over live rows.
  entries:    Debit/credit lines, owned by a document.
  schedules:  Weekly amortization due dates (loan releases).
  activities: Append-only audit trail of mutations.

WAL MODE:
  SQLite is opened with WAL for better read concurrency and crash
  recovery. Foreign keys are on.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
  engine := ledger.NewEngine(store, chart.IsCashLeg)

SEE ALSO:
  - ledger/store.go: Interface definitions
  - store/postgres:  PostgreSQL implementation
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cooplend/ledger-engine/ledger"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	ops
}

// New creates a SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, ops: ops{db: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx executes fn inside one database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ops{db: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Document headers (all seven kinds, discriminated by kind)
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		code TEXT NOT NULL,
		amount TEXT NOT NULL,
		doc_date TEXT NOT NULL,
		period_month INTEGER DEFAULT 0,
		period_year INTEGER DEFAULT 0,
		check_number TEXT DEFAULT '',
		bank_code TEXT DEFAULT '',
		payee_ref TEXT DEFAULT '',
		remarks TEXT DEFAULT '',
		no_of_weeks INTEGER DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 1,
		created_by TEXT DEFAULT '',
		created_at TEXT NOT NULL,
		deleted_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_documents_kind
		ON documents(kind) WHERE deleted_at IS NULL;

	-- Codes share one uniqueness namespace across ALL kinds while live.
	-- The engine pre-checks; this index is the backstop.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_code_live
		ON documents(code) WHERE deleted_at IS NULL;

	-- Debit/credit lines
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id),
		kind TEXT NOT NULL,
		line INTEGER NOT NULL,
		account_code TEXT NOT NULL,
		debit TEXT NOT NULL,
		credit TEXT NOT NULL,
		client_ref TEXT DEFAULT '',
		week INTEGER DEFAULT 0,
		due_date TEXT,
		deleted_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_entries_document
		ON entries(document_id) WHERE deleted_at IS NULL;

	-- Weekly amortization schedules (loan releases)
	CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id),
		week INTEGER NOT NULL,
		due_date TEXT NOT NULL,
		paid INTEGER NOT NULL DEFAULT 0,
		deleted_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_schedules_document
		ON schedules(document_id) WHERE deleted_at IS NULL;

	-- Activity trail (append-only)
	CREATE TABLE IF NOT EXISTS activities (
		id TEXT PRIMARY KEY,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		resource TEXT NOT NULL,
		ref_ids TEXT NOT NULL,
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_activities_resource
		ON activities(resource, at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// OPERATIONS - Shared between the root connection and transaction views
// =============================================================================

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type ops struct {
	db dbtx
}

var _ ledger.Store = ops{}

func (o ops) InsertDocument(ctx context.Context, doc ledger.Document) error {
	query := `
		INSERT INTO documents
		(id, kind, code, amount, doc_date, period_month, period_year, check_number,
		 bank_code, payee_ref, remarks, no_of_weeks, version, created_by, created_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`
	_, err := o.db.ExecContext(ctx, query,
		doc.ID,
		doc.Kind,
		doc.Code,
		doc.Amount.String(),
		doc.Date.UTC().Format(time.RFC3339),
		doc.PeriodMonth,
		doc.PeriodYear,
		doc.CheckNumber,
		doc.BankCode,
		doc.PayeeRef,
		doc.Remarks,
		doc.NoOfWeeks,
		doc.Version,
		doc.CreatedBy,
		doc.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &ledger.CodeTakenError{Code: doc.Code}
		}
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func (o ops) InsertEntries(ctx context.Context, entries []ledger.Entry) (int64, error) {
	query := `
		INSERT INTO entries
		(id, document_id, kind, line, account_code, debit, credit, client_ref, week, due_date, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`
	var total int64
	for i := range entries {
		e := &entries[i]
		res, err := o.db.ExecContext(ctx, query,
			e.ID, e.DocumentID, e.Kind, e.Line, e.AccountCode,
			e.Debit.String(), e.Credit.String(), e.ClientRef, e.Week,
			nullTime(e.DueDate),
		)
		if err != nil {
			return total, fmt.Errorf("failed to insert entry: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (o ops) InsertSchedule(ctx context.Context, schedule []ledger.ScheduleEntry) (int64, error) {
	query := `
		INSERT INTO schedules (id, document_id, week, due_date, paid, deleted_at)
		VALUES (?, ?, ?, ?, ?, NULL)
	`
	var total int64
	for _, se := range schedule {
		res, err := o.db.ExecContext(ctx, query,
			se.ID, se.DocumentID, se.Week, se.DueDate.UTC().Format(time.RFC3339), boolToInt(se.Paid))
		if err != nil {
			return total, fmt.Errorf("failed to insert schedule entry: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (o ops) InsertActivity(ctx context.Context, act ledger.Activity) error {
	refs, _ := json.Marshal(act.RefIDs)
	_, err := o.db.ExecContext(ctx,
		`INSERT INTO activities (id, actor_id, action, resource, ref_ids, at) VALUES (?, ?, ?, ?, ?, ?)`,
		act.ID, act.ActorID, act.Action, act.Resource, string(refs), act.At.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}
	return nil
}

const documentColumns = `id, kind, code, amount, doc_date, period_month, period_year,
	check_number, bank_code, payee_ref, remarks, no_of_weeks, version, created_by, created_at`

func (o ops) GetDocument(ctx context.Context, kind string, id ledger.DocumentID) (*ledger.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = ? AND kind = ? AND deleted_at IS NULL`
	doc, err := scanDocument(o.db.QueryRowContext(ctx, query, id, kind))
	if err == sql.ErrNoRows {
		return nil, &ledger.NotFoundError{Resource: "document", ID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

func (o ops) ListDocuments(ctx context.Context, kind string) ([]ledger.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE kind = ? AND deleted_at IS NULL ORDER BY code ASC`
	rows, err := o.db.QueryContext(ctx, query, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var result []ledger.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *doc)
	}
	return result, rows.Err()
}

func (o ops) LoadEntries(ctx context.Context, id ledger.DocumentID) ([]ledger.Entry, error) {
	query := `
		SELECT id, document_id, kind, line, account_code, debit, credit, client_ref, week, due_date
		FROM entries
		WHERE document_id = ? AND deleted_at IS NULL
		ORDER BY line ASC
	`
	rows, err := o.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}
	defer rows.Close()

	var result []ledger.Entry
	for rows.Next() {
		var (
			e             ledger.Entry
			debit, credit string
			due           sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.Kind, &e.Line, &e.AccountCode,
			&debit, &credit, &e.ClientRef, &e.Week, &due); err != nil {
			return nil, err
		}
		if e.Debit, err = decimal.NewFromString(debit); err != nil {
			return nil, fmt.Errorf("bad debit amount %q: %w", debit, err)
		}
		if e.Credit, err = decimal.NewFromString(credit); err != nil {
			return nil, fmt.Errorf("bad credit amount %q: %w", credit, err)
		}
		if due.Valid {
			t, err := time.Parse(time.RFC3339, due.String)
			if err != nil {
				return nil, err
			}
			e.DueDate = &t
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (o ops) LoadSchedule(ctx context.Context, id ledger.DocumentID) ([]ledger.ScheduleEntry, error) {
	query := `
		SELECT id, document_id, week, due_date, paid
		FROM schedules
		WHERE document_id = ? AND deleted_at IS NULL
		ORDER BY week ASC
	`
	rows, err := o.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule: %w", err)
	}
	defer rows.Close()

	var result []ledger.ScheduleEntry
	for rows.Next() {
		var (
			se   ledger.ScheduleEntry
			due  string
			paid int
		)
		if err := rows.Scan(&se.ID, &se.DocumentID, &se.Week, &due, &paid); err != nil {
			return nil, err
		}
		if se.DueDate, err = time.Parse(time.RFC3339, due); err != nil {
			return nil, err
		}
		se.Paid = paid != 0
		result = append(result, se)
	}
	return result, rows.Err()
}

func (o ops) ListActivities(ctx context.Context, kind string, id ledger.DocumentID) ([]ledger.Activity, error) {
	// ref_ids is a JSON array; LIKE is good enough for an exact UUID.
	query := `
		SELECT id, actor_id, action, resource, ref_ids, at
		FROM activities
		WHERE resource = ? AND ref_ids LIKE ?
		ORDER BY at DESC
	`
	rows, err := o.db.QueryContext(ctx, query, kind, "%"+string(id)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	var result []ledger.Activity
	for rows.Next() {
		var (
			act  ledger.Activity
			refs string
			at   string
		)
		if err := rows.Scan(&act.ID, &act.ActorID, &act.Action, &act.Resource, &refs, &at); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(refs), &act.RefIDs); err != nil {
			return nil, err
		}
		if act.At, err = time.Parse(time.RFC3339, at); err != nil {
			return nil, err
		}
		result = append(result, act)
	}
	return result, rows.Err()
}

func (o ops) UpdateDocument(ctx context.Context, kind string, id ledger.DocumentID, patch ledger.DocumentPatch) (int64, error) {
	sets := []string{"version = version + 1"}
	args := []any{}

	addSet := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if patch.Code != nil {
		addSet("code", *patch.Code)
	}
	if patch.Amount != nil {
		addSet("amount", patch.Amount.String())
	}
	if patch.Date != nil {
		addSet("doc_date", patch.Date.UTC().Format(time.RFC3339))
	}
	if patch.PeriodMonth != nil {
		addSet("period_month", *patch.PeriodMonth)
	}
	if patch.PeriodYear != nil {
		addSet("period_year", *patch.PeriodYear)
	}
	if patch.CheckNumber != nil {
		addSet("check_number", *patch.CheckNumber)
	}
	if patch.BankCode != nil {
		addSet("bank_code", *patch.BankCode)
	}
	if patch.PayeeRef != nil {
		addSet("payee_ref", *patch.PayeeRef)
	}
	if patch.Remarks != nil {
		addSet("remarks", *patch.Remarks)
	}

	query := `UPDATE documents SET ` + strings.Join(sets, ", ") +
		` WHERE id = ? AND kind = ? AND deleted_at IS NULL`
	args = append(args, id, kind)
	if patch.ExpectedVersion > 0 {
		query += ` AND version = ?`
		args = append(args, patch.ExpectedVersion)
	}

	res, err := o.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueConstraintError(err) && patch.Code != nil {
			return 0, &ledger.CodeTakenError{Code: *patch.Code}
		}
		return 0, fmt.Errorf("failed to update document: %w", err)
	}
	return res.RowsAffected()
}

func (o ops) UpdateEntry(ctx context.Context, id ledger.DocumentID, patch ledger.EntryPatch) (int64, error) {
	var sets []string
	var args []any

	addSet := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if patch.Line != nil {
		addSet("line", *patch.Line)
	}
	if patch.AccountCode != nil {
		addSet("account_code", *patch.AccountCode)
	}
	if patch.Debit != nil {
		addSet("debit", patch.Debit.String())
	}
	if patch.Credit != nil {
		addSet("credit", patch.Credit.String())
	}
	if patch.ClientRef != nil {
		addSet("client_ref", *patch.ClientRef)
	}
	if patch.Week != nil {
		addSet("week", *patch.Week)
	}
	if patch.DueDate != nil {
		addSet("due_date", patch.DueDate.UTC().Format(time.RFC3339))
	}
	if len(sets) == 0 {
		// Nothing to set; still report whether the entry exists live.
		var count int64
		err := o.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM entries WHERE id = ? AND document_id = ? AND deleted_at IS NULL`,
			patch.ID, id).Scan(&count)
		return count, err
	}

	query := `UPDATE entries SET ` + strings.Join(sets, ", ") +
		` WHERE id = ? AND document_id = ? AND deleted_at IS NULL`
	args = append(args, patch.ID, id)

	res, err := o.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update entry: %w", err)
	}
	return res.RowsAffected()
}

func (o ops) SoftDeleteEntries(ctx context.Context, id ledger.DocumentID, entryIDs []ledger.EntryID, at time.Time) (int64, error) {
	if len(entryIDs) == 0 {
		return 0, nil
	}
	query := `UPDATE entries SET deleted_at = ? WHERE document_id = ? AND deleted_at IS NULL AND id IN (` +
		placeholders(len(entryIDs)) + `)`
	args := []any{at.UTC().Format(time.RFC3339), id}
	for _, eid := range entryIDs {
		args = append(args, eid)
	}
	res, err := o.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete entries: %w", err)
	}
	return res.RowsAffected()
}

func (o ops) CascadeDeleteEntries(ctx context.Context, id ledger.DocumentID, at time.Time) (int64, error) {
	res, err := o.db.ExecContext(ctx,
		`UPDATE entries SET deleted_at = ? WHERE document_id = ?`,
		at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return 0, fmt.Errorf("failed to cascade delete entries: %w", err)
	}
	return res.RowsAffected()
}

func (o ops) CascadeDeleteSchedule(ctx context.Context, id ledger.DocumentID, at time.Time) (int64, error) {
	res, err := o.db.ExecContext(ctx,
		`UPDATE schedules SET deleted_at = ? WHERE document_id = ?`,
		at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return 0, fmt.Errorf("failed to cascade delete schedule: %w", err)
	}
	return res.RowsAffected()
}

func (o ops) SoftDeleteDocuments(ctx context.Context, kind string, ids []ledger.DocumentID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := `UPDATE documents SET deleted_at = ? WHERE kind = ? AND deleted_at IS NULL AND id IN (` +
		placeholders(len(ids)) + `)`
	args := []any{at.UTC().Format(time.RFC3339), kind}
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := o.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete documents: %w", err)
	}
	return res.RowsAffected()
}

func (o ops) CodeInUse(ctx context.Context, code string) (bool, error) {
	var count int64
	err := o.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE UPPER(code) = UPPER(?) AND deleted_at IS NULL`,
		code).Scan(&count)
	return count > 0, err
}

// =============================================================================
// HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*ledger.Document, error) {
	var (
		doc             ledger.Document
		amount          string
		date, createdAt string
	)
	err := row.Scan(&doc.ID, &doc.Kind, &doc.Code, &amount, &date,
		&doc.PeriodMonth, &doc.PeriodYear, &doc.CheckNumber, &doc.BankCode,
		&doc.PayeeRef, &doc.Remarks, &doc.NoOfWeeks, &doc.Version,
		&doc.CreatedBy, &createdAt)
	if err != nil {
		return nil, err
	}
	if doc.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("bad amount %q: %w", amount, err)
	}
	if doc.Date, err = time.Parse(time.RFC3339, date); err != nil {
		return nil, err
	}
	if doc.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, err
	}
	return &doc, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
