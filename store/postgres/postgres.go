// Package postgres provides a PostgreSQL-backed implementation of
// ledger.TxStore. Schema and behavior mirror store/sqlite; only the SQL
// dialect differs. The caller owns the *sql.DB (pooling, credentials).
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cooplend/ledger-engine/ledger"
	_ "github.com/lib/pq"
)

// Store implements ledger.TxStore using PostgreSQL.
type Store struct {
	db *sql.DB
	ops
}

// New wraps an open PostgreSQL connection and ensures the schema.
func New(db *sql.DB) (*Store, error) {
	store := &Store{db: db, ops: ops{db: db}}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Open opens a PostgreSQL connection from a DSN and ensures the schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	store, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
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

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		code TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		doc_date TIMESTAMPTZ NOT NULL,
		period_month INTEGER DEFAULT 0,
		period_year INTEGER DEFAULT 0,
		check_number TEXT DEFAULT '',
		bank_code TEXT DEFAULT '',
		payee_ref TEXT DEFAULT '',
		remarks TEXT DEFAULT '',
		no_of_weeks INTEGER DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 1,
		created_by TEXT DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		deleted_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_documents_kind
		ON documents(kind) WHERE deleted_at IS NULL;
	CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_code_live
		ON documents(UPPER(code)) WHERE deleted_at IS NULL;

	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id),
		kind TEXT NOT NULL,
		line INTEGER NOT NULL,
		account_code TEXT NOT NULL,
		debit NUMERIC NOT NULL,
		credit NUMERIC NOT NULL,
		client_ref TEXT DEFAULT '',
		week INTEGER DEFAULT 0,
		due_date TIMESTAMPTZ,
		deleted_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_entries_document
		ON entries(document_id) WHERE deleted_at IS NULL;

	CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id),
		week INTEGER NOT NULL,
		due_date TIMESTAMPTZ NOT NULL,
		paid BOOLEAN NOT NULL DEFAULT FALSE,
		deleted_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_schedules_document
		ON schedules(document_id) WHERE deleted_at IS NULL;

	CREATE TABLE IF NOT EXISTS activities (
		id TEXT PRIMARY KEY,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		resource TEXT NOT NULL,
		ref_ids TEXT NOT NULL,
		at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_activities_resource
		ON activities(resource, at);
	`
	_, err := s.db.Exec(schema)
	return err
}

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
	const query = `
		INSERT INTO documents
		(id, kind, code, amount, doc_date, period_month, period_year, check_number,
		 bank_code, payee_ref, remarks, no_of_weeks, version, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`

	_, err := o.db.ExecContext(ctx, query,
		doc.ID, doc.Kind, doc.Code, doc.Amount, doc.Date,
		doc.PeriodMonth, doc.PeriodYear, doc.CheckNumber, doc.BankCode,
		doc.PayeeRef, doc.Remarks, doc.NoOfWeeks, doc.Version,
		doc.CreatedBy, doc.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return &ledger.CodeTakenError{Code: doc.Code}
		}
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func (o ops) InsertEntries(ctx context.Context, entries []ledger.Entry) (int64, error) {
	const query = `
		INSERT INTO entries
		(id, document_id, kind, line, account_code, debit, credit, client_ref, week, due_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	var total int64
	for i := range entries {
		e := &entries[i]
		res, err := o.db.ExecContext(ctx, query,
			e.ID, e.DocumentID, e.Kind, e.Line, e.AccountCode,
			e.Debit, e.Credit, e.ClientRef, e.Week, e.DueDate)
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
	const query = `
		INSERT INTO schedules (id, document_id, week, due_date, paid)
		VALUES ($1,$2,$3,$4,$5)`

	var total int64
	for _, se := range schedule {
		res, err := o.db.ExecContext(ctx, query, se.ID, se.DocumentID, se.Week, se.DueDate, se.Paid)
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
	const query = `
		INSERT INTO activities (id, actor_id, action, resource, ref_ids, at)
		VALUES ($1,$2,$3,$4,$5,$6)`

	if _, err := o.db.ExecContext(ctx, query,
		act.ID, act.ActorID, act.Action, act.Resource, string(refs), act.At); err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}
	return nil
}

const documentColumns = `id, kind, code, amount, doc_date, period_month, period_year,
	check_number, bank_code, payee_ref, remarks, no_of_weeks, version, created_by, created_at`

func (o ops) GetDocument(ctx context.Context, kind string, id ledger.DocumentID) (*ledger.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1 AND kind = $2 AND deleted_at IS NULL`
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
	query := `SELECT ` + documentColumns + ` FROM documents WHERE kind = $1 AND deleted_at IS NULL ORDER BY code ASC`
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
	const query = `
		SELECT id, document_id, kind, line, account_code, debit, credit, client_ref, week, due_date
		FROM entries
		WHERE document_id = $1 AND deleted_at IS NULL
		ORDER BY line ASC`

	rows, err := o.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}
	defer rows.Close()

	var result []ledger.Entry
	for rows.Next() {
		var (
			e   ledger.Entry
			due sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.Kind, &e.Line, &e.AccountCode,
			&e.Debit, &e.Credit, &e.ClientRef, &e.Week, &due); err != nil {
			return nil, err
		}
		if due.Valid {
			t := due.Time
			e.DueDate = &t
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (o ops) LoadSchedule(ctx context.Context, id ledger.DocumentID) ([]ledger.ScheduleEntry, error) {
	const query = `
		SELECT id, document_id, week, due_date, paid
		FROM schedules
		WHERE document_id = $1 AND deleted_at IS NULL
		ORDER BY week ASC`

	rows, err := o.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule: %w", err)
	}
	defer rows.Close()

	var result []ledger.ScheduleEntry
	for rows.Next() {
		var se ledger.ScheduleEntry
		if err := rows.Scan(&se.ID, &se.DocumentID, &se.Week, &se.DueDate, &se.Paid); err != nil {
			return nil, err
		}
		result = append(result, se)
	}
	return result, rows.Err()
}

func (o ops) ListActivities(ctx context.Context, kind string, id ledger.DocumentID) ([]ledger.Activity, error) {
	const query = `
		SELECT id, actor_id, action, resource, ref_ids, at
		FROM activities
		WHERE resource = $1 AND ref_ids LIKE $2
		ORDER BY at DESC`

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
		)
		if err := rows.Scan(&act.ID, &act.ActorID, &act.Action, &act.Resource, &refs, &act.At); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(refs), &act.RefIDs); err != nil {
			return nil, err
		}
		result = append(result, act)
	}
	return result, rows.Err()
}

func (o ops) UpdateDocument(ctx context.Context, kind string, id ledger.DocumentID, patch ledger.DocumentPatch) (int64, error) {
	sets := []string{"version = version + 1"}
	var args []any

	addSet := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Code != nil {
		addSet("code", *patch.Code)
	}
	if patch.Amount != nil {
		addSet("amount", *patch.Amount)
	}
	if patch.Date != nil {
		addSet("doc_date", *patch.Date)
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

	args = append(args, id)
	query := `UPDATE documents SET ` + strings.Join(sets, ", ") +
		fmt.Sprintf(` WHERE id = $%d`, len(args))
	args = append(args, kind)
	query += fmt.Sprintf(` AND kind = $%d AND deleted_at IS NULL`, len(args))
	if patch.ExpectedVersion > 0 {
		args = append(args, patch.ExpectedVersion)
		query += fmt.Sprintf(` AND version = $%d`, len(args))
	}

	res, err := o.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) && patch.Code != nil {
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
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Line != nil {
		addSet("line", *patch.Line)
	}
	if patch.AccountCode != nil {
		addSet("account_code", *patch.AccountCode)
	}
	if patch.Debit != nil {
		addSet("debit", *patch.Debit)
	}
	if patch.Credit != nil {
		addSet("credit", *patch.Credit)
	}
	if patch.ClientRef != nil {
		addSet("client_ref", *patch.ClientRef)
	}
	if patch.Week != nil {
		addSet("week", *patch.Week)
	}
	if patch.DueDate != nil {
		addSet("due_date", *patch.DueDate)
	}
	if len(sets) == 0 {
		var count int64
		err := o.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM entries WHERE id = $1 AND document_id = $2 AND deleted_at IS NULL`,
			patch.ID, id).Scan(&count)
		return count, err
	}

	args = append(args, patch.ID)
	query := `UPDATE entries SET ` + strings.Join(sets, ", ") +
		fmt.Sprintf(` WHERE id = $%d`, len(args))
	args = append(args, id)
	query += fmt.Sprintf(` AND document_id = $%d AND deleted_at IS NULL`, len(args))

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
	args := []any{at, id}
	var in []string
	for _, eid := range entryIDs {
		args = append(args, eid)
		in = append(in, fmt.Sprintf("$%d", len(args)))
	}
	query := `UPDATE entries SET deleted_at = $1 WHERE document_id = $2 AND deleted_at IS NULL AND id IN (` +
		strings.Join(in, ", ") + `)`

	res, err := o.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete entries: %w", err)
	}
	return res.RowsAffected()
}

func (o ops) CascadeDeleteEntries(ctx context.Context, id ledger.DocumentID, at time.Time) (int64, error) {
	res, err := o.db.ExecContext(ctx,
		`UPDATE entries SET deleted_at = $1 WHERE document_id = $2`, at, id)
	if err != nil {
		return 0, fmt.Errorf("failed to cascade delete entries: %w", err)
	}
	return res.RowsAffected()
}

func (o ops) CascadeDeleteSchedule(ctx context.Context, id ledger.DocumentID, at time.Time) (int64, error) {
	res, err := o.db.ExecContext(ctx,
		`UPDATE schedules SET deleted_at = $1 WHERE document_id = $2`, at, id)
	if err != nil {
		return 0, fmt.Errorf("failed to cascade delete schedule: %w", err)
	}
	return res.RowsAffected()
}

func (o ops) SoftDeleteDocuments(ctx context.Context, kind string, ids []ledger.DocumentID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := []any{at, kind}
	var in []string
	for _, id := range ids {
		args = append(args, id)
		in = append(in, fmt.Sprintf("$%d", len(args)))
	}
	query := `UPDATE documents SET deleted_at = $1 WHERE kind = $2 AND deleted_at IS NULL AND id IN (` +
		strings.Join(in, ", ") + `)`

	res, err := o.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete documents: %w", err)
	}
	return res.RowsAffected()
}

func (o ops) CodeInUse(ctx context.Context, code string) (bool, error) {
	const query = `SELECT 1 FROM documents WHERE UPPER(code) = UPPER($1) AND deleted_at IS NULL LIMIT 1`

	var exists int
	err := o.db.QueryRowContext(ctx, query, code).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*ledger.Document, error) {
	var doc ledger.Document
	err := row.Scan(&doc.ID, &doc.Kind, &doc.Code, &doc.Amount, &doc.Date,
		&doc.PeriodMonth, &doc.PeriodYear, &doc.CheckNumber, &doc.BankCode,
		&doc.PayeeRef, &doc.Remarks, &doc.NoOfWeeks, &doc.Version,
		&doc.CreatedBy, &doc.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// 23505 is unique_violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
