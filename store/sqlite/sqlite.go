/*
Package sqlite provides a SQLite-backed implementation of the ledger repositories.

PURPOSE:
  Implements invoice.Repository and payout.Repository using SQLite. In
  production the same patterns apply to PostgreSQL, with minor SQL dialect
  differences.

STORAGE MODEL:
  Each invoice and teacher payment is stored as one row: the columns the
  queries filter on (party, period, status, archived, version) plus the
  full value as JSON in payload_json. Line items, payment records and
  disputes travel inside the payload, so a save is a single-row write.

OPTIMISTIC CONCURRENCY:
  A value with Version 1 is INSERTed. Any later version is written with

    UPDATE ... WHERE id = ? AND version = ?   -- version = Version-1

  and zero affected rows means another writer got there first:
  *ledger.ConflictError (retryable).

IDEMPOTENT GENERATION:
  Partial unique indexes enforce one live entry per party and period:
  - idx_invoices_active_period: payer+period, cancelled invoices excluded
  - idx_payments_active_period: teacher+period, rejected payments excluded
  A violating INSERT fails with *ledger.DuplicatePeriodError, which closes
  the race between the services' pre-check and the write.

SEQUENCES:
  sequences(scope, value) holds the numbering counters. NextSequence
  increments and reads in one transaction.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  invoices := invoice.NewService(store, bus, invoice.DefaultPolicy(), logger)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - invoice/repository.go, payout/service.go: Repository contracts
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/tutoring-ledger/invoice"
	"github.com/warp/tutoring-ledger/ledger"
	"github.com/warp/tutoring-ledger/payout"
)

// Store implements invoice.Repository and payout.Repository using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ invoice.Repository = (*Store)(nil)
	_ payout.Repository  = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
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

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Invoices (one row per invoice, full value in payload_json)
	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		number TEXT NOT NULL UNIQUE,
		payer_id TEXT NOT NULL,
		period_year INTEGER NOT NULL,
		period_month INTEGER NOT NULL,
		status TEXT NOT NULL,
		archived INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		payload_json TEXT NOT NULL
	);

	-- CRITICAL: one live invoice per payer and period
	CREATE UNIQUE INDEX IF NOT EXISTS idx_invoices_active_period
		ON invoices(payer_id, period_year, period_month)
		WHERE status != 'cancelled';

	CREATE INDEX IF NOT EXISTS idx_invoices_payer_period
		ON invoices(payer_id, period_year, period_month);
	CREATE INDEX IF NOT EXISTS idx_invoices_status
		ON invoices(status, archived);

	-- Teacher payments
	CREATE TABLE IF NOT EXISTS teacher_payments (
		id TEXT PRIMARY KEY,
		number TEXT NOT NULL UNIQUE,
		teacher_id TEXT NOT NULL,
		period_year INTEGER NOT NULL,
		period_month INTEGER NOT NULL,
		status TEXT NOT NULL,
		archived INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL,
		calculated_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		payload_json TEXT NOT NULL
	);

	-- CRITICAL: one live payment per teacher and period
	CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_active_period
		ON teacher_payments(teacher_id, period_year, period_month)
		WHERE status != 'rejected';

	CREATE INDEX IF NOT EXISTS idx_payments_teacher_period
		ON teacher_payments(teacher_id, period_year, period_month);
	CREATE INDEX IF NOT EXISTS idx_payments_status
		ON teacher_payments(status, archived);

	-- Numbering counters, one per (prefix, party, period) scope
	CREATE TABLE IF NOT EXISTS sequences (
		scope TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SEQUENCES (ledger.Sequencer interface)
// =============================================================================

// NextSequence returns 1, 2, 3... per scope.
func (s *Store) NextSequence(ctx context.Context, scope string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sequences (scope, value) VALUES (?, 1)
		ON CONFLICT(scope) DO UPDATE SET value = value + 1
	`, scope)
	if err != nil {
		return 0, fmt.Errorf("failed to increment sequence: %w", err)
	}

	var value int
	if err := tx.QueryRowContext(ctx, "SELECT value FROM sequences WHERE scope = ?", scope).Scan(&value); err != nil {
		return 0, fmt.Errorf("failed to read sequence: %w", err)
	}
	return value, tx.Commit()
}

// =============================================================================
// INVOICES (invoice.Repository interface)
// =============================================================================

// LoadInvoice returns *ledger.NotFoundError for unknown IDs.
func (s *Store) LoadInvoice(ctx context.Context, id string) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload string
	err := s.db.QueryRowContext(ctx, "SELECT payload_json FROM invoices WHERE id = ?", id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ledger.NotFoundError{Entity: "invoice", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice: %w", err)
	}

	var inv invoice.Invoice
	if err := json.Unmarshal([]byte(payload), &inv); err != nil {
		return nil, fmt.Errorf("failed to decode invoice %s: %w", id, err)
	}
	return &inv, nil
}

// SaveInvoice inserts Version 1 and replaces later versions optimistically.
func (s *Store) SaveInvoice(ctx context.Context, inv invoice.Invoice) error {
	if err := inv.CheckInvariants(); err != nil {
		return err
	}
	payload, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("failed to encode invoice: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if inv.Version <= 1 {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO invoices
			(id, number, payer_id, period_year, period_month, status, archived, version,
			 created_at, updated_at, payload_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			inv.ID,
			inv.Number,
			inv.PayerID,
			inv.Period.Year,
			int(inv.Period.Month),
			string(inv.Status),
			inv.Archived,
			inv.Version,
			formatTime(inv.Timeline.CreatedAt),
			formatTime(inv.UpdatedAt),
			string(payload),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return s.invoiceInsertConflict(ctx, inv, err)
			}
			return fmt.Errorf("failed to insert invoice: %w", err)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE invoices
		SET status = ?, archived = ?, version = ?, updated_at = ?, payload_json = ?
		WHERE id = ? AND version = ?
	`,
		string(inv.Status),
		inv.Archived,
		inv.Version,
		formatTime(inv.UpdatedAt),
		string(payload),
		inv.ID,
		inv.Version-1,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return s.invoiceInsertConflict(ctx, inv, err)
		}
		return fmt.Errorf("failed to update invoice: %w", err)
	}
	return s.checkUpdated(ctx, res, "invoices", "invoice", inv.ID, inv.Version-1)
}

// invoiceInsertConflict turns a unique constraint violation into a typed error.
func (s *Store) invoiceInsertConflict(ctx context.Context, inv invoice.Invoice, cause error) error {
	if strings.Contains(cause.Error(), "invoices.payer_id") {
		var id, number string
		err := s.db.QueryRowContext(ctx, `
			SELECT id, number FROM invoices
			WHERE payer_id = ? AND period_year = ? AND period_month = ? AND status != 'cancelled'
		`, inv.PayerID, inv.Period.Year, int(inv.Period.Month)).Scan(&id, &number)
		if err != nil {
			return fmt.Errorf("failed to insert invoice: %w", cause)
		}
		return &ledger.DuplicatePeriodError{
			Scope:      fmt.Sprintf("payer %s for %s", inv.PayerID, inv.Period),
			ExistingID: id,
			Number:     number,
		}
	}
	return &ledger.ConflictError{Entity: "invoice", ID: inv.ID, Expected: inv.Version - 1, Actual: -1}
}

// InvoicesForPeriod returns every invoice of a payer for a period.
func (s *Store) InvoicesForPeriod(ctx context.Context, payerID string, period ledger.BillingPeriod) ([]invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryPayloads[invoice.Invoice](ctx, s.db, `
		SELECT payload_json FROM invoices
		WHERE payer_id = ? AND period_year = ? AND period_month = ?
		ORDER BY created_at ASC, number ASC
	`, payerID, period.Year, int(period.Month))
}

// ListInvoices returns invoices matching the filter, oldest first.
func (s *Store) ListInvoices(ctx context.Context, filter invoice.Filter) ([]invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if filter.PayerID != "" {
		where = append(where, "payer_id = ?")
		args = append(args, filter.PayerID)
	}
	if filter.Period != nil {
		where = append(where, "period_year = ? AND period_month = ?")
		args = append(args, filter.Period.Year, int(filter.Period.Month))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		clause, statusArgs := inClause("status", statuses)
		where = append(where, clause)
		args = append(args, statusArgs...)
	}
	if !filter.IncludeArchived {
		where = append(where, "archived = 0")
	}

	query := "SELECT payload_json FROM invoices" + whereSQL(where) + " ORDER BY created_at ASC, number ASC"
	return queryPayloads[invoice.Invoice](ctx, s.db, query, args...)
}

// =============================================================================
// TEACHER PAYMENTS (payout.Repository interface)
// =============================================================================

// LoadTeacherPayment returns *ledger.NotFoundError for unknown IDs.
func (s *Store) LoadTeacherPayment(ctx context.Context, id string) (*payout.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload string
	err := s.db.QueryRowContext(ctx, "SELECT payload_json FROM teacher_payments WHERE id = ?", id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ledger.NotFoundError{Entity: "payment", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}

	var p payout.Payment
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, fmt.Errorf("failed to decode payment %s: %w", id, err)
	}
	return &p, nil
}

// SaveTeacherPayment inserts Version 1 and replaces later versions optimistically.
func (s *Store) SaveTeacherPayment(ctx context.Context, p payout.Payment) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode payment: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Version <= 1 {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO teacher_payments
			(id, number, teacher_id, period_year, period_month, status, archived, version,
			 calculated_at, updated_at, payload_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			p.ID,
			p.Number,
			p.TeacherID,
			p.Period.Year,
			int(p.Period.Month),
			string(p.Status),
			p.Archived,
			p.Version,
			formatTime(p.CalculatedAt),
			formatTime(p.UpdatedAt),
			string(payload),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return s.paymentInsertConflict(ctx, p, err)
			}
			return fmt.Errorf("failed to insert payment: %w", err)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE teacher_payments
		SET status = ?, archived = ?, version = ?, updated_at = ?, payload_json = ?
		WHERE id = ? AND version = ?
	`,
		string(p.Status),
		p.Archived,
		p.Version,
		formatTime(p.UpdatedAt),
		string(payload),
		p.ID,
		p.Version-1,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	return s.checkUpdated(ctx, res, "teacher_payments", "payment", p.ID, p.Version-1)
}

func (s *Store) paymentInsertConflict(ctx context.Context, p payout.Payment, cause error) error {
	if strings.Contains(cause.Error(), "teacher_payments.teacher_id") {
		var id, number string
		err := s.db.QueryRowContext(ctx, `
			SELECT id, number FROM teacher_payments
			WHERE teacher_id = ? AND period_year = ? AND period_month = ? AND status != 'rejected'
		`, p.TeacherID, p.Period.Year, int(p.Period.Month)).Scan(&id, &number)
		if err != nil {
			return fmt.Errorf("failed to insert payment: %w", cause)
		}
		return &ledger.DuplicatePeriodError{
			Scope:      fmt.Sprintf("teacher %s for %s", p.TeacherID, p.Period),
			ExistingID: id,
			Number:     number,
		}
	}
	return &ledger.ConflictError{Entity: "payment", ID: p.ID, Expected: p.Version - 1, Actual: -1}
}

// TeacherPaymentsForPeriod returns every payment of a teacher for a period.
func (s *Store) TeacherPaymentsForPeriod(ctx context.Context, teacherID string, period ledger.BillingPeriod) ([]payout.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryPayloads[payout.Payment](ctx, s.db, `
		SELECT payload_json FROM teacher_payments
		WHERE teacher_id = ? AND period_year = ? AND period_month = ?
		ORDER BY calculated_at ASC, number ASC
	`, teacherID, period.Year, int(period.Month))
}

// ListTeacherPayments returns payments matching the filter, oldest first.
func (s *Store) ListTeacherPayments(ctx context.Context, filter payout.Filter) ([]payout.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if filter.TeacherID != "" {
		where = append(where, "teacher_id = ?")
		args = append(args, filter.TeacherID)
	}
	if filter.Period != nil {
		where = append(where, "period_year = ? AND period_month = ?")
		args = append(args, filter.Period.Year, int(filter.Period.Month))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		clause, statusArgs := inClause("status", statuses)
		where = append(where, clause)
		args = append(args, statusArgs...)
	}
	if !filter.IncludeArchived {
		where = append(where, "archived = 0")
	}

	query := "SELECT payload_json FROM teacher_payments" + whereSQL(where) + " ORDER BY calculated_at ASC, number ASC"
	return queryPayloads[payout.Payment](ctx, s.db, query, args...)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"invoices", "teacher_payments", "sequences"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// checkUpdated maps a zero-row UPDATE to NotFound or Conflict.
func (s *Store) checkUpdated(ctx context.Context, res sql.Result, table, entity, id string, expected int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", entity, err)
	}
	if n == 1 {
		return nil
	}

	var stored int64
	err = s.db.QueryRowContext(ctx, "SELECT version FROM "+table+" WHERE id = ?", id).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return &ledger.NotFoundError{Entity: entity, ID: id}
	}
	if err != nil {
		return fmt.Errorf("failed to read %s version: %w", entity, err)
	}
	return &ledger.ConflictError{Entity: entity, ID: id, Expected: expected, Actual: stored}
}

func queryPayloads[T any](ctx context.Context, db *sql.DB, query string, args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var result []T
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal([]byte(payload), &v); err != nil {
			return nil, fmt.Errorf("failed to decode row: %w", err)
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

func whereSQL(clauses []string) string {
	if len(clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}

func inClause(column string, values []string) (string, []any) {
	placeholders := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		args[i] = v
	}
	return column + " IN (" + strings.Join(placeholders, ", ") + ")", args
}

// Fixed-width so text ordering matches time ordering.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z")
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
