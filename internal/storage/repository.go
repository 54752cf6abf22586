package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"loanledger/internal/core"
)

// Dialect selects the SQL flavour of a repository.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

func (d Dialect) driverName() string {
	return string(d)
}

// SQLRepository implements Store on database/sql.
//
// With PostgreSQL the snapshot and obligation rows are locked with
// SELECT ... FOR UPDATE. SQLite has no row locks: the repository keeps a
// single connection and begins transactions IMMEDIATE, so writers are
// serialized.
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
}

var _ Store = (*SQLRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	return open(db, SQLite, dsn)
}

func NewPostgresRepository(dsn string) (*SQLRepository, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	return open(db, Postgres, dsn)
}

func open(db *sql.DB, dialect Dialect, dsn string) (*SQLRepository, error) {
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping database: %w", core.ErrStorageUnavailable, err)
	}

	if err := RunMigrations(dialect, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("Storage ready", "dialect", dialect)
	return &SQLRepository{db: db, dialect: dialect}, nil
}

func (r *SQLRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Dialect reports the SQL flavour of the repository.
func (r *SQLRepository) Dialect() Dialect {
	return r.dialect
}

// WithTx implements Store.
func (r *SQLRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) (err error) {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %w", core.ErrStorageUnavailable, err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, &txn{tx: sqlTx, dialect: r.dialect}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.ErrorContext(ctx, "Failed to roll back transaction", "error", rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: commit transaction: %w", core.ErrStorageUnavailable, err)
	}
	return nil
}

// txn binds the statements of Tx to one *sql.Tx.
type txn struct {
	tx      *sql.Tx
	dialect Dialect
}

// rebind rewrites ? placeholders into $n for PostgreSQL.
func (t *txn) rebind(query string) string {
	if t.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// forUpdate returns the row lock clause of the dialect.
func (t *txn) forUpdate() string {
	if t.dialect == Postgres {
		return " FOR UPDATE"
	}
	return ""
}

func (t *txn) AppendEntry(ctx context.Context, e core.LedgerEntry) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, t.rebind(`
		INSERT INTO ledger (account, date, counterparty, operation, debit, credit)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`),
		string(e.Account), e.Date.String(), e.Counterparty, nullString(e.Operation), int64(e.Debit), int64(e.Credit),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert ledger entry: %w", err)
	}
	return id, nil
}

func (t *txn) Balance(ctx context.Context, account core.Account) (core.BalanceSnapshot, error) {
	row := t.tx.QueryRowContext(ctx, t.rebind(`
		SELECT account, date, debit, credit, balance
		FROM balance WHERE account = ?`+t.forUpdate()), string(account))
	s, err := scanBalance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return s, fmt.Errorf("balance of %s: %w", account, core.ErrUnknownAccount)
	}
	if err != nil {
		return s, fmt.Errorf("get balance of %s: %w", account, err)
	}
	return s, nil
}

func (t *txn) SaveBalance(ctx context.Context, s core.BalanceSnapshot) error {
	res, err := t.tx.ExecContext(ctx, t.rebind(`
		UPDATE balance SET date = ?, debit = ?, credit = ?, balance = ?
		WHERE account = ?`),
		s.AsOf.String(), int64(s.TotalDebit), int64(s.TotalCredit), int64(s.Balance), string(s.Account))
	if err != nil {
		return fmt.Errorf("update balance of %s: %w", s.Account, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update balance of %s: %w", s.Account, core.ErrUnknownAccount)
	}
	return nil
}

func (t *txn) Balances(ctx context.Context) ([]core.BalanceSnapshot, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT account, date, debit, credit, balance FROM balance ORDER BY account`)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	defer rows.Close()

	var out []core.BalanceSnapshot
	for rows.Next() {
		s, err := scanBalance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (t *txn) Entries(ctx context.Context, account core.Account, start, stop core.Date) ([]core.LedgerEntry, error) {
	query := `SELECT id, account, date, counterparty, operation, debit, credit FROM ledger WHERE account = ?`
	args := []any{string(account)}
	if !start.IsZero() {
		query += ` AND date >= ?`
		args = append(args, start.String())
	}
	if !stop.IsZero() {
		query += ` AND date < ?`
		args = append(args, stop.String())
	}
	query += ` ORDER BY date, id`

	rows, err := t.tx.QueryContext(ctx, t.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries of %s: %w", account, err)
	}
	defer rows.Close()

	var out []core.LedgerEntry
	for rows.Next() {
		var (
			e         core.LedgerEntry
			acc       string
			date      dateColumn
			operation sql.NullString
			debit     int64
			credit    int64
		)
		if err := rows.Scan(&e.ID, &acc, &date, &e.Counterparty, &operation, &debit, &credit); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Account = core.Account(acc)
		e.Date = date.Date
		e.Operation = operation.String
		e.Debit = core.Cents(debit)
		e.Credit = core.Cents(credit)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (t *txn) SumEntries(ctx context.Context, account core.Account, cutoff core.Date) (core.Cents, core.Cents, error) {
	query := `SELECT COALESCE(SUM(debit), 0), COALESCE(SUM(credit), 0) FROM ledger WHERE account = ?`
	args := []any{string(account)}
	if !cutoff.IsZero() {
		query += ` AND date < ?`
		args = append(args, cutoff.String())
	}
	var debit, credit int64
	if err := t.tx.QueryRowContext(ctx, t.rebind(query), args...).Scan(&debit, &credit); err != nil {
		return 0, 0, fmt.Errorf("sum ledger entries of %s: %w", account, err)
	}
	return core.Cents(debit), core.Cents(credit), nil
}

func (t *txn) InsertObligation(ctx context.Context, o core.Obligation) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, t.rebind(`
		INSERT INTO timeline (amount, share_a, share_b, due_date, month, kind, fulfilled)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		int64(o.Amount), int64(o.ShareA), int64(o.ShareB), o.DueDate.String(), o.Month, string(o.Kind), o.Fulfilled,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert obligation: %w", err)
	}
	return id, nil
}

func (t *txn) CountObligations(ctx context.Context) (int, error) {
	var n int
	if err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM timeline`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count obligations: %w", err)
	}
	return n, nil
}

const obligationColumns = `id, amount, share_a, share_b, due_date, month, kind, fulfilled`

func (t *txn) Obligations(ctx context.Context) ([]core.Obligation, error) {
	return t.queryObligations(ctx, `SELECT `+obligationColumns+` FROM timeline ORDER BY due_date, id`)
}

func (t *txn) DueObligations(ctx context.Context, before core.Date) ([]core.Obligation, error) {
	return t.queryObligations(ctx, t.rebind(`
		SELECT `+obligationColumns+` FROM timeline
		WHERE due_date < ? AND fulfilled = ?
		ORDER BY due_date, id`), before.String(), false)
}

func (t *txn) LockObligation(ctx context.Context, id int64) (core.Obligation, error) {
	row := t.tx.QueryRowContext(ctx, t.rebind(`SELECT `+obligationColumns+` FROM timeline WHERE id = ?`+t.forUpdate()), id)
	o, err := scanObligation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return o, fmt.Errorf("obligation %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return o, fmt.Errorf("get obligation %d: %w", id, err)
	}
	return o, nil
}

func (t *txn) MarkFulfilled(ctx context.Context, id int64) (bool, error) {
	res, err := t.tx.ExecContext(ctx, t.rebind(`UPDATE timeline SET fulfilled = ? WHERE id = ? AND fulfilled = ?`), true, id, false)
	if err != nil {
		return false, fmt.Errorf("mark obligation %d fulfilled: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark obligation %d fulfilled: %w", id, err)
	}
	return n == 1, nil
}

func (t *txn) queryObligations(ctx context.Context, query string, args ...any) ([]core.Obligation, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list obligations: %w", err)
	}
	defer rows.Close()

	var out []core.Obligation
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan obligation: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBalance(row scanner) (core.BalanceSnapshot, error) {
	var (
		s                      core.BalanceSnapshot
		account                string
		date                   dateColumn
		debit, credit, balance int64
	)
	if err := row.Scan(&account, &date, &debit, &credit, &balance); err != nil {
		return s, err
	}
	s.Account = core.Account(account)
	s.AsOf = date.Date
	s.TotalDebit = core.Cents(debit)
	s.TotalCredit = core.Cents(credit)
	s.Balance = core.Cents(balance)
	return s, nil
}

func scanObligation(row scanner) (core.Obligation, error) {
	var (
		o                      core.Obligation
		amount, shareA, shareB int64
		due                    dateColumn
		kind                   string
	)
	if err := row.Scan(&o.ID, &amount, &shareA, &shareB, &due, &o.Month, &kind, &o.Fulfilled); err != nil {
		return o, err
	}
	o.Amount = core.Cents(amount)
	o.ShareA = core.Cents(shareA)
	o.ShareB = core.Cents(shareB)
	o.DueDate = due.Date
	o.Kind = core.ObligationKind(kind)
	return o, nil
}

// dateColumn scans both SQLite TEXT dates and PostgreSQL DATE values.
type dateColumn struct {
	core.Date
}

func (d *dateColumn) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		d.Date = core.DateOf(v)
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	default:
		return fmt.Errorf("unsupported date column type %T", src)
	}
}

func (d *dateColumn) parse(s string) error {
	if len(s) > len("2006-01-02") {
		s = s[:len("2006-01-02")]
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return fmt.Errorf("parse date column %q: %w", s, err)
	}
	d.Date = core.DateOf(t)
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
