package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/ledger"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

const dsnPragmas = "?_pragma=foreign_keys(on)&_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=synchronous(normal)"

const transactionColumns = `id, owner_id, kind, amount_cents, category, description,
	is_fixed, is_recurring, recurrence_interval, date`

const ownerColumns = `id, first_name, last_name, username, email, income_goal_cents, expense_budget_cents`

// SQLiteRepository is a ledger.Store backed by a SQLite file. Amounts are
// stored as integer cents so SUM stays exact.
type SQLiteRepository struct {
	db *sql.DB
}

var _ ledger.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) CreateOwner(ctx context.Context, o core.Owner) (core.Owner, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO owners (first_name, last_name, username, email, income_goal_cents, expense_budget_cents)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		o.FirstName, o.LastName, o.Username, o.Email,
		core.ToCents(o.Budget.IncomeGoal), core.ToCents(o.Budget.ExpenseBudget))
	if err != nil {
		return core.Owner{}, fmt.Errorf("create owner: %w", mapError(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Owner{}, fmt.Errorf("owner id: %w", err)
	}
	o.ID = id
	slog.InfoContext(ctx, "Owner saved to SQLite", "id", id, "username", o.Username)
	return o, nil
}

func (r *SQLiteRepository) GetOwner(ctx context.Context, id int64) (core.Owner, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+ownerColumns+` FROM owners WHERE id = ?`, id)
	o, err := scanOwner(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Owner{}, fmt.Errorf("owner %d: %w", id, ledger.ErrNotFound)
	}
	if err != nil {
		return core.Owner{}, fmt.Errorf("get owner %d: %w", id, err)
	}
	return o, nil
}

func (r *SQLiteRepository) UpdateOwner(ctx context.Context, o core.Owner) (core.Owner, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE owners SET first_name = ?, last_name = ?, username = ?, email = ?,
		 income_goal_cents = ?, expense_budget_cents = ? WHERE id = ?`,
		o.FirstName, o.LastName, o.Username, o.Email,
		core.ToCents(o.Budget.IncomeGoal), core.ToCents(o.Budget.ExpenseBudget), o.ID)
	if err != nil {
		return core.Owner{}, fmt.Errorf("update owner %d: %w", o.ID, mapError(err))
	}
	if err := expectRow(res, "owner", o.ID); err != nil {
		return core.Owner{}, err
	}
	return o, nil
}

// DeleteOwner relies on ON DELETE CASCADE to remove the owner's transactions.
func (r *SQLiteRepository) DeleteOwner(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM owners WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete owner %d: %w", id, err)
	}
	return expectRow(res, "owner", id)
}

func (r *SQLiteRepository) ListOwners(ctx context.Context) ([]core.Owner, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+ownerColumns+` FROM owners ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	defer rows.Close()

	var owners []core.Owner
	for rows.Next() {
		o, err := scanOwner(rows)
		if err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		owners = append(owners, o)
	}
	return owners, rows.Err()
}

func (r *SQLiteRepository) SetBudget(ctx context.Context, ownerID int64, b core.BudgetSetting) error {
	// Out-of-range values would wrap when converted to cents.
	if err := b.Validate(); err != nil {
		return fmt.Errorf("set budget for owner %d: %w", ownerID, err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE owners SET income_goal_cents = ?, expense_budget_cents = ? WHERE id = ?`,
		core.ToCents(b.IncomeGoal), core.ToCents(b.ExpenseBudget), ownerID)
	if err != nil {
		return fmt.Errorf("set budget for owner %d: %w", ownerID, err)
	}
	return expectRow(res, "owner", ownerID)
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (owner_id, kind, amount_cents, category, description,
		 is_fixed, is_recurring, recurrence_interval, date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.OwnerID, string(tx.Kind), core.ToCents(tx.Amount), string(tx.Category), tx.Description,
		tx.IsFixed, tx.IsRecurring, intervalValue(tx.Interval), tx.Date.String())
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create %s: %w", tx.Kind, mapError(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("%s id: %w", tx.Kind, err)
	}
	tx.ID = id

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", tx.ID,
		"owner_id", tx.OwnerID,
		"kind", tx.Kind,
		"amount_cents", core.ToCents(tx.Amount),
		"date", tx.Date.String())
	return tx, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, kind core.Kind, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND kind = ?`, id, string(kind))
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("%s %d: %w", kind, id, ledger.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get %s %d: %w", kind, id, err)
	}
	return tx, nil
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET owner_id = ?, amount_cents = ?, category = ?, description = ?,
		 is_fixed = ?, is_recurring = ?, recurrence_interval = ?, date = ?
		 WHERE id = ? AND kind = ?`,
		tx.OwnerID, core.ToCents(tx.Amount), string(tx.Category), tx.Description,
		tx.IsFixed, tx.IsRecurring, intervalValue(tx.Interval), tx.Date.String(),
		tx.ID, string(tx.Kind))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update %s %d: %w", tx.Kind, tx.ID, mapError(err))
	}
	if err := expectRow(res, string(tx.Kind), tx.ID); err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, kind core.Kind, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND kind = ?`, id, string(kind))
	if err != nil {
		return fmt.Errorf("delete %s %d: %w", kind, id, err)
	}
	return expectRow(res, string(kind), id)
}

// SumAmount returns an invalid NullDecimal when no row matches.
func (r *SQLiteRepository) SumAmount(ctx context.Context, ownerID int64, f ledger.Filter) (decimal.NullDecimal, error) {
	where, args := filterClause(ownerID, f)
	var cents sql.NullInt64
	if err := r.db.QueryRowContext(ctx, `SELECT SUM(amount_cents) FROM transactions WHERE `+where, args...).Scan(&cents); err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("sum amount: %w", err)
	}
	if !cents.Valid {
		return decimal.NullDecimal{}, nil
	}
	return decimal.NewNullDecimal(core.FromCents(cents.Int64)), nil
}

func (r *SQLiteRepository) List(ctx context.Context, ownerID int64, f ledger.Filter) ([]core.Transaction, error) {
	where, args := filterClause(ownerID, f)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE `+where+` ORDER BY date DESC, id DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// BulkUpdateDates writes every date inside one transaction. A row that does
// not belong to ownerID aborts the whole batch.
func (r *SQLiteRepository) BulkUpdateDates(ctx context.Context, ownerID int64, txs []core.Transaction) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = dbTx.Rollback() }()

	stmt, err := dbTx.PrepareContext(ctx, `UPDATE transactions SET date = ? WHERE id = ? AND owner_id = ?`)
	if err != nil {
		return fmt.Errorf("prepare date update: %w", err)
	}
	defer stmt.Close()

	for _, tx := range txs {
		res, err := stmt.ExecContext(ctx, tx.Date.String(), tx.ID, ownerID)
		if err != nil {
			return fmt.Errorf("update date of %d: %w", tx.ID, err)
		}
		if err := expectRow(res, "transaction", tx.ID); err != nil {
			return err
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit date updates: %w", err)
	}
	slog.InfoContext(ctx, "Recurring dates updated in SQLite", "owner_id", ownerID, "count", len(txs))
	return nil
}

func filterClause(ownerID int64, f ledger.Filter) (string, []any) {
	conds := []string{"owner_id = ?"}
	args := []any{ownerID}
	if f.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, string(f.Category))
	}
	if !f.From.IsZero() {
		conds = append(conds, "date >= ?")
		args = append(args, f.From.String())
	}
	if !f.To.IsZero() {
		conds = append(conds, "date <= ?")
		args = append(args, f.To.String())
	}
	if f.RecurringOnly {
		conds = append(conds, "is_recurring = 1")
	}
	return strings.Join(conds, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOwner(s scanner) (core.Owner, error) {
	var (
		o                   core.Owner
		goalCents, budCents int64
	)
	if err := s.Scan(&o.ID, &o.FirstName, &o.LastName, &o.Username, &o.Email, &goalCents, &budCents); err != nil {
		return core.Owner{}, err
	}
	o.Budget = core.BudgetSetting{IncomeGoal: core.FromCents(goalCents), ExpenseBudget: core.FromCents(budCents)}
	return o, nil
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		tx       core.Transaction
		kind     string
		cents    int64
		category string
		interval sql.NullString
		date     string
	)
	if err := s.Scan(&tx.ID, &tx.OwnerID, &kind, &cents, &category, &tx.Description,
		&tx.IsFixed, &tx.IsRecurring, &interval, &date); err != nil {
		return core.Transaction{}, err
	}
	tx.Kind = core.Kind(kind)
	tx.Amount = core.FromCents(cents)
	tx.Category = core.Category(category)

	d, err := core.ParseDate(date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", tx.ID, err)
	}
	tx.Date = d

	if interval.Valid && interval.String != "" {
		iv, err := core.ParseInterval(interval.String)
		if err != nil {
			return core.Transaction{}, fmt.Errorf("transaction %d: %w", tx.ID, err)
		}
		tx.Interval = &iv
	}
	return tx, nil
}

func intervalValue(iv *core.Interval) any {
	if iv == nil {
		return nil
	}
	return iv.String()
}

func expectRow(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, ledger.ErrNotFound)
	}
	return nil
}

// mapError translates SQLite constraint failures into ledger errors.
func mapError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %v", ledger.ErrConflict, err)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("owner: %w", ledger.ErrNotFound)
	}
	return err
}
