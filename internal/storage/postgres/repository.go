// Package postgres implements ledger.Store on PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/ledger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	transactionColumns = `id, owner_id, kind, amount::text, category, description,
	is_fixed, is_recurring, recurrence_interval, date`

	ownerColumns = `id, first_name, last_name, username, email, income_goal::text, expense_budget::text`

	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type Repository struct {
	pool *pgxpool.Pool
}

var _ ledger.Store = (*Repository)(nil)

// NewRepository connects to databaseURL, checks the connection and applies
// migrations.
func NewRepository(ctx context.Context, databaseURL string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Close() error {
	if r.pool != nil {
		r.pool.Close()
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repository) CreateOwner(ctx context.Context, o core.Owner) (core.Owner, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO owners (first_name, last_name, username, email, income_goal, expense_budget)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		o.FirstName, o.LastName, o.Username, o.Email,
		o.Budget.IncomeGoal.StringFixed(2), o.Budget.ExpenseBudget.StringFixed(2),
	).Scan(&o.ID)
	if err != nil {
		return core.Owner{}, fmt.Errorf("create owner: %w", mapError(err))
	}
	slog.InfoContext(ctx, "Owner saved to PostgreSQL", "id", o.ID, "username", o.Username)
	return o, nil
}

func (r *Repository) GetOwner(ctx context.Context, id int64) (core.Owner, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+ownerColumns+` FROM owners WHERE id = $1`, id)
	o, err := scanOwner(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Owner{}, fmt.Errorf("owner %d: %w", id, ledger.ErrNotFound)
	}
	if err != nil {
		return core.Owner{}, fmt.Errorf("get owner %d: %w", id, err)
	}
	return o, nil
}

func (r *Repository) UpdateOwner(ctx context.Context, o core.Owner) (core.Owner, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE owners SET first_name = $1, last_name = $2, username = $3, email = $4,
		 income_goal = $5, expense_budget = $6 WHERE id = $7`,
		o.FirstName, o.LastName, o.Username, o.Email,
		o.Budget.IncomeGoal.StringFixed(2), o.Budget.ExpenseBudget.StringFixed(2), o.ID)
	if err != nil {
		return core.Owner{}, fmt.Errorf("update owner %d: %w", o.ID, mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return core.Owner{}, fmt.Errorf("owner %d: %w", o.ID, ledger.ErrNotFound)
	}
	return o, nil
}

func (r *Repository) DeleteOwner(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM owners WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete owner %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("owner %d: %w", id, ledger.ErrNotFound)
	}
	return nil
}

func (r *Repository) ListOwners(ctx context.Context) ([]core.Owner, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+ownerColumns+` FROM owners ORDER BY id`)
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

func (r *Repository) SetBudget(ctx context.Context, ownerID int64, b core.BudgetSetting) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE owners SET income_goal = $1, expense_budget = $2 WHERE id = $3`,
		b.IncomeGoal.StringFixed(2), b.ExpenseBudget.StringFixed(2), ownerID)
	if err != nil {
		return fmt.Errorf("set budget for owner %d: %w", ownerID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("owner %d: %w", ownerID, ledger.ErrNotFound)
	}
	return nil
}

func (r *Repository) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO transactions (owner_id, kind, amount, category, description,
		 is_fixed, is_recurring, recurrence_interval, date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		tx.OwnerID, string(tx.Kind), tx.Amount.StringFixed(2), string(tx.Category), tx.Description,
		tx.IsFixed, tx.IsRecurring, intervalValue(tx.Interval), tx.Date.Time,
	).Scan(&tx.ID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create %s: %w", tx.Kind, mapError(err))
	}
	slog.InfoContext(ctx, "Transaction saved to PostgreSQL",
		"id", tx.ID,
		"owner_id", tx.OwnerID,
		"kind", tx.Kind,
		"amount", tx.Amount.StringFixed(2),
		"date", tx.Date.String())
	return tx, nil
}

func (r *Repository) GetTransaction(ctx context.Context, kind core.Kind, id int64) (core.Transaction, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1 AND kind = $2`, id, string(kind))
	tx, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("%s %d: %w", kind, id, ledger.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get %s %d: %w", kind, id, err)
	}
	return tx, nil
}

func (r *Repository) UpdateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE transactions SET owner_id = $1, amount = $2, category = $3, description = $4,
		 is_fixed = $5, is_recurring = $6, recurrence_interval = $7, date = $8
		 WHERE id = $9 AND kind = $10`,
		tx.OwnerID, tx.Amount.StringFixed(2), string(tx.Category), tx.Description,
		tx.IsFixed, tx.IsRecurring, intervalValue(tx.Interval), tx.Date.Time,
		tx.ID, string(tx.Kind))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update %s %d: %w", tx.Kind, tx.ID, mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return core.Transaction{}, fmt.Errorf("%s %d: %w", tx.Kind, tx.ID, ledger.ErrNotFound)
	}
	return tx, nil
}

func (r *Repository) DeleteTransaction(ctx context.Context, kind core.Kind, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM transactions WHERE id = $1 AND kind = $2`, id, string(kind))
	if err != nil {
		return fmt.Errorf("delete %s %d: %w", kind, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, ledger.ErrNotFound)
	}
	return nil
}

func (r *Repository) SumAmount(ctx context.Context, ownerID int64, f ledger.Filter) (decimal.NullDecimal, error) {
	where, args := filterClause(ownerID, f)
	var sum *string
	if err := r.pool.QueryRow(ctx, `SELECT SUM(amount)::text FROM transactions WHERE `+where, args...).Scan(&sum); err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("sum amount: %w", err)
	}
	if sum == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*sum)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("parse sum %q: %w", *sum, err)
	}
	return decimal.NewNullDecimal(d), nil
}

func (r *Repository) List(ctx context.Context, ownerID int64, f ledger.Filter) ([]core.Transaction, error) {
	where, args := filterClause(ownerID, f)
	rows, err := r.pool.Query(ctx,
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

// BulkUpdateDates writes all dates in one transaction that holds a per-owner
// advisory lock, so concurrent rollforwards for the same owner serialize.
func (r *Repository) BulkUpdateDates(ctx context.Context, ownerID int64, txs []core.Transaction) error {
	dbTx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = dbTx.Rollback(ctx) }()

	if _, err := dbTx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, ownerID); err != nil {
		return fmt.Errorf("lock owner %d: %w", ownerID, err)
	}

	batch := &pgx.Batch{}
	for _, tx := range txs {
		batch.Queue(`UPDATE transactions SET date = $1 WHERE id = $2 AND owner_id = $3`, tx.Date.Time, tx.ID, ownerID)
	}
	br := dbTx.SendBatch(ctx, batch)
	for _, tx := range txs {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return fmt.Errorf("update date of %d: %w", tx.ID, err)
		}
		if tag.RowsAffected() == 0 {
			br.Close()
			return fmt.Errorf("transaction %d: %w", tx.ID, ledger.ErrNotFound)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit date updates: %w", err)
	}
	slog.InfoContext(ctx, "Recurring dates updated in PostgreSQL", "owner_id", ownerID, "count", len(txs))
	return nil
}

func filterClause(ownerID int64, f ledger.Filter) (string, []any) {
	conds := []string{"owner_id = $1"}
	args := []any{ownerID}
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, cond+" $"+strconv.Itoa(len(args)))
	}
	if f.Kind != "" {
		add("kind =", string(f.Kind))
	}
	if f.Category != "" {
		add("category =", string(f.Category))
	}
	if !f.From.IsZero() {
		add("date >=", f.From.Time)
	}
	if !f.To.IsZero() {
		add("date <=", f.To.Time)
	}
	if f.RecurringOnly {
		conds = append(conds, "is_recurring")
	}
	return strings.Join(conds, " AND "), args
}

func scanOwner(row pgx.Row) (core.Owner, error) {
	var (
		o            core.Owner
		goal, budget string
	)
	if err := row.Scan(&o.ID, &o.FirstName, &o.LastName, &o.Username, &o.Email, &goal, &budget); err != nil {
		return core.Owner{}, err
	}
	var err error
	if o.Budget.IncomeGoal, err = decimal.NewFromString(goal); err != nil {
		return core.Owner{}, fmt.Errorf("income goal %q: %w", goal, err)
	}
	if o.Budget.ExpenseBudget, err = decimal.NewFromString(budget); err != nil {
		return core.Owner{}, fmt.Errorf("expense budget %q: %w", budget, err)
	}
	return o, nil
}

func scanTransaction(row pgx.Row) (core.Transaction, error) {
	var (
		tx       core.Transaction
		kind     string
		amount   string
		category string
		interval *string
		date     time.Time
	)
	if err := row.Scan(&tx.ID, &tx.OwnerID, &kind, &amount, &category, &tx.Description,
		&tx.IsFixed, &tx.IsRecurring, &interval, &date); err != nil {
		return core.Transaction{}, err
	}
	tx.Kind = core.Kind(kind)
	tx.Category = core.Category(category)
	tx.Date = core.DateOf(date)

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %d amount %q: %w", tx.ID, amount, err)
	}
	tx.Amount = d

	if interval != nil && *interval != "" {
		iv, err := core.ParseInterval(*interval)
		if err != nil {
			return core.Transaction{}, fmt.Errorf("transaction %d: %w", tx.ID, err)
		}
		tx.Interval = &iv
	}
	return tx, nil
}

func intervalValue(iv *core.Interval) *string {
	if iv == nil {
		return nil
	}
	s := iv.String()
	return &s
}

func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%w: %s", ledger.ErrConflict, pgErr.Detail)
		case foreignKeyViolation:
			return fmt.Errorf("owner: %w", ledger.ErrNotFound)
		}
	}
	return err
}
