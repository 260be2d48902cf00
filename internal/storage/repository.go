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
	"time"

	"spendwise/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository implements store.Repository on a single SQLite file.
// Write transactions take the database lock up front (BEGIN IMMEDIATE), so
// the category-in-use check and expense inserts are serialised.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func dsn(dbPath string) string {
	return "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// withTx runs fn inside a write transaction and commits when it returns nil.
func (r *SQLiteRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const categoryColumns = `id, owner_id, name, color, budget_limit, is_default`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCategory(row rowScanner) (core.Category, error) {
	var (
		c      core.Category
		budget sql.NullFloat64
	)
	if err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Color, &budget, &c.IsDefault); err != nil {
		return core.Category{}, err
	}
	if budget.Valid {
		v := budget.Float64
		c.BudgetLimit = &v
	}
	return c, nil
}

func budgetArg(b *float64) sql.NullFloat64 {
	if b == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *b, Valid: true}
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, ownerID string) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE owner_id = ? ORDER BY created_at, rowid`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	out := []core.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, ownerID, id string) (core.Category, error) {
	c, err := scanCategory(r.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE owner_id = ? AND id = ?`, ownerID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.ErrCategoryNotFound
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

func insertCategory(ctx context.Context, tx *sql.Tx, c core.Category, now int64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO categories (`+categoryColumns+`, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.OwnerID, c.Name, c.Color, budgetArg(c.BudgetLimit), c.IsDefault, now, now)
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) SeedCategories(ctx context.Context, ownerID string, seed []core.Category) (bool, error) {
	inserted := false
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories WHERE owner_id = ?`, ownerID).Scan(&n); err != nil {
			return fmt.Errorf("count categories: %w", err)
		}
		if n > 0 {
			return nil
		}
		// Seeds share one timestamp; rowid keeps their order.
		now := r.now().UnixMilli()
		for _, c := range seed {
			c.OwnerID = ownerID
			if err := insertCategory(ctx, tx, c, now); err != nil {
				return err
			}
		}
		inserted = len(seed) > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	if inserted {
		slog.InfoContext(ctx, "Default categories seeded", "owner_id", ownerID, "count", len(seed))
	}
	return inserted, nil
}

func (r *SQLiteRepository) InsertCategory(ctx context.Context, c core.Category) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		return insertCategory(ctx, tx, c, r.now().UnixMilli())
	})
}

func (r *SQLiteRepository) UpdateCategory(ctx context.Context, ownerID, id string, apply func(core.Category) (core.Category, error)) (core.Category, error) {
	var out core.Category
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := scanCategory(tx.QueryRowContext(ctx,
			`SELECT `+categoryColumns+` FROM categories WHERE owner_id = ? AND id = ?`, ownerID, id))
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrCategoryNotFound
		}
		if err != nil {
			return fmt.Errorf("get category: %w", err)
		}

		next, err := apply(cur)
		if err != nil {
			return err
		}
		next.ID, next.OwnerID, next.IsDefault = cur.ID, cur.OwnerID, cur.IsDefault

		res, err := tx.ExecContext(ctx,
			`UPDATE categories SET name = ?, color = ?, budget_limit = ?, updated_at = ? WHERE owner_id = ? AND id = ?`,
			next.Name, next.Color, budgetArg(next.BudgetLimit), r.now().UnixMilli(), ownerID, id)
		if err != nil {
			return fmt.Errorf("update category: %w", err)
		}
		if err := requireAffected(res, core.ErrCategoryNotFound); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return core.Category{}, err
	}
	return out, nil
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, ownerID, id string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM categories WHERE owner_id = ? AND id = ?`, ownerID, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrCategoryNotFound
		}
		if err != nil {
			return fmt.Errorf("lookup category: %w", err)
		}

		var refs int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM expenses WHERE owner_id = ? AND category_id = ?`, ownerID, id).Scan(&refs); err != nil {
			return fmt.Errorf("count category expenses: %w", err)
		}
		if refs > 0 {
			return core.ErrCategoryInUse
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE owner_id = ? AND id = ?`, ownerID, id); err != nil {
			if isConstraintError(err) {
				return core.ErrCategoryInUse
			}
			return fmt.Errorf("delete category: %w", err)
		}
		return nil
	})
}

const expenseColumns = `id, owner_id, name, category_id, amount, date, notes, receipt_ref`

func scanExpense(row rowScanner) (core.Expense, error) {
	var e core.Expense
	err := row.Scan(&e.ID, &e.OwnerID, &e.Name, &e.CategoryID, &e.Amount, &e.Date, &e.Notes, &e.ReceiptRef)
	return e, err
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, ownerID string, f core.ExpenseFilter) ([]core.Expense, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	where := []string{"owner_id = ?"}
	args := []any{ownerID}
	if f.HasRange() {
		where = append(where, "date BETWEEN ? AND ?")
		args = append(args, *f.StartDate, *f.EndDate)
	}
	if f.CategoryID != "" {
		where = append(where, "category_id = ?")
		args = append(args, f.CategoryID)
	}
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY date DESC, created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	out := []core.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, ownerID, id string) (core.Expense, error) {
	e, err := scanExpense(r.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE owner_id = ? AND id = ?`, ownerID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, core.ErrExpenseNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense by id: %w", err)
	}
	return e, nil
}

// ownsCategory is evaluated inside the write transaction, so a concurrent
// category delete cannot slip in between the check and the write.
func ownsCategory(ctx context.Context, tx *sql.Tx, ownerID, categoryID string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM categories WHERE owner_id = ? AND id = ?`, ownerID, categoryID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrInvalidCategory
	}
	if err != nil {
		return fmt.Errorf("lookup category: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) InsertExpense(ctx context.Context, e core.Expense) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := ownsCategory(ctx, tx, e.OwnerID, e.CategoryID); err != nil {
			return err
		}
		now := r.now().UnixMilli()
		_, err := tx.ExecContext(ctx,
			`INSERT INTO expenses (`+expenseColumns+`, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.OwnerID, e.Name, e.CategoryID, e.Amount, e.Date, e.Notes, e.ReceiptRef, now, now)
		if err != nil {
			if isConstraintError(err) {
				return core.ErrInvalidCategory
			}
			return fmt.Errorf("insert expense: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) UpdateExpense(ctx context.Context, ownerID, id string, apply func(core.Expense) (core.Expense, error)) (core.Expense, error) {
	var out core.Expense
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := scanExpense(tx.QueryRowContext(ctx,
			`SELECT `+expenseColumns+` FROM expenses WHERE owner_id = ? AND id = ?`, ownerID, id))
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrExpenseNotFound
		}
		if err != nil {
			return fmt.Errorf("get expense by id: %w", err)
		}

		next, err := apply(cur)
		if err != nil {
			return err
		}
		next.ID, next.OwnerID = cur.ID, cur.OwnerID
		if next.CategoryID != cur.CategoryID {
			if err := ownsCategory(ctx, tx, ownerID, next.CategoryID); err != nil {
				return err
			}
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE expenses SET name = ?, category_id = ?, amount = ?, date = ?, notes = ?, receipt_ref = ?, updated_at = ?
			 WHERE owner_id = ? AND id = ?`,
			next.Name, next.CategoryID, next.Amount, next.Date, next.Notes, next.ReceiptRef, r.now().UnixMilli(), ownerID, id)
		if err != nil {
			if isConstraintError(err) {
				return core.ErrInvalidCategory
			}
			return fmt.Errorf("update expense: %w", err)
		}
		if err := requireAffected(res, core.ErrExpenseNotFound); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return core.Expense{}, err
	}
	return out, nil
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE owner_id = ? AND id = ?`, ownerID, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return requireAffected(res, core.ErrExpenseNotFound)
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
