package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/shop_client/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "modernc.org/sqlite"
)

// SQLiteCache stores cart lines in an embedded sqlite database. The handle
// is constructed and owned explicitly; there is no lazy global.
type SQLiteCache struct {
	db *sql.DB
}

func NewSQLiteCache(dbPath string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sqlite serializes writers anyway, and a single pooled connection keeps
	// :memory: databases from splitting per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteCache{db: db}, nil
}

func (c *SQLiteCache) RunMigrations(migrationsPath string) error {
	driver, err := sqlite.WithInstance(c.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"sqlite",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

const upsertQuery = `
	INSERT INTO cart_items (id, user_id, product_id, variant_id, quantity, added_at, updated_at, product_data)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		user_id = excluded.user_id,
		product_id = excluded.product_id,
		variant_id = excluded.variant_id,
		quantity = excluded.quantity,
		added_at = excluded.added_at,
		updated_at = excluded.updated_at,
		product_data = excluded.product_data
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertLine(ctx context.Context, ex execer, line domain.CartLine, product domain.Product) error {
	if err := line.Validate(); err != nil {
		return err
	}

	snapshot, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("failed to marshal product snapshot: %w", err)
	}

	_, err = ex.ExecContext(ctx, upsertQuery,
		line.ID,
		line.UserID,
		line.ProductID,
		nullableString(line.VariantID),
		line.Quantity,
		line.AddedAt.UTC().Format(timeLayout),
		line.UpdatedAt.UTC().Format(timeLayout),
		string(snapshot),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert cart line: %w", err)
	}
	return nil
}

func (c *SQLiteCache) Upsert(ctx context.Context, line domain.CartLine, product domain.Product) error {
	return upsertLine(ctx, c.db, line, product)
}

// ReplaceAll swaps the user's rows for exactly the given entries in one
// transaction, so a failure partway through leaves the previous set intact.
func (c *SQLiteCache) ReplaceAll(ctx context.Context, userID string, entries []domain.CartEntry) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin replace transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}

	for _, entry := range entries {
		if err := upsertLine(ctx, tx, entry.Line, entry.Product); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit replace transaction: %w", err)
	}
	return nil
}

func (c *SQLiteCache) ByUser(ctx context.Context, userID string) ([]domain.CartEntry, error) {
	query := `
		SELECT id, user_id, product_id, variant_id, quantity, added_at, updated_at, product_data
		FROM cart_items
		WHERE user_id = ?
		ORDER BY added_at DESC, id
	`

	rows, err := c.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart lines: %w", err)
	}
	defer rows.Close()

	var entries []domain.CartEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return entries, nil
}

func (c *SQLiteCache) ByUserAndProduct(ctx context.Context, userID, productID string, variantID *string) (*domain.CartLine, error) {
	query := `
		SELECT id, user_id, product_id, variant_id, quantity, added_at, updated_at, product_data
		FROM cart_items
		WHERE user_id = ? AND product_id = ? AND variant_id IS ?
	`

	rows, err := c.db.QueryContext(ctx, query, userID, productID, nullableString(variantID))
	if err != nil {
		return nil, fmt.Errorf("failed to query cart line: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("row iteration error: %w", err)
		}
		return nil, ErrLineNotFound
	}

	entry, err := scanEntry(rows)
	if err != nil {
		return nil, err
	}
	return &entry.Line, nil
}

func (c *SQLiteCache) UpdateQuantity(ctx context.Context, lineID string, quantity int) (int64, error) {
	if err := domain.ValidateQuantity(quantity); err != nil {
		return 0, err
	}

	result, err := c.db.ExecContext(ctx,
		`UPDATE cart_items SET quantity = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now') WHERE id = ?`,
		quantity, lineID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update quantity: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected, nil
}

func (c *SQLiteCache) Delete(ctx context.Context, lineID string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM cart_items WHERE id = ?`, lineID); err != nil {
		return fmt.Errorf("failed to delete cart line: %w", err)
	}
	return nil
}

func (c *SQLiteCache) Clear(ctx context.Context, userID string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

func (c *SQLiteCache) Count(ctx context.Context, userID string) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cart_items WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count cart lines: %w", err)
	}
	return count, nil
}

func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

// timeLayout keeps stored timestamps lexically sortable so added_at DESC
// works on the text column.
const timeLayout = "2006-01-02T15:04:05.000Z"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(rows rowScanner) (domain.CartEntry, error) {
	var (
		entry     domain.CartEntry
		variantID sql.NullString
		addedAt   string
		updatedAt string
		snapshot  string
	)

	err := rows.Scan(
		&entry.Line.ID,
		&entry.Line.UserID,
		&entry.Line.ProductID,
		&variantID,
		&entry.Line.Quantity,
		&addedAt,
		&updatedAt,
		&snapshot,
	)
	if err != nil {
		return entry, fmt.Errorf("failed to scan cart line: %w", err)
	}

	if variantID.Valid {
		entry.Line.VariantID = &variantID.String
	}
	if entry.Line.AddedAt, err = parseTime(addedAt); err != nil {
		return entry, err
	}
	if entry.Line.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return entry, err
	}
	if err := json.Unmarshal([]byte(snapshot), &entry.Product); err != nil {
		return entry, fmt.Errorf("failed to unmarshal product snapshot: %w", err)
	}
	return entry, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
