// Package sqlite is the embedded store used for local runs and tests. The
// database is opened with a single connection, so every statement is
// serialized and ":memory:" databases stay shared across calls.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IlyasAtabaev731/shopper/internal/domain/models"
	"github.com/IlyasAtabaev731/shopper/internal/storage"
	"github.com/IlyasAtabaev731/shopper/migrations"
	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type Storage struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens the database at path and applies the embedded schema.
func New(path string, logger *slog.Logger) (*Storage, error) {
	const op = "storage.sqlite.New"

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s := &Storage{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s, nil
}

func (s *Storage) migrate() error {
	src, err := iofs.New(migrations.FS, migrations.SQLiteDir)
	if err != nil {
		return err
	}

	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return err
	}

	// m.Close would close the shared *sql.DB, so it is not called here.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}

func (s *Storage) Stop() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

// SaveUser inserts the user together with a zeroed cart.
func (s *Storage) SaveUser(ctx context.Context, user models.User) error {
	const op = "storage.sqlite.SaveUser"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO users (id, name, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)",
		user.ID, user.Name, user.Email, user.PasswordHash, user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrEmailExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err = tx.ExecContext(ctx, `
		WITH RECURSIVE seq(n) AS (SELECT 0 UNION ALL SELECT n + 1 FROM seq WHERE n < ?)
		INSERT INTO cart_slots (user_id, slot, quantity) SELECT ?, n, 0 FROM seq`,
		models.CartSize-1, user.ID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) UserByEmail(ctx context.Context, email string) (models.User, error) {
	const op = "storage.sqlite.UserByEmail"

	var user models.User

	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, email, password_hash, created_at FROM users WHERE email = ?",
		email,
	).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (s *Storage) Cart(ctx context.Context, userID string) (models.Cart, error) {
	const op = "storage.sqlite.Cart"

	var cart models.Cart

	rows, err := s.db.QueryContext(ctx,
		"SELECT slot, quantity FROM cart_slots WHERE user_id = ? ORDER BY slot",
		userID,
	)
	if err != nil {
		return cart, fmt.Errorf("%s: %w", op, err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			s.logger.Error("Failed to close cart rows", "error", err)
		}
	}(rows)

	found := 0
	for rows.Next() {
		var slot, quantity int
		if err := rows.Scan(&slot, &quantity); err != nil {
			return cart, fmt.Errorf("%s: %w", op, err)
		}
		if models.ValidSlot(slot) {
			cart[slot] = quantity
		}
		found++
	}
	if err := rows.Err(); err != nil {
		return cart, fmt.Errorf("%s: %w", op, err)
	}

	if found == 0 {
		return cart, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	return cart, nil
}

// SaveCart overwrites every slot of the user's cart in one statement.
func (s *Storage) SaveCart(ctx context.Context, userID string, cart models.Cart) error {
	const op = "storage.sqlite.SaveCart"

	quantities, err := json.Marshal(cart[:])
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE cart_slots
		SET quantity = (SELECT value FROM json_each(?) WHERE json_each.key = cart_slots.slot)
		WHERE user_id = ?`,
		string(quantities), userID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	return nil
}

// AdjustCartSlot adds delta to one slot in a single statement. A change that
// would drive the quantity below zero leaves the slot untouched.
func (s *Storage) AdjustCartSlot(ctx context.Context, userID string, slot int, delta int) error {
	const op = "storage.sqlite.AdjustCartSlot"

	res, err := s.db.ExecContext(ctx,
		"UPDATE cart_slots SET quantity = quantity + ? WHERE user_id = ? AND slot = ? AND quantity + ? >= 0",
		delta, userID, slot, delta,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM users WHERE id = ?)", userID).Scan(&exists); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	return nil
}

// SaveProduct stores the product under the next sequential id. Computing the
// id and inserting happen in one statement on the single connection, so
// concurrent callers never observe the same maximum.
func (s *Storage) SaveProduct(ctx context.Context, product models.Product) (models.Product, error) {
	const op = "storage.sqlite.SaveProduct"

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (key, id, name, description, image, category, new_price, old_price, created_at, available)
		SELECT ?, COALESCE(MAX(id), 0) + 1, ?, ?, ?, ?, ?, ?, ?, ? FROM products
		RETURNING id`,
		product.Key, product.Name, product.Description, product.Image, product.Category,
		product.NewPrice, product.OldPrice, product.CreatedAt, product.Available,
	).Scan(&product.ID)
	if err != nil {
		return models.Product{}, fmt.Errorf("%s: %w", op, err)
	}

	return product, nil
}

// Products returns products in insertion order. An empty category matches all.
func (s *Storage) Products(ctx context.Context, category string) ([]models.Product, error) {
	const op = "storage.sqlite.Products"

	query := "SELECT key, id, name, description, image, category, new_price, old_price, created_at, available FROM products"
	args := []any{}
	if category != "" {
		query += " WHERE category = ?"
		args = append(args, category)
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			s.logger.Error("Failed to close products rows", "error", err)
		}
	}(rows)

	products := []models.Product{}
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.Key, &p.ID, &p.Name, &p.Description, &p.Image, &p.Category,
			&p.NewPrice, &p.OldPrice, &p.CreatedAt, &p.Available); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return products, nil
}

func (s *Storage) NextProductID(ctx context.Context) (int64, error) {
	const op = "storage.sqlite.NextProductID"

	var id int64
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(id), 0) + 1 FROM products").Scan(&id); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}
