package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IlyasAtabaev731/shopper/internal/domain/models"
	"github.com/IlyasAtabaev731/shopper/internal/storage"
	"github.com/IlyasAtabaev731/shopper/migrations"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

type Storage struct {
	db     *sql.DB
	logger *slog.Logger
}

func New(dbUrl string, logger *slog.Logger) (*Storage, error) {
	db, err := sql.Open("postgres", dbUrl)
	if err != nil {
		return nil, fmt.Errorf("database connection error %s", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect database error %s", err)
	}

	return &Storage{db: db, logger: logger}, nil
}

// NewWithDB wraps an already opened connection pool.
func NewWithDB(db *sql.DB, logger *slog.Logger) *Storage {
	return &Storage{db: db, logger: logger}
}

func (s *Storage) Stop() error {
	return s.db.Close()
}

// Migrate applies the embedded schema. ErrNoChange is not an error.
func (s *Storage) Migrate(migrationsTable string) error {
	const op = "storage.postgres.Migrate"

	src, err := iofs.New(migrations.FS, migrations.PostgresDir)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	driver, err := migratepg.WithInstance(s.db, &migratepg.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// SaveUser inserts the user together with a zeroed cart.
func (s *Storage) SaveUser(ctx context.Context, user models.User) error {
	const op = "storage.postgres.SaveUser"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO users (id, name, email, password_hash, created_at) VALUES ($1, $2, $3, $4, $5)",
		user.ID, user.Name, user.Email, user.PasswordHash, user.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%s: %w", op, storage.ErrEmailExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO cart_slots (user_id, slot, quantity) SELECT $1::text, s, 0 FROM generate_series(0, $2::int) AS s",
		user.ID, models.CartSize-1,
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
	const op = "storage.postgres.UserByEmail"

	var user models.User

	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, email, password_hash, created_at FROM users WHERE email = $1",
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
	const op = "storage.postgres.Cart"

	var cart models.Cart

	rows, err := s.db.QueryContext(ctx,
		"SELECT slot, quantity FROM cart_slots WHERE user_id = $1 ORDER BY slot",
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
	const op = "storage.postgres.SaveCart"

	quantities := make([]int64, len(cart))
	for i, n := range cart {
		quantities[i] = int64(n)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE cart_slots AS c SET quantity = v.quantity
		FROM unnest($2::bigint[]) WITH ORDINALITY AS v(quantity, idx)
		WHERE c.user_id = $1 AND c.slot = v.idx - 1`,
		userID, pq.Array(quantities),
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
	const op = "storage.postgres.AdjustCartSlot"

	res, err := s.db.ExecContext(ctx,
		"UPDATE cart_slots SET quantity = quantity + $3 WHERE user_id = $1 AND slot = $2 AND quantity + $3 >= 0",
		userID, slot, delta,
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

	exists, err := s.userExists(ctx, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	return nil
}

func (s *Storage) userExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)", userID).Scan(&exists)
	return exists, err
}

// SaveProduct stores the product under the next sequential id. The table lock
// serializes concurrent writers so two products never share an id.
func (s *Storage) SaveProduct(ctx context.Context, product models.Product) (models.Product, error) {
	const op = "storage.postgres.SaveProduct"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Product{}, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "LOCK TABLE products IN SHARE ROW EXCLUSIVE MODE"); err != nil {
		return models.Product{}, fmt.Errorf("%s: %w", op, err)
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO products (key, id, name, description, image, category, new_price, old_price, created_at, available)
		SELECT $1::text, COALESCE(MAX(id), 0) + 1, $2::text, $3::text, $4::text, $5::text,
			$6::double precision, $7::double precision, $8::timestamptz, $9::boolean
		FROM products
		RETURNING id`,
		product.Key, product.Name, product.Description, product.Image, product.Category,
		product.NewPrice, product.OldPrice, product.CreatedAt, product.Available,
	).Scan(&product.ID)
	if err != nil {
		return models.Product{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return models.Product{}, fmt.Errorf("%s: %w", op, err)
	}

	return product, nil
}

// Products returns products in insertion order. An empty category matches all.
func (s *Storage) Products(ctx context.Context, category string) ([]models.Product, error) {
	const op = "storage.postgres.Products"

	query := "SELECT key, id, name, description, image, category, new_price, old_price, created_at, available FROM products"
	args := []any{}
	if category != "" {
		query += " WHERE category = $1"
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
	const op = "storage.postgres.NextProductID"

	var id int64
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(id), 0) + 1 FROM products").Scan(&id); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}
