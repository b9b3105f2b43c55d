// Package postgres implements storage.Store on PostgreSQL through the pgx
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"expense-ledger/internal/models"
	"expense-ledger/internal/storage"
)

const uniqueViolation = "23505"

// DB implements storage.Store over a *sql.DB opened with the pgx driver.
type DB struct {
	conn *sql.DB
}

var _ storage.Store = (*DB)(nil)

// New wraps an already opened connection pool. It does not run migrations.
func New(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

// Open connects to dsn, verifies the connection and migrates the schema.
func Open(ctx context.Context, dsn string) (*DB, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	if err := RunMigrations(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return New(conn), nil
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// CreateUser adds a user, returning storage.ErrUserExists when the username is taken.
func (db *DB) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	u := &models.User{ID: uuid.New(), Username: username, PasswordHash: passwordHash}
	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO users (id, username, password_hash) VALUES ($1, $2, $3) RETURNING created_at`,
		u.ID, u.Username, u.PasswordHash,
	).Scan(&u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, storage.ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}
	return &u, nil
}

// GetUserByID returns the user with the given id or storage.ErrNotFound.
func (db *DB) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(db.conn.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE id = $1`, id))
}

// GetUserByUsername returns the user with the given username or storage.ErrNotFound.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return scanUser(db.conn.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = $1`, username))
}

// UserCount returns the number of registered users.
func (db *DB) UserCount(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// CreateSession stores a session token for userID that expires at expiresAt.
func (db *DB) CreateSession(ctx context.Context, token string, userID uuid.UUID, expiresAt time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, expires_at, last_activity) VALUES ($1, $2, $3, now())`,
		token, userID, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// ValidateSession returns the session owner, or storage.ErrNotFound when the token is unknown or expired.
func (db *DB) ValidateSession(ctx context.Context, token string) (*storage.SessionInfo, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.password_hash, u.created_at, s.last_activity, s.expires_at
		FROM sessions s
		JOIN users u ON s.user_id = u.id
		WHERE s.token = $1 AND s.expires_at > now()
	`, token)

	var u models.User
	info := &storage.SessionInfo{User: &u}
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt, &info.LastActivity, &info.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("select session: %w", err)
	}
	return info, nil
}

// RenewSession moves the expiry of an existing session and records activity.
func (db *DB) RenewSession(ctx context.Context, token string, expiresAt time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE sessions SET last_activity = now(), expires_at = $1 WHERE token = $2`,
		expiresAt, token,
	)
	if err != nil {
		return fmt.Errorf("renew session: %w", err)
	}
	return nil
}

// DeleteSession removes a session. Unknown tokens are not an error.
func (db *DB) DeleteSession(ctx context.Context, token string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE token = $1`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// CleanExpiredSessions deletes expired sessions and returns how many were removed.
func (db *DB) CleanExpiredSessions(ctx context.Context) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("clean sessions: %w", err)
	}
	return res.RowsAffected()
}

// CreateExpense inserts e, assigning its ID and CreatedAt.
func (db *DB) CreateExpense(ctx context.Context, e *models.Expense) error {
	e.ID = uuid.New()
	err := db.conn.QueryRowContext(ctx, `
		INSERT INTO expenses (id, owner_id, title, category, amount, spent_on)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, e.ID, e.OwnerID, e.Title, e.Category, e.Amount, e.Date).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}
	return nil
}

const expenseColumns = `id, owner_id, title, category, amount, spent_on, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(s scanner) (models.Expense, error) {
	var e models.Expense
	err := s.Scan(&e.ID, &e.OwnerID, &e.Title, &e.Category, &e.Amount, &e.Date, &e.CreatedAt)
	return e, err
}

// GetExpense returns the owner's expense, or storage.ErrNotFound if it is absent or foreign.
func (db *DB) GetExpense(ctx context.Context, ownerID, id uuid.UUID) (*models.Expense, error) {
	e, err := scanExpense(db.conn.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = $1 AND owner_id = $2`, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("select expense: %w", err)
	}
	return &e, nil
}

// expectOneRow maps the rows affected by an owner-scoped statement: zero
// means the record is missing or belongs to someone else.
func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return storage.ErrNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

// UpdateExpense overwrites the editable fields of an expense owned by e.OwnerID.
func (db *DB) UpdateExpense(ctx context.Context, e *models.Expense) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE expenses SET title = $1, category = $2, amount = $3, spent_on = $4
		WHERE id = $5 AND owner_id = $6
	`, e.Title, e.Category, e.Amount, e.Date, e.ID, e.OwnerID)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	return expectOneRow(res)
}

// DeleteExpense removes an expense owned by ownerID.
func (db *DB) DeleteExpense(ctx context.Context, ownerID, id uuid.UUID) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM expenses WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return expectOneRow(res)
}

// ListExpenses returns the owner's expenses, newest date first.
func (db *DB) ListExpenses(ctx context.Context, ownerID uuid.UUID) ([]models.Expense, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE owner_id = $1 ORDER BY spent_on DESC, created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to select expenses: %w", err)
	}
	defer rows.Close()

	var result []models.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
