package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/vovakirdan/educhat/internal/store"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		id          BIGSERIAL PRIMARY KEY,
		room        TEXT NOT NULL DEFAULT 'global',
		uid         TEXT NOT NULL,
		sender_name TEXT NOT NULL,
		text        TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_room ON messages (room, created_at DESC, id DESC)`,
	`CREATE TABLE IF NOT EXISTS profiles (
		uid          TEXT PRIMARY KEY,
		name         TEXT NOT NULL DEFAULT '',
		display_name TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS identity_users (
		uid          TEXT PRIMARY KEY,
		email        TEXT NOT NULL DEFAULT '',
		display_name TEXT NOT NULL DEFAULT ''
	)`,
}

// PostgresStore implements store.Store on PostgreSQL through the pgx stdlib driver.
type PostgresStore struct {
	db *sql.DB
}

// New connects to dsn, tunes the pool and applies migrations.
func New(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &PostgresStore{db: db}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate runs the idempotent schema statements in order.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, query := range migrations {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// SaveMessage persists a message and sets its ID.
func (s *PostgresStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	query := `
		INSERT INTO messages (room, uid, sender_name, text, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	var id int64
	err := s.db.QueryRowContext(ctx, query, msg.Room, msg.UID, msg.SenderName, msg.Text, msg.CreatedAt.UTC()).Scan(&id)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	msg.ID = strconv.FormatInt(id, 10)
	return nil
}

// ListRecent retrieves the newest messages of a room in chronological order.
func (s *PostgresStore) ListRecent(ctx context.Context, room string, limit int) ([]*store.Message, error) {
	query := `
		SELECT id, room, uid, sender_name, text, created_at
		FROM messages
		WHERE room = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, room, store.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.Message, 0)
	for rows.Next() {
		var (
			msg store.Message
			id  int64
		)
		if err := rows.Scan(&id, &msg.Room, &msg.UID, &msg.SenderName, &msg.Text, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.ID = strconv.FormatInt(id, 10)
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	store.Reverse(messages)
	return messages, nil
}

// GetProfile retrieves a profile by uid.
func (s *PostgresStore) GetProfile(ctx context.Context, uid string) (*store.Profile, error) {
	var p store.Profile
	err := s.db.QueryRowContext(ctx, `SELECT uid, name, display_name FROM profiles WHERE uid = $1`, uid).
		Scan(&p.UID, &p.Name, &p.DisplayName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("profile %s: %w", uid, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query profile: %w", err)
	}
	return &p, nil
}

// GetIdentityUser retrieves an identity provider record by uid.
func (s *PostgresStore) GetIdentityUser(ctx context.Context, uid string) (*store.IdentityUser, error) {
	var u store.IdentityUser
	err := s.db.QueryRowContext(ctx, `SELECT uid, email, display_name FROM identity_users WHERE uid = $1`, uid).
		Scan(&u.UID, &u.Email, &u.DisplayName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("identity user %s: %w", uid, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query identity user: %w", err)
	}
	return &u, nil
}
