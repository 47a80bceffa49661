package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/educhat/internal/store"
)

// Schema creates every table the chat subsystem reads or writes.
// profiles and identity_users are owned by other services and only read here.
const Schema = `
CREATE TABLE IF NOT EXISTS messages (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	room        TEXT NOT NULL DEFAULT 'global',
	uid         TEXT NOT NULL,
	sender_name TEXT NOT NULL,
	text        TEXT NOT NULL,
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room, created_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS profiles (
	uid          TEXT PRIMARY KEY,
	name         TEXT NOT NULL DEFAULT '',
	display_name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS identity_users (
	uid          TEXT PRIMARY KEY,
	email        TEXT NOT NULL DEFAULT '',
	display_name TEXT NOT NULL DEFAULT ''
);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the database at dbPath and applies Schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, Migrate)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema or seed rows.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate applies Schema to db.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== MessageStore implementation ====

// SaveMessage persists a message to storage.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	query := `
		INSERT INTO messages (room, uid, sender_name, text, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, msg.Room, msg.UID, msg.SenderName, msg.Text, msg.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	msg.ID = strconv.FormatInt(id, 10)
	return nil
}

// ListRecent retrieves the newest messages of a room in chronological order.
func (s *SQLiteStore) ListRecent(ctx context.Context, room string, limit int) ([]*store.Message, error) {
	query := `
		SELECT id, room, uid, sender_name, text, created_at
		FROM messages
		WHERE room = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
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

// ==== ProfileStore implementation ====

// GetProfile retrieves a profile by uid.
func (s *SQLiteStore) GetProfile(ctx context.Context, uid string) (*store.Profile, error) {
	query := `SELECT uid, name, display_name FROM profiles WHERE uid = ?`
	var p store.Profile
	err := s.db.QueryRowContext(ctx, query, uid).Scan(&p.UID, &p.Name, &p.DisplayName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("profile %s: %w", uid, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query profile: %w", err)
	}
	return &p, nil
}

// ==== IdentityStore implementation ====

// GetIdentityUser retrieves an identity provider record by uid.
func (s *SQLiteStore) GetIdentityUser(ctx context.Context, uid string) (*store.IdentityUser, error) {
	query := `SELECT uid, email, display_name FROM identity_users WHERE uid = ?`
	var u store.IdentityUser
	err := s.db.QueryRowContext(ctx, query, uid).Scan(&u.UID, &u.Email, &u.DisplayName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("identity user %s: %w", uid, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query identity user: %w", err)
	}
	return &u, nil
}
