package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/openlobby/lobbyd/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	access        TEXT NOT NULL DEFAULT 'agreement',
	email         TEXT NOT NULL DEFAULT '',
	register_date DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_login    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_ip       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS channel_history (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	channel   TEXT NOT NULL,
	sender    TEXT NOT NULL,
	recipient TEXT NOT NULL DEFAULT '',
	msg       TEXT NOT NULL,
	bridged   BOOLEAN NOT NULL DEFAULT 0,
	said_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_channel_history_channel
	ON channel_history(channel, said_at);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (creating if necessary) the SQLite database at dbPath and
// applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// FindUserByUsername retrieves an account by name.
func (s *SQLiteStore) FindUserByUsername(ctx context.Context, name string) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, access, email, register_date, last_login, last_ip
		FROM users
		WHERE username = ?
	`
	var u store.User
	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&u.ID,
		&u.Username,
		&u.PasswordHash,
		&u.Access,
		&u.Email,
		&u.RegisterDate,
		&u.LastLogin,
		&u.LastIP,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// CreateUser inserts a new account.
func (s *SQLiteStore) CreateUser(ctx context.Context, u *store.User) (*store.User, error) {
	access := u.Access
	if access == "" {
		access = "agreement"
	}
	query := `
		INSERT INTO users (username, password_hash, access, email, last_ip)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, u.Username, u.PasswordHash, access, u.Email, u.LastIP)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.findUserByID(ctx, id)
}

func (s *SQLiteStore) findUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, access, email, register_date, last_login, last_ip
		FROM users
		WHERE id = ?
	`
	var u store.User
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID,
		&u.Username,
		&u.PasswordHash,
		&u.Access,
		&u.Email,
		&u.RegisterDate,
		&u.LastLogin,
		&u.LastIP,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// TouchLastLogin records a successful login.
func (s *SQLiteStore) TouchLastLogin(ctx context.Context, id int64, ip string) error {
	query := `UPDATE users SET last_login = ?, last_ip = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, time.Now().UTC(), ip, id); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// AddChannelMessage appends one line of channel history.
func (s *SQLiteStore) AddChannelMessage(ctx context.Context, channel, sender, recipient, text string, bridged bool) error {
	query := `
		INSERT INTO channel_history (channel, sender, recipient, msg, bridged)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, channel, sender, recipient, text, bridged); err != nil {
		return fmt.Errorf("insert channel message: %w", err)
	}
	return nil
}

// ChannelHistory returns the most recent limit lines, newest last.
func (s *SQLiteStore) ChannelHistory(ctx context.Context, channel string, limit int) ([]store.ChannelMessage, error) {
	query := `
		SELECT id, channel, sender, recipient, msg, bridged, said_at
		FROM (
			SELECT * FROM channel_history
			WHERE channel = ?
			ORDER BY id DESC
			LIMIT ?
		)
		ORDER BY id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, channel, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []store.ChannelMessage
	for rows.Next() {
		var m store.ChannelMessage
		if err := rows.Scan(&m.ID, &m.Channel, &m.Sender, &m.Recipient, &m.Text, &m.Bridged, &m.SaidAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
