package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// User is a registered account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	// Access is the stored comma-separated capability string,
	// e.g. "user" or "user,moderator".
	Access       string
	Email        string
	RegisterDate time.Time
	LastLogin    time.Time
	LastIP       string
}

// ChannelMessage is one persisted line of channel history.
type ChannelMessage struct {
	ID        int64
	Channel   string
	Sender    string
	Recipient string
	Text      string
	Bridged   bool
	SaidAt    time.Time
}

// Store is the persistence boundary consumed by the session engine.
// History writes are fire-and-forget from the message path: callers log
// failures and never propagate them.
type Store interface {
	// FindUserByUsername returns the account with the given name,
	// or ErrNotFound.
	FindUserByUsername(ctx context.Context, name string) (*User, error)
	// CreateUser inserts a new account and returns it with its id set.
	CreateUser(ctx context.Context, u *User) (*User, error)
	// TouchLastLogin records a successful login time and source address.
	TouchLastLogin(ctx context.Context, id int64, ip string) error
	// AddChannelMessage appends one line of channel history.
	// recipient is empty for channel-wide messages.
	AddChannelMessage(ctx context.Context, channel, sender, recipient, text string, bridged bool) error
	// ChannelHistory returns the most recent lines for a channel, newest last.
	ChannelHistory(ctx context.Context, channel string, limit int) ([]ChannelMessage, error)
	Close() error
}
