// Package auth implements the broker's optional username/password check
// against a SQLite-backed credential table. A CONNECT that carries no
// username is accepted without consulting the store: authentication is
// part of the wire contract, not a hard requirement, per the broker's
// scope.
package auth

import (
	"database/sql"
	"errors"

	"github.com/sparrowmqtt/broker/pkg/er"
	h "github.com/sparrowmqtt/broker/pkg/hash"
)

// Store checks CONNECT credentials against a `users(username, secret)`
// table. A nil *sql.DB makes every Authenticate call a no-op success,
// matching a broker run without a configured credential store.
type Store struct {
	db *sql.DB
}

// New wraps db. Pass nil to disable credential checking entirely.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Authenticate verifies username/password against the stored bcrypt hash.
// It returns nil when no store is configured, when the username/password
// pair checks out, or — per the broker's accept-but-don't-enforce default
// — there is simply no store to check against.
func (s *Store) Authenticate(username, password string) error {
	if s.db == nil {
		return nil
	}

	var hash string
	err := s.db.QueryRow("SELECT secret FROM users WHERE username = ?", username).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &er.Err{Context: "auth.Authenticate", Message: er.ErrUserNotFound}
		}
		return &er.Err{Context: "auth.Authenticate", Message: err}
	}

	if !h.VerifyPasswd(hash, password) {
		return &er.Err{Context: "auth.Authenticate", Message: er.ErrInvalidPassword}
	}
	return nil
}

// EnsureSchema creates the users table if it does not already exist. Called
// once at startup against an optional credential store database.
func (s *Store) EnsureSchema() error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		secret   TEXT NOT NULL
	)`)
	return err
}

// AddUser hashes password and upserts a credential row.
func (s *Store) AddUser(username, password string) error {
	if s.db == nil {
		return &er.Err{Context: "auth.AddUser", Message: errors.New("no credential store configured")}
	}
	hash, err := h.HashPasswd(password, 12)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO users (username, secret) VALUES (?, ?)
		ON CONFLICT(username) DO UPDATE SET secret = excluded.secret`, username, hash)
	return err
}
