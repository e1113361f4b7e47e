package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go-sales-insights/internal/model"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("not found")

// Store persists the upload history and user credentials in SQLite
type Store struct {
	db *sqlx.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	salt TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS uploads (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL,
	filename TEXT NOT NULL,
	uploaded_at DATETIME NOT NULL,
	"rows" INTEGER NOT NULL,
	"cols" INTEGER NOT NULL,
	checksum TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_uploads_user ON uploads (username, uploaded_at);
`

// Open connects to the database at path and creates tables if needed.
// ":memory:" gives a private in-memory database.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps :memory: databases and writes consistent
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the connection
func (s *Store) Close() error {
	return s.db.Close()
}

// ------------------- Upload History -------------------

// SaveUpload appends an upload to the history and fills in its ID
func (s *Store) SaveUpload(u *model.Upload) error {
	if u.UploadedAt.IsZero() {
		u.UploadedAt = time.Now()
	}
	u.UploadedAt = u.UploadedAt.UTC()

	res, err := s.db.NamedExec(`INSERT INTO uploads (username, filename, uploaded_at, "rows", "cols", checksum)
		VALUES (:username, :filename, :uploaded_at, :rows, :cols, :checksum)`, u)
	if err != nil {
		return fmt.Errorf("failed to save upload: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		u.ID = id
	}
	return nil
}

// ListUploads returns the uploads of one user, most recent first
func (s *Store) ListUploads(username string) ([]model.Upload, error) {
	uploads := []model.Upload{}
	err := s.db.Select(&uploads, `SELECT id, username, filename, uploaded_at, "rows", "cols", checksum
		FROM uploads WHERE username = ? ORDER BY uploaded_at DESC, id DESC`, username)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	return uploads, nil
}

// ------------------- Users -------------------

// CreateUser stores a new credential record
func (s *Store) CreateUser(u *model.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	u.CreatedAt = u.CreatedAt.UTC()

	res, err := s.db.NamedExec(`INSERT INTO users (username, password_hash, salt, created_at)
		VALUES (:username, :password_hash, :salt, :created_at)`, u)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		u.ID = id
	}
	return nil
}

// GetUser loads a user by name
func (s *Store) GetUser(username string) (*model.User, error) {
	var u model.User
	err := s.db.Get(&u, `SELECT id, username, password_hash, salt, created_at FROM users WHERE username = ?`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// UserExists reports whether a username is taken
func (s *Store) UserExists(username string) (bool, error) {
	var n int
	if err := s.db.Get(&n, `SELECT COUNT(*) FROM users WHERE username = ?`, username); err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return n > 0, nil
}
