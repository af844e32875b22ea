package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlite "modernc.org/sqlite"
)

const (
	sqliteConstraintCode = 19
	defaultBusyTimeout   = 5000
)

// Store wraps the SQLite handle and exposes the queries used by the HTTP layer.
type Store struct {
	db *sql.DB
}

// User represents a row in the users table.
type User struct {
	ID           string
	Email        string
	Fullname     string
	PasswordHash []byte
	ProfilePic   string
	CreatedAt    time.Time
}

// Session is a persisted login, keyed by the token's jti.
type Session struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Message is a persisted chat message. At least one of Text/Image is set.
type Message struct {
	ID         string
	SenderID   string
	ReceiverID string
	Text       string
	Image      string
	CreatedAt  time.Time
}

// ErrUserExists is returned when attempting to insert a duplicate email.
var ErrUserExists = errors.New("user already exists")

// ErrEmptyMessage is returned when a message carries neither text nor image.
var ErrEmptyMessage = errors.New("message needs text or image")

// NewStore opens the SQLite database at the provided path. Call Close when done.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "chatline.db"
	}
	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildDSN(path string) string {
	switch {
	case strings.HasPrefix(path, "sqlite://"):
		path = path[len("sqlite://"):]
	case strings.HasPrefix(path, "file:"), strings.HasPrefix(path, ":memory:"):
	default:
		path = "file:" + path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout=%d&_pragma=foreign_keys=ON", path, separator, defaultBusyTimeout)
}

// Migrate runs the schema creation statements.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			fullname TEXT NOT NULL,
			password_hash BLOB NOT NULL,
			profile_pic TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			expires_at DATETIME NOT NULL,
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			sender_id TEXT NOT NULL,
			receiver_id TEXT NOT NULL,
			text TEXT NOT NULL DEFAULT '',
			image TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			CHECK (text <> '' OR image <> ''),
			FOREIGN KEY(sender_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY(receiver_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS messages_pair_idx ON messages(sender_id, receiver_id, created_at);`,
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CreateUser inserts a new user and returns its generated id.
// ErrUserExists is returned when the email is taken.
func (s *Store) CreateUser(ctx context.Context, email, fullname string, passwordHash []byte) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id, email, fullname, password_hash) VALUES(?, ?, ?, ?)`,
		id, email, fullname, passwordHash)
	if err != nil {
		if isConstraintError(err) {
			return "", ErrUserExists
		}
		return "", err
	}
	return id, nil
}

const userColumns = `id, email, fullname, password_hash, profile_pic, created_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var user User
	if err := row.Scan(&user.ID, &user.Email, &user.Fullname, &user.PasswordHash, &user.ProfilePic, &user.CreatedAt); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail fetches a user by email. A missing user yields (nil, nil).
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return user, err
}

// GetUserByID fetches a user by primary key. A missing user yields (nil, nil).
func (s *Store) GetUserByID(ctx context.Context, id string) (*User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return user, err
}

// ListUsersExcept returns every user but the given one, ordered by name.
func (s *Store) ListUsersExcept(ctx context.Context, id string) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE id <> ? ORDER BY fullname ASC, id ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// UpdateProfilePic replaces the stored avatar URL for a user.
func (s *Store) UpdateProfilePic(ctx context.Context, id, url string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET profile_pic=? WHERE id=?`, url, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CreateSession stores a session token for a user.
func (s *Store) CreateSession(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO sessions(token, user_id, expires_at) VALUES(?, ?, ?)`, token, userID, expiresAt.UTC())
	return err
}

// GetSession returns a session if it exists.
func (s *Store) GetSession(ctx context.Context, token string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT token, user_id, expires_at, created_at FROM sessions WHERE token = ?`, token)
	var sess Session
	if err := row.Scan(&sess.Token, &sess.UserID, &sess.ExpiresAt, &sess.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &sess, nil
}

// DeleteSession removes a session token (used for logout).
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	return err
}

// DeleteExpiredSessions drops sessions whose expiry is before now.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// AppendMessage persists a message. ID and CreatedAt are filled in when empty.
// The returned message is what was committed.
func (s *Store) AppendMessage(ctx context.Context, msg Message) (Message, error) {
	if msg.Text == "" && msg.Image == "" {
		return Message{}, ErrEmptyMessage
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages(id, sender_id, receiver_id, text, image, created_at) VALUES(?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SenderID, msg.ReceiverID, msg.Text, msg.Image, msg.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

// FindConversation returns every message exchanged between a and b in either
// direction, oldest first.
func (s *Store) FindConversation(ctx context.Context, a, b string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_id, receiver_id, text, image, created_at
		FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at ASC, rowid ASC
	`, a, b, b, a)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Text, &m.Image, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		// extended codes (e.g. SQLITE_CONSTRAINT_UNIQUE) keep the primary code in the low byte
		return sqliteErr.Code()&0xff == sqliteConstraintCode
	}
	return false
}
