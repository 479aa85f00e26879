// Package userstore persists users, their linked sign-in accounts, and role
// assignments in a relational database (PostgreSQL in production, SQLite for
// development and tests).
package userstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/authgate/identity"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrEmailInUse is returned when the email is already bound to a user
	// or account row.
	ErrEmailInUse = errors.New("email already in use")
	// ErrAccountExists is returned by CreateWithOAuthAccount when a
	// concurrent sign-up linked the same (provider, provider id) first.
	ErrAccountExists = errors.New("oauth account already exists")
	// ErrUnavailable wraps database failures.
	ErrUnavailable = errors.New("user store unavailable")
	// ErrRoleNotFound is returned by AssignRole for an unknown role name.
	ErrRoleNotFound = errors.New("role not found")
	// ErrUserNotFound is returned by AssignRole for an unknown user id.
	ErrUserNotFound = errors.New("user not found")
)

const accountTypeOAuth = "oauth"

// OAuthProfile is what a provider tells us about a new user.
type OAuthProfile struct {
	Provider   string
	ProviderID string
	Email      string
	Name       string
	AvatarURL  string
}

// Store is the persistence the sign-in flow depends on.
type Store interface {
	// FindByOAuthIdentity returns the user linked to (provider, providerID),
	// or nil without error when there is none.
	FindByOAuthIdentity(ctx context.Context, provider, providerID string) (*identity.User, error)
	// EmailInUse reports whether email belongs to any user or account.
	EmailInUse(ctx context.Context, email string) (bool, error)
	// CreateWithOAuthAccount creates the user and its OAuth account in one
	// transaction and returns the new identity (no roles, no username).
	// It fails with ErrAccountExists when the identity is already linked.
	CreateWithOAuthAccount(ctx context.Context, profile OAuthProfile) (*identity.User, error)
}

// SQLStore implements [Store] over database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	newID   func() string
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore wraps an open, migrated database.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		newID:   uuid.NewString,
	}
}

// DB returns the underlying handle.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *SQLStore) FindByOAuthIdentity(ctx context.Context, provider, providerID string) (*identity.User, error) {
	const q = `
SELECT u.id, u.email, u.username, u.first_name, u.last_name, u.avatar_url
FROM users u
JOIN accounts a ON a.user_id = u.id
WHERE a.type = ? AND a.provider = ? AND a.provider_id = ?`

	var (
		u         identity.User
		first     string
		last      string
		username  sql.NullString
		avatarURL sql.NullString
	)
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(q), accountTypeOAuth, provider, providerID).
		Scan(&u.ID, &u.Email, &username, &first, &last, &avatarURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: find user: %v", ErrUnavailable, err)
	}

	u.Fullname = strings.TrimSpace(first + " " + last)
	if username.Valid {
		u.Username = &username.String
	}
	if avatarURL.Valid {
		u.AvatarURL = &avatarURL.String
	}

	roles, err := s.roles(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.Roles = roles
	return &u, nil
}

func (s *SQLStore) roles(ctx context.Context, userID string) ([]string, error) {
	const q = `
SELECT r.name
FROM roles r
JOIN user_roles ur ON ur.role_id = r.id
WHERE ur.user_id = ?
ORDER BY r.name`

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(q), userID)
	if err != nil {
		return nil, fmt.Errorf("%w: load roles: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	roles := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: scan role: %v", ErrUnavailable, err)
		}
		roles = append(roles, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: load roles: %v", ErrUnavailable, err)
	}
	return roles, nil
}

func (s *SQLStore) EmailInUse(ctx context.Context, email string) (bool, error) {
	const q = `
SELECT 1 FROM users WHERE email = ?
UNION ALL
SELECT 1 FROM accounts WHERE email = ?
LIMIT 1`

	email = normalizeEmail(email)
	var one int
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(q), email, email).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("%w: email lookup: %v", ErrUnavailable, err)
	}
	return true, nil
}

func (s *SQLStore) CreateWithOAuthAccount(ctx context.Context, p OAuthProfile) (*identity.User, error) {
	if p.Provider == "" || p.ProviderID == "" || p.Email == "" {
		return nil, errors.New("provider, provider id and email are required")
	}

	u, err := s.insertOAuthUser(ctx, p)
	if !errors.Is(err, ErrEmailInUse) {
		return u, err
	}
	// Two sign-ups of one identity collide on the email before the
	// provider index, so the conflict is told apart by looking the
	// identity up once the transaction has rolled back.
	existing, ferr := s.FindByOAuthIdentity(ctx, p.Provider, p.ProviderID)
	if ferr == nil && existing != nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrAccountExists, p.Provider, p.ProviderID)
	}
	return nil, err
}

func (s *SQLStore) insertOAuthUser(ctx context.Context, p OAuthProfile) (*identity.User, error) {
	email := normalizeEmail(p.Email)
	first, last := splitName(p.Name)
	id := s.newID()

	var avatar sql.NullString
	if p.AvatarURL != "" {
		avatar = sql.NullString{String: p.AvatarURL, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	const insertUser = `
INSERT INTO users (id, email, first_name, last_name, avatar_url)
VALUES (?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, s.dialect.rebind(insertUser), id, email, first, last, avatar); err != nil {
		return nil, classifyWriteError("insert user", err)
	}

	const insertAccount = `
INSERT INTO accounts (user_id, type, provider, provider_id, email)
VALUES (?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, s.dialect.rebind(insertAccount), id, accountTypeOAuth, p.Provider, p.ProviderID, email); err != nil {
		return nil, classifyWriteError("insert account", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, classifyWriteError("commit", err)
	}

	u := &identity.User{
		ID:       id,
		Fullname: strings.TrimSpace(first + " " + last),
		Email:    email,
		Roles:    []string{},
	}
	if avatar.Valid {
		u.AvatarURL = &avatar.String
	}
	return u, nil
}

// AssignRole grants an existing role to a user. Granting twice is a no-op.
func (s *SQLStore) AssignRole(ctx context.Context, userID, role string) error {
	var exists int
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT 1 FROM users WHERE id = ?`), userID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: user lookup: %v", ErrUnavailable, err)
	}

	var roleID int64
	err = s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT id FROM roles WHERE name = ?`), role).Scan(&roleID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRoleNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: role lookup: %v", ErrUnavailable, err)
	}

	const insert = `INSERT INTO user_roles (user_id, role_id) VALUES (?, ?) ON CONFLICT DO NOTHING`
	if _, err := s.db.ExecContext(ctx, s.dialect.rebind(insert), userID, roleID); err != nil {
		return fmt.Errorf("%w: assign role: %v", ErrUnavailable, err)
	}
	return nil
}

func classifyWriteError(op string, err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s: %v", ErrEmailInUse, op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// splitName puts the first word in first_name and the remainder in
// last_name.
func splitName(name string) (first, last string) {
	fields := strings.Fields(name)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	default:
		return fields[0], strings.Join(fields[1:], " ")
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
