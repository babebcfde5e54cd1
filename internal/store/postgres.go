package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PostgresStore is the default persistence backend: draft documents as
// JSONB rows, plus accounts and refresh sessions.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ReadRaw implements draft.Store. Absent rows read as nil bytes; the
// draft layer turns that into an empty document.
func (s *PostgresStore) ReadRaw(ctx context.Context, ownerID, key string) ([]byte, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM draft_documents WHERE owner_id=$1 AND namespace_key=$2`,
		ownerID, key,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read draft document: %w", err)
	}
	return raw, nil
}

// WriteRaw implements draft.Store. The upsert replaces the whole document
// unconditionally: the read-merge-write above this layer is intentionally
// not transactional, so last write wins at document granularity.
func (s *PostgresStore) WriteRaw(ctx context.Context, ownerID, key string, raw []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO draft_documents (owner_id, namespace_key, doc, updated_at)
		VALUES ($1, $2, $3::jsonb, NOW())
		ON CONFLICT (owner_id, namespace_key) DO UPDATE SET doc=EXCLUDED.doc, updated_at=NOW()
	`, ownerID, key, raw)
	if err != nil {
		return fmt.Errorf("write draft document: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, ownerID, displayName string, isRegistered bool, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, owner_id, display_name, is_registered, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (token_hash) DO UPDATE SET owner_id=EXCLUDED.owner_id, display_name=EXCLUDED.display_name, is_registered=EXCLUDED.is_registered, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, ownerID, displayName, isRegistered, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (Owner, error) {
	const query = `
		SELECT owner_id, display_name, is_registered
		FROM refresh_sessions
		WHERE token_hash = $1
			AND revoked_at IS NULL
			AND expires_at > NOW()
	`
	var owner Owner
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&owner.ID, &owner.DisplayName, &owner.IsRegistered)
	if err != nil {
		return Owner{}, err
	}
	return owner, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, password_hash)
		VALUES ($1, $2, $3, $4)
	`, user.ID, strings.ToLower(user.Email), user.DisplayName, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, display_name, password_hash, created_at, updated_at FROM users WHERE email=$1`,
		strings.ToLower(email),
	).Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, display_name, password_hash, created_at, updated_at FROM users WHERE id=$1`,
		userID,
	).Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`,
		userID, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// AdoptDrafts moves anonymous drafts (and their history of search entries)
// to a registered account, used when a wizard session signs up.
func (s *PostgresStore) AdoptDrafts(ctx context.Context, anonOwnerID, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin adopt tx: %w", err)
	}
	for _, table := range []string{"draft_documents", "draft_search_entries"} {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %s SET owner_id=$2 WHERE owner_id=$1`, table),
			anonOwnerID, userID,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("adopt %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit adopt tx: %w", err)
	}
	return nil
}
