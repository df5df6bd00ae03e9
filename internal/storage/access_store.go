package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/egcoder/telegram-ai-bot/internal/core"
)

// AccessStore implements access.Store on SQLite.
type AccessStore struct {
	db *DB
}

// NewAccessStore creates a new access store
func NewAccessStore(db *DB) *AccessStore {
	return &AccessStore{db: db}
}

// GetState returns the persisted state for id
func (s *AccessStore) GetState(ctx context.Context, id core.Identity) (core.AuthorizationState, error) {
	var state string
	err := s.db.conn.QueryRowContext(ctx,
		"SELECT state FROM access_grants WHERE identity = ?", string(id),
	).Scan(&state)

	if err == sql.ErrNoRows {
		return core.StateUnauthorized, nil
	}
	if err != nil {
		return core.StateUnauthorized, err
	}
	return core.AuthorizationState(state), nil
}

// PutState stores authorized grants and deletes them on revocation
func (s *AccessStore) PutState(ctx context.Context, id core.Identity, state core.AuthorizationState, at time.Time) error {
	var err error
	switch state {
	case core.StateAuthorized:
		_, err = s.db.conn.ExecContext(ctx, `
			INSERT INTO access_grants (identity, state, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(identity) DO UPDATE SET updated_at = excluded.updated_at
		`, string(id), string(state), at.UnixNano())
	case core.StateUnauthorized:
		_, err = s.db.conn.ExecContext(ctx, "DELETE FROM access_grants WHERE identity = ?", string(id))
	default:
		return fmt.Errorf("cannot persist state %q", state)
	}
	return err
}

// GetToken retrieves a token by digest
func (s *AccessStore) GetToken(ctx context.Context, digest string) (*core.InvitationToken, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT digest, issuer, created_at, expires_at, redeemed_by, redeemed_at
		FROM invitations WHERE digest = ?
	`, digest)

	tok, err := scanToken(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrRecordNotFound
	}
	return tok, err
}

// PutToken inserts a new token
func (s *AccessStore) PutToken(ctx context.Context, tok *core.InvitationToken) error {
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO invitations (digest, issuer, created_at, expires_at, redeemed_by, redeemed_at)
		VALUES (?, ?, ?, ?, NULL, NULL)
	`, tok.Digest, string(tok.Issuer), tok.CreatedAt.UnixNano(), nullTime(tok.ExpiresAt))

	if err != nil && isUniqueViolation(err) {
		return core.ErrDuplicateToken
	}
	return err
}

// Redeem consumes the token and writes the grant in one transaction. The
// conditional update is the claim: of two racing redeemers only one sees a
// changed row.
func (s *AccessStore) Redeem(ctx context.Context, digest string, redeemer core.Identity, now time.Time) (*core.InvitationToken, error) {
	var tok *core.InvitationToken

	err := s.db.TransactionContext(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE invitations SET redeemed_by = ?, redeemed_at = ?
			WHERE digest = ? AND redeemed_by IS NULL
			  AND (expires_at IS NULL OR expires_at > ?)
		`, string(redeemer), now.UnixNano(), digest, now.UnixNano())
		if err != nil {
			return fmt.Errorf("claim token: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("claim token: %w", err)
		}
		if n == 0 {
			return core.ErrInvalidToken
		}

		var existing int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM access_grants WHERE identity = ?", string(redeemer),
		).Scan(&existing); err != nil {
			return fmt.Errorf("check grant: %w", err)
		}
		if existing > 0 {
			return core.ErrAlreadyAuthorized
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO access_grants (identity, state, updated_at) VALUES (?, ?, ?)",
			string(redeemer), string(core.StateAuthorized), now.UnixNano(),
		); err != nil {
			return fmt.Errorf("grant: %w", err)
		}

		tok, err = scanToken(tx.QueryRowContext(ctx, `
			SELECT digest, issuer, created_at, expires_at, redeemed_by, redeemed_at
			FROM invitations WHERE digest = ?
		`, digest))
		return err
	})
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// ListAuthorized returns all grants ordered by identity
func (s *AccessStore) ListAuthorized(ctx context.Context) ([]core.Grant, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		"SELECT identity, state, updated_at FROM access_grants ORDER BY identity")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []core.Grant
	for rows.Next() {
		var g core.Grant
		var id, state string
		var at int64
		if err := rows.Scan(&id, &state, &at); err != nil {
			return nil, err
		}
		g.Identity = core.Identity(id)
		g.State = core.AuthorizationState(state)
		g.UpdatedAt = time.Unix(0, at)
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// ListPending returns live tokens ordered by creation time
func (s *AccessStore) ListPending(ctx context.Context, now time.Time) ([]*core.InvitationToken, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT digest, issuer, created_at, expires_at, redeemed_by, redeemed_at
		FROM invitations
		WHERE redeemed_by IS NULL AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY created_at
	`, now.UnixNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []*core.InvitationToken
	for rows.Next() {
		tok, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
	}
	return tokens, rows.Err()
}

// PurgeExpired deletes unredeemed tokens past their expiry
func (s *AccessStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.conn.ExecContext(ctx, `
		DELETE FROM invitations
		WHERE redeemed_by IS NULL AND expires_at IS NOT NULL AND expires_at <= ?
	`, now.UnixNano())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// CountAuthorized returns the number of grants
func (s *AccessStore) CountAuthorized(ctx context.Context) (int, error) {
	var count int
	err := s.db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM access_grants").Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanToken(row rowScanner) (*core.InvitationToken, error) {
	var tok core.InvitationToken
	var issuer string
	var created int64
	var expires, redeemedAt sql.NullInt64
	var redeemedBy sql.NullString

	if err := row.Scan(&tok.Digest, &issuer, &created, &expires, &redeemedBy, &redeemedAt); err != nil {
		return nil, err
	}

	tok.Issuer = core.Identity(issuer)
	tok.CreatedAt = time.Unix(0, created)
	if expires.Valid {
		t := time.Unix(0, expires.Int64)
		tok.ExpiresAt = &t
	}
	if redeemedBy.Valid {
		who := core.Identity(redeemedBy.String)
		tok.RedeemedBy = &who
	}
	if redeemedAt.Valid {
		t := time.Unix(0, redeemedAt.Int64)
		tok.RedeemedAt = &t
	}
	return &tok, nil
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func isUniqueViolation(err error) bool {
	var target interface{ Code() int }
	if errors.As(err, &target) {
		// SQLITE_CONSTRAINT_PRIMARYKEY, SQLITE_CONSTRAINT_UNIQUE
		return target.Code() == 1555 || target.Code() == 2067
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
