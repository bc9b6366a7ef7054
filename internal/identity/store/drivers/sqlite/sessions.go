package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/keylet/keylet/internal/identity/domain"
	"github.com/keylet/keylet/internal/identity/store"
)

type sessionsRepo struct {
	q querier
}

func (r *sessionsRepo) scanSession(row *sql.Row) (domain.Session, error) {
	var (
		s    domain.Session
		prev sql.NullString
	)
	err := row.Scan(&s.ID, &s.AccountID, &s.TokenHash, &prev, &s.IssuedAt, &s.ExpiresAt)
	if err != nil {
		return domain.Session{}, mapNotFound(err)
	}
	s.PrevTokenHash = mapNullStringPtr(prev)
	return s, nil
}

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.Session) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO sessions (id, account_id, token_hash, prev_token_hash, issued_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.AccountID, s.TokenHash, mapOptionalString(s.PrevTokenHash), s.IssuedAt, s.ExpiresAt,
	)
	return mapConflict(err)
}

func (r *sessionsRepo) GetSessionByTokenHash(ctx context.Context, tokenHash string) (domain.Session, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, account_id, token_hash, prev_token_hash, issued_at, expires_at
		FROM sessions
		WHERE token_hash = ?`,
		tokenHash,
	)
	return r.scanSession(row)
}

func (r *sessionsRepo) GetSessionByPrevTokenHash(ctx context.Context, tokenHash string) (domain.Session, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, account_id, token_hash, prev_token_hash, issued_at, expires_at
		FROM sessions
		WHERE prev_token_hash = ?`,
		tokenHash,
	)
	return r.scanSession(row)
}

func (r *sessionsRepo) DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = ?`, tokenHash)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *sessionsRepo) DeleteAllAccountSessions(ctx context.Context, accountID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM sessions WHERE account_id = ?`, accountID)
	return err
}

func (r *sessionsRepo) CountAccountSessions(ctx context.Context, accountID string) (int, error) {
	row := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE account_id = ?`, accountID)

	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *sessionsRepo) DeleteExpiredSessions(ctx context.Context, now time.Time) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now)
	return err
}
