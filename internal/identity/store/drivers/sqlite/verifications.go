package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/keylet/keylet/internal/identity/domain"
)

type verificationsRepo struct {
	q querier
}

func (r *verificationsRepo) UpsertCode(
	ctx context.Context,
	accountID string,
	ch domain.Channel,
	codeHash string,
	expiresAt time.Time,
) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO verifications (account_id, channel, code_hash, expires_at, attempts)
		VALUES (?, ?, ?, ?, 0)
		ON CONFLICT(account_id, channel) DO UPDATE SET
			code_hash = excluded.code_hash,
			expires_at = excluded.expires_at,
			attempts = 0,
			updated_at = CURRENT_TIMESTAMP`,
		accountID, string(ch), codeHash, expiresAt,
	)
	return err
}

func (r *verificationsRepo) GetVerification(
	ctx context.Context,
	accountID string,
	ch domain.Channel,
) (domain.Verification, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT account_id, channel, code_hash, expires_at, attempts, verified_at, created_at, updated_at
		FROM verifications
		WHERE account_id = ? AND channel = ?`,
		accountID, string(ch),
	)

	var (
		v          domain.Verification
		channel    string
		verifiedAt sql.NullTime
	)
	err := row.Scan(
		&v.AccountID, &channel, &v.CodeHash, &v.ExpiresAt,
		&v.Attempts, &verifiedAt, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return domain.Verification{}, mapNotFound(err)
	}
	v.Channel = domain.Channel(channel)
	v.VerifiedAt = mapNullTimePtr(verifiedAt)
	return v, nil
}

func (r *verificationsRepo) IncrementAttempts(
	ctx context.Context,
	accountID string,
	ch domain.Channel,
) (int, error) {
	row := r.q.QueryRowContext(ctx, `
		UPDATE verifications
		SET attempts = attempts + 1, updated_at = CURRENT_TIMESTAMP
		WHERE account_id = ? AND channel = ?
		RETURNING attempts`,
		accountID, string(ch),
	)

	var attempts int
	if err := row.Scan(&attempts); err != nil {
		return 0, mapNotFound(err)
	}
	return attempts, nil
}

func (r *verificationsRepo) MarkVerified(
	ctx context.Context,
	accountID string,
	ch domain.Channel,
	at time.Time,
) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE verifications
		SET verified_at = ?, code_hash = '', updated_at = CURRENT_TIMESTAMP
		WHERE account_id = ? AND channel = ?`,
		at, accountID, string(ch),
	)
	return err
}

func (r *verificationsRepo) DeleteExpiredUnverified(ctx context.Context, now time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		DELETE FROM verifications
		WHERE verified_at IS NULL AND expires_at <= ?`,
		now,
	)
	return err
}
