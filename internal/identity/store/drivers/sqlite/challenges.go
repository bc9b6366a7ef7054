package sqlite

import (
	"context"
	"time"

	"github.com/keylet/keylet/internal/identity/domain"
)

type challengesRepo struct {
	q querier
}

func (r *challengesRepo) CreateChallenge(ctx context.Context, c domain.TwoFactorChallenge) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO twofactor_challenges (token_hash, account_id, attempts, expires_at)
		VALUES (?, ?, ?, ?)`,
		c.TokenHash, c.AccountID, c.Attempts, c.ExpiresAt,
	)
	return mapConflict(err)
}

func (r *challengesRepo) GetChallengeByTokenHash(
	ctx context.Context,
	tokenHash string,
	now time.Time,
) (domain.TwoFactorChallenge, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT token_hash, account_id, attempts, expires_at, created_at
		FROM twofactor_challenges
		WHERE token_hash = ? AND expires_at > ?`,
		tokenHash, now,
	)

	var c domain.TwoFactorChallenge
	err := row.Scan(&c.TokenHash, &c.AccountID, &c.Attempts, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		return domain.TwoFactorChallenge{}, mapNotFound(err)
	}
	return c, nil
}

func (r *challengesRepo) IncrementChallengeAttempts(ctx context.Context, tokenHash string) (int, error) {
	row := r.q.QueryRowContext(ctx, `
		UPDATE twofactor_challenges
		SET attempts = attempts + 1
		WHERE token_hash = ?
		RETURNING attempts`,
		tokenHash,
	)

	var attempts int
	if err := row.Scan(&attempts); err != nil {
		return 0, mapNotFound(err)
	}
	return attempts, nil
}

func (r *challengesRepo) DeleteChallenge(ctx context.Context, tokenHash string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM twofactor_challenges WHERE token_hash = ?`, tokenHash)
	return err
}

func (r *challengesRepo) DeleteExpiredChallenges(ctx context.Context, now time.Time) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM twofactor_challenges WHERE expires_at <= ?`, now)
	return err
}
