package sqlite

import (
	"context"
)

type backupCodesRepo struct {
	q querier
}

func (r *backupCodesRepo) CreateBackupCode(ctx context.Context, accountID, codeHash string) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO backup_codes (account_id, code_hash) VALUES (?, ?)`,
		accountID, codeHash,
	)
	return mapConflict(err)
}

// ConsumeBackupCode deletes the matching row. The delete IS the spend: two
// concurrent submissions of the same code race on the row and only one wins.
func (r *backupCodesRepo) ConsumeBackupCode(ctx context.Context, accountID, codeHash string) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		DELETE FROM backup_codes WHERE account_id = ? AND code_hash = ?`,
		accountID, codeHash,
	)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *backupCodesRepo) DeleteAllBackupCodes(ctx context.Context, accountID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM backup_codes WHERE account_id = ?`, accountID)
	return err
}

func (r *backupCodesRepo) CountBackupCodes(ctx context.Context, accountID string) (int, error) {
	row := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM backup_codes WHERE account_id = ?`, accountID)

	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
