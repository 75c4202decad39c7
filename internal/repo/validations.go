package repo

import (
	"context"
	"database/sql"

	"voluna/internal/domain"
)

const validationColumns = `activity_id,member_id,status,actor_kind,actor_id,token_used,validated_at,updated_at`

func scanValidation(scan func(dest ...any) error) (domain.Validation, error) {
	var v domain.Validation
	var token, validatedAt sql.NullString
	err := scan(&v.ActivityID, &v.MemberID, &v.Status, &v.ActorKind, &v.ActorID, &token, &validatedAt, &v.UpdatedAt)
	if err == sql.ErrNoRows {
		return v, ErrNotFound
	}
	if err != nil {
		return v, err
	}
	v.TokenUsed = token.String
	v.ValidatedAt = validatedAt.String
	return v, nil
}

// UpsertValidationTx writes the single validation record for the pair; a
// later upsert replaces the outcome (validated <-> rejected toggling) but
// never produces a second row.
func (r Repo) UpsertValidationTx(ctx context.Context, tx *sql.Tx, v domain.Validation) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO validations(`+validationColumns+`) VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(activity_id, member_id) DO UPDATE SET
status=excluded.status, actor_kind=excluded.actor_kind, actor_id=excluded.actor_id,
token_used=excluded.token_used, validated_at=excluded.validated_at, updated_at=excluded.updated_at`,
		v.ActivityID, v.MemberID, v.Status, v.ActorKind, v.ActorID, nullable(v.TokenUsed), nullable(v.ValidatedAt), v.UpdatedAt)
	return err
}

func (r Repo) GetValidation(ctx context.Context, activityID, memberID string) (domain.Validation, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+validationColumns+` FROM validations WHERE activity_id=? AND member_id=?`,
		activityID, memberID)
	return scanValidation(row.Scan)
}

func (r Repo) ListActivityValidations(ctx context.Context, activityID string) ([]domain.Validation, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+validationColumns+` FROM validations WHERE activity_id=? ORDER BY updated_at ASC, member_id ASC`, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Validation
	for rows.Next() {
		v, err := scanValidation(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

func (r Repo) DeleteActivityValidationsTx(ctx context.Context, tx *sql.Tx, activityID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM validations WHERE activity_id=?`, activityID)
	return err
}

// CountRejectedAmong counts members of the given set whose validation for
// the activity is rejected. Feeds the effective participant count.
func (r Repo) CountRejectedAmong(ctx context.Context, activityID string, memberIDs []string) (int, error) {
	if len(memberIDs) == 0 {
		return 0, nil
	}
	count := 0
	for _, id := range memberIDs {
		row := r.DB.QueryRowContext(ctx, `SELECT 1 FROM validations WHERE activity_id=? AND member_id=? AND status=? LIMIT 1`,
			activityID, id, domain.ValidationStatusRejected)
		var n int
		err := row.Scan(&n)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return 0, err
		}
		count++
	}
	return count, nil
}
