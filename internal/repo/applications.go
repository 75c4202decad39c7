package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"voluna/internal/domain"
)

// The three physical mirrors of an application. Identical layout, scoped for
// activity-, member- and organization-side reads respectively.
const (
	MirrorActivity = "activity_applications"
	MirrorMember   = "member_applications"
	MirrorOrg      = "org_applications"
)

// MirrorTables lists every mirror; write paths must touch all of them inside
// one transaction.
var MirrorTables = []string{MirrorActivity, MirrorMember, MirrorOrg}

const applicationColumns = `application_id,activity_id,member_id,org_id,status,message,note,created_at,updated_at`

func scanApplication(scan func(dest ...any) error) (domain.Application, error) {
	var a domain.Application
	var message, note sql.NullString
	err := scan(&a.ID, &a.ActivityID, &a.MemberID, &a.OrgID, &a.Status, &message, &note, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.Message = message.String
	a.Note = note.String
	return a, nil
}

// InsertApplicationMirrorsTx writes the same application into all three
// mirrors. The UNIQUE(activity_id, member_id) index on the activity-side
// mirror makes a lost duplicate race fail here instead of forking state.
func (r Repo) InsertApplicationMirrorsTx(ctx context.Context, tx *sql.Tx, a domain.Application) error {
	for _, table := range MirrorTables {
		_, err := tx.ExecContext(ctx, `INSERT INTO `+table+`(`+applicationColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
			a.ID, a.ActivityID, a.MemberID, a.OrgID, a.Status, nullable(a.Message), nullable(a.Note), a.CreatedAt, a.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}
	return nil
}

// UpdateApplicationMirrorsTx flips status and note on all three mirrors with
// one shared updated_at so they stay byte-identical.
func (r Repo) UpdateApplicationMirrorsTx(ctx context.Context, tx *sql.Tx, applicationID, status, note, updatedAt string) error {
	for _, table := range MirrorTables {
		res, err := tx.ExecContext(ctx, `UPDATE `+table+` SET status=?, note=?, updated_at=? WHERE application_id=?`,
			status, nullable(note), updatedAt, applicationID)
		if err != nil {
			return fmt.Errorf("update %s: %w", table, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("update %s: %w", table, ErrNotFound)
		}
	}
	return nil
}

func (r Repo) DeleteApplicationMirrorsTx(ctx context.Context, tx *sql.Tx, applicationID string) error {
	for _, table := range MirrorTables {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE application_id=?`, applicationID); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	return nil
}

// GetApplicationMirror reads one physical copy. Used by consistency checks;
// everything else goes through the activity-side canonical reads below.
func (r Repo) GetApplicationMirror(ctx context.Context, table, applicationID string) (domain.Application, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM `+table+` WHERE application_id=?`, applicationID)
	return scanApplication(row.Scan)
}

func (r Repo) GetActivityApplication(ctx context.Context, activityID, applicationID string) (domain.Application, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM activity_applications WHERE activity_id=? AND application_id=?`,
		activityID, applicationID)
	return scanApplication(row.Scan)
}

func (r Repo) GetActivityApplicationByMember(ctx context.Context, activityID, memberID string) (domain.Application, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM activity_applications WHERE activity_id=? AND member_id=?`,
		activityID, memberID)
	return scanApplication(row.Scan)
}

func (r Repo) GetActivityApplicationByMemberTx(ctx context.Context, tx *sql.Tx, activityID, memberID string) (domain.Application, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM activity_applications WHERE activity_id=? AND member_id=?`,
		activityID, memberID)
	return scanApplication(row.Scan)
}

func (r Repo) listApplications(ctx context.Context, table string, clauses []string, args []any) ([]domain.Application, error) {
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+applicationColumns+` FROM `+table+` `+where+` ORDER BY created_at DESC, application_id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Application
	for rows.Next() {
		a, err := scanApplication(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) ListActivityApplications(ctx context.Context, activityID, status string) ([]domain.Application, error) {
	clauses := []string{"activity_id=?"}
	args := []any{activityID}
	if status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, status)
	}
	return r.listApplications(ctx, MirrorActivity, clauses, args)
}

func (r Repo) ListMemberApplications(ctx context.Context, memberID, status string) ([]domain.Application, error) {
	clauses := []string{"member_id=?"}
	args := []any{memberID}
	if status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, status)
	}
	return r.listApplications(ctx, MirrorMember, clauses, args)
}

func (r Repo) ListOrgApplications(ctx context.Context, orgID, status string) ([]domain.Application, error) {
	clauses := []string{"org_id=?"}
	args := []any{orgID}
	if status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, status)
	}
	return r.listApplications(ctx, MirrorOrg, clauses, args)
}

func (r Repo) ListActivityApplicationsTx(ctx context.Context, tx *sql.Tx, activityID string) ([]domain.Application, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+applicationColumns+` FROM activity_applications WHERE activity_id=? ORDER BY created_at ASC, application_id ASC`, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Application
	for rows.Next() {
		a, err := scanApplication(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// CountMemberApplications counts the member's applications across all
// activities; the first-ever one triggers the one-time welcome badge.
func (r Repo) CountMemberApplications(ctx context.Context, memberID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM member_applications WHERE member_id=?`, memberID).Scan(&n)
	return n, err
}

func (r Repo) CountActivityApplicationsByStatus(ctx context.Context, activityID, status string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM activity_applications WHERE activity_id=? AND status=?`, activityID, status).Scan(&n)
	return n, err
}
