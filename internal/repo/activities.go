package repo

import (
	"context"
	"database/sql"
	"strings"

	"voluna/internal/domain"
)

const activityColumns = `id,org_id,type,status,title,description,reward_points,completion_token,start_date,end_date,start_time,end_time,sdg,continent,applicant_count,created_at,updated_at`

func scanActivity(scan func(dest ...any) error) (domain.Activity, error) {
	var a domain.Activity
	var description, token, endDate, startTime, endTime, continent sql.NullString
	var sdg sql.NullInt64
	err := scan(&a.ID, &a.OrgID, &a.Type, &a.Status, &a.Title, &description, &a.RewardPoints, &token,
		&a.StartDate, &endDate, &startTime, &endTime, &sdg, &continent, &a.ApplicantCount, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.Description = description.String
	a.CompletionToken = token.String
	a.EndDate = endDate.String
	a.StartTime = startTime.String
	a.EndTime = endTime.String
	a.Continent = continent.String
	if sdg.Valid {
		v := int(sdg.Int64)
		a.SDG = &v
	}
	return a, nil
}

func (r Repo) InsertActivityTx(ctx context.Context, tx *sql.Tx, a domain.Activity) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO activities(`+activityColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.OrgID, a.Type, a.Status, a.Title, nullable(a.Description), a.RewardPoints, nullable(a.CompletionToken),
		a.StartDate, nullable(a.EndDate), nullable(a.StartTime), nullable(a.EndTime), nullableIntPtr(a.SDG), nullable(a.Continent),
		a.ApplicantCount, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) GetActivity(ctx context.Context, id string) (domain.Activity, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activities WHERE id=?`, id)
	return scanActivity(row.Scan)
}

func (r Repo) GetActivityTx(ctx context.Context, tx *sql.Tx, id string) (domain.Activity, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activities WHERE id=?`, id)
	return scanActivity(row.Scan)
}

type ActivityFilters struct {
	OrgID  string
	Status string
	Type   string
	Limit  int
}

func (r Repo) ListActivities(ctx context.Context, f ActivityFilters) ([]domain.Activity, error) {
	var clauses []string
	var args []any
	if f.OrgID != "" {
		clauses = append(clauses, "org_id=?")
		args = append(args, f.OrgID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + activityColumns + ` FROM activities ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Activity
	for rows.Next() {
		a, err := scanActivity(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) UpdateActivityStatusTx(ctx context.Context, tx *sql.Tx, id, status, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE activities SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteActivityTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM activities WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AdjustApplicantCount applies one counter delta, clamped at zero. Called by
// the event-driven counter collaborator, never by the registry itself.
func (r Repo) AdjustApplicantCount(ctx context.Context, activityID string, delta int) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE activities SET applicant_count=MAX(0, applicant_count+?) WHERE id=?`, delta, activityID)
	return err
}

func (r Repo) CountActivitiesByStatus(ctx context.Context, orgID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM activities WHERE org_id=? GROUP BY status`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}
