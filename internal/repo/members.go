package repo

import (
	"context"
	"database/sql"

	"voluna/internal/domain"
)

func (r Repo) InsertMember(ctx context.Context, m domain.Member) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO members(id,name,points,created_at) VALUES (?,?,?,?)`,
		m.ID, m.Name, m.Points, m.CreatedAt)
	return err
}

func (r Repo) EnsureMember(ctx context.Context, tx *sql.Tx, memberID, name, now string) error {
	if name == "" {
		name = memberID
	}
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO members(id,name,points,created_at) VALUES (?,?,0,?)`, memberID, name, now)
	return err
}

func (r Repo) GetMember(ctx context.Context, id string) (domain.Member, error) {
	var m domain.Member
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,points,created_at FROM members WHERE id=?`, id).
		Scan(&m.ID, &m.Name, &m.Points, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	return m, err
}

func (r Repo) GetMemberTx(ctx context.Context, tx *sql.Tx, id string) (domain.Member, error) {
	var m domain.Member
	err := tx.QueryRowContext(ctx, `SELECT id,name,points,created_at FROM members WHERE id=?`, id).
		Scan(&m.ID, &m.Name, &m.Points, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	return m, err
}

func (r Repo) ListMembers(ctx context.Context) ([]domain.Member, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,points,created_at FROM members ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Member
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.ID, &m.Name, &m.Points, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// AddPointsTx increments the member's monotonically increasing point total.
func (r Repo) AddPointsTx(ctx context.Context, tx *sql.Tx, memberID string, amount int) error {
	res, err := tx.ExecContext(ctx, `UPDATE members SET points=points+? WHERE id=?`, amount, memberID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpsertBadge(ctx context.Context, b domain.Badge) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO badges(id,name,points,created_at) VALUES (?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, points=excluded.points`, b.ID, b.Name, b.Points, b.CreatedAt)
	return err
}

func (r Repo) GetBadge(ctx context.Context, id string) (domain.Badge, error) {
	var b domain.Badge
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,points,created_at FROM badges WHERE id=?`, id).
		Scan(&b.ID, &b.Name, &b.Points, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	return b, err
}

func (r Repo) ListBadges(ctx context.Context) ([]domain.Badge, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,points,created_at FROM badges ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Badge
	for rows.Next() {
		var b domain.Badge
		if err := rows.Scan(&b.ID, &b.Name, &b.Points, &b.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

func (r Repo) HasBadge(ctx context.Context, memberID, badgeID string) (bool, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT 1 FROM member_badges WHERE member_id=? AND badge_id=? LIMIT 1`, memberID, badgeID)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// InsertBadgeGrantTx appends to the member's badge set. Reports false when
// the badge was already present (set semantics, no second row).
func (r Repo) InsertBadgeGrantTx(ctx context.Context, tx *sql.Tx, g domain.BadgeGrant) (bool, error) {
	res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO member_badges(member_id,badge_id,earned_at) VALUES (?,?,?)`,
		g.MemberID, g.BadgeID, g.EarnedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r Repo) ListMemberBadges(ctx context.Context, memberID string) ([]domain.BadgeGrant, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT member_id,badge_id,earned_at FROM member_badges WHERE member_id=? ORDER BY earned_at ASC, badge_id ASC`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.BadgeGrant
	for rows.Next() {
		var g domain.BadgeGrant
		if err := rows.Scan(&g.MemberID, &g.BadgeID, &g.EarnedAt); err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	return res, rows.Err()
}

// InsertPointEntryTx writes a ledger row keyed by EventKey. Reports false
// when the key already exists; the caller must then skip the balance update.
func (r Repo) InsertPointEntryTx(ctx context.Context, tx *sql.Tx, e domain.PointEntry) (bool, error) {
	res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO point_ledger(member_id,amount,reason,source_kind,event_key,created_at) VALUES (?,?,?,?,?,?)`,
		e.MemberID, e.Amount, nullable(e.Reason), e.SourceKind, e.EventKey, e.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r Repo) ListPointEntries(ctx context.Context, memberID string) ([]domain.PointEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,member_id,amount,COALESCE(reason,''),source_kind,event_key,created_at FROM point_ledger WHERE member_id=? ORDER BY id ASC`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PointEntry
	for rows.Next() {
		var e domain.PointEntry
		if err := rows.Scan(&e.ID, &e.MemberID, &e.Amount, &e.Reason, &e.SourceKind, &e.EventKey, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
