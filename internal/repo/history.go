package repo

import (
	"context"
	"database/sql"

	"voluna/internal/domain"
)

// InsertHistoryEntryTx appends to the member's activity ledger. The entry is
// reference-only and written at most once per (member, activity); a repeat
// validation after a staff correction reports false instead of duplicating.
func (r Repo) InsertHistoryEntryTx(ctx context.Context, tx *sql.Tx, h domain.HistoryEntry) (bool, error) {
	res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO history_entries(member_id,activity_id,via,added_at) VALUES (?,?,?,?)`,
		h.MemberID, h.ActivityID, h.Via, h.AddedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r Repo) ListMemberHistory(ctx context.Context, memberID string) ([]domain.HistoryEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,member_id,activity_id,via,added_at FROM history_entries WHERE member_id=? ORDER BY id DESC`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.HistoryEntry
	for rows.Next() {
		var h domain.HistoryEntry
		if err := rows.Scan(&h.ID, &h.MemberID, &h.ActivityID, &h.Via, &h.AddedAt); err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}
