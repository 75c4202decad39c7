package engine

import (
	"context"
	"errors"
	"fmt"

	"voluna/internal/domain"
	"voluna/internal/events"
	"voluna/internal/repo"
)

const (
	SourceActivityCompletion = "activity_completion"
	SourceBadge              = "badge"
	SourceManual             = "manual"
)

// GrantBadge credits a badge and its point value exactly once per member.
// Reports false without side effects when the member already holds it.
func (e Engine) GrantBadge(ctx context.Context, memberID, badgeID, actorID string) (bool, error) {
	badge, err := e.Repo.GetBadge(ctx, badgeID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, ErrBadgeNotFound
		}
		return false, err
	}
	member, err := e.Repo.GetMember(ctx, memberID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, ErrMemberNotFound
		}
		return false, err
	}
	held, err := e.Repo.HasBadge(ctx, member.ID, badge.ID)
	if err != nil {
		return false, err
	}
	if held {
		return false, nil
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	now := e.timestamp()
	inserted, err := e.Repo.InsertBadgeGrantTx(ctx, tx, domain.BadgeGrant{
		MemberID: member.ID,
		BadgeID:  badge.ID,
		EarnedAt: now,
	})
	if err != nil {
		return false, err
	}
	if !inserted {
		// Lost a race with a concurrent grant; the set already holds it.
		return false, nil
	}
	if badge.Points > 0 {
		ok, err := e.Repo.InsertPointEntryTx(ctx, tx, domain.PointEntry{
			MemberID:   member.ID,
			Amount:     badge.Points,
			Reason:     fmt.Sprintf("badge %s", badge.ID),
			SourceKind: SourceBadge,
			EventKey:   fmt.Sprintf("badge:%s:%s", badge.ID, member.ID),
			CreatedAt:  now,
		})
		if err != nil {
			return false, err
		}
		if ok {
			if err := e.Repo.AddPointsTx(ctx, tx, member.ID, badge.Points); err != nil {
				return false, err
			}
		}
	}
	if err := e.Events.Append(ctx, tx, "badge.granted", "", "member", member.ID, actorID, events.EventPayload{
		"badge_id": badge.ID,
		"points":   badge.Points,
	}); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// AwardPoints increments the member's point total and appends a ledger row.
// The eventKey is the only dedupe: an empty key always pays out, a repeated
// key no-ops. Callers tie the key to the logical event being paid for.
func (e Engine) AwardPoints(ctx context.Context, memberID string, amount int, reason, sourceKind, eventKey, actorID string) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive, got %d", amount)
	}
	if _, err := e.Repo.GetMember(ctx, memberID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrMemberNotFound
		}
		return err
	}
	if eventKey == "" {
		eventKey = newID()
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	inserted, err := e.Repo.InsertPointEntryTx(ctx, tx, domain.PointEntry{
		MemberID:   memberID,
		Amount:     amount,
		Reason:     reason,
		SourceKind: sourceKind,
		EventKey:   eventKey,
		CreatedAt:  e.timestamp(),
	})
	if err != nil {
		return err
	}
	if !inserted {
		// Same logical event already paid out.
		return nil
	}
	if err := e.Repo.AddPointsTx(ctx, tx, memberID, amount); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "points.awarded", "", "member", memberID, actorID, events.EventPayload{
		"amount":      amount,
		"source_kind": sourceKind,
		"event_key":   eventKey,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// SeedBadgeCatalog loads the config badge catalog into the badges table so
// grants can resolve point values without re-reading config.
func (e Engine) SeedBadgeCatalog(ctx context.Context) error {
	if e.Config == nil {
		return nil
	}
	now := e.timestamp()
	for id, entry := range e.Config.Badges.Catalog {
		name := entry.Name
		if name == "" {
			name = id
		}
		if err := e.Repo.UpsertBadge(ctx, domain.Badge{ID: id, Name: name, Points: entry.Points, CreatedAt: now}); err != nil {
			return fmt.Errorf("seed badge %s: %w", id, err)
		}
	}
	return nil
}
