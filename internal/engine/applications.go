package engine

import (
	"context"
	"errors"
	"fmt"

	"voluna/internal/domain"
	"voluna/internal/events"
	"voluna/internal/repo"
)

func isTerminalApplicationStatus(status string) bool {
	switch status {
	case domain.ApplicationStatusAccepted, domain.ApplicationStatusRejected, domain.ApplicationStatusCancelled:
		return true
	}
	return false
}

// ensureApplicationTransition validates the registry's state machine:
// pending is the only state this operation may leave. Terminal states are
// corrected through the validation protocol, not here.
func ensureApplicationTransition(from, to string) error {
	if from == domain.ApplicationStatusPending && isTerminalApplicationStatus(to) {
		return nil
	}
	return InvalidTransitionError{Entity: "application", From: from, To: to}
}

// HasExistingApplication scans the activity-side mirror for the member. It
// is a pre-condition check only: two concurrent submissions can both pass it
// before either commits. The UNIQUE index on the activity mirror turns that
// lost race into an insert failure instead of a silent duplicate.
func (e Engine) HasExistingApplication(ctx context.Context, activityID, memberID string) (bool, error) {
	_, err := e.Repo.GetActivityApplicationByMember(ctx, activityID, memberID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateApplication records a member's interest in an activity across all
// three mirrors in one transaction. The member's first-ever application also
// earns the welcome badge, granted after commit and tolerated as
// best-effort: its failure never unwinds the application.
func (e Engine) CreateApplication(ctx context.Context, activityID, memberID, message string) (domain.Application, error) {
	activity, err := e.Repo.GetActivity(ctx, activityID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Application{}, ErrActivityNotFound
		}
		return domain.Application{}, err
	}
	if _, err := e.Repo.GetMember(ctx, memberID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Application{}, ErrMemberNotFound
		}
		return domain.Application{}, err
	}
	exists, err := e.HasExistingApplication(ctx, activityID, memberID)
	if err != nil {
		return domain.Application{}, err
	}
	if exists {
		return domain.Application{}, ErrDuplicateApplication
	}

	priorCount, err := e.Repo.CountMemberApplications(ctx, memberID)
	if err != nil {
		return domain.Application{}, err
	}

	now := e.timestamp()
	app := domain.Application{
		ID:         newID(),
		ActivityID: activity.ID,
		MemberID:   memberID,
		OrgID:      activity.OrgID,
		Status:     domain.ApplicationStatusPending,
		Message:    message,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Application{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertApplicationMirrorsTx(ctx, tx, app); err != nil {
		return domain.Application{}, err
	}
	if err := e.Repo.AdjustPendingCounterTx(ctx, tx, activity.OrgID, 1); err != nil {
		return domain.Application{}, err
	}
	if err := e.Events.Append(ctx, tx, "application.created", activity.OrgID, "application", app.ID, memberID, events.EventPayload{
		"activity_id": activity.ID,
		"member_id":   memberID,
		"status":      app.Status,
	}); err != nil {
		return domain.Application{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Application{}, err
	}

	if priorCount == 0 && e.Config != nil && e.Config.Rewards.FirstApplicationBadge != "" {
		if _, err := e.GrantBadge(ctx, memberID, e.Config.Rewards.FirstApplicationBadge, memberID); err != nil {
			e.logger().Printf("first-application badge for %s failed: %v", memberID, err)
		}
	}
	return app, nil
}

// UpdateApplicationStatus moves a pending application to a terminal state on
// all three mirrors and settles the organization's pending counter in the
// same transaction.
func (e Engine) UpdateApplicationStatus(ctx context.Context, activityID, applicationID, newStatus, note, actorID string) (domain.Application, error) {
	app, err := e.Repo.GetActivityApplication(ctx, activityID, applicationID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Application{}, ErrApplicationNotFound
		}
		return domain.Application{}, err
	}
	if err := ensureApplicationTransition(app.Status, newStatus); err != nil {
		return domain.Application{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Application{}, err
	}
	defer tx.Rollback()

	now := e.timestamp()
	if err := e.Repo.UpdateApplicationMirrorsTx(ctx, tx, app.ID, newStatus, note, now); err != nil {
		return domain.Application{}, err
	}
	if app.Status == domain.ApplicationStatusPending && isTerminalApplicationStatus(newStatus) {
		if err := e.Repo.AdjustPendingCounterTx(ctx, tx, app.OrgID, -1); err != nil {
			return domain.Application{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "application.updated", app.OrgID, "application", app.ID, actorID, events.EventPayload{
		"activity_id": app.ActivityID,
		"member_id":   app.MemberID,
		"from_status": app.Status,
		"to_status":   newStatus,
	}); err != nil {
		return domain.Application{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Application{}, err
	}
	app.Status = newStatus
	app.Note = note
	app.UpdatedAt = now
	return app, nil
}

// CreateOrUpdateApplicationAsAccepted backfills an accepted application for
// walk-up participants whose attendance was validated without a prior
// application, or flips an existing one to accepted.
func (e Engine) CreateOrUpdateApplicationAsAccepted(ctx context.Context, activityID, memberID, actorID string) (domain.Application, error) {
	activity, err := e.Repo.GetActivity(ctx, activityID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Application{}, ErrActivityNotFound
		}
		return domain.Application{}, err
	}

	now := e.timestamp()
	existing, lookupErr := e.Repo.GetActivityApplicationByMember(ctx, activityID, memberID)
	if lookupErr != nil && !errors.Is(lookupErr, repo.ErrNotFound) {
		return domain.Application{}, lookupErr
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Application{}, err
	}
	defer tx.Rollback()

	if lookupErr == nil {
		if existing.Status == domain.ApplicationStatusAccepted {
			return existing, tx.Commit()
		}
		if err := e.Repo.UpdateApplicationMirrorsTx(ctx, tx, existing.ID, domain.ApplicationStatusAccepted, existing.Note, now); err != nil {
			return domain.Application{}, err
		}
		if existing.Status == domain.ApplicationStatusPending {
			if err := e.Repo.AdjustPendingCounterTx(ctx, tx, existing.OrgID, -1); err != nil {
				return domain.Application{}, err
			}
		}
		if err := e.Events.Append(ctx, tx, "application.updated", existing.OrgID, "application", existing.ID, actorID, events.EventPayload{
			"activity_id": existing.ActivityID,
			"member_id":   existing.MemberID,
			"from_status": existing.Status,
			"to_status":   domain.ApplicationStatusAccepted,
		}); err != nil {
			return domain.Application{}, err
		}
		if err := tx.Commit(); err != nil {
			return domain.Application{}, err
		}
		existing.Status = domain.ApplicationStatusAccepted
		existing.UpdatedAt = now
		return existing, nil
	}

	if err := e.Repo.EnsureMember(ctx, tx, memberID, "", now); err != nil {
		return domain.Application{}, err
	}
	app := domain.Application{
		ID:         newID(),
		ActivityID: activity.ID,
		MemberID:   memberID,
		OrgID:      activity.OrgID,
		Status:     domain.ApplicationStatusAccepted,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.Repo.InsertApplicationMirrorsTx(ctx, tx, app); err != nil {
		return domain.Application{}, err
	}
	if err := e.Events.Append(ctx, tx, "application.created", activity.OrgID, "application", app.ID, actorID, events.EventPayload{
		"activity_id": activity.ID,
		"member_id":   memberID,
		"status":      app.Status,
	}); err != nil {
		return domain.Application{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Application{}, err
	}
	return app, nil
}

// CascadeDeleteForActivity removes the activity, its validations and every
// application mirror in one atomic batch, settling the organization's
// pending counter by the number of applications that were still pending. A
// partial cascade never survives: either everything goes or nothing does.
func (e Engine) CascadeDeleteForActivity(ctx context.Context, activityID, actorID string) error {
	activity, err := e.Repo.GetActivity(ctx, activityID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrActivityNotFound
		}
		return err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	apps, err := e.Repo.ListActivityApplicationsTx(ctx, tx, activityID)
	if err != nil {
		return err
	}
	pending := 0
	for _, app := range apps {
		if app.Status == domain.ApplicationStatusPending {
			pending++
		}
		if err := e.Repo.DeleteApplicationMirrorsTx(ctx, tx, app.ID); err != nil {
			return err
		}
		if err := e.Events.Append(ctx, tx, "application.deleted", activity.OrgID, "application", app.ID, actorID, events.EventPayload{
			"activity_id": activity.ID,
			"member_id":   app.MemberID,
		}); err != nil {
			return err
		}
	}
	if pending > 0 {
		if err := e.Repo.AdjustPendingCounterTx(ctx, tx, activity.OrgID, -pending); err != nil {
			return err
		}
	}
	if err := e.Repo.DeleteActivityValidationsTx(ctx, tx, activityID); err != nil {
		return err
	}
	if err := e.Repo.DeleteActivityTx(ctx, tx, activityID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "activity.deleted", activity.OrgID, "activity", activity.ID, actorID, events.EventPayload{
		"applications_removed": len(apps),
		"pending_removed":      pending,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// CheckApplicationConsistency verifies that all three mirrors of every
// application under the activity agree. Divergence is a fault, reported
// rather than repaired.
func (e Engine) CheckApplicationConsistency(ctx context.Context, activityID string) error {
	apps, err := e.Repo.ListActivityApplications(ctx, activityID, "")
	if err != nil {
		return err
	}
	for _, canonical := range apps {
		for _, table := range []string{repo.MirrorMember, repo.MirrorOrg} {
			mirror, err := e.Repo.GetApplicationMirror(ctx, table, canonical.ID)
			if errors.Is(err, repo.ErrNotFound) {
				return ConsistencyFaultError{ApplicationID: canonical.ID, Mirror: table, Detail: "mirror missing"}
			}
			if err != nil {
				return err
			}
			if mirror.Status != canonical.Status {
				return ConsistencyFaultError{
					ApplicationID: canonical.ID,
					Mirror:        table,
					Detail:        fmt.Sprintf("status %s != %s", mirror.Status, canonical.Status),
				}
			}
			if mirror.UpdatedAt != canonical.UpdatedAt {
				return ConsistencyFaultError{
					ApplicationID: canonical.ID,
					Mirror:        table,
					Detail:        fmt.Sprintf("updated_at %s != %s", mirror.UpdatedAt, canonical.UpdatedAt),
				}
			}
			if mirror.Note != canonical.Note {
				return ConsistencyFaultError{ApplicationID: canonical.ID, Mirror: table, Detail: "note differs"}
			}
		}
	}
	return nil
}
