package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voluna/internal/domain"
	"voluna/internal/events"
	"voluna/internal/repo"
)

// ActivityCreateOptions carries the caller-supplied fields of a new
// activity. Everything else (id, token, status, counters) is minted here.
type ActivityCreateOptions struct {
	OrgID        string
	Type         string
	Title        string
	Description  string
	RewardPoints int
	StartDate    string
	EndDate      string
	StartTime    string
	EndTime      string
	SDG          *int
	Continent    string
}

func validActivityType(t string) bool {
	switch t {
	case domain.ActivityTypeOnline, domain.ActivityTypeLocal, domain.ActivityTypeEvent:
		return true
	}
	return false
}

// ensureActivityTransition is the lifecycle table: draft and open swap
// freely, closing is one-way and only from open.
func ensureActivityTransition(from, to string) error {
	switch {
	case from == domain.ActivityStatusDraft && to == domain.ActivityStatusOpen:
		return nil
	case from == domain.ActivityStatusOpen && to == domain.ActivityStatusDraft:
		return nil
	case from == domain.ActivityStatusOpen && to == domain.ActivityStatusClosed:
		return nil
	}
	return InvalidTransitionError{Entity: "activity", From: from, To: to}
}

// CreateActivity mints a new draft activity. Presential activities (local
// and event) get a completion token at birth; online ones never carry one.
func (e Engine) CreateActivity(ctx context.Context, opts ActivityCreateOptions) (domain.Activity, error) {
	if !validActivityType(opts.Type) {
		return domain.Activity{}, fmt.Errorf("invalid activity type %q", opts.Type)
	}
	if opts.StartDate != "" {
		if _, err := time.Parse("2006-01-02", opts.StartDate); err != nil {
			return domain.Activity{}, fmt.Errorf("invalid start_date %q: want YYYY-MM-DD", opts.StartDate)
		}
	}
	if _, err := e.Repo.GetOrganization(ctx, opts.OrgID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Activity{}, ErrOrganizationNotFound
		}
		return domain.Activity{}, err
	}

	now := e.timestamp()
	activity := domain.Activity{
		ID:           newID(),
		OrgID:        opts.OrgID,
		Type:         opts.Type,
		Status:       domain.ActivityStatusDraft,
		Title:        opts.Title,
		Description:  opts.Description,
		RewardPoints: opts.RewardPoints,
		StartDate:    opts.StartDate,
		EndDate:      opts.EndDate,
		StartTime:    opts.StartTime,
		EndTime:      opts.EndTime,
		SDG:          opts.SDG,
		Continent:    opts.Continent,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if activity.Type != domain.ActivityTypeOnline {
		activity.CompletionToken = newCompletionToken()
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Activity{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertActivityTx(ctx, tx, activity); err != nil {
		return domain.Activity{}, err
	}
	if err := e.Events.Append(ctx, tx, "activity.created", activity.OrgID, "activity", activity.ID, "", events.EventPayload{
		"type":  activity.Type,
		"title": activity.Title,
	}); err != nil {
		return domain.Activity{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Activity{}, err
	}
	return activity, nil
}

// SetStatus moves the activity through its lifecycle. Closing an activity
// that still has pending applications fails with ErrPendingApplications
// when strict mode is on; the permissive default closes over them.
func (e Engine) SetStatus(ctx context.Context, activityID, newStatus, actorID string) (domain.Activity, error) {
	activity, err := e.Repo.GetActivity(ctx, activityID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Activity{}, ErrActivityNotFound
		}
		return domain.Activity{}, err
	}
	if activity.Status == newStatus {
		return activity, nil
	}
	if err := ensureActivityTransition(activity.Status, newStatus); err != nil {
		return domain.Activity{}, err
	}
	if newStatus == domain.ActivityStatusClosed && e.Config != nil && e.Config.Validation.StrictClose {
		pending, err := e.Repo.CountActivityApplicationsByStatus(ctx, activityID, domain.ApplicationStatusPending)
		if err != nil {
			return domain.Activity{}, err
		}
		if pending > 0 {
			return domain.Activity{}, ErrPendingApplications
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Activity{}, err
	}
	defer tx.Rollback()

	now := e.timestamp()
	if err := e.Repo.UpdateActivityStatusTx(ctx, tx, activityID, newStatus, now); err != nil {
		return domain.Activity{}, err
	}
	if err := e.Events.Append(ctx, tx, "activity.status", activity.OrgID, "activity", activity.ID, actorID, events.EventPayload{
		"from_status": activity.Status,
		"to_status":   newStatus,
	}); err != nil {
		return domain.Activity{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Activity{}, err
	}
	activity.Status = newStatus
	activity.UpdatedAt = now
	return activity, nil
}

// DeleteActivity removes the activity and cascades over its applications
// and validations.
func (e Engine) DeleteActivity(ctx context.Context, activityID, actorID string) error {
	return e.CascadeDeleteForActivity(ctx, activityID, actorID)
}

// DuplicateActivity clones an activity into a fresh draft: new id, new
// completion token, zero applicants, no applications or validations carried
// over.
func (e Engine) DuplicateActivity(ctx context.Context, activityID, actorID string) (domain.Activity, error) {
	src, err := e.Repo.GetActivity(ctx, activityID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Activity{}, ErrActivityNotFound
		}
		return domain.Activity{}, err
	}

	now := e.timestamp()
	clone := src
	clone.ID = newID()
	clone.Status = domain.ActivityStatusDraft
	clone.ApplicantCount = 0
	clone.CompletionToken = ""
	if clone.Type != domain.ActivityTypeOnline {
		clone.CompletionToken = newCompletionToken()
	}
	clone.CreatedAt = now
	clone.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Activity{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertActivityTx(ctx, tx, clone); err != nil {
		return domain.Activity{}, err
	}
	if err := e.Events.Append(ctx, tx, "activity.duplicated", clone.OrgID, "activity", clone.ID, actorID, events.EventPayload{
		"source_id": src.ID,
	}); err != nil {
		return domain.Activity{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Activity{}, err
	}
	return clone, nil
}
