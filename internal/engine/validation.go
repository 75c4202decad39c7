package engine

import (
	"context"
	"errors"
	"fmt"

	"voluna/internal/domain"
	"voluna/internal/events"
	"voluna/internal/repo"
)

// ValidationResult reports everything a successful validation produced.
type ValidationResult struct {
	ActivityID    string            `json:"activity_id"`
	MemberID      string            `json:"member_id"`
	PointsAwarded int               `json:"points_awarded"`
	BadgesGranted []string          `json:"badges_granted,omitempty"`
	Validation    domain.Validation `json:"validation"`
}

// BatchResult summarizes a validate-all or reject-all run.
type BatchResult struct {
	Processed []string `json:"processed"`
	Failed    []string `json:"failed,omitempty"`
}

// ValidateByToken settles a member's completion claim against the activity's
// completion token. The guards run in a fixed order so a claim always fails
// for the same reason regardless of how broken the input is: an existing
// validated record wins over a missing activity, which wins over a
// non-presential type, then a bad token, then a date mismatch. Online
// activities fail on the type guard no matter what token was presented.
func (e Engine) ValidateByToken(ctx context.Context, activityID, memberID, token string) (ValidationResult, error) {
	existing, err := e.Repo.GetValidation(ctx, activityID, memberID)
	if err == nil && existing.Status == domain.ValidationStatusValidated {
		return ValidationResult{}, ErrAlreadyValidated
	}
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return ValidationResult{}, err
	}

	activity, err := e.Repo.GetActivity(ctx, activityID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ValidationResult{}, ErrActivityNotFound
		}
		return ValidationResult{}, err
	}
	if activity.Type == domain.ActivityTypeOnline {
		return ValidationResult{}, ErrInvalidActivityType
	}
	if token == "" || token != activity.CompletionToken {
		return ValidationResult{}, ErrInvalidToken
	}
	if activity.StartDate != e.today() {
		return ValidationResult{}, ErrInvalidDate
	}

	return e.settleValidation(ctx, activity, memberID, memberID, domain.ActorKindMember, token, domain.HistoryViaToken)
}

// ValidateManually records a staff decision. It bypasses the token, type and
// date guards; only the exactly-once guard applies.
func (e Engine) ValidateManually(ctx context.Context, activityID, memberID, staffID string) (ValidationResult, error) {
	existing, err := e.Repo.GetValidation(ctx, activityID, memberID)
	if err == nil && existing.Status == domain.ValidationStatusValidated {
		return ValidationResult{}, ErrAlreadyValidated
	}
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return ValidationResult{}, err
	}
	activity, err := e.Repo.GetActivity(ctx, activityID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ValidationResult{}, ErrActivityNotFound
		}
		return ValidationResult{}, err
	}
	return e.settleValidation(ctx, activity, memberID, staffID, domain.ActorKindStaff, "", domain.HistoryViaManual)
}

// settleValidation applies the side effects every successful validation
// shares. The application flip is best-effort: a member can be validated
// even when the registry refuses the backfill. Points and badges are
// idempotent, so a retry after a mid-way crash completes without
// double-awarding.
func (e Engine) settleValidation(ctx context.Context, activity domain.Activity, memberID, actorID, actorKind, tokenUsed, via string) (ValidationResult, error) {
	res := ValidationResult{ActivityID: activity.ID, MemberID: memberID}

	if _, err := e.CreateOrUpdateApplicationAsAccepted(ctx, activity.ID, memberID, actorID); err != nil {
		e.logger().Printf("application backfill for %s/%s failed: %v", activity.ID, memberID, err)
	}

	if activity.RewardPoints > 0 {
		key := fmt.Sprintf("activity-completion:%s:%s", activity.ID, memberID)
		reason := fmt.Sprintf("completed %s", activity.Title)
		if err := e.AwardPoints(ctx, memberID, activity.RewardPoints, reason, SourceActivityCompletion, key, actorID); err != nil {
			return res, err
		}
		res.PointsAwarded = activity.RewardPoints
	}

	if e.Config != nil {
		for _, rule := range e.Config.Rewards.Taxonomy {
			if !rule.Matches(activity.SDG, activity.Continent, activity.Type) {
				continue
			}
			granted, err := e.GrantBadge(ctx, memberID, rule.Badge, actorID)
			if err != nil {
				return res, err
			}
			if granted {
				res.BadgesGranted = append(res.BadgesGranted, rule.Badge)
			}
		}
	}

	now := e.timestamp()
	v := domain.Validation{
		ActivityID:  activity.ID,
		MemberID:    memberID,
		Status:      domain.ValidationStatusValidated,
		ActorKind:   actorKind,
		ActorID:     actorID,
		TokenUsed:   tokenUsed,
		ValidatedAt: now,
		UpdatedAt:   now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.InsertHistoryEntryTx(ctx, tx, domain.HistoryEntry{
		MemberID:   memberID,
		ActivityID: activity.ID,
		Via:        via,
		AddedAt:    now,
	}); err != nil {
		return res, err
	}
	if err := e.Repo.UpsertValidationTx(ctx, tx, v); err != nil {
		return res, err
	}
	if err := e.Events.Append(ctx, tx, "validation.recorded", activity.OrgID, "validation", activity.ID, actorID, events.EventPayload{
		"member_id":  memberID,
		"status":     v.Status,
		"actor_kind": actorKind,
		"via":        via,
		"points":     res.PointsAwarded,
	}); err != nil {
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}
	res.Validation = v
	return res, nil
}

// RejectApplicant records a rejected validation outcome for the member.
// Rejection is reversible: a later manual validation overwrites it. No
// points or badges are touched; anything already awarded stays awarded.
func (e Engine) RejectApplicant(ctx context.Context, activityID, memberID, staffID string) (domain.Validation, error) {
	activity, err := e.Repo.GetActivity(ctx, activityID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Validation{}, ErrActivityNotFound
		}
		return domain.Validation{}, err
	}

	now := e.timestamp()
	v := domain.Validation{
		ActivityID: activity.ID,
		MemberID:   memberID,
		Status:     domain.ValidationStatusRejected,
		ActorKind:  domain.ActorKindStaff,
		ActorID:    staffID,
		UpdatedAt:  now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Validation{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpsertValidationTx(ctx, tx, v); err != nil {
		return domain.Validation{}, err
	}
	if err := e.Events.Append(ctx, tx, "validation.recorded", activity.OrgID, "validation", activity.ID, staffID, events.EventPayload{
		"member_id":  memberID,
		"status":     v.Status,
		"actor_kind": v.ActorKind,
	}); err != nil {
		return domain.Validation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Validation{}, err
	}
	return v, nil
}

// ValidateAll validates applicants of the activity in one sweep. An empty
// memberIDs means every accepted applicant; otherwise only the listed members
// are touched. Each member is settled independently; one failure does not
// abort the rest. The error, when non-nil, is a PartialFailureError listing
// exactly who failed and why. Members already validated count as processed.
func (e Engine) ValidateAll(ctx context.Context, activityID string, memberIDs []string, staffID string) (BatchResult, error) {
	return e.batchOverApplicants(ctx, activityID, memberIDs, func(memberID string) error {
		_, err := e.ValidateManually(ctx, activityID, memberID, staffID)
		if errors.Is(err, ErrAlreadyValidated) {
			return nil
		}
		return err
	})
}

// RejectAll rejects applicants of the activity in one sweep. An empty
// memberIDs means every accepted applicant.
func (e Engine) RejectAll(ctx context.Context, activityID string, memberIDs []string, staffID string) (BatchResult, error) {
	return e.batchOverApplicants(ctx, activityID, memberIDs, func(memberID string) error {
		_, err := e.RejectApplicant(ctx, activityID, memberID, staffID)
		return err
	})
}

func (e Engine) batchOverApplicants(ctx context.Context, activityID string, memberIDs []string, op func(memberID string) error) (BatchResult, error) {
	if _, err := e.Repo.GetActivity(ctx, activityID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return BatchResult{}, ErrActivityNotFound
		}
		return BatchResult{}, err
	}
	if len(memberIDs) == 0 {
		apps, err := e.Repo.ListActivityApplications(ctx, activityID, domain.ApplicationStatusAccepted)
		if err != nil {
			return BatchResult{}, err
		}
		for _, app := range apps {
			memberIDs = append(memberIDs, app.MemberID)
		}
	}

	var res BatchResult
	failed := map[string]string{}
	for _, memberID := range memberIDs {
		if err := op(memberID); err != nil {
			failed[memberID] = err.Error()
			res.Failed = append(res.Failed, memberID)
			continue
		}
		res.Processed = append(res.Processed, memberID)
	}
	if len(failed) > 0 {
		return res, PartialFailureError{Failed: failed}
	}
	return res, nil
}

// EffectiveParticipantCount is the number of accepted applicants minus those
// whose validation was rejected afterwards. It is computed, never stored.
func (e Engine) EffectiveParticipantCount(ctx context.Context, activityID string) (int, error) {
	if _, err := e.Repo.GetActivity(ctx, activityID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return 0, ErrActivityNotFound
		}
		return 0, err
	}
	apps, err := e.Repo.ListActivityApplications(ctx, activityID, domain.ApplicationStatusAccepted)
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(apps))
	for _, app := range apps {
		ids = append(ids, app.MemberID)
	}
	rejected, err := e.Repo.CountRejectedAmong(ctx, activityID, ids)
	if err != nil {
		return 0, err
	}
	return len(ids) - rejected, nil
}
