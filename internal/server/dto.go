package server

import (
	"voluna/internal/domain"
	"voluna/internal/engine"
)

// Request payloads

type CreateOrganizationRequest struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type CreateMemberRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

type CreateBadgeRequest struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Points int    `json:"points,omitempty"`
}

type GrantBadgeRequest struct {
	MemberID string `json:"member_id"`
}

type AwardPointsRequest struct {
	Amount   int    `json:"amount"`
	Reason   string `json:"reason,omitempty"`
	EventKey string `json:"event_key,omitempty"`
}

type CreateActivityRequest struct {
	OrgID        string `json:"org_id,omitempty"`
	Type         string `json:"type" enum:"online,local,event"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	RewardPoints int    `json:"reward_points,omitempty"`
	StartDate    string `json:"start_date,omitempty"`
	EndDate      string `json:"end_date,omitempty"`
	StartTime    string `json:"start_time,omitempty"`
	EndTime      string `json:"end_time,omitempty"`
	SDG          *int   `json:"sdg,omitempty"`
	Continent    string `json:"continent,omitempty"`
}

type SetActivityStatusRequest struct {
	Status string `json:"status" enum:"draft,open,closed"`
}

type CreateApplicationRequest struct {
	MemberID string `json:"member_id,omitempty"`
	Message  string `json:"message,omitempty"`
}

type DecideApplicationRequest struct {
	Status string `json:"status" enum:"accepted,rejected,cancelled"`
	Note   string `json:"note,omitempty"`
}

type TokenValidationRequest struct {
	MemberID string `json:"member_id,omitempty"`
	Token    string `json:"token"`
}

type ManualValidationRequest struct {
	MemberID string `json:"member_id"`
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role,omitempty" enum:"member,staff"`
	OrgID   string `json:"org_id,omitempty"`
	Name    string `json:"name,omitempty"`
}

// Response payloads

type OrganizationResponse struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	TotalNewApplications int    `json:"total_new_applications"`
	CreatedAt            string `json:"created_at" format:"date-time"`
}

type MemberResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Points    int    `json:"points"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type BadgeResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Points    int    `json:"points"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type BadgeGrantResponse struct {
	MemberID string `json:"member_id"`
	BadgeID  string `json:"badge_id"`
	Granted  bool   `json:"granted"`
	EarnedAt string `json:"earned_at,omitempty" format:"date-time"`
}

type ActivityResponse struct {
	ID             string `json:"id"`
	OrgID          string `json:"org_id"`
	Type           string `json:"type" enum:"online,local,event"`
	Status         string `json:"status" enum:"draft,open,closed"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	RewardPoints   int    `json:"reward_points"`
	StartDate      string `json:"start_date,omitempty"`
	EndDate        string `json:"end_date,omitempty"`
	StartTime      string `json:"start_time,omitempty"`
	EndTime        string `json:"end_time,omitempty"`
	SDG            *int   `json:"sdg,omitempty"`
	Continent      string `json:"continent,omitempty"`
	ApplicantCount int    `json:"applicant_count"`
	CreatedAt      string `json:"created_at" format:"date-time"`
	UpdatedAt      string `json:"updated_at" format:"date-time"`
}

// ActivityTokenResponse exposes the completion token to staff only; the
// plain activity responses never carry it.
type ActivityTokenResponse struct {
	ActivityID      string `json:"activity_id"`
	CompletionToken string `json:"completion_token,omitempty"`
}

type ApplicationResponse struct {
	ID         string `json:"id"`
	ActivityID string `json:"activity_id"`
	MemberID   string `json:"member_id"`
	OrgID      string `json:"org_id"`
	Status     string `json:"status" enum:"pending,accepted,rejected,cancelled"`
	Message    string `json:"message,omitempty"`
	Note       string `json:"note,omitempty"`
	CreatedAt  string `json:"created_at" format:"date-time"`
	UpdatedAt  string `json:"updated_at" format:"date-time"`
}

type ValidationResponse struct {
	ActivityID  string `json:"activity_id"`
	MemberID    string `json:"member_id"`
	Status      string `json:"status" enum:"validated,rejected"`
	ActorKind   string `json:"actor_kind" enum:"member,staff"`
	ActorID     string `json:"actor_id"`
	ValidatedAt string `json:"validated_at,omitempty" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type ValidationResultResponse struct {
	ActivityID    string             `json:"activity_id"`
	MemberID      string             `json:"member_id"`
	PointsAwarded int                `json:"points_awarded"`
	BadgesGranted []string           `json:"badges_granted,omitempty"`
	Validation    ValidationResponse `json:"validation"`
}

type BatchValidationRequest struct {
	MemberIDs []string `json:"member_ids,omitempty" doc:"Members to process; empty means every accepted applicant"`
}

type BatchValidationResponse struct {
	Processed []string `json:"processed"`
	Failed    []string `json:"failed,omitempty"`
}

type ParticipantCountResponse struct {
	ActivityID string `json:"activity_id"`
	Effective  int    `json:"effective"`
}

type HistoryEntryResponse struct {
	ID         int64  `json:"id"`
	MemberID   string `json:"member_id"`
	ActivityID string `json:"activity_id"`
	Via        string `json:"via" enum:"token,manual"`
	AddedAt    string `json:"added_at" format:"date-time"`
}

type PointEntryResponse struct {
	ID         int64  `json:"id"`
	MemberID   string `json:"member_id"`
	Amount     int    `json:"amount"`
	Reason     string `json:"reason,omitempty"`
	SourceKind string `json:"source_kind"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	OrgID      string `json:"org_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Role      string `json:"role" enum:"member,staff"`
	OrgID     string `json:"org_id,omitempty"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	// Key is only set on creation; it is never stored or shown again.
	Key string `json:"key,omitempty"`
}

// Mappers

func organizationResponse(o domain.Organization) OrganizationResponse {
	return OrganizationResponse{ID: o.ID, Name: o.Name, TotalNewApplications: o.TotalNewApplications, CreatedAt: o.CreatedAt}
}

func memberResponse(m domain.Member) MemberResponse {
	return MemberResponse{ID: m.ID, Name: m.Name, Points: m.Points, CreatedAt: m.CreatedAt}
}

func badgeResponse(b domain.Badge) BadgeResponse {
	return BadgeResponse{ID: b.ID, Name: b.Name, Points: b.Points, CreatedAt: b.CreatedAt}
}

func activityResponse(a domain.Activity) ActivityResponse {
	return ActivityResponse{
		ID:             a.ID,
		OrgID:          a.OrgID,
		Type:           a.Type,
		Status:         a.Status,
		Title:          a.Title,
		Description:    a.Description,
		RewardPoints:   a.RewardPoints,
		StartDate:      a.StartDate,
		EndDate:        a.EndDate,
		StartTime:      a.StartTime,
		EndTime:        a.EndTime,
		SDG:            a.SDG,
		Continent:      a.Continent,
		ApplicantCount: a.ApplicantCount,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func applicationResponse(a domain.Application) ApplicationResponse {
	return ApplicationResponse{
		ID:         a.ID,
		ActivityID: a.ActivityID,
		MemberID:   a.MemberID,
		OrgID:      a.OrgID,
		Status:     a.Status,
		Message:    a.Message,
		Note:       a.Note,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

func validationResponse(v domain.Validation) ValidationResponse {
	return ValidationResponse{
		ActivityID:  v.ActivityID,
		MemberID:    v.MemberID,
		Status:      v.Status,
		ActorKind:   v.ActorKind,
		ActorID:     v.ActorID,
		ValidatedAt: v.ValidatedAt,
		UpdatedAt:   v.UpdatedAt,
	}
}

func validationResultResponse(res engine.ValidationResult) ValidationResultResponse {
	return ValidationResultResponse{
		ActivityID:    res.ActivityID,
		MemberID:      res.MemberID,
		PointsAwarded: res.PointsAwarded,
		BadgesGranted: res.BadgesGranted,
		Validation:    validationResponse(res.Validation),
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		OrgID:      e.OrgID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    e.Payload,
	}
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, ActorID: k.ActorID, Role: k.Role, OrgID: k.OrgID, Name: k.Name, CreatedAt: k.CreatedAt}
}

func mapActivities(items []domain.Activity) []ActivityResponse {
	res := make([]ActivityResponse, 0, len(items))
	for _, a := range items {
		res = append(res, activityResponse(a))
	}
	return res
}

func mapApplications(items []domain.Application) []ApplicationResponse {
	res := make([]ApplicationResponse, 0, len(items))
	for _, a := range items {
		res = append(res, applicationResponse(a))
	}
	return res
}

func mapValidations(items []domain.Validation) []ValidationResponse {
	res := make([]ValidationResponse, 0, len(items))
	for _, v := range items {
		res = append(res, validationResponse(v))
	}
	return res
}

func mapEvents(items []domain.Event) []EventResponse {
	res := make([]EventResponse, 0, len(items))
	for _, e := range items {
		res = append(res, eventResponse(e))
	}
	return res
}
