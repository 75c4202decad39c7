package domain

const (
	ActivityTypeOnline = "online"
	ActivityTypeLocal  = "local"
	ActivityTypeEvent  = "event"

	ActivityStatusDraft  = "draft"
	ActivityStatusOpen   = "open"
	ActivityStatusClosed = "closed"

	ApplicationStatusPending   = "pending"
	ApplicationStatusAccepted  = "accepted"
	ApplicationStatusRejected  = "rejected"
	ApplicationStatusCancelled = "cancelled"

	ValidationStatusValidated = "validated"
	ValidationStatusRejected  = "rejected"

	ActorKindMember = "member"
	ActorKindStaff  = "staff"

	HistoryViaToken  = "token"
	HistoryViaManual = "manual"
)

type Organization struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	TotalNewApplications int    `json:"total_new_applications"`
	CreatedAt            string `json:"created_at" format:"date-time"`
}

type Member struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Points    int    `json:"points"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Badge struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Points    int    `json:"points"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type BadgeGrant struct {
	MemberID string `json:"member_id"`
	BadgeID  string `json:"badge_id"`
	EarnedAt string `json:"earned_at" format:"date-time"`
}

// PointEntry is one row of the append-only points ledger. EventKey is the
// deterministic idempotency key: a second award carrying the same key no-ops.
type PointEntry struct {
	ID         int64  `json:"id"`
	MemberID   string `json:"member_id"`
	Amount     int    `json:"amount"`
	Reason     string `json:"reason,omitempty"`
	SourceKind string `json:"source_kind"`
	EventKey   string `json:"event_key"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type Activity struct {
	ID              string `json:"id"`
	OrgID           string `json:"org_id"`
	Type            string `json:"type" enum:"online,local,event"`
	Status          string `json:"status" enum:"draft,open,closed"`
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	RewardPoints    int    `json:"reward_points"`
	CompletionToken string `json:"-"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date,omitempty"`
	StartTime       string `json:"start_time,omitempty"`
	EndTime         string `json:"end_time,omitempty"`
	SDG             *int   `json:"sdg,omitempty"`
	Continent       string `json:"continent,omitempty"`
	ApplicantCount  int    `json:"applicant_count"`
	CreatedAt       string `json:"created_at" format:"date-time"`
	UpdatedAt       string `json:"updated_at" format:"date-time"`
}

// Application is the logical aggregate behind the three physical mirrors
// (activity-side, member-side, organization-side). The registry keeps the
// mirrors identical; callers only ever see this struct.
type Application struct {
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

// Validation is the durable outcome of a completion claim, at most one per
// (activity, member). TokenUsed is set only for token validations.
type Validation struct {
	ActivityID  string `json:"activity_id"`
	MemberID    string `json:"member_id"`
	Status      string `json:"status" enum:"validated,rejected"`
	ActorKind   string `json:"actor_kind" enum:"member,staff"`
	ActorID     string `json:"actor_id"`
	TokenUsed   string `json:"token_used,omitempty"`
	ValidatedAt string `json:"validated_at,omitempty" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

// HistoryEntry points at the canonical activity; it never copies its content.
type HistoryEntry struct {
	ID         int64  `json:"id"`
	MemberID   string `json:"member_id"`
	ActivityID string `json:"activity_id"`
	Via        string `json:"via" enum:"token,manual"`
	AddedAt    string `json:"added_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	OrgID      string `json:"org_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Role      string `json:"role" enum:"member,staff"`
	OrgID     string `json:"org_id,omitempty"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
