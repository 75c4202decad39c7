package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrActivityNotFound     = errors.New("activity not found")
	ErrMemberNotFound       = errors.New("member not found")
	ErrBadgeNotFound        = errors.New("badge not found")
	ErrApplicationNotFound  = errors.New("application not found")
	ErrOrganizationNotFound = errors.New("organization not found")

	ErrDuplicateApplication = errors.New("member already applied to this activity")
	ErrAlreadyValidated     = errors.New("member already validated for this activity")
	ErrInvalidToken         = errors.New("completion token does not match")
	ErrInvalidActivityType  = errors.New("online activities cannot be token-validated")
	ErrInvalidDate          = errors.New("token validation is only allowed on the activity start date")
	ErrPendingApplications  = errors.New("activity still has pending applications")
)

// InvalidTransitionError rejects an illegal status change instead of letting
// a raw string assignment through.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s status transition %s -> %s", e.Entity, e.From, e.To)
}

// ConsistencyFaultError reports application mirrors that disagree. This
// should never happen; when it does, the divergence must be visible, not
// papered over.
type ConsistencyFaultError struct {
	ApplicationID string
	Mirror        string
	Detail        string
}

func (e ConsistencyFaultError) Error() string {
	return fmt.Sprintf("application %s: mirror %s diverged: %s", e.ApplicationID, e.Mirror, e.Detail)
}

// PartialFailureError carries per-member failures from a batch validate or
// reject. Successes before a failure are kept, not rolled back.
type PartialFailureError struct {
	Failed map[string]string
}

func (e PartialFailureError) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return fmt.Sprintf("batch failed for members: %s", strings.Join(ids, ", "))
}
