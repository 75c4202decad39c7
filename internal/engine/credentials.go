package engine

import (
	"context"

	"voluna/internal/domain"
	"voluna/internal/repo"
)

// MintAPIKey generates a fresh key for an actor and stores only its hash.
// The plaintext key is returned once and never recoverable afterwards.
func (e Engine) MintAPIKey(ctx context.Context, actorID, role, orgID, name string) (string, domain.APIKey, error) {
	if role == "" {
		role = domain.ActorKindMember
	}
	key := newID()
	record := domain.APIKey{
		ID:        newID(),
		ActorID:   actorID,
		Role:      role,
		OrgID:     orgID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(key),
		CreatedAt: e.timestamp(),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, record); err != nil {
		return "", domain.APIKey{}, err
	}
	return key, record, nil
}
