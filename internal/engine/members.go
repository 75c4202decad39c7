package engine

import (
	"context"
	"errors"
	"fmt"

	"voluna/internal/domain"
	"voluna/internal/repo"
)

// CreateOrganization registers an organization with a zeroed pending
// application counter.
func (e Engine) CreateOrganization(ctx context.Context, id, name string) (domain.Organization, error) {
	if id == "" {
		return domain.Organization{}, fmt.Errorf("organization id is required")
	}
	if name == "" {
		name = id
	}
	if _, err := e.Repo.GetOrganization(ctx, id); err == nil {
		return domain.Organization{}, fmt.Errorf("organization %s already exists", id)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Organization{}, err
	}
	org := domain.Organization{ID: id, Name: name, CreatedAt: e.timestamp()}
	if err := e.Repo.InsertOrganization(ctx, org); err != nil {
		return domain.Organization{}, err
	}
	return org, nil
}

// DefineBadge creates or updates a badge definition. Points on an existing
// badge change for future grants only; past grants keep their awards.
func (e Engine) DefineBadge(ctx context.Context, id, name string, points int) (domain.Badge, error) {
	if id == "" || name == "" {
		return domain.Badge{}, fmt.Errorf("badge id and name are required")
	}
	if points < 0 {
		return domain.Badge{}, fmt.Errorf("badge points must not be negative")
	}
	b := domain.Badge{ID: id, Name: name, Points: points, CreatedAt: e.timestamp()}
	if err := e.Repo.UpsertBadge(ctx, b); err != nil {
		return domain.Badge{}, err
	}
	return e.Repo.GetBadge(ctx, id)
}

// CreateMember registers a member; an empty id gets a minted one.
func (e Engine) CreateMember(ctx context.Context, id, name string) (domain.Member, error) {
	if name == "" {
		return domain.Member{}, fmt.Errorf("member name is required")
	}
	if id == "" {
		id = newID()
	}
	m := domain.Member{ID: id, Name: name, CreatedAt: e.timestamp()}
	if err := e.Repo.InsertMember(ctx, m); err != nil {
		return domain.Member{}, err
	}
	return m, nil
}
