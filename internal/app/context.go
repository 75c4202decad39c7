package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voluna/internal/config"
	"voluna/internal/repo"
)

// ResolveOrgAndConfig picks the active organization and ensures an org plus
// a stored config exist, seeding defaults if missing. It prefers overrides,
// then the workspace voluna.yml, then a single-org database.
func ResolveOrgAndConfig(ctx context.Context, workspace, orgOverride, actorID string, r repo.Repo) (string, *config.Config, error) {
	fileCfg, err := config.LoadOptional(workspace)
	if err != nil {
		return "", nil, err
	}
	orgID := orgOverride
	if orgID == "" && fileCfg != nil {
		orgID = fileCfg.Org.ID
	}
	if orgID == "" {
		orgs, err := r.ListOrganizations(ctx)
		if err != nil {
			return "", nil, err
		}
		if len(orgs) == 1 {
			orgID = orgs[0].ID
		} else {
			return "", nil, fmt.Errorf("organization not specified; use --org or add voluna.yml")
		}
	}

	if _, err := r.GetOrganization(ctx, orgID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if err := seedOrganization(ctx, r, orgID, actorID); err != nil {
			return "", nil, err
		}
	}

	cfg := fileCfg
	if cfg == nil {
		cfg, err = r.GetOrgConfig(ctx, orgID)
		if err != nil {
			if !errors.Is(err, repo.ErrNotFound) {
				return "", nil, err
			}
			cfg = config.Default(orgID)
			if err := r.UpsertOrgConfig(ctx, orgID, cfg); err != nil {
				return "", nil, fmt.Errorf("seed org config: %w", err)
			}
		}
	}
	cfg.Org.ID = orgID
	return orgID, cfg, nil
}

// seedOrganization inserts a minimal org footprint and makes the local
// actor its staff owner.
func seedOrganization(ctx context.Context, r repo.Repo, orgID, actorID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.EnsureOrganization(ctx, tx, orgID, orgID, now); err != nil {
		return fmt.Errorf("ensure organization: %w", err)
	}
	if err := r.UpsertOrgConfigTx(ctx, tx, orgID, config.Default(orgID)); err != nil {
		return fmt.Errorf("seed org config: %w", err)
	}
	if actorID == "" {
		actorID = "local-user"
	}
	if err := r.AssignStaff(ctx, tx, orgID, actorID, "owner"); err != nil {
		return fmt.Errorf("assign staff: %w", err)
	}
	return tx.Commit()
}
