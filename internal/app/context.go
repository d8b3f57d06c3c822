package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"budgetline/internal/config"
	"budgetline/internal/domain"
	"budgetline/internal/repo"
)

// ResolveCompanyAndConfig picks the active company and ensures a company +
// config exist in DB, seeding defaults if missing. It prefers overrides, then
// single-company DB. If the company does not exist, it is created on the fly.
func ResolveCompanyAndConfig(ctx context.Context, workspace, companyOverride, actorID string, r repo.Repo) (string, *config.Config, error) {
	companyID := companyOverride
	if companyID == "" {
		if c, err := r.SingleCompany(ctx); err == nil {
			companyID = c.ID
		} else {
			return "", nil, fmt.Errorf("company not specified; use --company")
		}
	}
	seedCfg := config.Default(companyID)

	if _, err := r.GetCompany(ctx, companyID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if err := createCompany(ctx, r, companyID, seedCfg, actorID); err != nil {
			return "", nil, err
		}
	}
	cfg, err := r.GetCompanyConfig(ctx, companyID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			if err := r.UpsertCompanyConfig(ctx, companyID, seedCfg); err != nil {
				return "", nil, fmt.Errorf("seed company config: %w", err)
			}
			cfg = seedCfg
		} else {
			return "", nil, err
		}
	}
	cfg.Company.ID = companyID
	return companyID, cfg, nil
}

// createCompany inserts a minimal company/rbac footprint using the seed config.
func createCompany(ctx context.Context, r repo.Repo, companyID string, seedCfg *config.Config, actorID string) error {
	if seedCfg == nil {
		seedCfg = config.Default(companyID)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	c := domain.Company{
		ID:        companyID,
		Name:      seedCfg.Company.Name,
		Status:    "active",
		CreatedAt: now,
	}
	if c.Name == "" {
		c.Name = companyID
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO companies(id,name,status,created_at) VALUES (?,?,?,?)`,
		c.ID, c.Name, c.Status, c.CreatedAt); err != nil {
		return fmt.Errorf("insert company: %w", err)
	}
	if err := r.UpsertCompanyConfigTx(ctx, tx, companyID, seedCfg); err != nil {
		return fmt.Errorf("insert company config: %w", err)
	}
	if actorID == "" {
		actorID = "local-user"
	}
	if err := r.EnsureActor(ctx, tx, actorID, "", now); err != nil {
		return fmt.Errorf("ensure actor: %w", err)
	}
	for roleID, role := range seedCfg.RBAC.Roles {
		if err := r.InsertRole(ctx, tx, roleID, role.Description); err != nil {
			return fmt.Errorf("insert role: %w", err)
		}
		for _, perm := range role.Permissions {
			if err := r.InsertPermission(ctx, tx, perm, ""); err != nil {
				return fmt.Errorf("insert permission: %w", err)
			}
			if err := r.AddRolePermission(ctx, tx, roleID, perm); err != nil {
				return fmt.Errorf("add role permission: %w", err)
			}
		}
	}
	if err := r.AssignRole(ctx, tx, companyID, actorID, "owner"); err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	return tx.Commit()
}
