package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"budgetline/internal/config"
	"budgetline/internal/domain"
	"budgetline/internal/events"
	"budgetline/internal/repo"
)

// WhoAmIInfo describes an actor's effective access within one company.
type WhoAmIInfo struct {
	ActorID     string
	Roles       []string
	Permissions []string
}

func (e Engine) WhoAmI(ctx context.Context, companyID, actorID string) (WhoAmIInfo, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return WhoAmIInfo{}, err
	}
	defer tx.Rollback()
	roles, err := e.Auth.ActorRoles(ctx, tx, companyID, actorID)
	if err != nil {
		return WhoAmIInfo{}, err
	}
	perms, err := e.Auth.ActorPermissions(ctx, tx, companyID, actorID)
	if err != nil {
		return WhoAmIInfo{}, err
	}
	return WhoAmIInfo{ActorID: actorID, Roles: roles, Permissions: perms}, nil
}

// SeedRBAC inserts the configured roles and permissions and makes ownerID an
// owner of the company. Safe to call more than once.
func (e Engine) SeedRBAC(ctx context.Context, companyID string, roles map[string]config.RBACRole, ownerID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for roleID, role := range roles {
		if err := e.Repo.InsertRole(ctx, tx, roleID, role.Description); err != nil {
			return fmt.Errorf("insert role %s: %w", roleID, err)
		}
		for _, perm := range role.Permissions {
			if err := e.Repo.InsertPermission(ctx, tx, perm, ""); err != nil {
				return fmt.Errorf("insert permission %s: %w", perm, err)
			}
			if err := e.Repo.AddRolePermission(ctx, tx, roleID, perm); err != nil {
				return fmt.Errorf("bind %s to %s: %w", perm, roleID, err)
			}
		}
	}
	if ownerID != "" {
		if err := e.Repo.EnsureActor(ctx, tx, ownerID, ownerID, e.timestamp()); err != nil {
			return err
		}
		if err := e.Repo.AssignRole(ctx, tx, companyID, ownerID, "owner"); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (e Engine) GrantRole(ctx context.Context, companyID, grantorID, actorID, roleID string) error {
	if actorID == "" || roleID == "" {
		return errors.New("actor_id and role_id are required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureActor(ctx, tx, actorID, actorID, e.timestamp()); err != nil {
		return err
	}
	if err := e.Repo.AssignRole(ctx, tx, companyID, actorID, roleID); err != nil {
		return err
	}
	if err := e.eventWriter().Append(ctx, tx, "rbac.role_granted", companyID, "rbac", actorID, grantorID, events.EventPayload{"role": roleID}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) RevokeRole(ctx context.Context, companyID, grantorID, actorID, roleID string) error {
	if actorID == "" || roleID == "" {
		return errors.New("actor_id and role_id are required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.RevokeRole(ctx, tx, companyID, actorID, roleID); err != nil {
		return err
	}
	if err := e.eventWriter().Append(ctx, tx, "rbac.role_revoked", companyID, "rbac", actorID, grantorID, events.EventPayload{"role": roleID}); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateAPIKey mints a key for the actor and returns it in plaintext exactly
// once. Only the hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name string) (domain.APIKey, string, error) {
	if actorID == "" {
		return domain.APIKey{}, "", errors.New("actor_id is required")
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", err
	}
	raw := "blk_" + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        newID(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(raw),
		CreatedAt: e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureActor(ctx, tx, actorID, actorID, e.timestamp()); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := e.eventWriter().Append(ctx, tx, "apikey.created", "", "apikey", key.ID, actorID, events.EventPayload{"name": name}); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, raw, nil
}

// DeleteAPIKey removes one of the actor's own keys.
func (e Engine) DeleteAPIKey(ctx context.Context, id, actorID string) error {
	keys, err := e.Repo.ListAPIKeys(ctx, actorID)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if k.ID == id {
			return e.Repo.DeleteAPIKey(ctx, id)
		}
	}
	return repo.ErrNotFound
}
