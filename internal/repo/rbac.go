package repo

import (
	"context"
	"database/sql"
)

func (r Repo) EnsureActor(ctx context.Context, tx *sql.Tx, actorID, name, now string) error {
	if name == "" {
		name = actorID
	}
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO actors(id, name, created_at) VALUES (?,?,?)`, actorID, name, now)
	return err
}

func (r Repo) InsertRole(ctx context.Context, tx *sql.Tx, id, name string) error {
	if name == "" {
		name = id
	}
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO roles(id, name) VALUES (?,?)`, id, name)
	return err
}

func (r Repo) InsertPermission(ctx context.Context, tx *sql.Tx, id, name string) error {
	if name == "" {
		name = id
	}
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO permissions(id, name) VALUES (?,?)`, id, name)
	return err
}

func (r Repo) AddRolePermission(ctx context.Context, tx *sql.Tx, roleID, permID string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO role_permissions(role_id, permission_id) VALUES (?,?)`, roleID, permID)
	return err
}

// AssignRole grants a role to an actor within a company scope. An empty
// companyID grants it globally.
func (r Repo) AssignRole(ctx context.Context, tx *sql.Tx, companyID, actorID, roleID string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO actor_roles(actor_id, role_id, company_id) VALUES (?,?,?)`, actorID, roleID, companyID)
	return err
}

func (r Repo) RevokeRole(ctx context.Context, tx *sql.Tx, companyID, actorID, roleID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM actor_roles WHERE actor_id=? AND role_id=? AND company_id=?`, actorID, roleID, companyID)
	return err
}

func (r Repo) actorRoles(ctx context.Context, tx *sql.Tx, companyID, actorID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT role_id FROM actor_roles WHERE actor_id=? AND (company_id=? OR company_id='')`, actorID, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, nil
}

func (r Repo) rolePermissions(ctx context.Context, tx *sql.Tx, roleID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT permission_id FROM role_permissions WHERE role_id=?`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, nil
}

// ActorHasPermission reports whether any of the actor's roles in the company
// scope carries the permission.
func (r Repo) ActorHasPermission(ctx context.Context, tx *sql.Tx, companyID, actorID, permID string) (bool, error) {
	roles, err := r.actorRoles(ctx, tx, companyID, actorID)
	if err != nil {
		return false, err
	}
	for _, role := range roles {
		perms, err := r.rolePermissions(ctx, tx, role)
		if err != nil {
			return false, err
		}
		for _, p := range perms {
			if p == permID {
				return true, nil
			}
		}
	}
	return false, nil
}

// ActorPermissions returns the union of permissions over the actor's roles.
func (r Repo) ActorPermissions(ctx context.Context, tx *sql.Tx, companyID, actorID string) ([]string, error) {
	roles, err := r.actorRoles(ctx, tx, companyID, actorID)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var res []string
	for _, role := range roles {
		perms, err := r.rolePermissions(ctx, tx, role)
		if err != nil {
			return nil, err
		}
		for _, p := range perms {
			if !seen[p] {
				seen[p] = true
				res = append(res, p)
			}
		}
	}
	return res, nil
}
