package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"caseguard.org/internal/authz"
	"caseguard.org/internal/ids"
)

func (s *Store) CreateOrganization(ctx context.Context, org authz.Organization) (authz.Organization, error) {
	if s.db == nil {
		return authz.Organization{}, errors.New("database connection unavailable")
	}

	id := org.ID
	if id == "" {
		id = ids.New()
	}
	settingsJSON := []byte("{}")
	if len(org.Settings) > 0 {
		bytes, err := json.Marshal(org.Settings)
		if err != nil {
			return authz.Organization{}, fmt.Errorf("marshal settings: %w", err)
		}
		settingsJSON = bytes
	}

	var (
		created authz.Organization
		rawSet  []byte
	)
	row := s.db.QueryRowContext(ctx, `
		insert into organizations (id, name, slug, plan_tier, max_members, settings)
		values ($1, $2, $3, $4, $5, $6)
		returning id, name, slug, plan_tier, max_members, settings, created_at, updated_at
	`, id, org.Name, org.Slug, org.PlanTier, org.MaxMembers, settingsJSON)
	if err := row.Scan(&created.ID, &created.Name, &created.Slug, &created.PlanTier, &created.MaxMembers, &rawSet, &created.CreatedAt, &created.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return authz.Organization{}, authz.ErrConflict
		}
		return authz.Organization{}, err
	}
	created.Settings = map[string]string{}
	if len(rawSet) > 0 {
		if err := json.Unmarshal(rawSet, &created.Settings); err != nil {
			return authz.Organization{}, fmt.Errorf("decode settings: %w", err)
		}
	}
	return created, nil
}

func (s *Store) GetOrganization(ctx context.Context, id string) (authz.Organization, error) {
	if s.db == nil {
		return authz.Organization{}, errors.New("database connection unavailable")
	}
	var (
		org    authz.Organization
		rawSet []byte
	)
	err := s.db.QueryRowContext(ctx, `
		select id, name, slug, plan_tier, max_members, settings, created_at, updated_at
		from organizations
		where id = $1 and deleted_at is null
	`, id).Scan(&org.ID, &org.Name, &org.Slug, &org.PlanTier, &org.MaxMembers, &rawSet, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.Organization{}, authz.ErrNotFound
	}
	if err != nil {
		return authz.Organization{}, err
	}
	org.Settings = map[string]string{}
	if len(rawSet) > 0 {
		if err := json.Unmarshal(rawSet, &org.Settings); err != nil {
			return authz.Organization{}, err
		}
	}
	return org, nil
}

func (s *Store) SoftDeleteOrganization(ctx context.Context, id string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		update organizations set deleted_at = now(), updated_at = now()
		where id = $1 and deleted_at is null
	`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return authz.ErrNotFound
	}
	return nil
}

func (s *Store) CreateTeam(ctx context.Context, team authz.Team) (authz.Team, error) {
	if s.db == nil {
		return authz.Team{}, errors.New("database connection unavailable")
	}
	id := team.ID
	if id == "" {
		id = ids.New()
	}
	var created authz.Team
	row := s.db.QueryRowContext(ctx, `
		insert into teams (id, organization_id, name)
		values ($1, $2, $3)
		returning id, organization_id, name, created_at, updated_at
	`, id, team.OrganizationID, team.Name)
	if err := row.Scan(&created.ID, &created.OrganizationID, &created.Name, &created.CreatedAt, &created.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return authz.Team{}, authz.ErrConflict
			case pgErrForeignKeyViolation:
				return authz.Team{}, authz.ErrNotFound
			}
		}
		return authz.Team{}, err
	}
	return created, nil
}

func (s *Store) GetTeam(ctx context.Context, id string) (authz.Team, error) {
	if s.db == nil {
		return authz.Team{}, errors.New("database connection unavailable")
	}
	var team authz.Team
	err := s.db.QueryRowContext(ctx, `
		select id, organization_id, name, created_at, updated_at
		from teams
		where id = $1 and deleted_at is null
	`, id).Scan(&team.ID, &team.OrganizationID, &team.Name, &team.CreatedAt, &team.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.Team{}, authz.ErrNotFound
	}
	if err != nil {
		return authz.Team{}, err
	}
	return team, nil
}

func (s *Store) SoftDeleteTeam(ctx context.Context, id string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		update teams set deleted_at = now(), updated_at = now()
		where id = $1 and deleted_at is null
	`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return authz.ErrNotFound
	}
	return nil
}

// AddOrgMember counts current members and inserts within one transaction,
// holding the organization row so concurrent adds cannot overshoot
// max_members.
func (s *Store) AddOrgMember(ctx context.Context, m authz.OrgMembership) (authz.OrgMembership, error) {
	if s.db == nil {
		return authz.OrgMembership{}, errors.New("database connection unavailable")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return authz.OrgMembership{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var maxMembers int
	err = tx.QueryRowContext(ctx, `
		select max_members from organizations
		where id = $1 and deleted_at is null
		for update
	`, m.OrganizationID).Scan(&maxMembers)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.OrgMembership{}, authz.ErrNotFound
	}
	if err != nil {
		return authz.OrgMembership{}, mapTxError(err)
	}

	var current int
	if err := tx.QueryRowContext(ctx, `
		select count(*) from organization_members where organization_id = $1
	`, m.OrganizationID).Scan(&current); err != nil {
		return authz.OrgMembership{}, mapTxError(err)
	}
	if current >= maxMembers {
		return authz.OrgMembership{}, authz.ErrCapacityExceeded
	}

	var created authz.OrgMembership
	err = tx.QueryRowContext(ctx, `
		insert into organization_members (user_id, organization_id, role_id)
		values ($1, $2, $3)
		returning user_id, organization_id, role_id, created_at, updated_at
	`, m.UserID, m.OrganizationID, m.RoleID).Scan(&created.UserID, &created.OrganizationID, &created.RoleID, &created.CreatedAt, &created.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return authz.OrgMembership{}, authz.ErrConflict
			case pgErrForeignKeyViolation:
				return authz.OrgMembership{}, authz.ErrNotFound
			}
		}
		return authz.OrgMembership{}, mapTxError(err)
	}

	if err := tx.Commit(); err != nil {
		return authz.OrgMembership{}, mapTxError(err)
	}
	return created, nil
}

func (s *Store) UpdateOrgMemberRole(ctx context.Context, userID, organizationID, roleID string) (authz.OrgMembership, error) {
	if s.db == nil {
		return authz.OrgMembership{}, errors.New("database connection unavailable")
	}
	var m authz.OrgMembership
	err := s.db.QueryRowContext(ctx, `
		update organization_members
		set role_id = $3, updated_at = now()
		where user_id = $1 and organization_id = $2
		returning user_id, organization_id, role_id, created_at, updated_at
	`, userID, organizationID, roleID).Scan(&m.UserID, &m.OrganizationID, &m.RoleID, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.OrgMembership{}, authz.ErrNotFound
	}
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return authz.OrgMembership{}, authz.ErrNotFound
		}
		return authz.OrgMembership{}, err
	}
	return m, nil
}

func (s *Store) RemoveOrgMember(ctx context.Context, userID, organizationID string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		delete from organization_members
		where user_id = $1 and organization_id = $2
	`, userID, organizationID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return authz.ErrNotFound
	}
	return nil
}

func (s *Store) ListOrgMembers(ctx context.Context, organizationID string) ([]authz.OrgMembership, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select user_id, organization_id, role_id, created_at, updated_at
		from organization_members
		where organization_id = $1
		order by created_at
	`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []authz.OrgMembership
	for rows.Next() {
		var m authz.OrgMembership
		if err := rows.Scan(&m.UserID, &m.OrganizationID, &m.RoleID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return members, nil
}

func (s *Store) GetOrgMembership(ctx context.Context, userID, organizationID string) (authz.OrgMembership, error) {
	if s.db == nil {
		return authz.OrgMembership{}, errors.New("database connection unavailable")
	}
	var m authz.OrgMembership
	err := s.db.QueryRowContext(ctx, `
		select om.user_id, om.organization_id, om.role_id, om.created_at, om.updated_at
		from organization_members om
		join organizations o on o.id = om.organization_id and o.deleted_at is null
		where om.user_id = $1 and om.organization_id = $2
	`, userID, organizationID).Scan(&m.UserID, &m.OrganizationID, &m.RoleID, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.OrgMembership{}, authz.ErrNotFound
	}
	if err != nil {
		return authz.OrgMembership{}, err
	}
	return m, nil
}

func (s *Store) AddTeamMember(ctx context.Context, m authz.TeamMembership) (authz.TeamMembership, error) {
	if s.db == nil {
		return authz.TeamMembership{}, errors.New("database connection unavailable")
	}
	var (
		created authz.TeamMembership
		roleID  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		insert into team_members (user_id, team_id, role_id)
		values ($1, $2, $3)
		returning user_id, team_id, role_id, created_at
	`, m.UserID, m.TeamID, nullIfEmpty(m.RoleID)).Scan(&created.UserID, &created.TeamID, &roleID, &created.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return authz.TeamMembership{}, authz.ErrConflict
			case pgErrForeignKeyViolation:
				return authz.TeamMembership{}, authz.ErrNotFound
			}
		}
		return authz.TeamMembership{}, err
	}
	if roleID.Valid {
		created.RoleID = roleID.String
	}
	return created, nil
}

func (s *Store) RemoveTeamMember(ctx context.Context, userID, teamID string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		delete from team_members
		where user_id = $1 and team_id = $2
	`, userID, teamID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return authz.ErrNotFound
	}
	return nil
}

func (s *Store) GetTeamMembership(ctx context.Context, userID, teamID string) (authz.TeamMembership, error) {
	if s.db == nil {
		return authz.TeamMembership{}, errors.New("database connection unavailable")
	}
	var (
		m      authz.TeamMembership
		roleID sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select tm.user_id, tm.team_id, tm.role_id, tm.created_at
		from team_members tm
		join teams t on t.id = tm.team_id and t.deleted_at is null
		where tm.user_id = $1 and tm.team_id = $2
	`, userID, teamID).Scan(&m.UserID, &m.TeamID, &roleID, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.TeamMembership{}, authz.ErrNotFound
	}
	if err != nil {
		return authz.TeamMembership{}, err
	}
	if roleID.Valid {
		m.RoleID = roleID.String
	}
	return m, nil
}

func (s *Store) ListTeamMemberships(ctx context.Context, userID, organizationID string) ([]authz.TeamMembership, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select tm.user_id, tm.team_id, tm.role_id, tm.created_at
		from team_members tm
		join teams t on t.id = tm.team_id
		where tm.user_id = $1 and t.organization_id = $2 and t.deleted_at is null
		order by tm.created_at
	`, userID, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memberships []authz.TeamMembership
	for rows.Next() {
		var (
			m      authz.TeamMembership
			roleID sql.NullString
		)
		if err := rows.Scan(&m.UserID, &m.TeamID, &roleID, &m.CreatedAt); err != nil {
			return nil, err
		}
		if roleID.Valid {
			m.RoleID = roleID.String
		}
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return memberships, nil
}

func (s *Store) GetRole(ctx context.Context, roleID string) (authz.Role, error) {
	if s.db == nil {
		return authz.Role{}, errors.New("database connection unavailable")
	}
	var (
		role  authz.Role
		orgID sql.NullString
		desc  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, name, scope, organization_id, description, is_system, created_at, updated_at
		from roles
		where id = $1
	`, roleID).Scan(&role.ID, &role.Name, &role.Scope, &orgID, &desc, &role.System, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.Role{}, authz.ErrNotFound
	}
	if err != nil {
		return authz.Role{}, err
	}
	if orgID.Valid {
		role.OrganizationID = orgID.String
	}
	if desc.Valid {
		role.Description = desc.String
	}
	return role, nil
}

func (s *Store) ListRoles(ctx context.Context, organizationID string) ([]authz.Role, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, scope, organization_id, description, is_system, created_at, updated_at
		from roles
		where organization_id = $1 or organization_id is null
		order by is_system desc, name
	`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []authz.Role
	for rows.Next() {
		var (
			role  authz.Role
			orgID sql.NullString
			desc  sql.NullString
		)
		if err := rows.Scan(&role.ID, &role.Name, &role.Scope, &orgID, &desc, &role.System, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		if orgID.Valid {
			role.OrganizationID = orgID.String
		}
		if desc.Valid {
			role.Description = desc.String
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Store) CreateRole(ctx context.Context, role authz.Role) (authz.Role, error) {
	if s.db == nil {
		return authz.Role{}, errors.New("database connection unavailable")
	}
	id := role.ID
	if id == "" {
		id = ids.New()
	}
	var (
		created authz.Role
		orgID   sql.NullString
		desc    sql.NullString
	)
	row := s.db.QueryRowContext(ctx, `
		insert into roles (id, name, scope, organization_id, description, is_system)
		values ($1, $2, $3, $4, $5, $6)
		returning id, name, scope, organization_id, description, is_system, created_at, updated_at
	`, id, role.Name, role.Scope, nullIfEmpty(role.OrganizationID), nullIfEmpty(role.Description), role.System)
	if err := row.Scan(&created.ID, &created.Name, &created.Scope, &orgID, &desc, &created.System, &created.CreatedAt, &created.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return authz.Role{}, authz.ErrConflict
			case pgErrForeignKeyViolation:
				return authz.Role{}, authz.ErrNotFound
			}
		}
		return authz.Role{}, err
	}
	if orgID.Valid {
		created.OrganizationID = orgID.String
	}
	if desc.Valid {
		created.Description = desc.String
	}
	return created, nil
}

func (s *Store) DeleteRole(ctx context.Context, roleID string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `delete from roles where id = $1 and is_system = false`, roleID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return authz.ErrNotFound
	}
	return nil
}

func (s *Store) SetRolePermissions(ctx context.Context, roleID string, permissionKeys []string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `select 1 from roles where id = $1`, roleID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authz.ErrNotFound
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
		return err
	}
	if len(permissionKeys) == 0 {
		return tx.Commit()
	}

	for _, key := range permissionKeys {
		resource, action, ok := splitPermissionKey(key)
		if !ok {
			return fmt.Errorf("%w: malformed permission key %q", authz.ErrInvalidInput, key)
		}
		var permID string
		err := tx.QueryRowContext(ctx, `
			select id from permissions where resource = $1 and action = $2
		`, resource, action).Scan(&permID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: permission %s not found", authz.ErrNotFound, key)
			}
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission_id)
			values ($1, $2)
		`, roleID, permID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) RolePermissions(ctx context.Context, roleID string) ([]authz.Permission, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var exists int
	if err := s.db.QueryRowContext(ctx, `select 1 from roles where id = $1`, roleID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authz.ErrNotFound
		}
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.resource, p.action, coalesce(p.description, '')
		from role_permissions rp
		join permissions p on p.id = rp.permission_id
		where rp.role_id = $1
		order by p.resource, p.action
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []authz.Permission
	for rows.Next() {
		var p authz.Permission
		if err := rows.Scan(&p.ID, &p.Resource, &p.Action, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

func (s *Store) EnsurePermissions(ctx context.Context, perms []authz.Permission) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	for _, p := range perms {
		if _, err := s.db.ExecContext(ctx, `
			insert into permissions (id, resource, action, description)
			values ($1, $2, $3, $4)
			on conflict (resource, action) do nothing
		`, ids.New(), p.Resource, p.Action, nullIfEmpty(p.Description)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) EnsureRoles(ctx context.Context, roles []authz.Role) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	for _, r := range roles {
		if _, err := s.db.ExecContext(ctx, `
			insert into roles (id, name, scope, organization_id, description, is_system)
			values ($1, $2, $3, $4, $5, $6)
			on conflict (id) do nothing
		`, r.ID, r.Name, r.Scope, nullIfEmpty(r.OrganizationID), nullIfEmpty(r.Description), r.System); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) EnsureRolePermissions(ctx context.Context, bindings map[string][]string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	for roleID, keys := range bindings {
		for _, key := range keys {
			resource, action, ok := splitPermissionKey(key)
			if !ok {
				return fmt.Errorf("%w: malformed permission key %q", authz.ErrInvalidInput, key)
			}
			if _, err := s.db.ExecContext(ctx, `
				insert into role_permissions (role_id, permission_id)
				select $1, p.id from permissions p
				where p.resource = $2 and p.action = $3
				on conflict do nothing
			`, roleID, resource, action); err != nil {
				return err
			}
		}
	}
	return nil
}

func splitPermissionKey(key string) (resource, action string, ok bool) {
	idx := strings.LastIndex(key, ".")
	if idx <= 0 || idx == len(key)-1 {
		return "", "", false
	}
	return key[:idx], key[idx+1:], true
}
