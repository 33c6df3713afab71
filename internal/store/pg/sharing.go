package pg

import (
	"context"
	"database/sql"
	"errors"

	"caseguard.org/internal/authz"
	"caseguard.org/internal/ids"
)

func (s *Store) GetCase(ctx context.Context, caseID string) (authz.Case, error) {
	if s.db == nil {
		return authz.Case{}, errors.New("database connection unavailable")
	}
	var (
		c      authz.Case
		orgID  sql.NullString
		teamID sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, owner_user_id, organization_id, team_id
		from cases
		where id = $1
	`, caseID).Scan(&c.ID, &c.OwnerUserID, &orgID, &teamID)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.Case{}, authz.ErrNotFound
	}
	if err != nil {
		return authz.Case{}, err
	}
	if orgID.Valid {
		c.OrganizationID = orgID.String
	}
	if teamID.Valid {
		c.TeamID = teamID.String
	}
	return c, nil
}

func (s *Store) GetParticipant(ctx context.Context, caseID, userID string) (authz.Participant, error) {
	if s.db == nil {
		return authz.Participant{}, errors.New("database connection unavailable")
	}
	var (
		p        authz.Participant
		accessed sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		select case_id, user_id, role, added_at, added_by, last_accessed_at
		from case_participants
		where case_id = $1 and user_id = $2
	`, caseID, userID).Scan(&p.CaseID, &p.UserID, &p.Role, &p.AddedAt, &p.AddedBy, &accessed)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.Participant{}, authz.ErrNotFound
	}
	if err != nil {
		return authz.Participant{}, err
	}
	if accessed.Valid {
		t := accessed.Time
		p.LastAccessedAt = &t
	}
	return p, nil
}

func (s *Store) TouchParticipantAccess(ctx context.Context, caseID, userID string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	_, err := s.db.ExecContext(ctx, `
		update case_participants set last_accessed_at = now()
		where case_id = $1 and user_id = $2
	`, caseID, userID)
	return err
}

// ShareCase upserts the explicit grant and writes the audit entry in one
// transaction. The participant row is locked first so that concurrent
// share calls for the same (case, user) pair serialize: last writer wins
// on role, both audit entries are preserved.
func (s *Store) ShareCase(ctx context.Context, caseID, targetUserID string, role authz.ParticipantRole, actingUserID string) (authz.ShareResult, error) {
	if s.db == nil {
		return authz.ShareResult{}, errors.New("database connection unavailable")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return authz.ShareResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `select 1 from cases where id = $1`, caseID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authz.ShareResult{}, authz.ErrNotFound
		}
		return authz.ShareResult{}, mapTxError(err)
	}

	var oldRole authz.ParticipantRole
	err = tx.QueryRowContext(ctx, `
		select role from case_participants
		where case_id = $1 and user_id = $2
		for update
	`, caseID, targetUserID).Scan(&oldRole)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, `
			insert into case_participants (case_id, user_id, role, added_by)
			values ($1, $2, $3, $4)
		`, caseID, targetUserID, role, actingUserID); err != nil {
			// Two first-time shares race past the empty row lock; the
			// loser's insert hits the (case_id, user_id) primary key.
			// Surface it as a concurrent modification so the service
			// retry re-reads the winner's row and takes the update path.
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return authz.ShareResult{}, authz.ErrConcurrentModification
			}
			return authz.ShareResult{}, mapTxError(err)
		}
		if err := appendAudit(ctx, tx, authz.AuditEntry{
			CaseID:       caseID,
			TargetUserID: targetUserID,
			ActingUserID: actingUserID,
			Action:       authz.AuditShared,
			NewRole:      role,
		}); err != nil {
			return authz.ShareResult{}, mapTxError(err)
		}
		if err := tx.Commit(); err != nil {
			return authz.ShareResult{}, mapTxError(err)
		}
		return authz.ShareResult{Outcome: authz.ShareCreated, NewRole: role}, nil

	case err != nil:
		return authz.ShareResult{}, mapTxError(err)

	case oldRole == role:
		// Idempotent repeat: no state change, no audit entry.
		if err := tx.Commit(); err != nil {
			return authz.ShareResult{}, mapTxError(err)
		}
		return authz.ShareResult{Outcome: authz.ShareNoop, OldRole: oldRole, NewRole: role}, nil

	default:
		if _, err := tx.ExecContext(ctx, `
			update case_participants set role = $3
			where case_id = $1 and user_id = $2
		`, caseID, targetUserID, role); err != nil {
			return authz.ShareResult{}, mapTxError(err)
		}
		if err := appendAudit(ctx, tx, authz.AuditEntry{
			CaseID:       caseID,
			TargetUserID: targetUserID,
			ActingUserID: actingUserID,
			Action:       authz.AuditRoleChanged,
			OldRole:      oldRole,
			NewRole:      role,
		}); err != nil {
			return authz.ShareResult{}, mapTxError(err)
		}
		if err := tx.Commit(); err != nil {
			return authz.ShareResult{}, mapTxError(err)
		}
		return authz.ShareResult{Outcome: authz.ShareRoleChanged, OldRole: oldRole, NewRole: role}, nil
	}
}

// UnshareCase deletes the grant and writes the audit entry in one
// transaction. No-op without an audit entry when no grant existed.
func (s *Store) UnshareCase(ctx context.Context, caseID, targetUserID, actingUserID string) (authz.UnshareResult, error) {
	if s.db == nil {
		return authz.UnshareResult{}, errors.New("database connection unavailable")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return authz.UnshareResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var oldRole authz.ParticipantRole
	err = tx.QueryRowContext(ctx, `
		select role from case_participants
		where case_id = $1 and user_id = $2
		for update
	`, caseID, targetUserID).Scan(&oldRole)
	if errors.Is(err, sql.ErrNoRows) {
		if err := tx.Commit(); err != nil {
			return authz.UnshareResult{}, mapTxError(err)
		}
		return authz.UnshareResult{Removed: false}, nil
	}
	if err != nil {
		return authz.UnshareResult{}, mapTxError(err)
	}

	if _, err := tx.ExecContext(ctx, `
		delete from case_participants
		where case_id = $1 and user_id = $2
	`, caseID, targetUserID); err != nil {
		return authz.UnshareResult{}, mapTxError(err)
	}
	if err := appendAudit(ctx, tx, authz.AuditEntry{
		CaseID:       caseID,
		TargetUserID: targetUserID,
		ActingUserID: actingUserID,
		Action:       authz.AuditUnshared,
		OldRole:      oldRole,
	}); err != nil {
		return authz.UnshareResult{}, mapTxError(err)
	}
	if err := tx.Commit(); err != nil {
		return authz.UnshareResult{}, mapTxError(err)
	}
	return authz.UnshareResult{Removed: true, OldRole: oldRole}, nil
}

func (s *Store) ListParticipants(ctx context.Context, caseID string) ([]authz.Participant, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select case_id, user_id, role, added_at, added_by, last_accessed_at
		from case_participants
		where case_id = $1
		order by added_at
	`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []authz.Participant
	for rows.Next() {
		var (
			p        authz.Participant
			accessed sql.NullTime
		)
		if err := rows.Scan(&p.CaseID, &p.UserID, &p.Role, &p.AddedAt, &p.AddedBy, &accessed); err != nil {
			return nil, err
		}
		if accessed.Valid {
			t := accessed.Time
			p.LastAccessedAt = &t
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return participants, nil
}

func (s *Store) ListSharedCases(ctx context.Context, userID string) ([]authz.CaseSummary, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select cp.case_id, c.owner_user_id, cp.role, cp.added_at
		from case_participants cp
		join cases c on c.id = cp.case_id
		where cp.user_id = $1
		order by cp.added_at desc
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []authz.CaseSummary
	for rows.Next() {
		var s authz.CaseSummary
		if err := rows.Scan(&s.CaseID, &s.OwnerUserID, &s.Role, &s.SharedAt); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return summaries, nil
}

func (s *Store) ListAudit(ctx context.Context, caseID string) ([]authz.AuditEntry, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, case_id, target_user_id, acting_user_id, action, old_role, new_role, occurred_at
		from case_sharing_audit
		where case_id = $1
		order by occurred_at, id
	`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []authz.AuditEntry
	for rows.Next() {
		var (
			e       authz.AuditEntry
			oldRole sql.NullString
			newRole sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.CaseID, &e.TargetUserID, &e.ActingUserID, &e.Action, &oldRole, &newRole, &e.OccurredAt); err != nil {
			return nil, err
		}
		if oldRole.Valid {
			e.OldRole = authz.ParticipantRole(oldRole.String)
		}
		if newRole.Valid {
			e.NewRole = authz.ParticipantRole(newRole.String)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func appendAudit(ctx context.Context, tx *sql.Tx, entry authz.AuditEntry) error {
	_, err := tx.ExecContext(ctx, `
		insert into case_sharing_audit (id, case_id, target_user_id, acting_user_id, action, old_role, new_role)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, ids.NewAuditID(), entry.CaseID, entry.TargetUserID, entry.ActingUserID, entry.Action,
		nullIfEmpty(string(entry.OldRole)), nullIfEmpty(string(entry.NewRole)))
	return err
}
