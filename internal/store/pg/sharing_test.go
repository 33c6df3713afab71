package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"caseguard.org/internal/authz"
)

func TestShareCaseCreatesGrantAndAudit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from cases").WithArgs("case_1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery("select role from case_participants").WithArgs("case_1", "user_2").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("insert into case_participants").
		WithArgs("case_1", "user_2", "collaborator", "user_1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into case_sharing_audit").
		WithArgs(sqlmock.AnyArg(), "case_1", "user_2", "user_1", "shared", nil, "collaborator").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	store := NewWithDB(db)
	res, err := store.ShareCase(context.Background(), "case_1", "user_2", authz.RoleCollaborator, "user_1")
	if err != nil {
		t.Fatalf("ShareCase: %v", err)
	}
	if res.Outcome != authz.ShareCreated {
		t.Fatalf("outcome = %q, want %q", res.Outcome, authz.ShareCreated)
	}
	if res.NewRole != authz.RoleCollaborator {
		t.Fatalf("new role = %q", res.NewRole)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestShareCaseSameRoleIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from cases").WithArgs("case_1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery("select role from case_participants").WithArgs("case_1", "user_2").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("viewer"))
	mock.ExpectCommit()

	store := NewWithDB(db)
	res, err := store.ShareCase(context.Background(), "case_1", "user_2", authz.RoleViewer, "user_1")
	if err != nil {
		t.Fatalf("ShareCase: %v", err)
	}
	if res.Outcome != authz.ShareNoop {
		t.Fatalf("outcome = %q, want %q", res.Outcome, authz.ShareNoop)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no audit row expected on repeat share: %v", err)
	}
}

func TestShareCaseRoleChangeAuditsOldAndNew(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from cases").WithArgs("case_1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery("select role from case_participants").WithArgs("case_1", "user_2").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("viewer"))
	mock.ExpectExec("update case_participants set role").
		WithArgs("case_1", "user_2", "collaborator").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into case_sharing_audit").
		WithArgs(sqlmock.AnyArg(), "case_1", "user_2", "user_1", "role_changed", "viewer", "collaborator").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	store := NewWithDB(db)
	res, err := store.ShareCase(context.Background(), "case_1", "user_2", authz.RoleCollaborator, "user_1")
	if err != nil {
		t.Fatalf("ShareCase: %v", err)
	}
	if res.Outcome != authz.ShareRoleChanged {
		t.Fatalf("outcome = %q, want %q", res.Outcome, authz.ShareRoleChanged)
	}
	if res.OldRole != authz.RoleViewer || res.NewRole != authz.RoleCollaborator {
		t.Fatalf("roles = %q -> %q", res.OldRole, res.NewRole)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestShareCaseUnknownCase(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from cases").WithArgs("case_missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	store := NewWithDB(db)
	if _, err := store.ShareCase(context.Background(), "case_missing", "user_2", authz.RoleViewer, "user_1"); !errors.Is(err, authz.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestShareCaseSerializationFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from cases").WithArgs("case_1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery("select role from case_participants").WithArgs("case_1", "user_2").
		WillReturnError(&pgconn.PgError{Code: "40001"})
	mock.ExpectRollback()

	store := NewWithDB(db)
	if _, err := store.ShareCase(context.Background(), "case_1", "user_2", authz.RoleViewer, "user_1"); !errors.Is(err, authz.ErrConcurrentModification) {
		t.Fatalf("err = %v, want ErrConcurrentModification", err)
	}
}

func TestShareCaseLostFirstInsertRaceIsConcurrentModification(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	// Two first-time shares race: this transaction saw no row to lock,
	// then its insert loses to the other writer's committed row.
	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from cases").WithArgs("case_1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery("select role from case_participants").WithArgs("case_1", "user_2").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("insert into case_participants").
		WithArgs("case_1", "user_2", "viewer", "user_1").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "case_participants_pkey"})
	mock.ExpectRollback()

	store := NewWithDB(db)
	if _, err := store.ShareCase(context.Background(), "case_1", "user_2", authz.RoleViewer, "user_1"); !errors.Is(err, authz.ErrConcurrentModification) {
		t.Fatalf("err = %v, want ErrConcurrentModification", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUnshareCaseRemovesGrantAndAudits(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("select role from case_participants").WithArgs("case_1", "user_2").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("collaborator"))
	mock.ExpectExec("delete from case_participants").
		WithArgs("case_1", "user_2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into case_sharing_audit").
		WithArgs(sqlmock.AnyArg(), "case_1", "user_2", "user_1", "unshared", "collaborator", nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	store := NewWithDB(db)
	res, err := store.UnshareCase(context.Background(), "case_1", "user_2", "user_1")
	if err != nil {
		t.Fatalf("UnshareCase: %v", err)
	}
	if !res.Removed || res.OldRole != authz.RoleCollaborator {
		t.Fatalf("result = %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUnshareCaseMissingGrantIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("select role from case_participants").WithArgs("case_1", "user_9").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectCommit()

	store := NewWithDB(db)
	res, err := store.UnshareCase(context.Background(), "case_1", "user_9", "user_1")
	if err != nil {
		t.Fatalf("UnshareCase: %v", err)
	}
	if res.Removed {
		t.Fatalf("expected noop for missing grant")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no delete or audit expected: %v", err)
	}
}

func TestGetParticipantScansAccessTime(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	added := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	accessed := added.Add(48 * time.Hour)
	mock.ExpectQuery("select case_id, user_id, role, added_at, added_by, last_accessed_at").
		WithArgs("case_1", "user_2").
		WillReturnRows(sqlmock.NewRows([]string{"case_id", "user_id", "role", "added_at", "added_by", "last_accessed_at"}).
			AddRow("case_1", "user_2", "viewer", added, "user_1", accessed))

	store := NewWithDB(db)
	p, err := store.GetParticipant(context.Background(), "case_1", "user_2")
	if err != nil {
		t.Fatalf("GetParticipant: %v", err)
	}
	if p.Role != authz.RoleViewer {
		t.Fatalf("role = %q", p.Role)
	}
	if p.LastAccessedAt == nil || !p.LastAccessedAt.Equal(accessed) {
		t.Fatalf("last accessed = %v", p.LastAccessedAt)
	}
}
