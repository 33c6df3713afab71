package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"caseguard.org/internal/authz"
)

func TestAddOrgMemberHoldsOrgRowAndEnforcesCapacity(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("select max_members from organizations").WithArgs("org_1").
		WillReturnRows(sqlmock.NewRows([]string{"max_members"}).AddRow(25))
	mock.ExpectQuery("select count").WithArgs("org_1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	now := time.Now().UTC()
	mock.ExpectQuery("insert into organization_members").
		WithArgs("user_4", "org_1", "role_org_member").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "organization_id", "role_id", "created_at", "updated_at"}).
			AddRow("user_4", "org_1", "role_org_member", now, now))
	mock.ExpectCommit()

	store := NewWithDB(db)
	m, err := store.AddOrgMember(context.Background(), authz.OrgMembership{
		UserID:         "user_4",
		OrganizationID: "org_1",
		RoleID:         "role_org_member",
	})
	if err != nil {
		t.Fatalf("AddOrgMember: %v", err)
	}
	if m.RoleID != "role_org_member" {
		t.Fatalf("role = %q", m.RoleID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAddOrgMemberAtCapacity(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("select max_members from organizations").WithArgs("org_1").
		WillReturnRows(sqlmock.NewRows([]string{"max_members"}).AddRow(2))
	mock.ExpectQuery("select count").WithArgs("org_1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	store := NewWithDB(db)
	_, err = store.AddOrgMember(context.Background(), authz.OrgMembership{
		UserID:         "user_4",
		OrganizationID: "org_1",
		RoleID:         "role_org_member",
	})
	if !errors.Is(err, authz.ErrCapacityExceeded) {
		t.Fatalf("err = %v, want ErrCapacityExceeded", err)
	}
}

func TestDeleteRoleSkipsSystemRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("delete from roles where id = .* and is_system = false").
		WithArgs("role_org_owner").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewWithDB(db)
	if err := store.DeleteRole(context.Background(), "role_org_owner"); !errors.Is(err, authz.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSetRolePermissionsReplacesBindings(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from roles").WithArgs("role_custom").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec("delete from role_permissions").WithArgs("role_custom").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery("select id from permissions").WithArgs("cases", "read").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("perm_cases_read"))
	mock.ExpectExec("insert into role_permissions").WithArgs("role_custom", "perm_cases_read").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	store := NewWithDB(db)
	if err := store.SetRolePermissions(context.Background(), "role_custom", []string{"cases.read"}); err != nil {
		t.Fatalf("SetRolePermissions: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetOrgMembershipIgnoresDeletedOrgs(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("join organizations o on o.id = om.organization_id and o.deleted_at is null").
		WithArgs("user_1", "org_gone").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "organization_id", "role_id", "created_at", "updated_at"}))

	store := NewWithDB(db)
	if _, err := store.GetOrgMembership(context.Background(), "user_1", "org_gone"); !errors.Is(err, authz.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
