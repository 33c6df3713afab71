package authz

import (
	"context"
	"errors"
	"testing"
)

type countingRoleStore struct {
	RoleStore
	calls int
	perms []Permission
	err   error
}

func (s *countingRoleStore) RolePermissions(context.Context, string) ([]Permission, error) {
	s.calls++
	return s.perms, s.err
}

func TestResolverCachesPerRole(t *testing.T) {
	store := &countingRoleStore{
		perms: []Permission{
			{Resource: ResourceCases, Action: CapabilityRead},
			{Resource: ResourceCases, Action: CapabilityWrite},
		},
	}
	resolver, err := NewResolver(store, 4)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	for i := 0; i < 3; i++ {
		set, err := resolver.ResolvePermissions(context.Background(), RoleOrgMember)
		if err != nil {
			t.Fatalf("ResolvePermissions: %v", err)
		}
		if !set.Covers(ResourceCases, CapabilityRead) {
			t.Fatal("resolved set missing cases.read")
		}
	}
	if store.calls != 1 {
		t.Fatalf("expected a single store hit, got %d", store.calls)
	}
}

func TestResolverInvalidateForcesReload(t *testing.T) {
	store := &countingRoleStore{
		perms: []Permission{{Resource: ResourceCases, Action: CapabilityRead}},
	}
	resolver, err := NewResolver(store, 4)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	if _, err := resolver.ResolvePermissions(context.Background(), "role-custom"); err != nil {
		t.Fatalf("ResolvePermissions: %v", err)
	}
	resolver.Invalidate("role-custom")
	if _, err := resolver.ResolvePermissions(context.Background(), "role-custom"); err != nil {
		t.Fatalf("ResolvePermissions after invalidate: %v", err)
	}
	if store.calls != 2 {
		t.Fatalf("expected reload after invalidate, got %d calls", store.calls)
	}
}

func TestResolverDoesNotCacheFailures(t *testing.T) {
	store := &countingRoleStore{err: errors.New("boom")}
	resolver, err := NewResolver(store, 4)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := resolver.ResolvePermissions(context.Background(), "role-x"); err == nil {
			t.Fatal("expected error from store")
		}
	}
	if store.calls != 2 {
		t.Fatalf("failures must not be cached, got %d calls", store.calls)
	}
}

func TestResolverRejectsEmptyRole(t *testing.T) {
	resolver, err := NewResolver(&countingRoleStore{}, 4)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	if _, err := resolver.ResolvePermissions(context.Background(), "  "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
