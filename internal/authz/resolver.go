package authz

import (
	"context"
	"errors"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultResolverCacheSize = 512

// Resolver is a read-through cache in front of the role-permission map.
// Roles change rarely, so entries live until an explicit Invalidate from
// a binding mutation or a custom-role deletion.
type Resolver struct {
	store RoleStore
	cache *lru.Cache[string, PermissionSet]
}

// NewResolver constructs a Resolver with the given cache capacity.
// Size <= 0 selects the default.
func NewResolver(store RoleStore, size int) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("role store is required")
	}
	if size <= 0 {
		size = defaultResolverCacheSize
	}
	cache, err := lru.New[string, PermissionSet](size)
	if err != nil {
		return nil, err
	}
	return &Resolver{store: store, cache: cache}, nil
}

// ResolvePermissions returns the permission set for roleID.
func (r *Resolver) ResolvePermissions(ctx context.Context, roleID string) (PermissionSet, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, ErrInvalidInput
	}
	if set, ok := r.cache.Get(roleID); ok {
		return set, nil
	}
	perms, err := r.store.RolePermissions(ctx, roleID)
	if err != nil {
		return nil, err
	}
	set := NewPermissionSet(perms)
	r.cache.Add(roleID, set)
	return set, nil
}

// Invalidate drops the cached set for roleID.
func (r *Resolver) Invalidate(roleID string) {
	r.cache.Remove(roleID)
}
