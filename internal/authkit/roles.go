package authkit

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

const adminRoleToken = "admin"

// RoleResolver maps role tokens from a registration request onto seeded roles.
type RoleResolver struct {
	roles RoleStore
}

// NewRoleResolver constructs a resolver backed by the role store.
func NewRoleResolver(roles RoleStore) *RoleResolver {
	return &RoleResolver{roles: roles}
}

// Resolve maps "admin" to RoleAdmin and every other token to RoleUser.
// An absent or empty request yields RoleUser alone.
func (resolver *RoleResolver) Resolve(ctx context.Context, requested []string) ([]RoleID, error) {
	wanted := make(map[RoleID]struct{}, len(requested)+1)
	if len(requested) == 0 {
		wanted[RoleUser] = struct{}{}
	}
	for _, token := range requested {
		if token == adminRoleToken {
			wanted[RoleAdmin] = struct{}{}
			continue
		}
		wanted[RoleUser] = struct{}{}
	}

	resolved := make([]RoleID, 0, len(wanted))
	for roleID := range wanted {
		if _, err := resolver.roles.FindRoleByName(ctx, roleID); err != nil {
			if errors.Is(err, ErrRoleNotFound) {
				return nil, fmt.Errorf("roles.resolve.%s: %w", roleID, ErrRoleNotConfigured)
			}
			return nil, fmt.Errorf("roles.resolve.%s: %w", roleID, err)
		}
		resolved = append(resolved, roleID)
	}
	sort.Slice(resolved, func(left, right int) bool { return resolved[left] < resolved[right] })
	return resolved, nil
}
