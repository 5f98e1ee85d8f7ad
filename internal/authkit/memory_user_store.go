package authkit

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryUserStore is an in-memory user and role store intended for tests and dev.
type MemoryUserStore struct {
	mutex      sync.Mutex
	byID       map[string]*User
	byEmail    map[string]string
	roles      map[RoleID]Role
	sequenceID int64
}

// NewMemoryUserStore creates an empty store with no roles seeded.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
		roles:   make(map[RoleID]Role),
	}
}

// SeedRoles inserts any missing role from names.
func (store *MemoryUserStore) SeedRoles(ctx context.Context, names ...RoleID) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	for _, name := range names {
		if _, ok := store.roles[name]; ok {
			continue
		}
		store.sequenceID++
		store.roles[name] = Role{ID: store.sequenceID, Name: name}
	}
	return nil
}

// FindRoleByName returns the seeded role.
func (store *MemoryUserStore) FindRoleByName(ctx context.Context, name RoleID) (Role, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	role, ok := store.roles[name]
	if !ok {
		return Role{}, ErrRoleNotFound
	}
	return role, nil
}

// FindByEmail returns a copy of the stored user.
func (store *MemoryUserStore) FindByEmail(ctx context.Context, email string) (User, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	userID, ok := store.byEmail[email]
	if !ok {
		return User{}, ErrUserNotFound
	}
	record := store.byID[userID]
	if record == nil {
		return User{}, ErrUserNotFound
	}
	return cloneUser(*record), nil
}

// ExistsByEmail reports whether the email is taken.
func (store *MemoryUserStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	_, ok := store.byEmail[email]
	return ok, nil
}

// Create inserts the user under the store lock, so concurrent creates for one email yield one row.
func (store *MemoryUserStore) Create(ctx context.Context, user User) (User, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if _, taken := store.byEmail[user.Email]; taken {
		return User{}, ErrUserExists
	}
	for _, roleID := range user.Roles {
		if _, ok := store.roles[roleID]; !ok {
			return User{}, ErrRoleNotFound
		}
	}
	record := cloneUser(user)
	record.ID = uuid.NewString()
	store.byID[record.ID] = &record
	store.byEmail[record.Email] = record.ID
	return cloneUser(record), nil
}

// Count returns the number of stored users.
func (store *MemoryUserStore) Count() int {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return len(store.byID)
}

func cloneUser(user User) User {
	clone := user
	clone.Roles = append([]RoleID(nil), user.Roles...)
	return clone
}
