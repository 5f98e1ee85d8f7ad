package authkit

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const googleProviderName = "google"

// AccountReconciler links verified provider identities to local users.
type AccountReconciler struct {
	users  UserStore
	roles  RoleStore
	hasher PasswordHasher
	logger *zap.Logger
}

// NewAccountReconciler constructs a reconciler.
func NewAccountReconciler(users UserStore, roles RoleStore, hasher PasswordHasher, logger *zap.Logger) *AccountReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountReconciler{users: users, roles: roles, hasher: hasher, logger: logger}
}

// Reconcile returns the existing user for claims.Email untouched, or creates
// one with the default role. Concurrent first sign-ins converge on one row.
func (reconciler *AccountReconciler) Reconcile(ctx context.Context, claims ExternalIdentityClaims) (User, error) {
	existing, findErr := reconciler.users.FindByEmail(ctx, claims.Email)
	if findErr == nil {
		return existing, nil
	}
	if !errors.Is(findErr, ErrUserNotFound) {
		return User{}, fmt.Errorf("reconcile.find: %w", findErr)
	}

	if _, roleErr := reconciler.roles.FindRoleByName(ctx, RoleUser); roleErr != nil {
		if errors.Is(roleErr, ErrRoleNotFound) {
			return User{}, fmt.Errorf("reconcile.role.%s: %w", RoleUser, ErrRoleNotConfigured)
		}
		return User{}, fmt.Errorf("reconcile.role: %w", roleErr)
	}

	seed, seedErr := federatedPasswordSeed(googleProviderName)
	if seedErr != nil {
		return User{}, fmt.Errorf("reconcile.seed: %w", seedErr)
	}
	passwordHash, hashErr := reconciler.hasher.Hash(seed)
	if hashErr != nil {
		return User{}, fmt.Errorf("reconcile.hash: %w", hashErr)
	}

	created, createErr := reconciler.users.Create(ctx, User{
		Email:        claims.Email,
		PasswordHash: passwordHash,
		FirstName:    claims.GivenName,
		LastName:     claims.FamilyName,
		Roles:        []RoleID{RoleUser},
	})
	if createErr == nil {
		reconciler.logger.Info("federated account created",
			zap.String("code", "reconcile.created"),
			zap.String("provider", googleProviderName),
			zap.String("user_id", created.ID))
		return created, nil
	}
	if !errors.Is(createErr, ErrUserExists) {
		return User{}, fmt.Errorf("reconcile.create: %w", createErr)
	}

	winner, refetchErr := reconciler.users.FindByEmail(ctx, claims.Email)
	if refetchErr != nil {
		return User{}, fmt.Errorf("reconcile.refetch: %w", refetchErr)
	}
	return winner, nil
}
