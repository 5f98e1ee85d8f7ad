package authkit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// IdentityVerifier validates a provider ID token into identity claims.
type IdentityVerifier interface {
	Verify(ctx context.Context, idToken string) (ExternalIdentityClaims, error)
}

// Dependencies wires collaborators into a Service.
type Dependencies struct {
	Users    UserStore
	Roles    RoleStore
	Hasher   PasswordHasher
	Tokens   *TokenService
	Verifier IdentityVerifier
	DenyList TokenDenyList
	Clock    Clock
	Metrics  MetricsRecorder
	Logger   *zap.Logger
}

// Service implements the login, registration, and Google sign-in flows.
type Service struct {
	users      UserStore
	hasher     PasswordHasher
	tokens     *TokenService
	verifier   IdentityVerifier
	resolver   *RoleResolver
	reconciler *AccountReconciler
	denyList   TokenDenyList
	clock      Clock
	metrics    MetricsRecorder
	logger     *zap.Logger

	absentDigestOnce sync.Once
	absentDigest     string
}

// NewService builds a Service; Users, Roles, Hasher, and Tokens are required.
func NewService(dependencies Dependencies) (*Service, error) {
	if dependencies.Users == nil || dependencies.Roles == nil {
		return nil, errors.New("auth.service: user and role stores are required")
	}
	if dependencies.Hasher == nil || dependencies.Tokens == nil {
		return nil, errors.New("auth.service: hasher and token service are required")
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := dependencies.Clock
	if clock == nil {
		clock = NewSystemClock()
	}
	var metrics MetricsRecorder = noopMetrics{}
	if dependencies.Metrics != nil {
		metrics = dependencies.Metrics
	}
	return &Service{
		users:      dependencies.Users,
		hasher:     dependencies.Hasher,
		tokens:     dependencies.Tokens,
		verifier:   dependencies.Verifier,
		resolver:   NewRoleResolver(dependencies.Roles),
		reconciler: NewAccountReconciler(dependencies.Users, dependencies.Roles, dependencies.Hasher, logger),
		denyList:   dependencies.DenyList,
		clock:      clock,
		metrics:    metrics,
		logger:     logger,
	}, nil
}

// Login authenticates email/password credentials. An unknown email and a
// wrong password both yield ErrInvalidCredentials.
func (service *Service) Login(ctx context.Context, request LoginRequest) (AuthResponse, error) {
	if err := validateRequest(request); err != nil {
		service.metrics.Increment(metricAuthLoginFailure)
		return AuthResponse{}, err
	}
	user, findErr := service.users.FindByEmail(ctx, request.Email)
	if findErr != nil {
		service.metrics.Increment(metricAuthLoginFailure)
		if errors.Is(findErr, ErrUserNotFound) {
			service.hasher.Verify(request.Password, service.absentAccountDigest())
			return AuthResponse{}, fmt.Errorf("auth.login: %w", ErrInvalidCredentials)
		}
		return AuthResponse{}, fmt.Errorf("auth.login.find: %w", findErr)
	}
	if !service.hasher.Verify(request.Password, user.PasswordHash) {
		service.metrics.Increment(metricAuthLoginFailure)
		return AuthResponse{}, fmt.Errorf("auth.login: %w", ErrInvalidCredentials)
	}
	response, issueErr := service.respond(user)
	if issueErr != nil {
		service.metrics.Increment(metricAuthLoginFailure)
		return AuthResponse{}, fmt.Errorf("auth.login.issue: %w", issueErr)
	}
	service.metrics.Increment(metricAuthLoginSuccess)
	return response, nil
}

// Register creates an account and signs it in with the same credentials.
func (service *Service) Register(ctx context.Context, request RegisterRequest) (AuthResponse, error) {
	if err := validateRequest(request); err != nil {
		service.metrics.Increment(metricAuthRegisterFailure)
		return AuthResponse{}, err
	}
	exists, existsErr := service.users.ExistsByEmail(ctx, request.Email)
	if existsErr != nil {
		service.metrics.Increment(metricAuthRegisterFailure)
		return AuthResponse{}, fmt.Errorf("auth.register.exists: %w", existsErr)
	}
	if exists {
		service.metrics.Increment(metricAuthRegisterFailure)
		return AuthResponse{}, fmt.Errorf("auth.register: %w", ErrEmailTaken)
	}
	roles, resolveErr := service.resolver.Resolve(ctx, request.Roles)
	if resolveErr != nil {
		service.metrics.Increment(metricAuthRegisterFailure)
		return AuthResponse{}, fmt.Errorf("auth.register: %w", resolveErr)
	}
	passwordHash, hashErr := service.hasher.Hash(request.Password)
	if hashErr != nil {
		service.metrics.Increment(metricAuthRegisterFailure)
		return AuthResponse{}, fmt.Errorf("auth.register: %w", hashErr)
	}
	created, createErr := service.users.Create(ctx, User{
		Email:        request.Email,
		PasswordHash: passwordHash,
		FirstName:    request.FirstName,
		LastName:     request.LastName,
		Profession:   request.Profession,
		Country:      request.Country,
		Roles:        roles,
	})
	if createErr != nil {
		service.metrics.Increment(metricAuthRegisterFailure)
		if errors.Is(createErr, ErrUserExists) {
			return AuthResponse{}, fmt.Errorf("auth.register: %w", ErrEmailTaken)
		}
		return AuthResponse{}, fmt.Errorf("auth.register.create: %w", createErr)
	}
	service.metrics.Increment(metricAuthRegisterSuccess)
	service.logger.Info("user registered",
		zap.String("code", "auth.register.created"),
		zap.String("user_id", created.ID),
		zap.Strings("roles", RoleDisplayNames(created.Roles)))

	return service.Login(ctx, LoginRequest{Email: request.Email, Password: request.Password})
}

// GoogleLogin signs in with a Google ID token, creating the account on first use.
func (service *Service) GoogleLogin(ctx context.Context, request GoogleLoginRequest) (AuthResponse, error) {
	if err := validateRequest(request); err != nil {
		service.metrics.Increment(metricAuthGoogleFailure)
		return AuthResponse{}, err
	}
	if service.verifier == nil {
		service.metrics.Increment(metricAuthGoogleFailure)
		return AuthResponse{}, fmt.Errorf("auth.google: %w", ErrIdentityProviderUnavailable)
	}
	claims, verifyErr := service.verifier.Verify(ctx, request.IDToken)
	if verifyErr != nil {
		service.metrics.Increment(metricAuthGoogleFailure)
		return AuthResponse{}, fmt.Errorf("auth.google: %w", verifyErr)
	}
	user, reconcileErr := service.reconciler.Reconcile(ctx, claims)
	if reconcileErr != nil {
		service.metrics.Increment(metricAuthGoogleFailure)
		return AuthResponse{}, fmt.Errorf("auth.google: %w", reconcileErr)
	}
	response, issueErr := service.respond(user)
	if issueErr != nil {
		service.metrics.Increment(metricAuthGoogleFailure)
		return AuthResponse{}, fmt.Errorf("auth.google.issue: %w", issueErr)
	}
	service.metrics.Increment(metricAuthGoogleSuccess)
	return response, nil
}

// Authenticate validates a session token and consults the deny-list.
func (service *Service) Authenticate(ctx context.Context, token string) (SessionIdentity, error) {
	identity, validateErr := service.tokens.Validate(token, service.clock.Now())
	if validateErr != nil {
		if errors.Is(validateErr, ErrTokenExpired) {
			service.metrics.Increment(metricAuthTokenExpired)
		} else {
			service.metrics.Increment(metricAuthTokenInvalid)
		}
		return SessionIdentity{}, validateErr
	}
	if service.denyList != nil && identity.TokenID != "" {
		denied, denyErr := service.denyList.IsDenied(ctx, identity.TokenID)
		if denyErr != nil {
			return SessionIdentity{}, fmt.Errorf("auth.authenticate.deny_list: %w", denyErr)
		}
		if denied {
			service.metrics.Increment(metricAuthTokenRevoked)
			return SessionIdentity{}, fmt.Errorf("auth.authenticate: %w", ErrTokenRevoked)
		}
	}
	return identity, nil
}

// Logout revokes the token until its natural expiry. Without a deny-list it is a no-op.
func (service *Service) Logout(ctx context.Context, identity SessionIdentity) error {
	if service.denyList == nil || identity.TokenID == "" {
		return nil
	}
	if err := service.denyList.Deny(ctx, identity.TokenID, identity.ExpiresAt); err != nil {
		return fmt.Errorf("auth.logout: %w", err)
	}
	service.metrics.Increment(metricAuthLogoutSuccess)
	return nil
}

// Profile returns the stored user behind an authenticated identity.
func (service *Service) Profile(ctx context.Context, identity SessionIdentity) (User, error) {
	user, err := service.users.FindByEmail(ctx, identity.Email)
	if err != nil {
		return User{}, fmt.Errorf("auth.profile: %w", err)
	}
	return user, nil
}

func (service *Service) respond(user User) (AuthResponse, error) {
	token, expiresAt, err := service.tokens.Issue(user.Email, user.ID, user.Roles, service.clock.Now())
	if err != nil {
		return AuthResponse{}, err
	}
	return AuthResponse{
		Token:      token,
		Email:      user.Email,
		FirstName:  user.FirstName,
		LastName:   user.LastName,
		Profession: user.Profession,
		Country:    user.Country,
		Roles:      RoleDisplayNames(user.Roles),
		ExpiresAt:  expiresAt,
	}, nil
}

// absentAccountDigest is compared against on the unknown-email path so both
// login failures pay the same hashing cost.
func (service *Service) absentAccountDigest() string {
	service.absentDigestOnce.Do(func() {
		digest, err := service.hasher.Hash("absent-account")
		if err != nil {
			service.logger.Warn("absent account digest unavailable", zap.Error(err))
			return
		}
		service.absentDigest = digest
	})
	return service.absentDigest
}
