package authkit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/api/idtoken"
)

type controllableClock struct {
	current time.Time
}

func (clock *controllableClock) Now() time.Time {
	return clock.current
}

func (clock *controllableClock) Advance(duration time.Duration) {
	clock.current = clock.current.Add(duration)
}

type validatorResult struct {
	payload          *idtoken.Payload
	err              error
	expectedAudience string
}

type fakeGoogleValidator struct {
	results map[string]validatorResult
}

func (validator *fakeGoogleValidator) Validate(ctx context.Context, token string, audience string) (*idtoken.Payload, error) {
	result, ok := validator.results[token]
	if !ok {
		return nil, errors.New("token_not_found")
	}
	if result.expectedAudience != "" && result.expectedAudience != audience {
		return nil, errors.New("audience_mismatch")
	}
	if result.err != nil {
		return nil, result.err
	}
	return result.payload, nil
}

func googlePayload(email string, givenName string, familyName string) *idtoken.Payload {
	return &idtoken.Payload{
		Issuer:   "https://accounts.google.com",
		Audience: "client-id",
		Subject:  "sub-" + email,
		Expires:  time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC).Unix(),
		Claims: map[string]interface{}{
			"iss":            "https://accounts.google.com",
			"sub":            "sub-" + email,
			"email":          email,
			"email_verified": true,
			"given_name":     givenName,
			"family_name":    familyName,
		},
	}
}

func newTestServerConfig() ServerConfig {
	return ServerConfig{
		GoogleWebClientID:   "client-id",
		GoogleVerifyTimeout: time.Second,
		AppJWTSigningKey:    []byte("secret-key-1234567890"),
		AppJWTIssuer:        "test-issuer",
		SessionCookieName:   "app_session",
		SessionTTL:          time.Hour,
		SameSiteMode:        http.SameSiteStrictMode,
		AllowInsecureHTTP:   true,
	}
}

type testHarness struct {
	service  *Service
	users    *MemoryUserStore
	clock    *controllableClock
	metrics  *CounterMetrics
	tokens   *TokenService
	denyList TokenDenyList
}

func newTestHarness(t *testing.T, validator GoogleTokenValidator) *testHarness {
	t.Helper()
	config := newTestServerConfig()
	users := NewMemoryUserStore()
	if err := users.SeedRoles(context.Background(), KnownRoles...); err != nil {
		t.Fatalf("seed roles: %v", err)
	}
	tokens, err := NewTokenService(config.AppJWTSigningKey, config.AppJWTIssuer, config.SessionTTL)
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	logger := zaptest.NewLogger(t)
	clock := &controllableClock{current: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	metrics := NewCounterMetrics()
	denyList := NewMemoryDenyList()
	denyList.(*memoryDenyList).now = clock.Now
	var verifier IdentityVerifier
	if validator != nil {
		verifier = NewGoogleIdentityVerifier(validator, config.GoogleWebClientID, config.GoogleVerifyTimeout, logger)
	}
	service, err := NewService(Dependencies{
		Users:    users,
		Roles:    users,
		Hasher:   NewBcryptHasher(bcrypt.MinCost),
		Tokens:   tokens,
		Verifier: verifier,
		DenyList: denyList,
		Clock:    clock,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return &testHarness{
		service:  service,
		users:    users,
		clock:    clock,
		metrics:  metrics,
		tokens:   tokens,
		denyList: denyList,
	}
}
