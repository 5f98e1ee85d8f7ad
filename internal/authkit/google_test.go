package authkit

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"google.golang.org/api/idtoken"
)

type blockingValidator struct{}

func (blockingValidator) Validate(ctx context.Context, token string, audience string) (*idtoken.Payload, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestGoogleIdentityVerifierExtractsClaims(t *testing.T) {
	t.Parallel()
	validator := &fakeGoogleValidator{results: map[string]validatorResult{
		"valid": {payload: googlePayload("g@example.com", "Grace", "Hopper"), expectedAudience: "client-id"},
	}}
	verifier := NewGoogleIdentityVerifier(validator, "client-id", time.Second, zaptest.NewLogger(t))

	claims, err := verifier.Verify(context.Background(), "valid")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Email != "g@example.com" || claims.GivenName != "Grace" || claims.FamilyName != "Hopper" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.Subject != "sub-g@example.com" || claims.Audience != "client-id" || claims.Issuer != googleIssuerHTTPS {
		t.Fatalf("unexpected provenance %+v", claims)
	}
	if claims.Expiry.Year() != 2030 {
		t.Fatalf("unexpected expiry %v", claims.Expiry)
	}
}

func TestGoogleIdentityVerifierRejectsInvalidTokens(t *testing.T) {
	t.Parallel()
	unverified := googlePayload("u@example.com", "U", "V")
	unverified.Claims["email_verified"] = false
	missingEmail := googlePayload("", "M", "E")
	foreignIssuer := googlePayload("f@example.com", "F", "I")
	foreignIssuer.Issuer = "https://evil.example.com"
	foreignIssuer.Claims["iss"] = "https://evil.example.com"
	bareIssuer := googlePayload("b@example.com", "B", "I")
	bareIssuer.Claims["iss"] = googleIssuerBare

	validator := &fakeGoogleValidator{results: map[string]validatorResult{
		"expired":        {err: errors.New("idtoken: token expired")},
		"wrong-audience": {payload: googlePayload("a@example.com", "A", "B"), expectedAudience: "other-client"},
		"unverified":     {payload: unverified},
		"missing-email":  {payload: missingEmail},
		"foreign-issuer": {payload: foreignIssuer},
		"bare-issuer":    {payload: bareIssuer},
		"nil-payload":    {},
	}}
	verifier := NewGoogleIdentityVerifier(validator, "client-id", time.Second, zaptest.NewLogger(t))

	testCases := []string{"", "unknown", "expired", "wrong-audience", "unverified", "missing-email", "foreign-issuer", "nil-payload"}
	for _, token := range testCases {
		token := token
		t.Run("token="+token, func(t *testing.T) {
			if _, err := verifier.Verify(context.Background(), token); !errors.Is(err, ErrIdentityTokenInvalid) {
				t.Fatalf("expected ErrIdentityTokenInvalid, got %v", err)
			}
		})
	}

	claims, err := verifier.Verify(context.Background(), "bare-issuer")
	if err != nil {
		t.Fatalf("expected bare issuer to be accepted, got %v", err)
	}
	if claims.Issuer != googleIssuerBare {
		t.Fatalf("unexpected issuer %q", claims.Issuer)
	}
}

func TestGoogleIdentityVerifierReportsUnavailableProvider(t *testing.T) {
	t.Parallel()
	timeoutVerifier := NewGoogleIdentityVerifier(blockingValidator{}, "client-id", 20*time.Millisecond, zaptest.NewLogger(t))
	if _, err := timeoutVerifier.Verify(context.Background(), "anything"); !errors.Is(err, ErrIdentityProviderUnavailable) {
		t.Fatalf("expected ErrIdentityProviderUnavailable on timeout, got %v", err)
	}

	networkValidator := &fakeGoogleValidator{results: map[string]validatorResult{
		"token": {err: &url.Error{Op: "Get", URL: "https://www.googleapis.com/oauth2/v3/certs", Err: errors.New("connection refused")}},
	}}
	networkVerifier := NewGoogleIdentityVerifier(networkValidator, "client-id", time.Second, zaptest.NewLogger(t))
	if _, err := networkVerifier.Verify(context.Background(), "token"); !errors.Is(err, ErrIdentityProviderUnavailable) {
		t.Fatalf("expected ErrIdentityProviderUnavailable on network failure, got %v", err)
	}
}

func TestNewGoogleTokenValidatorUsesOverride(t *testing.T) {
	original := newGoogleTokenValidator
	t.Cleanup(func() { newGoogleTokenValidator = original })

	expected := &fakeGoogleValidator{}
	newGoogleTokenValidator = func(ctx context.Context) (GoogleTokenValidator, error) {
		return expected, nil
	}
	validator, err := NewGoogleTokenValidator(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if validator != expected {
		t.Fatalf("expected override validator")
	}
}
