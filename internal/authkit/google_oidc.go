package authkit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"google.golang.org/api/idtoken"
)

var errOIDCMissingAudience = errors.New("oidc.validate: audience must be non-empty")

// OIDCTokenValidator validates ID tokens through OpenID discovery against any issuer.
// It adapts go-oidc to the GoogleTokenValidator contract.
type OIDCTokenValidator struct {
	issuer string
	keySet oidc.KeySet
}

// NewOIDCTokenValidator performs discovery for issuerURL, fetching its JWKS location.
func NewOIDCTokenValidator(ctx context.Context, issuerURL string) (*OIDCTokenValidator, error) {
	if strings.TrimSpace(issuerURL) == "" {
		issuerURL = googleIssuerHTTPS
	}
	client := &http.Client{Transport: upstreamStatusTransport{base: http.DefaultTransport}}
	clientCtx := oidc.ClientContext(ctx, client)
	provider, err := oidc.NewProvider(clientCtx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc.discovery: %w", err)
	}
	var discovery struct {
		Issuer  string `json:"issuer"`
		JWKSURL string `json:"jwks_uri"`
	}
	if claimsErr := provider.Claims(&discovery); claimsErr != nil {
		return nil, fmt.Errorf("oidc.discovery.claims: %w", claimsErr)
	}
	if discovery.JWKSURL == "" {
		return nil, errors.New("oidc.discovery: jwks_uri missing")
	}
	return &OIDCTokenValidator{
		issuer: discovery.Issuer,
		keySet: fetchClassifyingKeySet{inner: oidc.NewRemoteKeySet(clientCtx, discovery.JWKSURL)},
	}, nil
}

// Validate verifies signature, audience, and expiry, then exposes the claims as an idtoken payload.
// A key fetch that fails in transport is reported wrapped in ErrIdentityProviderUnavailable.
func (validator *OIDCTokenValidator) Validate(ctx context.Context, token string, audience string) (*idtoken.Payload, error) {
	if strings.TrimSpace(audience) == "" {
		return nil, errOIDCMissingAudience
	}
	outcome := &keyFetchOutcome{}
	verifyCtx := context.WithValue(ctx, keyFetchOutcomeKey{}, outcome)
	verifier := oidc.NewVerifier(validator.issuer, validator.keySet, &oidc.Config{ClientID: audience})
	verified, verifyErr := verifier.Verify(verifyCtx, token)
	if verifyErr != nil {
		if outcome.err != nil {
			return nil, fmt.Errorf("oidc.validate: %w: %w", ErrIdentityProviderUnavailable, outcome.err)
		}
		return nil, fmt.Errorf("oidc.validate: %w", verifyErr)
	}
	claims := make(map[string]interface{})
	if claimsErr := verified.Claims(&claims); claimsErr != nil {
		return nil, fmt.Errorf("oidc.validate.claims: %w", claimsErr)
	}
	return &idtoken.Payload{
		Issuer:   verified.Issuer,
		Audience: audience,
		Expires:  verified.Expiry.Unix(),
		IssuedAt: verified.IssuedAt.Unix(),
		Subject:  verified.Subject,
		Claims:   claims,
	}, nil
}

type keyFetchOutcomeKey struct{}

// keyFetchOutcome is scoped to one Validate call.
type keyFetchOutcome struct {
	err error
}

// fetchClassifyingKeySet records key fetch failures before go-oidc flattens the error chain.
type fetchClassifyingKeySet struct {
	inner oidc.KeySet
}

func (keySet fetchClassifyingKeySet) VerifySignature(ctx context.Context, jwt string) ([]byte, error) {
	payload, err := keySet.inner.VerifySignature(ctx, jwt)
	if err != nil && isKeyFetchFailure(err) {
		if outcome, ok := ctx.Value(keyFetchOutcomeKey{}).(*keyFetchOutcome); ok {
			outcome.err = err
		}
	}
	return payload, err
}

func isKeyFetchFailure(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// upstreamStatusTransport turns 5xx responses into transport errors so they
// surface as *url.Error.
type upstreamStatusTransport struct {
	base http.RoundTripper
}

func (transport upstreamStatusTransport) RoundTrip(request *http.Request) (*http.Response, error) {
	response, err := transport.base.RoundTrip(request)
	if err != nil {
		return nil, err
	}
	if response.StatusCode >= http.StatusInternalServerError {
		response.Body.Close()
		return nil, fmt.Errorf("oidc.upstream: status %d", response.StatusCode)
	}
	return response, nil
}
