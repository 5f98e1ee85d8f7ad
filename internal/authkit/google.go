package authkit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/idtoken"
)

const (
	googleIssuerHTTPS = "https://accounts.google.com"
	googleIssuerBare  = "accounts.google.com"
)

// GoogleTokenValidator checks an ID token's signature, audience, and expiry.
type GoogleTokenValidator interface {
	Validate(ctx context.Context, token string, audience string) (*idtoken.Payload, error)
}

var newGoogleTokenValidator = func(ctx context.Context) (GoogleTokenValidator, error) {
	return idtoken.NewValidator(ctx)
}

// NewGoogleTokenValidator builds the default validator backed by Google's published certificates.
func NewGoogleTokenValidator(ctx context.Context) (GoogleTokenValidator, error) {
	return newGoogleTokenValidator(ctx)
}

// GoogleIdentityVerifier turns a Google ID token into verified identity claims.
type GoogleIdentityVerifier struct {
	validator GoogleTokenValidator
	clientID  string
	timeout   time.Duration
	logger    *zap.Logger
}

// NewGoogleIdentityVerifier constructs a verifier expecting tokens minted for clientID.
func NewGoogleIdentityVerifier(validator GoogleTokenValidator, clientID string, timeout time.Duration, logger *zap.Logger) *GoogleIdentityVerifier {
	if timeout <= 0 {
		timeout = DefaultGoogleVerifyTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GoogleIdentityVerifier{
		validator: validator,
		clientID:  clientID,
		timeout:   timeout,
		logger:    logger,
	}
}

// Verify returns ErrIdentityTokenInvalid for any rejected token and
// ErrIdentityProviderUnavailable when the key service cannot be reached in time.
func (verifier *GoogleIdentityVerifier) Verify(ctx context.Context, idTokenString string) (ExternalIdentityClaims, error) {
	if strings.TrimSpace(idTokenString) == "" {
		return ExternalIdentityClaims{}, fmt.Errorf("google.verify: %w", ErrIdentityTokenInvalid)
	}
	verifyCtx, cancel := context.WithTimeout(ctx, verifier.timeout)
	defer cancel()

	payload, validateErr := verifier.validator.Validate(verifyCtx, idTokenString, verifier.clientID)
	if validateErr != nil {
		if isProviderUnavailable(verifyCtx, validateErr) {
			verifier.logger.Warn("google key service unavailable",
				zap.String("code", "google.verify.unavailable"),
				zap.Error(validateErr))
			return ExternalIdentityClaims{}, fmt.Errorf("google.verify: %w", ErrIdentityProviderUnavailable)
		}
		verifier.logger.Info("google id token rejected",
			zap.String("code", "google.verify.rejected"),
			zap.Error(validateErr))
		return ExternalIdentityClaims{}, fmt.Errorf("google.verify: %w", ErrIdentityTokenInvalid)
	}
	if payload == nil {
		return ExternalIdentityClaims{}, fmt.Errorf("google.verify: %w", ErrIdentityTokenInvalid)
	}

	issuer := payload.Issuer
	if issuerClaim, ok := payload.Claims["iss"].(string); ok && issuerClaim != "" {
		issuer = issuerClaim
	}
	if issuer != googleIssuerHTTPS && issuer != googleIssuerBare {
		verifier.logger.Info("google id token rejected",
			zap.String("code", "google.verify.issuer"),
			zap.String("issuer", issuer))
		return ExternalIdentityClaims{}, fmt.Errorf("google.verify: %w", ErrIdentityTokenInvalid)
	}

	email, _ := payload.Claims["email"].(string)
	emailVerified, _ := payload.Claims["email_verified"].(bool)
	if strings.TrimSpace(email) == "" || !emailVerified {
		verifier.logger.Info("google id token rejected",
			zap.String("code", "google.verify.unverified_email"))
		return ExternalIdentityClaims{}, fmt.Errorf("google.verify: %w", ErrIdentityTokenInvalid)
	}
	givenName, _ := payload.Claims["given_name"].(string)
	familyName, _ := payload.Claims["family_name"].(string)

	subject := payload.Subject
	if subject == "" {
		subject, _ = payload.Claims["sub"].(string)
	}
	audience := payload.Audience
	if audience == "" {
		audience = verifier.clientID
	}

	return ExternalIdentityClaims{
		Subject:    subject,
		Email:      email,
		GivenName:  givenName,
		FamilyName: familyName,
		Issuer:     issuer,
		Audience:   audience,
		Expiry:     time.Unix(payload.Expires, 0).UTC(),
	}, nil
}

func isProviderUnavailable(ctx context.Context, err error) bool {
	if errors.Is(err, ErrIdentityProviderUnavailable) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
