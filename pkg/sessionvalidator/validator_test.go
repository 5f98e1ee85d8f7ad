package sessionvalidator

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tyemirov/jewelauth/internal/authkit"
)

type fixedClock struct {
	current time.Time
}

func (clock fixedClock) Now() time.Time {
	return clock.current
}

func issueToken(t *testing.T, signingKey []byte, issuer string, issuedAt time.Time, ttl time.Duration, roles ...authkit.RoleID) string {
	t.Helper()
	tokens, err := authkit.NewTokenService(signingKey, issuer, ttl)
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	token, _, err := tokens.Issue("user@example.com", "user-123", roles, issuedAt)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return token
}

func TestNewValidatorRequiresSigningKeyAndIssuer(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Issuer: "issuer"}); !errors.Is(err, ErrMissingSigningKey) {
		t.Fatalf("expected ErrMissingSigningKey, got %v", err)
	}
	if _, err := New(Config{SigningKey: []byte("k")}); !errors.Is(err, ErrMissingIssuer) {
		t.Fatalf("expected ErrMissingIssuer, got %v", err)
	}
}

func TestNewValidatorDefaults(t *testing.T) {
	t.Parallel()
	validator, err := New(Config{SigningKey: []byte("k"), Issuer: "issuer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if validator.cookieName != DefaultCookieName {
		t.Fatalf("expected default cookie name, got %q", validator.cookieName)
	}
	if _, ok := validator.clock.(systemClock); !ok {
		t.Fatalf("expected system clock")
	}
}

func TestValidateTokenAcceptsServiceTokens(t *testing.T) {
	t.Parallel()
	now := time.Unix(1700000000, 0).UTC()
	token := issueToken(t, []byte("secret-key"), "issuer", now, time.Minute, authkit.RoleAdmin, authkit.RoleUser)
	validator, err := New(Config{SigningKey: []byte("secret-key"), Issuer: "issuer", Clock: fixedClock{current: now}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	claims, err := validator.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != "user-123" || claims.UserEmail != "user@example.com" || claims.Subject != "user@example.com" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if !claims.HasAnyRole("ROLE_ADMIN") || claims.HasAnyRole("ROLE_AUDITOR") {
		t.Fatalf("unexpected roles %v", claims.UserRoles)
	}
	if !claims.GetExpiresAt().Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected expiry %v", claims.GetExpiresAt())
	}
}

func TestValidateTokenRejectsInvalidCases(t *testing.T) {
	t.Parallel()
	now := time.Unix(1700000000, 0).UTC()
	valid := issueToken(t, []byte("secret-key"), "issuer", now, time.Minute)

	testCases := []struct {
		name     string
		token    string
		at       time.Time
		expected error
	}{
		{name: "empty", token: " ", at: now, expected: ErrMissingToken},
		{name: "garbage", token: "a.b.c", at: now, expected: ErrInvalidToken},
		{name: "wrong key", token: issueToken(t, []byte("other-key"), "issuer", now, time.Minute), at: now, expected: ErrInvalidToken},
		{name: "wrong issuer", token: issueToken(t, []byte("secret-key"), "elsewhere", now, time.Minute), at: now, expected: ErrInvalidToken},
		{name: "at expiry", token: valid, at: now.Add(time.Minute), expected: ErrTokenExpired},
		{name: "after expiry", token: valid, at: now.Add(time.Hour), expected: ErrTokenExpired},
	}
	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			validator, err := New(Config{SigningKey: []byte("secret-key"), Issuer: "issuer", Clock: fixedClock{current: testCase.at}})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if _, validateErr := validator.ValidateToken(testCase.token); !errors.Is(validateErr, testCase.expected) {
				t.Fatalf("expected %v, got %v", testCase.expected, validateErr)
			}
		})
	}
}

func TestValidateRequestPrefersBearerHeader(t *testing.T) {
	t.Parallel()
	now := time.Unix(1700000000, 0).UTC()
	token := issueToken(t, []byte("secret-key"), "issuer", now, time.Minute)
	validator, err := New(Config{SigningKey: []byte("secret-key"), Issuer: "issuer", Clock: fixedClock{current: now}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bearer := httptest.NewRequest(http.MethodGet, "/", nil)
	bearer.Header.Set("Authorization", "Bearer "+token)
	bearer.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "stale"})
	if _, err := validator.ValidateRequest(bearer); err != nil {
		t.Fatalf("expected bearer token to validate, got %v", err)
	}

	cookie := httptest.NewRequest(http.MethodGet, "/", nil)
	cookie.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: token})
	if _, err := validator.ValidateRequest(cookie); err != nil {
		t.Fatalf("expected cookie token to validate, got %v", err)
	}

	if _, err := validator.ValidateRequest(httptest.NewRequest(http.MethodGet, "/", nil)); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
	if _, err := validator.ValidateRequest(nil); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken for nil request, got %v", err)
	}
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	now := time.Unix(1700000000, 0).UTC()
	userToken := issueToken(t, []byte("secret-key"), "issuer", now, time.Minute, authkit.RoleUser)
	adminToken := issueToken(t, []byte("secret-key"), "issuer", now, time.Minute, authkit.RoleAdmin)
	validator, err := New(Config{SigningKey: []byte("secret-key"), Issuer: "issuer", Clock: fixedClock{current: now}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	router := gin.New()
	router.GET("/protected", validator.GinMiddleware("claims"), func(contextGin *gin.Context) {
		value, exists := contextGin.Get("claims")
		if !exists {
			t.Fatalf("claims missing")
		}
		if _, ok := value.(*Claims); !ok {
			t.Fatalf("unexpected claims type: %T", value)
		}
		contextGin.Status(http.StatusOK)
	})
	router.GET("/admin", validator.GinMiddleware("", "ROLE_ADMIN"), func(contextGin *gin.Context) {
		contextGin.Status(http.StatusOK)
	})

	testCases := []struct {
		name         string
		path         string
		token        string
		expectedCode int
	}{
		{name: "user cookie", path: "/protected", token: userToken, expectedCode: http.StatusOK},
		{name: "missing cookie", path: "/protected", expectedCode: http.StatusUnauthorized},
		{name: "user on admin", path: "/admin", token: userToken, expectedCode: http.StatusForbidden},
		{name: "admin on admin", path: "/admin", token: adminToken, expectedCode: http.StatusOK},
	}
	for _, testCase := range testCases {
		request := httptest.NewRequest(http.MethodGet, testCase.path, nil)
		if testCase.token != "" {
			request.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: testCase.token})
		}
		response := httptest.NewRecorder()
		router.ServeHTTP(response, request)
		if response.Code != testCase.expectedCode {
			t.Fatalf("%s: expected %d, got %d", testCase.name, testCase.expectedCode, response.Code)
		}
	}
}
