package authkit

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateRequestReportsFieldsByJSONName(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name     string
		request  any
		expected map[string]string
	}{
		{
			name:    "blank login",
			request: LoginRequest{},
			expected: map[string]string{
				"email":    "must not be blank",
				"password": "must not be blank",
			},
		},
		{
			name: "register short password and bad email",
			request: RegisterRequest{
				FirstName: "A",
				LastName:  "B",
				Email:     "not-an-email",
				Password:  "12345",
			},
			expected: map[string]string{
				"email":    "must be a well-formed email address",
				"password": "must be at least 6 characters",
			},
		},
		{
			name: "register oversized names",
			request: RegisterRequest{
				FirstName: strings.Repeat("a", 101),
				LastName:  "B",
				Email:     "a@x.com",
				Password:  "Secret1",
			},
			expected: map[string]string{
				"firstName": "must be at most 100 characters",
			},
		},
		{
			name: "register multibyte password over bcrypt limit",
			request: RegisterRequest{
				FirstName: "A",
				LastName:  "B",
				Email:     "a@x.com",
				Password:  strings.Repeat("日", 30),
			},
			expected: map[string]string{
				"password": "must be at most 72 bytes",
			},
		},
		{
			name: "register whitespace-only names",
			request: RegisterRequest{
				FirstName: "   ",
				LastName:  "\t",
				Email:     "a@x.com",
				Password:  "Secret1",
			},
			expected: map[string]string{
				"firstName": "must not be blank",
				"lastName":  "must not be blank",
			},
		},
		{
			name:    "login whitespace-only credentials",
			request: LoginRequest{Email: "  ", Password: "   "},
			expected: map[string]string{
				"email":    "must not be blank",
				"password": "must not be blank",
			},
		},
		{
			name:     "google whitespace token",
			request:  GoogleLoginRequest{IDToken: "  "},
			expected: map[string]string{"idToken": "must not be blank"},
		},
		{
			name:     "google blank token",
			request:  GoogleLoginRequest{},
			expected: map[string]string{"idToken": "must not be blank"},
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			err := validateRequest(testCase.request)
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if len(validationErr.Fields) != len(testCase.expected) {
				t.Fatalf("expected fields %v, got %v", testCase.expected, validationErr.Fields)
			}
			for field, message := range testCase.expected {
				if validationErr.Fields[field] != message {
					t.Fatalf("field %s: expected %q, got %q", field, message, validationErr.Fields[field])
				}
			}
		})
	}
}

func TestValidateRequestAcceptsWellFormedRegistration(t *testing.T) {
	t.Parallel()
	request := RegisterRequest{FirstName: "Ada", LastName: "Lovelace", Email: "a@x.com", Password: "Secret1"}
	if err := validateRequest(request); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRequestAcceptsMultibytePasswordWithinBcryptLimit(t *testing.T) {
	t.Parallel()
	request := RegisterRequest{FirstName: "Ada", LastName: "Lovelace", Email: "a@x.com", Password: strings.Repeat("日", 24)}
	if err := validateRequest(request); err != nil {
		t.Fatalf("unexpected error for a 72-byte password: %v", err)
	}
}

func TestValidationErrorMessageListsSortedFields(t *testing.T) {
	t.Parallel()
	err := &ValidationError{Fields: map[string]string{"password": "x", "email": "y"}}
	if err.Error() != "auth.validation: email,password" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
