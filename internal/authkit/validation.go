package authkit

import (
	"errors"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// LoginRequest carries email/password credentials.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,notblank"`
	Password string `json:"password" validate:"required,notblank"`
}

// RegisterRequest carries a new account's profile and requested roles.
type RegisterRequest struct {
	FirstName  string   `json:"firstName" validate:"required,notblank,max=100"`
	LastName   string   `json:"lastName" validate:"required,notblank,max=100"`
	Email      string   `json:"email" validate:"required,email,max=254"`
	Password   string   `json:"password" validate:"required,notblank,min=6,maxbytes=72"`
	Profession string   `json:"profession" validate:"max=100"`
	Country    string   `json:"country" validate:"max=100"`
	Roles      []string `json:"roles"`
}

// GoogleLoginRequest carries a Google ID token.
type GoogleLoginRequest struct {
	IDToken string `json:"idToken" validate:"required,notblank"`
}

var requestValidator = newRequestValidator()

func newRequestValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	mustRegisterValidation(validate, "notblank", validators.NotBlank)
	mustRegisterValidation(validate, "maxbytes", maxBytes)
	return validate
}

func mustRegisterValidation(validate *validator.Validate, tag string, fn validator.Func) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

// maxBytes bounds the encoded length of a string; bcrypt rejects input over 72 bytes.
func maxBytes(field validator.FieldLevel) bool {
	limit, err := strconv.Atoi(field.Param())
	if err != nil {
		return false
	}
	return len(field.Field().String()) <= limit
}

// validateRequest returns a *ValidationError keyed by JSON field names.
func validateRequest(request any) error {
	validateErr := requestValidator.Struct(request)
	if validateErr == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(validateErr, &fieldErrors) {
		return &ValidationError{Fields: map[string]string{"request": "is malformed"}}
	}
	fields := make(map[string]string, len(fieldErrors))
	for _, fieldErr := range fieldErrors {
		fields[fieldErr.Field()] = validationMessage(fieldErr)
	}
	return &ValidationError{Fields: fields}
}

func validationMessage(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required", "notblank":
		return "must not be blank"
	case "email":
		return "must be a well-formed email address"
	case "min":
		return "must be at least " + fieldErr.Param() + " characters"
	case "max":
		return "must be at most " + fieldErr.Param() + " characters"
	case "maxbytes":
		return "must be at most " + fieldErr.Param() + " bytes"
	default:
		return "is invalid"
	}
}
