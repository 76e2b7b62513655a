package auth

import (
	"regexp"
	"strings"

	"vidpredict/internal/api"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// RegisterInput is the registration form.
type RegisterInput struct {
	Email           string `json:"email"`
	Name            string `json:"name"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

func ValidateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return &api.ValidationError{Field: "email", Message: "email is required"}
	}
	if !emailPattern.MatchString(email) {
		return &api.ValidationError{Field: "email", Message: "please enter a valid email"}
	}
	return nil
}

func validateLogin(email, password string) error {
	if err := ValidateEmail(email); err != nil {
		return err
	}
	if password == "" {
		return &api.ValidationError{Field: "password", Message: "password is required"}
	}
	return nil
}

// Validate checks the form before anything is sent. The confirmation must
// match byte for byte; passwords are never trimmed.
func (in RegisterInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return &api.ValidationError{Field: "name", Message: "name is required"}
	}
	if err := validateLogin(in.Email, in.Password); err != nil {
		return err
	}
	if in.Password != in.PasswordConfirm {
		return &api.ValidationError{Field: "password_confirm", Message: "passwords do not match"}
	}
	return nil
}
