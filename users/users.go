package users

import (
	"strings"

	"github.com/jrsteele09/family-budget-client/internal/errors"
)

// MinPasswordLength mirrors the backend's password validator.
const MinPasswordLength = 8

// Profile is the account record returned by GET /users/profile/.
type Profile struct {
	ID        int    `json:"id,omitempty"`         // Unique identifier for the user
	Email     string `json:"email,omitempty"`      // User's email address, also the login identifier
	Username  string `json:"username,omitempty"`   // Optional display handle
	FirstName string `json:"first_name,omitempty"` // First name of the user
	LastName  string `json:"last_name,omitempty"`  // Last name of the user
}

// FullName joins the first and last names, falling back to the email.
func (p Profile) FullName() string {
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name == "" {
		return p.Email
	}
	return name
}

// Registration is the body of POST /users/register/.
type Registration struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

// Validate runs the checks the sign-up form makes before anything is sent.
func (r Registration) Validate() error {
	if strings.TrimSpace(r.Email) == "" {
		return errors.Invalid("email", "Email is required")
	}
	if r.Password != r.PasswordConfirm {
		return errors.Invalid("password_confirm", "Passwords do not match")
	}
	return ValidatePasswordLength(r.Password)
}

// ProfileUpdate is the body of PUT /users/profile/.
type ProfileUpdate struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// PasswordChange is the body of POST /users/change-password/.
type PasswordChange struct {
	OldPassword        string `json:"old_password"`
	NewPassword        string `json:"new_password"`
	NewPasswordConfirm string `json:"new_password_confirm"`
}

func (p PasswordChange) Validate() error {
	if p.NewPassword != p.NewPasswordConfirm {
		return errors.Invalid("new_password_confirm", "New passwords do not match")
	}
	return ValidatePasswordLength(p.NewPassword)
}

// ValidatePasswordLength checks the only password rule the client enforces locally.
func ValidatePasswordLength(password string) error {
	if len(password) < MinPasswordLength {
		return errors.Invalid("password", "Password must be at least 8 characters long")
	}
	return nil
}
