package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medportal/portal/internal/platform/apperr"
	"github.com/medportal/portal/internal/platform/auth"
)

// User is a patient account.
type User struct {
	ID           uuid.UUID `json:"_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Avatar       string    `json:"avatar"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type SignupRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// Validate runs every check that needs no store access.
func (r *SignupRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = auth.NormalizeEmail(r.Email)
	if r.Name == "" {
		return apperr.Validation("name is required")
	}
	if err := auth.ValidateEmail(r.Email); err != nil {
		return err
	}
	return auth.ValidateNewPassword(r.Password, r.ConfirmPassword, true)
}

type SigninRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ProfileUpdate holds the editable profile fields. Nil fields are unchanged.
type ProfileUpdate struct {
	Name   *string `json:"name"`
	Avatar *string `json:"avatar"`
}

type AuthResponse struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}
