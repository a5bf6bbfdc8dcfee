// Package profile models a signed-in visitor's editable profile.
package profile

import (
	"errors"
	"net/mail"
	"strings"
	"time"

	"hear/internal/domain/identity"
)

// DateLayout is the wire format of DateOfBirth.
const DateLayout = "2006-01-02"

// Domain errors
var (
	ErrInvalidEmail = errors.New("Please enter a valid email address")
	ErrInvalidDOB   = errors.New("Date of birth must be a past date in YYYY-MM-DD format")
)

// Profile is one row of the profiles table.
// INVARIANT: ID == UserID == the owning user's id
type Profile struct {
	ID          string
	UserID      string
	Email       string
	Name        string
	Gender      string
	DateOfBirth string
	Address     string
}

// ValidEmail reports whether s parses as a bare address.
func ValidEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s && strings.Contains(s, ".")
}

// Validate checks field formats.
// PRE: now is the current time
// POST: returns ErrInvalidEmail or ErrInvalidDOB, or nil
func (p Profile) Validate(now time.Time) error {
	if !ValidEmail(p.Email) {
		return ErrInvalidEmail
	}
	if p.DateOfBirth != "" {
		dob, err := time.Parse(DateLayout, p.DateOfBirth)
		if err != nil || !dob.Before(now) {
			return ErrInvalidDOB
		}
	}
	return nil
}

// Row returns the upsert payload for the profiles table.
func (p Profile) Row() map[string]any {
	return map[string]any{
		"id":            p.ID,
		"user_id":       p.UserID,
		"email":         p.Email,
		"full_name":     p.Name,
		"gender":        p.Gender,
		"date_of_birth": p.DateOfBirth,
		"address":       p.Address,
	}
}

// Prefill builds the profile shown to u: stored columns first, then the
// user's sign-up metadata and e-mail. stored may be nil.
func Prefill(u identity.User, stored map[string]any) Profile {
	col := func(name string) string {
		if v, ok := stored[name].(string); ok {
			return v
		}
		return ""
	}
	return Profile{
		ID:          u.ID,
		UserID:      u.ID,
		Name:        firstNonEmpty(col("full_name"), col("name"), u.Metadata.FullName),
		Email:       firstNonEmpty(col("email"), u.Email),
		Gender:      firstNonEmpty(col("gender"), u.Metadata.Gender),
		DateOfBirth: firstNonEmpty(col("date_of_birth"), u.Metadata.DOB),
		Address:     col("address"),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
