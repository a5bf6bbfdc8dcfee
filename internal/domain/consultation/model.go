// Package consultation models a free-consultation booking request.
package consultation

import (
	"errors"
	"strings"
)

// Domain errors
var (
	ErrInvalidMobile   = errors.New("Please enter a valid 10-digit mobile number")
	ErrUnknownLocation = errors.New("Please choose your state or union territory from the list")
)

// Request is a visitor's consultation booking.
type Request struct {
	Name     string
	Mobile   string
	Location string
}

// Locations lists the Indian states and union territories offered by the form.
var Locations = []string{
	"Andhra Pradesh", "Arunachal Pradesh", "Assam", "Bihar", "Chhattisgarh",
	"Goa", "Gujarat", "Haryana", "Himachal Pradesh", "Jharkhand",
	"Karnataka", "Kerala", "Madhya Pradesh", "Maharashtra", "Manipur",
	"Meghalaya", "Mizoram", "Nagaland", "Odisha", "Punjab",
	"Rajasthan", "Sikkim", "Tamil Nadu", "Telangana", "Tripura",
	"Uttar Pradesh", "Uttarakhand", "West Bengal",
	"Andaman and Nicobar Islands", "Chandigarh",
	"Dadra and Nagar Haveli and Daman and Diu", "Delhi",
	"Jammu and Kashmir", "Ladakh", "Lakshadweep", "Puducherry",
}

// ValidMobile reports whether s is exactly ten digits.
func ValidMobile(s string) bool {
	if len(s) != 10 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// KnownLocation reports whether s is one of Locations.
func KnownLocation(s string) bool {
	for _, l := range Locations {
		if l == s {
			return true
		}
	}
	return false
}

// Normalize trims every field.
func (r Request) Normalize() Request {
	return Request{
		Name:     strings.TrimSpace(r.Name),
		Mobile:   strings.TrimSpace(r.Mobile),
		Location: strings.TrimSpace(r.Location),
	}
}

// Validate checks formats. Presence is checked by the form.
// PRE: r is normalized
// POST: returns ErrInvalidMobile or ErrUnknownLocation, or nil
func (r Request) Validate() error {
	if !ValidMobile(r.Mobile) {
		return ErrInvalidMobile
	}
	if !KnownLocation(r.Location) {
		return ErrUnknownLocation
	}
	return nil
}

// Row returns the columns written to the consultations table.
func (r Request) Row() map[string]any {
	return map[string]any{"name": r.Name, "mobile": r.Mobile, "location": r.Location}
}
