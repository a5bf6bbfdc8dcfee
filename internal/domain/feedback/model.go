// Package feedback models a message left on the support page.
package feedback

import "strings"

// Feedback is one row of the feedback table.
type Feedback struct {
	Name    string
	Email   string
	Message string
}

// Normalize trims every field.
func (f Feedback) Normalize() Feedback {
	return Feedback{
		Name:    strings.TrimSpace(f.Name),
		Email:   strings.TrimSpace(f.Email),
		Message: strings.TrimSpace(f.Message),
	}
}

// Row returns the columns written to the feedback table.
func (f Feedback) Row() map[string]any {
	return map[string]any{"name": f.Name, "email": f.Email, "feedback": f.Message}
}
