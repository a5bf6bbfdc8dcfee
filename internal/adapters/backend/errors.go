package backend

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes returned by the backend.
const (
	CodeUniqueViolation  = "23505"
	CodeUndefinedTable   = "42P01"
	CodeUndefinedColumn  = "42703"
	CodeInsufficientPriv = "42501"
	CodeJWTInvalid       = "PGRST301"
	CodeNoRows           = "PGRST116"
	CodeConnectivity     = "CONNECTIVITY"
	CodeInvalidGrant     = "invalid_credentials"
)

// Error is a failure reported by (or on the way to) the backend.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
	Status  int    `json:"-"`
}

// Error implements error.
func (e *Error) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Connectivity wraps a transport failure as a backend error.
func Connectivity(err error) *Error {
	return &Error{Code: CodeConnectivity, Message: err.Error()}
}

// Category is the user-facing class of a backend failure.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryDuplicate
	CategoryTableMissing
	CategoryColumnMissing
	CategoryPermission
	CategoryUnavailable
	CategoryNotFound
	CategoryConnectivity
)

var categoryNames = map[Category]string{
	CategoryUnknown:       "unknown",
	CategoryDuplicate:     "duplicate",
	CategoryTableMissing:  "table_missing",
	CategoryColumnMissing: "column_missing",
	CategoryPermission:    "permission",
	CategoryUnavailable:   "unavailable",
	CategoryNotFound:      "not_found",
	CategoryConnectivity:  "connectivity",
}

// String returns the snake_case name used in logs.
func (c Category) String() string { return categoryNames[c] }

var codeCategories = map[string]Category{
	CodeUniqueViolation:  CategoryDuplicate,
	CodeUndefinedTable:   CategoryTableMissing,
	CodeUndefinedColumn:  CategoryColumnMissing,
	CodeInsufficientPriv: CategoryPermission,
	CodeJWTInvalid:       CategoryUnavailable,
	CodeNoRows:           CategoryNotFound,
	CodeConnectivity:     CategoryConnectivity,
}

// Classify maps err to a Category, by error code first.
// PRE: none
// POST: returns CategoryUnknown for nil or unrecognised errors
func Classify(err error) Category {
	var be *Error
	if !errors.As(err, &be) {
		return CategoryUnknown
	}
	if c, ok := codeCategories[be.Code]; ok {
		return c
	}
	return classifyMessage(be.Message)
}

// classifyMessage is the fallback for errors without a known code.
// FRAGILE: depends on the backend's English error text; add a code to
// codeCategories whenever the backend starts returning one.
func classifyMessage(msg string) Category {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "row-level security"):
		return CategoryPermission
	case strings.Contains(m, "duplicate key"):
		return CategoryDuplicate
	case strings.Contains(m, "column") && strings.Contains(m, "does not exist"):
		return CategoryColumnMissing
	case (strings.Contains(m, "table") || strings.Contains(m, "relation")) && strings.Contains(m, "does not exist"):
		return CategoryTableMissing
	}
	return CategoryUnknown
}

// Detail returns the human-readable message carried by err.
func Detail(err error) string {
	if err == nil {
		return ""
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Message
	}
	return err.Error()
}

// Rejected reports whether the backend refused err's request on its merits
// (a 4xx answer). Outages, server errors and local failures are not
// rejections and may succeed on retry.
func Rejected(err error) bool {
	var be *Error
	if !errors.As(err, &be) || be.Code == CodeConnectivity {
		return false
	}
	return be.Status >= 400 && be.Status < 500
}
