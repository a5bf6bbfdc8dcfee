package orchestrators

import (
	"hear/internal/adapters/backend"
)

// RequiredFieldsMessage is shown when a required field is blank.
const RequiredFieldsMessage = "Please fill in all required fields"

// ConnectivityMessage is shown by every form when the backend cannot be reached.
const ConnectivityMessage = "We could not reach our servers. Please check your connection and try again."

// Success messages.
const (
	ConsultationSuccessMessage = "Thank you! We've successfully got your details. Our audiologist will call you within 24 hours."
	ProfileSuccessMessage      = "Changes Saved!"
	FeedbackSuccessMessage     = "Thank you for your feedback! We appreciate your input."
)

// DescribeConsultationError maps a consultation insert failure to the message shown.
func DescribeConsultationError(err error) string {
	switch backend.Classify(err) {
	case backend.CategoryConnectivity:
		return ConnectivityMessage
	case backend.CategoryTableMissing:
		return "Database table not found. Please contact support."
	case backend.CategoryDuplicate:
		return "This consultation request already exists."
	}
	return "Database error: " + backend.Detail(err)
}

// DescribeProfileError maps a profile upsert failure to the message shown.
func DescribeProfileError(err error) string {
	switch backend.Classify(err) {
	case backend.CategoryConnectivity:
		return ConnectivityMessage
	case backend.CategoryPermission:
		return "Permission denied. Please check your account permissions."
	case backend.CategoryDuplicate:
		return "Profile already exists. Trying to update instead."
	case backend.CategoryTableMissing, backend.CategoryUnavailable:
		return "Database table not found. Please contact support."
	}
	if d := backend.Detail(err); d != "" {
		return "Error: " + d
	}
	return "Failed to save profile data"
}

// DescribeFeedbackError maps a feedback insert failure to the message shown.
func DescribeFeedbackError(err error) string {
	switch backend.Classify(err) {
	case backend.CategoryConnectivity:
		return ConnectivityMessage
	case backend.CategoryPermission:
		return "Permission denied. Please check if you need to be logged in."
	case backend.CategoryUnavailable:
		return "Feedback system unavailable. Please contact support directly."
	case backend.CategoryColumnMissing:
		return "System configuration error. Please contact support."
	case backend.CategoryTableMissing:
		return "Feedback system not configured. Please contact support."
	}
	if d := backend.Detail(err); d != "" {
		return "Error: " + d
	}
	return "Failed to submit feedback. Please try again."
}

// DescribeAuthError maps a sign-in or sign-up failure to the message shown on
// the login page.
func DescribeAuthError(err error) string {
	if backend.Classify(err) == backend.CategoryConnectivity {
		return ConnectivityMessage
	}
	if d := backend.Detail(err); d != "" {
		return d
	}
	return "Sign in failed. Please try again."
}
