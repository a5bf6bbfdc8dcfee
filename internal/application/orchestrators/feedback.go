package orchestrators

import (
	"context"

	"hear/internal/adapters/backend"
	"hear/internal/application/form"
	domain "hear/internal/domain/feedback"
	"hear/internal/domain/profile"
)

// FeedbackDeps are the collaborators of the feedback form.
type FeedbackDeps struct {
	Client backend.Client
}

// NewFeedbackSpec configures the support page's feedback form.
// PRE: deps.Client is non-nil
// POST: the returned spec inserts into feedback, clears on success and keeps
// the thank-you message until the next submission
func NewFeedbackSpec(deps FeedbackDeps) form.Spec {
	return form.Spec{
		Name:            "feedback",
		Fields:          []string{"name", "email", "feedback"},
		Required:        []string{"name", "email", "feedback"},
		RequiredMessage: RequiredFieldsMessage,
		Checks: []form.Check{
			func(_ context.Context, d form.Draft) error {
				if !profile.ValidEmail(d.Get("email")) {
					return &form.ValidationError{Field: "email", Message: profile.ErrInvalidEmail.Error()}
				}
				return nil
			},
		},
		Submit: func(ctx context.Context, d form.Draft) (backend.Row, error) {
			f := domain.Feedback{Name: d["name"], Email: d["email"], Message: d["feedback"]}.Normalize()
			rows, err := deps.Client.From(backend.TableFeedback).Insert(ctx, []backend.Row{f.Row()})
			if err != nil {
				return nil, err
			}
			if len(rows) == 0 {
				return backend.Row(f.Row()), nil
			}
			return rows[0], nil
		},
		Describe:       DescribeFeedbackError,
		SuccessMessage: FeedbackSuccessMessage,
		Clear:          form.ClearOnSuccess,
	}
}
