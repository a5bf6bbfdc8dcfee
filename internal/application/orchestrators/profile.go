package orchestrators

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"hear/internal/adapters/backend"
	"hear/internal/application/form"
	"hear/internal/application/session"
	"hear/internal/domain/hearingtest"
	"hear/internal/domain/identity"
	domain "hear/internal/domain/profile"
)

// ProfileRevertAfter is how long the "saved" popup shows.
const ProfileRevertAfter = 2 * time.Second

// IdentitySource reports the visitor's current identity.
type IdentitySource interface {
	Current() session.State
}

// ProfileDeps are the collaborators of the profile form and page.
type ProfileDeps struct {
	Client   backend.Client
	Sessions IdentitySource
	Now      func() time.Time
}

func (d ProfileDeps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d ProfileDeps) user() (identity.User, error) {
	id := d.Sessions.Current().Identity
	if !id.IsAuthenticated() {
		return identity.User{}, session.ErrNotAuthenticated
	}
	return *id.User, nil
}

// NewProfileSpec configures the profile edit form.
// PRE: deps.Client and deps.Sessions are non-nil
// POST: the returned spec upserts the signed-in user's row keyed by their id
// and never clears the draft
func NewProfileSpec(deps ProfileDeps) form.Spec {
	return form.Spec{
		Name:            "profile",
		Fields:          []string{"name", "email", "gender", "date_of_birth", "address"},
		Required:        []string{"name", "email"},
		RequiredMessage: RequiredFieldsMessage,
		Checks: []form.Check{
			func(context.Context, form.Draft) error {
				if _, err := deps.user(); err != nil {
					return &form.ValidationError{Message: "User not authenticated"}
				}
				return nil
			},
			func(_ context.Context, d form.Draft) error {
				switch err := profileFromDraft(d, "").Validate(deps.now()); err {
				case nil:
					return nil
				case domain.ErrInvalidEmail:
					return &form.ValidationError{Field: "email", Message: err.Error()}
				default:
					return &form.ValidationError{Field: "date_of_birth", Message: err.Error()}
				}
			},
		},
		Submit: func(ctx context.Context, d form.Draft) (backend.Row, error) {
			u, err := deps.user()
			if err != nil {
				return nil, err
			}
			return deps.Client.From(backend.TableProfiles).Upsert(ctx, profileFromDraft(d, u.ID).Row())
		},
		Describe:       DescribeProfileError,
		SuccessMessage: ProfileSuccessMessage,
		RevertAfter:    ProfileRevertAfter,
		Clear:          form.ClearNever,
	}
}

func profileFromDraft(d form.Draft, userID string) domain.Profile {
	return domain.Profile{
		ID:          userID,
		UserID:      userID,
		Name:        d.Get("name"),
		Email:       d.Get("email"),
		Gender:      d.Get("gender"),
		DateOfBirth: d.Get("date_of_birth"),
		Address:     d.Get("address"),
	}
}

// ProfileDraft converts a profile to form values.
func ProfileDraft(p domain.Profile) map[string]string {
	return map[string]string{
		"name":          p.Name,
		"email":         p.Email,
		"gender":        p.Gender,
		"date_of_birth": p.DateOfBirth,
		"address":       p.Address,
	}
}

// ExecuteLoadProfile reads the signed-in user's stored profile and fills
// gaps from their sign-up metadata.
// PRE: deps.Sessions is non-nil
// POST: a missing row is not an error; other read failures are logged and
// the metadata-only profile is returned
func ExecuteLoadProfile(ctx context.Context, deps ProfileDeps) (domain.Profile, error) {
	u, err := deps.user()
	if err != nil {
		return domain.Profile{}, err
	}
	rows, err := deps.Client.From(backend.TableProfiles).Select(ctx, backend.Query{Single: true}.Eq("id", u.ID))
	if err != nil {
		if backend.Classify(err) != backend.CategoryNotFound {
			slog.Error("profile_load_failed", "user_id", u.ID, "error", err.Error())
		}
		return domain.Prefill(u, nil), nil
	}
	var stored map[string]any
	if len(rows) > 0 {
		stored = rows[0]
	}
	return domain.Prefill(u, stored), nil
}

// ExecuteListHearingTests returns the signed-in user's tests, newest first.
// PRE: deps.Sessions is non-nil
// POST: backend failures are logged and yield an empty list
func ExecuteListHearingTests(ctx context.Context, deps ProfileDeps) ([]hearingtest.Result, error) {
	u, err := deps.user()
	if err != nil {
		return nil, fmt.Errorf("list hearing tests: %w", err)
	}
	q := backend.Query{}.Eq("user_id", u.ID).Order("test_date", false)
	rows, err := deps.Client.From(backend.TableHearingTests).Select(ctx, q)
	if err != nil {
		slog.Error("hearing_tests_load_failed", "user_id", u.ID, "error", err.Error())
		return []hearingtest.Result{}, nil
	}
	out := make([]hearingtest.Result, 0, len(rows))
	for _, r := range rows {
		out = append(out, hearingtest.FromRow(r))
	}
	return out, nil
}
