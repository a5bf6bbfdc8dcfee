package web

import (
	"context"
	"errors"
	"net/http"

	"hear/internal/adapters/backend"
	"hear/internal/application/form"
	"hear/internal/application/orchestrators"
	"hear/internal/application/visitor"
	"hear/internal/domain/hearingtest"
)

// formPage is the template data of a page hosting one form.
type formPage struct {
	Form  form.View
	Extra any
}

// profileExtra is what the profile page shows beside the form.
type profileExtra struct {
	HearingTests []hearingtest.Result
}

// submitResponse is the JSON body of every form API.
type submitResponse struct {
	Status   string      `json:"status"`
	Message  string      `json:"message,omitempty"`
	Error    string      `json:"error,omitempty"`
	Field    string      `json:"field,omitempty"`
	Category string      `json:"category,omitempty"`
	Record   backend.Row `json:"record,omitempty"`
}

type consultationInput struct {
	Name     string `json:"name"`
	Mobile   string `json:"mobile"`
	Location string `json:"location"`
}

type feedbackInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Feedback string `json:"feedback"`
}

type profileInput struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Gender      string `json:"gender"`
	DateOfBirth string `json:"date_of_birth"`
	Address     string `json:"address"`
}

// visitorForm returns the visitor's controller for name.
func visitorForm(w http.ResponseWriter, r *http.Request, name string) (*visitor.Visitor, *form.Controller, bool) {
	v, ok := currentVisitor(w, r)
	if !ok {
		return nil, nil, false
	}
	c, err := v.Form(name)
	if err != nil {
		internalError(w, "form_"+name, err)
		return nil, nil, false
	}
	return v, c, true
}

// submitPosted copies the posted fields into c and submits. The outcome is
// kept by the controller and shown on the redirected page.
func submitPosted(w http.ResponseWriter, r *http.Request, c *form.Controller, redirectTo string) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	for field := range r.PostForm {
		c.UpdateField(field, r.PostForm.Get(field))
	}
	c.Submit(r.Context())
	http.Redirect(w, r, redirectTo, http.StatusSeeOther)
}

// submitJSON loads values into c, submits and maps the outcome to a status code.
func submitJSON(ctx context.Context, w http.ResponseWriter, c *form.Controller, values map[string]string) {
	c.Load(values)
	out, err := c.Submit(ctx)

	var verr *form.ValidationError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, submitResponse{Status: out.Status.String(), Message: c.View().Message, Record: out.Record})
	case errors.Is(err, form.ErrInFlight):
		writeJSON(w, http.StatusConflict, submitResponse{Status: out.Status.String(), Error: err.Error()})
	case errors.Is(err, form.ErrDisposed):
		writeJSON(w, http.StatusServiceUnavailable, submitResponse{Error: err.Error()})
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, submitResponse{Status: out.Status.String(), Error: verr.Message, Field: verr.Field})
	default:
		writeJSON(w, http.StatusBadGateway, submitResponse{
			Status:   out.Status.String(),
			Error:    out.Reason,
			Category: backend.Classify(err).String(),
		})
	}
}

func badJSON(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, submitResponse{Error: "invalid JSON body"})
}

// --- consultation ---

func (s *server) handleConsultationPage(w http.ResponseWriter, r *http.Request) {
	_, c, ok := visitorForm(w, r, orchestrators.FormConsultation)
	if !ok {
		return
	}
	s.render(w, r, "consultation.html", "Free Hearing Consultation", "consultation", formPage{Form: c.View()})
}

func (s *server) handleConsultationSubmit(w http.ResponseWriter, r *http.Request) {
	_, c, ok := visitorForm(w, r, orchestrators.FormConsultation)
	if !ok {
		return
	}
	submitPosted(w, r, c, "/consultation")
}

func (s *server) handleConsultationAPI(w http.ResponseWriter, r *http.Request) {
	var in consultationInput
	if err := strictDecode(r, &in); err != nil {
		badJSON(w)
		return
	}
	_, c, ok := visitorForm(w, r, orchestrators.FormConsultation)
	if !ok {
		return
	}
	submitJSON(r.Context(), w, c, map[string]string{"name": in.Name, "mobile": in.Mobile, "location": in.Location})
}

// --- feedback ---

func (s *server) handleSupportPage(w http.ResponseWriter, r *http.Request) {
	_, c, ok := visitorForm(w, r, orchestrators.FormFeedback)
	if !ok {
		return
	}
	s.render(w, r, "support.html", "Support", "support", formPage{Form: c.View()})
}

func (s *server) handleFeedbackSubmit(w http.ResponseWriter, r *http.Request) {
	_, c, ok := visitorForm(w, r, orchestrators.FormFeedback)
	if !ok {
		return
	}
	submitPosted(w, r, c, "/support#feedback")
}

func (s *server) handleFeedbackAPI(w http.ResponseWriter, r *http.Request) {
	var in feedbackInput
	if err := strictDecode(r, &in); err != nil {
		badJSON(w)
		return
	}
	_, c, ok := visitorForm(w, r, orchestrators.FormFeedback)
	if !ok {
		return
	}
	submitJSON(r.Context(), w, c, map[string]string{"name": in.Name, "email": in.Email, "feedback": in.Feedback})
}

// --- profile ---

func profileDeps(v *visitor.Visitor) orchestrators.ProfileDeps {
	return orchestrators.ProfileDeps{Client: v.Client, Sessions: v.Session}
}

// handleProfilePage shows the signed-in user's profile. The stored profile is
// loaded only while the form is idle without an error, so a failed edit stays
// on screen.
func (s *server) handleProfilePage(w http.ResponseWriter, r *http.Request) {
	v, c, ok := visitorForm(w, r, orchestrators.FormProfile)
	if !ok {
		return
	}
	if !v.Session.Current().Identity.IsAuthenticated() {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	ctx := r.Context()
	deps := profileDeps(v)
	if view := c.View(); view.Outcome.Status == form.StatusIdle && view.Error == "" {
		p, err := orchestrators.ExecuteLoadProfile(ctx, deps)
		if err == nil {
			c.Load(orchestrators.ProfileDraft(p))
		}
	}
	tests, _ := orchestrators.ExecuteListHearingTests(ctx, deps)

	s.render(w, r, "profile.html", "My Profile", "profile", formPage{
		Form:  c.View(),
		Extra: profileExtra{HearingTests: tests},
	})
}

func (s *server) handleProfileSubmit(w http.ResponseWriter, r *http.Request) {
	v, c, ok := visitorForm(w, r, orchestrators.FormProfile)
	if !ok {
		return
	}
	if !v.Session.Current().Identity.IsAuthenticated() {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	submitPosted(w, r, c, "/profile")
}

func (s *server) handleProfileAPI(w http.ResponseWriter, r *http.Request) {
	var in profileInput
	if err := strictDecode(r, &in); err != nil {
		badJSON(w)
		return
	}
	v, c, ok := visitorForm(w, r, orchestrators.FormProfile)
	if !ok {
		return
	}
	if !v.Session.Current().Identity.IsAuthenticated() {
		writeJSON(w, http.StatusUnauthorized, submitResponse{Error: "User not authenticated"})
		return
	}
	submitJSON(r.Context(), w, c, map[string]string{
		"name":          in.Name,
		"email":         in.Email,
		"gender":        in.Gender,
		"date_of_birth": in.DateOfBirth,
		"address":       in.Address,
	})
}
