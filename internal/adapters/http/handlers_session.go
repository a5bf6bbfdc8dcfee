package web

import (
	"errors"
	"net/http"
	"strings"

	"hear/internal/application/orchestrators"
	"hear/internal/application/session"
	"hear/internal/application/visitor"
	"hear/internal/domain/identity"
)

// authPage is the template data of the login page.
type authPage struct {
	Error  string
	Notice string
	Email  string
}

// identityResponse is the JSON snapshot served by /api/identity.
type identityResponse struct {
	Kind    string        `json:"kind"`
	Loading bool          `json:"loading"`
	User    *identityUser `json:"user,omitempty"`
}

type identityUser struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// identityChanged resets forms whose draft belongs to the previous identity.
func identityChanged(v *visitor.Visitor) {
	v.DropForm(orchestrators.FormProfile)
}

func (s *server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	v, ok := currentVisitor(w, r)
	if !ok {
		return
	}
	if v.Session.Current().Identity.IsAuthenticated() {
		http.Redirect(w, r, "/profile", http.StatusSeeOther)
		return
	}
	s.render(w, r, "login.html", "Signup / Login", "login", authPage{})
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	v, ok := currentVisitor(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")
	if email == "" || password == "" {
		s.render(w, r, "login.html", "Signup / Login", "login", authPage{Error: orchestrators.RequiredFieldsMessage, Email: email})
		return
	}

	if _, err := v.Session.SignIn(r.Context(), email, password); err != nil {
		s.render(w, r, "login.html", "Signup / Login", "login", authPage{Error: orchestrators.DescribeAuthError(err), Email: email})
		return
	}
	identityChanged(v)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *server) handleSignup(w http.ResponseWriter, r *http.Request) {
	v, ok := currentVisitor(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")
	meta := identity.Metadata{
		FullName: strings.TrimSpace(r.FormValue("name")),
		Gender:   r.FormValue("gender"),
		DOB:      r.FormValue("dob"),
	}
	if email == "" || password == "" || meta.FullName == "" {
		s.render(w, r, "login.html", "Signup / Login", "login", authPage{Error: orchestrators.RequiredFieldsMessage, Email: email})
		return
	}

	_, err := v.Session.SignUp(r.Context(), email, password, meta)
	switch {
	case errors.Is(err, session.ErrConfirmationPending):
		s.render(w, r, "login.html", "Signup / Login", "login", authPage{Notice: err.Error(), Email: email})
	case err != nil:
		s.render(w, r, "login.html", "Signup / Login", "login", authPage{Error: orchestrators.DescribeAuthError(err), Email: email})
	default:
		identityChanged(v)
		http.Redirect(w, r, "/profile", http.StatusSeeOther)
	}
}

// handleLogout signs out locally first; a backend failure is already logged
// by the Session Store and does not change the outcome.
func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	v, ok := currentVisitor(w, r)
	if !ok {
		return
	}
	v.Session.SignOut(r.Context())
	identityChanged(v)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *server) handleGuest(w http.ResponseWriter, r *http.Request) {
	v, ok := currentVisitor(w, r)
	if !ok {
		return
	}
	if err := v.Session.ContinueAsGuest(r.Context()); err != nil {
		internalError(w, "continue_as_guest", err)
		return
	}
	identityChanged(v)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *server) handleIdentityAPI(w http.ResponseWriter, r *http.Request) {
	v, ok := currentVisitor(w, r)
	if !ok {
		return
	}
	st := v.Session.Current()
	resp := identityResponse{Kind: st.Identity.Kind.String(), Loading: st.Loading}
	if st.Identity.IsAuthenticated() {
		u := st.Identity.User
		resp.User = &identityUser{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName}
	}
	writeJSON(w, http.StatusOK, resp)
}
