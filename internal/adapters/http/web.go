// Package web is the site's HTTP surface: server-rendered pages, their JSON
// twins, and the middleware chain around them.
package web

import (
	"net/http"
	"time"

	"hear/internal/adapters/backend"
	"hear/internal/adapters/content"
	"hear/internal/adapters/http/middleware"
	"hear/internal/adapters/http/perf"
	"hear/internal/application/visitor"
)

// Deps holds everything the handlers need.
type Deps struct {
	Registry *visitor.Registry
	Content  *content.Site
	// HealthClient checks the backend for /healthz; it carries no visitor session.
	HealthClient backend.Client
	Collector    *perf.Collector

	CSRFKey        []byte
	SecureCookies  bool
	TrustedOrigins []string

	// Limiter is shared with the caller so it can run the pruning loop.
	Limiter     *middleware.RateLimiter
	SlowRequest time.Duration
	PerfEnabled bool
}

// server carries Deps into the handlers.
type server struct {
	Deps
	pages *pageSet
}

// NewMux wires HTTP handlers for the site.
// PRE: deps.Registry, deps.Content, deps.HealthClient and deps.Limiter are non-nil;
// len(deps.CSRFKey) == 32
func NewMux(deps Deps) (http.Handler, error) {
	pages, err := loadPages()
	if err != nil {
		return nil, err
	}
	s := &server{Deps: deps, pages: pages}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	// Request flow: Timing -> RateLimit -> Visitor -> CSRF -> SecurityHeaders -> mux
	return middleware.Chain(mux,
		middleware.SecurityHeaders,
		middleware.CSRF(deps.CSRFKey, deps.SecureCookies, deps.TrustedOrigins),
		middleware.Visitor(deps.Registry, deps.SecureCookies),
		middleware.RateLimit(deps.Limiter),
		middleware.Timing(deps.Collector, deps.SlowRequest),
	), nil
}

func (s *server) registerRoutes(mux *http.ServeMux) {
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticFS())))

	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("GET /about", s.handleAbout)
	mux.HandleFunc("GET /team", s.handleTeam)
	mux.HandleFunc("GET /timeline", s.handleTimeline)
	mux.HandleFunc("GET /products", s.handleProducts)

	mux.HandleFunc("GET /consultation", s.handleConsultationPage)
	mux.HandleFunc("POST /consultation", s.handleConsultationSubmit)
	mux.HandleFunc("GET /support", s.handleSupportPage)
	mux.HandleFunc("POST /support/feedback", s.handleFeedbackSubmit)
	mux.HandleFunc("GET /profile", s.handleProfilePage)
	mux.HandleFunc("POST /profile", s.handleProfileSubmit)

	mux.HandleFunc("GET /login", s.handleLoginPage)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /signup", s.handleSignup)
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("POST /guest", s.handleGuest)

	mux.HandleFunc("GET /api/identity", s.handleIdentityAPI)
	mux.HandleFunc("POST /api/consultations", s.handleConsultationAPI)
	mux.HandleFunc("POST /api/feedback", s.handleFeedbackAPI)
	mux.HandleFunc("POST /api/profile", s.handleProfileAPI)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.PerfEnabled && s.Collector != nil {
		mux.HandleFunc("GET /api/perf", s.handlePerf)
	}
}
