package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"hear/internal/application/visitor"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

const visitorContextKey contextKey = "visitor"

// VisitorCookieName names the cookie carrying the visitor id.
const VisitorCookieName = "hear_visitor"

// visitorCookieMaxAge keeps the id for a year; idle expiry happens server side.
const visitorCookieMaxAge = 365 * 24 * 60 * 60

// Visitor returns middleware that resolves the browser's visitor from its
// cookie, issuing a new id when the cookie is missing or malformed.
// Requests under /static/ are passed through untouched.
func Visitor(registry *visitor.Registry, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/static/") || r.URL.Path == "/healthz" {
				next.ServeHTTP(w, r)
				return
			}

			id := ""
			if c, err := r.Cookie(VisitorCookieName); err == nil && visitor.ValidID(c.Value) {
				id = c.Value
			}
			if id == "" {
				id = visitor.NewID()
				setVisitorCookie(w, id, secure)
			}

			v, err := registry.Resolve(r.Context(), id)
			if err != nil {
				slog.Error("internal_error", "op", "resolve_visitor", "error", err.Error())
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithVisitor(r.Context(), v)))
		})
	}
}

// GetVisitor extracts the visitor from the request context.
func GetVisitor(ctx context.Context) (*visitor.Visitor, bool) {
	v, ok := ctx.Value(visitorContextKey).(*visitor.Visitor)
	return v, ok
}

// ContextWithVisitor returns a context carrying v.
func ContextWithVisitor(ctx context.Context, v *visitor.Visitor) context.Context {
	return context.WithValue(ctx, visitorContextKey, v)
}

func setVisitorCookie(w http.ResponseWriter, id string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     VisitorCookieName,
		Value:    id,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
		MaxAge:   visitorCookieMaxAge,
	})
}
