package web

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/csrf"

	"hear/internal/adapters/content"
	"hear/internal/adapters/http/middleware"
	"hear/internal/application/visitor"
	"hear/internal/domain/identity"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static
var staticFiles embed.FS

func staticFS() fs.FS {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err) // embedded directory always exists
	}
	return sub
}

// pageSet holds one parsed template per page, each joined with the layout.
type pageSet struct {
	byName map[string]*template.Template
}

var funcMap = template.FuncMap{
	"add":  func(a, b int) int { return a + b },
	"list": func(items ...string) []string { return items },
	"renderMarkdown": func(md string) template.HTML {
		html, err := content.RenderMarkdown(md)
		if err != nil {
			return template.HTML(template.HTMLEscapeString(md))
		}
		return html
	},
	"firstRune": func(s string) string {
		for _, r := range s {
			return strings.ToUpper(string(r))
		}
		return ""
	},
}

func loadPages() (*pageSet, error) {
	names, err := fs.Glob(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	ps := &pageSet{byName: make(map[string]*template.Template)}
	for _, path := range names {
		name := strings.TrimPrefix(path, "templates/")
		if name == "layout.html" {
			continue
		}
		tpl, err := template.New("layout.html").Funcs(funcMap).ParseFS(templatesFS, "templates/layout.html", path)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		ps.byName[name] = tpl
	}
	return ps, nil
}

// page is what every template receives.
type page struct {
	Title     string
	Nav       string
	Identity  identity.Identity
	Loading   bool
	CSRFField template.HTML
	Site      *content.Site
	Data      any
}

// render executes templateName inside the layout.
func (s *server) render(w http.ResponseWriter, r *http.Request, templateName, title, nav string, data any) {
	tpl, ok := s.pages.byName[templateName]
	if !ok {
		internalError(w, "render", fmt.Errorf("unknown template %q", templateName))
		return
	}
	p := page{
		Title:     title,
		Nav:       nav,
		CSRFField: csrf.TemplateField(r),
		Site:      s.Content,
		Data:      data,
	}
	if v, ok := middleware.GetVisitor(r.Context()); ok {
		st := v.Session.Current()
		p.Identity = st.Identity
		p.Loading = st.Loading
	}

	var buf strings.Builder
	if err := tpl.Execute(&buf, p); err != nil {
		internalError(w, "render", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(buf.String()))
}

// internalError logs the real error and returns a generic message to the client.
func internalError(w http.ResponseWriter, op string, err error) {
	slog.Error("internal_error", "op", op, "error", err.Error())
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// strictDecode decodes JSON from the request body, rejecting unknown fields.
func strictDecode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// currentVisitor returns the request's visitor. The Visitor middleware runs
// on every non-static route, so a miss is a wiring bug.
func currentVisitor(w http.ResponseWriter, r *http.Request) (*visitor.Visitor, bool) {
	v, ok := middleware.GetVisitor(r.Context())
	if !ok {
		internalError(w, "current_visitor", fmt.Errorf("no visitor on %s", r.URL.Path))
	}
	return v, ok
}
