package web

import "net/http"

// handleHome renders the landing page: hero carousel, about, timeline and team.
func (s *server) handleHome(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "home.html", s.Content.Brand, "home", nil)
}

func (s *server) handleAbout(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "about.html", "About", "about", nil)
}

func (s *server) handleTeam(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "team.html", "Our Team", "team", nil)
}

func (s *server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "timeline.html", "Our Journey", "timeline", nil)
}

func (s *server) handleProducts(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "products.html", "Products", "products", nil)
}
