// Package content loads the site's static copy from an embedded YAML file.
package content

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"
	"gopkg.in/yaml.v3"

	"hear/internal/domain/consultation"
)

//go:embed site.yaml
var siteYAML []byte

// Raw HTML in Markdown input is escaped (WithUnsafe is NOT set).
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// Slide is one hero carousel slide.
type Slide struct {
	Title string `yaml:"title"`
	Desc  string `yaml:"desc"`
}

// Milestone is one step of the company timeline.
type Milestone struct {
	Year  string `yaml:"year"`
	Title string `yaml:"title"`
	Desc  string `yaml:"desc"`
}

// Member is one person on the team page.
type Member struct {
	Name        string `yaml:"name"`
	Position    string `yaml:"position"`
	Description string `yaml:"description"`
	LinkedIn    string `yaml:"linkedin"`
	Highlight   bool   `yaml:"highlight"`
}

// Tile is a card on the support page. Tiles without a link are shown inactive.
type Tile struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Link        string `yaml:"link"`
}

// FAQ is a question and its Markdown answer.
type FAQ struct {
	Question string        `yaml:"question"`
	Answer   string        `yaml:"answer"`
	HTML     template.HTML `yaml:"-"`
}

// Step is one "what happens next" item after booking.
type Step struct {
	Title string `yaml:"title"`
	Desc  string `yaml:"desc"`
}

// Site is all static copy.
type Site struct {
	Brand     string        `yaml:"brand"`
	Tagline   string        `yaml:"tagline"`
	Hero      []Slide       `yaml:"hero"`
	About     string        `yaml:"about"`
	AboutHTML template.HTML `yaml:"-"`
	Timeline  []Milestone   `yaml:"timeline"`
	Team      []Member      `yaml:"team"`
	Products  struct {
		Title string `yaml:"title"`
		Body  string `yaml:"body"`
	} `yaml:"products"`
	Consultation struct {
		Title     string `yaml:"title"`
		NextSteps []Step `yaml:"next_steps"`
	} `yaml:"consultation"`
	Support struct {
		Heading string `yaml:"heading"`
		Tiles   []Tile `yaml:"tiles"`
		FAQs    []FAQ  `yaml:"faqs"`
	} `yaml:"support"`
	Contact struct {
		Email    string `yaml:"email"`
		Phone    string `yaml:"phone"`
		Address  string `yaml:"address"`
		LinkedIn string `yaml:"linkedin"`
	} `yaml:"contact"`
	// Locations are the choices offered by the consultation form.
	Locations []string `yaml:"-"`
}

// Load parses the embedded site copy.
// POST: Markdown fields have their HTML rendered
func Load() (*Site, error) {
	return Parse(siteYAML)
}

// Parse decodes site copy from data.
func Parse(data []byte) (*Site, error) {
	var s Site
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse site content: %w", err)
	}
	if len(s.Hero) == 0 {
		return nil, fmt.Errorf("parse site content: no hero slides")
	}
	var err error
	if s.AboutHTML, err = RenderMarkdown(s.About); err != nil {
		return nil, fmt.Errorf("render about: %w", err)
	}
	for i := range s.Support.FAQs {
		if s.Support.FAQs[i].HTML, err = RenderMarkdown(s.Support.FAQs[i].Answer); err != nil {
			return nil, fmt.Errorf("render faq %d: %w", i, err)
		}
	}
	s.Locations = consultation.Locations
	return &s, nil
}

// RenderMarkdown converts md to HTML.
func RenderMarkdown(md string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
