package domain

import (
	"net/url"
	"strings"
)

// DefaultCategory is applied to postings when a source does not set one.
const DefaultCategory = "network"

// SourceKind selects the extractor used for a source's listing page.
type SourceKind string

const (
	KindHTML       SourceKind = "html"
	KindGreenhouse SourceKind = "greenhouse"
	KindLever      SourceKind = "lever"
)

// SourceDescriptor describes one external job board.
// Name is the partition key for scoped catalog queries.
type SourceDescriptor struct {
	Name          string     `json:"name" yaml:"name" validate:"required"`
	URL           string     `json:"url" yaml:"url" validate:"required,http_url"`
	Company       string     `json:"company,omitempty" yaml:"company,omitempty"`
	Category      string     `json:"category,omitempty" yaml:"category,omitempty"`
	ClosedMarkers []string   `json:"closedMarkers,omitempty" yaml:"closedMarkers,omitempty"`
	Kind          SourceKind `json:"kind,omitempty" yaml:"kind,omitempty" validate:"omitempty,oneof=html greenhouse lever"`
	Selector      string     `json:"selector,omitempty" yaml:"selector,omitempty"`
	LinkContains  string     `json:"linkContains,omitempty" yaml:"linkContains,omitempty"`
	// PathPrefix limits same-host links when no Selector or LinkContains is
	// set. It defaults to the listing page's own directory.
	PathPrefix    string     `json:"pathPrefix,omitempty" yaml:"pathPrefix,omitempty" validate:"omitempty,startswith=/"`
	TokenAccount  string     `json:"tokenAccount,omitempty" yaml:"tokenAccount,omitempty"`

	// Token is resolved from the keychain at load time and never serialised.
	Token string `json:"-" yaml:"-"`
}

// ResolvedCompany returns Company, or the listing URL's hostname.
func (s SourceDescriptor) ResolvedCompany() string {
	if c := strings.TrimSpace(s.Company); c != "" {
		return c
	}
	u, err := url.Parse(strings.TrimSpace(s.URL))
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// ResolvedCategory returns Category, or DefaultCategory.
func (s SourceDescriptor) ResolvedCategory() string {
	if c := strings.TrimSpace(s.Category); c != "" {
		return c
	}
	return DefaultCategory
}

// ResolvedKind returns Kind, defaulting to KindHTML.
func (s SourceDescriptor) ResolvedKind() SourceKind {
	if s.Kind == "" {
		return KindHTML
	}
	return s.Kind
}

// Posting is one {title, link} pair found on a listing page.
type Posting struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}
