// Package scrape turns a listing page into postings. Every returned link is
// absolute and canonical.
package scrape

import (
	"github.com/cockroachdb/errors"

	"jobsync-engine/internal/domain"
)

// ErrUnknownKind is returned by ForSource for a kind with no extractor.
var ErrUnknownKind = errors.New("scrape: unknown source kind")

// Extractor parses a fetched listing page body.
type Extractor interface {
	Extract(src domain.SourceDescriptor, body []byte) ([]domain.Posting, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(src domain.SourceDescriptor, body []byte) ([]domain.Posting, error)

func (f ExtractorFunc) Extract(src domain.SourceDescriptor, body []byte) ([]domain.Posting, error) {
	return f(src, body)
}

// ForSource picks the extractor for the source's kind.
func ForSource(src domain.SourceDescriptor) (Extractor, error) {
	switch src.ResolvedKind() {
	case domain.KindHTML:
		return HTMLExtractor{}, nil
	case domain.KindGreenhouse:
		return HTMLExtractor{DefaultLinkContains: "/jobs/"}, nil
	case domain.KindLever:
		return LeverExtractor{}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownKind, "%q", src.Kind)
	}
}

// Extract runs the extractor matching src.
func Extract(src domain.SourceDescriptor, body []byte) ([]domain.Posting, error) {
	ex, err := ForSource(src)
	if err != nil {
		return nil, err
	}
	return ex.Extract(src, body)
}

// dedupe keeps the first posting per link and drops empty links or titles.
func dedupe(in []domain.Posting) []domain.Posting {
	seen := make(map[string]bool, len(in))
	out := make([]domain.Posting, 0, len(in))
	for _, p := range in {
		if p.Link == "" || p.Title == "" || seen[p.Link] {
			continue
		}
		seen[p.Link] = true
		out = append(out, p)
	}
	return out
}
