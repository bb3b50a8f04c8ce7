package scrape

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"

	"jobsync-engine/internal/domain"
)

// LeverExtractor reads the public postings API
// (api.lever.co/v0/postings/<slug>?mode=json).
type LeverExtractor struct{}

type leverPosting struct {
	ID         string `json:"id"`
	Text       string `json:"text"` // title
	HostedURL  string `json:"hostedUrl"`
	CreatedAt  int64  `json:"createdAt"` // ms epoch
	Categories struct {
		Location string `json:"location"`
		Team     string `json:"team"`
	} `json:"categories"`
}

func (LeverExtractor) Extract(src domain.SourceDescriptor, body []byte) ([]domain.Posting, error) {
	var postings []leverPosting
	if err := json.Unmarshal(body, &postings); err != nil {
		return nil, errors.Wrap(err, "decode lever postings")
	}

	base, err := url.Parse(strings.TrimSpace(src.URL))
	if err != nil {
		return nil, errors.Wrapf(err, "parse source url %q", src.URL)
	}

	out := make([]domain.Posting, 0, len(postings))
	for _, p := range postings {
		link := resolveLink(base, p.HostedURL)
		if link == "" {
			continue
		}
		out = append(out, domain.Posting{Title: CleanText(p.Text), Link: link})
	}
	return dedupe(out), nil
}
