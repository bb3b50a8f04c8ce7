// Package detect classifies a re-fetched job detail page as closed or still
// open. Detect is pure: the same input always yields the same verdict.
package detect

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"jobsync-engine/internal/scrape"
)

// Input is one detail-page fetch result plus the context needed to judge it.
type Input struct {
	Status        int
	Body          string
	FinalURL      string
	JobURL        string
	SourceURL     string
	ClosedMarkers []string
}

// Verdict is the classification of a detail page.
type Verdict struct {
	Terminated bool   `json:"terminated"`
	Reason     string `json:"reason"`
}

const (
	ReasonActive              = "active"
	ReasonRedirectedToListing = "redirected_to_listing"
)

// GenericClosedMarkers are phrases boards commonly show on closed postings.
var GenericClosedMarkers = []string{
	"no longer accepting applications",
	"position has been filled",
	"job not found",
	"this job is no longer available",
	"this position is no longer available",
	"job posting has expired",
	"this job has expired",
	"posting has been closed",
}

// Detect applies the rules in order: gone statuses, any other non-2xx
// (inconclusive, the job stays active), redirect back to the listing page,
// closed markers in the page text, then active. Only 404 and 410 terminate
// without a 2xx page to back them.
func Detect(in Input) Verdict {
	switch in.Status {
	case 404, 410:
		return Verdict{Terminated: true, Reason: fmt.Sprintf("http_%d", in.Status)}
	}

	// a failing page proves nothing, wherever the redirect chain ended
	if in.Status < 200 || in.Status >= 300 {
		return Verdict{Reason: fmt.Sprintf("inconclusive_http_%d", in.Status)}
	}

	if redirectedToListing(in) {
		return Verdict{Terminated: true, Reason: ReasonRedirectedToListing}
	}

	text := strings.ToLower(PageText(in.Body))
	if m := firstMarker(text, in.ClosedMarkers); m != "" {
		return Verdict{Terminated: true, Reason: "closed_marker:" + m}
	}
	if m := firstMarker(text, GenericClosedMarkers); m != "" {
		return Verdict{Terminated: true, Reason: "closed_marker:" + m}
	}

	return Verdict{Reason: ReasonActive}
}

func redirectedToListing(in Input) bool {
	if in.FinalURL == "" || in.SourceURL == "" {
		return false
	}
	final := scrape.CanonicalizeURL(in.FinalURL)
	if final == scrape.CanonicalizeURL(in.JobURL) {
		return false
	}
	return strings.TrimSuffix(final, "/") == strings.TrimSuffix(scrape.CanonicalizeURL(in.SourceURL), "/")
}

func firstMarker(text string, markers []string) string {
	for _, m := range markers {
		m = strings.ToLower(scrape.CleanText(m))
		if m != "" && strings.Contains(text, m) {
			return m
		}
	}
	return ""
}

// PageText returns the visible text of an HTML document with whitespace
// collapsed. Bodies that are not HTML come back cleaned but otherwise as-is.
func PageText(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return scrape.CleanText(body)
	}
	doc.Find("script, style, noscript, template").Remove()

	var b strings.Builder
	for _, n := range doc.Nodes {
		writeText(&b, n)
	}
	return scrape.CleanText(b.String())
}

// writeText separates text nodes with a space so adjacent elements do not
// run together the way Selection.Text joins them.
func writeText(b *strings.Builder, n *html.Node) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		b.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
}
