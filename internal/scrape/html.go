package scrape

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"

	"jobsync-engine/internal/domain"
)

const defaultSelector = "a[href]"

// HTMLExtractor pulls postings out of anchors on a listing page.
//
// The source's Selector narrows which elements are considered (an element
// that is not itself a link contributes its first descendant link), and
// LinkContains filters links by substring. DefaultLinkContains applies when
// the source sets no filter of its own. With neither a selector nor a filter,
// same-host links must sit under the source's PathPrefix, which defaults to
// the listing page's directory.
type HTMLExtractor struct {
	DefaultLinkContains string
}

func (h HTMLExtractor) Extract(src domain.SourceDescriptor, body []byte) ([]domain.Posting, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "parse listing html")
	}

	base, err := url.Parse(strings.TrimSpace(src.URL))
	if err != nil {
		return nil, errors.Wrapf(err, "parse source url %q", src.URL)
	}
	source := *base
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = b
		}
	}
	listing := CanonicalizeURL(base.String())

	sel := strings.TrimSpace(src.Selector)
	if sel == "" {
		sel = defaultSelector
	}
	filter := strings.ToLower(strings.TrimSpace(src.LinkContains))
	if filter == "" {
		filter = strings.ToLower(h.DefaultLinkContains)
	}
	// an explicit selector or filter already says what a posting looks like
	var scope *linkScope
	if filter == "" && strings.TrimSpace(src.Selector) == "" {
		scope = newLinkScope(&source, src.PathPrefix)
	}

	var out []domain.Posting
	doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
		a := s
		if _, ok := a.Attr("href"); !ok {
			a = s.Find("a[href]").First()
		}
		href, ok := a.Attr("href")
		if !ok {
			return
		}

		link := resolveLink(base, href)
		if link == "" || link == listing || isBoilerplateLink(link) || isNavigationLink(link, &source) {
			return
		}
		if scope != nil && !scope.allows(link) {
			return
		}
		if filter != "" && !strings.Contains(strings.ToLower(link), filter) {
			return
		}

		title := anchorTitle(s, a)
		if title == "" {
			return
		}
		out = append(out, domain.Posting{Title: title, Link: link})
	})

	return dedupe(out), nil
}

// anchorTitle picks the first usable title. For a container element the
// order is heading, link text, link attributes, whole container text.
func anchorTitle(s, a *goquery.Selection) string {
	var candidates []string
	if s != a {
		candidates = append(candidates, CleanText(s.Find(headingSelector).First().Text()))
	}
	candidates = append(candidates, CleanText(a.Text()))
	for _, attr := range []string{"title", "aria-label"} {
		if v, ok := a.Attr(attr); ok {
			candidates = append(candidates, CleanText(v))
		}
	}
	if s != a {
		candidates = append(candidates, CleanText(s.Text()))
	}
	for _, c := range candidates {
		if c != "" && !looksLikeJunkTitle(c) {
			return c
		}
	}
	return ""
}

const headingSelector = "h1, h2, h3, h4, h5, h6, [class*='title']"

var junkTitles = map[string]bool{
	"apply":       true,
	"apply now":   true,
	"view":        true,
	"view job":    true,
	"view role":   true,
	"details":     true,
	"learn more":  true,
	"read more":   true,
	"more":        true,
	"see details": true,
}

func looksLikeJunkTitle(t string) bool {
	l := strings.ToLower(strings.TrimRight(t, " >»→."))
	return junkTitles[l]
}

// boilerplateSegments are path segments of site chrome that shows up next
// to postings on most listing pages.
var boilerplateSegments = map[string]bool{
	"privacy":        true,
	"privacy-policy": true,
	"terms":          true,
	"legal":          true,
	"help":           true,
	"login":          true,
	"signin":         true,
	"sign-in":        true,
	"unsubscribe":    true,
	"cookie-policy":  true,
	"alerts":         true,
	"settings":       true,
}

func isBoilerplateLink(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return true
	}
	for _, seg := range strings.Split(strings.ToLower(u.Path), "/") {
		if boilerplateSegments[seg] {
			return true
		}
	}
	return false
}

// isNavigationLink reports links that lead back to the site rather than to a
// posting: the host root, and the listing page itself under another query
// string (pagination, sorting).
func isNavigationLink(link string, source *url.URL) bool {
	u, err := url.Parse(link)
	if err != nil {
		return true
	}
	if u.Path == "" || u.Path == "/" {
		return true
	}
	return strings.EqualFold(u.Host, source.Host) &&
		strings.TrimSuffix(u.Path, "/") == strings.TrimSuffix(source.Path, "/")
}

// linkScope keeps same-host links under a path prefix. Links to other hosts
// pass, since aggregator boards list postings hosted elsewhere.
type linkScope struct {
	host   string
	prefix string
}

func newLinkScope(source *url.URL, prefix string) *linkScope {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = listingDir(source.Path)
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &linkScope{host: strings.ToLower(source.Host), prefix: strings.ToLower(prefix)}
}

func (s *linkScope) allows(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	if strings.ToLower(u.Host) != s.host {
		return true
	}
	return strings.HasPrefix(strings.ToLower(u.Path), s.prefix)
}

// listingDir is the directory postings are expected under: /careers for
// /careers and /careers/, / for /jobs.html.
func listingDir(p string) string {
	if p == "" || strings.HasSuffix(p, "/") {
		return p
	}
	i := strings.LastIndex(p, "/")
	if strings.Contains(p[i+1:], ".") {
		return p[:i+1]
	}
	return p
}
