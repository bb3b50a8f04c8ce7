package scrape

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobsync-engine/internal/domain"
)

const acmeListing = `<!doctype html>
<html><body>
  <nav><a href="/">Home</a><a href="#top">Top</a><a href="mailto:jobs@acme.io">Email us</a></nav>
  <ul class="openings">
    <li><a href="/careers/eng-1?utm_source=feed#apply">  Network&nbsp;Engineer </a></li>
    <li><a href="https://acme.io/careers/eng-1">Network Engineer (dup)</a></li>
    <li><a href="careers/sre-2" title="Site Reliability Engineer">Apply</a></li>
    <li><a href="/careers/ops-3">View</a></li>
    <li><a href="javascript:void(0)">Broken</a></li>
  </ul>
</body></html>`

func acme() domain.SourceDescriptor {
	return domain.SourceDescriptor{Name: "AcmeBoard", URL: "https://acme.io/"}
}

func TestHTMLExtractor_ResolvesCleansAndDedupes(t *testing.T) {
	got, err := Extract(acme(), []byte(acmeListing))
	require.NoError(t, err)

	assert.Equal(t, []domain.Posting{
		{Title: "Network Engineer", Link: "https://acme.io/careers/eng-1"},
		{Title: "Site Reliability Engineer", Link: "https://acme.io/careers/sre-2"},
	}, got)
}

func TestHTMLExtractor_LinkContainsAndSelector(t *testing.T) {
	body := `<html><body>
	  <div class="job"><h3>Backbone Architect</h3><a href="/jobs/101">Apply</a></div>
	  <div class="job"><h3>Peering Coordinator</h3><a href="/jobs/102">Apply</a></div>
	  <a href="/blog/why-we-hire">We are hiring</a>
	</body></html>`

	src := acme()
	src.LinkContains = "/jobs/"
	got, err := Extract(src, []byte(body))
	require.NoError(t, err)
	assert.Empty(t, got, "call-to-action anchors without a usable title are skipped")

	src.Selector = "div.job"
	got, err = Extract(src, []byte(body))
	require.NoError(t, err)
	assert.Equal(t, []domain.Posting{
		{Title: "Backbone Architect", Link: "https://acme.io/jobs/101"},
		{Title: "Peering Coordinator", Link: "https://acme.io/jobs/102"},
	}, got)
}

func TestHTMLExtractor_HonoursBaseHref(t *testing.T) {
	body := `<html><head><base href="https://jobs.acme.io/board/"></head>
	<body><a href="role/77">Optical Engineer</a></body></html>`

	got, err := Extract(acme(), []byte(body))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://jobs.acme.io/board/role/77", got[0].Link)
}

func TestGreenhouseKind_DefaultsToJobsFilter(t *testing.T) {
	body := `<html><body>
	  <a href="/acme/jobs/4001">Network Engineer</a>
	  <a href="/acme">Back to board</a>
	</body></html>`
	src := domain.SourceDescriptor{Name: "GH", URL: "https://boards.greenhouse.io/acme", Kind: domain.KindGreenhouse}

	got, err := Extract(src, []byte(body))
	require.NoError(t, err)
	assert.Equal(t, []domain.Posting{{Title: "Network Engineer", Link: "https://boards.greenhouse.io/acme/jobs/4001"}}, got)
}

func TestLeverExtractor(t *testing.T) {
	body := `[
	  {"id":"a1","text":"NOC Engineer","hostedUrl":"https://jobs.lever.co/acme/a1","createdAt":1700000000000},
	  {"id":"a1","text":"NOC Engineer again","hostedUrl":"https://jobs.lever.co/acme/a1"},
	  {"id":"b2","text":"","hostedUrl":"https://jobs.lever.co/acme/b2"},
	  {"id":"c3","text":"Field Tech","hostedUrl":""}
	]`
	src := domain.SourceDescriptor{Name: "Lever", URL: "https://api.lever.co/v0/postings/acme?mode=json", Kind: domain.KindLever}

	got, err := Extract(src, []byte(body))
	require.NoError(t, err)
	assert.Equal(t, []domain.Posting{{Title: "NOC Engineer", Link: "https://jobs.lever.co/acme/a1"}}, got)

	_, err = Extract(src, []byte("<html>not json</html>"))
	require.Error(t, err)
}

func TestForSource_UnknownKind(t *testing.T) {
	_, err := ForSource(domain.SourceDescriptor{Kind: "workday"})
	assert.True(t, errors.Is(err, ErrUnknownKind))
}

func TestCanonicalizeURL(t *testing.T) {
	cases := map[string]string{
		"HTTPS://Acme.IO/careers/1?utm_source=x&b=2&a=1#frag": "https://acme.io/careers/1?a=1&b=2",
		"https://acme.io/jobs?gclid=abc":                      "https://acme.io/jobs",
		"  ":                                                  "",
	}
	for in, want := range cases {
		assert.Equal(t, want, CanonicalizeURL(in), in)
	}
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "Senior Network Engineer", CleanText("  Senior Network\n\tEngineer "))
}

func TestHTMLExtractor_SkipsSiteChrome(t *testing.T) {
	body := `<html><body>
		<a href="/careers/eng-1">Network Engineer</a>
		<a href="/legal/privacy">Privacy</a>
		<a href="/terms">Terms of Service</a>
		<a href="/careers/alerts">Create a job alert</a>
		<a href="/careers/help-desk-analyst">Help Desk Analyst</a>
	</body></html>`

	got, err := Extract(acme(), []byte(body))
	require.NoError(t, err)
	assert.Equal(t, []domain.Posting{
		{Title: "Network Engineer", Link: "https://acme.io/careers/eng-1"},
		{Title: "Help Desk Analyst", Link: "https://acme.io/careers/help-desk-analyst"},
	}, got)
}

func TestHTMLExtractor_KeepsSameSiteLinksUnderListing(t *testing.T) {
	body := `<html><body>
		<nav>
		  <a href="/">Home</a>
		  <a href="/about">About us</a>
		  <a href="/blog">Blog</a>
		</nav>
		<a href="/careers/eng-1">Engineer</a>
		<a href="https://boards.example.com/acme/77">Field Technician</a>
		<a href="https://twitter.com/">Follow us</a>
		<a href="/careers?page=2">Next</a>
	</body></html>`
	src := domain.SourceDescriptor{Name: "AcmeBoard", URL: "https://acme.io/careers"}

	got, err := Extract(src, []byte(body))
	require.NoError(t, err)
	assert.Equal(t, []domain.Posting{
		{Title: "Engineer", Link: "https://acme.io/careers/eng-1"},
		{Title: "Field Technician", Link: "https://boards.example.com/acme/77"},
	}, got)
}

func TestHTMLExtractor_PathPrefix(t *testing.T) {
	body := `<html><body>
		<a href="/openings/42">Splicer</a>
		<a href="/careers/benefits">Benefits</a>
	</body></html>`
	src := domain.SourceDescriptor{Name: "AcmeBoard", URL: "https://acme.io/careers/index.html", PathPrefix: "/openings"}

	got, err := Extract(src, []byte(body))
	require.NoError(t, err)
	assert.Equal(t, []domain.Posting{{Title: "Splicer", Link: "https://acme.io/openings/42"}}, got)
}

func TestListingDir(t *testing.T) {
	for in, want := range map[string]string{
		"":                    "",
		"/":                   "/",
		"/careers":            "/careers",
		"/careers/":           "/careers/",
		"/careers/index.html": "/careers/",
		"/jobs.php":           "/",
	} {
		assert.Equal(t, want, listingDir(in), in)
	}
}
