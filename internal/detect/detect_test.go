package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	base := Input{
		Status:    200,
		Body:      "<html><body><h1>Network Engineer</h1><p>Apply below.</p></body></html>",
		FinalURL:  "https://acme.io/careers/eng-1",
		JobURL:    "https://acme.io/careers/eng-1",
		SourceURL: "https://acme.io/careers",
	}

	tests := []struct {
		name   string
		mutate func(in *Input)
		want   Verdict
	}{
		{
			name: "open page",
			want: Verdict{Reason: ReasonActive},
		},
		{
			name:   "not found",
			mutate: func(in *Input) { in.Status = 404 },
			want:   Verdict{Terminated: true, Reason: "http_404"},
		},
		{
			name:   "gone",
			mutate: func(in *Input) { in.Status = 410 },
			want:   Verdict{Terminated: true, Reason: "http_410"},
		},
		{
			name:   "redirected to listing",
			mutate: func(in *Input) { in.FinalURL = "https://ACME.io/careers/?utm_source=x" },
			want:   Verdict{Terminated: true, Reason: ReasonRedirectedToListing},
		},
		{
			name: "source marker absent",
			mutate: func(in *Input) {
				in.ClosedMarkers = []string{"Role   Closed"}
				in.Body = "<html><body><div class=banner>This role is closing soon</div></body></html>"
			},
			want: Verdict{Reason: ReasonActive},
		},
		{
			name: "source closed marker matches text across tags",
			mutate: func(in *Input) {
				in.ClosedMarkers = []string{"Role Closed"}
				in.Body = "<html><body><b>Role</b>\n <i>closed</i></body></html>"
			},
			want: Verdict{Terminated: true, Reason: "closed_marker:role closed"},
		},
		{
			name:   "generic marker",
			mutate: func(in *Input) { in.Body = "<p>Sorry, this position has been filled.</p>" },
			want:   Verdict{Terminated: true, Reason: "closed_marker:position has been filled"},
		},
		{
			name: "markers inside scripts are ignored",
			mutate: func(in *Input) {
				in.Body = `<html><script>var msg = "job not found";</script><body>Open role</body></html>`
			},
			want: Verdict{Reason: ReasonActive},
		},
		{
			name:   "server error is inconclusive",
			mutate: func(in *Input) { in.Status = 503; in.Body = "job not found" },
			want:   Verdict{Reason: "inconclusive_http_503"},
		},
		{
			name: "redirect to a failing listing is inconclusive",
			mutate: func(in *Input) {
				in.Status = 503
				in.FinalURL = "https://acme.io/careers"
			},
			want: Verdict{Reason: "inconclusive_http_503"},
		},
		{
			name:   "rate limited is inconclusive",
			mutate: func(in *Input) { in.Status = 429 },
			want:   Verdict{Reason: "inconclusive_http_429"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			if tt.mutate != nil {
				tt.mutate(&in)
			}
			assert.Equal(t, tt.want, Detect(in))
		})
	}
}

func TestDetect_IsPure(t *testing.T) {
	in := Input{Status: 200, Body: "no longer accepting applications", ClosedMarkers: []string{"x"}}
	first := Detect(in)
	assert.Equal(t, first, Detect(in))
	assert.Equal(t, []string{"x"}, in.ClosedMarkers)
}

func TestPageText(t *testing.T) {
	assert.Equal(t, "Title Body text", PageText("<h1>Title</h1><style>p{}</style><p>Body\n text</p>"))
}
