package domain

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func listing(link string) Listing {
	return Listing{
		Title:     "Engineer",
		Company:   "Acme",
		Link:      link,
		Category:  "network",
		Source:    "AcmeBoard",
		SourceURL: "https://acme.io/jobs",
	}
}

func TestNewJobRecord(t *testing.T) {
	rec := NewJobRecord(listing("https://acme.io/jobs/1"), t0)

	assert.Equal(t, LifecycleActive, rec.State())
	assert.Equal(t, "https://acme.io/jobs/1", rec.SourceExternalID)
	assert.Equal(t, t0, rec.LastCheckedAt)
	assert.Equal(t, t0, rec.CreatedAt)
	require.NoError(t, rec.CheckInvariants())
}

func TestJobRecord_TerminationRequiresRecheck(t *testing.T) {
	rec := NewJobRecord(listing("https://acme.io/jobs/1"), t0)

	err := rec.ConfirmTerminated("http_404", t0.Add(time.Hour))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.False(t, rec.Terminated)

	require.NoError(t, rec.MarkPending())
	assert.Equal(t, LifecyclePendingRecheck, rec.State())

	require.NoError(t, rec.ConfirmTerminated("http_404", t0.Add(time.Hour)))
	assert.Equal(t, LifecycleTerminated, rec.State())
	require.NotNil(t, rec.TerminatedAt)
	require.NotNil(t, rec.TerminationReason)
	assert.Equal(t, "http_404", *rec.TerminationReason)
	assert.Equal(t, t0.Add(time.Hour), *rec.TerminatedAt)
	require.NoError(t, rec.CheckInvariants())
}

func TestJobRecord_ConfirmActive(t *testing.T) {
	rec := NewJobRecord(listing("https://acme.io/jobs/1"), t0)
	require.NoError(t, rec.MarkPending())
	require.NoError(t, rec.ConfirmActive(t0.Add(time.Minute)))

	assert.Equal(t, LifecycleActive, rec.State())
	assert.Equal(t, t0.Add(time.Minute), rec.LastCheckedAt)
	assert.Equal(t, t0, rec.UpdatedAt)
}

func TestJobRecord_RediscoverClearsTermination(t *testing.T) {
	rec := NewJobRecord(listing("https://acme.io/jobs/1"), t0)
	require.NoError(t, rec.MarkPending())
	require.NoError(t, rec.ConfirmTerminated("closed_marker:filled", t0.Add(time.Hour)))

	l := listing("https://acme.io/careers/eng-1")
	l.Title = "Senior Engineer"
	reactivated, err := rec.Rediscover(l, t0.Add(2*time.Hour))
	require.NoError(t, err)

	assert.True(t, reactivated)
	assert.False(t, rec.Terminated)
	assert.Nil(t, rec.TerminatedAt)
	assert.Nil(t, rec.TerminationReason)
	assert.Equal(t, "https://acme.io/careers/eng-1", rec.Link)
	assert.Equal(t, "https://acme.io/careers/eng-1", rec.SourceExternalID)
	assert.Equal(t, "Senior Engineer", rec.Title)
	require.NoError(t, rec.CheckInvariants())

	again, err := rec.Rediscover(l, t0.Add(3*time.Hour))
	require.NoError(t, err)
	assert.False(t, again)
}

func TestJobRecord_TouchIsMonotonic(t *testing.T) {
	rec := NewJobRecord(listing("https://acme.io/jobs/1"), t0)
	rec.Touch(t0.Add(-time.Hour))
	assert.Equal(t, t0, rec.LastCheckedAt)

	rec.Touch(t0.Add(time.Second))
	assert.Equal(t, t0.Add(time.Second), rec.LastCheckedAt)
}

func TestJobRecord_TerminatedCannotGoPending(t *testing.T) {
	rec := NewJobRecord(listing("https://acme.io/jobs/1"), t0)
	require.NoError(t, rec.MarkPending())
	require.NoError(t, rec.ConfirmTerminated("http_410", t0))

	err := rec.MarkPending()
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestJobRecord_CheckInvariants(t *testing.T) {
	reason := "stale"
	rec := JobRecord{ID: 7, TerminationReason: &reason}
	assert.True(t, errors.Is(rec.CheckInvariants(), ErrInvariant))

	rec = JobRecord{ID: 8, Terminated: true}
	assert.True(t, errors.Is(rec.CheckInvariants(), ErrInvariant))
}

func TestIdentityKey(t *testing.T) {
	assert.Equal(t, IdentityKey("Acme", "Engineer"), IdentityKey("  acme ", "ENGINEER"))
	assert.Equal(t, IdentityKey("Acme Corp", "Site  Reliability\tEngineer"), IdentityKey("acme corp", "site reliability engineer"))
	assert.NotEqual(t, IdentityKey("Acme", "Engineer"), IdentityKey("Acme Engineer", ""))
}

func TestSourceDescriptorDefaults(t *testing.T) {
	src := SourceDescriptor{Name: "AcmeBoard", URL: "https://careers.acme.io/openings?team=net"}
	assert.Equal(t, "careers.acme.io", src.ResolvedCompany())
	assert.Equal(t, DefaultCategory, src.ResolvedCategory())
	assert.Equal(t, KindHTML, src.ResolvedKind())

	src.Company = "Acme"
	src.Category = "backbone"
	src.Kind = KindLever
	assert.Equal(t, "Acme", src.ResolvedCompany())
	assert.Equal(t, "backbone", src.ResolvedCategory())
	assert.Equal(t, KindLever, src.ResolvedKind())
}
