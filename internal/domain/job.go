package domain

import (
	"time"

	"github.com/cockroachdb/errors"
)

// JobRecord is the persisted catalog entity. Rows are never deleted by the
// sync engine; termination is a soft state.
type JobRecord struct {
	ID                int64      `json:"id"`
	Title             string     `json:"title"`
	Company           string     `json:"company"`
	Link              string     `json:"link"`
	Category          string     `json:"category"`
	SourceBoard       string     `json:"sourceBoard"`
	SourceURL         string     `json:"sourceUrl"`
	SourceExternalID  string     `json:"sourceExternalId"`
	Terminated        bool       `json:"terminated"`
	TerminatedAt      *time.Time `json:"terminatedAt"`
	TerminationReason *string    `json:"terminationReason"`
	LastCheckedAt     time.Time  `json:"lastCheckedAt"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`

	// pending is set while a record waits for its detail-page recheck.
	pending bool
}

// Listing carries the values a discovery pass writes onto a record.
type Listing struct {
	Title     string
	Company   string
	Link      string
	Category  string
	Source    string
	SourceURL string
}

// ErrInvariant is returned by CheckInvariants.
var ErrInvariant = errors.New("job record invariant violated")

// NewJobRecord builds an active record for a posting seen for the first time.
func NewJobRecord(l Listing, now time.Time) JobRecord {
	now = now.UTC()
	return JobRecord{
		Title:            l.Title,
		Company:          l.Company,
		Link:             l.Link,
		Category:         l.Category,
		SourceBoard:      l.Source,
		SourceURL:        l.SourceURL,
		SourceExternalID: l.Link,
		LastCheckedAt:    now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// State reports the record's lifecycle state.
func (j *JobRecord) State() Lifecycle {
	switch {
	case j.pending:
		return LifecyclePendingRecheck
	case j.Terminated:
		return LifecycleTerminated
	default:
		return LifecycleActive
	}
}

// IdentityKey returns the record's secondary (company, title) key.
func (j *JobRecord) IdentityKey() string {
	return IdentityKey(j.Company, j.Title)
}

// Rediscover applies a fresh listing to the record. Rediscovery is proof of
// life, so any termination is cleared. It reports whether the record was
// terminated before the call.
func (j *JobRecord) Rediscover(l Listing, now time.Time) (reactivated bool, err error) {
	if err := j.transition(LifecycleActive); err != nil {
		return false, err
	}
	reactivated = j.Terminated

	j.Title = l.Title
	j.Company = l.Company
	j.Link = l.Link
	j.Category = l.Category
	j.SourceBoard = l.Source
	j.SourceURL = l.SourceURL
	j.SourceExternalID = l.Link
	j.clearTermination()
	j.Touch(now)
	j.UpdatedAt = j.LastCheckedAt
	return reactivated, nil
}

// MarkPending flags an active record that the current crawl did not rediscover.
func (j *JobRecord) MarkPending() error {
	return j.transition(LifecyclePendingRecheck)
}

// ConfirmActive resolves a pending record as still open.
func (j *JobRecord) ConfirmActive(now time.Time) error {
	if err := j.transition(LifecycleActive); err != nil {
		return err
	}
	j.Touch(now)
	return nil
}

// ConfirmTerminated resolves a pending record as closed. Only pending records
// can be terminated, so a record must pass through a recheck first.
func (j *JobRecord) ConfirmTerminated(reason string, now time.Time) error {
	if err := j.transition(LifecycleTerminated); err != nil {
		return err
	}
	j.Touch(now)
	at := j.LastCheckedAt
	r := reason
	j.Terminated = true
	j.TerminatedAt = &at
	j.TerminationReason = &r
	j.UpdatedAt = at
	return nil
}

// Clone returns a copy that shares no pointers with j.
func (j JobRecord) Clone() JobRecord {
	c := j
	if j.TerminatedAt != nil {
		at := *j.TerminatedAt
		c.TerminatedAt = &at
	}
	if j.TerminationReason != nil {
		r := *j.TerminationReason
		c.TerminationReason = &r
	}
	return c
}

// Touch refreshes LastCheckedAt without letting it move backwards.
func (j *JobRecord) Touch(now time.Time) {
	now = now.UTC()
	if now.After(j.LastCheckedAt) {
		j.LastCheckedAt = now
	}
}

// CheckInvariants verifies the termination fields agree with Terminated.
func (j *JobRecord) CheckInvariants() error {
	if !j.Terminated && (j.TerminatedAt != nil || j.TerminationReason != nil) {
		return errors.Wrapf(ErrInvariant, "job %d is active but carries termination data", j.ID)
	}
	if j.Terminated && j.TerminatedAt == nil {
		return errors.Wrapf(ErrInvariant, "job %d is terminated without terminatedAt", j.ID)
	}
	return nil
}

func (j *JobRecord) clearTermination() {
	j.Terminated = false
	j.TerminatedAt = nil
	j.TerminationReason = nil
}

func (j *JobRecord) transition(to Lifecycle) error {
	from := j.State()
	if !canTransition(from, to) {
		return errors.Wrapf(ErrInvalidTransition, "%s -> %s", from, to)
	}
	j.pending = to == LifecyclePendingRecheck
	return nil
}
