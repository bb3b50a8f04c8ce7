package domain

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Lifecycle is the reconciliation state of a catalog record.
// Only active and terminated are persisted; pending_recheck lives for the
// duration of one termination-check phase.
type Lifecycle string

const (
	// LifecycleActive is an open posting.
	LifecycleActive Lifecycle = "active"
	// LifecyclePendingRecheck is an active posting missing from the latest crawl
	// whose detail page has not been classified yet.
	LifecyclePendingRecheck Lifecycle = "pending_recheck"
	// LifecycleTerminated is a posting positively confirmed closed.
	LifecycleTerminated Lifecycle = "terminated"
)

// ErrInvalidTransition is returned when a lifecycle transition is not allowed.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

var validTransitions = map[Lifecycle][]Lifecycle{
	LifecycleActive:         {LifecycleActive, LifecyclePendingRecheck},
	LifecyclePendingRecheck: {LifecycleActive, LifecycleTerminated},
	LifecycleTerminated:     {LifecycleActive},
}

func canTransition(from, to Lifecycle) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IdentityKey normalises a (company, title) pair into the fallback match key:
// trimmed, whitespace collapsed, lower-cased, joined by a unit separator.
func IdentityKey(company, title string) string {
	return normalizeKeyPart(company) + "\x1f" + normalizeKeyPart(title)
}

func normalizeKeyPart(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.Join(strings.Fields(s), " ")
	return strings.ToLower(s)
}
