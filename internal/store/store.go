// Package store persists the job catalog. Every backend implements JobStore;
// Overlay wraps one for dry runs.
package store

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"

	"jobsync-engine/internal/domain"
)

// ErrNotFound is returned by Update when no row has the record's id.
var ErrNotFound = errors.New("store: job not found")

// JobStore is the catalog contract the reconciler depends on. There is no
// bulk write; each Insert and Update stands alone.
type JobStore interface {
	// FindByLinks returns every row whose link is any of links.
	FindByLinks(ctx context.Context, links []string) ([]domain.JobRecord, error)
	// FindByCompanyTitle returns rows whose normalised (company, title) key
	// equals that of the arguments.
	FindByCompanyTitle(ctx context.Context, company, title string) ([]domain.JobRecord, error)
	// FindBySource returns every row tagged with the source name.
	FindBySource(ctx context.Context, source string) ([]domain.JobRecord, error)
	// Insert stores a new row and returns it with its assigned id.
	Insert(ctx context.Context, rec domain.JobRecord) (domain.JobRecord, error)
	// Update overwrites the row with rec.ID.
	Update(ctx context.Context, rec domain.JobRecord) error
}

// Match predicates shared by the in-memory stores.

func linkIn(links []string) func(domain.JobRecord) bool {
	set := make(map[string]bool, len(links))
	for _, l := range links {
		set[l] = true
	}
	return func(r domain.JobRecord) bool { return set[r.Link] }
}

func identityIs(company, title string) func(domain.JobRecord) bool {
	key := domain.IdentityKey(company, title)
	return func(r domain.JobRecord) bool { return r.IdentityKey() == key }
}

func sourceIs(source string) func(domain.JobRecord) bool {
	return func(r domain.JobRecord) bool { return r.SourceBoard == source }
}

// sortRows orders persisted rows by id, then staged rows (negative ids) in
// insertion order.
func sortRows(rows []domain.JobRecord) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].ID, rows[j].ID
		if (a < 0) != (b < 0) {
			return a > 0
		}
		if a < 0 {
			return a > b
		}
		return a < b
	})
}

func checkWritable(rec domain.JobRecord) error {
	if err := rec.CheckInvariants(); err != nil {
		return err
	}
	if rec.Link == "" {
		return errors.Wrap(domain.ErrInvariant, "job link is empty")
	}
	return nil
}
