package store

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"jobsync-engine/internal/domain"
)

var _ JobStore = (*Overlay)(nil)

// Overlay stages writes in memory on top of a read-only base store. Reads
// see base rows with staged writes applied, so a dry run makes the same
// decisions a live run would, across every source of the run. The base is
// never written.
type Overlay struct {
	base JobStore

	mu     sync.RWMutex
	staged map[int64]domain.JobRecord
	nextID int64
}

// NewOverlay wraps base. Rows inserted through the overlay get negative ids.
func NewOverlay(base JobStore) *Overlay {
	return &Overlay{
		base:   base,
		staged: make(map[int64]domain.JobRecord),
		nextID: -1,
	}
}

func (o *Overlay) FindByLinks(ctx context.Context, links []string) ([]domain.JobRecord, error) {
	if len(links) == 0 {
		return nil, nil
	}
	rows, err := o.base.FindByLinks(ctx, links)
	if err != nil {
		return nil, err
	}
	return o.merge(rows, linkIn(links)), nil
}

func (o *Overlay) FindByCompanyTitle(ctx context.Context, company, title string) ([]domain.JobRecord, error) {
	rows, err := o.base.FindByCompanyTitle(ctx, company, title)
	if err != nil {
		return nil, err
	}
	return o.merge(rows, identityIs(company, title)), nil
}

func (o *Overlay) FindBySource(ctx context.Context, source string) ([]domain.JobRecord, error) {
	rows, err := o.base.FindBySource(ctx, source)
	if err != nil {
		return nil, err
	}
	return o.merge(rows, sourceIs(source)), nil
}

func (o *Overlay) Insert(_ context.Context, rec domain.JobRecord) (domain.JobRecord, error) {
	if err := checkWritable(rec); err != nil {
		return domain.JobRecord{}, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	rec.ID = o.nextID
	o.nextID--
	o.staged[rec.ID] = rec.Clone()
	return rec, nil
}

// Update stages rec. Base rows are not re-read, so updating an id the base
// does not hold is only caught for overlay-assigned ids.
func (o *Overlay) Update(_ context.Context, rec domain.JobRecord) error {
	if err := checkWritable(rec); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.staged[rec.ID]; rec.ID <= 0 && !ok {
		return errors.Wrapf(ErrNotFound, "id %d", rec.ID)
	}
	o.staged[rec.ID] = rec.Clone()
	return nil
}

// Staged reports how many rows the overlay holds writes for.
func (o *Overlay) Staged() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.staged)
}

// merge replaces base rows that have staged versions, drops them when the
// staged version no longer matches, and adds staged rows that now match.
func (o *Overlay) merge(base []domain.JobRecord, keep func(domain.JobRecord) bool) []domain.JobRecord {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]domain.JobRecord, 0, len(base))
	for _, r := range base {
		if _, ok := o.staged[r.ID]; ok {
			continue
		}
		out = append(out, r)
	}
	for _, r := range o.staged {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	sortRows(out)
	return out
}
