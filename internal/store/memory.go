package store

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"jobsync-engine/internal/domain"
)

var _ JobStore = (*Memory)(nil)

// Memory is an in-memory JobStore. Records are cloned on the way in and out.
type Memory struct {
	mu     sync.RWMutex
	rows   map[int64]domain.JobRecord
	nextID int64
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{rows: make(map[int64]domain.JobRecord), nextID: 1}
}

func (m *Memory) FindByLinks(_ context.Context, links []string) ([]domain.JobRecord, error) {
	if len(links) == 0 {
		return nil, nil
	}
	return m.filter(linkIn(links)), nil
}

func (m *Memory) FindByCompanyTitle(_ context.Context, company, title string) ([]domain.JobRecord, error) {
	return m.filter(identityIs(company, title)), nil
}

func (m *Memory) FindBySource(_ context.Context, source string) ([]domain.JobRecord, error) {
	return m.filter(sourceIs(source)), nil
}

func (m *Memory) Insert(_ context.Context, rec domain.JobRecord) (domain.JobRecord, error) {
	if err := checkWritable(rec); err != nil {
		return domain.JobRecord{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec.ID = m.nextID
	m.nextID++
	m.rows[rec.ID] = rec.Clone()
	return rec, nil
}

func (m *Memory) Update(_ context.Context, rec domain.JobRecord) error {
	if err := checkWritable(rec); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rows[rec.ID]; !ok {
		return errors.Wrapf(ErrNotFound, "id %d", rec.ID)
	}
	m.rows[rec.ID] = rec.Clone()
	return nil
}

// All returns every row ordered by id.
func (m *Memory) All() []domain.JobRecord {
	return m.filter(func(domain.JobRecord) bool { return true })
}

func (m *Memory) filter(keep func(domain.JobRecord) bool) []domain.JobRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.JobRecord
	for _, r := range m.rows {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	sortRows(out)
	return out
}
