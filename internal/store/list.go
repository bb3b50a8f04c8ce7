package store

import (
	"context"
	"sort"
	"strings"

	"jobsync-engine/internal/domain"
)

// Catalog state filters for List.
const (
	StateAll        = "all"
	StateActive     = "active"
	StateTerminated = "terminated"
)

const (
	defaultListLimit = 200
	maxListLimit     = 5000
)

// ListOptions filters and orders a catalog listing.
type ListOptions struct {
	Source string
	State  string // all | active | terminated
	Sort   string // last_checked | created | updated | company | title
	Order  string // asc | desc
	Limit  int
}

// Lister is implemented by backends that can page through the catalog.
type Lister interface {
	List(ctx context.Context, opts ListOptions) ([]domain.JobRecord, error)
}

var (
	_ Lister = (*SQLite)(nil)
	_ Lister = (*Postgres)(nil)
	_ Lister = (*Memory)(nil)
)

func (o ListOptions) normalized() ListOptions {
	switch strings.ToLower(o.State) {
	case StateActive, StateTerminated:
		o.State = strings.ToLower(o.State)
	default:
		o.State = StateAll
	}
	if strings.EqualFold(o.Order, "asc") {
		o.Order = "ASC"
	} else {
		o.Order = "DESC"
	}
	if o.Limit <= 0 {
		o.Limit = defaultListLimit
	}
	if o.Limit > maxListLimit {
		o.Limit = maxListLimit
	}
	return o
}

func (o ListOptions) sortColumn() string {
	switch o.Sort {
	case "created":
		return "created_at"
	case "updated":
		return "updated_at"
	case "company":
		return "company"
	case "title":
		return "title"
	default:
		return "last_checked_at"
	}
}

// List applies opts to the in-memory rows the same way the SQL backends do.
func (m *Memory) List(_ context.Context, opts ListOptions) ([]domain.JobRecord, error) {
	opts = opts.normalized()
	rows := m.filter(func(r domain.JobRecord) bool {
		if opts.Source != "" && r.SourceBoard != opts.Source {
			return false
		}
		switch opts.State {
		case StateActive:
			return !r.Terminated
		case StateTerminated:
			return r.Terminated
		}
		return true
	})

	compare := func(a, b domain.JobRecord) int {
		switch opts.sortColumn() {
		case "created_at":
			return a.CreatedAt.Compare(b.CreatedAt)
		case "updated_at":
			return a.UpdatedAt.Compare(b.UpdatedAt)
		case "company":
			return strings.Compare(a.Company, b.Company)
		case "title":
			return strings.Compare(a.Title, b.Title)
		default:
			return a.LastCheckedAt.Compare(b.LastCheckedAt)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		c := compare(rows[i], rows[j])
		if opts.Order == "DESC" {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
		return rows[i].ID < rows[j].ID
	})

	if len(rows) > opts.Limit {
		rows = rows[:opts.Limit]
	}
	return rows, nil
}
