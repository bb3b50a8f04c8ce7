// Package reconcile diffs crawled postings against the job catalog.
//
// A source is reconciled in two phases. Discovery inserts new postings and
// refreshes rediscovered ones. The termination check then re-fetches every
// active row of the source that discovery did not see, and terminates it
// only when its own detail page is positively classified as closed.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jobsync-engine/internal/detect"
	"jobsync-engine/internal/domain"
	"jobsync-engine/internal/fetch"
	"jobsync-engine/internal/logger"
	"jobsync-engine/internal/scrape"
	"jobsync-engine/internal/store"
)

// Fetcher is the network dependency. *fetch.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts ...fetch.RequestOption) (*fetch.Response, error)
}

// Run is the state shared by every source of one sync: the catalog, the
// lock that serialises catalog access, and which source rediscovered which
// row during this run.
type Run struct {
	Store store.JobStore

	mu     sync.Mutex
	owners map[int64]string
}

// NewRun starts run state over st.
func NewRun(st store.JobStore) *Run {
	return &Run{Store: st, owners: make(map[int64]string)}
}

// Reconciler reconciles one source at a time against a Run.
type Reconciler struct {
	fetcher            Fetcher
	extract            func(domain.SourceDescriptor, []byte) ([]domain.Posting, error)
	detect             func(detect.Input) detect.Verdict
	now                func() time.Time
	recheckConcurrency int
	log                *zap.SugaredLogger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithExtractor replaces the link extractor.
func WithExtractor(fn func(domain.SourceDescriptor, []byte) ([]domain.Posting, error)) Option {
	return func(r *Reconciler) { r.extract = fn }
}

// WithDetector replaces the termination detector.
func WithDetector(fn func(detect.Input) detect.Verdict) Option {
	return func(r *Reconciler) { r.detect = fn }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithRecheckConcurrency bounds parallel detail-page rechecks. 1 is sequential.
func WithRecheckConcurrency(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.recheckConcurrency = n
		}
	}
}

// New builds a Reconciler using the scrape extractors and detect.Detect.
func New(f Fetcher, opts ...Option) *Reconciler {
	r := &Reconciler{
		fetcher:            f,
		extract:            scrape.Extract,
		detect:             detect.Detect,
		now:                time.Now,
		recheckConcurrency: 1,
		log:                logger.ComponentLogger("reconcile"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// pass is one source's bookkeeping between the two phases.
type pass struct {
	src       domain.SourceDescriptor
	log       *zap.SugaredLogger
	sum       *SourceRunSummary
	scoped    []domain.JobRecord
	seenLinks map[string]bool
	seenIDs   map[int64]bool
}

// Reconcile runs both phases for src. Failures become summary errors; the
// termination check only runs when discovery completed.
func (r *Reconciler) Reconcile(ctx context.Context, run *Run, src domain.SourceDescriptor) SourceRunSummary {
	sum := newSourceSummary(src.Name)
	p := &pass{
		src:       src,
		log:       r.log.With(logger.FieldSource, src.Name),
		sum:       &sum,
		seenLinks: make(map[string]bool),
		seenIDs:   make(map[int64]bool),
	}

	if !r.discover(ctx, run, p) {
		return sum
	}
	r.recheck(ctx, run, p)
	return sum
}

func (r *Reconciler) bearer(src domain.SourceDescriptor) []fetch.RequestOption {
	if src.Token == "" {
		return nil
	}
	return []fetch.RequestOption{fetch.WithBearerToken(src.Token)}
}

// discover is phase one. It reports whether phase two may run.
func (r *Reconciler) discover(ctx context.Context, run *Run, p *pass) bool {
	resp, err := r.fetcher.Fetch(ctx, p.src.URL, r.bearer(p.src)...)
	if err != nil {
		p.log.Warnw("listing fetch failed", logger.FieldError, err)
		p.sum.errorf("fetch listing %s: %v", p.src.URL, err)
		return false
	}
	if !resp.OK() {
		p.log.Warnw("listing fetch returned non-2xx", logger.FieldStatus, resp.Status)
		p.sum.errorf("fetch listing %s: HTTP %d", p.src.URL, resp.Status)
		return false
	}

	postings, err := r.extract(p.src, resp.Body)
	if err != nil {
		p.sum.errorf("extract postings from %s: %v", p.src.URL, err)
		return false
	}
	p.sum.Discovered = len(postings)

	links := make([]string, 0, len(postings))
	discovered := make(map[string]bool, len(postings))
	for _, post := range postings {
		if !discovered[post.Link] {
			links = append(links, post.Link)
		}
		discovered[post.Link] = true
	}

	run.mu.Lock()
	defer run.mu.Unlock()

	global, err := run.Store.FindByLinks(ctx, links)
	if err != nil {
		p.sum.errorf("load catalog rows by link: %v", err)
		return false
	}
	p.scoped, err = run.Store.FindBySource(ctx, p.src.Name)
	if err != nil {
		p.sum.errorf("load catalog rows for source: %v", err)
		return false
	}

	byLink := r.indexByLink(p, global)
	company := p.src.ResolvedCompany()
	category := p.src.ResolvedCategory()

	for _, post := range postings {
		l := domain.Listing{
			Title:     post.Title,
			Company:   company,
			Link:      post.Link,
			Category:  category,
			Source:    p.src.Name,
			SourceURL: p.src.URL,
		}
		p.seenLinks[post.Link] = true

		existing, ok := byLink[post.Link]
		if !ok {
			existing, ok, err = r.fallback(ctx, run, p, l, discovered)
			if err != nil {
				// inserting now could duplicate a row the lookup would have found
				p.sum.errorf("fallback lookup for %s: %v", post.Link, err)
				continue
			}
		}
		if !ok {
			rec, err := run.Store.Insert(ctx, domain.NewJobRecord(l, r.now()))
			if err != nil {
				p.sum.errorf("insert %s: %v", post.Link, err)
				continue
			}
			p.sum.Inserted++
			byLink[rec.Link] = rec
			run.owners[rec.ID] = p.src.Name
			p.seenIDs[rec.ID] = true
			continue
		}

		rec, err := r.refresh(ctx, run, p, existing, l)
		if err != nil {
			p.sum.errorf("update job %d (%s): %v", existing.ID, post.Link, err)
			continue
		}
		byLink[rec.Link] = rec
	}
	return true
}

// indexByLink maps each link to one row. Links the store holds more than
// once are reported; the preferred row wins.
func (r *Reconciler) indexByLink(p *pass, rows []domain.JobRecord) map[string]domain.JobRecord {
	var order []string
	grouped := make(map[string][]domain.JobRecord, len(rows))
	for _, rec := range rows {
		if _, ok := grouped[rec.Link]; !ok {
			order = append(order, rec.Link)
		}
		grouped[rec.Link] = append(grouped[rec.Link], rec)
	}
	out := make(map[string]domain.JobRecord, len(grouped))
	for _, link := range order {
		recs := grouped[link]
		if len(recs) > 1 {
			p.log.Warnw("duplicate catalog rows for link", logger.FieldLink, link, logger.FieldCount, len(recs))
			p.sum.warnf("duplicate catalog rows for link %s: ids %s", link, idList(recs))
		}
		out[link] = pick(recs)
	}
	return out
}

// fallback resolves a link miss by the (company, title) identity key. Rows
// already rediscovered this run and rows whose own link is being crawled
// this pass are not eligible.
func (r *Reconciler) fallback(ctx context.Context, run *Run, p *pass, l domain.Listing, discovered map[string]bool) (domain.JobRecord, bool, error) {
	cands, err := run.Store.FindByCompanyTitle(ctx, l.Company, l.Title)
	if err != nil {
		return domain.JobRecord{}, false, err
	}

	eligible := cands[:0]
	for _, c := range cands {
		if _, claimed := run.owners[c.ID]; claimed || discovered[c.Link] {
			continue
		}
		eligible = append(eligible, c)
	}
	if len(eligible) == 0 {
		return domain.JobRecord{}, false, nil
	}

	chosen := pick(eligible)
	if len(eligible) > 1 {
		p.log.Warnw("ambiguous fallback match",
			logger.FieldLink, l.Link, "company", l.Company, "title", l.Title,
			logger.FieldCount, len(eligible), logger.FieldJobID, chosen.ID)
		p.sum.warnf("ambiguous fallback match for %q at %q: ids %s, picked %d",
			l.Title, l.Company, idList(eligible), chosen.ID)
	}
	p.log.Debugw("fallback match", logger.FieldJobID, chosen.ID, "old_link", chosen.Link, logger.FieldLink, l.Link)
	return chosen, true, nil
}

// refresh applies a rediscovery to rec and persists it.
func (r *Reconciler) refresh(ctx context.Context, run *Run, p *pass, rec domain.JobRecord, l domain.Listing) (domain.JobRecord, error) {
	// a row another source already rediscovered this run keeps its owner
	if owner, ok := run.owners[rec.ID]; ok && owner != p.src.Name {
		l.Source = rec.SourceBoard
		l.SourceURL = rec.SourceURL
	}

	reactivated, err := rec.Rediscover(l, r.now())
	if err != nil {
		return rec, err
	}
	if err := run.Store.Update(ctx, rec); err != nil {
		return rec, err
	}

	p.sum.Updated++
	if reactivated {
		p.sum.Reactivated++
		p.log.Infow("job reactivated", logger.FieldJobID, rec.ID, logger.FieldLink, rec.Link)
	}
	if _, ok := run.owners[rec.ID]; !ok {
		run.owners[rec.ID] = p.src.Name
	}
	p.seenIDs[rec.ID] = true
	return rec, nil
}

type recheckResult struct {
	checked    bool
	terminated bool
	errMsg     string
}

// recheck is phase two.
func (r *Reconciler) recheck(ctx context.Context, run *Run, p *pass) {
	var candidates []domain.JobRecord
	run.mu.Lock()
	for _, rec := range p.scoped {
		if rec.Terminated || p.seenLinks[rec.Link] || p.seenIDs[rec.ID] {
			continue
		}
		if _, claimed := run.owners[rec.ID]; claimed {
			continue
		}
		candidates = append(candidates, rec)
	}
	run.mu.Unlock()

	if len(candidates) == 0 {
		return
	}

	results := make([]recheckResult, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.recheckConcurrency)
	for i := range candidates {
		i := i
		g.Go(func() error {
			defer func() {
				if rec := recover(); rec != nil {
					results[i] = recheckResult{checked: true, errMsg: fmt.Sprintf("recheck job %d: unexpected failure: %v", candidates[i].ID, rec)}
				}
			}()
			results[i] = r.recheckOne(gctx, run, p, candidates[i])
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		if res.checked {
			p.sum.Checked++
		}
		if res.terminated {
			p.sum.Terminated++
		}
		if res.errMsg != "" {
			p.sum.Errors = append(p.sum.Errors, res.errMsg)
		}
	}
}

func (r *Reconciler) recheckOne(ctx context.Context, run *Run, p *pass, rec domain.JobRecord) recheckResult {
	res := recheckResult{checked: true}

	if err := rec.MarkPending(); err != nil {
		res.errMsg = fmt.Sprintf("recheck job %d: %v", rec.ID, err)
		return res
	}

	resp, fetchErr := r.fetcher.Fetch(ctx, rec.Link, r.bearer(p.src)...)
	now := r.now()

	var verdict detect.Verdict
	if fetchErr != nil {
		res.errMsg = fmt.Sprintf("recheck %s: %v", rec.Link, fetchErr)
		p.log.Warnw("detail fetch failed", logger.FieldJobID, rec.ID, logger.FieldLink, rec.Link, logger.FieldError, fetchErr)
	} else {
		verdict = r.detect(detect.Input{
			Status:        resp.Status,
			Body:          string(resp.Body),
			FinalURL:      resp.FinalURL,
			JobURL:        rec.Link,
			SourceURL:     p.src.URL,
			ClosedMarkers: p.src.ClosedMarkers,
		})
	}

	var err error
	if verdict.Terminated {
		err = rec.ConfirmTerminated(verdict.Reason, now)
	} else {
		err = rec.ConfirmActive(now)
	}
	if err != nil {
		res.errMsg = joinMsg(res.errMsg, fmt.Sprintf("recheck job %d: %v", rec.ID, err))
		return res
	}

	persisted, err := r.persistRecheck(ctx, run, p, rec)
	if err != nil {
		res.errMsg = joinMsg(res.errMsg, fmt.Sprintf("persist recheck of job %d: %v", rec.ID, err))
		return res
	}
	if persisted && verdict.Terminated {
		res.terminated = true
		p.log.Infow("job terminated", logger.FieldJobID, rec.ID, logger.FieldLink, rec.Link, logger.FieldReason, verdict.Reason)
	}
	return res
}

// persistRecheck writes a recheck outcome unless the row changed hands while
// its detail page was being fetched.
func (r *Reconciler) persistRecheck(ctx context.Context, run *Run, p *pass, rec domain.JobRecord) (bool, error) {
	run.mu.Lock()
	defer run.mu.Unlock()

	if _, claimed := run.owners[rec.ID]; claimed {
		return false, nil
	}
	current, err := run.Store.FindByLinks(ctx, []string{rec.Link})
	if err != nil {
		return false, err
	}
	var still bool
	for _, c := range current {
		if c.ID == rec.ID && c.SourceBoard == p.src.Name && !c.Terminated {
			still = true
			break
		}
	}
	if !still {
		p.log.Debugw("row changed during recheck, skipping write", logger.FieldJobID, rec.ID)
		return false, nil
	}
	return true, run.Store.Update(ctx, rec)
}

// pick prefers active rows, then the most recently checked, then the oldest id.
func pick(recs []domain.JobRecord) domain.JobRecord {
	sorted := append([]domain.JobRecord(nil), recs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Terminated != b.Terminated {
			return !a.Terminated
		}
		if !a.LastCheckedAt.Equal(b.LastCheckedAt) {
			return a.LastCheckedAt.After(b.LastCheckedAt)
		}
		return a.ID < b.ID
	})
	return sorted[0]
}

func idList(recs []domain.JobRecord) string {
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = strconv.FormatInt(r.ID, 10)
	}
	return "[" + strings.Join(ids, " ") + "]"
}

func joinMsg(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}
