package reconcile

import (
	"fmt"
	"time"
)

// Counters are the per-source reconciliation tallies. Every discovered
// posting lands in exactly one of inserted/updated, or in the error list.
type Counters struct {
	Discovered  int `json:"discovered"`
	Inserted    int `json:"inserted"`
	Updated     int `json:"updated"`
	Reactivated int `json:"reactivated"`
	Terminated  int `json:"terminated"`
	Checked     int `json:"checked"`
}

func (c *Counters) add(o Counters) {
	c.Discovered += o.Discovered
	c.Inserted += o.Inserted
	c.Updated += o.Updated
	c.Reactivated += o.Reactivated
	c.Terminated += o.Terminated
	c.Checked += o.Checked
}

// SourceRunSummary is the outcome of reconciling one source.
type SourceRunSummary struct {
	Source string `json:"source"`
	Counters
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func newSourceSummary(name string) SourceRunSummary {
	return SourceRunSummary{Source: name, Errors: []string{}, Warnings: []string{}}
}

func (s *SourceRunSummary) errorf(format string, args ...any) string {
	msg := fmt.Sprintf(format, args...)
	s.Errors = append(s.Errors, msg)
	return msg
}

func (s *SourceRunSummary) warnf(format string, args ...any) string {
	msg := fmt.Sprintf(format, args...)
	s.Warnings = append(s.Warnings, msg)
	return msg
}

// Totals is the field-wise sum of every source's counters, plus how many
// errors and warnings the sources reported.
type Totals struct {
	Counters
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
}

// SyncSummary is the result of one orchestrator run.
type SyncSummary struct {
	DryRun           bool               `json:"dryRun"`
	RunID            string             `json:"runId"`
	StartedAt        time.Time          `json:"startedAt"`
	FinishedAt       time.Time          `json:"finishedAt"`
	SourcesProcessed int                `json:"sourcesProcessed"`
	Totals           Totals             `json:"totals"`
	BySource         []SourceRunSummary `json:"bySource"`
}

func (s *SyncSummary) fold(src SourceRunSummary) {
	s.BySource = append(s.BySource, src)
	s.SourcesProcessed++
	s.Totals.add(src.Counters)
	s.Totals.Errors += len(src.Errors)
	s.Totals.Warnings += len(src.Warnings)
}
