package commands

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"jobsync-engine/internal/logger"
	"jobsync-engine/internal/store"
)

// JobsCmd lists catalog rows.
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List jobs in the catalog",
	Example: `  jobsync jobs --source AcmeBoard
  jobsync jobs --state terminated --sort updated --limit 20
  jobsync jobs --json`,
	RunE: runJobs,
}

var (
	jobsOpts store.ListOptions
	jobsJSON bool
)

func init() {
	f := JobsCmd.Flags()
	f.StringVar(&jobsOpts.Source, "source", "", "Only jobs owned by this source")
	f.StringVar(&jobsOpts.State, "state", store.StateAll, "all, active or terminated")
	f.StringVar(&jobsOpts.Sort, "sort", "last_checked", "last_checked, created, updated, company or title")
	f.StringVar(&jobsOpts.Order, "order", "desc", "asc or desc")
	f.IntVar(&jobsOpts.Limit, "limit", 50, "Maximum rows")
	f.BoolVar(&jobsJSON, "json", false, "Print as JSON")
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	cat, err := openCatalog(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "open catalog")
	}
	defer closeCatalog(cat, logger.ComponentLogger("cli"))

	jobs, err := cat.lister.List(ctx, jobsOpts)
	if err != nil {
		return err
	}

	if jobsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(jobs)
	}
	if len(jobs) == 0 {
		pterm.Info.Println("No jobs match")
		return nil
	}

	data := pterm.TableData{{"ID", "SOURCE", "COMPANY", "TITLE", "STATE", "CHECKED", "LINK"}}
	for _, j := range jobs {
		state := "active"
		if j.Terminated && j.TerminationReason != nil {
			state = "terminated (" + *j.TerminationReason + ")"
		} else if j.Terminated {
			state = "terminated"
		}
		data = append(data, []string{
			strconv.FormatInt(j.ID, 10),
			j.SourceBoard,
			j.Company,
			j.Title,
			state,
			j.LastCheckedAt.Local().Format(time.DateTime),
			j.Link,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
