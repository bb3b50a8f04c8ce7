package commands

import (
	"encoding/json"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"jobsync-engine/internal/config"
	"jobsync-engine/internal/domain"
)

// SourcesCmd shows the validated source list.
var SourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Show configured job-board sources",
	Long: `Print the source list a sync would use, after validation, with resolved company
and category defaults. Entries that failed validation are counted and explained.`,
	RunE: runSourcesList,
}

var sourcesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Append a source to the sources file",
	Example: `  jobsync sources add --name AcmeBoard --url https://acme.io/careers --link-contains /careers/
  jobsync sources add --name Widget --url 'https://api.lever.co/v0/postings/widget?mode=json' --kind lever`,
	RunE: runSourcesAdd,
}

var (
	sourcesJSON bool
	newSource   domain.SourceDescriptor
	newKind     string
)

func init() {
	SourcesCmd.Flags().BoolVar(&sourcesJSON, "json", false, "Print as JSON")

	f := sourcesAddCmd.Flags()
	f.StringVar(&newSource.Name, "name", "", "Unique source name")
	f.StringVar(&newSource.URL, "url", "", "Listing page URL")
	f.StringVar(&newSource.Company, "company", "", "Company name (defaults to the URL host)")
	f.StringVar(&newSource.Category, "category", "", "Category for new postings (default network)")
	f.StringVar(&newKind, "kind", "", "Extractor: html, greenhouse or lever")
	f.StringVar(&newSource.Selector, "selector", "", "CSS selector for posting anchors")
	f.StringVar(&newSource.LinkContains, "link-contains", "", "Only keep links containing this text")
	f.StringVar(&newSource.PathPrefix, "path-prefix", "", "Only keep same-site links under this path (default: the listing's directory)")
	f.StringVar(&newSource.TokenAccount, "token-account", "", "Keychain account holding a bearer token")
	f.StringSliceVar(&newSource.ClosedMarkers, "closed-marker", nil, "Text that means a posting is closed (repeatable)")
	_ = sourcesAddCmd.MarkFlagRequired("name")
	_ = sourcesAddCmd.MarkFlagRequired("url")

	SourcesCmd.AddCommand(sourcesAddCmd)
}

func runSourcesList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return err
	}
	set, err := sourceLoader(cfg)(cmd.Context())
	if err != nil {
		return err
	}

	if sourcesJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(set)
	}

	if len(set.Sources) == 0 {
		pterm.Warning.Printfln("No sources configured (set %s or create %s)", cfg.SourcesEnv, cfg.SourcesFile)
	} else {
		data := pterm.TableData{{"NAME", "KIND", "COMPANY", "CATEGORY", "TOKEN", "URL"}}
		for _, s := range set.Sources {
			token := "-"
			if s.TokenAccount != "" {
				token = s.TokenAccount
				if s.Token == "" {
					token += " (missing)"
				}
			}
			data = append(data, []string{
				s.Name, string(s.ResolvedKind()), s.ResolvedCompany(), s.ResolvedCategory(), token, s.URL,
			})
		}
		if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
			return errors.Wrap(err, "render sources")
		}
	}

	pterm.Info.Printfln("%d sources from %s, %d dropped", len(set.Sources), set.Origin, set.Dropped)
	for _, w := range set.Warnings {
		pterm.Warning.Println(w)
	}
	return nil
}

func runSourcesAdd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return err
	}
	if cfg.SourcesFile == "" {
		return errors.New("sources_file is not set")
	}

	newSource.Kind = domain.SourceKind(newKind)
	if err := config.AddSource(cfg.SourcesFile, newSource); err != nil {
		return err
	}
	pterm.Success.Printfln("Added %s to %s", newSource.Name, cfg.SourcesFile)
	if _, set := os.LookupEnv(cfg.SourcesEnv); set {
		pterm.Warning.Printfln("%s is set and takes precedence over the sources file", cfg.SourcesEnv)
	}
	return nil
}
