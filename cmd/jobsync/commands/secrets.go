package commands

import (
	"bufio"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"jobsync-engine/internal/secrets"
)

// SecretsCmd manages per-source bearer tokens.
var SecretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage bearer tokens for sources that need authentication",
	Long: `Tokens live in the OS keychain under the "jobsync" service. A source uses one by
naming its keychain account in tokenAccount.`,
}

var setTokenCmd = &cobra.Command{
	Use:     "set-token ACCOUNT",
	Short:   "Store a token read from stdin",
	Example: `  printf '%s' "$ACME_TOKEN" | jobsync secrets set-token acme-board`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return errors.Wrap(err, "read token from stdin")
		}
		if err := secrets.SetToken(args[0], strings.TrimSpace(line)); err != nil {
			return err
		}
		pterm.Success.Printfln("Stored token for %s", args[0])
		return nil
	},
}

var deleteTokenCmd = &cobra.Command{
	Use:   "delete-token ACCOUNT",
	Short: "Remove a stored token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := secrets.DeleteToken(args[0]); err != nil {
			return err
		}
		pterm.Success.Printfln("Deleted token for %s", args[0])
		return nil
	},
}

func init() {
	SecretsCmd.AddCommand(setTokenCmd, deleteTokenCmd)
}
