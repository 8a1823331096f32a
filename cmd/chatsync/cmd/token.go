package cmd

import (
	"errors"
	"fmt"

	"github.com/nfrund/chatsync/internal/auth"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a dev bearer token",
	Long: `Print an HS256 token for --user signed with CHATSYNC_JWT_SECRET. The dev
server accepts it in the Authorization header or the token query parameter.

Example:
  export CHATSYNC_TOKEN=$(chatsync token --user u1)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.UserID == "" {
			return errors.New("--user is required")
		}
		tokens, err := do.Invoke[*auth.Tokens](container)
		if err != nil {
			return err
		}
		tok, err := tokens.Issue(cfg.UserID)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}
