package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var addAccountCmd = &cobra.Command{
	Use:   "add-account",
	Short: "Connect a Gmail account via OAuth",
	Long: `Connect a Gmail account by completing the OAuth2 authorization flow.

Opens a browser for consent. The granted token (including the refresh
token) is stored in the local account database, keyed by the account's
email address. Re-running the flow for an already connected account
replaces its credential.

Examples:
  unimail add-account`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		flow, err := newFlow()
		if err != nil {
			return err
		}

		fmt.Println("Starting browser authorization...")
		acct, err := flow.Authorize(cmd.Context())
		if err != nil {
			return fmt.Errorf("authorization failed: %w", err)
		}

		if err := s.SaveAccount(acct); err != nil {
			return fmt.Errorf("save account: %w", err)
		}

		fmt.Printf("\nAccount %s connected successfully!\n", acct.Email)
		fmt.Println("Try it: unimail summary")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(addAccountCmd)
}
