package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var removeAccountYes bool

var removeAccountCmd = &cobra.Command{
	Use:   "remove-account <email>",
	Short: "Disconnect a Gmail account",
	Long: `Disconnect a Gmail account and delete its stored credential.

This only removes the local credential; the Google-side grant stays
active until revoked at https://myaccount.google.com/permissions.

Examples:
  unimail remove-account you@gmail.com
  unimail remove-account you@gmail.com --yes`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email := args[0]

		if !removeAccountYes {
			fmt.Printf("Disconnect %s and delete its stored credential? [y/N] ", email)
			reader := bufio.NewReader(os.Stdin)
			answer, _ := reader.ReadString('\n')
			answer = strings.ToLower(strings.TrimSpace(answer))
			if answer != "y" && answer != "yes" {
				fmt.Println("Aborted.")
				return nil
			}
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		removed, err := s.RemoveAccount(email)
		if err != nil {
			return fmt.Errorf("remove account: %w", err)
		}
		if !removed {
			return fmt.Errorf("account %q not found", email)
		}

		fmt.Printf("Account %s disconnected.\n", email)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(removeAccountCmd)
	removeAccountCmd.Flags().BoolVar(&removeAccountYes, "yes", false, "Skip confirmation prompt")
}
