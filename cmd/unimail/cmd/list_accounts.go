package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/unimail/unimail/internal/store"
)

var listAccountsJSON bool

var listAccountsCmd = &cobra.Command{
	Use:   "list-accounts",
	Short: "List connected Gmail accounts",
	Long: `List all Gmail accounts connected to unimail.

Examples:
  unimail list-accounts
  unimail list-accounts --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		accounts, err := s.GetAccounts()
		if err != nil {
			return fmt.Errorf("list accounts: %w", err)
		}

		if len(accounts) == 0 {
			fmt.Println("No accounts connected. Use 'unimail add-account' to connect one.")
			return nil
		}

		if listAccountsJSON {
			return outputAccountsJSON(accounts)
		}
		outputAccountsTable(accounts)
		return nil
	},
}

func outputAccountsTable(accounts []*store.Account) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EMAIL\tTOKEN EXPIRES")
	fmt.Fprintln(w, "─────\t─────────────")

	for _, acc := range accounts {
		expiry := "-"
		if acc.TokenExpiry > 0 {
			expiry = time.UnixMilli(acc.TokenExpiry).Local().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\n", acc.Email, expiry)
	}

	w.Flush()
	fmt.Printf("\n%d account(s)\n", len(accounts))
}

func outputAccountsJSON(accounts []*store.Account) error {
	output := make([]map[string]interface{}, len(accounts))
	for i, acc := range accounts {
		output[i] = map[string]interface{}{
			"email":        acc.Email,
			"token_expiry": acc.TokenExpiry,
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

func init() {
	rootCmd.AddCommand(listAccountsCmd)
	listAccountsCmd.Flags().BoolVar(&listAccountsJSON, "json", false, "Output as JSON")
}
