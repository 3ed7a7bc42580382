package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var summaryJSON bool

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show an inbox overview across all accounts",
	Long: `Show per-account unread counts, total messages, and recent inbox
subjects, plus the combined unread count.

Examples:
  unimail summary
  unimail summary --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		agg, err := buildAggregator(s)
		if err != nil {
			return err
		}

		summary, err := agg.Summary(cmd.Context())
		if err != nil {
			return fmt.Errorf("build summary: %w", err)
		}

		if summaryJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		}

		if len(summary.Accounts) == 0 {
			fmt.Println("No accounts connected. Use 'unimail add-account' to connect one.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ACCOUNT\tUNREAD\tTOTAL")
		fmt.Fprintln(w, "───────\t──────\t─────")
		for _, acc := range summary.Accounts {
			fmt.Fprintf(w, "%s\t%d\t%d\n", acc.Account, acc.UnreadCount, acc.TotalCount)
		}
		w.Flush()

		fmt.Printf("\n%d unread across %d account(s)\n", summary.TotalUnread, len(summary.Accounts))

		for _, acc := range summary.Accounts {
			if len(acc.RecentSubjects) == 0 {
				continue
			}
			fmt.Printf("\nRecent in %s:\n", acc.Account)
			for _, subject := range acc.RecentSubjects {
				fmt.Printf("  %s\n", subject)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(summaryCmd)
	summaryCmd.Flags().BoolVar(&summaryJSON, "json", false, "Output as JSON")
}
