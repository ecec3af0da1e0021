package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "Show detected competitor price changes (default: last 7 days)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		since, _ := cmd.Flags().GetDuration("since")
		asJSON, _ := cmd.Flags().GetBool("json")

		e, err := openEngine(false)
		if err != nil {
			return err
		}
		defer e.Close()

		changes, err := e.db.PriceChangesSince(cmd.Context(), time.Now().Add(-since))
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(changes)
		}
		if len(changes) == 0 {
			fmt.Println("No price changes in the selected window.")
			return nil
		}
		for _, c := range changes {
			ts := c.DetectedAt.Format("2006-01-02 15:04:05")
			fmt.Printf("%s  %-8s  %s  R%s -> R%s  (%+.1f%%)\n", ts, c.Severity, c.ProductName,
				c.PreviousPrice.StringFixed(2), c.NewPrice.StringFixed(2), c.PercentChange*100)
		}
		return nil
	},
}

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Show recent alerts (default 50)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		e, err := openEngine(false)
		if err != nil {
			return err
		}
		defer e.Close()

		alerts, err := e.db.RecentAlerts(cmd.Context(), limit)
		if err != nil {
			return err
		}
		for _, a := range alerts {
			ts := a.CreatedAt.Format("2006-01-02 15:04:05")
			fmt.Printf("%s  %-8s  %-16s  %s: %s\n", ts, a.Severity, a.Type, a.Title, a.Message)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(changesCmd)
	rootCmd.AddCommand(alertsCmd)
	changesCmd.Flags().Duration("since", 7*24*time.Hour, "How far back to look")
	changesCmd.Flags().Bool("json", false, "Print changes as JSON")
	alertsCmd.Flags().Int("limit", 50, "Number of recent alerts to show")
}
