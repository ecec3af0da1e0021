package cmd

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print the dashboard summary: providers, products, alerts and pricing opportunities",
	RunE: func(cmd *cobra.Command, _ []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		e, err := openEngine(false)
		if err != nil {
			return err
		}
		defer e.Close()

		s, err := e.pipeline.GetDashboardSummary(cmd.Context())
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(s)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PROVIDER\tACTIVE\tPRODUCTS\tAVG PRICE\tMATCHED\tLAST SCRAPED\tSTALE\t")
		for _, p := range s.Providers {
			last := "never"
			if p.LastScrapedAt != nil {
				last = p.LastScrapedAt.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%s\t%t\t%d\tR%s\t%d\t%s\t%t\t\n", p.Slug, p.Active, p.CurrentProducts, p.AvgPrice.StringFixed(2), p.MatchedProducts, last, p.Stale)
		}
		w.Flush()

		fmt.Printf("\nProducts: %d current, %d superseded\n", s.Products.Current, s.Products.Superseded)
		types := make([]string, 0, len(s.Products.ByType))
		for t, n := range s.Products.ByType {
			types = append(types, fmt.Sprintf("%s=%d", t, n))
		}
		sort.Strings(types)
		techs := make([]string, 0, len(s.Products.ByTechnology))
		for t, n := range s.Products.ByTechnology {
			techs = append(techs, fmt.Sprintf("%s=%d", t, n))
		}
		sort.Strings(techs)
		fmt.Printf("  by type: %v\n  by technology: %v\n", types, techs)

		if len(s.Alerts) > 0 {
			fmt.Println("\nAlerts:")
			for _, a := range s.Alerts {
				fmt.Printf("  %s  %-8s  %-16s  %s\n", a.CreatedAt.Format("2006-01-02 15:04"), a.Severity, a.Type, a.Title)
			}
		}

		if len(s.Opportunities) > 0 {
			fmt.Println("\nPricing opportunities:")
			w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PRODUCT\tOUR PRICE\tCHEAPEST\tGAP\tGAP %\tMATCHES\tREVENUE AT RISK\t")
			for _, o := range s.Opportunities {
				risk := "-"
				if o.RevenueAtRisk != nil {
					risk = "R" + o.RevenueAtRisk.StringFixed(2)
				}
				fmt.Fprintf(w, "%s\tR%s\tR%s\tR%s\t%.1f\t%d\t%s\t\n", o.ProductName, o.InternalPrice.StringFixed(2),
					o.CheapestPrice.StringFixed(2), o.Gap.StringFixed(2), o.GapPct*100, o.MatchCount, risk)
			}
			w.Flush()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(summaryCmd)
	summaryCmd.Flags().Bool("json", false, "Print the summary as JSON")
}
