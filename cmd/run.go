package cmd

import (
	"fmt"

	"github.com/rivalscope/rivalscope/pkg/market"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <provider> [provider...]",
	Short: "Scrape one or more providers by slug",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(true)
		if err != nil {
			return err
		}
		defer e.Close()

		ctx := cmd.Context()
		var results []*market.ScrapeJobResult
		err = e.write(ctx, func() error {
			for _, slug := range args {
				results = append(results, e.pipeline.RunProviderScrape(ctx, slug))
			}
			return nil
		})
		if err != nil {
			return err
		}

		printJobResults(results)
		if n := countFailed(results); n > 0 {
			return fmt.Errorf("%d of %d runs failed", n, len(results))
		}
		return nil
	},
}

var runAllCmd = &cobra.Command{
	Use:   "run-all",
	Short: "Scrape every active provider",
	RunE: func(cmd *cobra.Command, _ []string) error {
		due, _ := cmd.Flags().GetBool("due")
		concurrency, _ := cmd.Flags().GetInt("concurrency")

		e, err := openEngine(true)
		if err != nil {
			return err
		}
		defer e.Close()

		if concurrency <= 0 {
			concurrency = e.cfg.Pipeline.Concurrency
		}

		ctx := cmd.Context()
		var results []*market.ScrapeJobResult
		err = e.write(ctx, func() error {
			var err error
			if due {
				results, err = e.pipeline.RunDueProviders(ctx, nowUTC(), concurrency)
			} else {
				results, err = e.pipeline.RunAllActiveProviders(ctx, concurrency)
			}
			return err
		})
		if err != nil {
			return err
		}

		if len(results) == 0 {
			fmt.Println("No providers to scrape.")
			return nil
		}
		printJobResults(results)
		if n := countFailed(results); n > 0 {
			return fmt.Errorf("%d of %d runs failed", n, len(results))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runAllCmd)
	runAllCmd.Flags().Bool("due", false, "Only scrape providers whose scrape frequency has elapsed")
	runAllCmd.Flags().Int("concurrency", 0, "Number of providers scraped in parallel (default from config)")
}
