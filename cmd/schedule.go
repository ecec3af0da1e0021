package cmd

import (
	"fmt"
	"time"

	"github.com/rivalscope/rivalscope/internal/utils"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

func nowUTC() time.Time { return time.Now().UTC() }

// scheduleCmd keeps running and scrapes due providers on every cron tick.
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run due provider scrapes on a cron schedule",
	RunE: func(cmd *cobra.Command, _ []string) error {
		spec, _ := cmd.Flags().GetString("cron")
		immediate, _ := cmd.Flags().GetBool("now")

		e, err := openEngine(true)
		if err != nil {
			return err
		}
		defer e.Close()

		if spec == "" {
			spec = e.cfg.Pipeline.Schedule
		}

		ctx := cmd.Context()
		tick := func() {
			utils.Log.Info("Scrape cycle started")
			err := e.write(ctx, func() error {
				results, err := e.pipeline.RunDueProviders(ctx, nowUTC(), e.cfg.Pipeline.Concurrency)
				if err != nil {
					return err
				}
				if len(results) == 0 {
					utils.Log.Info("No providers due")
					return nil
				}
				printJobResults(results)
				return nil
			})
			if err != nil {
				utils.Log.Errorf("Scrape cycle failed: %v", err)
				return
			}
			utils.Log.Info("Scrape cycle complete")
		}

		c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
		if _, err := c.AddFunc(spec, tick); err != nil {
			return fmt.Errorf("invalid cron spec %q: %w", spec, err)
		}

		if immediate {
			tick()
		}
		c.Start()
		utils.Log.Infof("Scheduler started with spec %q", spec)

		<-ctx.Done()
		<-c.Stop().Done()
		utils.Log.Info("Scheduler stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.Flags().String("cron", "", "Cron spec for due-provider checks (default from config, e.g. \"0 6 * * *\")")
	scheduleCmd.Flags().Bool("now", false, "Also run one check immediately on startup")
}
