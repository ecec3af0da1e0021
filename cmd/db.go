package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// dbCmd represents the db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Interact with the rivalscope database",
}

// shellCmd represents the shell command
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive shell to the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath := viper.GetString("dbpath")
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return fmt.Errorf("database file not found: %s", dbPath)
		}

		sqlitePath, err := exec.LookPath("sqlite3")
		if err != nil {
			return fmt.Errorf("sqlite3 command not found in your PATH. Please install it to use the db shell")
		}

		fmt.Println("--> Database schema:")
		schemaCmd := exec.Command(sqlitePath, dbPath, ".schema")
		schemaCmd.Stdout = os.Stdout
		schemaCmd.Stderr = os.Stderr
		if err := schemaCmd.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: couldn't retrieve schema: %v\n", err)
		}
		fmt.Println("\n--> Starting interactive shell... (Ctrl+D to exit)")

		c := exec.Command(sqlitePath, dbPath)
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		return c.Run()
	},
}

// statsCmd prints row counts per table.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print row counts of every table",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(false)
		if err != nil {
			return err
		}
		defer e.Close()

		stats, err := e.db.Stats(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "TABLE\tROWS\t")
		var total int
		for _, s := range stats {
			fmt.Fprintf(w, "%s\t%d\t\n", s.Table, s.Rows)
			total += s.Rows
		}
		fmt.Fprintln(w, " \t \t")
		fmt.Fprintf(w, "TOTAL\t%d\t\n", total)
		return w.Flush()
	},
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Show recent scrape job results",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		e, err := openEngine(false)
		if err != nil {
			return err
		}
		defer e.Close()

		jobs, err := e.db.RecentJobs(cmd.Context(), limit)
		if err != nil {
			return err
		}
		for _, j := range jobs {
			fmt.Printf("%s  %-10s  %-9s  found=%d new=%d updated=%d removed=%d credits=%d errors=%d\n",
				j.StartedAt.Format("2006-01-02 15:04:05"), j.ProviderSlug, j.Status, j.ProductsFound,
				j.ProductsNew, j.ProductsUpdated, j.ProductsRemoved, j.CreditsConsumed, len(j.Errors))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(shellCmd)
	dbCmd.AddCommand(statsCmd)
	dbCmd.AddCommand(jobsCmd)
	jobsCmd.Flags().Int("limit", 20, "Number of recent jobs to show")
}
