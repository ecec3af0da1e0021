package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rivalscope/rivalscope/pkg/market"
	"github.com/spf13/cobra"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match your catalog against competitor products",
}

var matchGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Rescore the whole catalog; reviewed matches are kept",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := openEngine(false)
		if err != nil {
			return err
		}
		defer e.Close()

		var n int
		err = e.write(cmd.Context(), func() error {
			n, err = e.pipeline.GenerateMatches(cmd.Context())
			return err
		})
		if err != nil {
			return err
		}
		fmt.Printf("Stored %d candidate match(es).\n", n)
		return nil
	},
}

var matchListCmd = &cobra.Command{
	Use:   "list [internal-product-id]",
	Short: "List stored matches, best first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(false)
		if err != nil {
			return err
		}
		defer e.Close()

		ctx := cmd.Context()
		var matches []market.Match
		if len(args) == 1 {
			matches, err = e.db.MatchesFor(ctx, args[0])
		} else {
			matches, err = e.db.Matches(ctx)
		}
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tINTERNAL\tCOMPETITOR PRODUCT\tCONFIDENCE\tREVIEWED\tNOTES\t")
		for _, m := range matches {
			fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%t\t%s\t\n", m.ID, m.InternalProductID, m.CompetitorProductID, m.Confidence, m.Reviewed, m.Notes)
		}
		return w.Flush()
	},
}

var matchReviewCmd = &cobra.Command{
	Use:   "review <match-id>",
	Short: "Confirm a match so regeneration keeps it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(false)
		if err != nil {
			return err
		}
		defer e.Close()

		return e.write(cmd.Context(), func() error {
			return e.db.ReviewMatch(cmd.Context(), args[0])
		})
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)
	matchCmd.AddCommand(matchGenerateCmd)
	matchCmd.AddCommand(matchListCmd)
	matchCmd.AddCommand(matchReviewCmd)
}
