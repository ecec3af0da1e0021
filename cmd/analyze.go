package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rivalscope/rivalscope/pkg/analysis"
	"github.com/rivalscope/rivalscope/pkg/market"
	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Market analyses over the stored competitor products",
}

var analyzePositionCmd = &cobra.Command{
	Use:   "position",
	Short: "Place each catalog product among its matched competitors",
	RunE: func(cmd *cobra.Command, _ []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		e, err := openEngine(false)
		if err != nil {
			return err
		}
		defer e.Close()

		ctx := cmd.Context()
		catalog, err := e.db.Catalog(ctx)
		if err != nil {
			return err
		}
		current, err := e.db.CurrentProducts(ctx, "")
		if err != nil {
			return err
		}
		matches, err := e.db.Matches(ctx)
		if err != nil {
			return err
		}

		byID := make(map[string]market.CompetitorProduct, len(current))
		for _, c := range current {
			byID[c.ID] = c
		}
		matched := make(map[string][]market.CompetitorProduct)
		for _, m := range matches {
			if c, ok := byID[m.CompetitorProductID]; ok {
				matched[m.InternalProductID] = append(matched[m.InternalProductID], c)
			}
		}

		positions := make([]analysis.MarketPosition, 0, len(catalog))
		for _, p := range catalog {
			positions = append(positions, e.analyzer.ComputeMarketPosition(p, matched[p.ID]))
		}
		if asJSON {
			return printJSON(positions)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PRODUCT\tTIER\tCOMPARABLES\tPERCENTILE\tPOSITION\tMIN\tAVG\tMAX\t")
		for _, pos := range positions {
			fmt.Fprintf(w, "%s\t%s\t%d\t%.0f\t%s\tR%s\tR%s\tR%s\t\n", pos.InternalProductID, pos.Tier, pos.Comparables,
				pos.Percentile, pos.Position, pos.MinPrice.StringFixed(2), pos.AvgPrice.StringFixed(2), pos.MaxPrice.StringFixed(2))
		}
		return w.Flush()
	},
}

var analyzeHeadroomCmd = &cobra.Command{
	Use:   "headroom",
	Short: "List catalog products priced well below their matched market average",
	RunE: func(cmd *cobra.Command, _ []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		e, err := openEngine(false)
		if err != nil {
			return err
		}
		defer e.Close()

		ctx := cmd.Context()
		catalog, err := e.db.Catalog(ctx)
		if err != nil {
			return err
		}
		current, err := e.db.CurrentProducts(ctx, "")
		if err != nil {
			return err
		}

		headroom := e.analyzer.FindHeadroom(catalog, current)
		if asJSON {
			return printJSON(headroom)
		}
		if len(headroom) == 0 {
			fmt.Println("No pricing headroom found.")
			return nil
		}
		for _, h := range headroom {
			fmt.Printf("%s  R%s vs market R%s  (%.1f%% below)\n", h.ProductName, h.InternalPrice.StringFixed(2),
				h.MarketAverage.StringFixed(2), h.GapPct*100)
		}
		return nil
	},
}

var analyzeTrendsCmd = &cobra.Command{
	Use:   "trends [slug]",
	Short: "Price trend of current competitor products over the trend window",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		showAll, _ := cmd.Flags().GetBool("all")
		var slug string
		if len(args) == 1 {
			slug = args[0]
		}

		e, err := openEngine(false)
		if err != nil {
			return err
		}
		defer e.Close()

		ctx := cmd.Context()
		products, err := e.db.ListProducts(ctx, slug, false)
		if err != nil {
			return err
		}

		now := nowUTC()
		var trends []analysis.PriceTrend
		for _, p := range products {
			history, err := e.db.PriceHistory(ctx, p.ID)
			if err != nil {
				return err
			}
			t := e.analyzer.AnalyzePriceTrend(p.ID, p.Name, history, now)
			if t.Trend == analysis.TrendUnknown && !showAll {
				continue
			}
			trends = append(trends, t)
		}
		if asJSON {
			return printJSON(trends)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PRODUCT\tTREND\tPAST\tCURRENT\tCHANGE %\t")
		for _, t := range trends {
			past, pct := "-", "-"
			if t.PastPrice != nil {
				past = "R" + t.PastPrice.StringFixed(2)
			}
			if t.ChangePct != nil {
				pct = fmt.Sprintf("%+.1f", *t.ChangePct)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\tR%s\t%s\t\n", t.ProductName, t.Trend, past, t.CurrentPrice.StringFixed(2), pct)
		}
		return w.Flush()
	},
}

var analyzeSegmentsCmd = &cobra.Command{
	Use:   "segments",
	Short: "Group current competitor products by type, technology or provider",
	RunE: func(cmd *cobra.Command, _ []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		by, _ := cmd.Flags().GetString("by")
		dim := analysis.SegmentBy(by)
		switch dim {
		case analysis.ByProductType, analysis.ByTechnology, analysis.ByProvider:
		default:
			return fmt.Errorf("unknown segment dimension %q (use product_type, technology or provider)", by)
		}

		e, err := openEngine(false)
		if err != nil {
			return err
		}
		defer e.Close()

		current, err := e.db.CurrentProducts(cmd.Context(), "")
		if err != nil {
			return err
		}
		segments := analysis.MarketSegments(current, dim)
		if asJSON {
			return printJSON(segments)
		}
		printSegments(segments)
		return nil
	},
}

var analyzeLandscapeCmd = &cobra.Command{
	Use:   "landscape",
	Short: "Whole-market overview with price leaders",
	RunE: func(cmd *cobra.Command, _ []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		e, err := openEngine(false)
		if err != nil {
			return err
		}
		defer e.Close()

		current, err := e.db.CurrentProducts(cmd.Context(), "")
		if err != nil {
			return err
		}
		l := analysis.CompetitiveLandscape(current)
		if asJSON {
			return printJSON(l)
		}

		fmt.Printf("%d products from %d providers, R%s to R%s (avg R%s)\n\n", l.TotalProducts, l.TotalProviders,
			l.MinPrice.StringFixed(2), l.MaxPrice.StringFixed(2), l.AvgPrice.StringFixed(2))
		fmt.Println("By technology:")
		printSegments(l.ByTechnology)
		fmt.Println("\nBy product type:")
		printSegments(l.ByProductType)

		fmt.Println("\nPrice leaders:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for i, p := range l.PriceLeaders {
			fmt.Fprintf(w, "%d.\t%s\tR%s\t%d products\t\n", i+1, p.ProviderID, p.AvgPrice.StringFixed(2), p.ProductCount)
		}
		return w.Flush()
	},
}

func printSegments(segments []analysis.SegmentStats) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEGMENT\tPRODUCTS\tMIN\tAVG\tMAX\tPROVIDERS\t")
	for _, s := range segments {
		fmt.Fprintf(w, "%s\t%d\tR%s\tR%s\tR%s\t%s\t\n", s.Segment, s.ProductCount, s.MinPrice.StringFixed(2),
			s.AvgPrice.StringFixed(2), s.MaxPrice.StringFixed(2), strings.Join(s.Providers, ","))
	}
	w.Flush()
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.PersistentFlags().Bool("json", false, "Print results as JSON")
	analyzeCmd.AddCommand(analyzePositionCmd)
	analyzeCmd.AddCommand(analyzeHeadroomCmd)
	analyzeCmd.AddCommand(analyzeTrendsCmd)
	analyzeCmd.AddCommand(analyzeSegmentsCmd)
	analyzeCmd.AddCommand(analyzeLandscapeCmd)
	analyzeTrendsCmd.Flags().Bool("all", false, "Include products without enough history")
	analyzeSegmentsCmd.Flags().String("by", string(analysis.ByProductType), "Segment dimension: product_type, technology or provider")
}
