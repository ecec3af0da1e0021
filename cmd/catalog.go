package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rivalscope/rivalscope/pkg/market"
	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage your own product catalog",
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Import or update internal products from a JSON array",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		items, err := market.DecodeCatalog(f)
		if err != nil {
			return err
		}

		e, err := openEngine(false)
		if err != nil {
			return err
		}
		defer e.Close()

		ctx := cmd.Context()
		err = e.write(ctx, func() error {
			for _, item := range items {
				if err := e.db.SaveInternalProduct(ctx, item); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d catalog product(s). Run 'rivalscope match generate' to refresh matches.\n", len(items))
		return nil
	},
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List internal products",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := openEngine(false)
		if err != nil {
			return err
		}
		defer e.Close()

		catalog, err := e.db.Catalog(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTYPE\tTECH\tPRICE\tDATA GB\tSPEED\tTERM\tSUBSCRIBERS\t")
		for _, p := range catalog {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\tR%s\t%s\t%s\t%d\t%s\t\n", p.ID, p.Name, p.ProductType, p.Technology,
				p.MonthlyPrice.StringFixed(2), optInt(p.DataAllowanceGB, "uncapped"), optInt(p.SpeedMbps, "-"),
				p.ContractTermMonths, optInt(p.Subscribers, "-"))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogImportCmd)
	catalogCmd.AddCommand(catalogListCmd)
}
