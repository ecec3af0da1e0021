package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Manage tracked competitors",
}

var providersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List providers stored in the database",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := openEngine(false)
		if err != nil {
			return err
		}
		defer e.Close()

		provs, err := e.db.ListProviders(cmd.Context())
		if err != nil {
			return err
		}
		if len(provs) == 0 {
			fmt.Println("No providers yet. Run 'rivalscope providers seed' first.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SLUG\tNAME\tKIND\tACTIVE\tFREQUENCY\tLAST SCRAPED\tURLS\t")
		for _, p := range provs {
			last := "never"
			if p.LastScrapedAt != nil {
				last = p.LastScrapedAt.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\t%s\t\n", p.Slug, p.Name, p.Kind, p.Active, p.ScrapeFrequency, last, strings.Join(p.BaseURLs, ","))
		}
		return w.Flush()
	},
}

var providersSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Store every built-in provider missing from the database",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := openEngine(false)
		if err != nil {
			return err
		}
		defer e.Close()

		var added int
		err = e.write(cmd.Context(), func() error {
			added, err = e.pipeline.SeedProviders(cmd.Context())
			return err
		})
		if err != nil {
			return err
		}
		fmt.Printf("Added %d provider(s).\n", added)
		return nil
	},
}

func setActiveCmd(use string, active bool) *cobra.Command {
	state := "inactive"
	if active {
		state = "active"
	}
	return &cobra.Command{
		Use:   use + " <slug>",
		Short: "Mark a provider as " + state,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(false)
			if err != nil {
				return err
			}
			defer e.Close()

			return e.write(cmd.Context(), func() error {
				return e.db.SetProviderActive(cmd.Context(), args[0], active)
			})
		},
	}
}

var providersProductsCmd = &cobra.Command{
	Use:   "products [slug]",
	Short: "List competitor products, optionally for one provider",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		superseded, _ := cmd.Flags().GetBool("all")
		var slug string
		if len(args) == 1 {
			slug = args[0]
		}

		e, err := openEngine(false)
		if err != nil {
			return err
		}
		defer e.Close()

		products, err := e.db.ListProducts(cmd.Context(), slug, superseded)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tTYPE\tTECH\tPRICE\tDATA GB\tSPEED\tTERM\tSTATE\tFIRST SEEN\t")
		for _, p := range products {
			fmt.Fprintf(w, "%s\t%s\t%s\tR%s\t%s\t%s\t%d\t%s\t%s\t\n", p.Name, p.ProductType, p.Technology,
				p.MonthlyPrice.StringFixed(2), optInt(p.DataAllowanceGB, "uncapped"), optInt(p.SpeedMbps, "-"), p.ContractTermMonths,
				p.Lifecycle, p.FirstSeenAt.Format("2006-01-02"))
		}
		return w.Flush()
	},
}

func optInt(v *int, none string) string {
	if v == nil {
		return none
	}
	return fmt.Sprint(*v)
}

func init() {
	rootCmd.AddCommand(providersCmd)
	providersCmd.AddCommand(providersListCmd)
	providersCmd.AddCommand(providersSeedCmd)
	providersCmd.AddCommand(setActiveCmd("enable", true))
	providersCmd.AddCommand(setActiveCmd("disable", false))
	providersCmd.AddCommand(providersProductsCmd)
	providersProductsCmd.Flags().Bool("all", false, "Include superseded products")
}
