package main

import (
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/bill-advisor/internal/catalog"
	"github.com/sells-group/bill-advisor/internal/model"
	"github.com/sells-group/bill-advisor/internal/resilience"
	"github.com/sells-group/bill-advisor/pkg/firecrawl"
)

var offersCmd = &cobra.Command{
	Use:   "offers",
	Short: "Manage the energy offer catalog",
}

var offersImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import offers from a JSON or XLSX file or URL into the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		offers, err := loadCatalog(cmd, args[0])
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, envOptions{Mode: "store", WithStore: true})
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Store.UpsertOffers(ctx, offers)
		if err != nil {
			return err
		}
		zap.L().Info("offers imported", zap.String("file", args[0]), zap.Int64("upserted", n))
		return writeJSON(cmd.OutOrStdout(), map[string]any{"file": args[0], "upserted": n})
	},
}

// loadCatalog reads a local catalog file or downloads a remote one.
func loadCatalog(cmd *cobra.Command, loc string) ([]model.EnergyOffer, error) {
	if !catalog.IsRemote(loc) {
		return catalog.LoadFile(loc)
	}
	return catalog.NewFetcher(resilience.DefaultRetryConfig()).LoadURL(cmd.Context(), loc)
}

var offersListCommodity string

var offersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored offers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, envOptions{Mode: "store", WithStore: true})
		if err != nil {
			return err
		}
		defer env.Close()

		offers, err := env.Store.ListOffers(ctx, model.Commodity(offersListCommodity))
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), offers)
	},
}

var (
	offersScrapeCommodity string
	offersScrapeSave      bool
	offersScrapeBatch     bool
)

var offersScrapeCmd = &cobra.Command{
	Use:   "scrape <url>...",
	Short: "Scrape offer pages with Firecrawl and parse them into offers",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		switch model.Commodity(offersScrapeCommodity) {
		case "", model.CommodityElectricity, model.CommodityGas:
		default:
			return eris.Errorf("unknown commodity %q", offersScrapeCommodity)
		}

		env, err := initEnv(ctx, envOptions{Mode: "scrape", WithStore: offersScrapeSave})
		if err != nil {
			return err
		}
		defer env.Close()

		client := firecrawl.NewClient(cfg.Firecrawl.Key,
			firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL),
			firecrawl.WithRateLimit(cfg.Firecrawl.RatePerSec),
			firecrawl.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Firecrawl.TimeoutSecs) * time.Second}),
		)
		scraper := catalog.NewScraper(client, env.Template, resilience.DefaultRetryConfig())

		hint := model.Commodity(offersScrapeCommodity)
		var offers []model.EnergyOffer
		if offersScrapeBatch {
			offers, err = scraper.BatchScrapeOffers(ctx, args, hint)
		} else {
			offers, err = scraper.ScrapeOffers(ctx, args, hint)
		}
		if err != nil {
			return err
		}

		if offersScrapeSave {
			n, err := env.Store.UpsertOffers(ctx, offers)
			if err != nil {
				return err
			}
			zap.L().Info("scraped offers saved", zap.Int64("upserted", n))
		}
		return writeJSON(cmd.OutOrStdout(), offers)
	},
}

func init() {
	offersListCmd.Flags().StringVar(&offersListCommodity, "commodity", "", "electricity or gas (default all)")

	offersScrapeCmd.Flags().StringVar(&offersScrapeCommodity, "commodity", "", "commodity hint when a page prices both or neither")
	offersScrapeCmd.Flags().BoolVar(&offersScrapeSave, "save", false, "upsert the parsed offers into the store")
	offersScrapeCmd.Flags().BoolVar(&offersScrapeBatch, "batch", false, "submit all pages as one Firecrawl batch job")

	offersCmd.AddCommand(offersImportCmd, offersListCmd, offersScrapeCmd)
	rootCmd.AddCommand(offersCmd)
}
