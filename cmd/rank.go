package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/bill-advisor/internal/model"
	"github.com/sells-group/bill-advisor/internal/pipeline"
)

var (
	rankProfilePath string
	rankProfileID   string
	rankOffersPath  string
	rankAssumeKWh   float64
	rankAssumeSmc   float64
	rankSplit       bool
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank catalog offers against a bill profile",
	Long: `Ranks offers by annual cost for a profile read from a JSON file (--profile)
or from the store (--profile-id). Offers come from --offers (JSON or XLSX)
or, when omitted, from the stored catalog.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if (rankProfilePath == "") == (rankProfileID == "") {
			return eris.New("exactly one of --profile or --profile-id is required")
		}
		if cmd.Flags().Changed("assume-kwh") {
			cfg.Ranking.DefaultKWh = rankAssumeKWh
		}
		if cmd.Flags().Changed("assume-smc") {
			cfg.Ranking.DefaultSmc = rankAssumeSmc
		}
		if rankSplit {
			cfg.Reconcile.SplitCombined = true
		}

		useStore := rankProfileID != "" || rankOffersPath == ""
		mode := "rank"
		if useStore {
			mode = "store"
		}
		env, err := initEnv(ctx, envOptions{Mode: mode, WithStore: useStore})
		if err != nil {
			return err
		}
		defer env.Close()

		var profile model.BillProfile
		if rankProfileID != "" {
			rec, err := env.Store.GetProfile(ctx, rankProfileID)
			if err != nil {
				return err
			}
			profile = rec.Profile
		} else if err := readJSONFile(rankProfilePath, &profile); err != nil {
			return err
		}

		var res *pipeline.RankResult
		if rankOffersPath != "" {
			offers, err := loadCatalog(cmd, rankOffersPath)
			if err != nil {
				return err
			}
			res, err = env.Analyzer.RankOffers(ctx, profile, offers)
			if err != nil {
				return err
			}
		} else {
			res, err = env.Analyzer.Rank(ctx, profile)
			if err != nil {
				return err
			}
		}
		return writeJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	f := rankCmd.Flags()
	f.StringVar(&rankProfilePath, "profile", "", "bill profile JSON file (- for stdin)")
	f.StringVar(&rankProfileID, "profile-id", "", "stored profile ID")
	f.StringVar(&rankOffersPath, "offers", "", "offer catalog file (.json or .xlsx)")
	f.Float64Var(&rankAssumeKWh, "assume-kwh", 0, "annual kWh to assume when the profile has none")
	f.Float64Var(&rankAssumeSmc, "assume-smc", 0, "annual Smc to assume when the profile has none")
	f.BoolVar(&rankSplit, "split", false, "split a combined bill's joint total before ranking")
	rootCmd.AddCommand(rankCmd)
}
