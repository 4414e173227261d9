package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/bill-advisor/internal/provider"
)

var resolveCheck bool

var resolveCmd = &cobra.Command{
	Use:   "resolve <supplier name>",
	Short: "Resolve a supplier name to its canonical identity and homepage",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resolver, err := initResolver(cfg.Providers)
		if err != nil {
			return err
		}

		name := strings.Join(args, " ")
		res := resolver.Resolve(name)
		if resolveCheck {
			client := &http.Client{Timeout: time.Duration(cfg.Providers.LinkTimeoutSecs) * time.Second}
			res.RedirectURL = provider.NewLinkChecker(resolver, client).Outbound(cmd.Context(), res.RedirectURL, name)
		}
		return writeJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveCheck, "check", false, "verify the homepage is reachable")
	rootCmd.AddCommand(resolveCmd)
}
