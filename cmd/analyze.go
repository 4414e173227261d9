package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var analyzeAIResponse string

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>...",
	Short: "Extract, persist and rank one or more bills",
	Long:  "Runs the full analysis for each document: OCR, template and AI extraction, reconciliation, persistence and ranking against the stored catalog.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, envOptions{Mode: "analyze", WithStore: true, WithAI: analyzeAIResponse == "", WithOCR: true})
		if err != nil {
			return err
		}
		defer env.Close()

		if len(args) > 1 {
			results := env.Analyzer.AnalyzeBatch(ctx, args)
			return writeJSON(cmd.OutOrStdout(), results)
		}

		in, err := readInput(cmd, env.Analyzer, args[0], analyzeAIResponse)
		if err != nil {
			return err
		}
		out, err := env.Analyzer.Analyze(ctx, in)
		if err != nil {
			return err
		}
		if out.AIError != "" {
			zap.L().Warn("analysis used template extraction only", zap.String("ai_error", out.AIError))
		}
		return writeJSON(cmd.OutOrStdout(), out)
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeAIResponse, "ai-response", "", "use a saved AI JSON response (single document only)")
	rootCmd.AddCommand(analyzeCmd)
}
