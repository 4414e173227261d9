package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/bill-advisor/internal/pipeline"
)

var (
	extractAIResponse string
	extractNoAI       bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <file|->",
	Short: "Extract a bill profile from a document or text",
	Long:  "Reads a bill (PDF, image or text file, or stdin with -), runs template and AI extraction and prints the reconciled profile. Nothing is persisted.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, envOptions{Mode: "extract", WithAI: !extractNoAI && extractAIResponse == "", WithOCR: args[0] != "-"})
		if err != nil {
			return err
		}
		defer env.Close()

		in, err := readInput(cmd, env.Analyzer, args[0], extractAIResponse)
		if err != nil {
			return err
		}

		out, err := env.Analyzer.Extract(ctx, in)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), out)
	},
}

// readInput loads bill text from a document (through OCR) or stdin, plus
// an optional raw AI response file.
func readInput(cmd *cobra.Command, a *pipeline.Analyzer, path, aiResponsePath string) (pipeline.Input, error) {
	var in pipeline.Input
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return in, eris.Wrap(err, "read stdin")
		}
		in.Text = string(data)
	} else {
		text, err := a.ReadDocument(cmd.Context(), path)
		if err != nil {
			return in, err
		}
		in.Text = text
	}

	if aiResponsePath != "" {
		data, err := os.ReadFile(aiResponsePath)
		if err != nil {
			return in, eris.Wrap(err, "read ai response")
		}
		in.AIResponse = string(data)
	}
	return in, nil
}

func init() {
	extractCmd.Flags().StringVar(&extractAIResponse, "ai-response", "", "use a saved AI JSON response instead of calling the AI provider")
	extractCmd.Flags().BoolVar(&extractNoAI, "no-ai", false, "template extraction only")
	rootCmd.AddCommand(extractCmd)
}
