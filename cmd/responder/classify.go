package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/555Russich/18.fl-auto-response/internal/classify"
	"github.com/555Russich/18.fl-auto-response/internal/config"
	"github.com/555Russich/18.fl-auto-response/internal/observability"
)

var classifyCommand = &cobra.Command{
	Use:   "classify",
	Short: "Check ad-hoc order text against the exclusion pattern",
	Long: `Reads the exclusion pattern the same way the running responder does and prints whether an
order with the given subject and aim would get a response. Use it to test edits to the pattern file.`,
	RunE: runClassifyCmd,
}

var (
	classifyPattern string
	classifySubject string
	classifyAim     string
)

func init() {
	classifyCommand.Flags().StringVar(&classifyPattern, "pattern", config.Defaults().PatternFile, "Path to the exclusion pattern file")
	classifyCommand.Flags().StringVar(&classifySubject, "subject", "", "Order subject")
	classifyCommand.Flags().StringVar(&classifyAim, "aim", "", "Order aim")

	rootCmd.AddCommand(classifyCommand)
}

func runClassifyCmd(cmd *cobra.Command, _ []string) error {
	if classifySubject == "" && classifyAim == "" {
		return fmt.Errorf("at least one of --subject or --aim must be provided")
	}

	classifier := classify.New(classify.FilePatternSource{Path: classifyPattern})
	decision, err := classifier.Classify(cmd.Context(), classifySubject, classifyAim)
	if err != nil {
		return fmt.Errorf("failed to classify: %w", err)
	}

	observability.NewPrinter(cmd.OutOrStdout()).PrintDecision(classifySubject, classifyAim, decision)
	return nil
}
