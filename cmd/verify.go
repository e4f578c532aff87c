package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/factharbor/verify-cli/internal/model"
)

var (
	verifyFile   string
	verifyDeep   bool
	verifyAsJSON bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify [text]",
	Short: "Verify the factual claims in a piece of text",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		input, err := readInput(args)
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, "analyze")
		if err != nil {
			return err
		}
		defer env.Close()

		variant := model.VariantStandard
		if verifyDeep {
			variant = model.VariantDeep
		}

		result, err := env.Pipeline.Run(ctx, input, variant)
		if err != nil {
			return eris.Wrap(err, "verify")
		}

		if verifyAsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		printResult(result)
		return nil
	},
}

func readInput(args []string) (string, error) {
	if verifyFile != "" {
		data, err := os.ReadFile(verifyFile)
		if err != nil {
			return "", eris.Wrap(err, "read input file")
		}
		return string(data), nil
	}
	if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
		return args[0], nil
	}
	return "", eris.New("provide text as an argument or via --file")
}

func printResult(result *model.AnalysisResult) {
	for _, v := range result.Verdicts {
		fmt.Printf("[%s] %.0f%% true (confidence %.0f)\n", v.Label(), v.TruthPercentage, v.Confidence)
		fmt.Printf("  claim: %s\n", v.ClaimText)
		fmt.Printf("  %s\n", v.Reasoning)
		if len(v.SupportingEvidenceIDs) > 0 {
			fmt.Printf("  evidence: %s\n", strings.Join(v.SupportingEvidenceIDs, ", "))
		}
		fmt.Println()
	}

	fmt.Printf("%d claims, %d evidence items, %d sources\n",
		len(result.Verdicts), len(result.Evidence), len(result.Sources))
	if result.RecencyPenalty > 0 {
		fmt.Printf("recency penalty: -%.0f confidence\n", result.RecencyPenalty)
	}
	for _, w := range result.Warnings {
		zap.L().Warn("analysis warning", zap.String("warning", w))
	}
}

func init() {
	verifyCmd.Flags().StringVarP(&verifyFile, "file", "f", "", "read input text from a file")
	verifyCmd.Flags().BoolVar(&verifyDeep, "deep", false, "use the deep analysis variant")
	verifyCmd.Flags().BoolVar(&verifyAsJSON, "json", false, "print the full result as JSON")
	rootCmd.AddCommand(verifyCmd)
}
