package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/LuckyLaurence/InSAR-Pipeline/internal/config"
	"github.com/LuckyLaurence/InSAR-Pipeline/internal/observability"
	"github.com/LuckyLaurence/InSAR-Pipeline/pkg/pairs"
	"github.com/LuckyLaurence/InSAR-Pipeline/pkg/sandbox"
)

var pairsCmd = &cobra.Command{
	Use:   "pairs",
	Short: "Parse and display the configured pair list",
	Long: `Parse the pair list the way a run would and display the accepted
entries with their acquisition dates and run directory names. Malformed
lines are warned about and dropped, exactly as during a run.

Example:
  insar pairs
  insar pairs --pairs data/pairs.txt`,
	RunE: runPairs,
}

var pairsFile string

func init() {
	rootCmd.AddCommand(pairsCmd)
	pairsCmd.Flags().StringVarP(&pairsFile, "pairs", "p", "", "Override pair list path")
}

func runPairs(cmd *cobra.Command, args []string) error {
	log := observability.CLILogger

	cfg, err := config.Load()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	if pairsFile != "" {
		cfg.PairsFile = pairsFile
	}

	list, err := pairs.NewResolver(log).ParseFile(cfg.PairsFile)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Cannot read pair list", err)
	}

	fmt.Printf("Pair list: %s\n", cfg.PairsFile)
	fmt.Printf("Accepted:  %d pair(s)\n\n", len(list))
	for i, p := range list {
		refDate, ok := pairs.ExtractDate(p.Reference)
		if !ok {
			refDate = pairs.UnknownDate
		}
		secDate, ok := pairs.ExtractDate(p.Secondary)
		if !ok {
			secDate = pairs.UnknownDate
		}
		fmt.Printf("[%d] %s vs %s  ->  %s\n", i+1, refDate, secDate, sandbox.DirName(p))
	}
	return nil
}
