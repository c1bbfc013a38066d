package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/LuckyLaurence/InSAR-Pipeline/internal/config"
	"github.com/LuckyLaurence/InSAR-Pipeline/internal/observability"
	"github.com/LuckyLaurence/InSAR-Pipeline/pkg/resources"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the processing environment and suggest
fixes for common issues: external tools, data layout, and credentials.

Example:
  insar doctor`,
	Run: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) {
	log := observability.CLILogger
	log.Info("=== insar doctor ===")
	log.Info("")
	log.Info("Running diagnostic checks...")
	log.Info("")

	cfg, err := config.Load()
	if err != nil {
		log.Error("Cannot resolve configuration", zap.Error(err))
		return
	}

	allChecks := true
	checkNum := 1
	const totalChecks = 6

	check := func(ok bool, okLine, badLine string) {
		if ok {
			log.Info(fmt.Sprintf("[%d/%d] %s", checkNum, totalChecks, okLine))
		} else {
			log.Warn(fmt.Sprintf("[%d/%d] %s", checkNum, totalChecks, badLine))
			allChecks = false
		}
		checkNum++
	}

	// Check 1: processor executable
	procPath, err := exec.LookPath(cfg.Processor)
	check(err == nil,
		fmt.Sprintf("Checking processor... ✅ %s", procPath),
		fmt.Sprintf("Checking processor... ❌ %s not found on PATH", cfg.Processor))
	if err != nil {
		log.Info("  Activate the processing environment (e.g. the ISCE conda env) before running.")
	}

	// Check 2: terrain acquisition tool
	demPath, err := exec.LookPath(cfg.TerrainFetcher)
	check(err == nil,
		fmt.Sprintf("Checking terrain tool... ✅ %s", demPath),
		fmt.Sprintf("Checking terrain tool... ⚠️  %s not found on PATH", cfg.TerrainFetcher))

	// Check 3: ephemeris acquisition tool
	ephem := &resources.ExecEphemerisFetcher{Path: cfg.OrbitFetcher}
	tool, err := ephem.Locate()
	check(err == nil,
		fmt.Sprintf("Checking ephemeris tool... ✅ %s", tool),
		"Checking ephemeris tool... ⚠️  not found; orbit files must be staged manually")

	// Check 4: terrain credential
	check(cfg.APIKey != "",
		"Checking terrain credential... ✅ configured",
		"Checking terrain credential... ❌ INSAR_API_KEY is not set")

	// Check 5: data layout
	missing := missingDirs(cfg)
	check(len(missing) == 0,
		fmt.Sprintf("Checking data layout... ✅ %s", cfg.DataDir),
		fmt.Sprintf("Checking data layout... ⚠️  missing %v (created on first run)", missing))

	// Check 6: environment
	check(true,
		fmt.Sprintf("Checking environment... ✅ %s/%s", runtime.GOOS, runtime.GOARCH),
		"")

	log.Info("")
	if allChecks {
		log.Info("✅ All checks passed! Your insar installation is healthy.")
	} else {
		log.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	log.Info("")
	log.Info("=== End Diagnostics ===")
}

func missingDirs(cfg *config.Config) []string {
	var missing []string
	for _, dir := range []string{cfg.RawDir(), cfg.DEMDir(), cfg.OrbitDir(), cfg.RunsDir()} {
		if _, err := os.Stat(dir); err != nil {
			missing = append(missing, dir)
		}
	}
	return missing
}
