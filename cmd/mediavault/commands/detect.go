package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mediavault/mediavault/internal/cli/output"
	"github.com/mediavault/mediavault/internal/logger"
	"github.com/mediavault/mediavault/pkg/config"
	"github.com/mediavault/mediavault/pkg/reconcile"
)

var (
	detectIncludeItems bool
	detectJSON         bool
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect orphaned data without modifying anything",
	Long: `Run the read-only consistency checks and print a report.

Detection walks the media bucket and cross-references the database in both
directions. Nothing is modified.

Examples:
  # Summary report
  mediavault detect

  # Include individual paths and record ids
  mediavault detect --items

  # Machine-readable output
  mediavault detect --json`,
	RunE: runDetect,
}

func init() {
	detectCmd.Flags().BoolVar(&detectIncludeItems, "items", false, "Include individual paths and record ids in the report")
	detectCmd.Flags().BoolVar(&detectJSON, "json", false, "Print the report as JSON")
}

func runDetect(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx := context.Background()
	engine, _, relStore, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := relStore.Close(); err != nil {
			logger.Error("database close error", "error", err)
		}
	}()

	summary, err := engine.Detect(ctx, detectIncludeItems)
	if err != nil {
		return err
	}

	if detectJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	printDetectionReport(summary)
	return nil
}

func printDetectionReport(summary *reconcile.DetectionSummary) {
	fmt.Printf("Total issues: %d (critical: %d, high: %d, medium: %d, low: %d)\n",
		summary.TotalIssues,
		summary.CriticalCount,
		summary.HighCount,
		summary.MediumCount,
		summary.LowCount)
	if summary.PotentialStorageSaved > 0 {
		fmt.Printf("Potential storage saved: %s\n", formatBytes(summary.PotentialStorageSaved))
	}

	if len(summary.Categories) == 0 {
		fmt.Println("\nNo orphaned data found.")
		return
	}

	fmt.Println()
	table := output.NewTable("Category", "Kind", "Severity", "Count", "Size", "Recommendation")
	for _, c := range summary.Categories {
		size := ""
		if c.SizeBytes > 0 {
			size = formatBytes(c.SizeBytes)
		}
		table.AddRow(c.Type, string(c.Kind), string(c.Severity), fmt.Sprintf("%d", c.Count), size, c.Recommendation)
	}
	table.Render(os.Stdout)

	for _, c := range summary.Categories {
		if len(c.Items) == 0 {
			continue
		}
		fmt.Printf("\n%s:\n", c.Type)
		for _, item := range c.Items {
			fmt.Printf("  %v\n", item)
		}
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
