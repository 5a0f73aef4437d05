package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mediavault/mediavault/internal/cli/output"
	"github.com/mediavault/mediavault/internal/cli/prompt"
	"github.com/mediavault/mediavault/internal/logger"
	"github.com/mediavault/mediavault/pkg/config"
	"github.com/mediavault/mediavault/pkg/reconcile"
)

var (
	cleanupDryRun bool
	cleanupYes    bool
	cleanupJSON   bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove orphaned data",
	Long: `Run a cleanup pass over the media bucket and the reference database.

Use --dry-run to preview what would be removed without touching anything.
A real run asks you to type 'delete' to confirm, unless --yes is given.

Examples:
  # Preview what would be removed
  mediavault cleanup --dry-run

  # Real run with confirmation prompt
  mediavault cleanup

  # Real run, no prompt (for cron)
  mediavault cleanup --yes`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Report what would be removed without deleting")
	cleanupCmd.Flags().BoolVarP(&cleanupYes, "yes", "y", false, "Skip the confirmation prompt")
	cleanupCmd.Flags().BoolVar(&cleanupJSON, "json", false, "Print the result as JSON")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	if !cleanupDryRun && !cleanupYes {
		ok, err := prompt.ConfirmDanger("Permanently delete orphaned data", "delete")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Cleanup cancelled.")
			return nil
		}
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

	result, err := engine.Cleanup(ctx, cleanupDryRun)
	if err != nil {
		return err
	}

	if cleanupJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	printCleanupReport(result)

	if len(result.Errors) > 0 {
		return fmt.Errorf("cleanup finished with %d errors", len(result.Errors))
	}
	return nil
}

func printCleanupReport(result *reconcile.CleanupResult) {
	mode := "cleanup"
	if result.DryRun {
		mode = "dry run"
	}
	fmt.Printf("Mode: %s\n", mode)
	fmt.Printf("Records cleaned: %d\n", result.Totals.RecordsCleaned)
	fmt.Printf("Files deleted: %d\n", result.Totals.FilesDeleted)
	if result.Totals.StorageFreedBytes > 0 {
		fmt.Printf("Storage freed: %s\n", formatBytes(result.Totals.StorageFreedBytes))
	}

	if len(result.Audit) > 0 {
		fmt.Println()
		table := output.NewTable("Category", "Attempted", "Deleted", "Skipped", "Errors")
		for category, a := range result.Audit {
			table.AddRow(category,
				fmt.Sprintf("%d", a.Attempted),
				fmt.Sprintf("%d", a.Deleted),
				fmt.Sprintf("%d", a.Skipped),
				fmt.Sprintf("%d", a.Errors))
		}
		table.Render(os.Stdout)
	}

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for _, e := range result.Errors {
			retriable := "retriable"
			if !e.Retriable {
				retriable = "not retriable"
			}
			key := e.Key
			if key == "" {
				key = e.ID
			}
			if key != "" {
				fmt.Printf("  [%s] %s %s: %s (%s)\n", e.Type, e.Category, key, e.Reason, retriable)
			} else {
				fmt.Printf("  [%s] %s: %s (%s)\n", e.Type, e.Category, e.Reason, retriable)
			}
		}
	}
}
