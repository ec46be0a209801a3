package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"autoeval/internal/logging"
	"autoeval/internal/pipeline"
	"autoeval/internal/store"
)

func newBackfillCmd() *cobra.Command {
	var (
		dryRun         bool
		dirFlag        string
		transcriptDirs []string
	)

	cmd := &cobra.Command{
		Use:   "backfill-workflow-cost",
		Short: "Add missing workflow cost fields to historical eval records",
		Long: `Recomputes token usage and cost for records that lack them, from their
recorded branch identity. Populated records are never overwritten, so the
pass is idempotent. Do not run concurrently with live evaluations or another
backfill; it rewrites the store file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, table, err := loadConfig()
			if err != nil {
				return err
			}
			dir := cfg.StoreDir
			if dirFlag != "" {
				dir = dirFlag
			}
			st, err := store.Open(dir)
			if err != nil {
				return err
			}

			fill := pipeline.NewCostFiller(cfg, table, transcriptDirs, logging.NewComponentLogger("backfill"))
			result, err := st.BackfillCosts(fill, dryRun)
			if err != nil {
				return err
			}

			verb := "updated"
			if dryRun {
				verb = "would update"
			}
			fmt.Printf("%s %s %d of %d record(s), skipped %d\n",
				green("backfill:"), verb, result.Updated, result.Total, result.Skipped)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would change without rewriting the store")
	cmd.Flags().StringVar(&dirFlag, "dir", "", "store directory override")
	cmd.Flags().StringArrayVar(&transcriptDirs, "transcript-dir", nil, "extra transcript directories to scan")
	return cmd
}
