package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"autoeval/internal/judge"
	"autoeval/internal/logging"
	"autoeval/internal/pipeline"
	"autoeval/internal/store"
)

// newHookCmd is the post-completion entry point workflows attach to. It is
// fire-and-forget by contract: every internal failure is logged and swallowed
// and the process exits 0, so a broken evaluation can never block the
// workflow that triggered it.
func newHookCmd() *cobra.Command {
	var (
		issueID  string
		prNumber int
		repoDir  string
	)

	cmd := &cobra.Command{
		Use:    "hook",
		Short:  "Post-completion hook: evaluate and never fail",
		Hidden: true,
		Run: func(cmd *cobra.Command, args []string) {
			logger := logging.NewComponentLogger("hook")

			cfg, table, err := loadConfig()
			if err != nil {
				logger.Error("hook config load failed: %v", err)
				return
			}
			st, err := store.Open(cfg.StoreDir)
			if err != nil {
				logger.Error("hook store open failed: %v", err)
				return
			}

			client := judge.NewOpenAIClient(cfg.JudgeModel, cfg.JudgeBaseURL, cfg.JudgeAPIKey)
			evaluator := pipeline.New(cfg, table, client, st, nil, logger)

			result, err := evaluator.Run(cmd.Context(), pipeline.Options{
				IssueID:  issueID,
				PRNumber: prNumber,
				RepoDir:  repoDir,
			})
			if err != nil {
				logger.Error("hook evaluation failed: %v", err)
				return
			}
			fmt.Fprintf(os.Stderr, "autoeval: scored %.2f (%s)\n", result.Record.Score, result.Band.Label)
		},
	}

	cmd.Flags().StringVar(&issueID, "issue", "", "issue identifier for the workflow")
	cmd.Flags().IntVar(&prNumber, "pr", 0, "pull request number for the workflow")
	cmd.Flags().StringVar(&repoDir, "repo-dir", ".", "repository directory to inspect")
	return cmd
}
