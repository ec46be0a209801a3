package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"autoeval/internal/intervention"
	"autoeval/internal/judge"
	"autoeval/internal/logging"
	"autoeval/internal/pipeline"
	"autoeval/internal/store"
)

func newEvalWorkflowCmd() *cobra.Command {
	var (
		issueID    string
		prNumber   int
		modelFlag  string
		repoDir    string
		taskPrompt string
	)

	cmd := &cobra.Command{
		Use:   "eval-workflow",
		Short: "Evaluate a completed workflow and persist its eval record",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, table, err := loadConfig()
			if err != nil {
				return err
			}
			model := cfg.JudgeModel
			if modelFlag != "" {
				model = modelFlag
			}

			st, err := store.Open(cfg.StoreDir)
			if err != nil {
				return err
			}

			logger := logging.NewComponentLogger("eval-workflow")
			client := judge.NewOpenAIClient(model, cfg.JudgeBaseURL, cfg.JudgeAPIKey)
			evaluator := pipeline.New(cfg, table, client, st, nil, logger)

			result, err := evaluator.Run(cmd.Context(), pipeline.Options{
				IssueID:    issueID,
				PRNumber:   prNumber,
				RepoDir:    repoDir,
				TaskPrompt: taskPrompt,
			})
			if err != nil {
				return err
			}

			printResult(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&issueID, "issue", "", "issue identifier for the workflow")
	cmd.Flags().IntVar(&prNumber, "pr", 0, "pull request number for the workflow")
	cmd.Flags().StringVar(&modelFlag, "model", "", "judge model override (also EVAL_MODEL)")
	cmd.Flags().StringVar(&repoDir, "repo-dir", ".", "repository directory to inspect")
	cmd.Flags().StringVar(&taskPrompt, "task-prompt", "", "task prompt text (default: PR title and body)")
	return cmd
}

func printResult(result *pipeline.Result) {
	rec := result.Record

	if !isTTY() {
		// Machine consumers get the raw record on stdout; diagnostics still
		// reach stderr so CI pipes see persistence failures.
		data, err := json.Marshal(rec)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s marshal eval record: %v\n", red("error:"), err)
		} else {
			fmt.Println(string(data))
		}
		writeDiagnostics(os.Stderr, result)
		return
	}

	fmt.Printf("%s %s\n", bold("Autonomy score:"), scoreColor(rec.Score)(fmt.Sprintf("%.2f", rec.Score)))
	fmt.Printf("%s %s %s\n", bold("Band:"), result.Band.Label, gray("("+result.Band.Description+")"))
	fmt.Printf("%s %d event(s), weighted %.2f\n", bold("Interventions:"), rec.InterventionCount, result.Summary.TotalScore)
	if rec.InterventionCount > 0 {
		fmt.Print(gray(intervention.FormatForJudge(result.Summary)))
	}
	if rec.WorkflowCostUSD != nil {
		fmt.Printf("%s $%.4f across %d model(s)\n", bold("Workflow cost:"), *rec.WorkflowCostUSD, len(rec.WorkflowTokenUsage))
	} else {
		fmt.Printf("%s %s\n", bold("Workflow cost:"), gray("no transcript data"))
	}
	fmt.Printf("%s %s\n", bold("Rationale:"), rec.Rationale)
	writeDiagnostics(os.Stderr, result)
}

// writeDiagnostics reports warnings and persistence failures for both
// terminal and piped consumers.
func writeDiagnostics(out io.Writer, result *pipeline.Result) {
	for _, w := range result.Warnings {
		fmt.Fprintf(out, "%s %s\n", yellow("warning:"), w)
	}
	if !result.Persisted {
		fmt.Fprintln(out, red("record was NOT persisted; see warnings above"))
	}
}

func scoreColor(score float64) func(...any) string {
	switch {
	case score >= 0.8:
		return green
	case score >= 0.5:
		return yellow
	default:
		return red
	}
}
