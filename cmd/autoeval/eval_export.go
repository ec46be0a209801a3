package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"autoeval/internal/export"
	"autoeval/internal/store"
)

func newEvalExportCmd() *cobra.Command {
	var (
		formatFlag string
		output     string
		redact     bool
		fromFlag   string
		toFlag     string
		modelFlag  string
		minScore   float64
		maxScore   float64
		dirFlag    string
	)

	cmd := &cobra.Command{
		Use:   "eval-export",
		Short: "Export stored eval records as a training dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
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

			format, err := export.ParseFormat(formatFlag)
			if err != nil {
				return err
			}

			filter := store.Filter{Model: modelFlag}
			if fromFlag != "" {
				filter.From, err = time.Parse("2006-01-02", fromFlag)
				if err != nil {
					return fmt.Errorf("parse --from: %w", err)
				}
			}
			if toFlag != "" {
				to, err := time.Parse("2006-01-02", toFlag)
				if err != nil {
					return fmt.Errorf("parse --to: %w", err)
				}
				// inclusive end of day
				filter.To = to.Add(24*time.Hour - time.Nanosecond)
			}
			if cmd.Flags().Changed("min-score") {
				filter.MinScore = &minScore
			}
			if cmd.Flags().Changed("max-score") {
				filter.MaxScore = &maxScore
			}

			records, err := st.List(filter)
			if err != nil {
				return err
			}

			data, err := export.Export(records, format, redact)
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				_, err = os.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			if isTTY() {
				fmt.Printf("%s %d record(s) to %s\n", green("exported"), len(records), output)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&formatFlag, "format", "jsonl", "output format: csv or jsonl")
	cmd.Flags().StringVar(&output, "output", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&redact, "redact", false, "redact emails, URLs, and paths in free-text fields")
	cmd.Flags().StringVar(&fromFlag, "from", "", "only records on or after this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&toFlag, "to", "", "only records on or before this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&modelFlag, "model", "", "only records touching this model")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "only records with score >= this")
	cmd.Flags().Float64Var(&maxScore, "max-score", 1, "only records with score <= this")
	cmd.Flags().StringVar(&dirFlag, "dir", "", "store directory override")
	return cmd
}
