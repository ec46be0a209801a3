// autoeval evaluates how autonomously an AI coding agent completed a
// workflow, producing append-only eval records and exporting them as
// training datasets.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"autoeval/internal/evalconfig"
	"autoeval/internal/pricing"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// isTTY reports whether stdout is a terminal. Piped output gets raw JSON
// instead of the colored summary.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "autoeval",
		Short:         "Score agent workflow autonomy and build eval datasets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.autoeval/autoeval.yaml)")

	root.AddCommand(newEvalWorkflowCmd())
	root.AddCommand(newEvalExportCmd())
	root.AddCommand(newBackfillCmd())
	root.AddCommand(newHookCmd())
	return root
}

func loadConfig() (evalconfig.Config, pricing.Table, error) {
	cfg, err := evalconfig.Load(configPath)
	if err != nil {
		return evalconfig.Config{}, nil, err
	}
	table := pricing.DefaultTable()
	if cfg.PricingTablePath != "" {
		table, err = pricing.LoadTable(evalconfig.ExpandHome(cfg.PricingTablePath))
		if err != nil {
			return evalconfig.Config{}, nil, err
		}
	}
	return cfg, table, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, red("error: ")+err.Error())
		os.Exit(1)
	}
}
