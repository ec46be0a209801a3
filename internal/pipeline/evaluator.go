// Package pipeline composes the evaluation flow for one completed workflow:
// resolve context, scan interventions, aggregate token usage, price it,
// invoke the judge, persist the record. The pipeline is sequential per
// invocation; independent evaluations may run concurrently because each one
// reads its own git/transcript slice and the store serializes appends.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"autoeval/internal/evalconfig"
	"autoeval/internal/gitexec"
	"autoeval/internal/intervention"
	"autoeval/internal/judge"
	"autoeval/internal/logging"
	"autoeval/internal/pricing"
	"autoeval/internal/record"
	"autoeval/internal/store"
	"autoeval/internal/transcript"
)

// ErrContextUnresolved means no issue or PR could be identified for the
// invocation. Fatal to this evaluation only.
var ErrContextUnresolved = errors.New("no issue or PR context could be resolved")

// Evaluator runs the end-to-end evaluation of one workflow.
type Evaluator struct {
	cfg     evalconfig.Config
	weights map[record.EventType]float64
	table   pricing.Table
	client  judge.LLMClient
	store   *store.Store
	run     gitexec.Runner
	logger  logging.Logger
}

// New wires an Evaluator. run may be nil to use the real git/gh binaries.
func New(cfg evalconfig.Config, table pricing.Table, client judge.LLMClient, st *store.Store, run gitexec.Runner, logger logging.Logger) *Evaluator {
	if run == nil {
		run = gitexec.Run
	}
	return &Evaluator{
		cfg:     cfg,
		weights: cfg.Weights(),
		table:   table,
		client:  client,
		store:   st,
		run:     run,
		logger:  logging.OrNop(logger),
	}
}

// Options identify the workflow under evaluation.
type Options struct {
	IssueID    string
	PRNumber   int
	RepoDir    string
	TaskPrompt string
}

// Result is what an evaluation produced, including whether the record made
// it to durable storage. A failed append still returns the record so the
// signal is not lost.
type Result struct {
	Record    *record.EvalRecord
	Band      record.ScoreBand
	Summary   record.InterventionSummary
	Warnings  []string
	Persisted bool
}

type prContext struct {
	url    string
	title  string
	body   string
	branch string
	base   string
}

// Run evaluates one workflow. Source lookups degrade to empty signals with
// warnings; only unresolved context, judge failure, and malformed judge
// output surface as errors.
func (e *Evaluator) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.PRNumber <= 0 && opts.IssueID == "" {
		return nil, ErrContextUnresolved
	}

	var warnings []string
	warn := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		warnings = append(warnings, msg)
		e.logger.Warn("%s", msg)
	}

	prCtx := e.resolvePR(ctx, opts, warn)
	if prCtx.branch == "" {
		// Without a branch there is no commit or transcript slice to read,
		// but the review signals and judge can still run.
		warn("no branch resolved; commit and cost signals unavailable")
	}

	events := intervention.NewScanner(opts.RepoDir, e.cfg.AgentAuthors, e.cfg.TestFixPatterns, e.run, e.logger).
		Scan(ctx, opts.PRNumber, prCtx.branch, prCtx.base)
	summary := intervention.Summarize(events, e.weights)

	usage, costUSD, unpriced := e.resolveCost(prCtx.branch, warn)

	prText := e.fetchPRText(ctx, opts, prCtx, warn)
	taskPrompt := opts.TaskPrompt
	if taskPrompt == "" {
		taskPrompt = prCtx.title
		if prCtx.body != "" {
			taskPrompt += "\n\n" + prCtx.body
		}
	}
	if taskPrompt == "" {
		taskPrompt = "(task prompt unavailable; judge from PR contents alone)"
	}

	verdict, err := judge.NewInvoker(e.client, e.logger).Evaluate(ctx, judge.Request{
		TaskPrompt:        taskPrompt,
		PRText:            prText,
		InterventionText:  intervention.FormatForJudge(summary),
		InterventionCount: summary.TotalCount(),
	})
	if err != nil {
		return nil, err
	}

	rec := &record.EvalRecord{
		ID:                   uuid.NewString(),
		IssueID:              opts.IssueID,
		PRURL:                prCtx.url,
		JudgeModel:           e.client.Model(),
		JudgeProvider:        e.cfg.JudgeProvider,
		Score:                verdict.Score,
		Rationale:            verdict.Rationale,
		InterventionRequired: verdict.InterventionRequired,
		InterventionCount:    summary.TotalCount(),
		InterventionDetails:  summary.AllDetails(),
		Metadata:             e.buildMetadata(summary, verdict, prCtx, taskPrompt, unpriced),
		WorkflowTokenUsage:   usage,
		Timestamp:            time.Now().UTC(),
	}
	if usage != nil {
		rec.WorkflowCostUSD = &costUSD
	}

	result := &Result{
		Record:    rec,
		Band:      record.BandFor(rec.Score),
		Summary:   summary,
		Persisted: true,
	}
	if err := e.store.Append(rec); err != nil {
		// The evaluation still happened; report it even though it is not
		// durably stored.
		warn("persist eval record: %v", err)
		result.Persisted = false
	}
	result.Warnings = warnings
	return result, nil
}

func (e *Evaluator) buildMetadata(summary record.InterventionSummary, verdict *judge.Verdict, prCtx prContext, taskPrompt string, unpriced []string) map[string]any {
	meta := map[string]any{
		"intervention_summary": summary,
		"task_prompt":          taskPrompt,
	}
	if prCtx.branch != "" {
		meta["branch"] = prCtx.branch
	}
	if prCtx.base != "" {
		meta["base"] = prCtx.base
	}
	if len(verdict.InterventionFlags) > 0 {
		meta["intervention_flags"] = verdict.InterventionFlags
	}
	if verdict.HasFunctionalBug() {
		meta["functional_bug"] = true
	}
	if len(unpriced) > 0 {
		meta["unpriced_models"] = unpriced
	}
	return meta
}

// resolvePR resolves branch identity and PR metadata. Lookup failures
// degrade: a missing PR still evaluates from the local branch.
func (e *Evaluator) resolvePR(ctx context.Context, opts Options, warn func(string, ...any)) prContext {
	prCtx := prContext{base: "main"}

	if opts.PRNumber > 0 {
		out, err := gitexec.Gh(ctx, e.run, opts.RepoDir, "pr", "view", strconv.Itoa(opts.PRNumber),
			"--json", "url,title,body,headRefName,baseRefName")
		if err != nil {
			warn("PR #%d metadata unavailable: %v", opts.PRNumber, err)
		} else {
			var info struct {
				URL         string `json:"url"`
				Title       string `json:"title"`
				Body        string `json:"body"`
				HeadRefName string `json:"headRefName"`
				BaseRefName string `json:"baseRefName"`
			}
			if err := json.Unmarshal([]byte(out), &info); err != nil {
				warn("parse PR #%d metadata: %v", opts.PRNumber, err)
			} else {
				prCtx.url = info.URL
				prCtx.title = info.Title
				prCtx.body = info.Body
				prCtx.branch = info.HeadRefName
				if info.BaseRefName != "" {
					prCtx.base = info.BaseRefName
				}
			}
		}
	}

	if prCtx.branch == "" {
		branch, err := gitexec.Git(ctx, e.run, opts.RepoDir, "rev-parse", "--abbrev-ref", "HEAD")
		if err != nil || branch == "HEAD" {
			// detached HEAD or no repository; leave branch empty
			if err != nil {
				warn("current branch unavailable: %v", err)
			}
		} else {
			prCtx.branch = branch
		}
	}
	return prCtx
}

func (e *Evaluator) fetchPRText(ctx context.Context, opts Options, prCtx prContext, warn func(string, ...any)) string {
	if opts.PRNumber <= 0 {
		return ""
	}
	diff, err := gitexec.Gh(ctx, e.run, opts.RepoDir, "pr", "diff", strconv.Itoa(opts.PRNumber))
	if err != nil {
		warn("PR #%d diff unavailable: %v", opts.PRNumber, err)
		return prCtx.body
	}
	return diff
}

func (e *Evaluator) resolveCost(branch string, warn func(string, ...any)) (map[string]record.ModelTokenUsage, float64, []string) {
	if branch == "" {
		return nil, 0, nil
	}
	agg := transcript.NewAggregator(e.cfg.ExpandedTranscriptDirs(), e.logger)
	usage := agg.Aggregate(branch)
	if usage == nil {
		// no matching turns: distinct from zero cost
		return nil, 0, nil
	}
	total, unpriced := e.table.Resolve(usage)
	if len(unpriced) > 0 {
		warn("no pricing for models %v; their cost recorded as 0", unpriced)
	}
	return usage, total, unpriced
}

// NewCostFiller builds a store.CostFiller that recomputes cost for
// historical records from their recorded branch identity. Records without a
// branch or without matching transcripts are left untouched. extraRoots adds
// transcript directories beyond the configured ones, since worktrees
// relocate over time.
func NewCostFiller(cfg evalconfig.Config, table pricing.Table, extraRoots []string, logger logging.Logger) store.CostFiller {
	roots := append(cfg.ExpandedTranscriptDirs(), extraRoots...)
	agg := transcript.NewAggregator(roots, logger)
	return func(r *record.EvalRecord) (*float64, map[string]record.ModelTokenUsage) {
		branch, _ := r.Metadata["branch"].(string)
		if branch == "" {
			return nil, nil
		}
		usage := agg.Aggregate(branch)
		if usage == nil {
			return nil, nil
		}
		total, _ := table.Resolve(usage)
		return &total, usage
	}
}
