package judge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"autoeval/internal/logging"
)

// ErrMalformedJudgeOutput marks a judge response that failed schema or rubric
// validation. Callers must not persist a verdict carrying this error.
var ErrMalformedJudgeOutput = errors.New("malformed judge output")

// FunctionalBugCeiling is the hard score ceiling once a human had to catch or
// fix a functional bug.
const FunctionalBugCeiling = 0.7

// autonomousFloor is the minimum score when no intervention was detected.
const autonomousFloor = 0.9

// Verdict is the judge's structured output after validation.
type Verdict struct {
	Score                float64  `json:"score"`
	Rationale            string   `json:"rationale"`
	InterventionRequired bool     `json:"intervention_required"`
	InterventionFlags    []string `json:"intervention_flags,omitempty"`
	FunctionalBug        bool     `json:"functional_bug,omitempty"`
}

// Request carries the three judge inputs plus the scanner's event count,
// which validation uses to cross-check the verdict.
type Request struct {
	TaskPrompt        string
	PRText            string
	InterventionText  string
	InterventionCount int
}

// Invoker packages evaluation context into a rubric-constrained judge call.
type Invoker struct {
	client LLMClient
	logger logging.Logger

	// maxPRTokens bounds the diff/review text fed to the judge.
	maxPRTokens int
}

// NewInvoker creates an Invoker over the given judging model client.
func NewInvoker(client LLMClient, logger logging.Logger) *Invoker {
	return &Invoker{client: client, logger: logging.OrNop(logger), maxPRTokens: 12000}
}

const rubricSystemPrompt = `You are an autonomy judge for AI coding agents. You score how autonomously an agent completed a software task, given the task prompt, the resulting PR diff and review activity, and a list of detected human intervention events.

Scoring rubric (fixed, apply exactly):
- 1.0: no intervention, fully autonomous completion
- 0.8-0.9: only cosmetic intervention (formatting, wording, trivial nits)
- at most 0.7 (hard ceiling): any functional bug a human had to catch or fix
- 0.5-0.6: multiple functional bugs or substantial rework by a human
- 0.5 and below: heavy intervention (multiple manual edits, redesign)

Rules:
- If the intervention report names events, your rationale must reference them concretely and intervention_flags must name each event you considered, e.g. "manual_edit: human rewrote the retry loop (functional)".
- Set functional_bug to true whenever any intervention fixed broken behavior.
- Never exceed 0.7 when functional_bug is true.

Respond with ONLY a single JSON object, no prose around it:
{"score": <number 0-1>, "rationale": "<specific explanation>", "intervention_required": <bool>, "intervention_flags": ["<type>: <what happened>"], "functional_bug": <bool>}`

// Evaluate invokes the judge and returns a validated verdict. Any parse or
// rubric-consistency failure returns ErrMalformedJudgeOutput.
func (inv *Invoker) Evaluate(ctx context.Context, req Request) (*Verdict, error) {
	resp, err := inv.client.Complete(ctx, CompletionRequest{
		System:      rubricSystemPrompt,
		User:        inv.buildUserPrompt(req),
		Temperature: 0.0,
		MaxTokens:   1024,
	})
	if err != nil {
		return nil, fmt.Errorf("invoke judge %s: %w", inv.client.Model(), err)
	}

	verdict, err := ParseVerdict(resp.Content)
	if err != nil {
		inv.logger.Error("judge %s returned unparseable verdict: %v", inv.client.Model(), err)
		return nil, err
	}
	if err := ValidateVerdict(verdict, req.InterventionCount); err != nil {
		inv.logger.Error("judge %s verdict failed validation: %v", inv.client.Model(), err)
		return nil, err
	}
	return verdict, nil
}

func (inv *Invoker) buildUserPrompt(req Request) string {
	var sb strings.Builder
	sb.WriteString("## Task prompt\n")
	sb.WriteString(strings.TrimSpace(req.TaskPrompt))
	sb.WriteString("\n\n## PR diff and review activity\n")
	prText := strings.TrimSpace(req.PRText)
	if prText == "" {
		prText = "(no PR text available)"
	}
	sb.WriteString(truncateToTokens(prText, inv.maxPRTokens))
	sb.WriteString("\n\n## Intervention report\n")
	sb.WriteString(strings.TrimSpace(req.InterventionText))
	sb.WriteString("\n\nScore this workflow per the rubric.")
	return sb.String()
}

// ParseVerdict extracts the single JSON verdict from raw model output. Models
// wrap JSON in code fences or prose often enough that we first slice to the
// outermost braces, then fall back to jsonrepair for sloppy-but-recoverable
// output (trailing commas, single quotes).
func ParseVerdict(content string) (*Verdict, error) {
	content = strings.TrimSpace(content)
	if idx := strings.Index(content, "{"); idx >= 0 {
		if end := strings.LastIndex(content, "}"); end > idx {
			content = content[idx : end+1]
		}
	}
	if content == "" || !strings.HasPrefix(content, "{") {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrMalformedJudgeOutput)
	}

	var v Verdict
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(content)
		if repairErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedJudgeOutput, err)
		}
		if err := json.Unmarshal([]byte(repaired), &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedJudgeOutput, err)
		}
	}
	return &v, nil
}

// ValidateVerdict enforces the rubric's structural invariants. Out-of-range
// scores are rejected outright, never clamped, so a drifting judge cannot
// silently corrupt the dataset.
func ValidateVerdict(v *Verdict, interventionCount int) error {
	if v == nil {
		return fmt.Errorf("%w: nil verdict", ErrMalformedJudgeOutput)
	}
	if math.IsNaN(v.Score) || math.IsInf(v.Score, 0) {
		return fmt.Errorf("%w: score is not finite", ErrMalformedJudgeOutput)
	}
	if v.Score < 0 || v.Score > 1 {
		return fmt.Errorf("%w: score %.3f outside [0,1]", ErrMalformedJudgeOutput, v.Score)
	}
	if strings.TrimSpace(v.Rationale) == "" {
		return fmt.Errorf("%w: empty rationale", ErrMalformedJudgeOutput)
	}
	if v.InterventionRequired && len(v.InterventionFlags) == 0 {
		return fmt.Errorf("%w: intervention required but no events named", ErrMalformedJudgeOutput)
	}
	if interventionCount > 0 && len(v.InterventionFlags) == 0 {
		return fmt.Errorf("%w: %d interventions detected but verdict names none", ErrMalformedJudgeOutput, interventionCount)
	}
	if v.HasFunctionalBug() && v.Score > FunctionalBugCeiling {
		return fmt.Errorf("%w: score %.2f exceeds the %.1f ceiling for functional-bug interventions", ErrMalformedJudgeOutput, v.Score, FunctionalBugCeiling)
	}
	if interventionCount == 0 && v.Score < autonomousFloor {
		// The floor binds on the scanner's count alone. A verdict claiming
		// interventions the scanner never saw cannot drag the score down.
		return fmt.Errorf("%w: score %.2f below %.1f despite zero detected interventions", ErrMalformedJudgeOutput, v.Score, autonomousFloor)
	}
	return nil
}

// HasFunctionalBug reports whether the verdict records a functional bug a
// human had to catch, either via the explicit field or a flag labeled as
// functional.
func (v *Verdict) HasFunctionalBug() bool {
	if v.FunctionalBug {
		return true
	}
	for _, flag := range v.InterventionFlags {
		if strings.Contains(strings.ToLower(flag), "functional") {
			return true
		}
	}
	return false
}
