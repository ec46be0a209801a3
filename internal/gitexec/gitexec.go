// Package gitexec wraps the git and gh CLIs for read-only history and PR
// lookups. Both binaries run with pagers and prompts disabled so output is
// safe to parse from scripts and hooks.
package gitexec

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
)

// Runner executes a command in a repository directory and returns trimmed
// combined output. Extracted as a function type so scanners can be tested
// against canned output without a real repository.
type Runner func(ctx context.Context, dir, binary string, args ...string) (string, error)

// Run is the production Runner.
func Run(ctx context.Context, dir, binary string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = dir
	cmd.Env = mergeEnv(os.Environ(), map[string]string{
		"GIT_PAGER":           "cat",
		"GIT_TERMINAL_PROMPT": "0",
		"GIT_SSH_COMMAND":     "ssh -oBatchMode=yes",
		"GH_PROMPT_DISABLED":  "1",
		"GH_PAGER":            "cat",
		"NO_COLOR":            "1",
	})
	output, err := cmd.CombinedOutput()
	result := string(output)
	if err != nil {
		cleaned := strings.TrimSpace(result)
		if cleaned != "" {
			return "", fmt.Errorf("%s %s failed: %s", binary, strings.Join(args, " "), cleaned)
		}
		return "", fmt.Errorf("%s %s failed: %w", binary, strings.Join(args, " "), err)
	}
	return strings.TrimSpace(result), nil
}

// Git runs a git subcommand in dir.
func Git(ctx context.Context, run Runner, dir string, args ...string) (string, error) {
	return run(ctx, dir, "git", args...)
}

// Gh runs a gh subcommand in dir.
func Gh(ctx context.Context, run Runner, dir string, args ...string) (string, error) {
	return run(ctx, dir, "gh", args...)
}

// EnsureRepo verifies dir is inside a git work tree.
func EnsureRepo(ctx context.Context, run Runner, dir string) error {
	if _, err := Git(ctx, run, dir, "rev-parse", "--is-inside-work-tree"); err != nil {
		return fmt.Errorf("not a git repository: %w", err)
	}
	return nil
}

func mergeEnv(base []string, overrides map[string]string) []string {
	env := make(map[string]string, len(base)+len(overrides))
	for _, entry := range base {
		if idx := strings.Index(entry, "="); idx != -1 {
			env[entry[:idx]] = entry[idx+1:]
		}
	}
	for key, value := range overrides {
		env[key] = value
	}

	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	merged := make([]string, 0, len(env))
	for _, key := range keys {
		merged = append(merged, fmt.Sprintf("%s=%s", key, env[key]))
	}
	return merged
}
