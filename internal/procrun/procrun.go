// Package procrun executes external commands (git, the GitHub CLI) and
// captures their stdout/stderr/exit code, with bounded exponential backoff
// for recognized transient failures.
package procrun

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Result is the captured outcome of a subprocess invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Options configures a single Run/RunWithRetry call.
type Options struct {
	Env         []string // extra environment variables, appended to the process env
	Dir         string
	MaxAttempts int           // default 3 for RunWithRetry, ignored by Run
	Timeout     time.Duration // 0 means no timeout
}

var transientPatterns = []string{
	"timeout",
	"timed out",
	"connection refused",
	"connection reset",
	"network unreachable",
	"temporary failure",
	"rate limit",
	"502",
	"503",
	"504",
}

// Run executes cmd with args once and returns its captured result. A
// non-zero exit code is not itself an error: callers inspect Result.ExitCode
// and Result.Stderr. Only process start failures (binary not found, etc.)
// are returned as an error.
func Run(ctx context.Context, name string, args []string, opts Options) (Result, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, name, args...)
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}
	if len(opts.Env) > 0 {
		cmd.Env = append(cmd.Environ(), opts.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return Result{}, runErr
		}
	}

	return Result{
		Stdout:   strings.TrimSpace(stdout.String()),
		Stderr:   strings.TrimSpace(stderr.String()),
		ExitCode: exitCode,
	}, nil
}

// RunWithRetry retries Run when the command failed (non-zero exit) and the
// stderr matches a recognized transient pattern. Backoff starts at 1s,
// doubles each attempt, and is capped at 10s. The final attempt's result is
// returned regardless of outcome.
func RunWithRetry(ctx context.Context, name string, args []string, opts Options) (Result, error) {
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	backoff := time.Second
	var last Result
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err := Run(ctx, name, args, opts)
		if err != nil {
			return res, err
		}
		last = res

		if res.ExitCode == 0 || !isTransient(res.Stderr) {
			return res, nil
		}

		if attempt == maxAttempts {
			break
		}

		log.Debug().Str("cmd", name).Int("attempt", attempt).Dur("backoff", backoff).
			Msg("transient failure, retrying")

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
	}

	return last, nil
}

func isTransient(stderr string) bool {
	lower := strings.ToLower(stderr)
	for _, pattern := range transientPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
