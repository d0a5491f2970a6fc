// Package executor runs switch commands on the local machine.
package executor

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"switchd/internal/domain"
	"switchd/internal/infra/config"
)

const (
	maxDetailBytes = 512
	// Exit status the POSIX shell uses when the command word is not found.
	shellNotFoundExit = 127
	waitDelay         = time.Second
)

// LocalExecutor runs shell commands through a POSIX shell and script commands
// through a script host such as osascript.
type LocalExecutor struct {
	shell      string
	scriptHost string
	scriptArgs []string
	timeout    time.Duration
	workDir    string
	env        []string
	trim       bool
	logger     *slog.Logger
}

// NewLocalExecutor creates an executor from config.
func NewLocalExecutor(cfg config.ExecutorConfig, logger *slog.Logger) *LocalExecutor {
	var env []string
	if len(cfg.Env) > 0 {
		env = append(os.Environ(), cfg.Env...)
	}
	return &LocalExecutor{
		shell:      cfg.Shell,
		scriptHost: cfg.ScriptHost,
		scriptArgs: cfg.ScriptArgs,
		timeout:    cfg.Timeout,
		workDir:    cfg.WorkDir,
		env:        env,
		trim:       cfg.TrimTrailingNewline,
		logger:     logger,
	}
}

// Execute implements domain.CommandExecutor.
func (e *LocalExecutor) Execute(ctx context.Context, c *domain.Command) (string, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	name, args := e.argv(c)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = e.workDir
	cmd.Env = e.env
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	e.logger.Debug("command finished",
		"kind", c.Kind(),
		"role", c.Role(),
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err,
	)
	if err != nil {
		return "", e.classify(ctx, name, err, stderr.String())
	}

	out := stdout.Bytes()
	if !utf8.Valid(out) {
		return "", domain.NewExecutionError(domain.ReasonMalformedOutput, "output is not valid UTF-8", nil)
	}
	s := string(out)
	if e.trim {
		s = trimOneNewline(s)
	}
	return s, nil
}

func (e *LocalExecutor) argv(c *domain.Command) (string, []string) {
	if c.Kind() == domain.ExecuteScript {
		args := make([]string, 0, len(e.scriptArgs)+1)
		args = append(args, e.scriptArgs...)
		return e.scriptHost, append(args, c.Text())
	}
	return e.shell, []string{"-c", c.Text()}
}

func (e *LocalExecutor) classify(ctx context.Context, program string, err error, stderr string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.NewExecutionError(domain.ReasonTimeout, "timed out after "+e.timeout.String(), err)
	}
	if ctx.Err() != nil {
		return domain.NewExecutionError(domain.ReasonTimeout, "canceled", ctx.Err())
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return domain.NewExecutionError(domain.ReasonNotFound, program, err)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		reason := domain.ReasonNonZeroExit
		if exitErr.ExitCode() == shellNotFoundExit {
			reason = domain.ReasonNotFound
		}
		ee := domain.NewExecutionError(reason, excerpt(stderr), err)
		ee.ExitCode = exitErr.ExitCode()
		return ee
	}
	return domain.NewExecutionError(domain.ReasonNotFound, err.Error(), err)
}

func trimOneNewline(s string) string {
	if strings.HasSuffix(s, "\r\n") {
		return s[:len(s)-2]
	}
	return strings.TrimSuffix(s, "\n")
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxDetailBytes {
		return s
	}
	cut := maxDetailBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
