// Package awscli runs command requests through the aws command-line tool.
package awscli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/opsdeck/opsdeck/internal/domain/command"
	"github.com/opsdeck/opsdeck/internal/pkg/logger"
)

// DefaultTimeout bounds a single aws invocation.
const DefaultTimeout = 2 * time.Minute

// Executor implements command.Executor by shelling out to aws.
type Executor struct {
	// Binary is the aws executable; defaults to "aws" on PATH.
	Binary string

	// Timeout bounds each call; zero means DefaultTimeout.
	Timeout time.Duration

	log *slog.Logger
}

// NewExecutor creates an executor with default settings.
func NewExecutor() *Executor {
	return &Executor{Binary: "aws", Timeout: DefaultTimeout}
}

// WithBinary sets the aws executable.
func (e *Executor) WithBinary(binary string) *Executor {
	e.Binary = binary
	return e
}

// WithTimeout sets the per-call timeout.
func (e *Executor) WithTimeout(d time.Duration) *Executor {
	e.Timeout = d
	return e
}

// WithLogger sets the logger used for command tracing.
func (e *Executor) WithLogger(l *slog.Logger) *Executor {
	e.log = l
	return e
}

func (e *Executor) binary() string {
	if e.Binary == "" {
		return "aws"
	}
	return e.Binary
}

func (e *Executor) timeout() time.Duration {
	if e.Timeout <= 0 {
		return DefaultTimeout
	}
	return e.Timeout
}

func (e *Executor) logger() *slog.Logger {
	if e.log == nil {
		return logger.Default()
	}
	return e.log
}

// Execute runs the request and decodes its JSON output.
func (e *Executor) Execute(ctx context.Context, req command.Request) (command.Document, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	spec, err := req.Spec()
	if err != nil {
		return nil, err
	}

	nativeDryRun := false
	if req.DryRun && spec.Mutating {
		if !req.Service.NativeDryRun() {
			return nil, &command.DryRunError{Command: req.CommandLine(e.binary())}
		}
		nativeDryRun = true
		req.Options = append(append(command.Options(nil), req.Options...), command.Opt("dry_run", ""))
	}

	args := append(req.Args(), "--output", "json")
	line := strings.Join(append([]string{e.binary()}, args...), " ")

	ctx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()

	cmd := exec.CommandContext(ctx, e.binary(), args...)
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.logger().Debug("running aws command", "command", line)

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &command.DependencyError{Command: line, Timeout: true, Err: ctx.Err()}
		}
		msg := strings.TrimSpace(stderr.String())
		if nativeDryRun && strings.Contains(msg, "DryRunOperation") {
			e.logger().Debug("dry run succeeded", "command", line)
			return nil, nil
		}
		status := 0
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			status = exitErr.ExitCode()
		}
		return nil, &command.DependencyError{Command: line, Status: status, Stderr: msg, Err: err}
	}

	return decode(line, stdout.Bytes())
}

// decode parses command output. Empty output is a nil document.
func decode(call string, out []byte) (command.Document, error) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return nil, nil
	}
	var doc command.Document
	if err := json.Unmarshal(out, &doc); err != nil {
		return nil, &command.ParseError{Call: call, Key: "stdout", Err: err}
	}
	return doc, nil
}
