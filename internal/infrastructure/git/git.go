// Package git drives the git command-line tool for the repositories opsdeck
// edits on behalf of its users.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/opsdeck/opsdeck/internal/domain/command"
	"github.com/opsdeck/opsdeck/internal/pkg/logger"
)

// DefaultTimeout bounds a single git invocation.
const DefaultTimeout = 5 * time.Minute

// DefaultRemote is the remote every push goes to.
const DefaultRemote = "origin"

// Client runs git subcommands inside a working copy.
type Client struct {
	// Binary is the git executable; defaults to "git" on PATH.
	Binary string

	// Timeout bounds each call; zero means DefaultTimeout.
	Timeout time.Duration

	// Name and Email set the committer identity when non-empty.
	Name  string
	Email string

	log *slog.Logger
}

// NewClient creates a client with default settings.
func NewClient() *Client {
	return &Client{Binary: "git", Timeout: DefaultTimeout}
}

// WithBinary sets the git executable.
func (c *Client) WithBinary(binary string) *Client {
	c.Binary = binary
	return c
}

// WithTimeout sets the per-call timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.Timeout = d
	return c
}

// WithIdentity sets the author and committer of new commits. Empty values
// keep the user's git configuration.
func (c *Client) WithIdentity(name, email string) *Client {
	c.Name = name
	c.Email = email
	return c
}

// WithLogger sets the logger used for command tracing.
func (c *Client) WithLogger(l *slog.Logger) *Client {
	c.log = l
	return c
}

func (c *Client) binary() string {
	if c.Binary == "" {
		return "git"
	}
	return c.Binary
}

func (c *Client) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

func (c *Client) logger() *slog.Logger {
	if c.log == nil {
		return logger.Default()
	}
	return c.log
}

// Clone clones url into dir. With force an existing working copy of url is
// removed first; any other non-empty dir is left alone and reported.
// Without force an existing working copy is fast-forwarded instead.
func (c *Client) Clone(ctx context.Context, url, dir string, force bool) error {
	if force {
		if err := c.discard(ctx, url, dir); err != nil {
			return err
		}
	} else if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		c.logger().Debug("reusing working copy", "dir", dir)
		_, err := c.run(ctx, dir, "pull", "--ff-only")
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dir), err)
	}
	_, err := c.run(ctx, "", "clone", url, dir)
	return err
}

// discard removes dir when it is missing, empty or a working copy cloned
// from url.
func (c *Client) discard(ctx context.Context, url, dir string) error {
	entries, err := os.ReadDir(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("failed to read %s: %w", dir, err)
	case len(entries) == 0:
		return nil
	}

	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		return fmt.Errorf("refusing to replace %s: not a git working copy", dir)
	}
	origin, err := c.run(ctx, dir, "remote", "get-url", DefaultRemote)
	if err != nil || origin != url {
		return fmt.Errorf("refusing to replace %s: not a working copy of %s", dir, url)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", dir, err)
	}
	return nil
}

// CreateBranch creates branch from HEAD and switches to it.
func (c *Client) CreateBranch(ctx context.Context, dir, branch string) error {
	_, err := c.run(ctx, dir, "checkout", "-b", branch)
	return err
}

// Checkout switches to an existing branch.
func (c *Client) Checkout(ctx context.Context, dir, branch string) error {
	_, err := c.run(ctx, dir, "checkout", branch)
	return err
}

// AddAll stages every change in the working copy.
func (c *Client) AddAll(ctx context.Context, dir string) error {
	_, err := c.run(ctx, dir, "add", "--all")
	return err
}

// Commit records the staged changes.
func (c *Client) Commit(ctx context.Context, dir, message string) error {
	_, err := c.run(ctx, dir, "commit", "--message", message)
	return err
}

// Merge merges from into to with a merge commit, leaving to checked out.
func (c *Client) Merge(ctx context.Context, dir, from, to, message string) error {
	if err := c.Checkout(ctx, dir, to); err != nil {
		return err
	}
	_, err := c.run(ctx, dir, "merge", "--no-ff", "--message", message, from)
	return err
}

// Push pushes refs to the default remote. A dry run asks the remote
// whether the push would succeed without updating it.
func (c *Client) Push(ctx context.Context, dir string, dryRun bool, refs ...string) error {
	args := []string{"push"}
	if dryRun {
		args = append(args, "--dry-run")
	}
	args = append(args, DefaultRemote)
	args = append(args, refs...)
	_, err := c.run(ctx, dir, args...)
	return err
}

// run executes git in dir and returns its trimmed stdout.
func (c *Client) run(ctx context.Context, dir string, args ...string) (string, error) {
	var full []string
	if c.Name != "" {
		full = append(full, "-c", "user.name="+c.Name)
	}
	if c.Email != "" {
		full = append(full, "-c", "user.email="+c.Email)
	}
	if dir != "" {
		full = append(full, "-C", dir)
	}
	full = append(full, args...)
	line := strings.Join(append([]string{c.binary()}, full...), " ")

	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	cmd := exec.CommandContext(ctx, c.binary(), full...)
	cmd.WaitDelay = time.Second
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.logger().Debug("running git command", "command", line)

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &command.DependencyError{Command: line, Timeout: true, Err: ctx.Err()}
		}
		status := 0
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			status = exitErr.ExitCode()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		return "", &command.DependencyError{Command: line, Status: status, Stderr: msg, Err: err}
	}
	return strings.TrimSpace(stdout.String()), nil
}
