// Package jobs turns build-server job metadata into a command grammar and
// carries out the actions bound to it.
package jobs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/opsdeck/opsdeck/internal/pkg/logger"
)

// Argument is one resolved job parameter, in job parameter order.
type Argument struct {
	Name  string
	Value string
}

// Actions are the operations bound to the synthesized grammar. Every
// mutating action performs nothing but a printed description when dryRun
// is set.
type Actions interface {
	Build(ctx context.Context, job string, args []Argument, dryRun bool) error
	Copy(ctx context.Context, job, newName string, dryRun bool) error
	Delete(ctx context.Context, job string, dryRun bool) error
	Enable(ctx context.Context, job string, dryRun bool) error
	Disable(ctx context.Context, job string, dryRun bool) error
	SaveConfig(ctx context.Context, job string) (string, error)
}

// Server is the build-server surface used by Runner.
type Server interface {
	NextBuildNumber(ctx context.Context, name string) (int, error)
	Build(ctx context.Context, name string, params map[string]string) error
	Enable(ctx context.Context, name string) error
	Disable(ctx context.Context, name string) error
	Delete(ctx context.Context, name string) error
	Copy(ctx context.Context, name, newName string) error
	Config(ctx context.Context, name string) ([]byte, error)
}

// Runner implements Actions against a Server and reports to out.
type Runner struct {
	server    Server
	out       io.Writer
	workspace string
	onChange  func(context.Context)
	log       *slog.Logger
}

// NewRunner creates a runner.
func NewRunner(server Server, out io.Writer) *Runner {
	return &Runner{
		server: server,
		out:    out,
		log:    logger.With("component", "jobs"),
	}
}

// WithWorkspace sets the directory job configs are saved to.
func (r *Runner) WithWorkspace(dir string) *Runner {
	r.workspace = dir
	return r
}

// OnChange registers a hook run after a job was copied, deleted, enabled
// or disabled.
func (r *Runner) OnChange(fn func(context.Context)) *Runner {
	r.onChange = fn
	return r
}

func (r *Runner) changed(ctx context.Context) {
	if r.onChange != nil {
		r.onChange(ctx)
	}
}

// Build triggers a job with args.
func (r *Runner) Build(ctx context.Context, job string, args []Argument, dryRun bool) error {
	if dryRun {
		fmt.Fprintf(r.out, "triggering job %s\n", job)
		fmt.Fprintln(r.out, "with these arguments: (this is not sending to jenkins)")
		return writeArguments(r.out, args)
	}

	params := make(map[string]string, len(args))
	for _, a := range args {
		params[a.Name] = a.Value
	}
	number, err := r.server.NextBuildNumber(ctx, job)
	if err != nil {
		r.log.Warn("failed to read next build number", "job", job, "error", err)
	}
	r.log.Info("triggering job", "job", job, "parameters", len(params), "build", number)
	if err := r.server.Build(ctx, job, params); err != nil {
		return fmt.Errorf("failed to trigger %s: %w", job, err)
	}
	if number > 0 {
		fmt.Fprintf(r.out, "triggered job %s as build #%d\n", job, number)
	} else {
		fmt.Fprintf(r.out, "triggered job %s\n", job)
	}
	return nil
}

// Copy copies job as newName.
func (r *Runner) Copy(ctx context.Context, job, newName string, dryRun bool) error {
	if dryRun {
		fmt.Fprintf(r.out, "copy job %s as %s\n", job, newName)
		return nil
	}
	if err := r.server.Copy(ctx, job, newName); err != nil {
		return fmt.Errorf("failed to copy %s: %w", job, err)
	}
	r.changed(ctx)
	fmt.Fprintf(r.out, "copied job %s as %s\n", job, newName)
	return nil
}

// Delete deletes job.
func (r *Runner) Delete(ctx context.Context, job string, dryRun bool) error {
	if dryRun {
		fmt.Fprintf(r.out, "deleting job %s\n", job)
		return nil
	}
	if err := r.server.Delete(ctx, job); err != nil {
		return fmt.Errorf("failed to delete %s: %w", job, err)
	}
	r.changed(ctx)
	fmt.Fprintf(r.out, "deleted job %s\n", job)
	return nil
}

// Enable enables job.
func (r *Runner) Enable(ctx context.Context, job string, dryRun bool) error {
	if dryRun {
		fmt.Fprintf(r.out, "will enable job %s\n", job)
		return nil
	}
	if err := r.server.Enable(ctx, job); err != nil {
		return fmt.Errorf("failed to enable %s: %w", job, err)
	}
	r.changed(ctx)
	fmt.Fprintf(r.out, "enabled job %s\n", job)
	return nil
}

// Disable disables job.
func (r *Runner) Disable(ctx context.Context, job string, dryRun bool) error {
	if dryRun {
		fmt.Fprintf(r.out, "will disable job %s\n", job)
		return nil
	}
	if err := r.server.Disable(ctx, job); err != nil {
		return fmt.Errorf("failed to disable %s: %w", job, err)
	}
	r.changed(ctx)
	fmt.Fprintf(r.out, "disabled job %s\n", job)
	return nil
}

// SaveConfig writes the job's config.xml to <workspace>/<job>.config.xml
// and returns the path. The workspace defaults to the system temp dir.
func (r *Runner) SaveConfig(ctx context.Context, job string) (string, error) {
	body, err := r.server.Config(ctx, job)
	if err != nil {
		return "", fmt.Errorf("failed to fetch config of %s: %w", job, err)
	}

	dir := r.workspace
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create workspace: %w", err)
	}

	path := filepath.Join(dir, job+".config.xml")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Fprintf(r.out, "write xml to %s\n", path)
	return path, nil
}

// writeArguments prints args as a YAML mapping in parameter order.
func writeArguments(w io.Writer, args []Argument) error {
	if len(args) == 0 {
		_, err := fmt.Fprintln(w, "{}")
		return err
	}

	doc := &yaml.Node{Kind: yaml.MappingNode}
	for _, a := range args {
		doc.Content = append(doc.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: a.Name},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: a.Value},
		)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode arguments: %w", err)
	}
	return enc.Close()
}
