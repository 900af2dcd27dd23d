// Package chef promotes version attributes between chef environment files
// kept in a git repository.
package chef

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gosimple/slug"

	"github.com/opsdeck/opsdeck/internal/domain/chefenv"
	"github.com/opsdeck/opsdeck/internal/pkg/logger"
)

// MainBranch is the branch promotions are merged into.
const MainBranch = "master"

// Git is the subset of the git binder the promoter needs.
type Git interface {
	Clone(ctx context.Context, url, dir string, force bool) error
	CreateBranch(ctx context.Context, dir, branch string) error
	AddAll(ctx context.Context, dir string) error
	Commit(ctx context.Context, dir, message string) error
	Merge(ctx context.Context, dir, from, to, message string) error
	Push(ctx context.Context, dir string, dryRun bool, refs ...string) error
}

// Config locates the environments repository.
type Config struct {
	RepoURL  string
	RepoPath string
	RepoName string

	// Keys are the default_attributes keys promoted; empty means
	// chefenv.DefaultPromoteKeys.
	Keys []string

	// User is recorded in branch names and commit messages.
	User string
}

// Service runs promotions and comparisons against a fresh clone.
type Service struct {
	git Git
	cfg Config
	out io.Writer
	now func() time.Time
	log *slog.Logger
}

// NewService creates a chef service writing progress to out.
func NewService(git Git, cfg Config, out io.Writer) *Service {
	if len(cfg.Keys) == 0 {
		cfg.Keys = chefenv.DefaultPromoteKeys
	}
	if cfg.User == "" {
		cfg.User = "opsdeck"
	}
	return &Service{git: git, cfg: cfg, out: out, now: time.Now, log: logger.Default()}
}

// Dir is the working copy location. It fails unless RepoName is a single
// path element, so the clone never replaces RepoPath itself.
func (s *Service) Dir() (string, error) {
	name := s.cfg.RepoName
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return "", fmt.Errorf("invalid chef repository name %q", name)
	}
	return filepath.Join(s.cfg.RepoPath, name), nil
}

// Result summarizes a promotion.
type Result struct {
	Branch string
	// Changed maps each rewritten environment file to the keys updated in it.
	Changed map[string][]string
	// Merged is false when no target needed an update.
	Merged bool
}

// Promote copies the promoted keys from one environment into each target
// on a new branch, merges it into master and pushes. A dry run asks the
// remote to validate the push without updating it.
func (s *Service) Promote(ctx context.Context, from string, to []string, dryRun bool) (*Result, error) {
	targets := chefenv.Targets(from, to)
	if len(targets) == 0 {
		return nil, fmt.Errorf("no target environments besides %s", chefenv.FileName(from))
	}

	dir, err := s.Dir()
	if err != nil {
		return nil, err
	}
	if err := s.git.Clone(ctx, s.cfg.RepoURL, dir, true); err != nil {
		return nil, err
	}

	stamp := s.now().UTC().Format("20060102150405")
	branch := slug.Make(fmt.Sprintf("merge %s to %s by %s %s",
		strings.TrimSuffix(chefenv.FileName(from), ".json"), strings.Join(trimExt(targets), " "), s.cfg.User, stamp))
	if err := s.git.CreateBranch(ctx, dir, branch); err != nil {
		return nil, err
	}

	source, err := s.load(dir, from)
	if err != nil {
		return nil, err
	}

	res := &Result{Branch: branch, Changed: make(map[string][]string)}
	for _, target := range targets {
		env, err := s.load(dir, target)
		if err != nil {
			return nil, err
		}
		changed, err := chefenv.Promote(source, env, s.cfg.Keys)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", target, err)
		}
		if len(changed) == 0 {
			s.log.Info("environment already up to date", "environment", target)
			continue
		}
		if err := s.save(dir, target, env); err != nil {
			return nil, err
		}
		res.Changed[target] = changed
		fmt.Fprintf(s.out, "updated %s: %s\n", target, strings.Join(changed, ", "))
	}

	if len(res.Changed) == 0 {
		fmt.Fprintln(s.out, "nothing to promote")
		return res, nil
	}

	message := fmt.Sprintf("automated update of %s based on %s by %s at %s",
		strings.Join(targets, ","), chefenv.FileName(from), s.cfg.User, stamp)
	if err := s.git.AddAll(ctx, dir); err != nil {
		return nil, err
	}
	if err := s.git.Commit(ctx, dir, message); err != nil {
		return nil, err
	}
	merge := fmt.Sprintf("merge branch %s to %s via automation process", branch, MainBranch)
	if err := s.git.Merge(ctx, dir, branch, MainBranch, merge); err != nil {
		return nil, err
	}
	if err := s.git.Push(ctx, dir, dryRun, MainBranch); err != nil {
		return nil, err
	}
	res.Merged = true

	if dryRun {
		fmt.Fprintf(s.out, "merged %s into %s locally, push was a dry run\n", branch, MainBranch)
	} else {
		fmt.Fprintf(s.out, "merged %s into %s and pushed\n", branch, MainBranch)
	}
	return res, nil
}

// Comparison is the outcome of comparing one section of two environments.
type Comparison struct {
	Section string
	Delta   chefenv.Delta
	Source  map[string]any
	Target  map[string]any
}

// Diff compares a section, cookbook_versions by default, of two
// environments in the current working copy, cloning it when absent.
func (s *Service) Diff(ctx context.Context, source, target, section string) (*Comparison, error) {
	if section == "" {
		section = chefenv.SectionCookbookVersions
	}
	dir, err := s.Dir()
	if err != nil {
		return nil, err
	}
	if err := s.git.Clone(ctx, s.cfg.RepoURL, dir, false); err != nil {
		return nil, err
	}

	src, err := s.section(dir, source, section)
	if err != nil {
		return nil, err
	}
	dst, err := s.section(dir, target, section)
	if err != nil {
		return nil, err
	}
	return &Comparison{
		Section: section,
		Delta:   chefenv.Diff(src, dst),
		Source:  src,
		Target:  dst,
	}, nil
}

func (s *Service) section(dir, env, name string) (map[string]any, error) {
	doc, err := s.load(dir, env)
	if err != nil {
		return nil, err
	}
	sec, err := doc.Section(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", chefenv.FileName(env), err)
	}
	return sec, nil
}

func (s *Service) load(dir, env string) (chefenv.Environment, error) {
	path := filepath.Join(dir, chefenv.FileName(env))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chef environment: %w", err)
	}
	doc, err := chefenv.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

func (s *Service) save(dir, env string, doc chefenv.Environment) error {
	data, err := chefenv.Marshal(doc)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, chefenv.FileName(env))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write chef environment: %w", err)
	}
	return nil
}

func trimExt(files []string) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = strings.TrimSuffix(f, ".json")
	}
	return out
}
