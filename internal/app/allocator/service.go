// Package allocator finds the next free stage environment and hands it to
// the calling pipeline through build.properties.
package allocator

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/opsdeck/opsdeck/internal/domain/command"
	"github.com/opsdeck/opsdeck/internal/domain/slot"
	"github.com/opsdeck/opsdeck/internal/infrastructure/properties"
	"github.com/opsdeck/opsdeck/internal/pkg/logger"
)

// DefaultRegions are scanned when no region is given.
var DefaultRegions = []string{"us-east-1", "us-west-2"}

// Config holds allocator settings.
type Config struct {
	// Profile is the credential profile; empty uses ambient credentials.
	Profile string

	// Parallelism bounds concurrent region queries in Survey. Values below
	// one mean sequential.
	Parallelism int

	// Workspace is where build.properties is written; see properties.Dir.
	Workspace string
}

// Service computes slot allocations.
type Service struct {
	exec command.Executor
	cfg  Config
	log  *slog.Logger
}

// NewService creates an allocator over an executor.
func NewService(exec command.Executor, cfg Config) *Service {
	return &Service{exec: exec, cfg: cfg, log: logger.With("component", "allocator")}
}

// Result is the outcome of one allocation.
type Result struct {
	// Allocations maps region to chef environment name. It holds exactly
	// one entry.
	Allocations map[string]string
	Region      string
	Slot        int
	// Path is the written build.properties file.
	Path string
}

// Environment is the allocated chef environment, e.g. stage3.
func (r *Result) Environment() string {
	return r.Allocations[r.Region]
}

// StackNames lists every stack name in a region.
func (s *Service) StackNames(ctx context.Context, region string) ([]string, error) {
	doc, err := s.exec.Execute(ctx, command.Request{
		Service:   command.ServiceCloudFormation,
		Operation: "describe-stacks",
		Region:    region,
		Profile:   s.cfg.Profile,
		Options:   command.Options{command.Opt("query", "Stacks[].StackName")},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list stacks in %s: %w", region, err)
	}
	return command.Strings("describe-stacks", doc)
}

// Allocate computes the next free slot and writes build.properties.
//
// Only the first region is examined; later regions are accepted but
// ignored. Nothing reserves the slot, so two concurrent runs can return the
// same answer.
func (s *Service) Allocate(ctx context.Context, regions []string) (*Result, error) {
	if len(regions) == 0 {
		regions = DefaultRegions
	}

	region := regions[0]
	if len(regions) > 1 {
		s.log.Debug("ignoring regions after the first", "ignored", regions[1:])
	}

	names, err := s.StackNames(ctx, region)
	if err != nil {
		return nil, err
	}
	n, err := slot.Next(region, names)
	if err != nil {
		return nil, err
	}
	s.log.Debug("slot computed", "region", region, "slot", slot.Label(n))

	res := &Result{
		Allocations: map[string]string{region: slot.Environment(n)},
		Region:      region,
		Slot:        n,
	}

	path, err := properties.Write(properties.Dir(s.cfg.Workspace), properties.Handoff{
		Region:          res.Region,
		ChefEnvironment: res.Environment(),
	})
	if err != nil {
		return nil, err
	}
	res.Path = path
	return res, nil
}

// RegionSlots summarizes slot usage in one region.
type RegionSlots struct {
	Region string `json:"region" yaml:"region"`
	InUse  []int  `json:"in_use" yaml:"in_use"`
	Next   int    `json:"next,omitempty" yaml:"next,omitempty"`
	Free   bool   `json:"free" yaml:"free"`
}

// Survey reports slot usage for every region, querying up to Parallelism
// regions at once. Results follow the order of regions.
func (s *Service) Survey(ctx context.Context, regions []string) ([]RegionSlots, error) {
	if len(regions) == 0 {
		regions = DefaultRegions
	}

	results := make([]RegionSlots, len(regions))
	g, gctx := errgroup.WithContext(ctx)
	limit := s.cfg.Parallelism
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, region := range regions {
		g.Go(func() error {
			names, err := s.StackNames(gctx, region)
			if err != nil {
				return err
			}
			seq := slot.Sequence(names)
			rs := RegionSlots{Region: region, InUse: seq}
			if gap, ok := slot.FirstGap(seq); ok {
				rs.Next = gap.Candidate()
				rs.Free = true
			}
			results[i] = rs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
