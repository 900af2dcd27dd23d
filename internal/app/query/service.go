// Package query provides region-scoped lookups over stacks, autoscaling
// groups, instances, security groups, buckets and database snapshots. Every
// call goes through a command.Executor.
package query

import (
	"context"
	"errors"
	"strings"

	"github.com/opsdeck/opsdeck/internal/domain/command"
)

// ErrNotFound is returned when a lookup that must produce a value finds none.
var ErrNotFound = errors.New("not found")

// DefaultRegions are used when a helper is given no regions.
var DefaultRegions = []string{"us-east-1", "us-west-2"}

// Service runs queries with one credential profile.
type Service struct {
	exec    command.Executor
	profile string
}

// NewService creates a query service.
func NewService(exec command.Executor, profile string) *Service {
	return &Service{exec: exec, profile: profile}
}

func (s *Service) run(ctx context.Context, svc command.Service, op, region string, opts ...command.Option) (command.Document, error) {
	return s.exec.Execute(ctx, command.Request{
		Service:   svc,
		Operation: op,
		Region:    region,
		Profile:   s.profile,
		Options:   opts,
	})
}

func (s *Service) mutate(ctx context.Context, svc command.Service, op, region string, dryRun bool, opts ...command.Option) (command.Document, error) {
	return s.exec.Execute(ctx, command.Request{
		Service:   svc,
		Operation: op,
		Region:    region,
		Profile:   s.profile,
		Options:   opts,
		DryRun:    dryRun,
	})
}

func regionsOrDefault(regions []string) []string {
	if len(regions) == 0 {
		return DefaultRegions
	}
	return regions
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func hasPrefixFold(s, prefix string) bool {
	return strings.HasPrefix(strings.ToLower(s), strings.ToLower(prefix))
}

// Tag is a key/value resource tag.
type Tag struct {
	Key   string
	Value string
}

func tagValue(tags []Tag, key string) string {
	for _, t := range tags {
		if t.Key == key {
			return t.Value
		}
	}
	return ""
}
