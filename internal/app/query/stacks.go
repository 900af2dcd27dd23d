package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opsdeck/opsdeck/internal/domain/command"
	"github.com/opsdeck/opsdeck/internal/domain/slot"
)

// StackNames returns the stage environment stack names of each region.
func (s *Service) StackNames(ctx context.Context, regions []string) (map[string][]string, error) {
	out := make(map[string][]string)
	for _, region := range regionsOrDefault(regions) {
		names, err := s.allStackNames(ctx, region)
		if err != nil {
			return nil, err
		}
		var stages []string
		for _, n := range names {
			if slot.IsStage(n) {
				stages = append(stages, n)
			}
		}
		out[region] = stages
	}
	return out, nil
}

func (s *Service) allStackNames(ctx context.Context, region string) ([]string, error) {
	doc, err := s.run(ctx, command.ServiceCloudFormation, "describe-stacks", region,
		command.Opt("query", "Stacks[].StackName"))
	if err != nil {
		return nil, fmt.Errorf("failed to list stacks in %s: %w", region, err)
	}
	return command.Strings("describe-stacks", doc)
}

// StacksForStage returns the stacks in a region whose name contains filter,
// ignoring case. An empty filter returns every stack.
func (s *Service) StacksForStage(ctx context.Context, region, filter string) ([]string, error) {
	names, err := s.allStackNames(ctx, region)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, n := range names {
		if containsFold(n, filter) {
			out = append(out, n)
		}
	}
	return out, nil
}

// StackEvent is one entry of a stack's event log.
type StackEvent struct {
	StackName            string    `json:"stack_name" yaml:"stack_name"`
	LogicalResourceID    string    `json:"logical_resource_id" yaml:"logical_resource_id" mapstructure:"LogicalResourceId"`
	ResourceType         string    `json:"resource_type" yaml:"resource_type"`
	ResourceStatus       string    `json:"resource_status" yaml:"resource_status"`
	ResourceStatusReason string    `json:"resource_status_reason,omitempty" yaml:"resource_status_reason,omitempty"`
	Timestamp            time.Time `json:"timestamp" yaml:"timestamp"`
}

// StackEvents returns the event log of a stack, newest first as returned by
// the service.
func (s *Service) StackEvents(ctx context.Context, region, stack string) ([]StackEvent, error) {
	doc, err := s.run(ctx, command.ServiceCloudFormation, "describe-stack-events", region,
		command.Opt("stack_name", stack))
	if err != nil {
		return nil, fmt.Errorf("failed to describe events of %s: %w", stack, err)
	}
	items, err := command.List("describe-stack-events", doc, "StackEvents")
	if err != nil {
		return nil, err
	}
	var events []StackEvent
	if err := command.Decode("describe-stack-events", items, &events); err != nil {
		return nil, err
	}
	return events, nil
}

type stackDescription struct {
	StackName  string
	StackID    string `mapstructure:"StackId"`
	Parameters []struct {
		ParameterKey   string
		ParameterValue string
	}
}

// StackParameters returns, per region, each stack's parameters keyed by
// lower-cased stack name. A non-empty environ keeps only the stack with
// that name.
func (s *Service) StackParameters(ctx context.Context, regions []string, environ string) (map[string]map[string]map[string]string, error) {
	out := make(map[string]map[string]map[string]string)
	for _, region := range regionsOrDefault(regions) {
		doc, err := s.run(ctx, command.ServiceCloudFormation, "describe-stacks", region)
		if err != nil {
			return nil, fmt.Errorf("failed to describe stacks in %s: %w", region, err)
		}
		items, err := command.List("describe-stacks", doc, "Stacks")
		if err != nil {
			return nil, err
		}
		var stacks []stackDescription
		if err := command.Decode("describe-stacks", items, &stacks); err != nil {
			return nil, err
		}

		table := make(map[string]map[string]string)
		for _, st := range stacks {
			if environ != "" && !strings.EqualFold(st.StackName, environ) {
				continue
			}
			params := make(map[string]string, len(st.Parameters))
			for _, p := range st.Parameters {
				params[p.ParameterKey] = p.ParameterValue
			}
			table[strings.ToLower(st.StackName)] = params
		}
		out[region] = table
	}
	return out, nil
}

// CreateStack creates a stack and returns its id. Stack creation cannot be
// dry-run natively, so a dry run returns a *command.DryRunError carrying
// the command that would run.
func (s *Service) CreateStack(ctx context.Context, region string, opts command.Options, dryRun bool) (string, error) {
	doc, err := s.mutate(ctx, command.ServiceCloudFormation, "create-stack", region, dryRun, opts...)
	if err != nil {
		return "", err
	}
	id, err := command.Field("create-stack", doc, "StackId")
	if err != nil {
		return "", err
	}
	str, ok := id.(string)
	if !ok {
		return "", &command.ParseError{Call: "create-stack", Key: "StackId"}
	}
	return str, nil
}
