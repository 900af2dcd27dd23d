package query

import (
	"context"
	"fmt"
	"strconv"

	"github.com/opsdeck/opsdeck/internal/domain/command"
)

// GroupKind selects which service's security groups to list.
type GroupKind string

const (
	GroupKindEC2         GroupKind = "ec2"
	GroupKindRDS         GroupKind = "rds"
	GroupKindElastiCache GroupKind = "elasticache"
)

type groupQuery struct {
	service   command.Service
	operation string
	query     string
}

var groupQueries = map[GroupKind]groupQuery{
	GroupKindEC2: {
		command.ServiceEC2, "describe-security-groups",
		"SecurityGroups[].GroupName",
	},
	GroupKindRDS: {
		command.ServiceRDS, "describe-db-security-groups",
		"DBSecurityGroups[].EC2SecurityGroups[].EC2SecurityGroupName",
	},
	GroupKindElastiCache: {
		command.ServiceElastiCache, "describe-cache-security-groups",
		"CacheSecurityGroups[].EC2SecurityGroups[].EC2SecurityGroupName",
	},
}

// SecurityGroups returns, per region, the security group names of a kind
// that start with prefix, ignoring case. An empty prefix keeps every group.
func (s *Service) SecurityGroups(ctx context.Context, kind GroupKind, regions []string, prefix string) (map[string][]string, error) {
	q, ok := groupQueries[kind]
	if !ok {
		return nil, fmt.Errorf("unknown security group kind %q", kind)
	}
	out := make(map[string][]string)
	for _, region := range regionsOrDefault(regions) {
		doc, err := s.run(ctx, q.service, q.operation, region, command.Opt("query", q.query))
		if err != nil {
			return nil, fmt.Errorf("failed to list %s security groups in %s: %w", kind, region, err)
		}
		names, err := command.Strings(q.operation, doc)
		if err != nil {
			return nil, err
		}
		var kept []string
		for _, n := range names {
			if hasPrefixFold(n, prefix) {
				kept = append(kept, n)
			}
		}
		out[region] = kept
	}
	return out, nil
}

// DeleteSecurityGroups deletes every EC2 security group whose name starts
// with stage and returns the deleted names per region. A dry run asks EC2 to
// check permissions without deleting anything.
func (s *Service) DeleteSecurityGroups(ctx context.Context, regions []string, stage string, dryRun bool) (map[string][]string, error) {
	if stage == "" {
		return nil, fmt.Errorf("stage is required")
	}
	groups, err := s.SecurityGroups(ctx, GroupKindEC2, regions, stage)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string)
	for _, region := range regionsOrDefault(regions) {
		for _, name := range groups[region] {
			if _, err := s.mutate(ctx, command.ServiceEC2, "delete-security-group", region, dryRun,
				command.Opt("group_name", name)); err != nil {
				return out, fmt.Errorf("failed to delete security group %s in %s: %w", name, region, err)
			}
			out[region] = append(out[region], name)
		}
	}
	return out, nil
}

// IngressRule is one CIDR ingress permission of a security group.
type IngressRule struct {
	Group    string `json:"group" yaml:"group"`
	Protocol string `json:"protocol" yaml:"protocol"`
	Port     int    `json:"port" yaml:"port"`
	CIDR     string `json:"cidr" yaml:"cidr"`
}

type securityGroups struct {
	SecurityGroups []struct {
		GroupName     string
		IPPermissions []struct {
			IPProtocol string `mapstructure:"IpProtocol"`
			ToPort     int
			IPRanges   []struct {
				CidrIP string `mapstructure:"CidrIp"`
			} `mapstructure:"IpRanges"`
		} `mapstructure:"IpPermissions"`
	}
}

// IngressRules lists the CIDR ingress rules of EC2 security groups whose
// name starts with stage.
func (s *Service) IngressRules(ctx context.Context, region, stage string) ([]IngressRule, error) {
	doc, err := s.run(ctx, command.ServiceEC2, "describe-security-groups", region)
	if err != nil {
		return nil, fmt.Errorf("failed to describe security groups in %s: %w", region, err)
	}
	if _, err := command.List("describe-security-groups", doc, "SecurityGroups"); err != nil {
		return nil, err
	}
	var sgs securityGroups
	if err := command.Decode("describe-security-groups", doc, &sgs); err != nil {
		return nil, err
	}
	var rules []IngressRule
	for _, g := range sgs.SecurityGroups {
		if !hasPrefixFold(g.GroupName, stage) {
			continue
		}
		for _, p := range g.IPPermissions {
			for _, r := range p.IPRanges {
				rules = append(rules, IngressRule{Group: g.GroupName, Protocol: p.IPProtocol, Port: p.ToPort, CIDR: r.CidrIP})
			}
		}
	}
	return rules, nil
}

// RevokeIngressRules revokes every CIDR ingress rule of the stage's EC2
// security groups in each region and returns the revoked rules.
func (s *Service) RevokeIngressRules(ctx context.Context, regions []string, stage string, dryRun bool) (map[string][]IngressRule, error) {
	if stage == "" {
		return nil, fmt.Errorf("stage is required")
	}
	out := make(map[string][]IngressRule)
	for _, region := range regionsOrDefault(regions) {
		rules, err := s.IngressRules(ctx, region, stage)
		if err != nil {
			return out, err
		}
		for _, r := range rules {
			_, err := s.mutate(ctx, command.ServiceEC2, "revoke-security-group-ingress", region, dryRun,
				command.Opt("group_name", r.Group),
				command.Opt("protocol", r.Protocol),
				command.Opt("port", strconv.Itoa(r.Port)),
				command.Opt("cidr", r.CIDR))
			if err != nil {
				return out, fmt.Errorf("failed to revoke %s/%d from %s: %w", r.Protocol, r.Port, r.Group, err)
			}
			out[region] = append(out[region], r)
		}
	}
	return out, nil
}
