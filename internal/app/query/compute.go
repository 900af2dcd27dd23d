package query

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/opsdeck/opsdeck/internal/domain/command"
)

type autoScalingGroup struct {
	AutoScalingGroupName string
	Tags                 []Tag
	Instances            []struct {
		InstanceID string `mapstructure:"InstanceId"`
	}
}

func (s *Service) autoScalingGroups(ctx context.Context, region string) ([]autoScalingGroup, error) {
	doc, err := s.run(ctx, command.ServiceAutoScaling, "describe-auto-scaling-groups", region)
	if err != nil {
		return nil, fmt.Errorf("failed to describe autoscaling groups in %s: %w", region, err)
	}
	items, err := command.List("describe-auto-scaling-groups", doc, "AutoScalingGroups")
	if err != nil {
		return nil, err
	}
	var groups []autoScalingGroup
	if err := command.Decode("describe-auto-scaling-groups", items, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// PlayASGs returns the play autoscaling groups of an environment, keyed by
// lower-cased Name tag, with their instance ids. Database groups are
// excluded. With only set, cron and admin groups are dropped as well.
func (s *Service) PlayASGs(ctx context.Context, region, env string, only bool) (map[string][]string, error) {
	groups, err := s.autoScalingGroups(ctx, region)
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(`(?i)^` + regexp.QuoteMeta(env) + `-(:?play_*|product_admin)`)
	if err != nil {
		return nil, fmt.Errorf("invalid environment %q: %w", env, err)
	}

	out := make(map[string][]string)
	for _, g := range groups {
		name := tagValue(g.Tags, "Name")
		if name == "" || !re.MatchString(name) || strings.Contains(name, "-db-") {
			continue
		}
		key := strings.ToLower(name)
		if only && (strings.Contains(key, "_cron_") || strings.Contains(key, "_admin")) {
			continue
		}
		ids := make([]string, 0, len(g.Instances))
		for _, inst := range g.Instances {
			ids = append(ids, inst.InstanceID)
		}
		out[key] = ids
	}
	return out, nil
}

// Host is a running instance.
type Host struct {
	Name       string `json:"name" yaml:"name"`
	InstanceID string `json:"instance_id" yaml:"instance_id"`
	PublicDNS  string `json:"public_dns,omitempty" yaml:"public_dns,omitempty"`
	PublicIP   string `json:"public_ip,omitempty" yaml:"public_ip,omitempty"`
}

type reservations struct {
	Reservations []struct {
		Instances []struct {
			InstanceID      string `mapstructure:"InstanceId"`
			PublicDNSName   string `mapstructure:"PublicDnsName"`
			PublicIPAddress string `mapstructure:"PublicIpAddress"`
			Tags            []Tag
		}
	}
}

func (s *Service) describeInstances(ctx context.Context, region string, opts ...command.Option) ([]Host, error) {
	doc, err := s.run(ctx, command.ServiceEC2, "describe-instances", region, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to describe instances in %s: %w", region, err)
	}
	if _, err := command.List("describe-instances", doc, "Reservations"); err != nil {
		return nil, err
	}
	var res reservations
	if err := command.Decode("describe-instances", doc, &res); err != nil {
		return nil, err
	}
	var hosts []Host
	for _, r := range res.Reservations {
		for _, inst := range r.Instances {
			hosts = append(hosts, Host{
				Name:       tagValue(inst.Tags, "Name"),
				InstanceID: inst.InstanceID,
				PublicDNS:  inst.PublicDNSName,
				PublicIP:   inst.PublicIPAddress,
			})
		}
	}
	return hosts, nil
}

// InstanceHostnames returns the hosts behind the given autoscaling groups.
// Groups without instances are skipped.
func (s *Service) InstanceHostnames(ctx context.Context, region string, groups map[string][]string) ([]Host, error) {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	var hosts []Host
	for _, name := range names {
		ids := groups[name]
		if len(ids) == 0 {
			continue
		}
		found, err := s.describeInstances(ctx, region,
			command.Opt("filters", "Name=instance-id,Values="+strings.Join(ids, ",")))
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, found...)
	}
	return hosts, nil
}

// HostsForStage returns, per region, the instances whose Name tag contains
// stage, keyed by lower-cased Name tag. An empty stage keeps every named
// instance.
func (s *Service) HostsForStage(ctx context.Context, regions []string, stage string) (map[string]map[string]Host, error) {
	out := make(map[string]map[string]Host)
	for _, region := range regionsOrDefault(regions) {
		hosts, err := s.describeInstances(ctx, region)
		if err != nil {
			return nil, err
		}
		table := make(map[string]Host)
		for _, h := range hosts {
			if h.Name == "" {
				continue
			}
			name := strings.ToLower(h.Name)
			if stage != "" && !strings.Contains(name, strings.ToLower(stage)) {
				continue
			}
			h.Name = name
			table[name] = h
		}
		out[region] = table
	}
	return out, nil
}
