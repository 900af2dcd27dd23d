package awssdk

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/opsdeck/opsdeck/internal/domain/command"
)

func init() {
	register(command.ServiceEC2, "describe-instances", describeInstances)
	register(command.ServiceEC2, "describe-security-groups", describeSecurityGroups)
	register(command.ServiceEC2, "describe-regions", describeRegions)
	register(command.ServiceEC2, "delete-security-group", deleteSecurityGroup)
	register(command.ServiceEC2, "revoke-security-group-ingress", revokeSecurityGroupIngress)
}

func ec2Filters(a args) ([]ec2types.Filter, error) {
	parsed, err := a.filters("filters")
	if err != nil {
		return nil, err
	}
	var out []ec2types.Filter
	for _, f := range parsed {
		out = append(out, ec2types.Filter{Name: aws.String(f.Name), Values: f.Values})
	}
	return out, nil
}

func describeInstances(ctx context.Context, c call) (any, error) {
	filters, err := ec2Filters(c.args)
	if err != nil {
		return nil, err
	}

	client := ec2.NewFromConfig(c.cfg)
	out := &ec2.DescribeInstancesOutput{}
	paginator := ec2.NewDescribeInstancesPaginator(client, &ec2.DescribeInstancesInput{
		InstanceIds: c.args.list("instance_ids"),
		Filters:     filters,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		out.Reservations = append(out.Reservations, page.Reservations...)
	}
	return out, nil
}

func describeSecurityGroups(ctx context.Context, c call) (any, error) {
	filters, err := ec2Filters(c.args)
	if err != nil {
		return nil, err
	}

	client := ec2.NewFromConfig(c.cfg)
	out := &ec2.DescribeSecurityGroupsOutput{}
	paginator := ec2.NewDescribeSecurityGroupsPaginator(client, &ec2.DescribeSecurityGroupsInput{
		GroupIds:   c.args.list("group_ids"),
		GroupNames: c.args.list("group_names"),
		Filters:    filters,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		out.SecurityGroups = append(out.SecurityGroups, page.SecurityGroups...)
	}
	return out, nil
}

func describeRegions(ctx context.Context, c call) (any, error) {
	all, err := c.args.boolean("all_regions")
	if err != nil {
		return nil, err
	}
	return ec2.NewFromConfig(c.cfg).DescribeRegions(ctx, &ec2.DescribeRegionsInput{AllRegions: all})
}

func deleteSecurityGroup(ctx context.Context, c call) (any, error) {
	_, err := ec2.NewFromConfig(c.cfg).DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{
		GroupId:   c.args.str("group_id"),
		GroupName: c.args.str("group_name"),
		DryRun:    aws.Bool(c.dryRun),
	})
	return nil, err
}

func revokeSecurityGroupIngress(ctx context.Context, c call) (any, error) {
	input := &ec2.RevokeSecurityGroupIngressInput{
		GroupId:                 c.args.str("group_id"),
		GroupName:               c.args.str("group_name"),
		IpProtocol:              c.args.str("protocol"),
		CidrIp:                  c.args.str("cidr"),
		SourceSecurityGroupName: c.args.str("source_group"),
		DryRun:                  aws.Bool(c.dryRun),
	}
	port, err := c.args.int32("port")
	if err != nil {
		return nil, err
	}
	input.FromPort, input.ToPort = port, port
	if err := c.args.structured("ip_permissions", &input.IpPermissions); err != nil {
		return nil, err
	}

	return ec2.NewFromConfig(c.cfg).RevokeSecurityGroupIngress(ctx, input)
}
