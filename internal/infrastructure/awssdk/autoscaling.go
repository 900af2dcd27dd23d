package awssdk

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/autoscaling"

	"github.com/opsdeck/opsdeck/internal/domain/command"
)

func init() {
	register(command.ServiceAutoScaling, "describe-auto-scaling-groups", describeAutoScalingGroups)
	register(command.ServiceAutoScaling, "update-auto-scaling-group", updateAutoScalingGroup)
}

func describeAutoScalingGroups(ctx context.Context, c call) (any, error) {
	client := autoscaling.NewFromConfig(c.cfg)

	out := &autoscaling.DescribeAutoScalingGroupsOutput{}
	paginator := autoscaling.NewDescribeAutoScalingGroupsPaginator(client, &autoscaling.DescribeAutoScalingGroupsInput{
		AutoScalingGroupNames: c.args.list("auto_scaling_group_names"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		out.AutoScalingGroups = append(out.AutoScalingGroups, page.AutoScalingGroups...)
	}
	return out, nil
}

func updateAutoScalingGroup(ctx context.Context, c call) (any, error) {
	input := &autoscaling.UpdateAutoScalingGroupInput{
		AutoScalingGroupName: c.args.str("auto_scaling_group_name"),
	}
	var err error
	if input.MinSize, err = c.args.int32("min_size"); err != nil {
		return nil, err
	}
	if input.MaxSize, err = c.args.int32("max_size"); err != nil {
		return nil, err
	}
	if input.DesiredCapacity, err = c.args.int32("desired_capacity"); err != nil {
		return nil, err
	}

	_, err = autoscaling.NewFromConfig(c.cfg).UpdateAutoScalingGroup(ctx, input)
	return nil, err
}
