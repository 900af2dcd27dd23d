package awssdk

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"

	"github.com/opsdeck/opsdeck/internal/domain/command"
)

func init() {
	register(command.ServiceCloudFormation, "describe-stacks", describeStacks)
	register(command.ServiceCloudFormation, "describe-stack-events", describeStackEvents)
	register(command.ServiceCloudFormation, "list-stacks", listStacks)
	register(command.ServiceCloudFormation, "create-stack", createStack)
	register(command.ServiceCloudFormation, "delete-stack", deleteStack)
}

func describeStacks(ctx context.Context, c call) (any, error) {
	client := cloudformation.NewFromConfig(c.cfg)

	out := &cloudformation.DescribeStacksOutput{}
	paginator := cloudformation.NewDescribeStacksPaginator(client, &cloudformation.DescribeStacksInput{
		StackName: c.args.str("stack_name"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		out.Stacks = append(out.Stacks, page.Stacks...)
	}
	return out, nil
}

func describeStackEvents(ctx context.Context, c call) (any, error) {
	client := cloudformation.NewFromConfig(c.cfg)

	out := &cloudformation.DescribeStackEventsOutput{}
	paginator := cloudformation.NewDescribeStackEventsPaginator(client, &cloudformation.DescribeStackEventsInput{
		StackName: c.args.str("stack_name"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		out.StackEvents = append(out.StackEvents, page.StackEvents...)
	}
	return out, nil
}

func listStacks(ctx context.Context, c call) (any, error) {
	client := cloudformation.NewFromConfig(c.cfg)

	input := &cloudformation.ListStacksInput{}
	for _, s := range c.args.list("stack_status_filter") {
		input.StackStatusFilter = append(input.StackStatusFilter, cftypes.StackStatus(s))
	}

	out := &cloudformation.ListStacksOutput{}
	paginator := cloudformation.NewListStacksPaginator(client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		out.StackSummaries = append(out.StackSummaries, page.StackSummaries...)
	}
	return out, nil
}

func createStack(ctx context.Context, c call) (any, error) {
	input := &cloudformation.CreateStackInput{
		StackName:    c.args.str("stack_name"),
		TemplateURL:  c.args.str("template_url"),
		TemplateBody: c.args.str("template_body"),
	}
	for _, capability := range c.args.list("capabilities") {
		input.Capabilities = append(input.Capabilities, cftypes.Capability(capability))
	}
	if err := c.args.structured("parameters", &input.Parameters); err != nil {
		return nil, err
	}
	if err := c.args.structured("tags", &input.Tags); err != nil {
		return nil, err
	}

	var err error
	if input.DisableRollback, err = c.args.boolean("disable_rollback"); err != nil {
		return nil, err
	}
	if input.TimeoutInMinutes, err = c.args.int32("timeout_in_minutes"); err != nil {
		return nil, err
	}

	return cloudformation.NewFromConfig(c.cfg).CreateStack(ctx, input)
}

func deleteStack(ctx context.Context, c call) (any, error) {
	_, err := cloudformation.NewFromConfig(c.cfg).DeleteStack(ctx, &cloudformation.DeleteStackInput{
		StackName: c.args.str("stack_name"),
	})
	return nil, err
}
