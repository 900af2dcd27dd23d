package awssdk

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/rds"

	"github.com/opsdeck/opsdeck/internal/domain/command"
)

// describe-db-security-groups has no binding: DB security groups only exist
// for EC2-Classic accounts and are served by the aws CLI backend.
func init() {
	register(command.ServiceRDS, "describe-db-instances", describeDBInstances)
	register(command.ServiceRDS, "describe-db-snapshots", describeDBSnapshots)
}

func describeDBInstances(ctx context.Context, c call) (any, error) {
	client := rds.NewFromConfig(c.cfg)

	out := &rds.DescribeDBInstancesOutput{}
	paginator := rds.NewDescribeDBInstancesPaginator(client, &rds.DescribeDBInstancesInput{
		DBInstanceIdentifier: c.args.str("db_instance_identifier"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		out.DBInstances = append(out.DBInstances, page.DBInstances...)
	}
	return out, nil
}

func describeDBSnapshots(ctx context.Context, c call) (any, error) {
	client := rds.NewFromConfig(c.cfg)

	out := &rds.DescribeDBSnapshotsOutput{}
	paginator := rds.NewDescribeDBSnapshotsPaginator(client, &rds.DescribeDBSnapshotsInput{
		DBInstanceIdentifier: c.args.str("db_instance_identifier"),
		DBSnapshotIdentifier: c.args.str("db_snapshot_identifier"),
		SnapshotType:         c.args.str("snapshot_type"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		out.DBSnapshots = append(out.DBSnapshots, page.DBSnapshots...)
	}
	return out, nil
}
