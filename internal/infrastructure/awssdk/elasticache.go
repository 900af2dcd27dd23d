package awssdk

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/elasticache"

	"github.com/opsdeck/opsdeck/internal/domain/command"
)

// describe-cache-security-groups has no binding for the same EC2-Classic
// reason as the RDS security groups.
func init() {
	register(command.ServiceElastiCache, "describe-cache-clusters", describeCacheClusters)
}

func describeCacheClusters(ctx context.Context, c call) (any, error) {
	client := elasticache.NewFromConfig(c.cfg)

	out := &elasticache.DescribeCacheClustersOutput{}
	paginator := elasticache.NewDescribeCacheClustersPaginator(client, &elasticache.DescribeCacheClustersInput{
		CacheClusterId: c.args.str("cache_cluster_id"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		out.CacheClusters = append(out.CacheClusters, page.CacheClusters...)
	}
	return out, nil
}
