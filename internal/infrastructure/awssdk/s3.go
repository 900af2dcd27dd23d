package awssdk

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/opsdeck/opsdeck/internal/domain/command"
)

func init() {
	register(command.ServiceS3, "list-buckets", listBuckets)
	register(command.ServiceS3, "get-bucket-tagging", getBucketTagging)
	register(command.ServiceS3, "list-objects-v2", listObjectsV2)
	register(command.ServiceS3, "put-bucket-tagging", putBucketTagging)
}

func listBuckets(ctx context.Context, c call) (any, error) {
	return s3.NewFromConfig(c.cfg).ListBuckets(ctx, &s3.ListBucketsInput{})
}

func getBucketTagging(ctx context.Context, c call) (any, error) {
	return s3.NewFromConfig(c.cfg).GetBucketTagging(ctx, &s3.GetBucketTaggingInput{
		Bucket: c.args.str("bucket"),
	})
}

func listObjectsV2(ctx context.Context, c call) (any, error) {
	client := s3.NewFromConfig(c.cfg)

	out := &s3.ListObjectsV2Output{
		Name:      c.args.str("bucket"),
		Prefix:    c.args.str("prefix"),
		Delimiter: c.args.str("delimiter"),
	}
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket:    c.args.str("bucket"),
		Prefix:    c.args.str("prefix"),
		Delimiter: c.args.str("delimiter"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		out.Contents = append(out.Contents, page.Contents...)
		out.CommonPrefixes = append(out.CommonPrefixes, page.CommonPrefixes...)
	}
	return out, nil
}

func putBucketTagging(ctx context.Context, c call) (any, error) {
	// The JSON form is a full Tagging document; the shorthand form lists
	// "Key=k,Value=v" items of the tag set.
	tagging := &s3types.Tagging{}
	target := any(tagging)
	if v, _ := c.args.opts.Get("tagging"); !strings.HasPrefix(strings.TrimSpace(v), "{") {
		target = &tagging.TagSet
	}
	if err := c.args.structured("tagging", target); err != nil {
		return nil, err
	}
	_, err := s3.NewFromConfig(c.cfg).PutBucketTagging(ctx, &s3.PutBucketTaggingInput{
		Bucket:  c.args.str("bucket"),
		Tagging: tagging,
	})
	return nil, err
}
