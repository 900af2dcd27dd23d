package awssdk

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/opsdeck/opsdeck/internal/domain/command"
)

func init() {
	register(command.ServiceSTS, "get-caller-identity", getCallerIdentity)
}

func getCallerIdentity(ctx context.Context, c call) (any, error) {
	return sts.NewFromConfig(c.cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
}
