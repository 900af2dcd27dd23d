package query

import (
	"context"
	"fmt"

	"github.com/opsdeck/opsdeck/internal/domain/command"
)

// CallerIdentity identifies the credentials in use.
type CallerIdentity struct {
	AccountID string `json:"account_id" yaml:"account_id" mapstructure:"Account"`
	ARN       string `json:"arn" yaml:"arn" mapstructure:"Arn"`
	UserID    string `json:"user_id" yaml:"user_id" mapstructure:"UserId"`
}

// WhoAmI returns the identity behind the configured profile.
func (s *Service) WhoAmI(ctx context.Context, region string) (CallerIdentity, error) {
	doc, err := s.run(ctx, command.ServiceSTS, "get-caller-identity", region)
	if err != nil {
		return CallerIdentity{}, fmt.Errorf("failed to get caller identity: %w", err)
	}
	if _, err := command.Field("get-caller-identity", doc, "Account"); err != nil {
		return CallerIdentity{}, err
	}
	var id CallerIdentity
	if err := command.Decode("get-caller-identity", doc, &id); err != nil {
		return CallerIdentity{}, err
	}
	return id, nil
}
