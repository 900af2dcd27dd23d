// Package awssdk runs command requests through typed aws-sdk-go-v2 clients.
package awssdk

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// DefaultSessionName names assumed-role sessions.
const DefaultSessionName = "opsdeck"

// Credentials selects how the executor authenticates.
type Credentials struct {
	// Profile names a shared config profile. Empty uses the default chain:
	// environment, shared files, then the instance role.
	Profile string

	// RoleARN, when set, is assumed on top of the profile's credentials.
	RoleARN     string
	ExternalID  string
	SessionName string
}

// ForProfile returns a copy using profile. An empty profile keeps the
// current one.
func (c Credentials) ForProfile(profile string) Credentials {
	if profile != "" {
		c.Profile = profile
	}
	return c
}

// Load resolves an SDK configuration. The region is left to the caller.
func (c Credentials) Load(ctx context.Context) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if c.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(c.Profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load aws config for profile %q: %w", c.Profile, err)
	}
	if c.RoleARN == "" {
		return cfg, nil
	}

	session := c.SessionName
	if session == "" {
		session = DefaultSessionName
	}
	provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(cfg), c.RoleARN, func(o *stscreds.AssumeRoleOptions) {
		o.RoleSessionName = session
		if c.ExternalID != "" {
			o.ExternalID = aws.String(c.ExternalID)
		}
	})
	cfg.Credentials = aws.NewCredentialsCache(provider)
	return cfg, nil
}
