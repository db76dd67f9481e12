// Package cloud resolves the AWS settings the job service reports to users.
package cloud

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// FallbackRegion is used when neither configuration nor the SDK chain name a region.
const FallbackRegion = "us-west-2"

// ResolveRegion returns explicit when set. Otherwise it asks the AWS SDK
// default chain (AWS_REGION, shared config profile) and falls back to
// FallbackRegion. The SDK does not read AWS_DEFAULT_REGION, which is why
// callers pass that value in explicitly.
func ResolveRegion(ctx context.Context, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("load aws config: %w", err)
	}
	if cfg.Region == "" {
		return FallbackRegion, nil
	}
	return cfg.Region, nil
}
