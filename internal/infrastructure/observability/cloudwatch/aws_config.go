package cloudwatch

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

const (
	maxRetries     = 3
	initialBackoff = 100 * time.Millisecond
	flushTimeout   = 30 * time.Second
)

// buildAWSConfig loads the default AWS config. Static credentials and an endpoint
// override (LocalStack) are optional.
func buildAWSConfig(ctx context.Context, region, endpoint, accessKeyID, secretAccessKey string) (aws.Config, error) {
	optFns := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}

	if accessKeyID != "" && secretAccessKey != "" {
		optFns = append(optFns, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return aws.Config{}, err
	}

	if endpoint != "" {
		cfg.BaseEndpoint = aws.String(endpoint)
	}

	return cfg, nil
}

// withRetry calls fn up to maxRetries times with doubling backoff.
func withRetry(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	backoff := initialBackoff

	for attempt := 0; attempt < maxRetries; attempt++ {
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}

		if attempt < maxRetries-1 {
			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
				backoff *= 2
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
	}

	return lastErr
}
