package r2

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Options holds the Cloudflare R2 settings needed to build an S3 client.
type Options struct {
	AccountID       string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string // object key prefix for test documents, e.g. "tests/"
}

func (o Options) validate() error {
	if o.AccountID == "" || o.Bucket == "" || o.AccessKeyID == "" || o.SecretAccessKey == "" {
		return fmt.Errorf("cloudflare R2 not configured: CLOUDFLARE_ACCOUNT_ID, R2_BUCKET_NAME, R2_ACCESS_KEY_ID and R2_SECRET_ACCESS_KEY must be set")
	}
	return nil
}

// NewS3Client builds an S3 API client pointed at the account's R2 endpoint.
func NewS3Client(ctx context.Context, o Options) (*s3.Client, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(o.AccessKeyID, o.SecretAccessKey, "")),
		config.WithRegion("auto"), // R2 is region-agnostic
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS SDK config for R2: %w", err)
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", o.AccountID)
	client := s3.NewFromConfig(cfg, func(so *s3.Options) {
		so.BaseEndpoint = aws.String(endpoint)
	})

	log.Printf("INFO: R2 client initialized for bucket '%s'", o.Bucket)
	return client, nil
}

// Open builds the client and wraps it in a Store.
func Open(ctx context.Context, o Options) (*Store, error) {
	client, err := NewS3Client(ctx, o)
	if err != nil {
		return nil, err
	}
	return NewStore(client, o.Bucket, o.Prefix), nil
}
