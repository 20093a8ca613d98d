package objectstore

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Client is the Client implementation backed by Amazon S3. Credentials
// come from the default AWS chain (env, shared config, instance role).
type S3Client struct {
	client *s3.Client
}

// NewS3Client creates an S3 client. An empty region defers to the AWS config.
func NewS3Client(ctx context.Context, region string) (*S3Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewS3Client: loading AWS config: %w", err)
	}
	return &S3Client{client: s3.NewFromConfig(cfg)}, nil
}

// Open implements Client.
func (c *S3Client) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("S3Client.Open: reading object %s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}

// Upload implements Client.
func (c *S3Client) Upload(ctx context.Context, bucket, key string, r io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("S3Client.Upload: writing object %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Close implements Client. The S3 client holds no resources to release.
func (c *S3Client) Close() error {
	return nil
}

var _ Client = (*S3Client)(nil)
