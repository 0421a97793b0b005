// Package source is the S3-compatible blob store the pipeline reads from.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type Options struct {
	Bucket    string
	Region    string
	Endpoint  string // optional, for R2/MinIO style deployments
	AccessKey string
	SecretKey string
}

type Client struct {
	api    *s3.Client
	bucket string
}

// New builds an S3 client with static credentials. Works against AWS S3,
// Cloudflare R2, and MinIO (path style is forced when an endpoint is set).
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("source bucket is required")
	}
	region := opts.Region
	if region == "" {
		region = "auto"
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey, opts.SecretKey, "",
		)),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("configure source store client: %w", err)
	}

	api := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &Client{api: api, bucket: opts.Bucket}, nil
}

// Exists probes a key with HeadObject. A missing key is (false, nil);
// transport and permission problems surface as errors.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *s3types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("head %s/%s: %w", c.bucket, key, err)
	}
	return true, nil
}

// Fetch streams an object to localPath, creating intermediate directories.
// The write goes through a temp file so an interrupted fetch never leaves a
// plausible-looking partial at the final path.
func (c *Client) Fetch(ctx context.Context, key, localPath string) error {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *s3types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return fmt.Errorf("source object not found: %s/%s", c.bucket, key)
		}
		return fmt.Errorf("get %s/%s: %w", c.bucket, key, err)
	}
	defer out.Body.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", localPath, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(localPath), ".fetch-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", localPath, err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, out.Body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("download %s/%s: %w", c.bucket, key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file for %s: %w", localPath, err)
	}
	if err := os.Rename(tmpPath, localPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("finalize %s: %w", localPath, err)
	}
	return nil
}
