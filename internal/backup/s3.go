package backup

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var _ Mirror = (*S3Mirror)(nil)

// S3Config holds the configuration for an S3-compatible backup mirror.
type S3Config struct {
	Bucket          string
	Prefix          string // object key prefix, defaults to "comic-tool"
	Region          string
	Endpoint        string // custom endpoint for MinIO/R2/B2
	AccessKeyID     string // optional, falls back to the AWS credential chain
	SecretAccessKey string
	ForcePathStyle  bool
}

// S3Mirror uploads every new backup to an S3 bucket.
type S3Mirror struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Mirror creates a mirror from cfg.
func NewS3Mirror(ctx context.Context, cfg S3Config) (*S3Mirror, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "comic-tool"
	}
	prefix = strings.Trim(prefix, "/")

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &S3Mirror{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		prefix: prefix,
	}, nil
}

// objectKey lays backups out as <prefix>/<original stem>/<backup name>.
func (m *S3Mirror) objectKey(rec Record) string {
	return path.Join(m.prefix, rec.Stem+rec.Ext, rec.Name())
}

// Upload stores the backup file as an object.
func (m *S3Mirror) Upload(ctx context.Context, rec Record) error {
	f, err := os.Open(rec.Path)
	if err != nil {
		return fmt.Errorf("s3: open %s: %w", rec.Path, err)
	}
	defer f.Close()

	key := m.objectKey(rec)
	input := &s3.PutObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
		Body:   f,
	}
	if rec.Size > 0 {
		input.ContentLength = aws.Int64(rec.Size)
	}
	if _, err := m.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("s3: failed to upload %s: %w", key, err)
	}
	return nil
}
