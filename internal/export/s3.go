package export

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/lazypower/rapport/internal/config"
)

// PutObjectAPI is the subset of the S3 client used by S3Writer.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Writer uploads reports under <prefix>/<guild>/<user>/<uuid>.json.
type S3Writer struct {
	Client PutObjectAPI
	Bucket string
	Prefix string
}

// NewS3Writer builds an S3Writer using the default AWS credential chain.
func NewS3Writer(ctx context.Context, cfg config.ExportConfig) (*S3Writer, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("export bucket not configured")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &S3Writer{
		Client: s3.NewFromConfig(awsCfg),
		Bucket: cfg.Bucket,
		Prefix: cfg.Prefix,
	}, nil
}

// Key returns the object key for a report.
func (w *S3Writer) Key(r Report) string {
	return path.Join(w.Prefix, r.Guild, r.User, uuid.NewString()+".json")
}

func (w *S3Writer) Write(ctx context.Context, r Report) (string, error) {
	data, err := encode(r)
	if err != nil {
		return "", err
	}
	key := w.Key(r)
	_, err = w.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("upload report to s3://%s/%s: %w", w.Bucket, key, err)
	}
	return fmt.Sprintf("s3://%s/%s", w.Bucket, key), nil
}
