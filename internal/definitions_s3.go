package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/openfacet/facet"
	"go.uber.org/zap"
)

// S3SourceOptions configures the definition object source. Empty fields
// fall back to the ambient AWS configuration; Endpoint switches to
// path-style addressing for MinIO-like stores.
type S3SourceOptions struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// ParseS3URL splits an s3://bucket/key URL.
func ParseS3URL(raw string) (bucket, key string, err error) {
	const scheme = "s3://"
	if !strings.HasPrefix(raw, scheme) {
		return "", "", fmt.Errorf("not an s3 url: %q", raw)
	}
	rest := strings.TrimPrefix(raw, scheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 url needs a bucket and key: %q", raw)
	}
	return bucket, key, nil
}

func newS3Client(ctx context.Context, opts S3SourceOptions) (*s3.Client, error) {
	loadOpts := []func(*config.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	if opts.Endpoint != "" {
		loadOpts = append(loadOpts, config.WithBaseEndpoint(opts.Endpoint))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.UsePathStyle = true
		}
	}), nil
}

// FetchS3Definition downloads and parses a definition document addressed
// as s3://bucket/key. A missing object or bucket is a not-found error;
// everything else propagates wrapped.
func FetchS3Definition(ctx context.Context, url string, opts S3SourceOptions) (*DefinitionDocument, error) {
	bucket, key, err := ParseS3URL(url)
	if err != nil {
		return nil, facet.NewConfigurationError(err.Error())
	}

	client, err := newS3Client(ctx, opts)
	if err != nil {
		return nil, err
	}

	downloader := manager.NewDownloader(client)
	buf := manager.NewWriteAtBuffer(nil)
	_, err = downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "NoSuchKey", "NoSuchBucket", "NotFound":
				return nil, facet.NewNotFoundError(fmt.Sprintf("definition object %s not found", url))
			}
		}
		return nil, fmt.Errorf("download definition: %w", err)
	}

	zap.S().Debugw("definition object downloaded", "url", url, "bytes", len(buf.Bytes()))
	return ParseDefinition(buf.Bytes())
}
