package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithy "github.com/aws/smithy-go"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/scfuzzbench/runcoord/internal/coord"
)

// S3Config configures the AWS-backed Client implementation.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // non-empty to target an S3-compatible store
	AccessKey string
	SecretKey string
	Profile   string
	// PathStyle forces path-style addressing, required by most non-AWS
	// S3-compatible endpoints.
	PathStyle bool
}

type s3Client struct {
	api    *s3.Client
	bucket string
	log    zerolog.Logger
}

// NewS3Client builds a Client backed by github.com/aws/aws-sdk-go-v2.
func NewS3Client(ctx context.Context, cfg S3Config, log zerolog.Logger) (Client, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		optFns = append(optFns, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %v", coord.ErrFatal, err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	return &s3Client{api: api, bucket: cfg.Bucket, log: log}, nil
}

// retryBackoff is the bounded exponential backoff policy used for every
// transient object-store failure, per spec.md §7.
func retryBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 150 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 20 * time.Second
	return b
}

func (c *s3Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var payload []byte
	found := true

	op := func() error {
		out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			if isNotFound(err) {
				found = false
				return nil
			}
			if isTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		defer out.Body.Close()
		payload, err = io.ReadAll(out.Body)
		return err
	}

	if err := backoff.Retry(op, backoff.WithContext(retryBackoff(), ctx)); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("object-store get failed")
		return nil, false, fmt.Errorf("get %s: %w", key, classifyErr(err))
	}
	if !found {
		return nil, false, nil
	}
	return payload, true, nil
}

func (c *s3Client) Put(ctx context.Context, key string, payload []byte) error {
	op := func() error {
		_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(c.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(payload),
			ContentType: aws.String("application/json"),
		})
		if err != nil && !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(op, backoff.WithContext(retryBackoff(), ctx)); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("object-store put failed")
		return fmt.Errorf("put %s: %w", key, classifyErr(err))
	}
	return nil
}

func (c *s3Client) Delete(ctx context.Context, key string) error {
	op := func() error {
		_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(key),
		})
		if err != nil && isNotFound(err) {
			return nil
		}
		if err != nil && !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(op, backoff.WithContext(retryBackoff(), ctx)); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("object-store delete failed")
		return fmt.Errorf("delete %s: %w", key, classifyErr(err))
	}
	return nil
}

func (c *s3Client) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var token *string

	for {
		var out *s3.ListObjectsV2Output
		op := func() error {
			var err error
			out, err = c.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
				Bucket:            aws.String(c.bucket),
				Prefix:            aws.String(prefix),
				ContinuationToken: token,
			})
			if err != nil && !isTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		if err := backoff.Retry(op, backoff.WithContext(retryBackoff(), ctx)); err != nil {
			c.log.Warn().Err(err).Str("prefix", prefix).Msg("object-store list failed")
			return nil, fmt.Errorf("list %s: %w", prefix, classifyErr(err))
		}
		for _, obj := range out.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
		if out.IsTruncated == nil || !*out.IsTruncated || out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}
	return keys, nil
}

// classifyErr wraps a final (post-retry) object-store error as ErrFatal if
// it was classified non-transient, else ErrTransient (retries exhausted).
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	var permErr *backoff.PermanentError
	if errors.As(err, &permErr) {
		return fmt.Errorf("%w: %v", coord.ErrFatal, permErr.Unwrap())
	}
	return fmt.Errorf("%w: %v", coord.ErrTransient, err)
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if isNotFound(err) {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "InternalError", "ServiceUnavailable", "SlowDown", "RequestTimeout", "Throttling":
			return true
		}
	}
	return true
}
