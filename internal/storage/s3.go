// Package storage keeps raw document payloads in S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cloo-solutions/coursetutor/internal/domain"
)

const defaultDownloadURLExpiry = 15 * time.Minute

type S3ClientConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UsePathStyle    bool
	// DownloadURLExpiry bounds presigned download links. Zero means 15m.
	DownloadURLExpiry time.Duration
}

// S3Client is the blob store for uploaded course material. Object keys
// end in the original file name, which presigned downloads reuse.
type S3Client struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	expiry  time.Duration
}

func NewS3Client(ctx context.Context, cfg S3ClientConfig) (*S3Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	expiry := cfg.DownloadURLExpiry
	if expiry <= 0 {
		expiry = defaultDownloadURLExpiry
	}
	return &S3Client{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		expiry:  expiry,
	}, nil
}

func (c *S3Client) object(key string) (*string, *string) {
	return aws.String(c.bucket), aws.String(key)
}

// Put stores data under key, replacing any existing object.
func (c *S3Client) Put(ctx context.Context, key, contentType string, data []byte) error {
	bucket, k := c.object(key)
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        bucket,
		Key:           k,
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Get returns the object at key or domain.ErrPayloadNotFound.
func (c *S3Client) Get(ctx context.Context, key string) ([]byte, error) {
	bucket, k := c.object(key)
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{Bucket: bucket, Key: k})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, domain.ErrPayloadNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Delete removes an object. Missing keys are not an error.
func (c *S3Client) Delete(ctx context.Context, key string) error {
	bucket, k := c.object(key)
	if _, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: bucket, Key: k}); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// GenerateDownloadURL presigns a GET that saves under the file's own name.
func (c *S3Client) GenerateDownloadURL(ctx context.Context, key string) (string, error) {
	bucket, k := c.object(key)
	req, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     bucket,
		Key:                        k,
		ResponseContentDisposition: aws.String(attachment(key)),
	}, s3.WithPresignExpires(c.expiry))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}

func attachment(key string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(key)})
}

// EnsureBucket creates the bucket when HeadBucket reports it missing.
func (c *S3Client) EnsureBucket(ctx context.Context) error {
	bucket := aws.String(c.bucket)
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: bucket})
	if err == nil {
		return nil
	}
	var missing *types.NotFound
	if !errors.As(err, &missing) {
		return fmt.Errorf("check bucket %s: %w", c.bucket, err)
	}
	if _, err := c.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: bucket}); err != nil {
		return fmt.Errorf("create bucket %s: %w", c.bucket, err)
	}
	return nil
}
