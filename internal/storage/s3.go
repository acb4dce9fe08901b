// Package storage hosts uploaded images in an S3 compatible bucket (AWS S3
// or MinIO). Uploads return a public URL plus the object key needed to
// delete the object later.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/krushi/krushi-api/internal/config"
)

// Object describes a stored file.
type Object struct {
	URL         string
	Key         string
	ContentType string
	Size        int64
}

// ObjectStore is what services need from the image host.
type ObjectStore interface {
	Upload(ctx context.Context, folder, filename, contentType string, body io.ReadSeeker, size int64) (Object, error)
	Delete(ctx context.Context, key string) error
}

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store implements ObjectStore on top of aws-sdk-go-v2.
type S3Store struct {
	client  s3API
	bucket  string
	baseURL string
	timeout time.Duration
}

// NewS3Store builds a client from cfg. Static credentials and a custom
// endpoint are used when set, which is how MinIO is reached in development.
func NewS3Store(ctx context.Context, cfg config.StorageConfig) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return newS3Store(client, cfg), nil
}

func newS3Store(client s3API, cfg config.StorageConfig) *S3Store {
	return &S3Store{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: publicBase(cfg),
		timeout: cfg.Timeout,
	}
}

// publicBase is the prefix objects are served from.
func publicBase(cfg config.StorageConfig) string {
	switch {
	case cfg.PublicBaseURL != "":
		return cfg.PublicBaseURL
	case cfg.Endpoint != "":
		return strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
}

// Upload stores body under a fresh key inside folder.
func (s *S3Store) Upload(ctx context.Context, folder, filename, contentType string, body io.ReadSeeker, size int64) (Object, error) {
	key := ObjectKey(folder, filename)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}
	if size > 0 {
		in.ContentLength = aws.Int64(size)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return Object{}, fmt.Errorf("put object %s: %w", key, err)
	}
	return Object{URL: s.baseURL + "/" + key, Key: key, ContentType: contentType, Size: size}, nil
}

// Delete removes key. S3 treats a missing key as success.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// ObjectKey returns folder/yyyy/mm/dd/<uuid><ext>.
func ObjectKey(folder, filename string) string {
	folder = strings.Trim(folder, "/")
	if folder == "" {
		folder = "uploads"
	}
	d := time.Now().UTC()
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s%s", folder, d.Year(), d.Month(), d.Day(), uuid.NewString(), ext)
}
