package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store implements Store using AWS S3. Document blobs are stored under
// their Document id, matching FileStore's keying.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string // Optional key prefix (e.g., "documents/")
}

// S3StoreConfig holds configuration for S3Store.
type S3StoreConfig struct {
	Bucket   string
	Region   string
	Endpoint string // Optional custom endpoint (for MinIO, LocalStack, etc.)
	Prefix   string // Optional key prefix
}

// NewS3Store creates a new S3-backed artifact store.
func NewS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	clientOpts := func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for MinIO/LocalStack
		}
	}

	client := s3.NewFromConfig(awsCfg, clientOpts)

	return &S3Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Store persists data to S3 under documentID and returns its storage handle.
func (s *S3Store) Store(ctx context.Context, documentID string, data []byte) (string, error) {
	key, err := sanitizeDocumentID(documentID)
	if err != nil {
		return "", err
	}
	objectKey := s.prefix + key + ".blob"

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put failed: %w", err)
	}

	return "doc:" + key, nil
}

// Get retrieves data from S3 by its storage handle.
func (s *S3Store) Get(ctx context.Context, handle string) ([]byte, error) {
	key, err := parseHandle(handle)
	if err != nil {
		return nil, err
	}
	objectKey := s.prefix + key + ".blob"

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get failed for %s: %w", handle, err)
	}
	defer func() { _ = result.Body.Close() }()

	return io.ReadAll(result.Body)
}

// Exists checks if an artifact exists in S3.
func (s *S3Store) Exists(ctx context.Context, handle string) (bool, error) {
	key, err := parseHandle(handle)
	if err != nil {
		return false, err
	}
	objectKey := s.prefix + key + ".blob"

	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		// Treat any HeadObject failure as "not found"; the AWS SDK v2
		// error type for a missing key varies by backend (S3 vs MinIO).
		return false, nil
	}

	return true, nil
}

// Delete removes an artifact from S3.
func (s *S3Store) Delete(ctx context.Context, handle string) error {
	key, err := parseHandle(handle)
	if err != nil {
		return err
	}
	objectKey := s.prefix + key + ".blob"

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return fmt.Errorf("s3 delete failed for %s: %w", handle, err)
	}

	return nil
}
