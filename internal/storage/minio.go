package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prompt-request/go-services/internal/apierror"
	"github.com/prompt-request/go-services/pkg/logger"
)

// ObjectStore is the blob side of the dual write. Implementations do not
// retry; every failure is reported as a storage error.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// MinIOStorage is a thin wrapper around the minio client used by services.
type MinIOStorage struct {
	client  *minio.Client
	bucket  string
	timeout time.Duration
}

var _ ObjectStore = (*MinIOStorage)(nil)

// NewMinIOStorage creates the S3 client. It does not touch the bucket; call
// EnsureBucket during startup.
func NewMinIOStorage(cfg *MinIOConfig) (*MinIOStorage, error) {
	if cfg == nil || cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 config missing bucket")
	}
	lookup := minio.BucketLookupAuto
	if cfg.ForcePathStyle {
		lookup = minio.BucketLookupPath
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}
	return &MinIOStorage{client: mc, bucket: cfg.Bucket, timeout: cfg.Timeout}, nil
}

func (s *MinIOStorage) Bucket() string { return s.bucket }

func (s *MinIOStorage) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Put uploads data under key with the given content type.
func (s *MinIOStorage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return apierror.Storage(fmt.Errorf("put %s: %w", key, err))
	}
	return nil
}

// Get reads the whole object. A missing object is a storage error: metadata
// never references a blob that was not written first.
func (s *MinIOStorage) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, apierror.Storage(fmt.Errorf("get %s: %w", key, err))
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, apierror.Storage(fmt.Errorf("get %s: %s: %w", key, minio.ToErrorResponse(err).Code, err))
	}
	return data, nil
}

// Delete removes the object. Deleting a missing key succeeds.
func (s *MinIOStorage) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil
		}
		return apierror.Storage(fmt.Errorf("delete %s: %w", key, err))
	}
	return nil
}

// EnsureBucket makes sure the configured bucket exists, creating it when
// allowed.
func (s *MinIOStorage) EnsureBucket(ctx context.Context, create bool, region string) error {
	return ensureBucket(ctx, s.client, s.bucket, create, region, sleepCtx)
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Ping reports whether the bucket is reachable.
func (s *MinIOStorage) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", s.bucket)
	}
	return nil
}

type bucketClient interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
}

const (
	ensureAttempts   = 6
	ensureBackoff    = 200 * time.Millisecond
	ensureMaxBackoff = 5 * time.Second
)

func ensureBucket(ctx context.Context, c bucketClient, bucket string, create bool, region string, sleep func(context.Context, time.Duration) error) error {
	backoff := ensureBackoff
	var lastErr error
	for attempt := 1; attempt <= ensureAttempts; attempt++ {
		lastErr = ensureOnce(ctx, c, bucket, create, region)
		if lastErr == nil {
			return nil
		}
		if attempt == ensureAttempts {
			break
		}
		logger.Warnf("bucket %s not ready (attempt %d/%d): %v; retrying in %s", bucket, attempt, ensureAttempts, lastErr, backoff)
		if err := sleep(ctx, backoff); err != nil {
			return fmt.Errorf("ensure bucket %s: %w (last error: %v)", bucket, err, lastErr)
		}
		backoff *= 2
		if backoff > ensureMaxBackoff {
			backoff = ensureMaxBackoff
		}
	}
	return fmt.Errorf("ensure bucket %s after %d attempts: %w", bucket, ensureAttempts, lastErr)
}

func ensureOnce(ctx context.Context, c bucketClient, bucket string, create bool, region string) error {
	exists, err := c.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	if !create {
		return fmt.Errorf("bucket %s does not exist", bucket)
	}
	if err := c.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		// another replica may have created it in between
		exists, xerr := c.BucketExists(ctx, bucket)
		if xerr == nil && exists {
			return nil
		}
		return fmt.Errorf("make bucket: %w", err)
	}
	logger.Infof("created bucket %s", bucket)
	return nil
}
