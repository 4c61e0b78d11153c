package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Sink stores a rendered export and returns where it went.
type Sink interface {
	Put(ctx context.Context, taskID int64, result *Result) (string, error)
}

// FileSink writes exports below a local directory.
type FileSink struct {
	Dir string
}

func (s FileSink) Put(_ context.Context, _ int64, result *Result) (string, error) {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	target := filepath.Join(dir, result.Filename)
	if err := os.WriteFile(target, result.Data, 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return target, nil
}

type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinIOConfig holds the connection settings for MinIOSink.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinIOSink uploads exports to an S3-compatible bucket, one prefix per
// task.
type MinIOSink struct {
	client objectStore
	bucket string
	now    func() time.Time
}

func NewMinIOSink(cfg MinIOConfig) (*MinIOSink, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("minio endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return newMinIOSink(client, cfg.Bucket), nil
}

func newMinIOSink(client objectStore, bucket string) *MinIOSink {
	return &MinIOSink{client: client, bucket: bucket, now: time.Now}
}

// ObjectName is the key an export of taskID is stored under.
func (s *MinIOSink) ObjectName(taskID int64, filename string) string {
	return path.Join(fmt.Sprintf("task-%d", taskID), s.now().UTC().Format("20060102T150405Z")+"-"+filename)
}

func (s *MinIOSink) Put(ctx context.Context, taskID int64, result *Result) (string, error) {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return "", fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return "", fmt.Errorf("create bucket: %w", err)
		}
	}

	object := s.ObjectName(taskID, result.Filename)
	_, err = s.client.PutObject(ctx, s.bucket, object, bytes.NewReader(result.Data), int64(len(result.Data)), minio.PutObjectOptions{
		ContentType: result.MimeType,
	})
	if err != nil {
		return "", fmt.Errorf("upload export: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, object), nil
}
