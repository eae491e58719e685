package snapshot

import (
	"context"
	"fmt"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Mirror copies snapshot files to and from remote storage.
type Mirror interface {
	// Upload copies the local file at localPath to the object name.
	Upload(ctx context.Context, name, localPath string) error
	// Download copies the object name to localPath. It returns ErrNotFound
	// when the object does not exist.
	Download(ctx context.Context, name, localPath string) error
}

// MinioConfig describes an S3-compatible bucket used as a snapshot mirror.
type MinioConfig struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

// MinioMirror stores snapshots in MinIO or any S3-compatible service.
type MinioMirror struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinioMirror creates a mirror client. It does not contact the server.
func NewMinioMirror(cfg MinioConfig) (*MinioMirror, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("minio mirror requires endpoint and bucket")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &MinioMirror{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (m *MinioMirror) EnsureBucket(ctx context.Context) error {
	ok, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", m.bucket, err)
	}
	if ok {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", m.bucket, err)
	}
	return nil
}

func (m *MinioMirror) key(name string) string {
	return path.Join(m.prefix, name)
}

// Upload puts localPath into the bucket.
func (m *MinioMirror) Upload(ctx context.Context, name, localPath string) error {
	_, err := m.client.FPutObject(ctx, m.bucket, m.key(name), localPath, minio.PutObjectOptions{
		ContentType: contentType(name),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", name, err)
	}
	return nil
}

// Download fetches the object into localPath.
func (m *MinioMirror) Download(ctx context.Context, name, localPath string) error {
	err := m.client.FGetObject(ctx, m.bucket, m.key(name), localPath, minio.GetObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NotFound" {
			return ErrNotFound
		}
		return fmt.Errorf("failed to download %s: %w", name, err)
	}
	return nil
}

func contentType(name string) string {
	if path.Ext(name) == ".json" {
		return "application/json"
	}
	return "application/octet-stream"
}
