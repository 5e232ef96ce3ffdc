package modelstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"shapelearner/internal/config"
	"shapelearner/internal/services"
)

// MinIO stores blobs in an S3-compatible bucket.
type MinIO struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinIO connects to the configured endpoint and makes sure the bucket exists.
func NewMinIO(ctx context.Context, cfg config.ModelStore) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "modelstore", "connect", cfg.Endpoint, err)
	}
	store := NewMinIOClient(client, cfg.Bucket, cfg.Prefix)
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, services.Wrap(services.ErrStoreUnavailable, "modelstore", "connect", cfg.Endpoint, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, services.Wrap(services.ErrStoreUnavailable, "modelstore", "create bucket", cfg.Bucket, err)
		}
	}
	return store, nil
}

// NewMinIOClient wraps an existing client.
func NewMinIOClient(client *minio.Client, bucket, prefix string) *MinIO {
	return &MinIO{client: client, bucket: bucket, prefix: prefix}
}

func (m *MinIO) key(name string) string {
	return path.Join(m.prefix, name)
}

func (m *MinIO) Location() string {
	return fmt.Sprintf("s3://%s/%s", m.bucket, strings.TrimSuffix(m.prefix, "/"))
}

func (m *MinIO) Put(ctx context.Context, name string, data []byte) error {
	_, err := m.client.PutObject(ctx, m.bucket, m.key(name), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/zstd",
	})
	return err
}

func (m *MinIO) Get(ctx context.Context, name string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, m.key(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, translateMinIOError(err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, translateMinIOError(err)
	}
	return data, nil
}

func (m *MinIO) Ping(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", m.bucket)
	}
	return nil
}

func translateMinIOError(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NotFound" {
		return errBlobNotFound
	}
	return err
}
