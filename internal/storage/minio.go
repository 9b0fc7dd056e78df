package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"morph/internal/config"
)

// Uploader stores delivered outputs in a remote bucket.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

// Client wraps a MinIO connection for output uploads.
type Client struct {
	client *minio.Client
	bucket string
	prefix string
}

// New builds a storage client from config. Returns an error when storage is
// disabled; callers should check cfg.Storage.Enabled first.
func New(cfg *config.Config) (*Client, error) {
	if !cfg.Storage.Enabled {
		return nil, errors.New("storage is disabled")
	}

	client, err := minio.New(cfg.Storage.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Storage.AccessKey, cfg.Storage.SecretKey, ""),
		Secure: cfg.Storage.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Client{
		client: client,
		bucket: cfg.Storage.Bucket,
		prefix: strings.Trim(cfg.Storage.Prefix, "/"),
	}, nil
}

// EnsureBucket creates the configured bucket when it does not exist.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := c.client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

// Upload stores the file under a unique object key and returns the key.
func (c *Client) Upload(ctx context.Context, localPath string) (string, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return "", fmt.Errorf("stat upload source: %w", err)
	}

	in, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open upload source: %w", err)
	}
	defer in.Close()

	key := c.ObjectKey(filepath.Base(localPath))
	_, err = c.client.PutObject(ctx, c.bucket, key, in, info.Size(), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}

// ObjectKey builds a collision-free object key for a delivered file name.
func (c *Client) ObjectKey(fileName string) string {
	key := uuid.NewString() + "/" + fileName
	if c.prefix != "" {
		key = path.Join(c.prefix, key)
	}
	return key
}
