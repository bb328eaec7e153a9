// Package blob stores uploaded exam files and the images derived from them.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/xcalificator/grader/internal/model"
)

// Store saves an object and returns the URL it can be fetched from.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// NewKey returns a unique object key under prefix. The extension is taken
// from filename, or from contentType when filename has none.
func NewKey(prefix, filename, contentType string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" && contentType != "" {
		if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
			ext = exts[0]
		}
	}
	return path.Join(prefix, uuid.NewString()+ext)
}

// New builds the store selected by cfg.BlobDriver.
func New(cfg model.Config) (Store, error) {
	switch cfg.BlobDriver {
	case "fs":
		return NewFS(cfg.UploadDir, cfg.PublicBaseURL)
	case "minio":
		return NewMinIO(context.Background(), cfg.MinIO)
	default:
		return nil, fmt.Errorf("unsupported blob driver %q", cfg.BlobDriver)
	}
}

// FS stores objects below a local directory served at /uploads/.
type FS struct {
	dir     string
	baseURL string
}

func NewFS(dir, publicBaseURL string) (*FS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &FS{dir: dir, baseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

// Dir returns the directory objects are written to.
func (f *FS) Dir() string { return f.dir }

func (f *FS) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	key = path.Clean("/" + key)[1:]
	if key == "" {
		return "", fmt.Errorf("empty object key")
	}
	dst := filepath.Join(f.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	return f.baseURL + "/uploads/" + key, nil
}

// MinIO stores objects in an S3-compatible bucket.
type MinIO struct {
	client *minio.Client
	bucket string
	scheme string
	host   string
}

// NewMinIO connects to the endpoint and creates the bucket if it is missing.
func NewMinIO(ctx context.Context, cfg model.MinIOConfig) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		slog.Info("created upload bucket", "bucket", cfg.Bucket)
	}
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	return &MinIO{client: client, bucket: cfg.Bucket, scheme: scheme, host: cfg.Endpoint}, nil
}

func (m *MinIO) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return m.scheme + "://" + m.host + "/" + m.bucket + "/" + key, nil
}
