package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/gridci/gridci/internal/config"
)

// ErrMiss is returned by Restore when no archive exists for the key.
var ErrMiss = errors.New("cache miss")

// Store persists cache archives across runs, keyed by entry.
type Store interface {
	// Save uploads the archive at archivePath under key.
	Save(ctx context.Context, key, archivePath string) error
	// Restore downloads the archive for key into archivePath. A missing
	// key returns ErrMiss.
	Restore(ctx context.Context, key, archivePath string) error
}

// LocalStore keeps archives in a directory on the local filesystem.
type LocalStore struct {
	Dir string
}

// NewLocalStore creates a store rooted at dir, creating it if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory %s: %w", dir, err)
	}
	return &LocalStore{Dir: dir}, nil
}

func (s *LocalStore) Save(_ context.Context, key, archivePath string) error {
	return copyFile(archivePath, s.objectPath(key))
}

func (s *LocalStore) Restore(_ context.Context, key, archivePath string) error {
	source := s.objectPath(key)
	if _, err := os.Stat(source); err != nil {
		if os.IsNotExist(err) {
			return ErrMiss
		}
		return err
	}
	return copyFile(source, archivePath)
}

func (s *LocalStore) objectPath(key string) string {
	return filepath.Join(s.Dir, key+".tar.gz")
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// S3Store keeps archives in an S3-compatible bucket. Credentials come from
// the environment variables named in the remote cache config.
type S3Store struct {
	client *minio.Client
	bucket string
}

// NewS3Store connects to the configured endpoint. The named credential
// variables must be set.
func NewS3Store(cfg *config.RemoteCache) (*S3Store, error) {
	accessKey := os.Getenv(cfg.AccessKeyEnv)
	secretKey := os.Getenv(cfg.SecretKeyEnv)
	if accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("cache credentials %s and %s must be set", cfg.AccessKeyEnv, cfg.SecretKeyEnv)
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect cache endpoint %s: %w", cfg.Endpoint, err)
	}

	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

func (s *S3Store) Save(ctx context.Context, key, archivePath string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check cache bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create cache bucket %s: %w", s.bucket, err)
		}
	}

	_, err = s.client.FPutObject(ctx, s.bucket, objectName(key), archivePath, minio.PutObjectOptions{
		ContentType: "application/gzip",
	})
	if err != nil {
		return fmt.Errorf("upload cache %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) Restore(ctx context.Context, key, archivePath string) error {
	err := s.client.FGetObject(ctx, s.bucket, objectName(key), archivePath, minio.GetObjectOptions{})
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return ErrMiss
		}
		if minio.ToErrorResponse(err).Code == "NoSuchBucket" {
			return ErrMiss
		}
		return fmt.Errorf("download cache %s: %w", key, err)
	}
	return nil
}

func objectName(key string) string {
	return key + ".tar.gz"
}
