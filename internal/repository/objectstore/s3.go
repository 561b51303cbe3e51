package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/garnizeh/staffdir/pkg/repository"
)

var (
	_ repository.AssetStore  = (*S3Store)(nil)
	_ repository.AssetReader = (*S3Store)(nil)
)

// S3Config addresses a bucket on any S3 compatible service.
type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Region          string
	Prefix          string
	UseSSL          bool
}

// S3Store keeps assets as objects under Prefix in one bucket. Archiving is a
// server-side copy under Prefix/archive followed by removal of the original.
type S3Store struct {
	client *minio.Client
	cfg    S3Config
}

func NewS3Store(cfg S3Config) (*S3Store, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, errors.New("credentials are required")
	}

	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL
	if u, err := url.Parse(cfg.Endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		if u.Scheme == "https" {
			useSSL = true
		}
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	if cfg.Prefix != "" && !strings.HasSuffix(cfg.Prefix, "/") {
		cfg.Prefix += "/"
	}
	return &S3Store{client: client, cfg: cfg}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *S3Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return classifyError(err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
		return classifyError(err)
	}
	return nil
}

func (s *S3Store) key(ref string) string {
	return s.cfg.Prefix + ref
}

func (s *S3Store) archiveKey(ref, newName string) string {
	return s.cfg.Prefix + archiveDir + "/" + sanitize(newName) + "-" + ref
}

func (s *S3Store) put(ctx context.Context, ref string, data []byte, mimeType string) error {
	_, err := s.client.PutObject(ctx, s.cfg.Bucket, s.key(ref), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: mimeType,
	})
	return classifyError(err)
}

func (s *S3Store) CreateAsset(ctx context.Context, data []byte, mimeType, name string) (string, error) {
	ref := newRef(name, mimeType)
	if err := s.put(ctx, ref, data, mimeType); err != nil {
		return "", fmt.Errorf("put %s: %w", ref, err)
	}
	return ref, nil
}

func (s *S3Store) UpdateAsset(ctx context.Context, ref string, data []byte, mimeType string) (string, error) {
	if _, err := s.client.StatObject(ctx, s.cfg.Bucket, s.key(ref), minio.StatObjectOptions{}); err != nil {
		return "", fmt.Errorf("stat %s: %w", ref, classifyError(err))
	}
	if err := s.put(ctx, ref, data, mimeType); err != nil {
		return "", fmt.Errorf("put %s: %w", ref, err)
	}
	return ref, nil
}

func (s *S3Store) RenameAsset(ctx context.Context, ref, newName string) error {
	dst := minio.CopyDestOptions{Bucket: s.cfg.Bucket, Object: s.archiveKey(ref, newName)}
	src := minio.CopySrcOptions{Bucket: s.cfg.Bucket, Object: s.key(ref)}
	if _, err := s.client.CopyObject(ctx, dst, src); err != nil {
		return fmt.Errorf("copy %s: %w", ref, classifyError(err))
	}
	if err := s.client.RemoveObject(ctx, s.cfg.Bucket, s.key(ref), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove %s: %w", ref, classifyError(err))
	}
	return nil
}

func (s *S3Store) OpenAsset(ctx context.Context, ref string) (io.ReadCloser, string, error) {
	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, s.key(ref), minio.GetObjectOptions{})
	if err != nil {
		return nil, "", classifyError(err)
	}
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, "", classifyError(err)
	}
	return obj, info.ContentType, nil
}

// classifyError maps missing objects and buckets to repository.ErrAssetNotFound.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%w: %v", repository.ErrAssetNotFound, err)
	}
	return err
}
