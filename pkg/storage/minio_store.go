package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig configures MinioStore.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicBaseURL prefixes object keys in returned URLs. Defaults to
	// <scheme>://<endpoint>/<bucket>.
	PublicBaseURL string
	// PublicRead installs an anonymous read policy on the bucket.
	PublicRead bool
}

// MinioStore implements ImageStore for MinIO/S3 compatible storage.
type MinioStore struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

const publicReadPolicy = `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`

// NewMinioStore connects to MinIO and ensures the bucket exists.
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	if cfg.PublicRead {
		if err := client.SetBucketPolicy(ctx, cfg.Bucket, fmt.Sprintf(publicReadPolicy, cfg.Bucket)); err != nil {
			return nil, fmt.Errorf("set bucket policy: %w", err)
		}
	}
	return &MinioStore{client: client, bucket: cfg.Bucket, baseURL: publicBase(cfg)}, nil
}

func publicBase(cfg MinioConfig) string {
	if cfg.PublicBaseURL != "" {
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	}
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	return scheme + "://" + strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
}

// Put uploads an object and returns its public URL.
func (m *MinioStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	_, err = m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return m.objectURL(key), nil
}

// Delete removes an object by URL or key.
func (m *MinioStore) Delete(ctx context.Context, ref string) error {
	key, err := m.keyFromRef(ref)
	if err != nil {
		return err
	}
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// List pages through objects under prefix.
func (m *MinioStore) List(ctx context.Context, prefix, cursor string, limit int) (Page, error) {
	limit = normalizeLimit(limit)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	objects := m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:     prefix,
		Recursive:  true,
		StartAfter: cursor,
	})
	page := Page{Objects: make([]Object, 0, limit)}
	for info := range objects {
		if info.Err != nil {
			return Page{}, fmt.Errorf("list objects: %w", info.Err)
		}
		if len(page.Objects) == limit {
			page.HasMore = true
			break
		}
		page.Objects = append(page.Objects, Object{
			URL:         m.objectURL(info.Key),
			Pathname:    info.Key,
			Size:        info.Size,
			ContentType: info.ContentType,
			UploadedAt:  info.LastModified,
		})
	}
	if page.HasMore {
		page.Cursor = page.Objects[len(page.Objects)-1].Pathname
	}
	return page, nil
}

func (m *MinioStore) objectURL(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return m.baseURL + "/" + strings.Join(segments, "/")
}

// keyFromRef accepts escaped URLs produced by objectURL.
func (m *MinioStore) keyFromRef(ref string) (string, error) {
	key, err := keyFromRef(m.baseURL, ref)
	if err != nil {
		return "", err
	}
	if unescaped, err := url.PathUnescape(key); err == nil {
		key = unescaped
	}
	return key, nil
}
