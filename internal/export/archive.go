package export

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ArchiveConfig locates the bucket that keeps rendered exports.
type ArchiveConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// LinkExpiry is how long presigned download links stay valid. Zero means 24h.
	LinkExpiry time.Duration
}

// Archived describes one stored export.
type Archived struct {
	Bucket    string    `json:"bucket"`
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	ETag      string    `json:"etag"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Archiver uploads export results to S3-compatible object storage.
type Archiver struct {
	client     *minio.Client
	bucket     string
	linkExpiry time.Duration

	mu          sync.Mutex
	bucketReady bool
}

// NewArchiver returns nil with no error when cfg.Endpoint is empty.
func NewArchiver(cfg ArchiveConfig) (*Archiver, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	expiry := cfg.LinkExpiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &Archiver{client: client, bucket: cfg.Bucket, linkExpiry: expiry}, nil
}

// ObjectKey names an archived export: briefs/<yyyy>/<mm>/<stamp>-<file>.
func ObjectKey(result *Result, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("briefs/%04d/%02d/%s-%s", at.Year(), int(at.Month()), at.Format("20060102T150405Z"), result.Filename)
}

// Store uploads result and returns where it landed.
func (a *Archiver) Store(ctx context.Context, result *Result, at time.Time) (Archived, error) {
	if a == nil {
		return Archived{}, ErrArchiveDisabled
	}
	if err := a.ensureBucket(ctx); err != nil {
		return Archived{}, err
	}

	key := ObjectKey(result, at)
	info, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(result.Data), int64(len(result.Data)), minio.PutObjectOptions{
		ContentType: result.MimeType,
	})
	if err != nil {
		return Archived{}, fmt.Errorf("put export object: %w", err)
	}

	archived := Archived{
		Bucket:    info.Bucket,
		Key:       info.Key,
		Size:      info.Size,
		ETag:      info.ETag,
		CreatedAt: at.UTC(),
	}
	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	if link, err := a.client.PresignedGetObject(ctx, a.bucket, key, a.linkExpiry, params); err == nil {
		archived.URL = link.String()
	}
	return archived, nil
}

// Healthy reports whether the bucket is reachable.
func (a *Archiver) Healthy(ctx context.Context) bool {
	if a == nil {
		return false
	}
	_, err := a.client.BucketExists(ctx, a.bucket)
	return err == nil
}

func (a *Archiver) ensureBucket(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bucketReady {
		return nil
	}
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check export bucket: %w", err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create export bucket: %w", err)
		}
	}
	a.bucketReady = true
	return nil
}
