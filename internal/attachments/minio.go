package attachments

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/joseph-ayodele/packing-tracker/internal/common"
)

const defaultBucket = "jobsheets"

// MinIOStore keeps attachments in an S3-compatible bucket.
type MinIOStore struct {
	client *minio.Client
	bucket string
	now    func() time.Time
	logger *slog.Logger
}

// NewMinIOStore connects to the configured endpoint and makes sure the
// bucket exists.
func NewMinIOStore(ctx context.Context, cfg common.AttachmentsConfig, logger *slog.Logger) (*MinIOStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, common.NewAppError(common.CodeConfig, "MINIO_ENDPOINT is required for attachments", common.ErrInvalidInput)
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		bucket = defaultBucket
	}
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
		logger.Info("attachment bucket created", "bucket", bucket)
	}
	return &MinIOStore{client: client, bucket: bucket, now: time.Now, logger: logger}, nil
}

func (s *MinIOStore) Put(ctx context.Context, jobID uuid.UUID, name string, r io.Reader, size int64, contentType string) (string, error) {
	ct, err := ContentTypeFor(name, contentType)
	if err != nil {
		return "", err
	}
	key := ObjectKey(jobID, name, s.now())
	info, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType:  ct,
		UserMetadata: map[string]string{"job-id": jobID.String()},
	})
	if err != nil {
		s.logger.Error("attachment upload failed", "job_id", jobID, "key", key, "error", err)
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	s.logger.Info("attachment uploaded", "job_id", jobID, "key", key, "size", info.Size)
	return key, nil
}

func (s *MinIOStore) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", common.NewValidationError("attachment key is required")
	}
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}
