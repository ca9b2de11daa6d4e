// Package archive stores finished-order reports in an S3-compatible bucket.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"lineflow/config"
)

type Uploader struct {
	client *minio.Client
	bucket string
	prefix string
	region string
}

func New(cfg *config.ArchiveConfig) (*Uploader, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("archive client: %w", err)
	}
	return &Uploader{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, region: cfg.Region}, nil
}

func (u *Uploader) Bucket() string { return u.bucket }

// EnsureBucket creates the bucket when it does not exist yet.
func (u *Uploader) EnsureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", u.bucket, err)
	}
	if exists {
		return nil
	}
	if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{Region: u.region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", u.bucket, err)
	}
	return nil
}

// Put uploads data under the configured prefix and returns the object key.
func (u *Uploader) Put(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	key := path.Join(u.prefix, name)
	_, err := u.client.PutObject(ctx, u.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put %s/%s: %w", u.bucket, key, err)
	}
	return key, nil
}

// OrderReportName is the object name of an order report, grouped by line
// and UTC day.
func OrderReportName(lineID, orderID string, at time.Time) string {
	return path.Join(lineID, at.UTC().Format("2006/01/02"), orderID+".xlsx")
}
