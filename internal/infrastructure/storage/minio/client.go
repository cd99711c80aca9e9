// Package minio persists trained models in object storage.  One bucket holds
// every model, keyed models/<bot>/<language>/<hash>.json, so a bot's full
// model history is a prefix listing.
package minio

import (
	"context"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/converso-ai/nlu-engine/internal/config"
	"github.com/converso-ai/nlu-engine/internal/infrastructure/monitoring/logging"
	"github.com/converso-ai/nlu-engine/pkg/errors"
)

// ObjectAPI is the slice of the minio-go client the model store uses.
// Tests substitute an in-memory implementation.
type ObjectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// realAPI adapts *minio.Client to ObjectAPI.  The only change is GetObject's
// return type: the repository reads bytes, not minio.Object handles.
type realAPI struct {
	*minio.Client
}

func (r realAPI) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	return r.Client.GetObject(ctx, bucketName, objectName, opts)
}

// Client wraps the minio-go connection and guarantees the model bucket
// exists before any repository call.
type Client struct {
	api    ObjectAPI
	bucket string
	logger logging.Logger
}

// NewClient connects to the object store and ensures the configured bucket.
func NewClient(cfg config.MinIOConfig, logger logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.Endpoint == "" {
		return nil, errors.New(errors.ErrCodeConfiguration, "minio endpoint is empty")
	}
	if cfg.Bucket == "" {
		return nil, errors.New(errors.ErrCodeConfiguration, "minio bucket is empty")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "create minio client")
	}

	c := &Client{api: realAPI{mc}, bucket: cfg.Bucket, logger: logger.Named("minio")}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.ensureBucket(ctx); err != nil {
		return nil, err
	}

	logger.Info("object store connected",
		logging.String("endpoint", cfg.Endpoint),
		logging.String("bucket", cfg.Bucket))
	return c, nil
}

// NewClientWithAPI wires a Client over an existing API implementation.
func NewClientWithAPI(api ObjectAPI, bucket string, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Client{api: api, bucket: bucket, logger: logger.Named("minio")}
}

func (c *Client) ensureBucket(ctx context.Context) error {
	exists, err := c.api.BucketExists(ctx, c.bucket)
	if err != nil {
		return errors.Wrapf(err, errors.ErrCodeServiceUnavailable, "check bucket %q", c.bucket)
	}
	if exists {
		return nil
	}
	if err := c.api.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return errors.Wrapf(err, errors.ErrCodeInternal, "create bucket %q", c.bucket)
	}
	c.logger.Info("created model bucket", logging.String("bucket", c.bucket))
	return nil
}

// Bucket returns the configured model bucket name.
func (c *Client) Bucket() string { return c.bucket }

// HealthCheck verifies the bucket is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	exists, err := c.api.BucketExists(ctx, c.bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "object store unreachable")
	}
	if !exists {
		return errors.Newf(errors.ErrCodeServiceUnavailable, "model bucket %q missing", c.bucket)
	}
	return nil
}
