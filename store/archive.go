package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
)

// GCSArchive writes each object at most once.
type GCSArchive struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
	logger *zap.Logger
}

func NewGCSArchive(ctx context.Context, bucket, prefix string, logger *zap.Logger) (*GCSArchive, error) {
	if bucket == "" {
		return nil, errors.New("gcs archive requires a bucket")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GCSArchive{client: client, bucket: client.Bucket(bucket), prefix: prefix, logger: logger}, nil
}

// Put stores data under name. An existing object is left untouched and
// counts as success, since names are content ids.
func (a *GCSArchive) Put(ctx context.Context, name string, data []byte) error {
	object := a.prefix + name
	w := a.bucket.Object(object).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		if isPreconditionFailed(err) {
			a.logger.Debug("archive object exists", zap.String("object", object))
			return nil
		}
		return fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		if isPreconditionFailed(err) {
			a.logger.Debug("archive object exists", zap.String("object", object))
			return nil
		}
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

func (a *GCSArchive) Close() error { return a.client.Close() }

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == 412
}

// S3Archive uploads objects through the s3manager uploader.
type S3Archive struct {
	uploader *s3manager.Uploader
	bucket   string
	prefix   string
}

func NewS3Archive(bucket, region, prefix string) (*S3Archive, error) {
	if bucket == "" {
		return nil, errors.New("s3 archive requires a bucket")
	}
	cfg := &aws.Config{}
	if region != "" {
		cfg.Region = aws.String(region)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	return &S3Archive{uploader: s3manager.NewUploader(sess), bucket: bucket, prefix: prefix}, nil
}

func (a *S3Archive) Put(ctx context.Context, name string, data []byte) error {
	_, err := a.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.prefix + name),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 upload %s: %w", name, err)
	}
	return nil
}
