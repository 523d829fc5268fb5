package minio

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FCE-Intelligence/pkg/errors"
)

var (
	ErrObjectNotFound = errors.New(errors.ErrCodeNotFound, "object not found")
	ErrInvalidRequest = errors.New(errors.ErrCodeValidation, "invalid object request")
)

// ReportStore keeps rendered reports in the configured bucket. It
// implements reporting.ArtifactStore.
type ReportStore struct {
	client *Client
	logger logging.Logger
}

func NewReportStore(client *Client, log logging.Logger) *ReportStore {
	if log == nil {
		log = client.logger
	}
	return &ReportStore{client: client, logger: log}
}

func (s *ReportStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if key == "" {
		return ErrInvalidRequest.WithDetail("empty object key")
	}
	api, err := s.client.objects()
	if err != nil {
		return err
	}
	if contentType == "" && len(data) > 0 {
		contentType = http.DetectContentType(data[:min(512, len(data))])
	}

	info, err := api.PutObject(ctx, s.client.Bucket(), key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "upload failed").WithDetail("key=" + key)
	}
	s.logger.Debug("Stored report artefact",
		logging.String("key", key),
		logging.Int64("size", info.Size),
		logging.String("etag", info.ETag))
	return nil
}

// Get opens key for reading. The caller closes the returned reader.
func (s *ReportStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if _, err := s.Stat(ctx, key); err != nil {
		return nil, err
	}
	api, err := s.client.objects()
	if err != nil {
		return nil, err
	}
	obj, err := api.GetObject(ctx, s.client.Bucket(), key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "download failed").WithDetail("key=" + key)
	}
	return obj, nil
}

type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
	ETag        string
}

func (s *ReportStore) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	api, err := s.client.objects()
	if err != nil {
		return nil, err
	}
	info, err := api.StatObject(ctx, s.client.Bucket(), key, minio.StatObjectOptions{})
	if err != nil {
		return nil, objectError(err, key, "stat failed")
	}
	return &ObjectInfo{Key: key, Size: info.Size, ContentType: info.ContentType, ETag: info.ETag}, nil
}

func (s *ReportStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Stat(ctx, key)
	if errors.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

func (s *ReportStore) Delete(ctx context.Context, key string) error {
	api, err := s.client.objects()
	if err != nil {
		return err
	}
	if err := api.RemoveObject(ctx, s.client.Bucket(), key, minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "delete failed").WithDetail("key=" + key)
	}
	return nil
}

// DownloadURL is a presigned link to key using the configured expiry.
func (s *ReportStore) DownloadURL(ctx context.Context, key string) (string, error) {
	return s.client.PresignedGetURL(ctx, key, 0)
}

func objectError(err error, key, msg string) error {
	if code := minio.ToErrorResponse(err).Code; code == "NoSuchKey" || code == "NoSuchObject" {
		return ErrObjectNotFound.WithDetail("key=" + key)
	}
	return errors.Wrap(err, errors.ErrCodeStorageError, msg).WithDetail("key=" + key)
}
