package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"ledgerreports/internal/core"
)

const gcsWriteTimeout = 50 * time.Second

// GCSStore writes artifacts as objects <prefix><requestId>/<kind file> in a
// Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStore creates a Cloud Storage client. credentialsFile may be empty to
// use application default credentials.
func NewGCSStore(ctx context.Context, bucket, prefix, credentialsFile string) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("output bucket must be set")
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &GCSStore{client: client, bucket: bucket, prefix: prefix}, nil
}

// ObjectName returns the bucket-relative object name for (requestID, kind).
func (s *GCSStore) ObjectName(requestID string, kind core.Kind) string {
	return s.prefix + ObjectName(requestID, kind)
}

func (s *GCSStore) Write(ctx context.Context, requestID string, kind core.Kind, body []byte) (string, error) {
	if err := validate(requestID, kind); err != nil {
		return "", err
	}

	object := s.ObjectName(requestID, kind)

	writeCtx, cancel := context.WithTimeout(ctx, gcsWriteTimeout)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(object).NewWriter(writeCtx)
	w.ContentType = "text/csv"

	if _, err := io.Copy(w, bytes.NewReader(body)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("io.Copy to GCS failed: %w", describe(err))
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer (finalize upload): %w", describe(err))
	}

	location := fmt.Sprintf("gs://%s/%s", s.bucket, object)
	slog.InfoContext(ctx, "Report uploaded", "location", location, "bytes", len(body))
	return location, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

func describe(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return fmt.Errorf("gcs status %d: %w", gerr.Code, err)
	}
	return err
}
