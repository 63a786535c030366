package storage

import (
	"context"
	"errors"
	"io"
	"net/http"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GCSObjectWriter writes objects to Cloud Storage with a does-not-exist precondition.
type GCSObjectWriter struct {
	client *gcs.Client
}

// NewGCSObjectWriter wraps a Cloud Storage client.
func NewGCSObjectWriter(client *gcs.Client) (*GCSObjectWriter, error) {
	if client == nil {
		return nil, errors.New("storage writer: client is required")
	}
	return &GCSObjectWriter{client: client}, nil
}

func (w *GCSObjectWriter) NewWriter(ctx context.Context, bucket, object, contentType string) io.WriteCloser {
	obj := w.client.Bucket(bucket).Object(object).If(gcs.Conditions{DoesNotExist: true})
	writer := obj.NewWriter(ctx)
	writer.ContentType = contentType
	return preconditionWriter{Writer: writer}
}

// preconditionWriter reports a failed does-not-exist precondition as ErrObjectExists.
type preconditionWriter struct {
	*gcs.Writer
}

func (w preconditionWriter) Close() error {
	err := w.Writer.Close()
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
		return ErrObjectExists
	}
	return err
}
