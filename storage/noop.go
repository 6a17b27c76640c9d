package storage

import (
	"context"
	"errors"
	"io"
)

var ErrUploadsDisabled = errors.New("file uploads are not configured")

type noopUploader struct{}

// NewNoopUploader stands in when no object store is configured. Uploads
// fail with ErrUploadsDisabled; reads resolve to nothing.
func NewNoopUploader() FileUploader {
	return noopUploader{}
}

func (noopUploader) Upload(ctx context.Context, key, contentType string, reader io.Reader) (*UploadResult, error) {
	return nil, ErrUploadsDisabled
}

func (noopUploader) Delete(ctx context.Context, key string) error {
	return nil
}

func (noopUploader) GetPublicURL(key string) string {
	return ""
}
