package storage

import (
	"context"
	"fmt"
	"io"
	"path"

	gcs "cloud.google.com/go/storage"

	"github.com/yoockh/medscribe/internal/utils"
)

// GCSUploader files objects in a private bucket. Prescriptions carry patient data, so objects
// get no public ACL and are never cached by intermediaries.
type GCSUploader struct {
	client *gcs.Client
	bucket string
}

func NewGCSUploader(ctx context.Context, bucket string) (*GCSUploader, error) {
	const op = "storage.NewGCSUploader"

	if bucket == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "bucket is required", nil)
	}
	c, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "storage client", err)
	}
	return &GCSUploader{client: c, bucket: bucket}, nil
}

func (u *GCSUploader) Close() error { return u.client.Close() }

// Upload writes r to objectName and returns its gs:// location.
func (u *GCSUploader) Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (string, error) {
	const op = "GCSUploader.Upload"

	w := u.client.Bucket(u.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "private, no-store"
	w.ContentDisposition = Disposition(objectName)

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", utils.E(utils.CodeUnavailable, op, "write object", err)
	}
	if err := w.Close(); err != nil {
		return "", utils.E(utils.CodeUnavailable, op, "finalize object", err)
	}
	return fmt.Sprintf("gs://%s/%s", u.bucket, objectName), nil
}

// Disposition names the download after the object's base name.
func Disposition(objectName string) string {
	return fmt.Sprintf("attachment; filename=%q", path.Base(objectName))
}
