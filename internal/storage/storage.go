package storage

import (
	"context"
	"io"
	"path"
)

type Uploader interface {
	Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (storedPath string, err error)
}

// PrescriptionObject is where a validated prescription is filed, grouped by patient.
func PrescriptionObject(patientID, consultationID string) string {
	return path.Join("prescriptions", "patient-"+patientID, consultationID+".pdf")
}
