package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/yoockh/medscribe/internal/models"
)

var ErrMalformedResponse = errors.New("malformed summary response")

// Request is the frozen transcript of one consultation.
type Request struct {
	AppointmentID string
	PatientID     string
	Transcript    []models.TranscriptEntry
}

func (r Request) Validate() error {
	if r.AppointmentID == "" || r.PatientID == "" {
		return errors.New("appointment_id and patient_id are required")
	}
	for i, e := range r.Transcript {
		if !e.Valid() {
			return fmt.Errorf("transcript entry %d is malformed", i)
		}
	}
	return nil
}

// Summarizer turns a finished transcript into a structured clinical summary.
type Summarizer interface {
	Summarize(ctx context.Context, req Request) (*models.ConsultationSummary, error)
}

type SummarizerFunc func(ctx context.Context, req Request) (*models.ConsultationSummary, error)

func (f SummarizerFunc) Summarize(ctx context.Context, req Request) (*models.ConsultationSummary, error) {
	return f(ctx, req)
}

type wireRequest struct {
	AppointmentID string                   `json:"appointmentId"`
	PatientID     string                   `json:"patientId"`
	Transcript    []models.TranscriptEntry `json:"transcript"`
}

type wireResponse struct {
	Summary          string   `json:"summary"`
	DetectedSymptoms []string `json:"detectedSymptoms"`
	Diagnoses        []string `json:"diagnoses"`
	Prescription     struct {
		Medications      []models.Medication `json:"medications"`
		AdditionalAdvice []string            `json:"additionalAdvice"`
	} `json:"prescription"`
}

// EncodeRequest renders the wire body. The transcript is always an array, never null.
func EncodeRequest(req Request) ([]byte, error) {
	return json.Marshal(wireRequest{
		AppointmentID: req.AppointmentID,
		PatientID:     req.PatientID,
		Transcript:    models.CloneTranscript(req.Transcript),
	})
}

// DecodeResponse parses and checks a gateway response body. A leading/trailing markdown code
// fence is tolerated since LLM backends like to add one.
func DecodeResponse(data []byte) (*models.ConsultationSummary, error) {
	var w wireResponse
	if err := json.Unmarshal([]byte(stripFence(string(data))), &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if strings.TrimSpace(w.Summary) == "" {
		return nil, fmt.Errorf("%w: empty summary", ErrMalformedResponse)
	}
	for i, m := range w.Prescription.Medications {
		if strings.TrimSpace(m.Name) == "" {
			return nil, fmt.Errorf("%w: medication %d has no name", ErrMalformedResponse, i)
		}
	}

	return &models.ConsultationSummary{
		NarrativeSummary:    w.Summary,
		DetectedSymptoms:    models.UniqueOrdered(w.DetectedSymptoms),
		CandidateDiagnoses:  nonNil(w.Diagnoses),
		ProposedMedications: append([]models.Medication{}, w.Prescription.Medications...),
		AdditionalAdvice:    nonNil(w.Prescription.AdditionalAdvice),
	}, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:] // drop the language tag line
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func nonNil(v []string) []string {
	return append([]string{}, v...)
}
