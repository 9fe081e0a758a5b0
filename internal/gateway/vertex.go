package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	vertexgenai "cloud.google.com/go/vertexai/genai"

	"github.com/yoockh/medscribe/internal/models"
)

const summarySystemPrompt = `You are a clinical documentation assistant. You receive the transcript of a
consultation between a doctor and a patient. Reply with a single JSON object and nothing else:
{"summary": string, "detectedSymptoms": [string], "diagnoses": [string],
 "prescription": {"medications": [{"name": string, "dosage": string, "frequency": string, "duration": string}],
                  "additionalAdvice": [string]}}
List diagnoses from most to least likely. Keep the language of the transcript.`

// VertexSummarizer asks a Gemini model on Vertex AI for the summary.
type VertexSummarizer struct {
	client *vertexgenai.Client
	model  *vertexgenai.GenerativeModel
}

func NewVertexSummarizer(ctx context.Context, projectID, location, modelName string) (*VertexSummarizer, error) {
	c, err := vertexgenai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, err
	}

	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	m := c.GenerativeModel(modelName)
	m.SetTemperature(0.2)
	m.ResponseMIMEType = "application/json"
	m.SystemInstruction = &vertexgenai.Content{
		Parts: []vertexgenai.Part{vertexgenai.Text(summarySystemPrompt)},
	}
	return &VertexSummarizer{client: c, model: m}, nil
}

func (v *VertexSummarizer) Close() error { return v.client.Close() }

func (v *VertexSummarizer) Summarize(ctx context.Context, req Request) (*models.ConsultationSummary, error) {
	resp, err := v.model.GenerateContent(ctx, vertexgenai.Text(BuildPrompt(req)))
	if err != nil {
		return nil, fmt.Errorf("vertex generate: %w", err)
	}

	var out strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(vertexgenai.Text); ok {
				out.WriteString(string(t))
			}
		}
		break // first candidate only
	}
	if out.Len() == 0 {
		return nil, errors.New("vertex generate: empty response")
	}

	return DecodeResponse([]byte(out.String()))
}

// BuildPrompt renders the transcript one utterance per line, in order.
func BuildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Appointment: %s\nPatient: %s\n\nTranscript:\n", req.AppointmentID, req.PatientID)
	if len(req.Transcript) == 0 {
		b.WriteString("(no utterances recorded)\n")
	}
	for _, e := range req.Transcript {
		if e.Timestamp != "" {
			fmt.Fprintf(&b, "[%s] ", e.Timestamp)
		}
		fmt.Fprintf(&b, "%s: %s\n", e.Speaker, strings.TrimSpace(e.Text))
	}
	return b.String()
}
