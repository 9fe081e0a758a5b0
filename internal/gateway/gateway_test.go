package gateway_test

import (
	"context"
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/yoockh/medscribe/internal/gateway"
	"github.com/yoockh/medscribe/internal/models"
)

const validResponse = `{
  "summary": "Sore throat for 3 days with fever.",
  "detectedSymptoms": ["Sore throat", "Fever", "Sore throat"],
  "diagnoses": ["Strep pharyngitis", "Viral pharyngitis"],
  "prescription": {
    "medications": [{"name": "Paracetamol", "dosage": "1g", "frequency": "every 6h", "duration": "5 days"}],
    "additionalAdvice": ["Rest"]
  }
}`

var _ = Describe("EncodeRequest", func() {
	It("uses the camelCase wire names", func() {
		body, err := gateway.EncodeRequest(gateway.Request{
			AppointmentID: "1",
			PatientID:     "p1",
			Transcript: []models.TranscriptEntry{
				{Speaker: models.SpeakerPatient, Text: "sore throat 3 days", Timestamp: "10:00"},
			},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(body).To(MatchJSON(`{
			"appointmentId": "1",
			"patientId": "p1",
			"transcript": [{"speaker": "Patient", "text": "sore throat 3 days", "timestamp": "10:00"}]
		}`))
	})

	It("sends an empty array for an empty transcript", func() {
		body, err := gateway.EncodeRequest(gateway.Request{AppointmentID: "1", PatientID: "p1"})
		Expect(err).NotTo(HaveOccurred())

		var raw map[string]json.RawMessage
		Expect(json.Unmarshal(body, &raw)).To(Succeed())
		Expect(string(raw["transcript"])).To(Equal("[]"))
	})
})

var _ = Describe("Request.Validate", func() {
	It("requires ids", func() {
		Expect(gateway.Request{PatientID: "p"}.Validate()).To(HaveOccurred())
		Expect(gateway.Request{AppointmentID: "a"}.Validate()).To(HaveOccurred())
	})

	It("rejects malformed entries", func() {
		req := gateway.Request{
			AppointmentID: "a",
			PatientID:     "p",
			Transcript:    []models.TranscriptEntry{{Speaker: "Nurse", Text: "hi"}},
		}
		Expect(req.Validate()).To(MatchError(ContainSubstring("entry 0")))
	})
})

var _ = Describe("DecodeResponse", func() {
	It("maps the wire response onto a summary", func() {
		s, err := gateway.DecodeResponse([]byte(validResponse))
		Expect(err).NotTo(HaveOccurred())
		Expect(s.NarrativeSummary).To(Equal("Sore throat for 3 days with fever."))
		Expect(s.DetectedSymptoms).To(Equal([]string{"Sore throat", "Fever"}))
		Expect(s.CandidateDiagnoses[0]).To(Equal("Strep pharyngitis"))
		Expect(s.ProposedMedications).To(ConsistOf(models.Medication{
			Name: "Paracetamol", Dosage: "1g", Frequency: "every 6h", Duration: "5 days",
		}))
		Expect(s.AdditionalAdvice).To(Equal([]string{"Rest"}))
	})

	It("accepts a fenced body", func() {
		s, err := gateway.DecodeResponse([]byte("```json\n" + validResponse + "\n```"))
		Expect(err).NotTo(HaveOccurred())
		Expect(s.CandidateDiagnoses).To(HaveLen(2))
	})

	It("returns empty lists instead of nil", func() {
		s, err := gateway.DecodeResponse([]byte(`{"summary":"nothing notable"}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(s.CandidateDiagnoses).NotTo(BeNil())
		Expect(s.ProposedMedications).NotTo(BeNil())
		Expect(s.AdditionalAdvice).NotTo(BeNil())
	})

	DescribeTable("rejects malformed bodies",
		func(raw string) {
			_, err := gateway.DecodeResponse([]byte(raw))
			Expect(err).To(MatchError(gateway.ErrMalformedResponse))
		},
		Entry("not json", `<html>502</html>`),
		Entry("empty summary", `{"summary":"  "}`),
		Entry("wrong types", `{"summary":"x","diagnoses":"flu"}`),
		Entry("nameless medication", `{"summary":"x","prescription":{"medications":[{"dosage":"1g"}]}}`),
	)
})

var _ = Describe("BuildPrompt", func() {
	It("lists utterances in order", func() {
		prompt := gateway.BuildPrompt(gateway.Request{
			AppointmentID: "1",
			PatientID:     "p1",
			Transcript: []models.TranscriptEntry{
				{Speaker: models.SpeakerPatient, Text: "sore throat 3 days"},
				{Speaker: models.SpeakerDoctor, Text: "any fever?", Timestamp: "10:01"},
			},
		})
		Expect(prompt).To(ContainSubstring("Patient: sore throat 3 days\n[10:01] Doctor: any fever?\n"))
	})

	It("marks an empty transcript", func() {
		Expect(gateway.BuildPrompt(gateway.Request{AppointmentID: "1", PatientID: "p1"})).
			To(ContainSubstring("(no utterances recorded)"))
	})
})

var _ = Describe("DemoSummarizer", func() {
	It("returns the canned summary", func() {
		s, err := gateway.DemoSummarizer{}.Summarize(context.Background(), gateway.Request{})
		Expect(err).NotTo(HaveOccurred())
		Expect(s).To(Equal(gateway.DemoSummary()))
		Expect(s.ProposedMedications).To(HaveLen(3))
	})

	It("gives up when the context expires", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := gateway.DemoSummarizer{Delay: time.Minute}.Summarize(ctx, gateway.Request{})
		Expect(err).To(MatchError(context.DeadlineExceeded))
	})
})
