package models

import "strings"

type Medication struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage"`
	Frequency string `json:"frequency"`
	Duration  string `json:"duration"`
}

// ConsultationSummary is produced once per consultation by the summarization gateway.
// CandidateDiagnoses[0] is the leading hypothesis.
type ConsultationSummary struct {
	NarrativeSummary    string       `json:"narrative_summary"`
	DetectedSymptoms    []string     `json:"detected_symptoms"`
	CandidateDiagnoses  []string     `json:"candidate_diagnoses"`
	ProposedMedications []Medication `json:"proposed_medications"`
	AdditionalAdvice    []string     `json:"additional_advice"`
}

func (s *ConsultationSummary) Clone() *ConsultationSummary {
	if s == nil {
		return nil
	}
	out := &ConsultationSummary{
		NarrativeSummary:    s.NarrativeSummary,
		DetectedSymptoms:    append([]string{}, s.DetectedSymptoms...),
		CandidateDiagnoses:  append([]string{}, s.CandidateDiagnoses...),
		ProposedMedications: append([]Medication{}, s.ProposedMedications...),
		AdditionalAdvice:    append([]string{}, s.AdditionalAdvice...),
	}
	return out
}

// UniqueOrdered drops blank and repeated values, keeping first-occurrence order.
func UniqueOrdered(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
