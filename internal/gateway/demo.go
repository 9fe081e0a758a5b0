package gateway

import (
	"context"
	"time"

	"github.com/yoockh/medscribe/internal/models"
)

// DemoSummarizer answers every request with the same canned summary after Delay.
// It stands in for the summarization API when none is configured.
type DemoSummarizer struct {
	Delay time.Duration
}

func (d DemoSummarizer) Summarize(ctx context.Context, req Request) (*models.ConsultationSummary, error) {
	if d.Delay > 0 {
		t := time.NewTimer(d.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return DemoSummary(), nil
}

func DemoSummary() *models.ConsultationSummary {
	return &models.ConsultationSummary{
		NarrativeSummary: "Patient présentant une douleur pharyngée depuis 3 jours avec fièvre à 38.5°C, " +
			"dysphagie et adénopathies cervicales sensibles. Tableau compatible avec une angine bactérienne.",
		DetectedSymptoms: []string{"Douleur gorge", "Fièvre 38.5°C", "Dysphagie", "Adénopathies"},
		CandidateDiagnoses: []string{
			"Angine bactérienne (streptocoque probable)",
			"Pharyngite aiguë",
			"Infection virale des VAS",
		},
		ProposedMedications: []models.Medication{
			{Name: "Amoxicilline", Dosage: "1g", Frequency: "3 fois par jour", Duration: "6 jours"},
			{Name: "Paracétamol", Dosage: "1000mg", Frequency: "Toutes les 6h si douleur", Duration: "5 jours"},
			{Name: "Hexaspray", Dosage: "2 pulvérisations", Frequency: "3 fois par jour", Duration: "5 jours"},
		},
		AdditionalAdvice: []string{
			"Repos vocal recommandé",
			"Hydratation abondante (1.5L/jour minimum)",
			"Éviter les aliments irritants",
			"Reconsulter si fièvre persiste au-delà de 48h",
		},
	}
}
