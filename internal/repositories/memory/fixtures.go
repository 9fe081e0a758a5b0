package memory

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/yoockh/medscribe/internal/models"
)

//go:embed fixtures/clinic.json
var clinicFixtures []byte

type Fixtures struct {
	Patients     []models.Patient     `json:"patients"`
	Appointments []models.Appointment `json:"appointments"`
}

// LoadFixtures parses a fixture document and checks that every appointment points at a
// known patient.
func LoadFixtures(data []byte) (*Fixtures, error) {
	var f Fixtures
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}

	patients := make(map[string]struct{}, len(f.Patients))
	for _, p := range f.Patients {
		if p.ID == "" {
			return nil, fmt.Errorf("patient without id")
		}
		patients[p.ID] = struct{}{}
	}
	for _, a := range f.Appointments {
		if a.ID == "" {
			return nil, fmt.Errorf("appointment without id")
		}
		if _, ok := patients[a.PatientID]; !ok {
			return nil, fmt.Errorf("appointment %s: unknown patient %q", a.ID, a.PatientID)
		}
	}
	return &f, nil
}

// DefaultFixtures is the clinic data compiled into the binary.
func DefaultFixtures() (*Fixtures, error) {
	return LoadFixtures(clinicFixtures)
}
