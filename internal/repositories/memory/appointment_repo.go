package memory

import (
	"context"
	"sort"

	"github.com/yoockh/medscribe/internal/models"
	"github.com/yoockh/medscribe/internal/utils"
)

type AppointmentRepository interface {
	List(ctx context.Context) ([]models.Appointment, error)
	ListByPatient(ctx context.Context, patientID string) ([]models.Appointment, error)
	GetByID(ctx context.Context, id string) (*models.Appointment, error)
}

type PatientRepository interface {
	GetByID(ctx context.Context, id string) (*models.Patient, error)
}

type appointmentRepo struct {
	rows []models.Appointment
}

func NewAppointmentRepository(f *Fixtures) AppointmentRepository {
	rows := append([]models.Appointment{}, f.Appointments...)
	// newest first
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Date != rows[j].Date {
			return rows[i].Date > rows[j].Date
		}
		return rows[i].Time > rows[j].Time
	})
	return &appointmentRepo{rows: rows}
}

func (r *appointmentRepo) List(ctx context.Context) ([]models.Appointment, error) {
	return append([]models.Appointment{}, r.rows...), nil
}

func (r *appointmentRepo) ListByPatient(ctx context.Context, patientID string) ([]models.Appointment, error) {
	out := []models.Appointment{}
	for _, a := range r.rows {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *appointmentRepo) GetByID(ctx context.Context, id string) (*models.Appointment, error) {
	for _, a := range r.rows {
		if a.ID == id {
			out := a
			return &out, nil
		}
	}
	return nil, utils.ErrNotFound
}

type patientRepo struct {
	byID map[string]models.Patient
}

func NewPatientRepository(f *Fixtures) PatientRepository {
	byID := make(map[string]models.Patient, len(f.Patients))
	for _, p := range f.Patients {
		byID[p.ID] = p
	}
	return &patientRepo{byID: byID}
}

func (r *patientRepo) GetByID(ctx context.Context, id string) (*models.Patient, error) {
	p, ok := r.byID[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	p.Allergies = append([]string{}, p.Allergies...)
	p.Antecedents = append([]string{}, p.Antecedents...)
	return &p, nil
}
