package services

import (
	"context"
	"errors"

	"github.com/yoockh/medscribe/internal/models"
	"github.com/yoockh/medscribe/internal/repositories/memory"
	"github.com/yoockh/medscribe/internal/utils"
)

// Viewer is who is asking. Patients only see their own records.
type Viewer struct {
	Role      string
	PatientID string
}

func (v Viewer) isPatient() bool { return v.Role == "patient" }

type PatientRecord struct {
	models.Patient
	Appointments []models.Appointment `json:"appointments"`
}

type AppointmentService interface {
	List(ctx context.Context, v Viewer) ([]models.Appointment, error)
	Get(ctx context.Context, v Viewer, id string) (*models.Appointment, error)
	GetPatient(ctx context.Context, v Viewer, id string) (*PatientRecord, error)
}

type appointmentService struct {
	appointments memory.AppointmentRepository
	patients     memory.PatientRepository
}

func NewAppointmentService(appointments memory.AppointmentRepository, patients memory.PatientRepository) AppointmentService {
	return &appointmentService{appointments: appointments, patients: patients}
}

func (s *appointmentService) List(ctx context.Context, v Viewer) ([]models.Appointment, error) {
	const op = "AppointmentService.List"

	var (
		rows []models.Appointment
		err  error
	)
	if v.isPatient() {
		if v.PatientID == "" {
			return nil, utils.E(utils.CodeForbidden, op, "token has no patient_id", nil)
		}
		rows, err = s.appointments.ListByPatient(ctx, v.PatientID)
	} else {
		rows, err = s.appointments.List(ctx)
	}
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list appointments", err)
	}
	return rows, nil
}

func (s *appointmentService) Get(ctx context.Context, v Viewer, id string) (*models.Appointment, error) {
	const op = "AppointmentService.Get"

	if id == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "appointment id is required", nil)
	}
	apt, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "appointment not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get appointment", err)
	}
	if v.isPatient() && apt.PatientID != v.PatientID {
		// same answer as a missing record
		return nil, utils.E(utils.CodeNotFound, op, "appointment not found", utils.ErrNotFound)
	}
	return apt, nil
}

func (s *appointmentService) GetPatient(ctx context.Context, v Viewer, id string) (*PatientRecord, error) {
	const op = "AppointmentService.GetPatient"

	if v.isPatient() && id != v.PatientID {
		return nil, utils.E(utils.CodeForbidden, op, "forbidden", nil)
	}
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "patient not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get patient", err)
	}
	apts, err := s.appointments.ListByPatient(ctx, id)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list appointments", err)
	}
	return &PatientRecord{Patient: *p, Appointments: apts}, nil
}
