package consultation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yoockh/medscribe/internal/models"
	"github.com/yoockh/medscribe/internal/utils"
)

type Field string

const (
	FieldName      Field = "name"
	FieldDosage    Field = "dosage"
	FieldFrequency Field = "frequency"
	FieldDuration  Field = "duration"
)

func (f Field) Valid() bool {
	switch f {
	case FieldName, FieldDosage, FieldFrequency, FieldDuration:
		return true
	}
	return false
}

var (
	ErrDraftValidated  = errors.New("prescription already validated")
	ErrNoSummary       = errors.New("no summary available")
	ErrIndexOutOfRange = errors.New("medication index out of range")
)

// Draft is the doctor-editable copy of the proposed medications. The summary it came from
// is never modified. Validation is terminal.
type Draft struct {
	medications []models.Medication
	advice      []string
	validatedAt time.Time
}

func newDraft(s *models.ConsultationSummary) *Draft {
	return &Draft{
		medications: append([]models.Medication{}, s.ProposedMedications...),
		advice:      append([]string{}, s.AdditionalAdvice...),
	}
}

func (d *Draft) Validated() bool { return !d.validatedAt.IsZero() }

func (d *Draft) Medications() []models.Medication {
	return append([]models.Medication{}, d.medications...)
}

func (d *Draft) Update(index int, field Field, value string) error {
	if d.Validated() {
		return ErrDraftValidated
	}
	if index < 0 || index >= len(d.medications) {
		return ErrIndexOutOfRange
	}
	m := &d.medications[index]
	switch field {
	case FieldName:
		m.Name = value
	case FieldDosage:
		m.Dosage = value
	case FieldFrequency:
		m.Frequency = value
	case FieldDuration:
		m.Duration = value
	default:
		return fmt.Errorf("unknown medication field %q", field)
	}
	return nil
}

// Add appends a blank medication and returns its index.
func (d *Draft) Add() (int, error) {
	if d.Validated() {
		return 0, ErrDraftValidated
	}
	d.medications = append(d.medications, models.Medication{})
	return len(d.medications) - 1, nil
}

func (d *Draft) Remove(index int) error {
	if d.Validated() {
		return ErrDraftValidated
	}
	if index < 0 || index >= len(d.medications) {
		return ErrIndexOutOfRange
	}
	d.medications = append(d.medications[:index], d.medications[index+1:]...)
	return nil
}

func (d *Draft) Validate(at time.Time) error {
	if d.Validated() {
		return ErrDraftValidated
	}
	for i, m := range d.medications {
		if strings.TrimSpace(m.Name) == "" {
			return fmt.Errorf("medication %d has no name", i)
		}
	}
	d.validatedAt = at
	return nil
}

type DraftView struct {
	Medications      []models.Medication `json:"medications"`
	AdditionalAdvice []string            `json:"additional_advice"`
	AllergyConflicts []AllergyConflict   `json:"allergy_conflicts"`
	Validated        bool                `json:"validated"`
	ValidatedAt      *time.Time          `json:"validated_at,omitempty"`
}

// Status is a point-in-time view of a consultation.
type Status struct {
	ID            string                      `json:"id"`
	AppointmentID string                      `json:"appointment_id"`
	PatientID     string                      `json:"patient_id"`
	State         State                       `json:"state"`
	Connection    string                      `json:"connection"`
	Transcript    []models.TranscriptEntry    `json:"transcript"`
	Summary       *models.ConsultationSummary `json:"summary,omitempty"`
	Prescription  *DraftView                  `json:"prescription,omitempty"`
	Failure       string                      `json:"failure,omitempty"`
	StartedAt     *time.Time                  `json:"started_at,omitempty"`
	EndedAt       *time.Time                  `json:"ended_at,omitempty"`
}

func (l *Lifecycle) Status() Status {
	transcript := l.channel.Snapshot()
	connection := string(l.channel.State())

	l.mu.Lock()
	defer l.mu.Unlock()

	st := Status{
		ID:            l.id,
		AppointmentID: l.appointmentID,
		PatientID:     l.patientID,
		State:         l.state,
		Connection:    connection,
		Transcript:    transcript,
		Summary:       l.summary.Clone(),
		StartedAt:     timePtr(l.startedAt),
		EndedAt:       timePtr(l.endedAt),
	}
	if l.failure != nil {
		st.Failure = l.failure.Error()
	}
	if l.draft != nil {
		v := l.draftViewLocked()
		st.Prescription = &v
	}
	return st
}

func (l *Lifecycle) Prescription() (DraftView, error) {
	const op = "Lifecycle.Prescription"

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.requireDraftLocked(op); err != nil {
		return DraftView{}, err
	}
	return l.draftViewLocked(), nil
}

func (l *Lifecycle) UpdateMedication(index int, field Field, value string) (DraftView, error) {
	const op = "Lifecycle.UpdateMedication"

	if !field.Valid() {
		return DraftView{}, utils.E(utils.CodeInvalidArgument, op, "field must be one of name, dosage, frequency, duration", nil)
	}
	return l.editDraft(op, func(d *Draft) error { return d.Update(index, field, value) })
}

func (l *Lifecycle) AddMedication() (DraftView, error) {
	const op = "Lifecycle.AddMedication"
	return l.editDraft(op, func(d *Draft) error {
		_, err := d.Add()
		return err
	})
}

func (l *Lifecycle) RemoveMedication(index int) (DraftView, error) {
	const op = "Lifecycle.RemoveMedication"
	return l.editDraft(op, func(d *Draft) error { return d.Remove(index) })
}

func (l *Lifecycle) ValidatePrescription() (DraftView, error) {
	const op = "Lifecycle.ValidatePrescription"
	now := l.now().UTC()
	view, err := l.editDraft(op, func(d *Draft) error { return d.Validate(now) })
	if err == nil {
		l.log.WithField("medications", len(view.Medications)).Info("prescription validated")
	}
	return view, err
}

func (l *Lifecycle) editDraft(op string, fn func(*Draft) error) (DraftView, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireDraftLocked(op); err != nil {
		return DraftView{}, err
	}
	if err := fn(l.draft); err != nil {
		switch {
		case errors.Is(err, ErrDraftValidated):
			return DraftView{}, utils.E(utils.CodeFailedPrecondition, op, "prescription already validated", err)
		case errors.Is(err, ErrIndexOutOfRange):
			return DraftView{}, utils.E(utils.CodeNotFound, op, "medication not found", err)
		default:
			return DraftView{}, utils.E(utils.CodeInvalidArgument, op, err.Error(), err)
		}
	}
	return l.draftViewLocked(), nil
}

func (l *Lifecycle) requireDraftLocked(op string) error {
	if l.state != Ended {
		return utils.E(utils.CodeFailedPrecondition, op,
			fmt.Sprintf("prescription is not available while %s", l.state), ErrInvalidTransition)
	}
	if l.draft == nil {
		return utils.E(utils.CodeFailedPrecondition, op, "summarization failed, no prescription to edit", ErrNoSummary)
	}
	return nil
}

func (l *Lifecycle) draftViewLocked() DraftView {
	meds := l.draft.Medications()
	return DraftView{
		Medications:      meds,
		AdditionalAdvice: append([]string{}, l.draft.advice...),
		AllergyConflicts: AllergyConflicts(meds, l.allergies),
		Validated:        l.draft.Validated(),
		ValidatedAt:      timePtr(l.draft.validatedAt),
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
