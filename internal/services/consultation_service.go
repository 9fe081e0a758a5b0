package services

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/medscribe/internal/cache"
	"github.com/yoockh/medscribe/internal/consultation"
	"github.com/yoockh/medscribe/internal/gateway"
	"github.com/yoockh/medscribe/internal/logger"
	"github.com/yoockh/medscribe/internal/models"
	"github.com/yoockh/medscribe/internal/report"
	"github.com/yoockh/medscribe/internal/repositories/memory"
	"github.com/yoockh/medscribe/internal/storage"
	"github.com/yoockh/medscribe/internal/transcript"
	"github.com/yoockh/medscribe/internal/utils"
)

const defaultArchiveTTL = 24 * time.Hour

type EventType string

const (
	EventEntry      EventType = "entry"
	EventStatus     EventType = "status"
	EventConnection EventType = "connection"
)

// Event is pushed to live feed subscribers.
type Event struct {
	Type       EventType                   `json:"type"`
	Entry      *models.TranscriptEntry     `json:"entry,omitempty"`
	State      consultation.State          `json:"state,omitempty"`
	Connection transcript.State            `json:"connection,omitempty"`
	Summary    *models.ConsultationSummary `json:"summary,omitempty"`
	Failure    string                      `json:"failure,omitempty"`
}

type SimulationStep struct {
	Injected []models.TranscriptEntry `json:"injected"`
	Progress consultation.Progress    `json:"progress"`
}

type ConsultationService interface {
	Create(ctx context.Context, appointmentID string) (consultation.Status, error)
	Get(ctx context.Context, id string) (consultation.Status, error)
	Start(ctx context.Context, id string) (consultation.Status, error)
	End(ctx context.Context, id string) (consultation.Status, error)
	Wait(ctx context.Context, id string) (consultation.Status, error)
	Reconnect(ctx context.Context, id string) (consultation.Status, error)
	Inject(ctx context.Context, id string, entry models.TranscriptEntry) (consultation.Status, error)
	Simulate(ctx context.Context, id string) (SimulationStep, error)

	UpdateMedication(ctx context.Context, id string, index int, field consultation.Field, value string) (consultation.DraftView, error)
	AddMedication(ctx context.Context, id string) (consultation.DraftView, error)
	RemoveMedication(ctx context.Context, id string, index int) (consultation.DraftView, error)
	ValidatePrescription(ctx context.Context, id string) (consultation.DraftView, error)
	PrescriptionPDF(ctx context.Context, id string) ([]byte, error)

	Subscribe(ctx context.Context, id string, fn func(Event)) (initial consultation.Status, unsubscribe func(), err error)
	Shutdown()
}

type ConsultationDeps struct {
	Appointments memory.AppointmentRepository
	Patients     memory.PatientRepository

	Source         transcript.Source
	Summarizer     gateway.Summarizer
	SummaryTimeout time.Duration

	// Archive copies every ended consultation so a restarted service can still read it. Live
	// consultations stay in memory for the life of the process. Optional.
	Archive    cache.Cache
	ArchiveTTL time.Duration

	Renderer report.Renderer
	// Prescriptions files a PDF of every validated prescription. Optional; needs Renderer.
	Prescriptions storage.Uploader

	Script []consultation.ScriptLine
	Logger *logrus.Logger
}

type liveConsultation struct {
	lc          *consultation.Lifecycle
	channel     *transcript.Channel
	sim         *consultation.Simulator
	appointment models.Appointment
	patient     models.Patient
}

type consultationService struct {
	deps ConsultationDeps
	log  *logrus.Logger

	mu            sync.Mutex
	byID          map[string]*liveConsultation
	byAppointment map[string]string
}

func NewConsultationService(d ConsultationDeps) ConsultationService {
	if d.Logger == nil {
		d.Logger = logger.Discard()
	}
	if d.ArchiveTTL <= 0 {
		d.ArchiveTTL = defaultArchiveTTL
	}
	if d.Script == nil {
		d.Script = consultation.DefaultScript()
	}
	return &consultationService{
		deps:          d,
		log:           d.Logger,
		byID:          map[string]*liveConsultation{},
		byAppointment: map[string]string{},
	}
}

func (s *consultationService) Create(ctx context.Context, appointmentID string) (consultation.Status, error) {
	const op = "ConsultationService.Create"

	if appointmentID == "" {
		return consultation.Status{}, utils.E(utils.CodeInvalidArgument, op, "appointment_id is required", nil)
	}

	apt, err := s.deps.Appointments.GetByID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return consultation.Status{}, utils.E(utils.CodeNotFound, op, "appointment not found", err)
		}
		return consultation.Status{}, utils.E(utils.CodeInternal, op, "failed to get appointment", err)
	}
	if apt.Status == models.AppointmentCancelled {
		return consultation.Status{}, utils.E(utils.CodeFailedPrecondition, op, "appointment is cancelled", nil)
	}

	patient, err := s.deps.Patients.GetByID(ctx, apt.PatientID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return consultation.Status{}, utils.E(utils.CodeNotFound, op, "patient not found", err)
		}
		return consultation.Status{}, utils.E(utils.CodeInternal, op, "failed to get patient", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prevID, ok := s.byAppointment[appointmentID]; ok {
		if prev := s.byID[prevID]; prev != nil && prev.lc.State() != consultation.Ended {
			return consultation.Status{}, utils.E(utils.CodeConflict, op, "appointment already has a consultation in progress", nil)
		}
	}

	id := uuid.NewString()
	log := s.log.WithFields(logrus.Fields{"consultation_id": id, "appointment_id": appointmentID})

	endpoint, dialer := s.deps.Source.Resolve(id)
	ch := transcript.NewChannel(endpoint, dialer, log)

	lc, err := consultation.New(consultation.Config{
		ID:            id,
		AppointmentID: apt.ID,
		PatientID:     patient.ID,
		Allergies:     patient.Allergies,
		Channel:       ch,
		Gateway:       s.deps.Summarizer,
		Timeout:       s.deps.SummaryTimeout,
		Logger:        s.log,
	})
	if err != nil {
		return consultation.Status{}, err
	}
	lc.OnTransition(func(st consultation.State) {
		if st == consultation.Ended {
			s.archive(lc)
		}
	})

	s.byID[id] = &liveConsultation{
		lc:          lc,
		channel:     ch,
		sim:         consultation.NewSimulator(s.deps.Script, nil),
		appointment: *apt,
		patient:     *patient,
	}
	s.byAppointment[appointmentID] = id

	log.Info("consultation created")
	return lc.Status(), nil
}

func (s *consultationService) Get(ctx context.Context, id string) (consultation.Status, error) {
	const op = "ConsultationService.Get"

	if live, ok := s.lookup(id); ok {
		return live.lc.Status(), nil
	}

	if s.deps.Archive != nil && id != "" {
		var st consultation.Status
		hit, err := s.deps.Archive.GetJSON(ctx, cache.ConsultationKey(id), &st)
		if err != nil {
			s.log.WithError(err).WithField("consultation_id", id).Warn("archive lookup failed")
		}
		if hit {
			return st, nil
		}
	}
	return consultation.Status{}, utils.E(utils.CodeNotFound, op, "consultation not found", utils.ErrNotFound)
}

func (s *consultationService) Start(ctx context.Context, id string) (consultation.Status, error) {
	const op = "ConsultationService.Start"

	live, err := s.get(op, id)
	if err != nil {
		return consultation.Status{}, err
	}
	if err := live.lc.Start(ctx); err != nil {
		return consultation.Status{}, err
	}
	return live.lc.Status(), nil
}

// End returns once summarization is in flight; the status is Summarizing.
func (s *consultationService) End(ctx context.Context, id string) (consultation.Status, error) {
	const op = "ConsultationService.End"

	live, err := s.get(op, id)
	if err != nil {
		return consultation.Status{}, err
	}
	if err := live.lc.End(ctx); err != nil {
		return consultation.Status{}, err
	}
	return live.lc.Status(), nil
}

func (s *consultationService) Wait(ctx context.Context, id string) (consultation.Status, error) {
	const op = "ConsultationService.Wait"

	live, err := s.get(op, id)
	if err != nil {
		return consultation.Status{}, err
	}
	if err := live.lc.Wait(ctx); err != nil {
		return consultation.Status{}, utils.E(utils.CodeTimeout, op, "consultation still summarizing", err)
	}
	return live.lc.Status(), nil
}

func (s *consultationService) Reconnect(ctx context.Context, id string) (consultation.Status, error) {
	const op = "ConsultationService.Reconnect"

	live, err := s.get(op, id)
	if err != nil {
		return consultation.Status{}, err
	}
	if err := live.lc.Reconnect(ctx); err != nil {
		return consultation.Status{}, err
	}
	return live.lc.Status(), nil
}

func (s *consultationService) Inject(ctx context.Context, id string, entry models.TranscriptEntry) (consultation.Status, error) {
	const op = "ConsultationService.Inject"

	live, err := s.get(op, id)
	if err != nil {
		return consultation.Status{}, err
	}
	if err := live.lc.Inject(entry); err != nil {
		return consultation.Status{}, err
	}
	return live.lc.Status(), nil
}

func (s *consultationService) Simulate(ctx context.Context, id string) (SimulationStep, error) {
	const op = "ConsultationService.Simulate"

	live, err := s.get(op, id)
	if err != nil {
		return SimulationStep{}, err
	}
	injected, err := live.sim.Step(live.lc.Inject)
	if err != nil {
		if errors.Is(err, consultation.ErrScriptExhausted) {
			return SimulationStep{}, utils.E(utils.CodeFailedPrecondition, op, "simulation script finished", err)
		}
		return SimulationStep{}, err
	}
	return SimulationStep{Injected: injected, Progress: live.sim.Progress()}, nil
}

func (s *consultationService) UpdateMedication(ctx context.Context, id string, index int, field consultation.Field, value string) (consultation.DraftView, error) {
	const op = "ConsultationService.UpdateMedication"

	live, err := s.get(op, id)
	if err != nil {
		return consultation.DraftView{}, err
	}
	return live.lc.UpdateMedication(index, field, value)
}

func (s *consultationService) AddMedication(ctx context.Context, id string) (consultation.DraftView, error) {
	const op = "ConsultationService.AddMedication"

	live, err := s.get(op, id)
	if err != nil {
		return consultation.DraftView{}, err
	}
	return live.lc.AddMedication()
}

func (s *consultationService) RemoveMedication(ctx context.Context, id string, index int) (consultation.DraftView, error) {
	const op = "ConsultationService.RemoveMedication"

	live, err := s.get(op, id)
	if err != nil {
		return consultation.DraftView{}, err
	}
	return live.lc.RemoveMedication(index)
}

func (s *consultationService) ValidatePrescription(ctx context.Context, id string) (consultation.DraftView, error) {
	const op = "ConsultationService.ValidatePrescription"

	live, err := s.get(op, id)
	if err != nil {
		return consultation.DraftView{}, err
	}
	view, err := live.lc.ValidatePrescription()
	if err != nil {
		return consultation.DraftView{}, err
	}
	s.archive(live.lc)
	s.file(ctx, id, live, view)
	return view, nil
}

func (s *consultationService) PrescriptionPDF(ctx context.Context, id string) ([]byte, error) {
	const op = "ConsultationService.PrescriptionPDF"

	if s.deps.Renderer == nil {
		return nil, utils.E(utils.CodeUnavailable, op, "pdf rendering is not configured", nil)
	}
	live, err := s.get(op, id)
	if err != nil {
		return nil, err
	}
	view, err := live.lc.Prescription()
	if err != nil {
		return nil, err
	}
	if !view.Validated {
		return nil, utils.E(utils.CodeFailedPrecondition, op, "prescription is not validated", nil)
	}

	out, err := s.deps.Renderer.Render(prescription(id, live, view))
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to render prescription", err)
	}
	return out, nil
}

func prescription(id string, live *liveConsultation, view consultation.DraftView) report.Prescription {
	p := report.Prescription{
		ConsultationID: id,
		Patient:        live.patient,
		Appointment:    live.appointment,
		Medications:    view.Medications,
		Advice:         view.AdditionalAdvice,
	}
	if view.ValidatedAt != nil {
		p.ValidatedAt = *view.ValidatedAt
	}
	if sum := live.lc.Summary(); sum != nil {
		p.Diagnoses = sum.CandidateDiagnoses
	}
	return p
}

// file renders and stores a validated prescription. Failures are logged; the validation stands.
func (s *consultationService) file(ctx context.Context, id string, live *liveConsultation, view consultation.DraftView) {
	if s.deps.Prescriptions == nil || s.deps.Renderer == nil {
		return
	}
	log := s.log.WithField("consultation_id", id)

	pdf, err := s.deps.Renderer.Render(prescription(id, live, view))
	if err != nil {
		log.WithError(err).Warn("render prescription for filing failed")
		return
	}
	stored, err := s.deps.Prescriptions.Upload(ctx, storage.PrescriptionObject(live.patient.ID, id), "application/pdf", bytes.NewReader(pdf))
	if err != nil {
		log.WithError(err).Warn("file prescription failed")
		return
	}
	log.WithField("object", stored).Info("prescription filed")
}

// Subscribe forwards transcript entries, connection changes and lifecycle transitions to fn and
// returns the status they start from. Every transcript entry is in initial.Transcript or passed
// to fn, never both. fn runs on the publishing goroutine and must not block.
func (s *consultationService) Subscribe(ctx context.Context, id string, fn func(Event)) (consultation.Status, func(), error) {
	const op = "ConsultationService.Subscribe"

	live, err := s.get(op, id)
	if err != nil {
		return consultation.Status{}, nil, err
	}

	offState := live.lc.OnTransition(func(st consultation.State) {
		ev := Event{Type: EventStatus, State: st}
		if st == consultation.Ended {
			ev.Summary = live.lc.Summary()
			if f := live.lc.Failure(); f != nil {
				ev.Failure = f.Error()
			}
		}
		fn(ev)
	})
	offConn := live.channel.OnStateChange(func(st transcript.State) {
		fn(Event{Type: EventConnection, Connection: st})
	})
	entries, offEntry := live.channel.Follow(func(e models.TranscriptEntry) {
		fn(Event{Type: EventEntry, Entry: &e})
	})

	initial := live.lc.Status()
	initial.Transcript = entries

	return initial, func() {
		offEntry()
		offConn()
		offState()
	}, nil
}

// Shutdown closes every open transcript connection.
func (s *consultationService) Shutdown() {
	s.mu.Lock()
	lives := make([]*liveConsultation, 0, len(s.byID))
	for _, l := range s.byID {
		lives = append(lives, l)
	}
	s.mu.Unlock()

	for _, l := range lives {
		l.channel.Disconnect()
	}
}

func (s *consultationService) lookup(id string) (*liveConsultation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.byID[id]
	return l, ok
}

func (s *consultationService) get(op, id string) (*liveConsultation, error) {
	if id == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "consultation id is required", nil)
	}
	l, ok := s.lookup(id)
	if !ok {
		return nil, utils.E(utils.CodeNotFound, op, "consultation not found", utils.ErrNotFound)
	}
	return l, nil
}

func (s *consultationService) archive(lc *consultation.Lifecycle) {
	if s.deps.Archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.deps.Archive.SetJSON(ctx, cache.ConsultationKey(lc.ID()), lc.Status(), s.deps.ArchiveTTL); err != nil {
		s.log.WithError(err).WithField("consultation_id", lc.ID()).Warn("archive consultation failed")
	}
}
