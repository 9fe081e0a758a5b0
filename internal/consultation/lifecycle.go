package consultation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/medscribe/internal/gateway"
	"github.com/yoockh/medscribe/internal/logger"
	"github.com/yoockh/medscribe/internal/models"
	"github.com/yoockh/medscribe/internal/transcript"
	"github.com/yoockh/medscribe/internal/utils"
)

type State string

const (
	NotStarted  State = "not_started"
	Recording   State = "recording"
	Summarizing State = "summarizing"
	Ended       State = "ended"
)

const DefaultSummaryTimeout = 30 * time.Second

var ErrInvalidTransition = errors.New("invalid consultation transition")

// Channel is the part of transcript.Channel the lifecycle drives.
type Channel interface {
	Connect(ctx context.Context) error
	Disconnect()
	Freeze()
	Inject(entry models.TranscriptEntry) error
	Snapshot() []models.TranscriptEntry
	State() transcript.State
}

type Config struct {
	ID            string
	AppointmentID string
	PatientID     string
	// Allergies of the patient, checked against the proposed medications.
	Allergies []string

	Channel Channel
	Gateway gateway.Summarizer
	Timeout time.Duration
	Logger  *logrus.Logger
	Now     func() time.Time
}

// Lifecycle drives one consultation through NotStarted, Recording, Summarizing and Ended.
// Ended is terminal; a new consultation needs a new Lifecycle.
type Lifecycle struct {
	id            string
	appointmentID string
	patientID     string
	allergies     []string

	channel Channel
	gateway gateway.Summarizer
	timeout time.Duration
	log     *logrus.Entry
	now     func() time.Time

	mu        sync.Mutex
	state     State
	starting  bool
	pending   []State
	startedAt time.Time
	endedAt   time.Time
	summary   *models.ConsultationSummary
	failure   error
	draft     *Draft
	done      chan struct{}

	listenersMu sync.Mutex
	nextID      uint64
	listeners   map[uint64]func(State)
	notifyMu    sync.Mutex
}

func New(cfg Config) (*Lifecycle, error) {
	const op = "consultation.New"

	if cfg.ID == "" || cfg.AppointmentID == "" || cfg.PatientID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "id, appointment_id and patient_id are required", nil)
	}
	if cfg.Channel == nil || cfg.Gateway == nil {
		return nil, utils.E(utils.CodeInternal, op, "channel and gateway must be set", nil)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSummaryTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Lifecycle{
		id:            cfg.ID,
		appointmentID: cfg.AppointmentID,
		patientID:     cfg.PatientID,
		allergies:     append([]string{}, cfg.Allergies...),
		channel:       cfg.Channel,
		gateway:       cfg.Gateway,
		timeout:       cfg.Timeout,
		now:           cfg.Now,
		log: cfg.Logger.WithFields(logrus.Fields{
			"consultation_id": cfg.ID,
			"appointment_id":  cfg.AppointmentID,
		}),
		state:     NotStarted,
		done:      make(chan struct{}),
		listeners: map[uint64]func(State){},
	}, nil
}

func (l *Lifecycle) ID() string            { return l.id }
func (l *Lifecycle) AppointmentID() string { return l.appointmentID }
func (l *Lifecycle) PatientID() string     { return l.patientID }

func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Start opens the transcript channel and begins recording. A failed connect leaves the
// consultation in NotStarted so the caller can try again. The dial runs without holding the
// state lock; a concurrent Start fails while one is in progress.
func (l *Lifecycle) Start(ctx context.Context) error {
	const op = "Lifecycle.Start"

	l.mu.Lock()
	if l.state != NotStarted {
		state := l.state
		l.mu.Unlock()
		return invalidTransition(op, "start", state)
	}
	if l.starting {
		l.mu.Unlock()
		return utils.E(utils.CodeFailedPrecondition, op, "consultation is already starting", ErrInvalidTransition)
	}
	l.starting = true
	l.mu.Unlock()

	err := l.channel.Connect(ctx)

	l.mu.Lock()
	l.starting = false
	if err != nil {
		l.mu.Unlock()
		return utils.E(utils.CodeUnavailable, op, "transcript source unavailable", err)
	}
	l.state = Recording
	l.startedAt = l.now().UTC()
	l.pending = append(l.pending, Recording)
	l.mu.Unlock()

	l.log.Info("consultation recording")
	l.flush()
	return nil
}

// Reconnect re-opens a transcript channel that dropped while recording. An End that lands
// during the dial wins; the channel refuses a connect begun before its disconnect.
func (l *Lifecycle) Reconnect(ctx context.Context) error {
	const op = "Lifecycle.Reconnect"

	if state := l.State(); state != Recording {
		return invalidTransition(op, "reconnect", state)
	}
	if err := l.channel.Connect(ctx); err != nil {
		return utils.E(utils.CodeUnavailable, op, "transcript source unavailable", err)
	}
	return nil
}

// End stops recording and issues the one summarization request. It returns as soon as the
// request is in flight; use Done or Wait for the outcome.
func (l *Lifecycle) End(ctx context.Context) error {
	const op = "Lifecycle.End"

	l.mu.Lock()
	if l.state != Recording {
		state := l.state
		l.mu.Unlock()
		return invalidTransition(op, "end", state)
	}
	l.state = Summarizing
	l.pending = append(l.pending, Summarizing)
	l.mu.Unlock()

	// the channel is frozen and closed before the gateway sees the transcript; freezing first
	// makes a Reconnect racing this End fail
	l.channel.Freeze()
	l.channel.Disconnect()
	snapshot := l.channel.Snapshot()

	l.log.WithField("entries", len(snapshot)).Info("consultation summarizing")
	l.flush()

	go l.summarize(snapshot)
	return nil
}

// Inject appends an utterance while recording.
func (l *Lifecycle) Inject(entry models.TranscriptEntry) error {
	const op = "Lifecycle.Inject"

	if !entry.Valid() {
		return utils.E(utils.CodeInvalidArgument, op, "speaker must be Doctor or Patient and text must not be empty", transcript.ErrMalformedEntry)
	}

	l.mu.Lock()
	state := l.state
	l.mu.Unlock()
	if state != Recording {
		return invalidTransition(op, "inject", state)
	}

	if err := l.channel.Inject(entry); err != nil {
		if errors.Is(err, transcript.ErrChannelFrozen) {
			return utils.E(utils.CodeFailedPrecondition, op, "transcript is frozen", err)
		}
		return utils.E(utils.CodeInvalidArgument, op, "entry rejected", err)
	}
	return nil
}

// Done is closed once the consultation reaches Ended.
func (l *Lifecycle) Done() <-chan struct{} { return l.done }

func (l *Lifecycle) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Lifecycle) Transcript() []models.TranscriptEntry {
	return l.channel.Snapshot()
}

// Summary is the gateway output exactly as received; nil until Ended, and nil after a failure.
func (l *Lifecycle) Summary() *models.ConsultationSummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.summary.Clone()
}

// Failure is the failure marker set when summarization did not produce a summary.
func (l *Lifecycle) Failure() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failure
}

// OnTransition registers fn for every state change. Calls are serialized and in order.
func (l *Lifecycle) OnTransition(fn func(State)) (unsubscribe func()) {
	l.listenersMu.Lock()
	l.nextID++
	id := l.nextID
	l.listeners[id] = fn
	l.listenersMu.Unlock()

	return func() {
		l.listenersMu.Lock()
		delete(l.listeners, id)
		l.listenersMu.Unlock()
	}
}

func (l *Lifecycle) summarize(snapshot []models.TranscriptEntry) {
	const op = "Lifecycle.summarize"

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	req := gateway.Request{
		AppointmentID: l.appointmentID,
		PatientID:     l.patientID,
		Transcript:    snapshot,
	}

	start := time.Now()
	summary, err := l.callGateway(ctx, req)
	elapsed := time.Since(start)

	var failure error
	switch {
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		failure = utils.E(utils.CodeTimeout, op, "summarization timed out", err)
	case err != nil:
		failure = utils.E(utils.CodeUnavailable, op, "summarization failed", err)
	case summary == nil:
		failure = utils.E(utils.CodeUnavailable, op, "summarization failed", gateway.ErrMalformedResponse)
	}

	l.mu.Lock()
	l.endedAt = l.now().UTC()
	if failure != nil {
		l.failure = failure
	} else {
		l.summary = summary.Clone()
		l.draft = newDraft(summary)
	}
	l.state = Ended
	l.pending = append(l.pending, Ended)
	close(l.done)
	l.mu.Unlock()

	entry := l.log.WithField("processing_ms", elapsed.Milliseconds())
	if failure != nil {
		entry.WithError(failure).Error("consultation ended without summary")
	} else {
		entry.Info("consultation ended")
	}
	l.flush()
}

// callGateway bounds the call by ctx even when the summarizer ignores it; a late result is
// discarded.
func (l *Lifecycle) callGateway(ctx context.Context, req gateway.Request) (*models.ConsultationSummary, error) {
	type result struct {
		summary *models.ConsultationSummary
		err     error
	}
	out := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				out <- result{err: fmt.Errorf("summarizer panic: %v", r)}
			}
		}()
		s, err := l.gateway.Summarize(ctx, req)
		out <- result{summary: s, err: err}
	}()

	select {
	case r := <-out:
		return r.summary, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// flush delivers queued transitions in the order they were made. Transitions are queued under
// mu together with the state change, so whichever caller flushes first delivers all of them.
func (l *Lifecycle) flush() {
	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()

	for {
		l.mu.Lock()
		if len(l.pending) == 0 {
			l.mu.Unlock()
			return
		}
		s := l.pending[0]
		l.pending = l.pending[1:]
		l.mu.Unlock()

		l.listenersMu.Lock()
		fns := make([]func(State), 0, len(l.listeners))
		for _, fn := range l.listeners {
			fns = append(fns, fn)
		}
		l.listenersMu.Unlock()

		for _, fn := range fns {
			fn(s)
		}
	}
}

func invalidTransition(op, action string, from State) error {
	return utils.E(utils.CodeFailedPrecondition, op,
		fmt.Sprintf("cannot %s a consultation that is %s", action, from), ErrInvalidTransition)
}
