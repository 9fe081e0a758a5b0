package consultation

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/yoockh/medscribe/internal/models"
)

var ErrScriptExhausted = errors.New("simulation script exhausted")

// ScriptLine is one scripted utterance. Symptoms lists what the line reveals.
type ScriptLine struct {
	Speaker  models.Speaker
	Text     string
	Symptoms []string
}

// DefaultScript is a short sore-throat consultation used for demos.
func DefaultScript() []ScriptLine {
	return []ScriptLine{
		{Speaker: models.SpeakerPatient, Text: "Bonjour docteur, j'ai mal à la gorge depuis 3 jours.", Symptoms: []string{"Douleur gorge"}},
		{Speaker: models.SpeakerDoctor, Text: "Avez-vous de la fièvre ?"},
		{Speaker: models.SpeakerPatient, Text: "Oui, 38.5 hier soir.", Symptoms: []string{"Fièvre 38.5°C"}},
		{Speaker: models.SpeakerDoctor, Text: "Avez-vous du mal à avaler ?"},
		{Speaker: models.SpeakerPatient, Text: "Oui, ça me fait très mal quand j'avale.", Symptoms: []string{"Dysphagie"}},
		{Speaker: models.SpeakerDoctor, Text: "Je vais palper votre cou. Les ganglions sont sensibles ?"},
		{Speaker: models.SpeakerPatient, Text: "Oui, ça fait mal à cet endroit.", Symptoms: []string{"Adénopathies cervicales"}},
		{Speaker: models.SpeakerDoctor, Text: "D'accord, cela ressemble à une angine. Je vais vous prescrire un traitement."},
	}
}

type Progress struct {
	Step             int      `json:"step"`
	Total            int      `json:"total"`
	DetectedSymptoms []string `json:"detected_symptoms"`
	UrgencyScore     int      `json:"urgency_score"`
	Done             bool     `json:"done"`
}

// Simulator feeds a scripted conversation into a consultation, one exchange per Step.
type Simulator struct {
	mu       sync.Mutex
	script   []ScriptLine
	next     int
	symptoms []string
	now      func() time.Time
}

func NewSimulator(script []ScriptLine, now func() time.Time) *Simulator {
	if now == nil {
		now = time.Now
	}
	return &Simulator{script: script, now: now, symptoms: []string{}}
}

// Step injects the next line, plus the following line when it comes from the other speaker.
func (s *Simulator) Step(inject func(models.TranscriptEntry) error) ([]models.TranscriptEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= len(s.script) {
		return nil, ErrScriptExhausted
	}

	injected := []models.TranscriptEntry{}
	for n := 0; n < 2 && s.next < len(s.script); n++ {
		line := s.script[s.next]
		if n == 1 && line.Speaker == s.script[s.next-1].Speaker {
			break
		}
		entry := models.TranscriptEntry{
			Speaker:   line.Speaker,
			Text:      line.Text,
			Timestamp: s.now().Format("15:04:05"),
		}
		if err := inject(entry); err != nil {
			return injected, err
		}
		injected = append(injected, entry)
		s.symptoms = models.UniqueOrdered(append(s.symptoms, line.Symptoms...))
		s.next++
	}
	return injected, nil
}

func (s *Simulator) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Progress{
		Step:             s.next,
		Total:            len(s.script),
		DetectedSymptoms: append([]string{}, s.symptoms...),
		UrgencyScore:     urgency(s.next, len(s.script)),
		Done:             s.next >= len(s.script),
	}
}

// urgency rises from 1 to 5 as the script advances; 0 before the first line.
func urgency(step, total int) int {
	if step == 0 || total == 0 {
		return 0
	}
	score := int(math.Round(float64(step)/float64(total)*5)) + 1
	if score > 5 {
		score = 5
	}
	return score
}
