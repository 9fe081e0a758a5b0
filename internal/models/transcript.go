package models

import "strings"

type Speaker string

const (
	SpeakerDoctor  Speaker = "Doctor"
	SpeakerPatient Speaker = "Patient"
)

func (s Speaker) Valid() bool {
	return s == SpeakerDoctor || s == SpeakerPatient
}

// TranscriptEntry is one utterance. Timestamp is a display string only; entries are
// ordered by arrival.
type TranscriptEntry struct {
	Speaker   Speaker `json:"speaker"`
	Text      string  `json:"text"`
	Timestamp string  `json:"timestamp"`
}

func (e TranscriptEntry) Valid() bool {
	return e.Speaker.Valid() && strings.TrimSpace(e.Text) != ""
}

// CloneTranscript returns an independently owned copy. The result is never nil.
func CloneTranscript(entries []TranscriptEntry) []TranscriptEntry {
	out := make([]TranscriptEntry, len(entries))
	copy(out, entries)
	return out
}
