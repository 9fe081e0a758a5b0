package transcript

import (
	"context"
	"encoding/json"

	"github.com/yoockh/medscribe/internal/models"
)

// Conn is one open streaming connection to a transcription source.
// ReadMessage blocks until a message arrives or the connection fails; Close must unblock it.
type Conn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

type wireEntry struct {
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// ParseEntry decodes one inbound message. ok is false for anything that is not a JSON object
// with a known speaker and a non-empty text.
func ParseEntry(data []byte) (entry models.TranscriptEntry, ok bool) {
	var w wireEntry
	if err := json.Unmarshal(data, &w); err != nil {
		return models.TranscriptEntry{}, false
	}
	entry = models.TranscriptEntry{
		Speaker:   models.Speaker(w.Speaker),
		Text:      w.Text,
		Timestamp: w.Timestamp,
	}
	if !entry.Valid() {
		return models.TranscriptEntry{}, false
	}
	return entry, true
}
