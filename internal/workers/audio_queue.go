package workers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yoockh/medscribe/internal/models"
)

const (
	DefaultAudioStream = "consultation:audio"
	DefaultAudioGroup  = "transcription-workers"
)

var ErrInvalidChunk = errors.New("invalid audio chunk")

// AudioChunk is one recorded slice of a consultation waiting for transcription.
type AudioChunk struct {
	ConsultationID string         `json:"consultation_id"`
	ChunkIndex     int64          `json:"chunk_index"`
	Speaker        models.Speaker `json:"speaker"`
	Language       string         `json:"language"`
	AudioBase64    string         `json:"audio_base64"`
	IsFinal        bool           `json:"is_final"`
}

func (c AudioChunk) Validate() error {
	switch {
	case c.ConsultationID == "":
		return errors.New("consultation_id is required")
	case c.ChunkIndex <= 0:
		return errors.New("chunk_index must be > 0")
	case !c.Speaker.Valid():
		return errors.New("speaker must be Doctor or Patient")
	case strings.TrimSpace(c.AudioBase64) == "":
		return errors.New("audio_base64 is required")
	}
	return nil
}

// AudioQueue appends chunks to the Redis stream read by TranscriptionWorkerPool.
type AudioQueue struct {
	Redis  *redis.Client
	Stream string
}

func NewAudioQueue(rdb *redis.Client) *AudioQueue {
	return &AudioQueue{Redis: rdb, Stream: DefaultAudioStream}
}

func (q *AudioQueue) Enqueue(ctx context.Context, chunk AudioChunk) (string, error) {
	if err := chunk.Validate(); err != nil {
		return "", errors.Join(ErrInvalidChunk, err)
	}

	return q.Redis.XAdd(ctx, &redis.XAddArgs{
		Stream: q.Stream,
		Values: map[string]any{
			"consultation_id": chunk.ConsultationID,
			"chunk_index":     strconv.FormatInt(chunk.ChunkIndex, 10),
			"speaker":         string(chunk.Speaker),
			"language":        chunk.Language,
			"audio_base64":    chunk.AudioBase64,
			"is_final":        strconv.FormatBool(chunk.IsFinal),
			"ts_unix":         strconv.FormatInt(time.Now().UTC().Unix(), 10),
		},
	}).Result()
}
