package workers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"hash/fnv"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/medscribe/internal/models"
	"github.com/yoockh/medscribe/internal/providers/stt"
	"github.com/yoockh/medscribe/internal/transcript"
)

// TranscriptionWorkerPool reads audio chunks from a Redis stream, transcribes them and
// publishes each utterance on the consultation's transcript topic.
//
// One reader feeds NumWorkers shards and every consultation is pinned to one shard, so its
// chunks are transcribed and published in stream order while different consultations run in
// parallel. Run a single pool per stream; a second pool on the same group would split a
// consultation's chunks and lose that order.
type TranscriptionWorkerPool struct {
	Redis      *redis.Client
	STT        stt.Provider
	NumWorkers int

	Logger *logrus.Logger

	Stream         string
	Group          string
	ConsumerPrefix string
	Language       string
	Block          time.Duration
	Now            func() time.Time
}

func (p *TranscriptionWorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.STT == nil {
		return errors.New("TranscriptionWorkerPool missing dependency: Redis/STT must be set")
	}
	if p.Stream == "" {
		p.Stream = DefaultAudioStream
	}
	if p.Group == "" {
		p.Group = DefaultAudioGroup
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "stt"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 2
	}
	if p.Block <= 0 {
		p.Block = 5 * time.Second
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}
	if p.Now == nil {
		p.Now = time.Now
	}

	err := p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}

	shards := make([]chan redis.XMessage, p.NumWorkers)
	for i := range shards {
		shards[i] = make(chan redis.XMessage, shardBuffer)
		go p.runShard(ctx, shards[i])
	}
	go p.runConsumer(ctx, p.ConsumerPrefix+"-1", shards)

	p.Logger.WithFields(logrus.Fields{"stream": p.Stream, "workers": p.NumWorkers}).Info("transcription workers started")
	return nil
}

const shardBuffer = 16

// shardFor pins a consultation to one shard.
func shardFor(consultationID string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(consultationID))
	return int(h.Sum32() % uint32(n))
}

func (p *TranscriptionWorkerPool) runShard(ctx context.Context, msgs <-chan redis.XMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-msgs:
			p.handleMsg(ctx, msg)
			_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
		}
	}
}

func (p *TranscriptionWorkerPool) runConsumer(ctx context.Context, consumer string, shards []chan redis.XMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    10,
			Block:    p.Block,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			p.Logger.WithError(err).WithField("consumer", consumer).Warn("xreadgroup failed")
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				id, _ := msg.Values["consultation_id"].(string)
				select {
				case shards[shardFor(id, len(shards))] <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (p *TranscriptionWorkerPool) handleMsg(ctx context.Context, msg redis.XMessage) {
	getStr := func(k string) string {
		v, ok := msg.Values[k]
		if !ok || v == nil {
			return ""
		}
		s, _ := v.(string)
		return s
	}

	consultationID := getStr("consultation_id")
	chunkIndex, _ := strconv.ParseInt(getStr("chunk_index"), 10, 64)
	speaker := models.Speaker(getStr("speaker"))

	log := p.Logger.WithFields(logrus.Fields{
		"redis_id":        msg.ID,
		"consultation_id": consultationID,
		"chunk_index":     chunkIndex,
	})

	if consultationID == "" || !speaker.Valid() {
		log.Warn("dropping audio chunk without consultation or speaker")
		return
	}
	if final, _ := strconv.ParseBool(getStr("is_final")); final {
		defer log.Info("audio stream finished")
	}

	raw := getStr("audio_base64")
	if i := strings.Index(raw, ","); i >= 0 {
		raw = raw[i+1:] // strip data:...;base64,
	}
	audio, err := base64.StdEncoding.DecodeString(raw)
	if err != nil || len(audio) == 0 {
		log.WithError(err).Warn("audio decode failed")
		return
	}

	language := getStr("language")
	if language == "" {
		language = p.Language
	}

	start := time.Now()
	text, conf, err := p.STT.Transcribe(ctx, audio, stt.NormalizeLanguage(language))
	if err != nil {
		log.WithError(err).Error("stt failed")
		return
	}
	if strings.TrimSpace(text) == "" {
		log.Debug("silent chunk")
		return
	}

	payload, err := json.Marshal(models.TranscriptEntry{
		Speaker:   speaker,
		Text:      text,
		Timestamp: p.Now().Format("15:04:05"),
	})
	if err != nil {
		log.WithError(err).Error("encode transcript entry")
		return
	}
	if err := p.Redis.Publish(ctx, transcript.RedisTopic(consultationID), payload).Err(); err != nil {
		log.WithError(err).Error("publish transcript entry failed")
		return
	}

	log.WithFields(logrus.Fields{
		"confidence":    conf,
		"processing_ms": time.Since(start).Milliseconds(),
	}).Debug("chunk transcribed")
}
