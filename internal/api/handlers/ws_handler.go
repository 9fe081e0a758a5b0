package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/medscribe/internal/consultation"
	"github.com/yoockh/medscribe/internal/logger"
	"github.com/yoockh/medscribe/internal/models"
	"github.com/yoockh/medscribe/internal/services"
	"github.com/yoockh/medscribe/internal/utils"
	"github.com/yoockh/medscribe/internal/workers"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
	wsBuffer     = 64
)

// AudioEnqueuer hands recorded audio to the transcription workers.
type AudioEnqueuer interface {
	Enqueue(ctx context.Context, chunk workers.AudioChunk) (string, error)
}

type WSHandler struct {
	svc      services.ConsultationService
	audio    AudioEnqueuer
	log      *logrus.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler builds the live feed handler. audio may be nil when speech-to-text is off.
func NewWSHandler(svc services.ConsultationService, audio AudioEnqueuer, log *logrus.Logger) *WSHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &WSHandler{
		svc:   svc,
		audio: audio,
		log:   log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

type wsClientMsg struct {
	Type string `json:"type"`

	// audio_chunk
	ChunkIndex  int64  `json:"chunk_index"`
	Language    string `json:"language"`
	AudioBase64 string `json:"audio_base64"`
	IsFinal     bool   `json:"is_final"`

	// audio_chunk, inject
	Speaker   models.Speaker `json:"speaker"`
	Text      string         `json:"text"`
	Timestamp string         `json:"timestamp"`
}

type wsSnapshotMsg struct {
	Type         string              `json:"type"`
	Consultation consultation.Status `json:"consultation"`
}

type wsAckMsg struct {
	Type       string `json:"type"`
	ChunkIndex int64  `json:"chunk_index"`
}

type wsErrorMsg struct {
	Type    string     `json:"type"`
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.c.WriteMessage(websocket.TextMessage, b)
}

func (w *wsConn) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

func (w *wsConn) writeError(code utils.Code, msg string) error {
	return w.writeJSON(wsErrorMsg{Type: "error", Code: code, Message: msg})
}

func (w *wsConn) writeAppError(err error) error {
	return w.writeError(utils.CodeOf(err), utils.SafeMessage(err))
}

// ConsultationWS streams a consultation's transcript and state changes to the client. The
// first message is a snapshot; later messages are services.Event values, starting right after
// the snapshot's last transcript entry.
func (h *WSHandler) ConsultationWS(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}

	id := c.Param("id")
	log := h.log.WithField("consultation_id", id)
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// subscribe before the snapshot is taken so no entry falls between the two
	events := make(chan services.Event, wsBuffer)
	snapshot, unsubscribe, err := h.svc.Subscribe(ctx, id, func(ev services.Event) {
		select {
		case events <- ev:
		default:
			log.WithField("event", ev.Type).Warn("live feed slow, event dropped")
		}
	})
	if utils.IsCode(err, utils.CodeNotFound) {
		// archived consultations have nothing left to stream
		unsubscribe = func() {}
		snapshot, err = h.svc.Get(ctx, id)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}

	if err := wc.writeJSON(wsSnapshotMsg{Type: "snapshot", Consultation: snapshot}); err != nil {
		return
	}

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		h.readLoop(ctx, conn, wc, id)
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-readDone:
			return
		case <-ctx.Done():
			return
		case ev := <-events:
			if err := wc.writeJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := wc.ping(); err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, wc *wsConn, id string) {
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))

		var msg wsClientMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = wc.writeError(utils.CodeInvalidArgument, "invalid json")
			continue
		}

		switch msg.Type {
		case "ping":
			_ = wc.writeJSON(map[string]string{"type": "pong"})

		case "inject":
			ts := msg.Timestamp
			if ts == "" {
				ts = time.Now().Format("15:04:05")
			}
			// the entry itself comes back through the subscription
			if _, err := h.svc.Inject(ctx, id, models.TranscriptEntry{Speaker: msg.Speaker, Text: msg.Text, Timestamp: ts}); err != nil {
				_ = wc.writeAppError(err)
			}

		case "audio_chunk":
			if h.audio == nil {
				_ = wc.writeError(utils.CodeUnavailable, "speech-to-text is not enabled")
				continue
			}
			_, err := h.audio.Enqueue(ctx, workers.AudioChunk{
				ConsultationID: id,
				ChunkIndex:     msg.ChunkIndex,
				Speaker:        msg.Speaker,
				Language:       msg.Language,
				AudioBase64:    msg.AudioBase64,
				IsFinal:        msg.IsFinal,
			})
			switch {
			case errors.Is(err, workers.ErrInvalidChunk):
				_ = wc.writeError(utils.CodeInvalidArgument, err.Error())
			case err != nil:
				_ = wc.writeError(utils.CodeUnavailable, "failed to enqueue audio")
			default:
				_ = wc.writeJSON(wsAckMsg{Type: "ack", ChunkIndex: msg.ChunkIndex})
			}

		default:
			_ = wc.writeError(utils.CodeInvalidArgument, "unknown message type")
		}
	}
}
