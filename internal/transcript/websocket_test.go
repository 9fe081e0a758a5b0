package transcript_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/yoockh/medscribe/internal/models"
	"github.com/yoockh/medscribe/internal/transcript"
)

var _ = Describe("WebsocketDialer", func() {
	var (
		srv      *httptest.Server
		outgoing chan string
		hangup   chan struct{}
	)

	BeforeEach(func() {
		outgoing = make(chan string, 8)
		hangup = make(chan struct{})
		upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

		srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			for {
				select {
				case msg := <-outgoing:
					if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
						return
					}
				case <-hangup:
					return
				case <-r.Context().Done():
					return
				}
			}
		}))
	})

	AfterEach(func() {
		srv.Close()
	})

	wsURL := func() string { return "ws" + strings.TrimPrefix(srv.URL, "http") }

	It("streams entries from a websocket source into the channel", func() {
		ch := transcript.NewChannel(wsURL(), transcript.WebsocketDialer{HandshakeTimeout: time.Second}, nil)
		defer ch.Disconnect()

		Expect(ch.Connect(context.Background())).To(Succeed())
		Expect(ch.State()).To(Equal(transcript.Connected))

		outgoing <- `{"speaker":"Patient","text":"sore throat 3 days"}`
		outgoing <- `{"speaker":"Doctor"}`
		outgoing <- `{"speaker":"Doctor","text":"any fever?"}`

		Eventually(ch.Len).Should(Equal(2))
		Expect(ch.Snapshot()[1]).To(Equal(models.TranscriptEntry{Speaker: models.SpeakerDoctor, Text: "any fever?"}))
	})

	It("marks the channel disconnected when the server hangs up", func() {
		ch := transcript.NewChannel(wsURL(), transcript.WebsocketDialer{}, nil)
		Expect(ch.Connect(context.Background())).To(Succeed())

		close(hangup)

		Eventually(ch.State).Should(Equal(transcript.Disconnected))
	})

	It("fails to connect to a non-websocket endpoint", func() {
		plain := httptest.NewServer(http.NotFoundHandler())
		defer plain.Close()

		ch := transcript.NewChannel("ws"+strings.TrimPrefix(plain.URL, "http"), transcript.WebsocketDialer{}, nil)
		Expect(ch.Connect(context.Background())).To(MatchError(ContainSubstring("404")))
		Expect(ch.State()).To(Equal(transcript.Disconnected))
	})
})
