package transcript_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/yoockh/medscribe/internal/models"
	"github.com/yoockh/medscribe/internal/transcript"
)

func patient(text string) models.TranscriptEntry {
	return models.TranscriptEntry{Speaker: models.SpeakerPatient, Text: text, Timestamp: "10:00"}
}

func doctor(text string) models.TranscriptEntry {
	return models.TranscriptEntry{Speaker: models.SpeakerDoctor, Text: text, Timestamp: "10:01"}
}

var _ = Describe("Channel", func() {
	ctx := context.Background()

	Describe("demo mode", func() {
		It("connects without dialing when no endpoint is configured", func() {
			d := &fakeDialer{}
			ch := transcript.NewChannel("", d, nil)

			Expect(ch.State()).To(Equal(transcript.Disconnected))
			Expect(ch.Connect(ctx)).To(Succeed())
			Expect(ch.State()).To(Equal(transcript.Connected))
			Expect(d.Calls()).To(BeZero())
		})
	})

	Describe("Inject", func() {
		var ch *transcript.Channel

		BeforeEach(func() {
			ch = transcript.NewChannel("", nil, nil)
		})

		It("keeps entries in injection order", func() {
			var seen []string
			ch.OnEntry(func(e models.TranscriptEntry) { seen = append(seen, e.Text) })

			want := make([]string, 0, 50)
			for i := 0; i < 50; i++ {
				text := fmt.Sprintf("line %d", i)
				want = append(want, text)
				if i%2 == 0 {
					Expect(ch.Inject(patient(text))).To(Succeed())
				} else {
					Expect(ch.Inject(doctor(text))).To(Succeed())
				}
			}

			got := make([]string, 0, 50)
			for _, e := range ch.Snapshot() {
				got = append(got, e.Text)
			}
			Expect(got).To(Equal(want))
			Expect(seen).To(Equal(want))
		})

		DescribeTable("rejects malformed entries without notifying observers",
			func(entry models.TranscriptEntry) {
				calls := 0
				ch.OnEntry(func(models.TranscriptEntry) { calls++ })

				Expect(ch.Inject(entry)).To(MatchError(transcript.ErrMalformedEntry))
				Expect(ch.Snapshot()).To(BeEmpty())
				Expect(calls).To(BeZero())
			},
			Entry("missing text", models.TranscriptEntry{Speaker: models.SpeakerPatient}),
			Entry("blank text", models.TranscriptEntry{Speaker: models.SpeakerDoctor, Text: "   "}),
			Entry("missing speaker", models.TranscriptEntry{Text: "hello"}),
			Entry("unknown speaker", models.TranscriptEntry{Speaker: "Nurse", Text: "hello"}),
			Entry("lowercase speaker", models.TranscriptEntry{Speaker: "patient", Text: "hello"}),
		)

		It("never runs two handler invocations at once", func() {
			var (
				mu      sync.Mutex
				active  int
				overlap bool
				order   []string
			)
			ch.OnEntry(func(e models.TranscriptEntry) {
				mu.Lock()
				active++
				if active > 1 {
					overlap = true
				}
				order = append(order, e.Text)
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				active--
				mu.Unlock()
			})

			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_ = ch.Inject(patient(fmt.Sprintf("p%d", i)))
				}(i)
			}
			wg.Wait()

			Expect(overlap).To(BeFalse())
			snap := ch.Snapshot()
			Expect(snap).To(HaveLen(20))
			for i, e := range snap {
				Expect(e.Text).To(Equal(order[i]))
			}
		})

		It("stops notifying after unsubscribe", func() {
			calls := 0
			unsubscribe := ch.OnEntry(func(models.TranscriptEntry) { calls++ })

			Expect(ch.Inject(patient("one"))).To(Succeed())
			unsubscribe()
			Expect(ch.Inject(patient("two"))).To(Succeed())

			Expect(calls).To(Equal(1))
			Expect(ch.Len()).To(Equal(2))
		})

		It("rejects entries once frozen", func() {
			Expect(ch.Inject(patient("before"))).To(Succeed())
			ch.Freeze()

			Expect(ch.Inject(patient("after"))).To(MatchError(transcript.ErrChannelFrozen))
			Expect(ch.Snapshot()).To(HaveLen(1))
			Expect(ch.Frozen()).To(BeTrue())
		})
	})

	Describe("Follow", func() {
		It("splits entries between the snapshot and the handler without gaps or repeats", func() {
			ch := transcript.NewChannel("", nil, nil)

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				for i := 0; i < 200; i++ {
					Expect(ch.Inject(patient(fmt.Sprintf("line %d", i)))).To(Succeed())
				}
			}()

			var mu sync.Mutex
			var followed []models.TranscriptEntry
			time.Sleep(time.Millisecond)
			snap, unsubscribe := ch.Follow(func(e models.TranscriptEntry) {
				mu.Lock()
				followed = append(followed, e)
				mu.Unlock()
			})
			defer unsubscribe()
			wg.Wait()

			mu.Lock()
			defer mu.Unlock()
			Expect(append(snap, followed...)).To(Equal(ch.Snapshot()))
		})

		It("returns an independent copy", func() {
			ch := transcript.NewChannel("", nil, nil)
			Expect(ch.Inject(patient("sore throat 3 days"))).To(Succeed())

			snap, unsubscribe := ch.Follow(func(models.TranscriptEntry) {})
			defer unsubscribe()
			snap[0].Text = "changed"

			Expect(ch.Snapshot()[0].Text).To(Equal("sore throat 3 days"))
		})
	})

	Describe("Snapshot", func() {
		It("returns an empty, non-nil slice for an empty buffer", func() {
			ch := transcript.NewChannel("", nil, nil)
			snap := ch.Snapshot()
			Expect(snap).NotTo(BeNil())
			Expect(snap).To(BeEmpty())
		})

		It("does not alias the live buffer", func() {
			ch := transcript.NewChannel("", nil, nil)
			Expect(ch.Inject(patient("sore throat 3 days"))).To(Succeed())

			snap := ch.Snapshot()
			snap[0].Text = "changed"
			Expect(ch.Inject(doctor("any fever?"))).To(Succeed())

			Expect(snap).To(HaveLen(1))
			Expect(ch.Snapshot()[0].Text).To(Equal("sore throat 3 days"))
		})
	})

	Describe("with a transcription source", func() {
		var (
			conn   *fakeConn
			dialer *fakeDialer
			ch     *transcript.Channel
		)

		BeforeEach(func() {
			conn = newFakeConn()
			dialer = &fakeDialer{conn: conn}
			ch = transcript.NewChannel("ws://transcriber.local/live", dialer, nil)
		})

		AfterEach(func() {
			ch.Disconnect()
		})

		It("appends well-formed messages and drops malformed ones", func() {
			Expect(ch.Connect(ctx)).To(Succeed())

			conn.msgs <- []byte(`{"speaker":"Patient","text":"sore throat 3 days","timestamp":"10:00"}`)
			conn.msgs <- []byte(`not json`)
			conn.msgs <- []byte(`{"speaker":"Patient"}`)
			conn.msgs <- []byte(`{"text":"orphan"}`)
			conn.msgs <- []byte(`{"speaker":"Robot","text":"beep"}`)
			conn.msgs <- []byte(`{"speaker":"Doctor","text":"any fever?"}`)

			Eventually(ch.Len).Should(Equal(2))
			Consistently(ch.Len, 50*time.Millisecond).Should(Equal(2))

			snap := ch.Snapshot()
			Expect(snap[0]).To(Equal(models.TranscriptEntry{Speaker: models.SpeakerPatient, Text: "sore throat 3 days", Timestamp: "10:00"}))
			Expect(snap[1].Speaker).To(Equal(models.SpeakerDoctor))
			Expect(ch.State()).To(Equal(transcript.Connected))
		})

		It("is a no-op when already connected", func() {
			Expect(ch.Connect(ctx)).To(Succeed())
			Expect(ch.Connect(ctx)).To(Succeed())
			Expect(dialer.Calls()).To(Equal(1))
		})

		It("stays disconnected when the dial fails", func() {
			dialer.err = errors.New("connection refused")

			err := ch.Connect(ctx)
			Expect(err).To(MatchError(ContainSubstring("connection refused")))
			Expect(ch.State()).To(Equal(transcript.Disconnected))
			Expect(ch.Snapshot()).To(BeEmpty())
		})

		It("disconnects on a connection error and does not reconnect by itself", func() {
			var states []transcript.State
			var mu sync.Mutex
			ch.OnStateChange(func(s transcript.State) {
				mu.Lock()
				states = append(states, s)
				mu.Unlock()
			})

			Expect(ch.Connect(ctx)).To(Succeed())
			conn.fail <- io.ErrUnexpectedEOF

			Eventually(ch.State).Should(Equal(transcript.Disconnected))
			Expect(conn.isClosed()).To(BeTrue())
			Consistently(dialer.Calls, 50*time.Millisecond).Should(Equal(1))

			mu.Lock()
			defer mu.Unlock()
			Expect(states).To(Equal([]transcript.State{transcript.Connected, transcript.Disconnected}))
		})

		It("can be reconnected by the caller", func() {
			Expect(ch.Connect(ctx)).To(Succeed())
			conn.fail <- io.ErrUnexpectedEOF
			Eventually(ch.State).Should(Equal(transcript.Disconnected))

			next := newFakeConn()
			dialer.conn = next
			Expect(ch.Connect(ctx)).To(Succeed())
			next.msgs <- []byte(`{"speaker":"Patient","text":"still here"}`)

			Eventually(ch.Len).Should(Equal(1))
			Expect(dialer.Calls()).To(Equal(2))
		})

		It("closes the connection on Disconnect and ignores late messages", func() {
			Expect(ch.Connect(ctx)).To(Succeed())
			ch.Disconnect()

			Expect(ch.State()).To(Equal(transcript.Disconnected))
			Expect(conn.isClosed()).To(BeTrue())
			Consistently(ch.Len, 50*time.Millisecond).Should(BeZero())
		})

		It("tolerates Disconnect before any Connect", func() {
			Expect(ch.Disconnect).NotTo(Panic())
			Expect(ch.Disconnect).NotTo(Panic())
			Expect(ch.State()).To(Equal(transcript.Disconnected))
		})

		It("drops a connection that completes after Disconnect", func() {
			release := make(chan struct{})
			dialer.dialFn = func(context.Context, string) (transcript.Conn, error) {
				<-release
				return conn, nil
			}

			errs := make(chan error, 1)
			go func() { errs <- ch.Connect(ctx) }()

			Eventually(dialer.Calls).Should(Equal(1))
			ch.Disconnect()
			close(release)

			Eventually(errs).Should(Receive(HaveOccurred()))
			Expect(ch.State()).To(Equal(transcript.Disconnected))
			Expect(conn.isClosed()).To(BeTrue())
		})

		It("refuses to connect once frozen", func() {
			ch.Freeze()

			Expect(ch.Connect(ctx)).To(MatchError(transcript.ErrChannelFrozen))
			Expect(dialer.Calls()).To(BeZero())
			Expect(ch.State()).To(Equal(transcript.Disconnected))
		})

		It("drops a connection that completes after Freeze", func() {
			release := make(chan struct{})
			dialer.dialFn = func(context.Context, string) (transcript.Conn, error) {
				<-release
				return conn, nil
			}

			errs := make(chan error, 1)
			go func() { errs <- ch.Connect(ctx) }()

			Eventually(dialer.Calls).Should(Equal(1))
			ch.Freeze()
			close(release)

			Eventually(errs).Should(Receive(HaveOccurred()))
			Expect(ch.State()).To(Equal(transcript.Disconnected))
			Expect(conn.isClosed()).To(BeTrue())
		})
	})
})
