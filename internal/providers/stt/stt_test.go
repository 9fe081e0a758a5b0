package stt_test

import (
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/yoockh/medscribe/internal/providers/stt"
)

var _ = Describe("NormalizeLanguage", func() {
	DescribeTable("maps short codes",
		func(in, want string) {
			Expect(stt.NormalizeLanguage(in)).To(Equal(want))
		},
		Entry("empty", "", "fr-FR"),
		Entry("fr", "fr", "fr-FR"),
		Entry("english", " EN ", "en-US"),
		Entry("full tag", "de-DE", "de-DE"),
	)
})

var _ = Describe("BestAlternative", func() {
	It("keeps the most confident transcript", func() {
		resp := &speechpb.RecognizeResponse{
			Results: []*speechpb.SpeechRecognitionResult{
				{Alternatives: []*speechpb.SpeechRecognitionAlternative{
					{Transcript: "j'ai mal à la gorge", Confidence: 0.82},
					{Transcript: "j'ai mal a la gorge", Confidence: 0.40},
				}},
				{Alternatives: []*speechpb.SpeechRecognitionAlternative{
					{Transcript: "", Confidence: 0.99},
				}},
			},
		}

		text, conf := stt.BestAlternative(resp)
		Expect(text).To(Equal("j'ai mal à la gorge"))
		Expect(conf).To(BeNumerically("~", 0.82, 0.001))
	})

	It("returns nothing for an empty response", func() {
		text, conf := stt.BestAlternative(nil)
		Expect(text).To(BeEmpty())
		Expect(conf).To(BeZero())

		text, _ = stt.BestAlternative(&speechpb.RecognizeResponse{})
		Expect(text).To(BeEmpty())
	})
})
