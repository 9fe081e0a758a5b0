package stt

import (
	"context"
	"strings"
)

// Provider turns one audio chunk into text.
type Provider interface {
	Transcribe(ctx context.Context, audio []byte, language string) (text string, confidence float64, err error)
	Close() error
}

const DefaultLanguage = "fr-FR"

// NormalizeLanguage maps short codes to BCP-47 tags understood by the recognizer.
func NormalizeLanguage(v string) string {
	v = strings.TrimSpace(v)
	switch strings.ToLower(v) {
	case "":
		return DefaultLanguage
	case "fr", "fr-fr":
		return "fr-FR"
	case "en", "en-us":
		return "en-US"
	case "en-gb":
		return "en-GB"
	case "ar", "ar-ma":
		return "ar-MA"
	default:
		return v
	}
}
