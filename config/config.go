package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	LogLevel string
	GinMode  string

	Auth       AuthConfig
	Redis      RedisConfig
	Transcript TranscriptConfig
	Gateway    GatewayConfig
	Vertex     VertexConfig
	Speech     SpeechConfig
	Report     ReportConfig
	Archive    ArchiveConfig
}

type AuthConfig struct {
	Secret   string
	Issuer   string
	Audience string
	// Disabled lets every request through as a doctor. Local demos only.
	Disabled bool
}

type RedisConfig struct {
	// Addr is host:port or a redis:// URL. Empty disables Redis-backed features.
	Addr string
}

type TranscriptConfig struct {
	// Source is "" (demo), "redis", or a ws:// URL template containing {id}.
	Source      string
	DialTimeout time.Duration
}

type GatewayConfig struct {
	// Kind is demo, http or vertex.
	Kind      string
	URL       string
	APIKey    string
	Timeout   time.Duration
	DemoDelay time.Duration
}

type VertexConfig struct {
	ProjectID string
	Location  string
	Model     string
}

type SpeechConfig struct {
	Enabled  bool
	Language string
	Workers  int
}

type ReportConfig struct {
	FontPath string
	// Bucket receives a PDF of every validated prescription. Empty disables filing.
	Bucket string
}

type ArchiveConfig struct {
	TTL time.Duration
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dialTimeout, err := getDuration("TRANSCRIPT_DIAL_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	summaryTimeout, err := getDuration("SUMMARY_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	demoDelay, err := getDuration("SUMMARY_DEMO_DELAY", 2*time.Second)
	if err != nil {
		return nil, err
	}
	archiveTTL, err := getDuration("ARCHIVE_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	authDisabled, err := getBool("AUTH_DISABLED", false)
	if err != nil {
		return nil, err
	}
	sttEnabled, err := getBool("STT_ENABLED", false)
	if err != nil {
		return nil, err
	}
	sttWorkers, err := strconv.Atoi(getEnv("STT_WORKERS", "2"))
	if err != nil {
		return nil, fmt.Errorf("invalid STT_WORKERS: %w", err)
	}

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		GinMode:  getEnv("GIN_MODE", "release"),
		Auth: AuthConfig{
			Secret:   getEnv("JWT_SECRET", ""),
			Issuer:   getEnv("JWT_ISSUER", ""),
			Audience: getEnv("JWT_AUDIENCE", ""),
			Disabled: authDisabled,
		},
		Redis: RedisConfig{Addr: redisAddr()},
		Transcript: TranscriptConfig{
			Source:      strings.TrimSpace(getEnv("TRANSCRIPT_SOURCE", "")),
			DialTimeout: dialTimeout,
		},
		Gateway: GatewayConfig{
			Kind:      strings.ToLower(getEnv("SUMMARY_GATEWAY", "demo")),
			URL:       getEnv("SUMMARY_API_URL", ""),
			APIKey:    getEnv("SUMMARY_API_KEY", ""),
			Timeout:   summaryTimeout,
			DemoDelay: demoDelay,
		},
		Vertex: VertexConfig{
			ProjectID: getEnv("GCP_PROJECT_ID", ""),
			Location:  getEnv("GCP_LOCATION", "us-central1"),
			Model:     getEnv("VERTEX_MODEL", "gemini-1.5-flash"),
		},
		Speech: SpeechConfig{
			Enabled:  sttEnabled,
			Language: getEnv("STT_LANGUAGE", "fr-FR"),
			Workers:  sttWorkers,
		},
		Report: ReportConfig{
			FontPath: getEnv("PDF_FONT_PATH", ""),
			Bucket:   getEnv("PRESCRIPTION_BUCKET", ""),
		},
		Archive: ArchiveConfig{TTL: archiveTTL},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if !c.Auth.Disabled && c.Auth.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required unless AUTH_DISABLED=true")
	}
	switch c.Gateway.Kind {
	case "demo":
	case "http":
		if c.Gateway.URL == "" {
			return fmt.Errorf("SUMMARY_API_URL is required when SUMMARY_GATEWAY=http")
		}
	case "vertex":
		if c.Vertex.ProjectID == "" {
			return fmt.Errorf("GCP_PROJECT_ID is required when SUMMARY_GATEWAY=vertex")
		}
	default:
		return fmt.Errorf("invalid SUMMARY_GATEWAY %q (want demo, http or vertex)", c.Gateway.Kind)
	}
	if c.Transcript.Source == "redis" && c.Redis.Addr == "" {
		return fmt.Errorf("TRANSCRIPT_SOURCE=redis requires REDIS_ADDR")
	}
	if c.Speech.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("STT_ENABLED requires REDIS_ADDR")
	}
	// transcribed audio is published on the redis transcript topic; no other source reads it
	if c.Speech.Enabled && c.Transcript.Source != "redis" {
		return fmt.Errorf("STT_ENABLED requires TRANSCRIPT_SOURCE=redis")
	}
	if c.Speech.Workers <= 0 {
		return fmt.Errorf("STT_WORKERS must be positive")
	}
	return nil
}

func redisAddr() string {
	for _, k := range []string{"REDIS_ADDR", "REDIS_URI", "REDIS_URL"} {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
