package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/medscribe/config"
	"github.com/yoockh/medscribe/internal/api/handlers"
	"github.com/yoockh/medscribe/internal/api/middleware"
	"github.com/yoockh/medscribe/internal/api/routes"
	"github.com/yoockh/medscribe/internal/cache"
	"github.com/yoockh/medscribe/internal/gateway"
	"github.com/yoockh/medscribe/internal/logger"
	"github.com/yoockh/medscribe/internal/providers/stt"
	"github.com/yoockh/medscribe/internal/report"
	"github.com/yoockh/medscribe/internal/repositories/memory"
	"github.com/yoockh/medscribe/internal/services"
	"github.com/yoockh/medscribe/internal/storage"
	"github.com/yoockh/medscribe/internal/transcript"
	"github.com/yoockh/medscribe/internal/workers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config")
	}

	log := logger.New(cfg.LogLevel)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init Redis (optional)
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = config.InitRedis(ctx, cfg.Redis)
		if err != nil {
			log.WithError(err).Fatal("redis init")
		}
		defer rdb.Close()
		log.Info("redis connected")
	}

	source := transcript.Source{Target: cfg.Transcript.Source, Redis: rdb, DialTimeout: cfg.Transcript.DialTimeout}
	if err := source.Validate(); err != nil {
		log.WithError(err).Fatal("transcript source")
	}

	summarizer, closeSummarizer, err := newSummarizer(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("summarizer init")
	}
	defer closeSummarizer()
	log.WithField("gateway", cfg.Gateway.Kind).Info("summarizer ready")

	fixtures, err := memory.DefaultFixtures()
	if err != nil {
		log.WithError(err).Fatal("load fixtures")
	}
	appointments := memory.NewAppointmentRepository(fixtures)
	patients := memory.NewPatientRepository(fixtures)

	deps := services.ConsultationDeps{
		Appointments:   appointments,
		Patients:       patients,
		Source:         source,
		Summarizer:     summarizer,
		SummaryTimeout: cfg.Gateway.Timeout,
		ArchiveTTL:     cfg.Archive.TTL,
		Renderer:       report.NewPDFRenderer(cfg.Report.FontPath),
		Logger:         log,
	}
	if rdb != nil {
		deps.Archive = cache.NewRedisCache(rdb, "medscribe:")
	}
	if cfg.Report.Bucket != "" {
		uploader, err := storage.NewGCSUploader(ctx, cfg.Report.Bucket)
		if err != nil {
			log.WithError(err).Fatal("gcs init")
		}
		defer uploader.Close()
		deps.Prescriptions = uploader
	}
	consultationSvc := services.NewConsultationService(deps)
	defer consultationSvc.Shutdown()

	var audio handlers.AudioEnqueuer
	if cfg.Speech.Enabled {
		recognizer, err := stt.NewGoogleSpeech(ctx)
		if err != nil {
			log.WithError(err).Fatal("speech client init")
		}
		defer recognizer.Close()

		pool := &workers.TranscriptionWorkerPool{
			Redis:      rdb,
			STT:        recognizer,
			NumWorkers: cfg.Speech.Workers,
			Logger:     log,
			Language:   cfg.Speech.Language,
		}
		if err := pool.Start(ctx); err != nil {
			log.WithError(err).Fatal("transcription workers")
		}
		audio = workers.NewAudioQueue(rdb)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))

	routes.RegisterRoutes(r, routes.Deps{
		Appointment:  handlers.NewAppointmentHandler(services.NewAppointmentService(appointments, patients)),
		Consultation: handlers.NewConsultationHandler(consultationSvc),
		WS:           handlers.NewWSHandler(consultationSvc, audio, log),
	}, cfg.Auth)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown")
	}
}

func newSummarizer(ctx context.Context, cfg *config.Config) (gateway.Summarizer, func(), error) {
	switch cfg.Gateway.Kind {
	case "http":
		return gateway.NewHTTPSummarizer(cfg.Gateway.URL, cfg.Gateway.APIKey, cfg.Gateway.Timeout), func() {}, nil
	case "vertex":
		v, err := gateway.NewVertexSummarizer(ctx, cfg.Vertex.ProjectID, cfg.Vertex.Location, cfg.Vertex.Model)
		if err != nil {
			return nil, nil, err
		}
		return v, func() { _ = v.Close() }, nil
	default:
		return gateway.DemoSummarizer{Delay: cfg.Gateway.DemoDelay}, func() {}, nil
	}
}
