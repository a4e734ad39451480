package main

import (
	"context"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/yoockh/vtutor/config"
	"github.com/yoockh/vtutor/internal/api/handlers"
	"github.com/yoockh/vtutor/internal/api/routes"
	"github.com/yoockh/vtutor/internal/cache"
	"github.com/yoockh/vtutor/internal/logger"
	"github.com/yoockh/vtutor/internal/models"
	"github.com/yoockh/vtutor/internal/providers/llm"
	"github.com/yoockh/vtutor/internal/providers/stt"
	mongorepo "github.com/yoockh/vtutor/internal/repositories/mongo"
	pgrepo "github.com/yoockh/vtutor/internal/repositories/postgres"
	"github.com/yoockh/vtutor/internal/realtime"
	"github.com/yoockh/vtutor/internal/services"
	"github.com/yoockh/vtutor/internal/session"
	"github.com/yoockh/vtutor/internal/storage"
	"github.com/yoockh/vtutor/internal/workers"
)

func main() {
	_ = godotenv.Load()

	lg := logger.New()

	if err := config.InitMongo(); err != nil {
		log.Fatalf("MongoDB init error: %v", err)
	}
	lg.Info("MongoDB connected")

	if err := config.EnsureMongoIndexes(); err != nil {
		log.Fatalf("MongoDB index error: %v", err)
	}

	if err := config.InitPostgres(); err != nil {
		log.Fatalf("PostgreSQL init error: %v", err)
	}
	lg.Info("PostgreSQL connected")

	if err := config.InitRedis(); err != nil {
		log.Fatalf("Redis init error: %v", err)
	}
	lg.Info("Redis connected")

	tuning := config.LoadTuning()
	ctx := context.Background()

	db := config.MongoDatabase()
	sessionRepo := mongorepo.NewSessionRepo(db)
	transcriptRepo := mongorepo.NewTranscriptRepo(db)
	profileRepo := pgrepo.NewProfileRepo(config.PostgresDB)
	contentRepo := pgrepo.NewContentRepo(config.PostgresDB)

	sessionSvc := services.NewSessionService(sessionRepo, transcriptRepo)
	transcriptSvc := services.NewTranscriptService(transcriptRepo, 0)
	contentSvc := services.NewContentService(contentRepo, profileRepo)

	// Session transport: every new session joins its own room on the media
	// gateway with a short-lived signed token.
	gatewayURL := os.Getenv("MEDIA_GATEWAY_URL")
	apiKey := os.Getenv("MEDIA_GATEWAY_API_KEY")
	apiSecret := os.Getenv("MEDIA_GATEWAY_API_SECRET")
	transport := &realtime.WSTransport{}

	dial := func(s *models.VoiceSession) (session.Connection, error) {
		token, err := realtime.BuildAccessToken(apiKey, apiSecret, s.SessionID, s.StudentID, time.Hour)
		if err != nil {
			return nil, err
		}
		target := realtime.Target{
			URL:      gatewayURL,
			Room:     s.SessionID,
			Identity: s.StudentID,
			Token:    token,
		}
		return realtime.NewManager(transport, target, tuning.Resilience,
			logger.Component(lg, "realtime").WithField("session_id", s.SessionID)), nil
	}

	orch := session.NewOrchestrator(sessionSvc, dial, session.Config{
		BufferCapacity: tuning.BufferCapacity,
	}, logger.Component(lg, "orchestrator"))
	orch.SetTranscriptSink(transcriptSvc)

	sttProvider, err := stt.NewGoogleSpeech(ctx)
	if err != nil {
		log.Fatalf("Speech client init error: %v", err)
	}
	defer sttProvider.Close()

	llmProvider, err := llm.NewVertexGemini(ctx,
		os.Getenv("GOOGLE_PROJECT_ID"),
		os.Getenv("GOOGLE_LOCATION"),
		os.Getenv("GEMINI_MODEL"),
	)
	if err != nil {
		log.Fatalf("Vertex init error: %v", err)
	}
	defer llmProvider.Close()

	var archive storage.Uploader
	if bucket := os.Getenv("GCS_AUDIO_BUCKET"); bucket != "" {
		gcsArchive, aerr := storage.NewGCSArchive(ctx, bucket)
		if aerr != nil {
			log.Fatalf("GCS init error: %v", aerr)
		}
		defer gcsArchive.Close()
		archive = gcsArchive
	}

	pool := &workers.UtterancePool{
		Redis:      config.RedisClient,
		Sessions:   orch,
		Content:    contentSvc,
		NumWorkers: tuning.NumWorkers,
		STT:        sttProvider,
		LLM:        llmProvider,
		Archive:    archive,
		Logger:     lg,
	}
	if err := pool.Start(ctx); err != nil {
		log.Fatalf("worker pool start error: %v", err)
	}
	lg.WithField("workers", tuning.NumWorkers).Info("utterance workers started")

	// Transport audio flows straight onto the worker stream.
	var audioSeq atomic.Int64
	orch.SetAudioSink(func(sessionID string, payload []byte) {
		seq := audioSeq.Add(1)
		enqCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := pool.Enqueue(enqCtx, sessionID, seq, payload); err != nil {
			lg.WithError(err).WithField("session_id", sessionID).Warn("audio enqueue failed")
		}
	})

	stateCache := cache.NewRedisCache(config.RedisClient, "vtutor")

	sessionHandler := &handlers.SessionHandler{
		Orch:        orch,
		Transcripts: transcriptRepo,
		Cache:       stateCache,
		Log:         logger.Component(lg, "api"),
	}
	wsHandler := &handlers.WSHandler{
		Orch:  orch,
		Redis: config.RedisClient,
		Log:   logger.Component(lg, "ws"),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	routes.Register(r, lg, sessionHandler, wsHandler)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	lg.WithField("port", port).Info("server listening")
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
