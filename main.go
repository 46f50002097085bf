package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"prompt-decoder-server/modules/common/cancel"
	"prompt-decoder-server/modules/common/config"
	"prompt-decoder-server/modules/common/database"
	"prompt-decoder-server/modules/common/gemini"
	"prompt-decoder-server/modules/common/imageproc"
	"prompt-decoder-server/modules/common/logger"
	redisutil "prompt-decoder-server/modules/common/redis"
	"prompt-decoder-server/modules/decode"
	"prompt-decoder-server/modules/guide"
	"prompt-decoder-server/modules/history"
	"prompt-decoder-server/modules/realtime"
)

// CORS 헤더 추가
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// healthCheck - GET / and /health
func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "prompt-decoder",
	})
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Logger.Fatalf("❌ Failed to load config: %v", err)
	}

	logCloser := logger.Configure(logger.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis (history backend and/or decode queue)
	var rdb *redis.Client
	if cfg.NeedsRedis() {
		rdb, err = redisutil.Connect(ctx, cfg)
		if err != nil {
			logger.Logger.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
		defer rdb.Close()
	}

	store, err := newHistoryStore(cfg, rdb)
	if err != nil {
		logger.Logger.Fatalf("❌ Failed to initialize history: %v", err)
	}

	client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, gemini.Policy{
		MaxAttempts:    cfg.RetryMaxAttempts,
		BaseDelay:      cfg.RetryBaseDelay,
		AttemptTimeout: cfg.RetryAttemptTimeout,
	})
	if err != nil {
		logger.Logger.Fatalf("❌ Failed to initialize Gemini: %v", err)
	}

	pool := imageproc.NewWorkerPool(cfg.PreprocessWorkers)
	pool.Start()
	defer pool.Close()

	hub := realtime.NewHub()
	hub.StartCleanupRoutine()
	defer hub.Stop()

	service := decode.NewService(decode.Deps{
		Analyzer:  client,
		Processor: imageproc.NewProcessor(pool, cfg.PreprocessTimeout),
		Options: imageproc.Options{
			MaxDimension: cfg.MaxDimension,
			MaxPixels:    cfg.MaxPixels,
			Quality:      cfg.ImageQuality,
			OutputFormat: cfg.OutputFormat,
		},
		History:   store,
		Publisher: hub,
		Cancels:   cancel.NewRegistry(),
	})

	var queue *decode.Queue
	var workerDone <-chan struct{}
	if cfg.QueueEnabled {
		queue = decode.NewQueue(rdb)
		workerDone = decode.NewWorker(queue, service, cfg.PreprocessWorkers).Start(ctx)
	}

	handler := decode.NewHandler(service, queue, decode.HandlerConfig{
		MaxUploadBytes: cfg.MaxUploadBytes,
		PublicBaseURL:  cfg.PublicBaseURL,
		HistoryLimit:   cfg.HistoryLimit,
	})

	// 라우터 설정
	r := mux.NewRouter()
	r.Use(enableCORS)

	r.HandleFunc("/", healthCheck).Methods("GET")
	r.HandleFunc("/health", healthCheck).Methods("GET")
	r.HandleFunc("/ws", hub.HandleWebSocket)
	r.HandleFunc("/session/{sessionId}", hub.HandleSessionInfo).Methods("GET")
	r.HandleFunc("/metrics", hub.HandleMetrics).Methods("GET")
	r.HandleFunc("/admin/cleanup", hub.HandleCleanup).Methods("POST")

	handler.RegisterRoutes(r)
	guide.RegisterRoutes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.WithFields(logrus.Fields{
		"port":    cfg.Port,
		"model":   client.Model(),
		"history": cfg.HistoryBackend,
		"queue":   cfg.QueueEnabled,
	}).Info("🚀 Prompt Decoder Server starting")
	logger.Infof("📡 WebSocket endpoint: ws://localhost:%s/ws", cfg.Port)
	logger.Infof("❤️  Health check: http://localhost:%s/health", cfg.Port)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logger.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("🛑 Shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("⚠️  Graceful shutdown failed")
	}

	// running jobs save their outcome before Redis and the pool close
	if workerDone != nil && !decode.WaitStopped(workerDone, 15*time.Second) {
		logger.Warn("⚠️  Decode worker did not stop in time")
	}
}

// newHistoryStore - backend selected by HISTORY_BACKEND
func newHistoryStore(cfg *config.Config, rdb *redis.Client) (history.Store, error) {
	switch cfg.HistoryBackend {
	case history.BackendRedis:
		return history.NewStore(cfg.HistoryBackend, cfg.HistoryLimit, rdb, nil)
	case history.BackendSupabase:
		db, err := database.NewClient(cfg)
		if err != nil {
			return nil, err
		}
		return history.NewStore(cfg.HistoryBackend, cfg.HistoryLimit, nil, db)
	default:
		return history.NewStore(cfg.HistoryBackend, cfg.HistoryLimit, nil, nil)
	}
}
