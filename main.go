package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/sadam-codes/smart-pdf-summarizer/internal/api"
	"github.com/sadam-codes/smart-pdf-summarizer/internal/config"
	"github.com/sadam-codes/smart-pdf-summarizer/internal/redis"
	"github.com/sadam-codes/smart-pdf-summarizer/internal/service/ai"
	"github.com/sadam-codes/smart-pdf-summarizer/internal/service/summary"
	"github.com/sadam-codes/smart-pdf-summarizer/internal/service/upload"
	"github.com/sadam-codes/smart-pdf-summarizer/internal/storage"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	log := newLogger(cfg.Log)
	log.WithField("config", cfg.Redacted()).Debug("configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledger, closeLedger, err := openLedger(cfg)
	if err != nil {
		log.Fatalf("open ledger: %v", err)
	}
	defer closeLedger()
	log.WithField("driver", cfg.Ledger.Driver).Info("temp file ledger ready")

	ttl := time.Duration(cfg.Ledger.TTLMinutes) * time.Minute
	store := upload.NewStore(cfg.Server.UploadDir, ttl, ledger, log)
	cleanInterval := time.Duration(cfg.Ledger.CleanIntervalMinutes) * time.Minute
	if cleanInterval <= 0 {
		cleanInterval = upload.DefaultTempFileCleanupInterval
	}
	store.StartCleaner(ctx, cleanInterval)

	extractor, err := ai.NewExtractor(ctx, log)
	if err != nil {
		log.Fatalf("init extractor: %v", err)
	}
	chatModel, err := ai.NewChatModel(ctx, cfg.Summary)
	if err != nil {
		log.Fatalf("init chat model: %v", err)
	}
	summarizer, err := summary.NewService(chatModel, cfg.Summary, log)
	if err != nil {
		log.Fatalf("init summary service: %v", err)
	}

	if strings.EqualFold(cfg.Log.Level, "debug") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := api.NewHandler(cfg.Server, store, extractor, summarizer, log)
	router := api.NewRouter(handler, cfg.Server.AllowedOrigins, log)

	log.WithFields(logrus.Fields{
		"addr":     cfg.Server.Address,
		"provider": cfg.Summary.Provider,
		"model":    cfg.Summary.Model,
	}).Info("server running")
	if err := router.Run(cfg.Server.Address); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}

func newLogger(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	if strings.EqualFold(cfg.Format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		log.WithError(err).Warn("unknown log level, using info")
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

// openLedger picks the temp-file ledger backend. The returned close func is
// always safe to call.
func openLedger(cfg *config.Config) (upload.Ledger, func(), error) {
	switch driver := strings.ToLower(cfg.Ledger.Driver); driver {
	case "none":
		return upload.NopLedger{}, func() {}, nil
	case "redis":
		rdb, err := redis.NewRedisClient(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return upload.NewRedisLedger(rdb), func() { rdb.Close() }, nil
	default:
		db, err := storage.Open(cfg.Ledger)
		if err != nil {
			return nil, nil, err
		}
		if err := storage.Migrate(db, driver); err != nil {
			db.Close()
			return nil, nil, err
		}
		return upload.NewSQLLedger(db), closeDB(db), nil
	}
}

func closeDB(db *sql.DB) func() {
	return func() { db.Close() }
}
