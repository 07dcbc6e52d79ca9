package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rug-sentinel/internal/alert"
	"rug-sentinel/internal/bot"
	"rug-sentinel/internal/cache"
	"rug-sentinel/internal/config"
	"rug-sentinel/internal/db"
	"rug-sentinel/internal/handler"
	"rug-sentinel/internal/ingest"
	"rug-sentinel/internal/job"
	"rug-sentinel/internal/notify"
	"rug-sentinel/internal/observability"
	"rug-sentinel/internal/provider"
	"rug-sentinel/internal/queue"
	"rug-sentinel/internal/repository"
	"rug-sentinel/internal/service"
	"rug-sentinel/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	tele "gopkg.in/telebot.v3"

	_ "rug-sentinel/docs"
)

var (
	loadEnvFunc      = godotenv.Load
	loadConfigFunc   = config.Load
	initPostgresFunc = db.InitPostgres
	initRedisFunc    = cache.InitRedis
	initTracerFunc   = tracing.InitTracer
	migrateFunc      = func(ctx context.Context) error {
		if db.Pool == nil {
			return nil
		}
		return db.Migrate(ctx, db.Pool)
	}
	newMetricsFunc = func() *observability.Metrics {
		return observability.NewMetrics("", nil)
	}
	newTransportFunc       = newTransport
	startTelegramBotFunc   = bot.StartTelegramBot
	startUpdateJobFunc     = func(j *job.UpdateJob, ctx context.Context) { go j.Start(ctx) }
	newRouterFunc          = gin.Default
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           Rug Sentinel API
// @version         1.0
// @description     Solana token risk tracking with threshold alerts.

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
func main() {
	loadEnvFunc()

	cfg := loadConfigFunc()
	cfg.ConfigureLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	os.Setenv("DATABASE_URL", cfg.DatabaseURL)
	initPostgresFunc(ctx)
	defer db.Close()
	if cfg.QueueTransport == "redis" {
		os.Setenv("REDIS_URL", cfg.RedisURL)
		initRedisFunc(ctx)
		defer cache.Close()
	}

	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	if err := migrateFunc(ctx); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	metrics := newMetricsFunc()
	logger := log.StandardLogger()

	metricsRepo := repository.NewMetricsRepository(db.Pool, tracer)
	alertRepo := repository.NewAlertRepository(db.Pool, tracer)

	rugcheck := provider.NewRugCheckProvider(tracer, provider.RugCheckConfig{
		RugCheckBaseURL: cfg.RugCheckBaseURL,
		FluxBeamBaseURL: cfg.FluxBeamBaseURL,
		RequestsPerSec:  cfg.UpstreamRPS,
	})

	transport, err := newTransportFunc(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to set up %s queue: %v", cfg.QueueTransport, err)
	}
	q := queue.New(tracer, logger, metrics, transport)
	defer q.Close()

	// Telegram bot: /status replies and, when a chat is configured, alert delivery
	tokenomics := service.NewTokenomicsService(tracer, metricsRepo, rugcheck,
		cache.NewTTLCache[json.RawMessage](time.Duration(cfg.SummaryCacheTTLSecs)*time.Second))
	tgBot := startTelegramBotFunc(cfg.TelegramBotToken, tokenomics)

	notifier := notify.NewDispatcher(tracer, logger, metrics, notifyChannels(cfg, tgBot)...)
	evaluator := alert.NewEvaluator(tracer, logger, metrics, alertRepo, notifier)

	processor := ingest.NewProcessor(tracer, logger, metrics, ingest.ProcessorDeps{
		Fetcher:   rugcheck,
		Gate:      ingest.NewFreshnessGate(metricsRepo, tracer),
		Persistor: ingest.NewPersistor(metricsRepo, tracer),
		Evaluator: evaluator,
		Requeue:   q,
	}, time.Duration(cfg.AssetTimeoutSecs)*time.Second)

	sources := ingest.UnionAssets{ingest.StaticAssets(cfg.TrackedMints)}
	if cfg.TrackAlertMints {
		sources = append(sources, ingest.AlertAssets{Store: alertRepo})
	}
	dispatcher := ingest.NewDispatcher(tracer, logger, q, sources, cfg.BatchSize)

	consumer := queue.NewConsumer(tracer, logger, metrics, q, processor, queue.ConsumerConfig{
		Concurrency:    cfg.WorkerConcurrency,
		MaxAttempts:    cfg.RetryMaxAttempts,
		InitialBackoff: time.Duration(cfg.RetryInitialBackoffSecs) * time.Second,
		DrainTimeout:   time.Duration(cfg.DrainTimeoutSecs) * time.Second,
	})

	updateJob := job.NewUpdateJob(tracer, logger, dispatcher, consumer, cfg.DispatchIntervalSecs, cfg.RunBudgetSecs)
	startUpdateJobFunc(updateJob, ctx)

	alerts := service.NewAlertService(tracer, alertRepo)
	h := handler.New(tracer, alerts, tokenomics)
	h.SetQueueTrigger(dispatcher)
	if db.Pool != nil {
		h.AddReadinessCheck("postgres", db.Pool.Ping)
	}
	if cache.Client != nil {
		h.AddReadinessCheck("redis", func(ctx context.Context) error { return cache.Client.Ping(ctx).Err() })
	}

	r := newRouterFunc()
	r.Use(otelgin.Middleware(tracing.ServiceName))

	h.RegisterRoutes(r, cfg.APIKey)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down server...")

	cancel()
	if tgBot != nil {
		tgBot.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}

func newTransport(ctx context.Context, cfg *config.Config) (queue.Transport, error) {
	switch cfg.QueueTransport {
	case "kafka":
		return queue.NewKafkaTransport(queue.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		}), nil
	case "memory":
		return queue.NewMemoryTransport(1024), nil
	default:
		if cache.Client == nil {
			return nil, fmt.Errorf("redis client not initialized")
		}
		// The consumer requeues the processing list before each run.
		return queue.NewRedisTransport(cache.Client, cfg.QueueName), nil
	}
}

func notifyChannels(cfg *config.Config, tgBot *tele.Bot) []notify.Channel {
	var channels []notify.Channel
	for _, name := range cfg.NotifyChannels {
		switch name {
		case "log":
			channels = append(channels, notify.LogChannel{Logger: log.StandardLogger()})
		case "email":
			ch, err := notify.NewSMTPChannel(notify.SMTPConfig{
				Host:     cfg.SMTPHost,
				Port:     cfg.SMTPPort,
				Username: cfg.SMTPUsername,
				Password: cfg.SMTPPassword,
				From:     cfg.SMTPFrom,
			})
			if err != nil {
				log.WithError(err).Warn("email notifications disabled")
				continue
			}
			channels = append(channels, ch)
		case "telegram":
			if tgBot == nil || cfg.TelegramAlertChatID == 0 {
				log.Warn("telegram notifications need TELEGRAM_BOT_TOKEN and TELEGRAM_ALERT_CHAT_ID")
				continue
			}
			channels = append(channels, bot.NewTelegramChannel(tgBot, cfg.TelegramAlertChatID))
		default:
			log.Warnf("unknown notification channel %q", name)
		}
	}
	if len(channels) == 0 {
		channels = append(channels, notify.LogChannel{Logger: log.StandardLogger()})
	}
	return channels
}
