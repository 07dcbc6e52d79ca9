package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabaseURL string
	RedisURL    string
	HTTPAddr    string
	APIKey      string

	QueueTransport string
	QueueName      string
	KafkaBrokers   []string
	KafkaTopic     string
	KafkaGroupID   string

	BatchSize               int
	WorkerConcurrency       int
	RunBudgetSecs           int
	DrainTimeoutSecs        int
	DispatchIntervalSecs    int
	AssetTimeoutSecs        int
	RetryMaxAttempts        int
	RetryInitialBackoffSecs int
	TrackedMints            []string
	TrackedMintsFile        string
	TrackAlertMints         bool

	RugCheckBaseURL     string
	FluxBeamBaseURL     string
	UpstreamRPS         float64
	SummaryCacheTTLSecs int

	NotifyChannels      []string
	SMTPHost            string
	SMTPPort            int
	SMTPUsername        string
	SMTPPassword        string
	SMTPFrom            string
	TelegramBotToken    string
	TelegramAlertChatID int64

	LogLevel  string
	LogFormat string
}

func Load() *Config {
	cfg := &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		APIKey:           os.Getenv("API_KEY"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		SMTPHost:         strings.TrimSpace(os.Getenv("SMTP_HOST")),
		SMTPUsername:     os.Getenv("SMTP_USERNAME"),
		SMTPPassword:     os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:         strings.TrimSpace(os.Getenv("SMTP_FROM")),
		TrackedMintsFile: strings.TrimSpace(os.Getenv("TRACKED_MINTS_FILE")),
	}

	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set")
	}
	if cfg.RedisURL == "" {
		log.Warn("REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}
	if cfg.APIKey == "" {
		log.Warn("API_KEY not set, internal endpoints are unauthenticated")
	}

	cfg.HTTPAddr = strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	cfg.QueueTransport = strings.ToLower(strings.TrimSpace(os.Getenv("QUEUE_TRANSPORT")))
	switch cfg.QueueTransport {
	case "":
		cfg.QueueTransport = "redis"
	case "redis", "kafka", "memory":
	default:
		log.Warnf("unsupported QUEUE_TRANSPORT=%q, defaulting to redis", cfg.QueueTransport)
		cfg.QueueTransport = "redis"
	}

	cfg.QueueName = strings.TrimSpace(os.Getenv("QUEUE_NAME"))
	if cfg.QueueName == "" {
		cfg.QueueName = "tokenUpdates"
	}
	cfg.KafkaBrokers = splitList(os.Getenv("KAFKA_BROKERS"))
	if len(cfg.KafkaBrokers) == 0 {
		cfg.KafkaBrokers = []string{"localhost:9092"}
	}
	cfg.KafkaTopic = strings.TrimSpace(os.Getenv("KAFKA_TOPIC"))
	if cfg.KafkaTopic == "" {
		cfg.KafkaTopic = cfg.QueueName
	}
	cfg.KafkaGroupID = strings.TrimSpace(os.Getenv("KAFKA_GROUP_ID"))
	if cfg.KafkaGroupID == "" {
		cfg.KafkaGroupID = "rug-sentinel-workers"
	}

	cfg.BatchSize = positiveInt("BATCH_SIZE", 10)
	cfg.WorkerConcurrency = positiveInt("WORKER_CONCURRENCY", 5)
	cfg.RunBudgetSecs = positiveInt("RUN_BUDGET_SECS", 25)
	cfg.DrainTimeoutSecs = positiveInt("DRAIN_TIMEOUT_SECS", 5)
	cfg.DispatchIntervalSecs = positiveInt("DISPATCH_INTERVAL_SECS", 300)
	cfg.AssetTimeoutSecs = positiveInt("ASSET_TIMEOUT_SECS", 30)
	cfg.RetryMaxAttempts = positiveInt("RETRY_MAX_ATTEMPTS", 3)
	cfg.RetryInitialBackoffSecs = positiveInt("RETRY_INITIAL_BACKOFF_SECS", 5)

	cfg.TrackedMints = splitList(os.Getenv("TRACKED_MINTS"))
	if cfg.TrackedMintsFile != "" {
		mints, err := LoadTrackedMints(cfg.TrackedMintsFile)
		if err != nil {
			log.Warnf("failed to read TRACKED_MINTS_FILE: %v", err)
		}
		cfg.TrackedMints = append(cfg.TrackedMints, mints...)
	}
	cfg.TrackAlertMints = !strings.EqualFold(strings.TrimSpace(os.Getenv("TRACK_ALERT_MINTS")), "false")

	cfg.RugCheckBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("RUGCHECK_BASE_URL")), "/")
	if cfg.RugCheckBaseURL == "" {
		cfg.RugCheckBaseURL = "https://api.rugcheck.xyz/v1"
	}
	cfg.FluxBeamBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("FLUXBEAM_BASE_URL")), "/")
	if cfg.FluxBeamBaseURL == "" {
		cfg.FluxBeamBaseURL = "https://data.fluxbeam.xyz"
	}

	cfg.UpstreamRPS = 10
	if v := strings.TrimSpace(os.Getenv("UPSTREAM_RPS")); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 {
			cfg.UpstreamRPS = n
		}
	}
	cfg.SummaryCacheTTLSecs = positiveInt("SUMMARY_CACHE_TTL_SECS", 300)

	cfg.NotifyChannels = splitList(strings.ToLower(os.Getenv("NOTIFY_CHANNELS")))
	if len(cfg.NotifyChannels) == 0 {
		cfg.NotifyChannels = []string{"log"}
	}
	cfg.SMTPPort = positiveInt("SMTP_PORT", 587)
	if v := strings.TrimSpace(os.Getenv("TELEGRAM_ALERT_CHAT_ID")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.TelegramAlertChatID = n
		} else {
			log.Warnf("invalid TELEGRAM_ALERT_CHAT_ID=%q", v)
		}
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(os.Getenv("LOG_FORMAT")))
	if cfg.LogFormat != "json" {
		cfg.LogFormat = "text"
	}

	return cfg
}

// ConfigureLogger applies LogLevel and LogFormat to the logrus standard logger.
func (c *Config) ConfigureLogger() {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		log.Warnf("invalid LOG_LEVEL=%q, using info", c.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if c.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

type trackedFile struct {
	Mints []string `yaml:"mints"`
}

// LoadTrackedMints reads a YAML file of the form `mints: [<mint>, ...]`.
func LoadTrackedMints(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f trackedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	out := make([]string, 0, len(f.Mints))
	for _, m := range f.Mints {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out, nil
}

func positiveInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
		log.Warnf("invalid %s=%q, using default %d", key, v, def)
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
