package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile      = ".env"
	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second

	defaultOrderTTL          = 6 * time.Hour
	defaultMaxDraftsPerActor = 5
	defaultFanOutConcurrency = 8
	defaultCodeRetryBudget   = 100
	defaultExpirySweep       = 5 * time.Minute

	defaultTelegramAPIBase = "https://api.telegram.org"
	defaultTelegramTimeout = 10 * time.Second
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Firestore FirestoreConfig
	Telegram  TelegramConfig
	Events    EventsConfig
	Workflow  WorkflowConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// TelegramConfig stores Bot API credentials and client parameters.
type TelegramConfig struct {
	BotToken      string
	WebhookSecret string
	APIBaseURL    string
	Timeout       time.Duration
}

// EventsConfig configures the Pub/Sub business-event publisher.
type EventsConfig struct {
	ProjectID string
	Topic     string
}

// WorkflowConfig tunes the negotiation workflow engine.
type WorkflowConfig struct {
	// OrderTTL is added to an order's creation time to derive ExpiresAt.
	OrderTTL time.Duration
	// MaxDraftsPerActor bounds concurrent in-progress drafts per buyer.
	MaxDraftsPerActor int
	// FanOutConcurrency bounds parallel notification deliveries.
	FanOutConcurrency int
	// CodeRetryBudget caps sequential order-code collision retries before
	// falling back to a random suffix.
	CodeRetryBudget int
	// ExpirySweepInterval is the cadence of the overdue-order sweeper.
	ExpirySweepInterval time.Duration
}

// LoadOptions control configuration sources during Load.
type LoadOptions struct {
	// EnvFile points at an optional dotenv-style file; defaults to ".env".
	EnvFile string
	// Environ overrides the process environment, primarily for tests.
	Environ []string
}

// Load reads configuration from the environment (optionally overlaid on an
// env file), applies defaults, and validates required settings.
func Load(ctx context.Context, opts LoadOptions) (Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return Config{}, err
	}

	values := map[string]string{}

	envFile := strings.TrimSpace(opts.EnvFile)
	if envFile == "" {
		envFile = defaultEnvFile
	}
	if fileValues, err := readEnvFile(envFile); err != nil {
		return Config{}, err
	} else {
		for k, v := range fileValues {
			values[k] = v
		}
	}

	environ := opts.Environ
	if environ == nil {
		environ = os.Environ()
	}
	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		values[key] = value
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringValue(values, "PORT", defaultPort),
			ReadTimeout:  defaultReadTimeout,
			WriteTimeout: defaultWriteTimeout,
			IdleTimeout:  defaultIdleTimeout,
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringValue(values, "FIRESTORE_PROJECT_ID", stringValue(values, "GOOGLE_CLOUD_PROJECT", "")),
			EmulatorHost: stringValue(values, "FIRESTORE_EMULATOR_HOST", ""),
		},
		Telegram: TelegramConfig{
			BotToken:      stringValue(values, "TELEGRAM_BOT_TOKEN", ""),
			WebhookSecret: stringValue(values, "TELEGRAM_WEBHOOK_SECRET", ""),
			APIBaseURL:    stringValue(values, "TELEGRAM_API_BASE_URL", defaultTelegramAPIBase),
			Timeout:       defaultTelegramTimeout,
		},
		Events: EventsConfig{
			ProjectID: stringValue(values, "EVENTS_PROJECT_ID", stringValue(values, "GOOGLE_CLOUD_PROJECT", "")),
			Topic:     stringValue(values, "EVENTS_TOPIC", ""),
		},
		Workflow: WorkflowConfig{
			OrderTTL:            defaultOrderTTL,
			MaxDraftsPerActor:   defaultMaxDraftsPerActor,
			FanOutConcurrency:   defaultFanOutConcurrency,
			CodeRetryBudget:     defaultCodeRetryBudget,
			ExpirySweepInterval: defaultExpirySweep,
		},
	}

	var err error
	if cfg.Server.ReadTimeout, err = durationValue(values, "SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout); err != nil {
		return Config{}, err
	}
	if cfg.Server.WriteTimeout, err = durationValue(values, "SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout); err != nil {
		return Config{}, err
	}
	if cfg.Server.IdleTimeout, err = durationValue(values, "SERVER_IDLE_TIMEOUT", cfg.Server.IdleTimeout); err != nil {
		return Config{}, err
	}
	if cfg.Telegram.Timeout, err = durationValue(values, "TELEGRAM_TIMEOUT", cfg.Telegram.Timeout); err != nil {
		return Config{}, err
	}
	if cfg.Workflow.OrderTTL, err = durationValue(values, "ORDER_TTL", cfg.Workflow.OrderTTL); err != nil {
		return Config{}, err
	}
	if cfg.Workflow.ExpirySweepInterval, err = durationValue(values, "ORDER_EXPIRY_SWEEP_INTERVAL", cfg.Workflow.ExpirySweepInterval); err != nil {
		return Config{}, err
	}
	if cfg.Workflow.MaxDraftsPerActor, err = intValue(values, "MAX_DRAFTS_PER_ACTOR", cfg.Workflow.MaxDraftsPerActor); err != nil {
		return Config{}, err
	}
	if cfg.Workflow.FanOutConcurrency, err = intValue(values, "FANOUT_CONCURRENCY", cfg.Workflow.FanOutConcurrency); err != nil {
		return Config{}, err
	}
	if cfg.Workflow.CodeRetryBudget, err = intValue(values, "ORDER_CODE_RETRY_BUDGET", cfg.Workflow.CodeRetryBudget); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var problems []string
	if strings.TrimSpace(c.Firestore.ProjectID) == "" && strings.TrimSpace(c.Firestore.EmulatorHost) == "" {
		problems = append(problems, "FIRESTORE_PROJECT_ID is required")
	}
	if strings.TrimSpace(c.Telegram.BotToken) == "" {
		problems = append(problems, "TELEGRAM_BOT_TOKEN is required")
	}
	if c.Workflow.MaxDraftsPerActor <= 0 {
		problems = append(problems, "MAX_DRAFTS_PER_ACTOR must be positive")
	}
	if c.Workflow.FanOutConcurrency <= 0 {
		problems = append(problems, "FANOUT_CONCURRENCY must be positive")
	}
	if c.Workflow.OrderTTL <= 0 {
		problems = append(problems, "ORDER_TTL must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func readEnvFile(path string) (map[string]string, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: open env file %s: %w", path, err)
	}
	defer file.Close()

	values := map[string]string{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if key != "" {
			values[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read env file %s: %w", path, err)
	}
	return values, nil
}

func stringValue(values map[string]string, key, fallback string) string {
	if v, ok := values[key]; ok {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func intValue(values map[string]string, key string, fallback int) (int, error) {
	v, ok := values[key]
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", key, err)
	}
	return parsed, nil
}

func durationValue(values map[string]string, key string, fallback time.Duration) (time.Duration, error) {
	v, ok := values[key]
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("config: %s must be a duration: %w", key, err)
	}
	return parsed, nil
}
