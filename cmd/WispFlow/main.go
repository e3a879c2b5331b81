package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Conecta2Tel/WispFlow/internal/api"
	"github.com/Conecta2Tel/WispFlow/internal/flow"
	"github.com/Conecta2Tel/WispFlow/internal/genai"
	"github.com/Conecta2Tel/WispFlow/internal/messaging"
	"github.com/Conecta2Tel/WispFlow/internal/meta"
	"github.com/Conecta2Tel/WispFlow/internal/models"
	"github.com/Conecta2Tel/WispFlow/internal/scheduler"
	"github.com/Conecta2Tel/WispFlow/internal/store"
	"github.com/Conecta2Tel/WispFlow/internal/twiliowhatsapp"
	"github.com/Conecta2Tel/WispFlow/internal/whatsapp"
	"github.com/Conecta2Tel/WispFlow/internal/wisphub"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for WispFlow state data
	DefaultStateDir = "/var/lib/wispflow"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "wispflow.db"
	// DefaultWhatsAppDBFileName holds the whatsmeow session store
	DefaultWhatsAppDBFileName = "whatsapp.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := os.MkdirAll(*flags.stateDir, 0755); err != nil {
		slog.Error("Failed to create state directory", "error", err, "dir", *flags.stateDir)
		os.Exit(1)
	}

	if err := run(flags); err != nil {
		slog.Error("WispFlow failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("WispFlow exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir          string
	DatabaseURL       string
	Transport         string
	MetaAccessToken   string
	MetaPhoneNumberID string
	MetaBusinessID    string
	MetaTargetAppID   string
	VerifyToken       string
	WispHubAPIKey     string
	WispHubBaseURL    string
	OpenAIKey         string
	APIAddr           string
	SweepCron         string
	WhatsAppDSN       string
}

// Flags holds command line flag values
type Flags struct {
	stateDir          *string
	dbDSN             *string
	transport         *string
	metaAccessToken   *string
	metaPhoneNumberID *string
	metaBusinessID    *string
	metaTargetAppID   *string
	verifyToken       *string
	wisphubAPIKey     *string
	wisphubBaseURL    *string
	openaiKey         *string
	apiAddr           *string
	sweepCron         *string
	whatsappDSN       *string
	qrOutput          *string
	numeric           *bool
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:          os.Getenv("WISPFLOW_STATE_DIR"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		Transport:         os.Getenv("MESSAGING_TRANSPORT"),
		MetaAccessToken:   os.Getenv("META_ACCESS_TOKEN"),
		MetaPhoneNumberID: os.Getenv("META_PHONE_NUMBER_ID"),
		MetaBusinessID:    os.Getenv("META_BUSINESS_ACCOUNT_ID"),
		MetaTargetAppID:   os.Getenv("META_TARGET_APP_ID"),
		VerifyToken:       os.Getenv("WEBHOOK_VERIFY_TOKEN"),
		WispHubAPIKey:     os.Getenv("WISPHUB_API_KEY"),
		WispHubBaseURL:    os.Getenv("WISPHUB_BASE_URL"),
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		APIAddr:           os.Getenv("API_ADDR"),
		SweepCron:         os.Getenv("SESSION_SWEEP_CRON"),
		WhatsAppDSN:       os.Getenv("WHATSAPP_DB_DSN"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No WISPFLOW_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.Transport == "" {
		config.Transport = "meta"
	}
	if config.SweepCron == "" {
		config.SweepCron = scheduler.DefaultSweepSpec
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, DefaultWhatsAppDBFileName)
	}

	slog.Debug("environment variables loaded",
		"WISPFLOW_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"MESSAGING_TRANSPORT", config.Transport,
		"META_ACCESS_TOKEN_SET", config.MetaAccessToken != "",
		"WISPHUB_API_KEY_SET", config.WispHubAPIKey != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"SESSION_SWEEP_CRON", config.SweepCron)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:          flag.String("state-dir", config.StateDir, "state directory for WispFlow data (overrides $WISPFLOW_STATE_DIR)"),
		dbDSN:             flag.String("db-dsn", config.DatabaseURL, "conversation database DSN (overrides $DATABASE_URL)"),
		transport:         flag.String("transport", config.Transport, "messaging transport: meta, whatsmeow or twilio (overrides $MESSAGING_TRANSPORT)"),
		metaAccessToken:   flag.String("meta-access-token", config.MetaAccessToken, "WhatsApp Cloud API access token (overrides $META_ACCESS_TOKEN)"),
		metaPhoneNumberID: flag.String("meta-phone-number-id", config.MetaPhoneNumberID, "WhatsApp Cloud API phone number id (overrides $META_PHONE_NUMBER_ID)"),
		metaBusinessID:    flag.String("meta-business-account-id", config.MetaBusinessID, "WhatsApp business account id for thread control (overrides $META_BUSINESS_ACCOUNT_ID)"),
		metaTargetAppID:   flag.String("meta-target-app-id", config.MetaTargetAppID, "application receiving control on handover (overrides $META_TARGET_APP_ID)"),
		verifyToken:       flag.String("verify-token", config.VerifyToken, "webhook verification token (overrides $WEBHOOK_VERIFY_TOKEN)"),
		wisphubAPIKey:     flag.String("wisphub-api-key", config.WispHubAPIKey, "WispHub CRM API key (overrides $WISPHUB_API_KEY)"),
		wisphubBaseURL:    flag.String("wisphub-base-url", config.WispHubBaseURL, "WispHub CRM base URL (overrides $WISPHUB_BASE_URL)"),
		openaiKey:         flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key for ticket subjects (overrides $OPENAI_API_KEY)"),
		apiAddr:           flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		sweepCron:         flag.String("sweep-cron", config.SweepCron, "cron schedule for the idle-session sweep (overrides $SESSION_SWEEP_CRON)"),
		whatsappDSN:       flag.String("whatsapp-db-dsn", config.WhatsAppDSN, "whatsmeow session database DSN (overrides $WHATSAPP_DB_DSN)"),
		qrOutput:          flag.String("qr-output", "", "path to write login QR code (whatsmeow transport)"),
		numeric:           flag.Bool("numeric-code", false, "use numeric login code instead of QR code (whatsmeow transport)"),
	}
	flag.Parse()
	return flags
}

func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(flags)
	if err != nil {
		return fmt.Errorf("store setup failed: %w", err)
	}
	defer st.Close()

	crm, err := buildWispHub(flags)
	if err != nil {
		return fmt.Errorf("wisphub setup failed: %w", err)
	}

	svc, threadControl, whatsmeowSvc, err := buildMessaging(flags)
	if err != nil {
		return fmt.Errorf("messaging setup failed: %w", err)
	}

	out := flow.NewOutbox(svc)
	handover := flow.NewHandover(out, threadControl, crm)
	registry := flow.DefaultRegistry(out, crm, handover, buildSummarizer(flags))
	orch := flow.NewOrchestrator(st, registry, out, handover)

	// Transports with their own event stream bypass the webhook layer.
	if whatsmeowSvc != nil {
		whatsmeowSvc.SetInboundHandler(func(ctx context.Context, phoneNumber string, msg models.InboundMessage, displayName string) {
			if err := orch.Process(ctx, phoneNumber, displayName, msg); err != nil {
				slog.Error("session message processing failed", "error", err, "phone", phoneNumber)
			}
		})
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("transport start failed: %w", err)
	}
	defer func() {
		if err := svc.Stop(); err != nil {
			slog.Error("transport stop failed", "error", err)
		}
	}()

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddJob(*flags.sweepCron, scheduler.NewSessionSweep(st).Run); err != nil {
		return fmt.Errorf("invalid sweep cron %q: %w", *flags.sweepCron, err)
	}

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	apiOpts = append(apiOpts, api.WithVerifyToken(*flags.verifyToken))
	srv := api.NewServer(orch, st, handover, apiOpts...)

	slog.Info("WispFlow starting", "transport", *flags.transport, "store", store.DetectDSNType(*flags.dbDSN))
	return srv.Run(ctx)
}

func buildStore(flags Flags) (store.Store, error) {
	switch store.DetectDSNType(*flags.dbDSN) {
	case "postgres":
		return store.NewPostgresStore(store.WithDSN(*flags.dbDSN))
	default:
		return store.NewSQLiteStore(store.WithDSN(*flags.dbDSN))
	}
}

func buildWispHub(flags Flags) (wisphub.API, error) {
	opts := []wisphub.Option{wisphub.WithAPIKey(*flags.wisphubAPIKey)}
	if *flags.wisphubBaseURL != "" {
		opts = append(opts, wisphub.WithBaseURL(*flags.wisphubBaseURL))
	}
	return wisphub.NewClient(opts...)
}

// buildSummarizer is best-effort: without an API key ticket subjects fall back
// to the problem category.
func buildSummarizer(flags Flags) genai.Summarizer {
	if *flags.openaiKey == "" {
		slog.Info("No OpenAI API key, ticket subject summarization disabled")
		return nil
	}
	client, err := genai.NewClient(*flags.openaiKey)
	if err != nil {
		slog.Warn("GenAI client setup failed, summarization disabled", "error", err)
		return nil
	}
	return client
}

func buildMessaging(flags Flags) (messaging.Service, meta.ThreadControl, *messaging.WhatsmeowService, error) {
	switch *flags.transport {
	case "meta":
		metaOpts := []meta.Option{
			meta.WithAccessToken(*flags.metaAccessToken),
			meta.WithPhoneNumberID(*flags.metaPhoneNumberID),
		}
		if *flags.metaBusinessID != "" {
			metaOpts = append(metaOpts, meta.WithBusinessAccountID(*flags.metaBusinessID))
		}
		if *flags.metaTargetAppID != "" {
			metaOpts = append(metaOpts, meta.WithTargetAppID(*flags.metaTargetAppID))
		}
		client, err := meta.NewClient(metaOpts...)
		if err != nil {
			return nil, nil, nil, err
		}
		return messaging.NewMetaService(client), client, nil, nil
	case "whatsmeow":
		waOpts := []whatsapp.Option{whatsapp.WithDBDSN(*flags.whatsappDSN)}
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, nil, nil, err
		}
		svc := messaging.NewWhatsmeowService(client)
		return svc, nil, svc, nil
	case "twilio":
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, nil, nil, err
		}
		return messaging.NewTwilioService(client), nil, nil, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown messaging transport %q", *flags.transport)
	}
}
