package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cresceapp/cresce/internal/api"
	"github.com/cresceapp/cresce/internal/buffer"
	"github.com/cresceapp/cresce/internal/flow"
	"github.com/cresceapp/cresce/internal/genai"
	"github.com/cresceapp/cresce/internal/messaging"
	"github.com/cresceapp/cresce/internal/store"
	"github.com/cresceapp/cresce/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for Cresce state data
	DefaultStateDir = "/var/lib/cresce"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "cresce.db"
)

func main() {
	config := loadEnvironmentConfig()
	initializeLogger()
	flags := parseCommandLineFlags(config)

	st, err := buildStore(flags)
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	engine := flow.NewEngine(st, buffer.New())

	var genClient genai.ClientInterface
	if *flags.openaiKey != "" {
		client, err := genai.NewClient(genai.WithAPIKey(*flags.openaiKey), genai.WithModel(*flags.openaiModel))
		if err != nil {
			slog.Error("Failed to create GenAI client", "error", err)
			os.Exit(1)
		}
		genClient = client
	} else {
		slog.Warn("No OpenAI API key configured; /turn endpoint disabled")
	}

	var msgService messaging.Service
	if *flags.twilioSID != "" {
		svc, err := messaging.NewTwilioService(
			messaging.WithAccountSID(*flags.twilioSID),
			messaging.WithAuthToken(*flags.twilioToken),
			messaging.WithFromNumber(*flags.twilioFrom),
		)
		if err != nil {
			slog.Error("Failed to create Twilio messaging service", "error", err)
			os.Exit(1)
		}
		msgService = svc
		defer svc.Stop()
	} else {
		slog.Warn("No Twilio credentials configured; message delivery disabled")
	}

	srv := api.NewServer(engine, genClient, msgService, api.WithAddr(*flags.apiAddr))

	// Shut down cleanly on SIGINT/SIGTERM.
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		s := <-sig
		slog.Info("Shutdown signal received", "signal", s.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("Graceful shutdown failed", "error", err)
		}
	}()

	slog.Info("Bootstrapping Cresce", "addr", *flags.apiAddr, "genai", genClient != nil, "messaging", msgService != nil)
	if err := srv.Run(); err != nil {
		slog.Error("Cresce failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Cresce exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	StateDir    string
	OpenAIKey   string
	OpenAIModel string
	APIAddr     string
	TwilioSID   string
	TwilioToken string
	TwilioFrom  string
}

// Flags holds command line flag values
type Flags struct {
	stateDir    *string
	dbDSN       *string
	openaiKey   *string
	openaiModel *string
	apiAddr     *string
	twilioSID   *string
	twilioToken *string
	twilioFrom  *string
}

// initializeLogger sets up structured logging; CRESCE_DEBUG enables debug level.
func initializeLogger() {
	level := slog.LevelInfo
	if util.BoolEnv("CRESCE_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	return Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    util.EnvOrDefault("CRESCE_STATE_DIR", DefaultStateDir),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel: os.Getenv("OPENAI_MODEL"),
		APIAddr:     util.EnvOrDefault("API_ADDR", api.DefaultAddr),
		TwilioSID:   os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken: os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:  os.Getenv("TWILIO_FROM_NUMBER"),
	}
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for Cresce data (overrides $CRESCE_STATE_DIR)"),
		dbDSN:       flag.String("db-dsn", config.DatabaseURL, "database DSN: postgres:// URL or SQLite file path (overrides $DATABASE_URL)"),
		openaiKey:   flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiModel: flag.String("openai-model", config.OpenAIModel, "OpenAI chat model (overrides $OPENAI_MODEL)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		twilioSID:   flag.String("twilio-account-sid", config.TwilioSID, "Twilio account SID (overrides $TWILIO_ACCOUNT_SID)"),
		twilioToken: flag.String("twilio-auth-token", config.TwilioToken, "Twilio auth token (overrides $TWILIO_AUTH_TOKEN)"),
		twilioFrom:  flag.String("twilio-from-number", config.TwilioFrom, "Twilio WhatsApp sender number (overrides $TWILIO_FROM_NUMBER)"),
	}
	flag.Parse()
	return flags
}

// buildStore opens the persistent store: a postgres:// DSN selects
// PostgreSQL, anything else is treated as a SQLite file path. The store is
// wrapped with transient-error retries.
func buildStore(flags Flags) (store.Store, error) {
	dsn := *flags.dbDSN
	if dsn == "" {
		if err := os.MkdirAll(*flags.stateDir, 0o755); err != nil {
			return nil, err
		}
		dsn = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Info("No database DSN provided, defaulting to SQLite", "path", dsn)
	}

	var inner store.Store
	var err error
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		inner, err = store.NewPostgresStore(store.WithPostgresDSN(dsn))
	} else {
		inner, err = store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
	}
	if err != nil {
		return nil, err
	}
	return store.NewRetryingStore(inner, store.DefaultRetryAttempts), nil
}
