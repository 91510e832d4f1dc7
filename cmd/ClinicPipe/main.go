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

	"github.com/joho/godotenv"

	"github.com/ClinicPipe/ClinicPipe/internal/api"
	"github.com/ClinicPipe/ClinicPipe/internal/backend"
	"github.com/ClinicPipe/ClinicPipe/internal/engine"
	"github.com/ClinicPipe/ClinicPipe/internal/flow"
	"github.com/ClinicPipe/ClinicPipe/internal/models"
	"github.com/ClinicPipe/ClinicPipe/internal/notify"
	"github.com/ClinicPipe/ClinicPipe/internal/scheduler"
	"github.com/ClinicPipe/ClinicPipe/internal/store"
	"github.com/ClinicPipe/ClinicPipe/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for ClinicPipe state data
	DefaultStateDir = "/var/lib/clinicpipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "clinicpipe.db"
	// DefaultReminderCron runs the appointment reminder job at 18:00 daily
	DefaultReminderCron = "0 18 * * *"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	st, err := openStore(flags)
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	eng := engine.New()
	srv := api.NewServer(st, eng, buildAPIOptions(flags)...)

	client, err := backend.NewClient(buildBackendOptions(flags)...)
	if err != nil {
		slog.Error("Failed to configure collaborator client", "error", err)
		os.Exit(1)
	}

	notifier := buildNotifier(flags)
	flow.Register(eng, flow.Deps{
		Availability: client,
		Appointments: client,
		Catalog:      client,
		Events:       eng,
		Notifier:     notifier,
	})

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	reminders := notify.NewReminderJob(st, notifier)
	if err := sched.AddJob(*flags.reminderCron, func() {
		reminders.Run(context.Background())
	}); err != nil {
		slog.Error("Failed to schedule reminder job", "error", err, "cron", *flags.reminderCron)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("Shutting down ClinicPipe")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("Server shutdown failed", "error", err)
		}
	}()

	slog.Info("Bootstrapping ClinicPipe",
		"dsn_set", *flags.dbDSN != "",
		"api_addr", *flags.apiAddr,
		"backend_url", *flags.backendURL,
		"reminder_cron", *flags.reminderCron)
	if err := srv.Run(); err != nil {
		slog.Error("ClinicPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("ClinicPipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL  string
	StateDir     string
	APIAddr      string
	BackendURL   string
	ReminderCron string
	SMSEnabled   bool
}

// Flags holds command line flag values
type Flags struct {
	stateDir     *string
	dbDSN        *string
	apiAddr      *string
	backendURL   *string
	reminderCron *string
	smsEnabled   *bool
}

// initializeLogger sets up structured logging; CLINICPIPE_DEBUG enables
// debug-level output.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("CLINICPIPE_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
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
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		StateDir:     os.Getenv("CLINICPIPE_STATE_DIR"),
		APIAddr:      os.Getenv("API_ADDR"),
		BackendURL:   os.Getenv("BACKEND_BASE_URL"),
		ReminderCron: os.Getenv("REMINDER_SCHEDULE"),
		SMSEnabled:   util.ParseBoolEnv("SMS_ENABLED", false),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No CLINICPIPE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.ReminderCron == "" {
		config.ReminderCron = DefaultReminderCron
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"CLINICPIPE_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"BACKEND_BASE_URL_SET", config.BackendURL != "",
		"REMINDER_SCHEDULE", config.ReminderCron,
		"SMS_ENABLED", config.SMSEnabled)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:     flag.String("state-dir", config.StateDir, "state directory for ClinicPipe data (overrides $CLINICPIPE_STATE_DIR)"),
		dbDSN:        flag.String("db-dsn", config.DatabaseURL, "database DSN, Postgres URL or SQLite path (overrides $DATABASE_URL)"),
		apiAddr:      flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		backendURL:   flag.String("backend-url", config.BackendURL, "collaborator backend base URL (overrides $BACKEND_BASE_URL)"),
		reminderCron: flag.String("reminder-cron", config.ReminderCron, "cron schedule for the reminder job (overrides $REMINDER_SCHEDULE)"),
		smsEnabled:   flag.Bool("sms", config.SMSEnabled, "deliver SMS notifications through Twilio (overrides $SMS_ENABLED)"),
	}

	flag.Parse()

	// The collaborator defaults to this process's own API.
	if *flags.backendURL == "" {
		addr := *flags.apiAddr
		if addr == "" {
			addr = ":8080"
		}
		if strings.HasPrefix(addr, ":") {
			addr = "localhost" + addr
		}
		*flags.backendURL = "http://" + addr
		slog.Debug("No backend URL provided, defaulting to own API", "backend_url", *flags.backendURL)
	}

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"backendURL", *flags.backendURL,
		"reminderCron", *flags.reminderCron,
		"sms", *flags.smsEnabled)

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	return nil
}

// openStore selects the storage backend from the DSN.
func openStore(flags Flags) (store.Store, error) {
	dsn := *flags.dbDSN
	if dsn == "" {
		slog.Debug("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
		return store.NewPostgresStore(store.WithDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", dsn)
	return store.NewSQLiteStore(store.WithDSN(dsn))
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	return apiOpts
}

// buildBackendOptions constructs collaborator client configuration options
func buildBackendOptions(flags Flags) []backend.Option {
	var opts []backend.Option
	if *flags.backendURL != "" {
		opts = append(opts, backend.WithBaseURL(*flags.backendURL))
	}
	return opts
}

// buildNotifier wires the notification dispatcher. SMS goes through Twilio
// when enabled and configured; everything else is logged.
func buildNotifier(flags Flags) *notify.Dispatcher {
	senders := map[models.NotificationChannel]notify.Sender{
		models.NotificationChannelEmail: notify.LogSender{},
		models.NotificationChannelSMS:   notify.LogSender{},
	}
	if *flags.smsEnabled {
		twilioSender, err := notify.NewTwilioSender()
		if err != nil {
			slog.Warn("Twilio sender unavailable, SMS notifications will be logged", "error", err)
		} else {
			senders[models.NotificationChannelSMS] = twilioSender
		}
	}
	return notify.NewDispatcher(senders)
}
