package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/ysdkz/graycells/internal/api"
	"github.com/ysdkz/graycells/internal/flow"
	"github.com/ysdkz/graycells/internal/genai"
	"github.com/ysdkz/graycells/internal/line"
	"github.com/ysdkz/graycells/internal/lockfile"
	"github.com/ysdkz/graycells/internal/store"
	"github.com/ysdkz/graycells/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for graycells state data
	DefaultStateDir = "/var/lib/graycells"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "graycells.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// One instance per state directory. The flock is dropped automatically
	// if the process dies.
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	lineOpts := buildLineOptions(flags)
	storeOpts := buildStoreOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	engineOpts, location, err := buildEngineOptions(flags)
	if err != nil {
		slog.Error("Invalid engine configuration", "error", err)
		os.Exit(1)
	}
	apiOpts := buildAPIOptions(flags, location)

	slog.Info("Bootstrapping graycells with configured modules")
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr, "timezone", *flags.timezone)
	if err := api.Run(lineOpts, storeOpts, genaiOpts, engineOpts, apiOpts); err != nil {
		slog.Error("graycells failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("graycells exited successfully")
}

// Config holds environment configuration
type Config struct {
	ChannelSecret string
	ChannelToken  string
	DatabaseURL   string
	StateDir      string
	OpenAIKey     string
	OpenAIModel   string
	APIAddr       string
	Timezone      string
	ReminderCron  string
}

// Flags holds command line flag values
type Flags struct {
	stateDir      *string
	dbDSN         *string
	channelSecret *string
	channelToken  *string
	openaiKey     *string
	openaiModel   *string
	apiAddr       *string
	timezone      *string
	reminderCron  *string
}

// initializeLogger sets up structured logging; GRAYCELLS_DEBUG enables
// debug level.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("GRAYCELLS_DEBUG", false) {
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
		ChannelSecret: os.Getenv("LINE_CHANNEL_SECRET"),
		ChannelToken:  os.Getenv("LINE_CHANNEL_ACCESS_TOKEN"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		StateDir:      os.Getenv("GRAYCELLS_STATE_DIR"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   os.Getenv("OPENAI_MODEL"),
		APIAddr:       os.Getenv("API_ADDR"),
		Timezone:      os.Getenv("DIARY_TIMEZONE"),
		ReminderCron:  os.Getenv("REMINDER_CRON"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No GRAYCELLS_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// Without a database URL, fall back to SQLite in the state directory.
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"LINE_CHANNEL_SECRET_SET", config.ChannelSecret != "",
		"LINE_CHANNEL_ACCESS_TOKEN_SET", config.ChannelToken != "",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"GRAYCELLS_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_MODEL", config.OpenAIModel,
		"API_ADDR", config.APIAddr,
		"DIARY_TIMEZONE", config.Timezone,
		"REMINDER_CRON", config.ReminderCron)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:      flag.String("state-dir", config.StateDir, "state directory for graycells data (overrides $GRAYCELLS_STATE_DIR)"),
		dbDSN:         flag.String("db-dsn", config.DatabaseURL, "database DSN (overrides $DATABASE_URL)"),
		channelSecret: flag.String("line-channel-secret", config.ChannelSecret, "LINE channel secret (overrides $LINE_CHANNEL_SECRET)"),
		channelToken:  flag.String("line-channel-token", config.ChannelToken, "LINE channel access token (overrides $LINE_CHANNEL_ACCESS_TOKEN)"),
		openaiKey:     flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiModel:   flag.String("openai-model", config.OpenAIModel, "OpenAI model name (overrides $OPENAI_MODEL)"),
		apiAddr:       flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		timezone:      flag.String("timezone", config.Timezone, "IANA timezone for diary dates (overrides $DIARY_TIMEZONE)"),
		reminderCron:  flag.String("reminder-cron", config.ReminderCron, "cron schedule for the diary reminder (overrides $REMINDER_CRON)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"channelSecretSet", *flags.channelSecret != "",
		"channelTokenSet", *flags.channelToken != "",
		"openaiKeySet", *flags.openaiKey != "",
		"openaiModel", *flags.openaiModel,
		"apiAddr", *flags.apiAddr,
		"timezone", *flags.timezone,
		"reminderCron", *flags.reminderCron)

	// Re-derive the SQLite path when only the state directory was overridden.
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		return os.MkdirAll(*flags.stateDir, 0755)
	}
	stateDir := filepath.Dir(*flags.dbDSN)
	slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(*flags.stateDir, 0755)
}

// buildLineOptions constructs LINE client configuration options
func buildLineOptions(flags Flags) []line.Option {
	var lineOpts []line.Option
	if *flags.channelSecret != "" {
		lineOpts = append(lineOpts, line.WithChannelSecret(*flags.channelSecret))
	}
	if *flags.channelToken != "" {
		lineOpts = append(lineOpts, line.WithChannelToken(*flags.channelToken))
	}
	return lineOpts
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		slog.Debug("Configuring store", "dsn_type", store.DetectDSNType(*flags.dbDSN))
		storeOpts = append(storeOpts, store.WithDSN(*flags.dbDSN))
	} else {
		slog.Debug("No database DSN provided, will use in-memory store")
	}
	return storeOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.openaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.openaiModel))
	}
	return genaiOpts
}

// buildEngineOptions constructs conversation engine configuration options
// and returns the parsed diary timezone.
func buildEngineOptions(flags Flags) ([]flow.EngineOption, *time.Location, error) {
	var engineOpts []flow.EngineOption
	var location *time.Location
	if *flags.timezone != "" {
		loc, err := time.LoadLocation(*flags.timezone)
		if err != nil {
			return nil, nil, err
		}
		location = loc
		engineOpts = append(engineOpts, flow.WithLocation(loc))
	}
	return engineOpts, location, nil
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags, location *time.Location) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.reminderCron != "" {
		apiOpts = append(apiOpts, api.WithReminderCron(*flags.reminderCron))
	}
	if location != nil {
		apiOpts = append(apiOpts, api.WithLocation(location))
	}
	return apiOpts
}
