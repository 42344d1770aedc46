package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/groupsum/GroupSum/internal/bot"
	"github.com/groupsum/GroupSum/internal/genai"
	"github.com/groupsum/GroupSum/internal/messaging"
	"github.com/groupsum/GroupSum/internal/store"
	"github.com/groupsum/GroupSum/internal/util"
	"github.com/groupsum/GroupSum/internal/whatsapp"
	"github.com/groupsum/GroupSum/internal/workflow"
	"github.com/joho/godotenv"
)

// DefaultDBFileName is the default SQLite database filename for the message
// store.
const DefaultDBFileName = "groupsum.db"

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	waOpts := buildWhatsAppOptions(flags)
	storeOpts := buildStoreOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	twilioOpts := buildTwilioOptions(config)
	botOpts := buildBotOptions(flags)

	slog.Info("Bootstrapping GroupSum with configured modules")
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "channel", *flags.channel)
	if err := bot.Run(waOpts, storeOpts, genaiOpts, twilioOpts, botOpts); err != nil {
		slog.Error("GroupSum failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("GroupSum exited successfully")
}

// Config holds environment configuration.
type Config struct {
	Channel         string
	NumericCode     bool
	DbDriver        string
	WhatsAppDSN     string
	DatabaseURL     string
	StateDir        string
	OpenAIKey       string
	OpenAIBaseURL   string
	OpenAIModel     string
	MessageLimit    int
	ProviderTimeout int
	TwilioSID       string
	TwilioToken     string
	TwilioFrom      string
	TwilioWebhook   string
}

// Flags holds command line flag values.
type Flags struct {
	qrOutput        *string
	numeric         *bool
	channel         *string
	stateDir        *string
	dbDriver        *string
	dbDSN           *string
	openaiKey       *string
	openaiBaseURL   *string
	openaiModel     *string
	messageLimit    *int
	providerTimeout *int
}

// initializeLogger sets up structured logging with debug level.
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and
// the .env file.
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		Channel:         os.Getenv("CHANNEL"),
		NumericCode:     util.ParseBoolEnv("WHATSAPP_NUMERIC_CODE", false),
		DbDriver:        os.Getenv("WHATSAPP_DB_DRIVER"),
		WhatsAppDSN:     os.Getenv("WHATSAPP_DB_DSN"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		StateDir:        os.Getenv("GROUPSUM_STATE_DIR"),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:   os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:     os.Getenv("OPENAI_MODEL"),
		MessageLimit:    util.ParseIntEnv("DIGEST_MESSAGE_LIMIT", workflow.DefaultMessageLimit),
		ProviderTimeout: util.ParseIntEnv("PROVIDER_TIMEOUT_SECONDS", int(workflow.DefaultProviderTimeout/time.Second)),
		TwilioSID:       os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:     os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:      os.Getenv("TWILIO_FROM_NUMBER"),
		TwilioWebhook:   os.Getenv("TWILIO_WEBHOOK_ADDR"),
	}

	if config.StateDir == "" {
		config.StateDir = bot.DefaultStateDir
		slog.Debug("No GROUPSUM_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.Channel == "" {
		config.Channel = bot.ChannelWhatsApp
	}

	// Prefer the specific DSN, then DATABASE_URL, then SQLite in the
	// state directory.
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = config.DatabaseURL
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.WhatsAppDSN)
	}

	slog.Debug("environment variables loaded",
		"CHANNEL", config.Channel,
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"GROUPSUM_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_MODEL", config.OpenAIModel,
		"DIGEST_MESSAGE_LIMIT", config.MessageLimit,
		"PROVIDER_TIMEOUT_SECONDS", config.ProviderTimeout)

	return config
}

// parseCommandLineFlags parses command line arguments with environment
// defaults.
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:        flag.String("qr-output", "", "path to write login QR code"),
		numeric:         flag.Bool("numeric-code", config.NumericCode, "use numeric login code instead of QR code (overrides $WHATSAPP_NUMERIC_CODE)"),
		channel:         flag.String("channel", config.Channel, "chat transport: whatsapp or twilio (overrides $CHANNEL)"),
		stateDir:        flag.String("state-dir", config.StateDir, "state directory for GroupSum data (overrides $GROUPSUM_STATE_DIR)"),
		dbDriver:        flag.String("db-driver", config.DbDriver, "database driver for the WhatsApp device store (overrides $WHATSAPP_DB_DRIVER)"),
		dbDSN:           flag.String("db-dsn", config.WhatsAppDSN, "database DSN for the device and message stores (overrides $WHATSAPP_DB_DSN or $DATABASE_URL)"),
		openaiKey:       flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiBaseURL:   flag.String("openai-base-url", config.OpenAIBaseURL, "OpenAI-compatible API base URL (overrides $OPENAI_BASE_URL)"),
		openaiModel:     flag.String("openai-model", config.OpenAIModel, "summarization model (overrides $OPENAI_MODEL)"),
		messageLimit:    flag.Int("message-limit", config.MessageLimit, "recent messages per digest (overrides $DIGEST_MESSAGE_LIMIT)"),
		providerTimeout: flag.Int("provider-timeout", config.ProviderTimeout, "provider call timeout in seconds (overrides $PROVIDER_TIMEOUT_SECONDS)"),
	}

	flag.Parse()

	// A custom state directory moves the default SQLite file with it.
	if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// buildWhatsAppOptions constructs WhatsApp configuration options.
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.dbDriver != "" {
		waOpts = append(waOpts, whatsapp.WithDBDriver(*flags.dbDriver))
	}
	if *flags.dbDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.dbDSN))
	}
	return waOpts
}

// buildStoreOptions constructs message-store configuration options.
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	} else {
		slog.Debug("No database DSN provided, will use in-memory store")
	}
	return storeOpts
}

// buildGenAIOptions constructs summarizer configuration options.
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.openaiBaseURL != "" {
		genaiOpts = append(genaiOpts, genai.WithBaseURL(*flags.openaiBaseURL))
	}
	if *flags.openaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.openaiModel))
	}
	return genaiOpts
}

// buildTwilioOptions constructs Twilio channel options.
func buildTwilioOptions(config Config) []messaging.TwilioOption {
	var twilioOpts []messaging.TwilioOption
	if config.TwilioSID != "" {
		twilioOpts = append(twilioOpts, messaging.WithTwilioAccountSID(config.TwilioSID))
	}
	if config.TwilioToken != "" {
		twilioOpts = append(twilioOpts, messaging.WithTwilioAuthToken(config.TwilioToken))
	}
	if config.TwilioFrom != "" {
		twilioOpts = append(twilioOpts, messaging.WithTwilioFromNumber(config.TwilioFrom))
	}
	if config.TwilioWebhook != "" {
		twilioOpts = append(twilioOpts, messaging.WithTwilioWebhookAddr(config.TwilioWebhook))
	}
	return twilioOpts
}

// buildBotOptions constructs bot runtime options.
func buildBotOptions(flags Flags) []bot.Option {
	botOpts := []bot.Option{
		bot.WithStateDir(*flags.stateDir),
		bot.WithChannel(*flags.channel),
	}
	if *flags.messageLimit > 0 {
		botOpts = append(botOpts, bot.WithMessageLimit(*flags.messageLimit))
	}
	if *flags.providerTimeout > 0 {
		botOpts = append(botOpts, bot.WithProviderTimeout(time.Duration(*flags.providerTimeout)*time.Second))
	}
	return botOpts
}
