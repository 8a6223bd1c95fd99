package config

import (
	"cmp"
	"errors"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "dev"

var (
	ErrHelp                     = errors.New("help requested")
	ErrMissingRedditCredentials = errors.New("REDDIT_CLIENT_ID and REDDIT_CLIENT_SECRET must be set")
	ErrMissingLLMKey            = errors.New("missing LLM API key")
	ErrMissingTelegram          = errors.New("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set for the telegram UI")
)

const (
	UIConsole  = "console"
	UITelegram = "telegram"

	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type rawCfg struct {
	// Reddit script app
	RedditClientID     string `long:"reddit-client-id" env:"REDDIT_CLIENT_ID" description:"Reddit app client id (required)"`
	RedditClientSecret string `long:"reddit-client-secret" env:"REDDIT_CLIENT_SECRET" description:"Reddit app client secret (required)"`
	RedditUserAgent    string `long:"reddit-user-agent" env:"REDDIT_USER_AGENT" default:"agenthive/1.0" description:"User agent sent to Reddit"`
	RedditUsername     string `long:"reddit-username" env:"REDDIT_USERNAME" description:"Account used for posting"`
	RedditPassword     string `long:"reddit-password" env:"REDDIT_PASSWORD" description:"Password of the posting account"`

	// LLM
	LLMProvider  string `long:"llm-provider" env:"LLM_PROVIDER" default:"gemini" choice:"gemini" choice:"openai" description:"LLM provider"`
	GoogleAPIKey string `long:"gemini-api-key" env:"GOOGLE_GEMINI_API_KEY" description:"Gemini API key"`
	GeminiAPIKey string `long:"gemini-key" env:"GEMINI_API_KEY" hidden:"true" description:"Fallback Gemini API key"`
	OpenAIAPIKey string `long:"openai-api-key" env:"OPENAI_API_KEY" description:"OpenAI API key"`
	OpenAIURL    string `long:"openai-base-url" env:"OPENAI_BASE_URL" description:"OpenAI compatible endpoint"`
	LLMModel     string `long:"llm-model" env:"LLM_MODEL" description:"Preferred model, tried before the built-in fallbacks"`

	// Workflow
	Subreddit string `long:"subreddit" env:"SUBREDDIT" default:"LLM" description:"Target community without the r/ prefix"`
	MaxRounds int    `long:"max-rounds" env:"MAX_ROUNDS" default:"20" description:"Group chat round budget"`
	RolesFile string `long:"roles-file" env:"ROLES_FILE" description:"YAML file overriding the built-in roles"`

	// Human channel
	UI             string `long:"ui" env:"UI" default:"console" choice:"console" choice:"telegram" description:"Where approval questions are asked"`
	TelegramToken  string `long:"telegram-token" env:"TELEGRAM_BOT_TOKEN" description:"Telegram bot token"`
	TelegramChatID string `long:"telegram-chat-id" env:"TELEGRAM_CHAT_ID" description:"Telegram chat that answers approval questions"`

	// Runtime
	MetricsAddr string `long:"metrics-addr" env:"METRICS_ADDR" description:"Serve /metrics and /healthz on this address (disabled when empty)"`
	AppEnv      string `long:"env" env:"APP_ENV" default:"development" choice:"development" choice:"production" description:"Runtime environment"`
	NodeID      int64  `long:"node-id" env:"NODE_ID" default:"1" description:"Snowflake node id for proposal ids (0-1023)"`
}

type RedditConfig struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
	Username     string
	Password     string
}

type LLMConfig struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
}

type TelegramConfig struct {
	Token  string
	ChatID string
}

type Config struct {
	Env         string
	Version     string
	Reddit      RedditConfig
	LLM         LLMConfig
	Subreddit   string
	MaxRounds   int
	RolesFile   string
	UI          string
	Telegram    TelegramConfig
	MetricsAddr string
	NodeID      int64
}

func (c Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// Load reads .env when present, then parses flags and environment. It
// returns ErrHelp after printing usage for --help.
func Load(args []string) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	var raw rawCfg
	parser := flags.NewParser(&raw, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, ErrHelp
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Config{
		Env:     raw.AppEnv,
		Version: cmp.Or(Version, "unknown"),
		Reddit: RedditConfig{
			ClientID:     raw.RedditClientID,
			ClientSecret: raw.RedditClientSecret,
			UserAgent:    raw.RedditUserAgent,
			Username:     raw.RedditUsername,
			Password:     raw.RedditPassword,
		},
		LLM: LLMConfig{
			Provider: raw.LLMProvider,
			BaseURL:  raw.OpenAIURL,
			Model:    raw.LLMModel,
		},
		Subreddit:   raw.Subreddit,
		MaxRounds:   raw.MaxRounds,
		RolesFile:   raw.RolesFile,
		UI:          raw.UI,
		Telegram:    TelegramConfig{Token: raw.TelegramToken, ChatID: raw.TelegramChatID},
		MetricsAddr: raw.MetricsAddr,
		NodeID:      raw.NodeID,
	}

	switch cfg.LLM.Provider {
	case "openai":
		cfg.LLM.APIKey = raw.OpenAIAPIKey
	default:
		cfg.LLM.APIKey = cmp.Or(raw.GoogleAPIKey, raw.GeminiAPIKey)
	}

	return cfg, nil
}

// LLMKeyVar names the environment variable holding the key for the
// configured provider.
func (c Config) LLMKeyVar() string {
	if c.LLM.Provider == "openai" {
		return "OPENAI_API_KEY"
	}
	return "GOOGLE_GEMINI_API_KEY"
}

// Validate checks the settings the workflow cannot start without.
func (c Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("%w: Please set %s environment variable", ErrMissingLLMKey, c.LLMKeyVar())
	}
	if c.Reddit.ClientID == "" || c.Reddit.ClientSecret == "" {
		return ErrMissingRedditCredentials
	}
	if c.UI == UITelegram && (c.Telegram.Token == "" || c.Telegram.ChatID == "") {
		return ErrMissingTelegram
	}
	if c.MaxRounds < 2 {
		return fmt.Errorf("max rounds must be at least 2, got %d", c.MaxRounds)
	}
	return nil
}
