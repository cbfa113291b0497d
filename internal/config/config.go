package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	AnthropicMessagesURLDefault = "https://api.anthropic.com/v1/messages"
	AnthropicAPIVersion         = "2023-06-01"
	PerplexityBaseURLDefault    = "https://api.perplexity.ai"
	PerplexityNamePrefixDefault = "Perplexity/"

	// MaxThinkingBudget is the upper bound accepted for the thinking budget valve.
	MaxThinkingBudget = 16000
)

// AnthropicValves are the runtime toggles of the Anthropic pipe.
type AnthropicValves struct {
	APIKey               string
	MessagesURL          string
	EnableThinking       bool
	MaxOutputTokens      bool
	EnableToolChoice     bool
	EnableSystemPrompt   bool
	ThinkingBudgetTokens int
}

// PerplexityValves are the runtime toggles of the Perplexity pipe.
type PerplexityValves struct {
	APIKey     string
	BaseURL    string
	NamePrefix string
}

// BridgeConfig configures the ADK reverse-translation proxy.
type BridgeConfig struct {
	Addr       string
	BackendURL string
	AppName    string
	UserID     string
	Token      string
	Timeout    time.Duration
}

// Config holds the process-wide configuration. It is built once at startup
// and handed to every component by value; nothing mutates it afterwards.
type Config struct {
	Host        string
	Port        int
	Verbose     bool
	AccessToken string
	// StatusEvents adds "event: status" frames to chat completion streams.
	StatusEvents bool

	RequestTimeout time.Duration
	MaxAttempts    int
	RetryBaseDelay time.Duration
	TitleTimeout   time.Duration

	Anthropic  AnthropicValves
	Perplexity PerplexityValves
	Bridge     BridgeConfig
}

// LoadDotEnv loads variables from the given .env files (or ./.env when none
// are given). Variables already present in the environment win.
func LoadDotEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "error", err)
	}
}

// FromEnv creates a Config with defaults from environment variables.
func FromEnv() Config {
	return Config{
		Host:        envOrDefault("CHATPIPE_HOST", "127.0.0.1"),
		Port:        envInt("CHATPIPE_PORT", 8000),
		Verbose:     envBool("CHATPIPE_VERBOSE"),
		AccessToken: strings.TrimSpace(os.Getenv("CHATPIPE_ACCESS_TOKEN")),

		StatusEvents: envBool("CHATPIPE_STATUS_EVENTS"),

		RequestTimeout: envSeconds("CHATPIPE_REQUEST_TIMEOUT", 120*time.Second),
		MaxAttempts:    envInt("CHATPIPE_MAX_ATTEMPTS", 3),
		RetryBaseDelay: envSeconds("CHATPIPE_RETRY_BASE_DELAY", time.Second),
		TitleTimeout:   envSeconds("CHATPIPE_TITLE_TIMEOUT", 10*time.Second),

		Anthropic: AnthropicValves{
			APIKey:               strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
			MessagesURL:          envOrDefault("ANTHROPIC_BASE_URL", AnthropicMessagesURLDefault),
			EnableThinking:       envBoolDefault("ANTHROPIC_ENABLE_THINKING", false),
			MaxOutputTokens:      envBoolDefault("ANTHROPIC_MAX_OUTPUT_TOKENS", true),
			EnableToolChoice:     envBoolDefault("ANTHROPIC_ENABLE_TOOL_CHOICE", true),
			EnableSystemPrompt:   envBoolDefault("ANTHROPIC_ENABLE_SYSTEM_PROMPT", true),
			ThinkingBudgetTokens: clampBudget(envInt("ANTHROPIC_THINKING_BUDGET_TOKENS", MaxThinkingBudget)),
		},
		Perplexity: PerplexityValves{
			APIKey:     strings.TrimSpace(os.Getenv("PERPLEXITY_API_KEY")),
			BaseURL:    strings.TrimRight(envOrDefault("PERPLEXITY_API_BASE_URL", PerplexityBaseURLDefault), "/"),
			NamePrefix: envOrDefault("PERPLEXITY_NAME_PREFIX", PerplexityNamePrefixDefault),
		},
		Bridge: BridgeConfig{
			Addr:       envOrDefault("ADK_PROXY_ADDR", "127.0.0.1:8080"),
			BackendURL: strings.TrimRight(envOrDefault("ADK_BACKEND_URL", "http://127.0.0.1:8000"), "/"),
			AppName:    envOrDefault("ADK_APP_NAME", "adk2"),
			UserID:     envOrDefault("ADK_USER_ID", "u1"),
			Token:      strings.TrimSpace(os.Getenv("ADK_BACKEND_TOKEN")),
			Timeout:    envSeconds("ADK_TIMEOUT", 30*time.Second),
		},
	}
}

func clampBudget(v int) int {
	if v < 0 {
		return 0
	}
	if v > MaxThinkingBudget {
		return MaxThinkingBudget
	}
	return v
}

func envOrDefault(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ignoring invalid integer env value", "key", key, "value", v)
		return defaultVal
	}
	return i
}

func envSeconds(key string, defaultVal time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		slog.Warn("ignoring invalid duration env value", "key", key, "value", v)
		return defaultVal
	}
	return time.Duration(f * float64(time.Second))
}

func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func envBoolDefault(key string, defaultVal bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return defaultVal
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
