package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	DBPath      string
	CatalogPath string
	AIBaseURL   string
	AIKey       string
	AIModels    []string
	AITimeout   time.Duration
	AIMaxReply  int
	Tokens      map[string]string // token -> actor
	Timezone    string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("JOURNAL_PORT", "8080"),
		DBPath:      getEnv("JOURNAL_DB_PATH", ""),
		CatalogPath: getEnv("JOURNAL_CATALOG_PATH", ""),
		AIBaseURL:   getEnv("JOURNAL_AI_URL", "http://localhost:11434"),
		AIKey:       getEnv("JOURNAL_AI_KEY", ""),
		AIModels:    splitList(getEnv("JOURNAL_AI_MODELS", "qwen2.5:7b,qwen2.5:14b")),
		AITimeout:   time.Duration(getEnvInt("JOURNAL_AI_TIMEOUT_SECS", 60)) * time.Second,
		AIMaxReply:  getEnvInt("JOURNAL_AI_MAX_REPLY", 4000),
		Tokens:      parseTokens(getEnv("JOURNAL_TOKENS", "")),
		Timezone:    getEnv("JOURNAL_TIMEZONE", "Europe/London"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("JOURNAL_DB_PATH is required")
	}
	if len(c.Tokens) == 0 {
		return fmt.Errorf("JOURNAL_TOKENS is required (format: actor=token,actor=token)")
	}
	if len(c.AIModels) == 0 {
		return fmt.Errorf("JOURNAL_AI_MODELS must list at least one candidate model")
	}
	if c.AIMaxReply <= 0 {
		return fmt.Errorf("JOURNAL_AI_MAX_REPLY must be positive")
	}
	return nil
}

// ActorFromToken resolves a bearer token to the journal owner it
// authenticates.
func (c *Config) ActorFromToken(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	actor, ok := c.Tokens[token]
	return actor, ok
}

// Actors returns every configured journal owner.
func (c *Config) Actors() []string {
	var actors []string
	for _, a := range c.Tokens {
		actors = append(actors, a)
	}
	return actors
}

// parseTokens parses "actor=token,actor=token" into a token->actor map.
// Malformed pairs are skipped.
func parseTokens(raw string) map[string]string {
	tokens := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		tokens[parts[1]] = parts[0]
	}
	return tokens
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}
