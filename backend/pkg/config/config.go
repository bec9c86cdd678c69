package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// App
	Port string
	Env  string

	// Knowledge Service
	KnowledgeURL string

	// Completion Service
	LiteLLMURL       string
	ModelID          string
	OpenRouterAPIKey string

	// Pipeline tunables
	FactQueryLimit      int     // facts fetched during memory retrieval
	GraphQueryLimit     int     // facts fetched for graph visualization
	ProcedureLimit      int     // entries returned per procedure lookup
	MaxCompletionTokens int     // output ceiling passed to the Completion Service
	Temperature         float64 // variability passed to the Completion Service

	// Presentation fallbacks
	DefaultUserName      string
	DefaultAssistantName string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		Env:                  getEnv("ENV", "development"),
		KnowledgeURL:         getEnv("KNOWLEDGE_URL", "http://localhost:8001"),
		LiteLLMURL:           getEnv("LITELLM_URL", "http://localhost:4000"),
		ModelID:              getEnv("MODEL_ID", "openrouter/anthropic/claude-3.5-sonnet"),
		OpenRouterAPIKey:     getEnv("OPENROUTER_API_KEY", ""),
		FactQueryLimit:       getEnvInt("FACT_QUERY_LIMIT", 10),
		GraphQueryLimit:      getEnvInt("GRAPH_QUERY_LIMIT", 50),
		ProcedureLimit:       getEnvInt("PROCEDURE_LIMIT", 10),
		MaxCompletionTokens:  getEnvInt("MAX_COMPLETION_TOKENS", 1024),
		Temperature:          getEnvFloat("TEMPERATURE", 0.7),
		DefaultUserName:      getEnv("DEFAULT_USER_NAME", "User"),
		DefaultAssistantName: getEnv("DEFAULT_ASSISTANT_NAME", "Assistant"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.KnowledgeURL == "" {
		return fmt.Errorf("KNOWLEDGE_URL is required")
	}
	if c.LiteLLMURL == "" {
		return fmt.Errorf("LITELLM_URL is required")
	}
	if c.ModelID == "" {
		return fmt.Errorf("MODEL_ID is required")
	}
	if c.FactQueryLimit <= 0 {
		return fmt.Errorf("FACT_QUERY_LIMIT must be positive")
	}
	if c.GraphQueryLimit <= 0 {
		return fmt.Errorf("GRAPH_QUERY_LIMIT must be positive")
	}
	// OpenRouter API key is optional; LiteLLM accepts a dummy key in development
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var result float64
		if _, err := fmt.Sscanf(value, "%f", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
