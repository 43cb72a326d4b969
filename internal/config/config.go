package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Config 儲存全域配置參數
type Config struct {
	Port            string
	Provider        string
	Model           string
	OllamaHost      string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string

	Store         string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SecretKey      string
	LogDir         string
	DefaultSession string
	SessionTTL     time.Duration
	SweepCron      string
	MaxSpecBytes   int64
	SkillTimeout   time.Duration
	ContextChars   int
	ContextTokens  int

	DocumentRoot string
	TemplateRoot string
}

// LoadConfig 負責初始化配置，支援 envfile 與環境變數
func LoadConfig() *Config {
	// 優先順序：當前目錄 > 執行檔目錄；先載入的值不會被覆蓋
	_ = godotenv.Load("envfile")
	if exe, err := os.Executable(); err == nil {
		_ = godotenv.Load(filepath.Join(filepath.Dir(exe), "envfile"))
	}

	return &Config{
		Port:            getEnv("PORT", "8080"),
		Provider:        getEnv("SKILLBRIDGE_PROVIDER", "ollama"),
		Model:           getEnv("SKILLBRIDGE_MODEL", ""),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),

		Store:         getEnv("SKILLBRIDGE_STORE", "sqlite"),
		SQLitePath:    getEnv("SKILLBRIDGE_SQLITE_PATH", filepath.Join("botmemory", "skillbridge.db")),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		SecretKey:      getEnv("SKILLBRIDGE_SECRET_KEY", ""),
		LogDir:         getEnv("SKILLBRIDGE_LOG_DIR", "botmemory"),
		DefaultSession: getEnv("SKILLBRIDGE_DEFAULT_SESSION", "default-session"),
		SessionTTL:     getEnvDuration("SKILLBRIDGE_SESSION_TTL", 720*time.Hour),
		SweepCron:      getEnv("SKILLBRIDGE_SWEEP_CRON", "@hourly"),
		MaxSpecBytes:   int64(getEnvInt("SKILLBRIDGE_MAX_SPEC_BYTES", 5<<20)),
		SkillTimeout:   getEnvDuration("SKILLBRIDGE_SKILL_TIMEOUT", 30*time.Second),
		ContextChars:   getEnvInt("SKILLBRIDGE_CONTEXT_CHARS", 50000),
		ContextTokens:  getEnvInt("SKILLBRIDGE_CONTEXT_TOKENS", 120000),

		DocumentRoot: getEnv("DocumentRoot", "www/html"),
		TemplateRoot: getEnv("TemplateRoot", "www/template"),
	}
}

// getEnv 是輔助函式，用來處理環境變數與預設值的邏輯；空字串視同未設定
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warnf("[Config] %s=%q 不是整數，使用預設值 %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warnf("[Config] %s=%q 不是時間長度，使用預設值 %s", key, v, fallback)
		return fallback
	}
	return d
}
