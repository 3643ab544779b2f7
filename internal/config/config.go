package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath     string
	RawMailDir string
	OutputDir  string

	ServerAddr     string
	UploadMaxBytes int64

	LogLevel  string
	LogFormat string

	GeminiAPIBaseURL string
	GeminiAPIKey     string
	GeminiModel      string
	GeminiMaxRetries int
	GeminiTimeoutMs  int
	GeminiBackoffMs  int

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool

	ListenerProvider     string
	ListenerLabel        string
	ListenerIntervalSec  int
	ListenerFetchMax     int
	ListenerProcessBatch int
	ListenerAutoExport   bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:     getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),
		RawMailDir: getEnv("MAIL_RAW_DIR", filepath.Join(cwd, "data", "raw")),
		OutputDir:  getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		ServerAddr:     getEnv("SERVER_ADDR", ":8000"),
		UploadMaxBytes: int64(getEnvInt("UPLOAD_MAX_BYTES", 20<<20)),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		GeminiAPIBaseURL: getEnv("GEMINI_API_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-flash-latest"),
		GeminiMaxRetries: getEnvInt("GEMINI_MAX_RETRIES", 3),
		GeminiTimeoutMs:  getEnvInt("GEMINI_TIMEOUT_MS", 30000),
		GeminiBackoffMs:  getEnvInt("GEMINI_BACKOFF_MS", 1000),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),

		ListenerProvider:     getEnv("REPORT_LISTENER_PROVIDER", "imap"),
		ListenerLabel:        getEnv("REPORT_LISTENER_LABEL", "INBOX"),
		ListenerIntervalSec:  getEnvInt("REPORT_LISTENER_INTERVAL_SEC", 60),
		ListenerFetchMax:     getEnvInt("REPORT_LISTENER_FETCH_MAX", 20),
		ListenerProcessBatch: getEnvInt("REPORT_LISTENER_PROCESS_BATCH", 20),
		ListenerAutoExport:   getEnvBool("REPORT_LISTENER_AUTO_EXPORT", true),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
