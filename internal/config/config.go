package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment    string
	AppName        string
	AppURL         string
	Port           string
	LogLevel       slog.Level
	SQLitePath     string
	MigrationsPath string
	SecretKey      string

	Komga KomgaConfig
	Mylar MylarConfig

	Schedule ScheduleConfig
	SMTP     SMTPConfig

	NotificationEmail string

	MagicLinkExpireMinutes   int
	AccessTokenExpireMinutes int
}

type KomgaConfig struct {
	URL      string
	Username string
	Password string
	APIKey   string
}

type MylarConfig struct {
	URL    string
	APIKey string
}

// Configured reports whether the optional download manager is set up.
// An unset URL or key means the upcoming feed is silently skipped.
func (m MylarConfig) Configured() bool {
	return strings.TrimSpace(m.URL) != "" && strings.TrimSpace(m.APIKey) != ""
}

type ScheduleConfig struct {
	Enabled   bool
	DayOfWeek string
	Hour      int
	Minute    int
	Timezone  string
}

// Location resolves the configured timezone, falling back to UTC.
func (s ScheduleConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	StartTLS bool
}

func (s SMTPConfig) Configured() bool {
	return strings.TrimSpace(s.Host) != "" && strings.TrimSpace(s.From) != ""
}

// fileConfig mirrors the optional YAML config file. Environment variables
// always win over file values.
type fileConfig struct {
	AppURL            string `yaml:"app_url"`
	KomgaURL          string `yaml:"komga_url"`
	KomgaUsername     string `yaml:"komga_username"`
	KomgaPassword     string `yaml:"komga_password"`
	KomgaAPIKey       string `yaml:"komga_api_key"`
	MylarURL          string `yaml:"mylar_url"`
	MylarAPIKey       string `yaml:"mylar_api_key"`
	ScheduleDayOfWeek string `yaml:"schedule_day_of_week"`
	ScheduleHour      *int   `yaml:"schedule_hour"`
	ScheduleMinute    *int   `yaml:"schedule_minute"`
	Timezone          string `yaml:"timezone"`
	SMTPHost          string `yaml:"smtp_host"`
	SMTPPort          *int   `yaml:"smtp_port"`
	SMTPUsername      string `yaml:"smtp_username"`
	SMTPPassword      string `yaml:"smtp_password"`
	SMTPFrom          string `yaml:"smtp_from"`
	NotificationEmail string `yaml:"notification_email"`
}

func Load() (Config, error) {
	_ = godotenv.Load()

	file, err := loadFile(getEnv("CONFIG_FILE", ""))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Environment:    getEnv("APP_ENV", "development"),
		AppName:        getEnv("APP_NAME", "wednesday"),
		AppURL:         getEnv("APP_URL", firstNonEmpty(file.AppURL, "http://localhost:8080")),
		Port:           getEnv("APP_PORT", "8080"),
		SQLitePath:     getEnv("SQLITE_PATH", "./data/wednesday.sqlite"),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "./migrations"),
		SecretKey:      getEnv("SECRET_KEY", "change-this-to-a-random-string"),
		Komga: KomgaConfig{
			URL:      getEnv("KOMGA_URL", firstNonEmpty(file.KomgaURL, "http://localhost:25600")),
			Username: getEnv("KOMGA_USERNAME", file.KomgaUsername),
			Password: getEnv("KOMGA_PASSWORD", file.KomgaPassword),
			APIKey:   getEnv("KOMGA_API_KEY", file.KomgaAPIKey),
		},
		Mylar: MylarConfig{
			URL:    getEnv("MYLAR_URL", file.MylarURL),
			APIKey: getEnv("MYLAR_API_KEY", file.MylarAPIKey),
		},
		Schedule: ScheduleConfig{
			Enabled:   getEnvAsBool("SCHEDULE_ENABLED", true),
			DayOfWeek: getEnv("SCHEDULE_DAY_OF_WEEK", firstNonEmpty(file.ScheduleDayOfWeek, "wed")),
			Hour:      getEnvAsInt("SCHEDULE_HOUR", intOr(file.ScheduleHour, 10)),
			Minute:    getEnvAsInt("SCHEDULE_MINUTE", intOr(file.ScheduleMinute, 0)),
			Timezone:  getEnv("TIMEZONE", firstNonEmpty(file.Timezone, "America/New_York")),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", file.SMTPHost),
			Port:     getEnvAsInt("SMTP_PORT", intOr(file.SMTPPort, 587)),
			Username: getEnv("SMTP_USERNAME", file.SMTPUsername),
			Password: getEnv("SMTP_PASSWORD", file.SMTPPassword),
			From:     getEnv("SMTP_FROM", file.SMTPFrom),
			StartTLS: getEnvAsBool("SMTP_STARTTLS", true),
		},
		NotificationEmail:        getEnv("NOTIFICATION_EMAIL", file.NotificationEmail),
		MagicLinkExpireMinutes:   getEnvAsInt("MAGIC_LINK_EXPIRE_MINUTES", 15),
		AccessTokenExpireMinutes: getEnvAsInt("ACCESS_TOKEN_EXPIRE_MINUTES", 60*24*7),
	}

	if cfg.Schedule.Hour < 0 || cfg.Schedule.Hour > 23 {
		return Config{}, fmt.Errorf("SCHEDULE_HOUR %d out of range 0-23", cfg.Schedule.Hour)
	}
	if cfg.Schedule.Minute < 0 || cfg.Schedule.Minute > 59 {
		return Config{}, fmt.Errorf("SCHEDULE_MINUTE %d out of range 0-59", cfg.Schedule.Minute)
	}
	if _, err := time.LoadLocation(cfg.Schedule.Timezone); err != nil {
		return Config{}, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Schedule.Timezone, err)
	}

	level, err := parseLogLevel(getEnv("LOG_LEVEL", "INFO"))
	if err != nil {
		return Config{}, err
	}
	cfg.LogLevel = level

	return cfg, nil
}

func loadFile(path string) (fileConfig, error) {
	if strings.TrimSpace(path) == "" {
		return fileConfig{}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read config file %s: %w", path, err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(content, &file); err != nil {
		return fileConfig{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return file, nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q, expected DEBUG|INFO|WARN|ERROR", raw)
	}
}

func getEnv(key string, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvAsBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func intOr(value *int, fallback int) int {
	if value == nil {
		return fallback
	}
	return *value
}
