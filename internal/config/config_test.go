package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.AppName != "wednesday" {
		t.Fatalf("app name = %q", cfg.AppName)
	}
	if cfg.Port != "8080" {
		t.Fatalf("port = %q", cfg.Port)
	}
	if !cfg.Schedule.Enabled {
		t.Fatal("schedule disabled by default")
	}
	if cfg.Schedule.DayOfWeek != "wed" || cfg.Schedule.Hour != 10 || cfg.Schedule.Minute != 0 {
		t.Fatalf("schedule = %+v", cfg.Schedule)
	}
	if cfg.Schedule.Timezone != "America/New_York" {
		t.Fatalf("timezone = %q", cfg.Schedule.Timezone)
	}
	if cfg.Mylar.Configured() {
		t.Fatal("mylar configured with no settings")
	}
	if cfg.SMTP.Configured() {
		t.Fatal("smtp configured with no settings")
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("log level = %v", cfg.LogLevel)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("KOMGA_URL", "http://komga.local:25600")
	t.Setenv("KOMGA_API_KEY", "key-123")
	t.Setenv("MYLAR_URL", "http://mylar.local:8090")
	t.Setenv("MYLAR_API_KEY", "mylar-key")
	t.Setenv("SCHEDULE_HOUR", "7")
	t.Setenv("SCHEDULE_MINUTE", "30")
	t.Setenv("TIMEZONE", "Europe/Berlin")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Komga.URL != "http://komga.local:25600" || cfg.Komga.APIKey != "key-123" {
		t.Fatalf("komga = %+v", cfg.Komga)
	}
	if !cfg.Mylar.Configured() {
		t.Fatal("mylar not configured")
	}
	if cfg.Schedule.Hour != 7 || cfg.Schedule.Minute != 30 {
		t.Fatalf("schedule = %+v", cfg.Schedule)
	}
	if cfg.Schedule.Location().String() != "Europe/Berlin" {
		t.Fatalf("location = %s", cfg.Schedule.Location())
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("log level = %v", cfg.LogLevel)
	}
}

func TestLoadFileValuesYieldToEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wednesday.yml")
	content := []byte(`
komga_url: http://file-komga:25600
komga_api_key: file-key
schedule_hour: 6
notification_email: file@example.com
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("KOMGA_URL", "http://env-komga:25600")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Environment wins; the file fills the gaps.
	if cfg.Komga.URL != "http://env-komga:25600" {
		t.Fatalf("komga url = %q", cfg.Komga.URL)
	}
	if cfg.Komga.APIKey != "file-key" {
		t.Fatalf("komga api key = %q", cfg.Komga.APIKey)
	}
	if cfg.Schedule.Hour != 6 {
		t.Fatalf("schedule hour = %d", cfg.Schedule.Hour)
	}
	if cfg.NotificationEmail != "file@example.com" {
		t.Fatalf("notification email = %q", cfg.NotificationEmail)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Run("hour out of range", func(t *testing.T) {
		t.Setenv("SCHEDULE_HOUR", "24")
		if _, err := Load(); err == nil {
			t.Fatal("accepted hour 24")
		}
	})

	t.Run("minute out of range", func(t *testing.T) {
		t.Setenv("SCHEDULE_MINUTE", "60")
		if _, err := Load(); err == nil {
			t.Fatal("accepted minute 60")
		}
	})

	t.Run("unknown timezone", func(t *testing.T) {
		t.Setenv("TIMEZONE", "Mars/Olympus")
		if _, err := Load(); err == nil {
			t.Fatal("accepted an unknown timezone")
		}
	})

	t.Run("bad log level", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "LOUD")
		if _, err := Load(); err == nil {
			t.Fatal("accepted an unknown log level")
		}
	})

	t.Run("missing config file", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", "/does/not/exist.yml")
		if _, err := Load(); err == nil {
			t.Fatal("accepted a missing config file")
		}
	})
}

func TestScheduleLocationFallsBackToUTC(t *testing.T) {
	schedule := ScheduleConfig{Timezone: "Not/AZone"}
	if loc := schedule.Location(); loc != time.UTC {
		t.Fatalf("location = %v, want UTC", loc)
	}
}
