package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTO_REFRESH_INTERVAL", "")
	t.Setenv("SLACK_WEBHOOK_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Alerting.CycleInterval != 60*time.Second {
		t.Fatalf("expected default interval 60s, got %s", cfg.Alerting.CycleInterval)
	}
	if cfg.Alerting.RedshiftThresholdMinutes != 10 {
		t.Fatalf("expected threshold 10, got %d", cfg.Alerting.RedshiftThresholdMinutes)
	}
	if cfg.Alerting.KPIAlertPct != 0.20 {
		t.Fatalf("expected kpi pct 0.20, got %v", cfg.Alerting.KPIAlertPct)
	}
	if cfg.Alerting.Location == nil || cfg.Alerting.Timezone != "America/Sao_Paulo" {
		t.Fatalf("unexpected timezone %q", cfg.Alerting.Timezone)
	}
	if cfg.Alerting.TestCooldown != 8*time.Second {
		t.Fatalf("expected test cooldown 8s, got %s", cfg.Alerting.TestCooldown)
	}
	if cfg.Slack.MaxAttempts != 4 {
		t.Fatalf("expected 4 slack attempts, got %d", cfg.Slack.MaxAttempts)
	}
	if cfg.Slack.AllowedPrefix != "https://hooks.slack.com/services/" {
		t.Fatalf("unexpected slack prefix %q", cfg.Slack.AllowedPrefix)
	}
	if cfg.Warehouse.Port != "5439" {
		t.Fatalf("expected redshift port 5439, got %s", cfg.Warehouse.Port)
	}
}

func TestLoadRejectsIntervalOutOfRange(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{name: "too short", value: "5s"},
		{name: "too long", value: "11m"},
		{name: "garbage", value: "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AUTO_REFRESH_INTERVAL", tt.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for interval %q", tt.value)
			}
		})
	}
}

func TestLoadRequiresAuthToken(t *testing.T) {
	t.Setenv("AUTH_ENABLED", "true")
	t.Setenv("AUTH_BEARER_TOKEN", "")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "AUTH_BEARER_TOKEN") {
		t.Fatalf("expected AUTH_BEARER_TOKEN error, got %v", err)
	}
}

func TestLoadRejectsInvalidNumbers(t *testing.T) {
	t.Setenv("REDSHIFT_THRESHOLD_MIN", "ten")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "invalid REDSHIFT_THRESHOLD_MIN") {
		t.Fatalf("expected threshold parse error, got %v", err)
	}
}

func TestDSNIncludesApplicationName(t *testing.T) {
	db := DatabaseConfig{
		Host: "warehouse", Port: "5439", User: "u", Password: "p", Database: "dev",
		SSLMode: "require", ApplicationName: "MonitorDW",
	}

	want := "host=warehouse port=5439 user=u password=p dbname=dev sslmode=require application_name=MonitorDW"
	if got := db.DSN(); got != want {
		t.Fatalf("DSN() = %q, want %q", got, want)
	}
}

func TestSplitCSV(t *testing.T) {
	got := splitCSV(" a, b ,,c ")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected split result %#v", got)
	}
}
