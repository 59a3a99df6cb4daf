package app

import (
	"context"
	"testing"
	"time"

	"github.com/dreschagin/monitor-dw/pkg/config"
	"github.com/dreschagin/monitor-dw/pkg/logger"
)

func minimalConfig() *config.Config {
	return &config.Config{
		Alerting: config.AlertingConfig{
			RedshiftThresholdMinutes: 10,
			KPIAlertPct:              0.1,
			Location:                 time.UTC,
			CycleInterval:            time.Minute,
			CycleTimeout:             30 * time.Second,
			TestCooldown:             8 * time.Second,
		},
		Worker: config.WorkerConfig{Port: "8091"},
	}
}

func TestBuildWithoutExternalSystems(t *testing.T) {
	c, err := Build(context.Background(), minimalConfig(), logger.New("error"), Options{Service: "test"})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if c.Hub == nil {
		t.Error("expected WebSocket hub in dashboard mode")
	}
	if c.Runner == nil || c.Monitor == nil || c.Dispatcher == nil {
		t.Fatal("expected cycle components")
	}
	if c.History != nil || c.Ledger != nil || c.Cache != nil || c.Workflows != nil || c.Archive != nil {
		t.Errorf("expected optional components to be disabled, got %+v", c)
	}
	if c.HistoryUseCase() != nil {
		t.Error("expected nil history use case without database")
	}
	if c.Delivery.Configured() {
		t.Error("expected webhook to be unconfigured")
	}

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}

func TestBuildHeadlessSkipsHub(t *testing.T) {
	c, err := Build(context.Background(), minimalConfig(), logger.New("error"), Options{Headless: true})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if c.Hub != nil {
		t.Error("expected no hub in headless mode")
	}
}

func TestBuildRejectsInvalidInterval(t *testing.T) {
	cfg := minimalConfig()
	cfg.Alerting.CycleInterval = 0

	if _, err := Build(context.Background(), cfg, logger.New("error"), Options{Headless: true}); err == nil {
		t.Fatal("expected error for zero cycle interval")
	}
}

func TestCycleWithoutSourcesIsHealthy(t *testing.T) {
	c, err := Build(context.Background(), minimalConfig(), logger.New("error"), Options{Headless: true})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	report, err := c.Runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if report.Flags.AnyBad() {
		t.Errorf("disabled sources must not raise flags, got %+v", report.Flags)
	}
	if len(report.Disabled) != 3 {
		t.Errorf("expected queries, refresh and tickets disabled, got %v", report.Disabled)
	}
}
