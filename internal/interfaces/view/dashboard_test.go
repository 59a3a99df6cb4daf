package view

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dreschagin/monitor-dw/internal/application/dto"
	"github.com/dreschagin/monitor-dw/internal/domain/entity"
)

func render(t *testing.T, data PageData) string {
	t.Helper()
	var b strings.Builder
	if err := Dashboard(data).Render(context.Background(), &b); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	return b.String()
}

func TestDashboardPlaceholderBeforeFirstCycle(t *testing.T) {
	html := render(t, PageData{GeneratedAt: time.Now()})
	if !strings.Contains(html, "Waiting for the first monitoring cycle") {
		t.Fatal("expected placeholder")
	}
	if !strings.Contains(html, `id="alerts-banner" class="banner banner-warning hidden"`) {
		t.Fatal("expected hidden banner")
	}
}

func TestDashboardRendersCardsAndBanner(t *testing.T) {
	status := &dto.StatusDTO{
		Cards: []dto.SourceCardDTO{
			{Kind: "queries", Title: "Queries over 10 min", Value: "3", Bad: true},
			{Kind: "tickets", Title: "Open tickets (Jira)", Value: "0", Error: "<timeout>"},
		},
		Dispatch: &dto.DispatchResultDTO{Caption: "🔔 Slack alert: ok"},
		Alerting: dto.NewAlertingDTO(true, entity.DispatchStateSnapshot{AlertsSuspended: true}),
	}

	html := render(t, PageData{Status: status, JiraFilterURL: "https://jira.example/filter", GeneratedAt: time.Now()})

	for _, want := range []string{
		`class="card bad" data-kind="queries"`,
		"🔔 Slack alert: ok",
		"source unavailable: &lt;timeout&gt;",
		`href="https://jira.example/filter"`,
		"Slack alerts disabled",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("expected %q in page", want)
		}
	}
	if strings.Contains(html, "<timeout>") {
		t.Error("collector error must be escaped")
	}
}

func TestDashboardRendersDisabledSource(t *testing.T) {
	status := &dto.StatusDTO{
		Cards: []dto.SourceCardDTO{
			{Kind: "refresh", Title: "Power BI last refresh (UTC)", Value: "disabled", Disabled: true},
		},
		Alerting: dto.NewAlertingDTO(true, entity.DispatchStateSnapshot{}),
	}

	html := render(t, PageData{Status: status, GeneratedAt: time.Now()})

	if !strings.Contains(html, `class="card disabled" data-kind="refresh"`) {
		t.Errorf("expected disabled card, got %s", html)
	}
	if strings.Contains(html, "card bad") {
		t.Error("disabled source must not render as bad")
	}
}
