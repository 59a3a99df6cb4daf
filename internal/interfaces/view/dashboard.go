package view

//go:generate templ generate

import (
	"strconv"
	"time"

	"github.com/dreschagin/monitor-dw/internal/application/dto"
)

// PageData данные страницы дашборда
type PageData struct {
	Title           string
	Status          *dto.StatusDTO
	RefreshInterval time.Duration
	KestraEnabled   bool
	HistoryEnabled  bool
	WebhookPrefix   string
	RedshiftConsole string
	JiraFilterURL   string
	AuthEnabled     bool
	GeneratedAt     time.Time
	DisplayLocation *time.Location
}

func pageTitle(data PageData) string {
	if data.Title == "" {
		return "Monitor DW"
	}
	return data.Title
}

func refreshSeconds(data PageData) string {
	return strconv.Itoa(int(data.RefreshInterval / time.Second))
}

func authFlag(data PageData) string {
	return strconv.FormatBool(data.AuthEnabled)
}

func renderedAt(data PageData) string {
	loc := data.DisplayLocation
	if loc == nil {
		loc = time.UTC
	}
	return data.GeneratedAt.In(loc).Format("2006-01-02 15:04:05 MST")
}

func bannerClass(status *dto.StatusDTO) string {
	if bannerText(status) == "" {
		return "banner banner-warning hidden"
	}
	return "banner banner-warning"
}

func bannerText(status *dto.StatusDTO) string {
	if status == nil {
		return ""
	}
	return status.Alerting.Banner
}

// cardClass: отключенный источник не бывает ни ok, ни bad
func cardClass(card dto.SourceCardDTO) string {
	switch {
	case card.Disabled:
		return "card disabled"
	case card.Bad:
		return "card bad"
	default:
		return "card ok"
	}
}

func cardLink(kind string, data PageData) string {
	switch kind {
	case "queries":
		return data.RedshiftConsole
	case "tickets":
		return data.JiraFilterURL
	default:
		return ""
	}
}

func dispatchCaption(status *dto.StatusDTO) string {
	if status == nil || status.Dispatch == nil {
		return ""
	}
	return status.Dispatch.Caption
}

func webhookPlaceholder(data PageData) string {
	prefix := data.WebhookPrefix
	if prefix == "" {
		prefix = "https://hooks.slack.com/services/"
	}
	return prefix + "… (optional)"
}
