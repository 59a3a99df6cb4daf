package slack

import (
	"strings"
	"testing"

	"github.com/dreschagin/monitor-dw/internal/domain/entity"
	"github.com/dreschagin/monitor-dw/internal/domain/valueobject"
)

func TestBuildPayloadSectionsAndLinks(t *testing.T) {
	msg := testMessage()
	msg.Sections = append(msg.Sections, entity.AlertSection{
		Kind:    valueobject.AnomalyRefresh,
		Summary: "*Power BI last refresh (UTC):* 09/03/2025 06:00:00 UTC",
	})
	msg.Links = []entity.AlertLink{{Label: "Open Jira filter", URL: "https://jira.example.com/issues/?filter=1"}}

	payload := BuildPayload(msg)

	types := make([]string, 0, len(payload.Blocks))
	for _, block := range payload.Blocks {
		types = append(types, block.Type)
	}
	if got := strings.Join(types, ","); got != "header,context,divider,section,section,actions" {
		t.Fatalf("unexpected block layout %s", got)
	}

	queries := payload.Blocks[3].Text.Text
	if !strings.HasPrefix(queries, "*Queries over 10 min:* 3\n• `pid:1`") {
		t.Fatalf("unexpected queries section %q", queries)
	}

	button := payload.Blocks[5].Elements[0]
	if button.Type != "button" || button.URL != "https://jira.example.com/issues/?filter=1" {
		t.Fatalf("unexpected button %+v", button)
	}
}

func TestBuildPayloadTruncatesLongSections(t *testing.T) {
	msg := &entity.AlertMessage{
		Text: "x",
		Sections: []entity.AlertSection{
			{Kind: valueobject.AnomalyQueries, Summary: strings.Repeat("a", maxSectionText+100)},
		},
	}

	payload := BuildPayload(msg)
	text := payload.Blocks[len(payload.Blocks)-1].Text.Text
	if len([]rune(text)) != maxSectionText || !strings.HasSuffix(text, "…") {
		t.Fatalf("expected truncated section, got %d runes", len([]rune(text)))
	}
}

func TestBuildPayloadLongTestMessageKeepsHeaderWithinLimit(t *testing.T) {
	text := strings.Repeat("проверка ", 200)
	msg := &entity.AlertMessage{
		Title:  "🧪 Monitor DW test message",
		Text:   text,
		Footer: "⏱️ 2025-03-10 14:00 • manual test",
	}

	payload := BuildPayload(msg)

	types := make([]string, 0, len(payload.Blocks))
	for _, block := range payload.Blocks {
		types = append(types, block.Type)
	}
	if got := strings.Join(types, ","); got != "header,context,divider,section" {
		t.Fatalf("unexpected block layout %s", got)
	}
	if payload.Blocks[0].Text.Text != msg.Title {
		t.Fatalf("unexpected header %q", payload.Blocks[0].Text.Text)
	}
	if payload.Blocks[3].Text.Text != text || payload.Text != text {
		t.Fatalf("expected operator text in body and fallback")
	}
}

func TestBuildPayloadTruncatesLongHeader(t *testing.T) {
	msg := &entity.AlertMessage{Title: strings.Repeat("h", 400), Text: "body"}

	payload := BuildPayload(msg)
	header := payload.Blocks[0].Text.Text
	if len([]rune(header)) != maxHeaderText || !strings.HasSuffix(header, "…") {
		t.Fatalf("expected header truncated to %d runes, got %d", maxHeaderText, len([]rune(header)))
	}
}
