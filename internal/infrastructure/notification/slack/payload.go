package slack

import (
	"strings"

	"github.com/dreschagin/monitor-dw/internal/domain/entity"
)

// Slack rejects section text longer than 3000 characters
// and header text longer than 150.
const (
	maxSectionText = 3000
	maxHeaderText  = 150
)

// Payload is the JSON body accepted by Slack incoming webhooks.
type Payload struct {
	Text   string  `json:"text"`
	Blocks []Block `json:"blocks,omitempty"`
}

// Block is a Block Kit layout block. Only the fields used here are modelled.
type Block struct {
	Type     string    `json:"type"`
	Text     *TextObj  `json:"text,omitempty"`
	Elements []Element `json:"elements,omitempty"`
}

// TextObj is a plain_text or mrkdwn text object.
type TextObj struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

// Element is a context text element or an actions button.
type Element struct {
	Type string   `json:"type"`
	Text *TextObj `json:"text,omitempty"`
	URL  string   `json:"url,omitempty"`
}

// BuildPayload renders an alert message as header, context, divider,
// one section per anomaly (or the body of a plain message) and an optional actions row with links.
func BuildPayload(msg *entity.AlertMessage) Payload {
	payload := Payload{Text: msg.Text}

	if msg.Title != "" {
		payload.Blocks = append(payload.Blocks, Block{
			Type: "header",
			Text: &TextObj{Type: "plain_text", Text: truncate(msg.Title, maxHeaderText), Emoji: true},
		})
	}

	if msg.Footer != "" {
		payload.Blocks = append(payload.Blocks, Block{
			Type:     "context",
			Elements: []Element{{Type: "mrkdwn", Text: &TextObj{Type: "mrkdwn", Text: msg.Footer}}},
		})
	}

	payload.Blocks = append(payload.Blocks, Block{Type: "divider"})

	// A message without sections carries its body in Text only.
	if len(msg.Sections) == 0 && msg.Text != "" && msg.Text != msg.Title {
		payload.Blocks = append(payload.Blocks, Block{
			Type: "section",
			Text: &TextObj{Type: "mrkdwn", Text: truncate(msg.Text, maxSectionText)},
		})
	}

	for _, section := range msg.Sections {
		text := section.Summary
		if len(section.Rows) > 0 {
			text += "\n" + strings.Join(section.Rows, "\n")
		}
		payload.Blocks = append(payload.Blocks, Block{
			Type: "section",
			Text: &TextObj{Type: "mrkdwn", Text: truncate(text, maxSectionText)},
		})
	}

	if len(msg.Links) > 0 {
		buttons := make([]Element, 0, len(msg.Links))
		for _, link := range msg.Links {
			buttons = append(buttons, Element{
				Type: "button",
				Text: &TextObj{Type: "plain_text", Text: link.Label},
				URL:  link.URL,
			})
		}
		payload.Blocks = append(payload.Blocks, Block{Type: "actions", Elements: buttons})
	}

	return payload
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
