package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// TeamsNotifier sends notifications to Microsoft Teams via webhook
type TeamsNotifier struct {
	webhookURL string
	client     *http.Client
}

// TeamsOption is a functional option for TeamsNotifier
type TeamsOption func(*TeamsNotifier)

// WithTeamsClient replaces the HTTP client
func WithTeamsClient(c *http.Client) TeamsOption {
	return func(t *TeamsNotifier) {
		t.client = c
	}
}

// NewTeamsNotifier creates a new Teams notifier
func NewTeamsNotifier(webhookURL string, opts ...TeamsOption) *TeamsNotifier {
	t := &TeamsNotifier{
		webhookURL: webhookURL,
		client:     http.DefaultClient,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

func (t *TeamsNotifier) Name() string {
	return "teams"
}

// teamsMessage is a message carrying one Adaptive Card
type teamsMessage struct {
	Type        string      `json:"type"`
	Attachments []teamsCard `json:"attachments"`
}

type teamsCard struct {
	ContentType string           `json:"contentType"`
	ContentURL  *string          `json:"contentUrl"`
	Content     teamsCardContent `json:"content"`
}

type teamsCardContent struct {
	Schema  string       `json:"$schema"`
	Type    string       `json:"type"`
	Version string       `json:"version"`
	Body    []teamsBlock `json:"body"`
}

type teamsBlock struct {
	Type      string        `json:"type"`
	Size      string        `json:"size,omitempty"`
	Weight    string        `json:"weight,omitempty"`
	Text      string        `json:"text,omitempty"`
	Color     string        `json:"color,omitempty"`
	Wrap      bool          `json:"wrap,omitempty"`
	Columns   []teamsColumn `json:"columns,omitempty"`
	Spacing   string        `json:"spacing,omitempty"`
	Separator bool          `json:"separator,omitempty"`
}

type teamsColumn struct {
	Type  string       `json:"type"`
	Width string       `json:"width"`
	Items []teamsBlock `json:"items"`
}

func teamsStat(label, value, color string) teamsColumn {
	return teamsColumn{
		Type:  "Column",
		Width: "stretch",
		Items: []teamsBlock{
			{Type: "TextBlock", Text: "**" + label + "**", Wrap: true},
			{Type: "TextBlock", Text: value, Color: color, Wrap: true},
		},
	}
}

// Notify sends a notification to Microsoft Teams
func (t *TeamsNotifier) Notify(ctx context.Context, summary *Summary) error {
	color := "good"
	switch {
	case summary.Cancelled:
		color = "warning"
	case !summary.Success():
		color = "attention"
	}

	body := []teamsBlock{
		{
			Type:   "TextBlock",
			Size:   "Large",
			Weight: "Bolder",
			Text:   summary.Title(),
			Color:  color,
		},
		{
			Type:      "ColumnSet",
			Separator: true,
			Spacing:   "Medium",
			Columns: []teamsColumn{
				teamsStat("Total", fmt.Sprint(summary.Total), ""),
				teamsStat("Passed", fmt.Sprint(summary.Passed), "good"),
				teamsStat("Failed", fmt.Sprint(summary.Failed), "attention"),
				teamsStat("Skipped", fmt.Sprint(summary.Skipped), "warning"),
				teamsStat("Duration", summary.Elapsed.Round(time.Millisecond).String(), ""),
			},
		},
	}

	if len(summary.Failures) > 0 {
		body = append(body, teamsBlock{
			Type:      "TextBlock",
			Text:      "**Failed tests:**",
			Separator: true,
			Spacing:   "Medium",
		})
		for _, f := range summary.Failures {
			text := fmt.Sprintf("- `%s`", f.Name)
			if f.Location != "" {
				text += fmt.Sprintf(" (%s)", f.Location)
			}
			if f.Message != "" {
				text += "\n  - " + f.Message
			}
			body = append(body, teamsBlock{Type: "TextBlock", Text: text, Wrap: true})
		}
		if summary.Truncated > 0 {
			body = append(body, teamsBlock{Type: "TextBlock", Text: fmt.Sprintf("_and %d more_", summary.Truncated)})
		}
	}

	body = append(body, teamsBlock{
		Type:      "TextBlock",
		Text:      "_" + strings.Join(summary.Assemblies, ", ") + "_",
		Separator: true,
		Spacing:   "Medium",
	})

	msg := teamsMessage{
		Type: "message",
		Attachments: []teamsCard{{
			ContentType: "application/vnd.microsoft.card.adaptive",
			Content: teamsCardContent{
				Schema:  "http://adaptivecards.io/schemas/adaptive-card.json",
				Type:    "AdaptiveCard",
				Version: "1.2",
				Body:    body,
			},
		}},
	}

	return post(ctx, t.client, t.webhookURL, msg)
}
