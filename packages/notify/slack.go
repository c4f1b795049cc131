package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// SlackNotifier sends notifications to Slack via webhook
type SlackNotifier struct {
	webhookURL string
	channel    string
	username   string
	iconEmoji  string
	client     *http.Client
	now        func() time.Time
}

// SlackOption is a functional option for SlackNotifier
type SlackOption func(*SlackNotifier)

// WithSlackChannel sets the Slack channel
func WithSlackChannel(channel string) SlackOption {
	return func(s *SlackNotifier) {
		s.channel = channel
	}
}

// WithSlackUsername sets the Slack bot username
func WithSlackUsername(username string) SlackOption {
	return func(s *SlackNotifier) {
		s.username = username
	}
}

// WithSlackClient replaces the HTTP client
func WithSlackClient(c *http.Client) SlackOption {
	return func(s *SlackNotifier) {
		s.client = c
	}
}

// NewSlackNotifier creates a new Slack notifier
func NewSlackNotifier(webhookURL string, opts ...SlackOption) *SlackNotifier {
	s := &SlackNotifier{
		webhookURL: webhookURL,
		username:   "testhost",
		iconEmoji:  ":test_tube:",
		client:     http.DefaultClient,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *SlackNotifier) Name() string {
	return "slack"
}

type slackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text,omitempty"`
	Fields []slackField `json:"fields,omitempty"`
	Footer string       `json:"footer,omitempty"`
	TS     int64        `json:"ts,omitempty"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// Notify sends a notification to Slack
func (s *SlackNotifier) Notify(ctx context.Context, summary *Summary) error {
	color, emoji := "good", ":white_check_mark:"
	switch {
	case summary.Cancelled:
		color, emoji = "warning", ":warning:"
	case !summary.Success():
		color, emoji = "danger", ":x:"
	}

	fields := []slackField{
		{Title: "Total", Value: fmt.Sprint(summary.Total), Short: true},
		{Title: "Passed", Value: fmt.Sprint(summary.Passed), Short: true},
		{Title: "Failed", Value: fmt.Sprint(summary.Failed), Short: true},
		{Title: "Skipped", Value: fmt.Sprint(summary.Skipped), Short: true},
		{Title: "Duration", Value: summary.Elapsed.Round(time.Millisecond).String(), Short: true},
	}
	if summary.NotRun > 0 {
		fields = append(fields, slackField{Title: "Not run", Value: fmt.Sprint(summary.NotRun), Short: true})
	}
	if summary.Errors > 0 {
		fields = append(fields, slackField{Title: "Errors", Value: fmt.Sprint(summary.Errors), Short: true})
	}

	var text strings.Builder
	if len(summary.Failures) > 0 {
		text.WriteString("*Failed tests:*\n")
		for _, f := range summary.Failures {
			fmt.Fprintf(&text, "• `%s`", f.Name)
			if f.Location != "" {
				fmt.Fprintf(&text, " (%s)", f.Location)
			}
			text.WriteString("\n")
			if f.Message != "" {
				fmt.Fprintf(&text, "  - %s\n", f.Message)
			}
		}
		if summary.Truncated > 0 {
			fmt.Fprintf(&text, "_and %d more_\n", summary.Truncated)
		}
	}

	msg := slackMessage{
		Channel:   s.channel,
		Username:  s.username,
		IconEmoji: s.iconEmoji,
		Attachments: []slackAttachment{{
			Color:  color,
			Title:  fmt.Sprintf("%s %s", emoji, summary.Title()),
			Text:   text.String(),
			Fields: fields,
			Footer: strings.Join(summary.Assemblies, ", "),
			TS:     s.now().Unix(),
		}},
	}

	return post(ctx, s.client, s.webhookURL, msg)
}

const webhookAttempts = 3

var webhookRetryDelay = 500 * time.Millisecond

// post sends msg as JSON and expects a 2xx answer. Transport errors and
// 5xx answers are retried, anything else is final.
func post(ctx context.Context, client *http.Client, url string, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return retry.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return retry.Unrecoverable(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send notification: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			err := fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			if resp.StatusCode < 500 {
				return retry.Unrecoverable(err)
			}
			return err
		}
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(webhookAttempts),
		retry.Delay(webhookRetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}
