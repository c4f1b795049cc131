package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap/zapcore"

	"github.com/abdul-hamid-achik/testhost/packages/core/config"
	"github.com/abdul-hamid-achik/testhost/packages/core/events"
	"github.com/abdul-hamid-achik/testhost/packages/logger"
)

type webhook struct {
	*httptest.Server
	mu     sync.Mutex
	bodies []string
}

func newWebhook(t *testing.T, status int) *webhook {
	t.Helper()
	w := &webhook{}
	w.Server = httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.mu.Lock()
		w.bodies = append(w.bodies, string(body))
		w.mu.Unlock()
		rw.WriteHeader(status)
		_, _ = rw.Write([]byte("nope"))
	}))
	t.Cleanup(w.Close)
	return w
}

func (w *webhook) received() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.bodies...)
}

func init() {
	webhookRetryDelay = time.Millisecond
}

type recordingNotifier struct {
	got []*Summary
}

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) Notify(_ context.Context, s *Summary) error {
	r.got = append(r.got, s)
	return nil
}

func failed(name, msg string) *events.TestFailed {
	return &events.TestFailed{
		TestInfo: events.TestInfo{DisplayName: name, SourceFile: "suite.yaml", SourceLine: 7},
		Cause:    events.CauseAssertion,
		Messages: []string{msg},
	}
}

func summaryEvent(total, failed int) *events.ExecutionSummary {
	return &events.ExecutionSummary{
		AssemblyID: "a1",
		Assembly:   "Acme.Math",
		Summary: events.Summary{
			Totals:  events.Totals{Total: total, Failed: failed},
			Elapsed: 1500 * time.Millisecond,
		},
	}
}

func feed(t *testing.T, s *Sink, evs ...events.Event) {
	t.Helper()
	for _, ev := range evs {
		if !s.Interested(ev.Kind()) {
			continue
		}
		ok, err := s.OnEvent(ev)
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestShouldNotify(t *testing.T) {
	pass := &Summary{Total: 2, Passed: 2}
	fail := &Summary{Total: 2, Passed: 1, Failed: 1}
	cancelled := &Summary{Total: 1, Passed: 1, Cancelled: true}

	tests := []struct {
		on   string
		s    *Summary
		want bool
	}{
		{config.NotifyAlways, pass, true},
		{config.NotifyFailure, pass, false},
		{config.NotifyFailure, fail, true},
		{config.NotifyFailure, &Summary{Errors: 1}, true},
		{config.NotifySuccess, pass, true},
		{config.NotifySuccess, fail, false},
		{config.NotifySuccess, cancelled, false},
		{"", fail, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ShouldNotify(tt.on, tt.s), "%s %+v", tt.on, tt.s)
	}
}

func TestSink_CollectsSummary(t *testing.T) {
	rec := &recordingNotifier{}
	s := NewSink(config.NotifyFailure, []Notifier{rec})

	feed(t, s,
		&events.TestPassed{TestInfo: events.TestInfo{DisplayName: "Acme.Math.Adds"}},
		failed("Acme.Math.Breaks", "\x1b[31mexpected 1\x1b[0m\nat line 3"),
		summaryEvent(2, 1),
	)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	require.Len(t, rec.got, 1)
	got := rec.got[0]
	assert.Equal(t, []string{"Acme.Math"}, got.Assemblies)
	assert.Equal(t, 2, got.Total)
	assert.Equal(t, 1, got.Passed)
	assert.Equal(t, 1, got.Failed)
	assert.Equal(t, "1 test(s) failed", got.Title())
	require.Len(t, got.Failures, 1)
	assert.Equal(t, Failure{Name: "Acme.Math.Breaks", Location: "suite.yaml:7", Message: "expected 1"}, got.Failures[0])
}

func TestSink_PolicySkipsPassingRun(t *testing.T) {
	rec := &recordingNotifier{}
	s := NewSink(config.NotifyFailure, []Notifier{rec})
	feed(t, s, summaryEvent(3, 0))
	require.NoError(t, s.Close())
	assert.Empty(t, rec.got)
}

func TestSink_NothingRan(t *testing.T) {
	rec := &recordingNotifier{}
	s := NewSink(config.NotifyAlways, []Notifier{rec})
	require.NoError(t, s.Close())
	assert.Empty(t, rec.got)
}

func TestSink_TruncatesFailures(t *testing.T) {
	s := NewSink(config.NotifyAlways, nil)
	for i := 0; i < maxFailures+3; i++ {
		feed(t, s, failed("Acme.Math.Breaks"+string(rune('A'+i)), "boom"))
	}
	got := s.Summary()
	assert.Len(t, got.Failures, maxFailures)
	assert.Equal(t, 3, got.Truncated)
	assert.Equal(t, "Acme.Math.BreaksA", got.Failures[0].Name)
}

func TestSink_WebhookFailureIsLogged(t *testing.T) {
	hook := newWebhook(t, http.StatusInternalServerError)
	lggr, logs := logger.TestObserved(t, zapcore.WarnLevel)

	s := NewSink(config.NotifyAlways, []Notifier{NewSlackNotifier(hook.URL)}, WithLogger(lggr))
	feed(t, s, summaryEvent(1, 0))
	require.NoError(t, s.Close())

	assert.Len(t, hook.received(), webhookAttempts, "5xx answers are retried")
	entries := logs.FilterMessage("failed to send notification").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap()["err"], "slack: webhook returned status 500: nope")
}

func TestSlackNotifier(t *testing.T) {
	hook := newWebhook(t, http.StatusOK)
	n := NewSlackNotifier(hook.URL, WithSlackChannel("#ci"))
	n.now = func() time.Time { return time.Unix(1700000000, 0) }

	err := n.Notify(context.Background(), &Summary{
		Assemblies: []string{"Acme.Math"},
		Total:      2, Passed: 1, Failed: 1,
		Elapsed:  time.Second,
		Failures: []Failure{{Name: "Acme.Math.Breaks", Location: "suite.yaml:7", Message: "expected 1"}},
	})
	require.NoError(t, err)

	bodies := hook.received()
	require.Len(t, bodies, 1)
	body := bodies[0]
	assert.Equal(t, "#ci", gjson.Get(body, "channel").String())
	assert.Equal(t, "testhost", gjson.Get(body, "username").String())
	assert.Equal(t, "danger", gjson.Get(body, "attachments.0.color").String())
	assert.Equal(t, ":x: 1 test(s) failed", gjson.Get(body, "attachments.0.title").String())
	assert.Contains(t, gjson.Get(body, "attachments.0.text").String(), "`Acme.Math.Breaks` (suite.yaml:7)")
	assert.Equal(t, "Acme.Math", gjson.Get(body, "attachments.0.footer").String())
	assert.Equal(t, int64(1700000000), gjson.Get(body, "attachments.0.ts").Int())
	assert.Equal(t, "1", gjson.Get(body, `attachments.0.fields.#(title=="Failed").value`).String())
}

func TestTeamsNotifier(t *testing.T) {
	hook := newWebhook(t, http.StatusAccepted)
	n := NewTeamsNotifier(hook.URL)

	err := n.Notify(context.Background(), &Summary{Assemblies: []string{"Acme.Math"}, Total: 3, Passed: 3})
	require.NoError(t, err)

	bodies := hook.received()
	require.Len(t, bodies, 1)
	body := bodies[0]
	assert.Equal(t, "message", gjson.Get(body, "type").String())
	assert.Equal(t, "AdaptiveCard", gjson.Get(body, "attachments.0.content.type").String())
	assert.Equal(t, "All tests passed!", gjson.Get(body, "attachments.0.content.body.0.text").String())
	assert.Equal(t, "good", gjson.Get(body, "attachments.0.content.body.0.color").String())
}

func TestNotifier_ClientErrorIsNotRetried(t *testing.T) {
	hook := newWebhook(t, http.StatusBadRequest)

	err := NewSlackNotifier(hook.URL).Notify(context.Background(), &Summary{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook returned status 400: nope")
	assert.Len(t, hook.received(), 1)
}

func TestNotifier_CancelledContext(t *testing.T) {
	hook := newWebhook(t, http.StatusOK)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewTeamsNotifier(hook.URL).Notify(ctx, &Summary{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFromConfig(t *testing.T) {
	assert.Empty(t, FromConfig(nil))

	ns := FromConfig(&config.NotifyConfig{Slack: "https://hooks.example.com/s", SlackChannel: "#ci", Teams: "https://hooks.example.com/t"})
	require.Len(t, ns, 2)
	assert.Equal(t, "slack", ns[0].Name())
	assert.Equal(t, "#ci", ns[0].(*SlackNotifier).channel)
	assert.Equal(t, "teams", ns[1].Name())
}
