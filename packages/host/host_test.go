package host

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/abdul-hamid-achik/testhost/packages/core/config"
	"github.com/abdul-hamid-achik/testhost/packages/core/framework"
	"github.com/abdul-hamid-achik/testhost/packages/core/options"
	"github.com/abdul-hamid-achik/testhost/packages/logger"
	"github.com/abdul-hamid-achik/testhost/packages/sink"
)

var _ sink.Sink = (*nodeSink)(nil)

const suitePath = "suite.yaml"

type recordingPublisher struct {
	mu        sync.Mutex
	nodes     []NodeUpdate
	artifacts []Artifact
	nodeErr   error
}

func (p *recordingPublisher) PublishNode(u NodeUpdate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.nodeErr != nil {
		return p.nodeErr
	}
	p.nodes = append(p.nodes, u)
	return nil
}

func (p *recordingPublisher) PublishArtifact(a Artifact) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.artifacts = append(p.artifacts, a)
	return nil
}

// final returns the last state published for each display name
func (p *recordingPublisher) final() map[string]NodeUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]NodeUpdate)
	for _, u := range p.nodes {
		out[u.DisplayName] = u
	}
	return out
}

func (p *recordingPublisher) states(name string) []NodeState {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []NodeState
	for _, u := range p.nodes {
		if u.DisplayName == name {
			out = append(out, u.State)
		}
	}
	return out
}

func testCase(method string, body framework.Body) *framework.TestCase {
	return &framework.TestCase{
		ID:          framework.CaseID(suitePath, "Acme.Math", method, ""),
		DisplayName: "Acme.Math." + method,
		Namespace:   "Acme",
		Class:       "Acme.Math",
		Method:      method,
		Body:        body,
	}
}

func suite(cases ...*framework.TestCase) framework.Static {
	return framework.Static{{
		ID:    framework.AssemblyID(suitePath),
		Name:  "suite",
		Path:  suitePath,
		Cases: cases,
	}}
}

func mixedSuite() framework.Static {
	timeout := testCase("Hangs", func(ctx context.Context, _ *framework.T) error {
		<-ctx.Done()
		return ctx.Err()
	})
	timeout.Timeout = 10 * time.Millisecond

	explicit := testCase("Manual", func(context.Context, *framework.T) error { return nil })
	explicit.Explicit = true

	skipped := testCase("Later", nil)
	skipped.SkipReason = "not ready"

	return suite(
		testCase("Adds", func(context.Context, *framework.T) error { return nil }),
		testCase("Breaks", func(context.Context, *framework.T) error { return framework.Fail("expected 1, got 2") }),
		testCase("Crashes", func(context.Context, *framework.T) error { return errors.New("connection refused") }),
		timeout,
		explicit,
		skipped,
	)
}

func newFramework(t *testing.T, src framework.Source, pub Publisher) *Framework {
	t.Helper()
	return New(src, pub,
		WithLogger(logger.Test(t)),
		WithVersion("1.2.3"),
		WithResolveOptions(options.WithCPUs(4), options.WithIdentity("alice", "build01")),
	)
}

func TestExecuteRequest_RunMapsNodeStates(t *testing.T) {
	pub := &recordingPublisher{}
	f := newFramework(t, mixedSuite(), pub)
	require.NoError(t, f.CreateSession("s1"))

	resp, err := f.ExecuteRequest(context.Background(), "s1", Request{
		Kind:    RequestRun,
		Options: options.Map{"parallel": {"none"}, "seed": {"1"}},
	})
	require.NoError(t, err)
	require.NoError(t, f.CloseSession(context.Background(), "s1"))

	assert.Equal(t, 6, resp.Result.Total.Total)
	assert.Empty(t, resp.Artifacts)

	final := pub.final()
	assert.Equal(t, StatePassed, final["Acme.Math.Adds"].State)
	assert.Equal(t, StateFailed, final["Acme.Math.Breaks"].State)
	assert.Equal(t, "expected 1, got 2", final["Acme.Math.Breaks"].Message)
	assert.Equal(t, StateError, final["Acme.Math.Crashes"].State)
	assert.Equal(t, "connection refused", final["Acme.Math.Crashes"].Message)
	assert.Equal(t, StateTimeout, final["Acme.Math.Hangs"].State)
	assert.Equal(t, StateSkipped, final["Acme.Math.Later"].State)
	assert.Equal(t, "not ready", final["Acme.Math.Later"].Explanation)
	assert.Equal(t, StateSkipped, final["Acme.Math.Manual"].State)
	assert.Equal(t, NotRunExplanation, final["Acme.Math.Manual"].Explanation)

	assert.Equal(t, []NodeState{StateInProgress, StatePassed}, pub.states("Acme.Math.Adds"))
	for _, u := range pub.nodes {
		assert.Equal(t, "s1", u.SessionID)
		assert.NotEmpty(t, u.UID)
	}
}

func TestExecuteRequest_DiscoverPreEnumeratesTheories(t *testing.T) {
	theory := testCase("Squares", func(context.Context, *framework.T) error { return nil })
	theory.Rows = []framework.Row{{Label: "2"}, {Label: "3"}}

	pub := &recordingPublisher{}
	f := newFramework(t, suite(theory), pub)
	require.NoError(t, f.CreateSession("s1"))
	defer f.CloseSession(context.Background(), "s1")

	resp, err := f.ExecuteRequest(context.Background(), "s1", Request{Kind: RequestDiscover})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Result.Discovered)

	require.Len(t, pub.nodes, 2)
	for _, u := range pub.nodes {
		assert.Equal(t, StateDiscovered, u.State)
	}
	assert.Equal(t, "Acme.Math.Squares(2)", pub.nodes[0].DisplayName)

	// a run request for one discovered node runs just that row
	ids := []string{pub.nodes[1].UID}
	pub.nodes = nil
	resp, err = f.ExecuteRequest(context.Background(), "s1", Request{Kind: RequestRun, TestCaseIDs: ids})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Result.Total.Total)
	assert.Equal(t, StatePassed, pub.final()["Acme.Math.Squares(3)"].State)
}

func TestExecuteRequest_DiscoverWithoutPreEnumeration(t *testing.T) {
	theory := testCase("Squares", nil)
	theory.Rows = []framework.Row{{Label: "2"}, {Label: "3"}}

	pub := &recordingPublisher{}
	f := newFramework(t, suite(theory), pub)
	require.NoError(t, f.CreateSession("s1"))
	defer f.CloseSession(context.Background(), "s1")

	resp, err := f.ExecuteRequest(context.Background(), "s1", Request{
		Kind:    RequestDiscover,
		Options: options.Map{"pre-enumerate-theories": {"off"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Result.Discovered)
}

func TestExecuteRequest_PublishesReportArtifacts(t *testing.T) {
	dir := t.TempDir()
	pub := &recordingPublisher{}
	f := newFramework(t, suite(testCase("Adds", func(context.Context, *framework.T) error { return nil })), pub)
	require.NoError(t, f.CreateSession("s1"))
	defer f.CloseSession(context.Background(), "s1")

	resp, err := f.ExecuteRequest(context.Background(), "s1", Request{
		Kind: RequestRun,
		Options: options.Map{
			"results-directory":     {dir},
			"report-junit":          nil,
			"report-junit-filename": {"results.xml"},
			"report-ctrf":           nil,
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Artifacts, 2)
	assert.Equal(t, resp.Artifacts, pub.artifacts)

	byName := map[string]Artifact{}
	for _, a := range resp.Artifacts {
		byName[a.DisplayName] = a
		assert.FileExists(t, a.Path)
	}
	require.Contains(t, byName, "results.xml")
	assert.Equal(t, filepath.Join(dir, "results.xml"), byName["results.xml"].Path)
	assert.Equal(t, "JUNIT report", byName["results.xml"].Description)
}

func TestExecuteRequest_OptionErrors(t *testing.T) {
	pub := &recordingPublisher{}
	f := newFramework(t, suite(), pub)
	require.NoError(t, f.CreateSession("s1"))
	defer f.CloseSession(context.Background(), "s1")

	_, err := f.ExecuteRequest(context.Background(), "s1", Request{
		Kind:    RequestRun,
		Options: options.Map{"report-junit-filename": {"out.xml"}},
	})
	assert.EqualError(t, err, "'-report-junit-filename' requires '-report-junit' to be enabled")

	_, err = f.ExecuteRequest(context.Background(), "s1", Request{
		Kind:    RequestRun,
		Options: options.Map{"bogus": nil},
	})
	assert.EqualError(t, err, "unknown option: --bogus")

	_, err = f.ExecuteRequest(context.Background(), "s1", Request{Kind: "lint"})
	assert.EqualError(t, err, `unknown request kind "lint"`)

	assert.Error(t, f.ValidateOption("max-threads", []string{"lots"}))
	assert.NoError(t, f.ValidateOption("max-threads", []string{"2x"}))
}

func TestExecuteRequest_UnknownSession(t *testing.T) {
	f := newFramework(t, suite(), &recordingPublisher{})
	_, err := f.ExecuteRequest(context.Background(), "nope", Request{Kind: RequestRun})
	assert.EqualError(t, err, "attempt to execute request against unknown session UID nope")

	assert.EqualError(t, f.CloseSession(context.Background(), "nope"), "attempt to close unknown session UID nope")

	require.NoError(t, f.CreateSession("s1"))
	assert.EqualError(t, f.CreateSession("s1"), "attempted to reuse session UID s1 already in progress")
}

func TestCloseSession_WaitsForInFlightRequest(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	body := func(context.Context, *framework.T) error {
		close(started)
		<-release
		return nil
	}

	pub := &recordingPublisher{}
	f := newFramework(t, suite(testCase("Waits", body)), pub)
	require.NoError(t, f.CreateSession("s1"))

	runDone := make(chan error, 1)
	go func() {
		_, err := f.ExecuteRequest(context.Background(), "s1", Request{Kind: RequestRun})
		runDone <- err
	}()
	<-started

	closed := make(chan error, 1)
	go func() { closed <- f.CloseSession(context.Background(), "s1") }()

	select {
	case <-closed:
		t.Fatal("session closed while a request was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-runDone)
	require.NoError(t, <-closed)
	assert.Equal(t, StatePassed, pub.final()["Acme.Math.Waits"].State)
}

func TestExecuteRequest_CancelledByPlatform(t *testing.T) {
	pub := &recordingPublisher{}
	f := newFramework(t, mixedSuite(), pub)
	require.NoError(t, f.CreateSession("s1"))
	defer f.CloseSession(context.Background(), "s1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp, err := f.ExecuteRequest(ctx, "s1", Request{Kind: RequestRun})
	require.NoError(t, err)
	assert.True(t, resp.Result.Cancelled)
	assert.Empty(t, pub.nodes)
}

func TestExecuteRequest_RunNodesMatchDiscoveredUIDs(t *testing.T) {
	pub := &recordingPublisher{}
	f := newFramework(t, mixedSuite(), pub)
	require.NoError(t, f.CreateSession("s1"))
	defer f.CloseSession(context.Background(), "s1")

	_, err := f.ExecuteRequest(context.Background(), "s1", Request{Kind: RequestDiscover})
	require.NoError(t, err)
	discovered := map[string]string{}
	for _, u := range pub.nodes {
		discovered[u.DisplayName] = u.UID
	}
	require.Len(t, discovered, 6)

	pub.nodes = nil
	_, err = f.ExecuteRequest(context.Background(), "s1", Request{
		Kind:    RequestRun,
		Options: options.Map{"parallel": {"none"}},
	})
	require.NoError(t, err)

	require.NotEmpty(t, pub.nodes)
	for _, u := range pub.nodes {
		assert.Equal(t, discovered[u.DisplayName], u.UID, "%s in state %s", u.DisplayName, u.State)
	}
}

func TestExecuteRequest_PlatformCancelLetsRunningTestFinish(t *testing.T) {
	started := make(chan struct{})
	waits := testCase("Waits", func(ctx context.Context, _ *framework.T) error {
		close(started)
		select {
		case <-time.After(300 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	next := testCase("Adds", func(context.Context, *framework.T) error { return nil })

	pub := &recordingPublisher{}
	f := newFramework(t, suite(waits, next), pub)
	require.NoError(t, f.CreateSession("s1"))
	defer f.CloseSession(context.Background(), "s1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-started
		cancel()
	}()

	resp, err := f.ExecuteRequest(ctx, "s1", Request{
		Kind:    RequestRun,
		Options: options.Map{"parallel": {"none"}},
	})
	require.NoError(t, err)
	assert.True(t, resp.Result.Cancelled)

	final := pub.final()
	assert.Equal(t, StatePassed, final["Acme.Math.Waits"].State)
	assert.NotContains(t, final, "Acme.Math.Adds")
}

func TestExecuteRequest_PublisherFaultAbortsRun(t *testing.T) {
	pub := &recordingPublisher{nodeErr: errors.New("pipe closed")}
	f := newFramework(t, mixedSuite(), pub)
	require.NoError(t, f.CreateSession("s1"))
	defer f.CloseSession(context.Background(), "s1")

	_, err := f.ExecuteRequest(context.Background(), "s1", Request{Kind: RequestRun})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink host failed: pipe closed")
}

func TestNew_KeepsExplicitPreEnumerationSetting(t *testing.T) {
	base := config.DefaultConfig()
	base.PreEnumerateTheories = config.BoolPtr(false)
	f := New(suite(), &recordingPublisher{}, WithBaseConfig(base))
	assert.False(t, f.base.GetPreEnumerateTheories())

	f = New(suite(), &recordingPublisher{})
	assert.True(t, f.base.GetPreEnumerateTheories())
}

func TestJSONLines(t *testing.T) {
	var buf bytes.Buffer
	pub := NewJSONLines(&buf)
	require.NoError(t, pub.PublishNode(NodeUpdate{SessionID: "s1", UID: "u1", DisplayName: "A.B", State: StateTimeout}))
	require.NoError(t, pub.PublishArtifact(Artifact{SessionID: "s1", Path: "/tmp/r.xml", DisplayName: "r.xml"}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "node", gjson.Get(lines[0], "type").String())
	assert.Equal(t, "timeout", gjson.Get(lines[0], "data.state").String())
	assert.Equal(t, "A.B", gjson.Get(lines[0], "data.displayName").String())
	assert.Equal(t, "artifact", gjson.Get(lines[1], "type").String())
	assert.Equal(t, "/tmp/r.xml", gjson.Get(lines[1], "data.path").String())
}

func TestFileSinks(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.MetricsFile = filepath.Join(dir, "metrics.prom")
	cfg.History = "sqlite://" + filepath.Join(dir, "history.db")

	sinks, reports, err := FileSinks(cfg, "1.0.0")
	require.NoError(t, err)
	assert.Nil(t, reports)
	require.Len(t, sinks, 2)
	assert.Equal(t, "metrics", sinks[0].Name())
	assert.Equal(t, "history", sinks[1].Name())
	for _, s := range sinks {
		require.NoError(t, s.Close())
	}
	_, err = os.Stat(cfg.MetricsFile)
	assert.NoError(t, err)

	cfg.History = "postgres://db"
	_, _, err = FileSinks(cfg, "1.0.0")
	assert.EqualError(t, err, "opening history: unsupported database scheme: postgres")
}
