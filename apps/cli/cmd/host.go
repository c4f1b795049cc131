package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"go.uber.org/zap/zapcore"

	"github.com/abdul-hamid-achik/testhost/packages/core/options"
	"github.com/abdul-hamid-achik/testhost/packages/core/runner"
	"github.com/abdul-hamid-achik/testhost/packages/host"
	"github.com/abdul-hamid-achik/testhost/packages/logger"
	"github.com/abdul-hamid-achik/testhost/packages/manifest"
)

var hostCmd = &cobra.Command{
	Use:   "host --request <file>",
	Short: "Serve a test platform session from a request document",
	Long: `Open a host session, execute the discovery and run requests of a JSON
request document against it, and stream node updates and report artifacts
to stdout as JSON lines.

Request document:
  {
    "session": "optional session id",
    "manifests": ["suite.yaml"],
    "requests": [
      {"kind": "discover"},
      {"kind": "run", "options": {"report-junit": []}, "testCaseIds": ["..."]}
    ]
  }

Examples:
  testhost host --request session.json
  cat session.json | testhost host --request -`,
	Args: cobra.NoArgs,
	RunE: hostCommand,
}

var requestFlag string

func init() {
	hostCmd.Flags().StringVar(&requestFlag, "request", "", "Path to the request document, or - for stdin")
	_ = hostCmd.MarkFlagRequired("request")
}

// hostDocument is a parsed request document
type hostDocument struct {
	session   string
	manifests []string
	requests  []host.Request
}

func parseHostDocument(data []byte) (*hostDocument, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("request document is not valid JSON")
	}
	root := gjson.ParseBytes(data)

	doc := &hostDocument{session: root.Get("session").String()}
	if doc.session == "" {
		doc.session = uuid.NewString()
	}
	for _, m := range root.Get("manifests").Array() {
		doc.manifests = append(doc.manifests, m.String())
	}
	if len(doc.manifests) == 0 {
		return nil, errors.New("request document lists no manifests")
	}

	var err error
	root.Get("requests").ForEach(func(_, r gjson.Result) bool {
		req := host.Request{Kind: host.RequestKind(r.Get("kind").String())}
		if req.Kind != host.RequestDiscover && req.Kind != host.RequestRun {
			err = fmt.Errorf("unknown request kind %q", req.Kind)
			return false
		}

		opts := options.Map{}
		r.Get("options").ForEach(func(name, value gjson.Result) bool {
			var args []string
			switch {
			case value.IsArray():
				for _, v := range value.Array() {
					args = append(args, v.String())
				}
			case value.Type == gjson.Null, value.Type == gjson.True:
			default:
				args = []string{value.String()}
			}
			opts[name.String()] = args
			return true
		})
		req.Options = opts

		for _, id := range r.Get("testCaseIds").Array() {
			req.TestCaseIDs = append(req.TestCaseIDs, id.String())
		}
		doc.requests = append(doc.requests, req)
		return true
	})
	if err != nil {
		return nil, err
	}
	if len(doc.requests) == 0 {
		return nil, errors.New("request document has no requests")
	}
	return doc, nil
}

func readRequest(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func hostCommand(cmd *cobra.Command, _ []string) error {
	data, err := readRequest(requestFlag, cmd.InOrStdin())
	if err != nil {
		return withCode(ExitUsageError, fmt.Errorf("reading request: %w", err))
	}
	doc, err := parseHostDocument(data)
	if err != nil {
		return withCode(ExitUsageError, err)
	}

	lggr := logger.New(os.Stderr, zapcore.WarnLevel)
	defer func() { _ = lggr.Sync() }()

	sig := interruptContext(cmd.Context(), cmd.ErrOrStderr())
	defer sig.stop()
	ctx := sig.ctx

	f := host.New(manifest.NewSource(doc.manifests...), host.NewJSONLines(cmd.OutOrStdout()),
		host.WithLogger(lggr.Named("host")),
		host.WithVersion(version),
		host.WithRunnerOptions(runner.WithKillContext(sig.kill)),
	)

	if err := f.CreateSession(doc.session); err != nil {
		return err
	}

	failures := 0
	var errs []error
	for _, req := range doc.requests {
		resp, err := f.ExecuteRequest(ctx, doc.session, req)
		if err != nil {
			errs = append(errs, err)
			break
		}
		if resp.Result != nil && req.Kind == host.RequestRun {
			failures += resp.Result.FailureCount()
		}
		if sig.interrupted.Load() {
			break
		}
	}
	errs = append(errs, f.CloseSession(ctx, doc.session))

	switch err := errors.Join(errs...); {
	case sig.interrupted.Load():
		return withCode(ExitCancelled, nil)
	case err != nil:
		return err
	case failures > 0:
		return withCode(ExitTestFailure, nil)
	}
	return nil
}
