package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/testhost/packages/core/config"
	"github.com/abdul-hamid-achik/testhost/packages/core/runner"
	"github.com/abdul-hamid-achik/testhost/packages/host"
	"github.com/abdul-hamid-achik/testhost/packages/logger"
	"github.com/abdul-hamid-achik/testhost/packages/manifest"
	"github.com/abdul-hamid-achik/testhost/packages/notify"
	"github.com/abdul-hamid-achik/testhost/packages/output"
	"github.com/abdul-hamid-achik/testhost/packages/sink"
)

var runCmd = &cobra.Command{
	Use:   "run <manifest>... [options]",
	Short: "Run the tests declared in manifests",
	Long: `Run the tests declared in one or more YAML manifests.

Options use a single dash and are case-insensitive; run "testhost options"
for the full list.

Examples:
  testhost run suite.yaml
  testhost run suite.yaml -parallel collections -maxthreads 2x
  testhost run suite.yaml -trait category=unit -notrait category=slow
  testhost run a.yaml b.yaml -stop-on-fail on -report-junit -results-directory out
  testhost run suite.yaml -automated sync
  testhost run suite.yaml -watch`,
	DisableFlagParsing: true,
	RunE:               runCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond
)

func runCommand(cmd *cobra.Command, args []string) error {
	inv, err := parseInvocation(args)
	if err != nil {
		return err
	}
	if inv.help {
		printRunUsage(cmd.OutOrStdout())
		return errHelp
	}
	if err := inv.requireManifests(); err != nil {
		return err
	}
	cfg, err := inv.resolve()
	if err != nil {
		return err
	}
	if inv.watch && cfg.Automated != "" {
		return withCode(ExitUsageError, errors.New("-watch cannot be combined with -automated"))
	}

	out := cmd.OutOrStdout()
	lggr := newLogger(cfg)
	defer func() { _ = lggr.Sync() }()

	if cfg.Automated == "" && !cfg.GetNoLogo() {
		output.Banner(out, version, cfg.GetNoColor())
	}

	if cfg.List != "" {
		return listTests(cmd.Context(), out, cfg, inv.manifests, lggr)
	}

	sig := interruptContext(cmd.Context(), cmd.ErrOrStderr())
	defer sig.stop()
	ctx := sig.ctx
	kill := runner.WithKillContext(sig.kill)

	code, err := runOnce(ctx, out, cfg, inv.manifests, lggr, kill)
	if sig.interrupted.Load() {
		return withCode(ExitCancelled, nil)
	}
	if !inv.watch {
		if err != nil {
			return err
		}
		if code != ExitSuccess {
			return withCode(code, nil)
		}
		return nil
	}
	if err != nil {
		output.FormatError(cmd.ErrOrStderr(), err, cfg.GetNoColor())
	}

	return watch(ctx, out, inv.manifests, func() {
		if _, err := runOnce(ctx, out, cfg, inv.manifests, lggr, kill); err != nil {
			output.FormatError(cmd.ErrOrStderr(), err, cfg.GetNoColor())
		}
	})
}

// interrupt tracks Ctrl+C. The first signal cancels ctx so no new test
// starts; the second cancels kill, aborting the bodies still running; a
// third exits at once.
type interrupt struct {
	ctx         context.Context
	kill        context.Context
	interrupted atomic.Bool
	stop        func()
}

func interruptContext(parent context.Context, stderr io.Writer) *interrupt {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	kill, abort := context.WithCancel(context.WithoutCancel(parent))
	in := &interrupt{ctx: ctx, kill: kill}

	sigCh := make(chan os.Signal, 3)
	done := make(chan struct{})
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		signals := 0
		for {
			select {
			case <-done:
				return
			case <-sigCh:
				signals++
				in.interrupted.Store(true)
				switch signals {
				case 1:
					fmt.Fprintln(stderr, "Cancelling... (Press Ctrl+C again to abort running tests)")
					cancel()
				case 2:
					fmt.Fprintln(stderr, "Aborting running tests... (Press Ctrl+C again to terminate)")
					abort()
				default:
					os.Exit(ExitCancelled)
				}
			}
		}
	}()

	var once sync.Once
	in.stop = func() {
		once.Do(func() {
			signal.Stop(sigCh)
			close(done)
			cancel()
			abort()
		})
	}
	return in
}

// runOnce runs every manifest once and maps the result to an exit code
func runOnce(ctx context.Context, out io.Writer, cfg *config.Config, manifests []string, lggr logger.Logger, opts ...runner.Option) (int, error) {
	sinks, err := buildSinks(out, cfg, lggr)
	if err != nil {
		return ExitError, err
	}

	if cfg.GetInfo() && cfg.Automated == "" {
		fmt.Fprintf(out, "  Manifests: %d, parallel: %s (%s), stop-on-fail: %t\n",
			len(manifests), cfg.GetParallel(), cfg.GetParallelAlgorithm(), cfg.GetStopOnFail())
	}

	bus := sink.New(sinks, sink.WithLogger(lggr))
	opts = append([]runner.Option{runner.WithLogger(lggr)}, opts...)
	r := runner.NewRunner(cfg, manifest.NewSource(manifests...), bus, opts...)
	result, runErr := r.Run(ctx)
	closeErr := bus.Close()
	if err := errors.Join(runErr, closeErr); err != nil {
		return ExitError, err
	}

	if result.FailureCount() > 0 && !cfg.GetIgnoreFailures() {
		return ExitTestFailure, nil
	}
	return ExitSuccess, nil
}

// buildSinks picks the console or automated sink and adds the file sinks
func buildSinks(out io.Writer, cfg *config.Config, lggr logger.Logger) ([]sink.Sink, error) {
	var display sink.Sink
	switch cfg.Automated {
	case config.AutomatedAsync, config.AutomatedSync:
		opts := []output.AutomatedOption{
			output.WithStopOnFailNotice(cfg.GetStopOnFail()),
			output.WithAutomatedLogger(lggr),
		}
		if cfg.Automated == config.AutomatedSync {
			opts = append(opts, output.WithAcks(os.Stdin))
		}
		display = output.NewAutomatedSink(out, opts...)
	default:
		opts := append(output.ConsoleOptions(cfg), output.WithWriter(out))
		display = output.NewConsoleSink(opts...)
	}

	files, _, err := host.FileSinks(cfg, version)
	if err != nil {
		return nil, err
	}
	sinks := append([]sink.Sink{display}, files...)
	if notifiers := notify.FromConfig(cfg.Notify); len(notifiers) > 0 {
		sinks = append(sinks, notify.NewSink(cfg.Notify.GetOn(), notifiers, notify.WithLogger(lggr.Named("notify"))))
	}
	return sinks, nil
}

// watch re-runs on manifest writes until ctx is cancelled
func watch(ctx context.Context, out io.Writer, manifests []string, rerun func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	watched := make(map[string]bool)
	targets := make(map[string]bool)
	for _, m := range manifests {
		abs, err := filepath.Abs(m)
		if err != nil {
			return err
		}
		targets[abs] = true
		dir := filepath.Dir(abs)
		if !watched[dir] {
			if err := watcher.Add(dir); err != nil {
				return fmt.Errorf("failed to watch %s: %w", dir, err)
			}
			watched[dir] = true
		}
	}

	fmt.Fprintf(out, "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	var debounceTimer *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return withCode(ExitCancelled, nil)

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			abs, _ := filepath.Abs(event.Name)
			if !targets[abs] || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			name := event.Name
			debounceTimer = time.AfterFunc(WatchDebounceDelay, func() {
				fmt.Fprintf(out, "\n\nFile changed: %s\nRe-running tests...\n\n", name)
				rerun()
				fmt.Fprintf(out, "\nWatching for changes... (press Ctrl+C to stop)\n")
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watcher error: %v\n", err)
		}
	}
}
