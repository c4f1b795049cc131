package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/abdul-hamid-achik/testhost/packages/core/config"
	"github.com/abdul-hamid-achik/testhost/packages/core/events"
)

// StopOnFailNotice is printed once when a failure cancels the run
const StopOnFailNotice = "Cancelling due to test failure..."

// ConsoleSink renders the event stream for a terminal
type ConsoleSink struct {
	writer              io.Writer
	verbose             bool
	noColor             bool
	liveOutput          bool
	diagnostics         bool
	internalDiagnostics bool
	stopOnFail          bool

	mu        sync.Mutex
	collector *Collector
	noticed   bool

	green  func(a ...any) string
	red    func(a ...any) string
	yellow func(a ...any) string
	cyan   func(a ...any) string
	bold   func(a ...any) string
	faint  func(a ...any) string
}

type ConsoleOption func(*ConsoleSink)

func WithWriter(w io.Writer) ConsoleOption {
	return func(s *ConsoleSink) {
		s.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(s *ConsoleSink) {
		s.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(s *ConsoleSink) {
		s.noColor = nc
	}
}

// WithLiveOutput prints test output as it is written
func WithLiveOutput(on bool) ConsoleOption {
	return func(s *ConsoleSink) {
		s.liveOutput = on
	}
}

func WithDiagnostics(diagnostics, internal bool) ConsoleOption {
	return func(s *ConsoleSink) {
		s.diagnostics = diagnostics
		s.internalDiagnostics = internal
	}
}

// WithStopOnFail enables the cancellation notice
func WithStopOnFail(on bool) ConsoleOption {
	return func(s *ConsoleSink) {
		s.stopOnFail = on
	}
}

// ConsoleOptions maps the display settings of cfg to options
func ConsoleOptions(cfg *config.Config) []ConsoleOption {
	return []ConsoleOption{
		WithNoColor(cfg.GetNoColor()),
		WithLiveOutput(cfg.GetShowLiveOutput()),
		WithDiagnostics(cfg.GetDiagnostics(), cfg.GetInternalDiagnostics()),
		WithStopOnFail(cfg.GetStopOnFail()),
	}
}

func NewConsoleSink(opts ...ConsoleOption) *ConsoleSink {
	s := &ConsoleSink{
		writer:    os.Stdout,
		collector: NewCollector(),
	}
	for _, opt := range opts {
		opt(s)
	}

	palette := func(attrs ...color.Attribute) func(a ...any) string {
		c := color.New(attrs...)
		if s.noColor {
			c.DisableColor()
		}
		return c.SprintFunc()
	}
	s.green = palette(color.FgGreen)
	s.red = palette(color.FgRed)
	s.yellow = palette(color.FgYellow)
	s.cyan = palette(color.FgCyan)
	s.bold = palette(color.Bold)
	s.faint = palette(color.Faint)
	return s
}

func (s *ConsoleSink) Name() string { return "console" }

func (s *ConsoleSink) OnEvent(ev events.Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.collector.Observe(ev)
	w := s.writer

	switch e := ev.(type) {
	case *events.AssemblyStarting:
		fmt.Fprintf(w, "\n%s\n", s.bold("Running: "+e.Name))
		if s.diagnostics {
			fmt.Fprintf(w, "  %s\n", s.faint(fmt.Sprintf("seed: %d, parallel: %s, threads: %s, culture: %s",
				e.Seed, e.Parallel, threads(e.Threads), cultureName(e.Culture))))
		}
		fmt.Fprintln(w)

	case *events.TestOutput:
		if s.liveOutput {
			for _, line := range lines(e.Output) {
				fmt.Fprintf(w, "OUTPUT: [%s] %s\n", e.DisplayName, line)
			}
		}

	case *events.TestPassed:
		fmt.Fprintf(w, "  %s %s %s\n", s.green("✓"), e.DisplayName, s.cyan(millis(e.ExecutionTime)))
		s.printWarnings(e.DisplayName, e.Warnings)

	case *events.TestFailed:
		fmt.Fprintf(w, "  %s %s %s\n", s.red("✗"), e.DisplayName, s.cyan(millis(e.ExecutionTime)))
		for i, msg := range e.Messages {
			label := msg
			if i < len(e.ExceptionTypes) && e.Cause == events.CauseException {
				label = e.ExceptionTypes[i] + ": " + msg
			}
			fmt.Fprintf(w, "    %s %s\n", s.red("→"), label)
			if i < len(e.StackTraces) && e.StackTraces[i] != "" && s.internalDiagnostics {
				for _, line := range lines(e.StackTraces[i]) {
					fmt.Fprintf(w, "      %s\n", s.faint(line))
				}
			}
		}
		if !s.liveOutput && e.Output != "" {
			fmt.Fprintf(w, "    Output:\n")
			for _, line := range lines(e.Output) {
				fmt.Fprintf(w, "      %s\n", line)
			}
		}
		s.printWarnings(e.DisplayName, e.Warnings)

	case *events.TestSkipped:
		fmt.Fprintf(w, "  %s %s", s.yellow("-"), e.DisplayName)
		if e.Reason != "" {
			fmt.Fprintf(w, " (%s)", e.Reason)
		}
		fmt.Fprintln(w)

	case *events.TestNotRun:
		if s.verbose {
			fmt.Fprintf(w, "  %s %s %s\n", s.faint("○"), e.DisplayName, s.faint("(not run)"))
		}

	case *events.Diagnostic:
		if s.diagnostics {
			fmt.Fprintf(w, "  %s\n", s.yellow(e.Message))
		}

	case *events.InternalDiagnostic:
		if s.internalDiagnostics {
			fmt.Fprintf(w, "  %s\n", s.faint(e.Message))
		}

	case *events.ErrorMessage:
		fmt.Fprintf(w, "%s %s: %s\n", s.red("Error:"), e.ExceptionType, e.Message)
		if s.internalDiagnostics && e.StackTrace != "" {
			for _, line := range lines(e.StackTrace) {
				fmt.Fprintf(w, "  %s\n", s.faint(line))
			}
		}

	case *events.ExecutionSummary:
		if s.stopOnFail && e.Cancelled && e.Summary.Failed > 0 && !s.noticed {
			s.noticed = true
			fmt.Fprintf(w, "\n%s\n", s.yellow(StopOnFailNotice))
		}
	}

	return true, nil
}

func (s *ConsoleSink) printWarnings(name string, warnings []string) {
	for _, warning := range warnings {
		fmt.Fprintf(s.writer, "%s\n", s.yellow(fmt.Sprintf("WARNING: [%s] %s", name, warning)))
	}
}

// Close prints the execution summary
func (s *ConsoleSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	assemblies := s.collector.Assemblies()
	if len(assemblies) == 0 {
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(s.writer)
	t.SetTitle("Test execution summary")
	t.AppendHeader(table.Row{"Assembly", "Total", "Errors", "Failed", "Skipped", "Not Run", "Time"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Total", Align: text.AlignRight},
		{Name: "Errors", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Not Run", Align: text.AlignRight},
		{Name: "Time", Align: text.AlignRight},
	})
	t.SetStyle(table.StyleLight)

	var total events.Summary
	for _, asm := range assemblies {
		total.Add(asm.Summary)
		name := asm.Name
		if asm.Cancelled {
			name += " (cancelled)"
		}
		t.AppendRow(table.Row{
			name, asm.Summary.Total, asm.Summary.Errors, asm.Summary.Failed,
			asm.Summary.Skipped, asm.Summary.NotRun, seconds(asm.Summary.ExecutionTime),
		})
	}
	if len(assemblies) > 1 {
		t.AppendFooter(table.Row{
			"GRAND TOTAL", total.Total, total.Errors, total.Failed,
			total.Skipped, total.NotRun, seconds(total.ExecutionTime),
		})
	}

	fmt.Fprintln(s.writer)
	t.Render()

	passed := total.Total - total.Failed - total.Skipped - total.NotRun
	fmt.Fprintf(s.writer, "\nTests: ")
	if passed > 0 {
		fmt.Fprintf(s.writer, "%s, ", s.green(fmt.Sprintf("%d passed", passed)))
	}
	if total.Failed > 0 {
		fmt.Fprintf(s.writer, "%s, ", s.red(fmt.Sprintf("%d failed", total.Failed)))
	}
	if total.Skipped > 0 {
		fmt.Fprintf(s.writer, "%s, ", s.yellow(fmt.Sprintf("%d skipped", total.Skipped)))
	}
	if total.NotRun > 0 {
		fmt.Fprintf(s.writer, "%d not run, ", total.NotRun)
	}
	fmt.Fprintf(s.writer, "%d total\n", total.Total)
	fmt.Fprintf(s.writer, "Time:  %dms\n", total.Elapsed.Milliseconds())

	if s.diagnostics {
		for _, asm := range assemblies {
			d := asm.Durations
			if d.Max == 0 {
				continue
			}
			fmt.Fprintf(s.writer, "%s\n", s.faint(fmt.Sprintf("%s durations: p50 %s, p95 %s, p99 %s, max %s",
				asm.Name, d.P50, d.P95, d.P99, d.Max)))
		}
	}
	fmt.Fprintln(s.writer)
	return nil
}

// Banner writes the runner header line
func Banner(w io.Writer, version string, noColor bool) {
	bold := color.New(color.Bold)
	if noColor {
		bold.DisableColor()
	}
	fmt.Fprintf(w, "%s %s\n", bold.Sprint("testhost"), version)
}

// FormatError writes a top level error
func FormatError(w io.Writer, err error, noColor bool) {
	red := color.New(color.FgRed)
	if noColor {
		red.DisableColor()
	}
	fmt.Fprintf(w, "%s %v\n", red.Sprint("Error:"), err)
}

func lines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func millis(d time.Duration) string {
	return fmt.Sprintf("(%dms)", d.Milliseconds())
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.3fs", d.Seconds())
}

func threads(n int) string {
	if n <= 0 {
		return "unlimited"
	}
	return fmt.Sprint(n)
}

func cultureName(c string) string {
	if c == "" {
		return "default"
	}
	return c
}
