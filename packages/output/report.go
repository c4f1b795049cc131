package output

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/testhost/packages/core/config"
	"github.com/abdul-hamid-achik/testhost/packages/core/events"
)

// Report is the input of every report writer
type Report struct {
	Version    string
	Assemblies []*AssemblyResult
	Total      events.Summary
	Generated  time.Time
}

// Passed counts the passing tests of the whole run
func (r *Report) Passed() int {
	return r.Total.Total - r.Total.Failed - r.Total.Skipped - r.Total.NotRun
}

// Writer renders a report in one format
type Writer func(w io.Writer, r *Report) error

// Writers maps a report kind to its writer
var Writers = map[string]Writer{
	"ctrf":  WriteCTRF,
	"html":  WriteHTML,
	"junit": WriteJUnit,
	"nunit": WriteNUnit,
	"tap":   WriteTAP,
	"xunit": WriteXUnit,
}

// ReportSink collects results and writes every enabled report on Close
type ReportSink struct {
	outputs   []config.OutputPath
	version   string
	now       func() time.Time
	collector *Collector

	mu      sync.Mutex
	written []config.OutputPath
}

type ReportOption func(*ReportSink)

func WithVersion(version string) ReportOption {
	return func(s *ReportSink) {
		s.version = version
	}
}

func WithReportClock(now func() time.Time) ReportOption {
	return func(s *ReportSink) {
		s.now = now
	}
}

// NewReportSink creates a sink for outputs; kinds without a writer are an error
func NewReportSink(outputs []config.OutputPath, opts ...ReportOption) (*ReportSink, error) {
	for _, out := range outputs {
		if _, ok := Writers[out.Kind]; !ok {
			return nil, fmt.Errorf("unknown report kind %q", out.Kind)
		}
	}
	s := &ReportSink{
		outputs:   outputs,
		version:   "dev",
		now:       time.Now,
		collector: NewCollector(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *ReportSink) Name() string { return "reports" }

func (s *ReportSink) OnEvent(ev events.Event) (bool, error) {
	s.collector.Observe(ev)
	return true, nil
}

// Close writes each report file
func (s *ReportSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := &Report{
		Version:    s.version,
		Assemblies: s.collector.Assemblies(),
		Total:      s.collector.Total(),
		Generated:  s.now(),
	}

	var errs []error
	for _, out := range s.outputs {
		if err := writeReport(out.Path, Writers[out.Kind], report); err != nil {
			errs = append(errs, fmt.Errorf("writing %s report: %w", out.Kind, err))
			continue
		}
		s.written = append(s.written, out)
	}
	return errors.Join(errs...)
}

// Written returns the reports successfully written by Close
func (s *ReportSink) Written() []config.OutputPath {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]config.OutputPath(nil), s.written...)
}

func writeReport(path string, write Writer, r *Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
