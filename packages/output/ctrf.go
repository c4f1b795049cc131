package output

import (
	"encoding/json"
	"io"
	"runtime"
)

// CTRFOutput is the root of a Common Test Report Format document
type CTRFOutput struct {
	ReportFormat string      `json:"reportFormat"`
	SpecVersion  string      `json:"specVersion"`
	Results      CTRFResults `json:"results"`
}

type CTRFResults struct {
	Tool        CTRFTool        `json:"tool"`
	Summary     CTRFSummary     `json:"summary"`
	Tests       []CTRFTest      `json:"tests"`
	Environment CTRFEnvironment `json:"environment"`
}

type CTRFTool struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type CTRFSummary struct {
	Tests   int   `json:"tests"`
	Passed  int   `json:"passed"`
	Failed  int   `json:"failed"`
	Pending int   `json:"pending"`
	Skipped int   `json:"skipped"`
	Other   int   `json:"other"`
	Start   int64 `json:"start"`
	Stop    int64 `json:"stop"`
}

type CTRFTest struct {
	Name     string              `json:"name"`
	Status   string              `json:"status"`
	Duration int64               `json:"duration"`
	Start    int64               `json:"start,omitempty"`
	Message  string              `json:"message,omitempty"`
	Trace    string              `json:"trace,omitempty"`
	RawState string              `json:"rawStatus,omitempty"`
	Suite    string              `json:"suite,omitempty"`
	FilePath string              `json:"filePath,omitempty"`
	Line     int                 `json:"line,omitempty"`
	Stdout   []string            `json:"stdout,omitempty"`
	Extra    map[string][]string `json:"extra,omitempty"`
}

type CTRFEnvironment struct {
	OSPlatform string `json:"osPlatform"`
}

var ctrfStatuses = map[Status]string{
	StatusPassed:  "passed",
	StatusFailed:  "failed",
	StatusSkipped: "skipped",
	StatusNotRun:  "other",
}

// WriteCTRF renders r as CTRF JSON
func WriteCTRF(w io.Writer, r *Report) error {
	out := CTRFOutput{
		ReportFormat: "CTRF",
		SpecVersion:  "0.0.0",
		Results: CTRFResults{
			Tool: CTRFTool{Name: "testhost", Version: r.Version},
			Summary: CTRFSummary{
				Tests:   r.Total.Total,
				Passed:  r.Passed(),
				Failed:  r.Total.Failed,
				Skipped: r.Total.Skipped,
				Other:   r.Total.NotRun,
			},
			Tests:       make([]CTRFTest, 0, r.Total.Total),
			Environment: CTRFEnvironment{OSPlatform: runtime.GOOS},
		},
	}

	for _, asm := range r.Assemblies {
		if !asm.StartTime.IsZero() {
			start := asm.StartTime.UnixMilli()
			if out.Results.Summary.Start == 0 || start < out.Results.Summary.Start {
				out.Results.Summary.Start = start
			}
		}
		if stop := asm.FinishTime.UnixMilli(); !asm.FinishTime.IsZero() && stop > out.Results.Summary.Stop {
			out.Results.Summary.Stop = stop
		}

		for _, col := range asm.Collections {
			for _, t := range col.Tests {
				test := CTRFTest{
					Name:     t.DisplayName,
					Status:   ctrfStatuses[t.Status],
					Duration: t.Duration.Milliseconds(),
					Suite:    asm.Name + " / " + col.Name,
					FilePath: t.SourceFile,
					Line:     t.SourceLine,
					Stdout:   lines(t.Output),
					Extra:    t.Traits,
				}
				if !t.StartTime.IsZero() {
					test.Start = t.StartTime.UnixMilli()
				}
				switch t.Status {
				case StatusFailed:
					test.Message = failureMessages(t)
					test.Trace = t.StackTrace()
					test.RawState = string(t.Cause)
				case StatusSkipped:
					test.Message = t.Reason
				case StatusNotRun:
					test.RawState = "notrun"
				}
				out.Results.Tests = append(out.Results.Tests, test)
			}
		}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}
