package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/abdul-hamid-achik/testhost/packages/core/events"
)

// WriteTAP renders r as TAP version 13
func WriteTAP(w io.Writer, r *Report) error {
	var tests []*TestResult
	for _, asm := range r.Assemblies {
		tests = append(tests, asm.Tests()...)
	}

	fmt.Fprintf(w, "TAP version 13\n")
	fmt.Fprintf(w, "1..%d\n", len(tests))

	for i, t := range tests {
		n := i + 1
		switch t.Status {
		case StatusSkipped:
			reason := t.Reason
			if reason == "" {
				reason = "SKIP"
			}
			fmt.Fprintf(w, "ok %d - %s # SKIP %s\n", n, t.DisplayName, reason)

		case StatusNotRun:
			fmt.Fprintf(w, "ok %d - %s # SKIP not run\n", n, t.DisplayName)

		case StatusPassed:
			fmt.Fprintf(w, "ok %d - %s\n", n, t.DisplayName)

		case StatusFailed:
			fmt.Fprintf(w, "not ok %d - %s\n", n, t.DisplayName)
			fmt.Fprintf(w, "  ---\n")
			fmt.Fprintf(w, "  message: %s\n", escapeYAML(t.Message()))
			severity := "fail"
			if t.Cause != events.CauseAssertion {
				severity = "error"
			}
			fmt.Fprintf(w, "  severity: %s\n", severity)
			if len(t.ExceptionTypes) > 0 {
				fmt.Fprintf(w, "  exceptions:\n")
				for _, typ := range t.ExceptionTypes {
					fmt.Fprintf(w, "    - %s\n", escapeYAML(typ))
				}
			}
			fmt.Fprintf(w, "  duration_ms: %d\n", t.Duration.Milliseconds())
			fmt.Fprintf(w, "  ...\n")
		}
	}

	for _, asm := range r.Assemblies {
		for _, e := range asm.Errors {
			fmt.Fprintf(w, "Bail out! %s: %s\n", e.ExceptionType, firstLine(e.Message))
		}
	}

	_, err := fmt.Fprintln(w)
	return err
}

func escapeYAML(s string) string {
	// quote anything YAML could read as structure
	if strings.ContainsAny(s, ":\n\"'[]{}#&*!|>%@`") {
		s = strings.ReplaceAll(s, `\`, `\\`)
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", `\n`)
		return "\"" + s + "\""
	}
	return s
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
