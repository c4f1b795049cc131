package output

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/testhost/packages/core/events"
)

// JUnit XML structures

// JUnitTestSuites is the root element
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Name       string           `xml:"name,attr,omitempty"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Skipped    int              `xml:"skipped,attr"`
	Time       float64          `xml:"time,attr"`
	Timestamp  string           `xml:"timestamp,attr,omitempty"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite is one assembly
type JUnitTestSuite struct {
	XMLName   xml.Name        `xml:"testsuite"`
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Errors    int             `xml:"errors,attr"`
	Skipped   int             `xml:"skipped,attr"`
	Time      float64         `xml:"time,attr"`
	Timestamp string          `xml:"timestamp,attr,omitempty"`
	TestCases []JUnitTestCase `xml:"testcase"`
	SystemErr string          `xml:"system-err,omitempty"`
}

// JUnitTestCase represents a single test case
type JUnitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
	Error     *JUnitError   `xml:"error,omitempty"`
	Skipped   *JUnitSkipped `xml:"skipped,omitempty"`
	SystemOut string        `xml:"system-out,omitempty"`
}

// JUnitFailure represents a test failure
type JUnitFailure struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

// JUnitError represents a test error
type JUnitError struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

// JUnitSkipped represents a skipped test
type JUnitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

// WriteJUnit renders r as JUnit XML. Assertion failures map to <failure>,
// everything else that failed to <error>; not-run tests are skipped.
func WriteJUnit(w io.Writer, r *Report) error {
	suites := JUnitTestSuites{
		Name:      "testhost",
		Tests:     r.Total.Total,
		Skipped:   r.Total.Skipped + r.Total.NotRun,
		Time:      r.Total.ExecutionTime.Seconds(),
		Timestamp: r.Generated.Format(time.RFC3339),
	}

	for _, asm := range r.Assemblies {
		suite := JUnitTestSuite{
			Name:      asm.Name,
			Tests:     asm.Summary.Total,
			Skipped:   asm.Summary.Skipped + asm.Summary.NotRun,
			Errors:    len(asm.Errors),
			Time:      asm.Summary.ExecutionTime.Seconds(),
			Timestamp: asm.StartTime.Format(time.RFC3339),
		}
		for _, e := range asm.Errors {
			suite.SystemErr += fmt.Sprintf("%s: %s\n", e.ExceptionType, e.Message)
		}

		for _, t := range asm.Tests() {
			tc := JUnitTestCase{
				Name:      t.DisplayName,
				ClassName: t.Class,
				Time:      t.Duration.Seconds(),
				SystemOut: t.Output,
			}

			switch t.Status {
			case StatusSkipped:
				tc.Skipped = &JUnitSkipped{Message: t.Reason}
			case StatusNotRun:
				tc.Skipped = &JUnitSkipped{Message: "Test was not run"}
			case StatusFailed:
				if t.Cause == events.CauseAssertion {
					suite.Failures++
					tc.Failure = &JUnitFailure{
						Message: t.Message(),
						Type:    t.ExceptionType(),
						Content: failureDetail(t),
					}
				} else {
					suite.Errors++
					tc.Error = &JUnitError{
						Message: t.Message(),
						Type:    t.ExceptionType(),
						Content: failureDetail(t),
					}
				}
			}

			suite.TestCases = append(suite.TestCases, tc)
		}

		suites.Failures += suite.Failures
		suites.Errors += suite.Errors
		suites.TestSuites = append(suites.TestSuites, suite)
	}

	fmt.Fprintf(w, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	if err := encoder.Encode(suites); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}

func failureDetail(t *TestResult) string {
	var sb strings.Builder
	for i, msg := range t.Messages {
		if i < len(t.ExceptionTypes) {
			fmt.Fprintf(&sb, "%s: ", t.ExceptionTypes[i])
		}
		sb.WriteString(msg)
		sb.WriteByte('\n')
		if i < len(t.StackTraces) && t.StackTraces[i] != "" {
			sb.WriteString(t.StackTraces[i])
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
