package output

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/samber/lo"
)

// xUnit.net v2 XML structures

type XUnitAssemblies struct {
	XMLName    xml.Name        `xml:"assemblies"`
	Timestamp  string          `xml:"timestamp,attr"`
	Assemblies []XUnitAssembly `xml:"assembly"`
}

type XUnitAssembly struct {
	Name          string            `xml:"name,attr"`
	TestFramework string            `xml:"test-framework,attr"`
	RunDate       string            `xml:"run-date,attr"`
	RunTime       string            `xml:"run-time,attr"`
	Total         int               `xml:"total,attr"`
	Passed        int               `xml:"passed,attr"`
	Failed        int               `xml:"failed,attr"`
	Skipped       int               `xml:"skipped,attr"`
	NotRun        int               `xml:"not-run,attr"`
	Time          string            `xml:"time,attr"`
	ErrorCount    int               `xml:"errors,attr"`
	Errors        XUnitErrors       `xml:"errors"`
	Collections   []XUnitCollection `xml:"collection"`
}

type XUnitErrors struct {
	Errors []XUnitError `xml:"error"`
}

type XUnitError struct {
	Type    string        `xml:"type,attr"`
	Name    string        `xml:"name,attr,omitempty"`
	Failure *XUnitFailure `xml:"failure"`
}

type XUnitCollection struct {
	Name    string      `xml:"name,attr"`
	Total   int         `xml:"total,attr"`
	Passed  int         `xml:"passed,attr"`
	Failed  int         `xml:"failed,attr"`
	Skipped int         `xml:"skipped,attr"`
	NotRun  int         `xml:"not-run,attr"`
	Time    string      `xml:"time,attr"`
	Tests   []XUnitTest `xml:"test"`
}

type XUnitTest struct {
	Name       string        `xml:"name,attr"`
	Type       string        `xml:"type,attr"`
	Method     string        `xml:"method,attr"`
	Time       string        `xml:"time,attr"`
	Result     string        `xml:"result,attr"`
	SourceFile string        `xml:"source-file,attr,omitempty"`
	SourceLine int           `xml:"source-line,attr,omitempty"`
	Traits     *XUnitTraits  `xml:"traits,omitempty"`
	Failure    *XUnitFailure `xml:"failure,omitempty"`
	Reason     *XUnitCDATA   `xml:"reason,omitempty"`
	Output     *XUnitCDATA   `xml:"output,omitempty"`
	Warnings   *XUnitWarns   `xml:"warnings,omitempty"`
}

type XUnitTraits struct {
	Traits []XUnitTrait `xml:"trait"`
}

type XUnitTrait struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type XUnitFailure struct {
	ExceptionType string      `xml:"exception-type,attr,omitempty"`
	Message       XUnitCDATA  `xml:"message"`
	StackTrace    *XUnitCDATA `xml:"stack-trace,omitempty"`
}

type XUnitWarns struct {
	Warnings []XUnitCDATA `xml:"warning"`
}

type XUnitCDATA struct {
	Text string `xml:",cdata"`
}

var xunitResults = map[Status]string{
	StatusPassed:  "Pass",
	StatusFailed:  "Fail",
	StatusSkipped: "Skip",
	StatusNotRun:  "NotRun",
}

// WriteXUnit renders r as xUnit.net v2 XML
func WriteXUnit(w io.Writer, r *Report) error {
	doc := XUnitAssemblies{Timestamp: r.Generated.Format("01/02/2006 15:04:05")}

	for _, asm := range r.Assemblies {
		start := asm.StartTime
		if start.IsZero() {
			start = r.Generated
		}
		xa := XUnitAssembly{
			Name:          asm.Path,
			TestFramework: "testhost " + r.Version,
			RunDate:       start.Format(time.DateOnly),
			RunTime:       start.Format(time.TimeOnly),
			Total:         asm.Summary.Total,
			Passed:        asm.Passed(),
			Failed:        asm.Summary.Failed,
			Skipped:       asm.Summary.Skipped,
			NotRun:        asm.Summary.NotRun,
			Time:          xunitSeconds(asm.Summary.ExecutionTime),
			ErrorCount:    len(asm.Errors),
		}
		for _, e := range asm.Errors {
			xa.Errors.Errors = append(xa.Errors.Errors, XUnitError{
				Type:    "fatal",
				Failure: xunitFailure(e.ExceptionType, e.Message, e.StackTrace),
			})
		}

		for _, col := range asm.Collections {
			xc := XUnitCollection{
				Name:    col.Name,
				Total:   col.Total,
				Passed:  col.Passed(),
				Failed:  col.Failed,
				Skipped: col.Skipped,
				NotRun:  col.NotRun,
				Time:    xunitSeconds(col.ExecutionTime),
			}
			for _, t := range col.Tests {
				xc.Tests = append(xc.Tests, xunitTest(t))
			}
			xa.Collections = append(xa.Collections, xc)
		}
		doc.Assemblies = append(doc.Assemblies, xa)
	}

	fmt.Fprintf(w, "<?xml version=\"1.0\" encoding=\"utf-8\"?>\n")
	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}

func xunitTest(t *TestResult) XUnitTest {
	xt := XUnitTest{
		Name:       t.DisplayName,
		Type:       t.Class,
		Method:     t.Method,
		Time:       xunitSeconds(t.Duration),
		Result:     xunitResults[t.Status],
		SourceFile: t.SourceFile,
		SourceLine: t.SourceLine,
	}

	if len(t.Traits) > 0 {
		xt.Traits = &XUnitTraits{}
		names := lo.Keys(t.Traits)
		sort.Strings(names)
		for _, name := range names {
			for _, value := range t.Traits[name] {
				xt.Traits.Traits = append(xt.Traits.Traits, XUnitTrait{Name: name, Value: value})
			}
		}
	}

	switch t.Status {
	case StatusFailed:
		xt.Failure = xunitFailure(t.ExceptionType(), failureMessages(t), t.StackTrace())
	case StatusSkipped:
		xt.Reason = &XUnitCDATA{Text: t.Reason}
	}
	if t.Output != "" {
		xt.Output = &XUnitCDATA{Text: t.Output}
	}
	if len(t.Warnings) > 0 {
		xt.Warnings = &XUnitWarns{}
		for _, warning := range t.Warnings {
			xt.Warnings.Warnings = append(xt.Warnings.Warnings, XUnitCDATA{Text: warning})
		}
	}
	return xt
}

func xunitFailure(typ, message, stack string) *XUnitFailure {
	f := &XUnitFailure{ExceptionType: typ, Message: XUnitCDATA{Text: message}}
	if stack != "" {
		f.StackTrace = &XUnitCDATA{Text: stack}
	}
	return f
}

// failureMessages joins the cause chain the way it is printed on the console
func failureMessages(t *TestResult) string {
	msg := ""
	for i, m := range t.Messages {
		if i > 0 {
			msg += "\n---- "
			if i < len(t.ExceptionTypes) {
				msg += t.ExceptionTypes[i] + " : "
			}
		}
		msg += m
	}
	return msg
}

func xunitSeconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}
