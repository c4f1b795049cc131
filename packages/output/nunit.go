package output

import (
	"encoding/xml"
	"fmt"
	"io"
	"runtime"
	"sort"
	"time"

	"github.com/samber/lo"
)

// NUnit 2.5 XML structures

type NUnitTestResults struct {
	XMLName      xml.Name         `xml:"test-results"`
	Name         string           `xml:"name,attr"`
	Total        int              `xml:"total,attr"`
	Errors       int              `xml:"errors,attr"`
	Failures     int              `xml:"failures,attr"`
	NotRun       int              `xml:"not-run,attr"`
	Inconclusive int              `xml:"inconclusive,attr"`
	Ignored      int              `xml:"ignored,attr"`
	Skipped      int              `xml:"skipped,attr"`
	Invalid      int              `xml:"invalid,attr"`
	Date         string           `xml:"date,attr"`
	Time         string           `xml:"time,attr"`
	Environment  NUnitEnvironment `xml:"environment"`
	CultureInfo  NUnitCulture     `xml:"culture-info"`
	Suite        NUnitSuite       `xml:"test-suite"`
}

type NUnitEnvironment struct {
	NUnitVersion string `xml:"nunit-version,attr"`
	Platform     string `xml:"platform,attr"`
	ClrVersion   string `xml:"clr-version,attr"`
}

type NUnitCulture struct {
	CurrentCulture   string `xml:"current-culture,attr"`
	CurrentUICulture string `xml:"current-uiculture,attr"`
}

type NUnitSuite struct {
	Type     string       `xml:"type,attr"`
	Name     string       `xml:"name,attr"`
	Executed bool         `xml:"executed,attr"`
	Result   string       `xml:"result,attr"`
	Success  bool         `xml:"success,attr"`
	Time     string       `xml:"time,attr"`
	Asserts  int          `xml:"asserts,attr"`
	Failure  *NUnitFault  `xml:"failure,omitempty"`
	Results  NUnitResults `xml:"results"`
}

type NUnitResults struct {
	Suites []NUnitSuite `xml:"test-suite,omitempty"`
	Cases  []NUnitCase  `xml:"test-case,omitempty"`
}

type NUnitCase struct {
	Name       string           `xml:"name,attr"`
	Executed   bool             `xml:"executed,attr"`
	Result     string           `xml:"result,attr"`
	Success    *bool            `xml:"success,attr,omitempty"`
	Time       string           `xml:"time,attr,omitempty"`
	Asserts    int              `xml:"asserts,attr"`
	Categories *NUnitCategories `xml:"categories,omitempty"`
	Properties *NUnitProperties `xml:"properties,omitempty"`
	Failure    *NUnitFault      `xml:"failure,omitempty"`
	Reason     *NUnitReason     `xml:"reason,omitempty"`
	Output     *XUnitCDATA      `xml:"output,omitempty"`
}

type NUnitCategories struct {
	Categories []NUnitCategory `xml:"category"`
}

type NUnitCategory struct {
	Name string `xml:"name,attr"`
}

type NUnitProperties struct {
	Properties []NUnitProperty `xml:"property"`
}

type NUnitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type NUnitFault struct {
	Message    XUnitCDATA  `xml:"message"`
	StackTrace *XUnitCDATA `xml:"stack-trace,omitempty"`
}

type NUnitReason struct {
	Message XUnitCDATA `xml:"message"`
}

// WriteNUnit renders r as NUnit 2.5 XML. Traits named "category" become
// categories; the rest become properties.
func WriteNUnit(w io.Writer, r *Report) error {
	doc := NUnitTestResults{
		Name:     "Test results",
		Total:    r.Total.Total,
		Errors:   r.Total.Errors,
		Failures: r.Total.Failed,
		NotRun:   r.Total.NotRun,
		Skipped:  r.Total.Skipped,
		Date:     r.Generated.Format(time.DateOnly),
		Time:     r.Generated.Format(time.TimeOnly),
		Environment: NUnitEnvironment{
			NUnitVersion: "2.5",
			Platform:     runtime.GOOS + "/" + runtime.GOARCH,
			ClrVersion:   runtime.Version(),
		},
		Suite: NUnitSuite{
			Type:     "Assemblies",
			Name:     "Test results",
			Executed: true,
			Result:   nunitOutcome(r.Total.Failed+r.Total.Errors == 0),
			Success:  r.Total.Failed+r.Total.Errors == 0,
			Time:     xunitSeconds(r.Total.ExecutionTime),
		},
	}

	for _, asm := range r.Assemblies {
		doc.CultureInfo = NUnitCulture{CurrentCulture: asm.Culture, CurrentUICulture: asm.Culture}
		ok := asm.Summary.Failed == 0 && len(asm.Errors) == 0
		suite := NUnitSuite{
			Type:     "Assembly",
			Name:     asm.Path,
			Executed: true,
			Result:   nunitOutcome(ok),
			Success:  ok,
			Time:     xunitSeconds(asm.Summary.ExecutionTime),
		}
		if len(asm.Errors) > 0 {
			e := asm.Errors[0]
			suite.Failure = &NUnitFault{Message: XUnitCDATA{Text: e.ExceptionType + " : " + e.Message}}
			if e.StackTrace != "" {
				suite.Failure.StackTrace = &XUnitCDATA{Text: e.StackTrace}
			}
		}

		for _, col := range asm.Collections {
			fixture := NUnitSuite{
				Type:     "TestFixture",
				Name:     col.Name,
				Executed: true,
				Result:   nunitOutcome(col.Failed == 0),
				Success:  col.Failed == 0,
				Time:     xunitSeconds(col.ExecutionTime),
			}
			for _, t := range col.Tests {
				fixture.Results.Cases = append(fixture.Results.Cases, nunitCase(t))
			}
			suite.Results.Suites = append(suite.Results.Suites, fixture)
		}
		doc.Suite.Results.Suites = append(doc.Suite.Results.Suites, suite)
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

func nunitCase(t *TestResult) NUnitCase {
	nc := NUnitCase{Name: t.DisplayName}

	names := lo.Keys(t.Traits)
	sort.Strings(names)
	for _, name := range names {
		for _, value := range t.Traits[name] {
			if name == "category" {
				if nc.Categories == nil {
					nc.Categories = &NUnitCategories{}
				}
				nc.Categories.Categories = append(nc.Categories.Categories, NUnitCategory{Name: value})
				continue
			}
			if nc.Properties == nil {
				nc.Properties = &NUnitProperties{}
			}
			nc.Properties.Properties = append(nc.Properties.Properties, NUnitProperty{Name: name, Value: value})
		}
	}

	switch t.Status {
	case StatusPassed, StatusFailed:
		success := t.Status == StatusPassed
		nc.Executed = true
		nc.Success = &success
		nc.Time = xunitSeconds(t.Duration)
		if success {
			nc.Result = "Success"
		} else {
			nc.Result = "Failure"
			nc.Failure = &NUnitFault{Message: XUnitCDATA{Text: failureMessages(t)}}
			if stack := t.StackTrace(); stack != "" {
				nc.Failure.StackTrace = &XUnitCDATA{Text: stack}
			}
		}
	case StatusSkipped:
		nc.Result = "Ignored"
		nc.Reason = &NUnitReason{Message: XUnitCDATA{Text: t.Reason}}
	case StatusNotRun:
		nc.Result = "NotRunnable"
	}

	if t.Output != "" {
		nc.Output = &XUnitCDATA{Text: t.Output}
	}
	return nc
}

func nunitOutcome(ok bool) string {
	if ok {
		return "Success"
	}
	return "Failure"
}
