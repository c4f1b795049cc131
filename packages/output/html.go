package output

import (
	"fmt"
	"html/template"
	"io"
)

// HTMLOutput is the data handed to the report template
type HTMLOutput struct {
	Version        string
	Summary        HTMLSummary
	Assemblies     []HTMLAssembly
	Time           string
	PassedPercent  float64
	FailedPercent  float64
	SkippedPercent float64
}

// HTMLSummary represents the test summary for HTML output
type HTMLSummary struct {
	Total   int
	Passed  int
	Failed  int
	Skipped int
	NotRun  int
	Errors  int
	Seconds float64
}

// HTMLAssembly is one assembly section
type HTMLAssembly struct {
	Name      string
	Seed      int
	Cancelled bool
	Errors    []string
	Tests     []HTMLTest
	Durations Percentiles
}

// HTMLTest represents a single test result for HTML output
type HTMLTest struct {
	Name        string
	Collection  string
	StatusClass string
	Duration    float64
	Reason      string
	Failure     string
	Output      string
	Warnings    []string
	Traits      map[string][]string
}

// WriteHTML renders r as a self-contained HTML page
func WriteHTML(w io.Writer, r *Report) error {
	out := HTMLOutput{
		Version: r.Version,
		Summary: HTMLSummary{
			Total:   r.Total.Total,
			Passed:  r.Passed(),
			Failed:  r.Total.Failed,
			Skipped: r.Total.Skipped,
			NotRun:  r.Total.NotRun,
			Errors:  r.Total.Errors,
			Seconds: r.Total.ExecutionTime.Seconds(),
		},
		Time: r.Generated.Format("2006-01-02 15:04:05"),
	}
	if total := float64(r.Total.Total); total > 0 {
		out.PassedPercent = float64(out.Summary.Passed) / total * 100
		out.FailedPercent = float64(out.Summary.Failed) / total * 100
		out.SkippedPercent = float64(out.Summary.Skipped+out.Summary.NotRun) / total * 100
	}

	for _, asm := range r.Assemblies {
		ha := HTMLAssembly{
			Name:      asm.Name,
			Seed:      asm.Seed,
			Cancelled: asm.Cancelled,
			Durations: asm.Durations,
		}
		for _, e := range asm.Errors {
			ha.Errors = append(ha.Errors, e.ExceptionType+": "+e.Message)
		}
		for _, col := range asm.Collections {
			for _, t := range col.Tests {
				ht := HTMLTest{
					Name:        t.DisplayName,
					Collection:  col.Name,
					StatusClass: string(t.Status),
					Duration:    float64(t.Duration.Milliseconds()),
					Reason:      t.Reason,
					Output:      t.Output,
					Warnings:    t.Warnings,
					Traits:      t.Traits,
				}
				if t.Status == StatusFailed {
					ht.Failure = failureDetail(t)
				}
				ha.Tests = append(ha.Tests, ht)
			}
		}
		out.Assemblies = append(out.Assemblies, ha)
	}

	tmpl, err := template.New("report").Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse HTML template: %w", err)
	}
	return tmpl.Execute(w, out)
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>testhost report</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; margin: 2rem; color: #222; }
h1 { margin-bottom: 0; }
.meta { color: #777; margin-bottom: 1.5rem; }
.bar { display: flex; height: 10px; border-radius: 5px; overflow: hidden; background: #eee; margin: 1rem 0; }
.bar .passed { background: #2e7d32; }
.bar .failed { background: #c62828; }
.bar .skipped { background: #f9a825; }
table { border-collapse: collapse; width: 100%; margin-bottom: 2rem; }
th, td { text-align: left; padding: .4rem .6rem; border-bottom: 1px solid #eee; vertical-align: top; }
tr.passed td.status { color: #2e7d32; }
tr.failed td.status { color: #c62828; }
tr.skipped td.status, tr.notrun td.status { color: #f9a825; }
pre { margin: .3rem 0 0; white-space: pre-wrap; font-size: .85rem; background: #fafafa; padding: .4rem; }
.trait { display: inline-block; background: #eef; border-radius: 3px; padding: 0 .3rem; margin-right: .2rem; font-size: .8rem; }
.errors { color: #c62828; }
</style>
</head>
<body>
<h1>Test results</h1>
<div class="meta">testhost {{.Version}} &middot; {{.Time}}</div>
<div>
  {{.Summary.Total}} total, {{.Summary.Passed}} passed, {{.Summary.Failed}} failed,
  {{.Summary.Skipped}} skipped, {{.Summary.NotRun}} not run, {{.Summary.Errors}} errors
  in {{printf "%.3f" .Summary.Seconds}}s
</div>
<div class="bar">
  <div class="passed" style="width: {{printf "%.1f" .PassedPercent}}%"></div>
  <div class="failed" style="width: {{printf "%.1f" .FailedPercent}}%"></div>
  <div class="skipped" style="width: {{printf "%.1f" .SkippedPercent}}%"></div>
</div>
{{range .Assemblies}}
<h2>{{.Name}}{{if .Cancelled}} (cancelled){{end}}</h2>
<div class="meta">seed {{.Seed}}{{if .Durations.Max}} &middot; p50 {{.Durations.P50}}, p95 {{.Durations.P95}}, p99 {{.Durations.P99}}{{end}}</div>
{{if .Errors}}<ul class="errors">{{range .Errors}}<li>{{.}}</li>{{end}}</ul>{{end}}
<table>
<thead><tr><th>Status</th><th>Test</th><th>Collection</th><th>Duration</th></tr></thead>
<tbody>
{{range .Tests}}
<tr class="{{.StatusClass}}">
  <td class="status">{{.StatusClass}}</td>
  <td>
    {{.Name}}
    {{range $name, $values := .Traits}}{{range $values}}<span class="trait">{{$name}}={{.}}</span>{{end}}{{end}}
    {{if .Reason}}<pre>{{.Reason}}</pre>{{end}}
    {{if .Failure}}<pre>{{.Failure}}</pre>{{end}}
    {{range .Warnings}}<pre>warning: {{.}}</pre>{{end}}
    {{if .Output}}<pre>{{.Output}}</pre>{{end}}
  </td>
  <td>{{.Collection}}</td>
  <td>{{.Duration}}ms</td>
</tr>
{{end}}
</tbody>
</table>
{{end}}
</body>
</html>
`
