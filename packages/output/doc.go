// Package output provides the sinks that present a run.
//
// Sinks:
//   - ConsoleSink: human-readable colored terminal output
//   - AutomatedSink: one JSON object per event, optionally acknowledged
//   - ReportSink: report files written when the run closes
//
// Report formats: CTRF, HTML, JUnit, NUnit 2.5, xUnit.net v2 and TAP 13.
// Every report is rendered from the same Collector results.
package output
