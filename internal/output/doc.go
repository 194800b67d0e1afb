// Package output converts a finished build's captured invocations into
// consumable forms.
//
// Two formatters:
//   - WriteSummary: plain-text listing of the capture for the terminal
//   - SpanFormatter: OpenTelemetry spans, one per invocation, parented
//     through the recorded PID/PPID chain so compiler pipelines appear as
//     trace trees
//
// Formatting is a pure consumption layer: expression evaluation lives in
// the attributes package and capture access in the capture package.
package output
