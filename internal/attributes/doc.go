// Package attributes provides expression evaluation and validation for
// custom attributes, trace IDs, and parent span IDs.
//
// Expressions are evaluated against captured invocations (argument vector,
// command line, working directory, recording PID) using the expr language.
//
// Three evaluators:
//   - Evaluator: evaluates custom attribute expressions
//   - TraceIDEvaluator: evaluates and validates trace ID expressions (32 hex chars)
//   - ParentIDEvaluator: evaluates and validates parent span ID expressions (16 hex chars)
//
// Invalid trace IDs are hashed with SHA-256 to produce valid IDs. Invalid
// parent IDs result in a null parent (zero span ID).
package attributes
