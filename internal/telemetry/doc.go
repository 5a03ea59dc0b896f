// Package telemetry records provider call events and circuit breaker
// transitions. Recording is fire-and-forget: a Recorder never blocks or
// fails the operation being measured. The SQLite recorder additionally
// serves aggregated summaries for the stats command.
package telemetry
