// Package otel bridges Guard counters to OpenTelemetry observable
// instruments. Values are pulled from a snapshot inside the meter
// callback, so collection cost lands on the exporter's schedule, not
// on request paths.
package otel
