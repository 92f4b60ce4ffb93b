// Package component defines the lifecycle contract for the infrastructure
// the observer service runs on: state stores, event consumers and the
// telemetry exporters.
//
// Components are started in registration order and stopped in reverse, so
// the state store comes up before the consumer that writes to it and goes
// down after it.
package component
