package observability

import (
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Target names the service being observed and the collector its
// telemetry goes to. Traces and metrics share it.
type Target struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Endpoint is the collector host:port, without scheme.
	Endpoint string
	Insecure bool
}

// DefaultTarget points at a local collector over plain HTTP.
func DefaultTarget(serviceName string) Target {
	return Target{
		ServiceName:    serviceName,
		ServiceVersion: "dev",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
	}
}

// resource describes the running service on every exported span and
// data point. The attributes are schemaless so merging with the SDK
// default cannot conflict on schema URL.
func (t Target) resource() (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(t.ServiceName),
			semconv.ServiceVersion(t.ServiceVersion),
			semconv.DeploymentEnvironment(t.Environment),
		),
	)
}
