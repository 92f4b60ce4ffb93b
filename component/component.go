package component

import "context"

// HealthStatus is the coarse state a component reports.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// Health is one component's answer to a health check.
type Health struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// OK reports whether the component is fully healthy.
func (h Health) OK() bool { return h.Status == StatusHealthy }

func (h Health) String() string {
	s := h.Name + "=" + string(h.Status)
	if h.Message != "" {
		s += "(" + h.Message + ")"
	}
	return s
}

// Component is a piece of infrastructure with a start/stop lifecycle:
// a connection pool, a consumer group, the update hub.
type Component interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health(ctx context.Context) Health
}

// Description is the startup summary line of a component.
type Description struct {
	// Name is the display name; Name() is used when empty.
	Name string
	// Type is a short category such as "redis" or "kafka".
	Type    string
	Details string
}

// Describable is implemented by components that can say how they are
// configured.
type Describable interface {
	Describe() Description
}
