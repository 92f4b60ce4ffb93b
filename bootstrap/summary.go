package bootstrap

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ETS-Next-Gen/writing-observer-sub002/component"
)

// CatalogInfo lists the named entries of one registry, e.g. the loaded
// query documents or the registered reducers.
type CatalogInfo struct {
	Kind  string
	Names []string
}

// ConsumerInfo represents a message consumer or forwarder.
type ConsumerInfo struct {
	Name  string
	Group string
	Topic string
}

// Summary collects what the application wired during startup and prints
// it once the application is ready.
type Summary struct {
	serviceName     string
	version         string
	startupDuration time.Duration
	catalogs        []CatalogInfo
	consumers       []ConsumerInfo
}

// NewSummary creates a new bootstrap summary tracker.
func NewSummary(serviceName, version string) *Summary {
	return &Summary{serviceName: serviceName, version: version}
}

// SetStartupDuration records the total startup time.
func (s *Summary) SetStartupDuration(d time.Duration) {
	s.startupDuration = d
}

// TrackCatalog records the entries of a registry.
func (s *Summary) TrackCatalog(kind string, names []string) {
	s.catalogs = append(s.catalogs, CatalogInfo{Kind: kind, Names: append([]string(nil), names...)})
}

// TrackConsumer records a message consumer.
func (s *Summary) TrackConsumer(name, group, topic string) {
	s.consumers = append(s.consumers, ConsumerInfo{Name: name, Group: group, Topic: topic})
}

// Render writes the summary to w. Infrastructure lines and live health
// come from the registry; it may be nil.
func (s *Summary) Render(w io.Writer, registry *component.Registry) {
	version := s.version
	if version == "" {
		version = "dev"
	}
	fmt.Fprintf(w, "\n🚀 %s %s started in %.2fs\n", s.serviceName, version, s.startupDuration.Seconds())

	var infra []component.Description
	if registry != nil {
		for _, c := range registry.All() {
			if d, ok := c.(component.Describable); ok {
				infra = append(infra, d.Describe())
			}
		}
	}
	if len(infra) > 0 {
		fmt.Fprintf(w, "\n📊 Infrastructure\n")
		for i, d := range infra {
			fmt.Fprintf(w, "   %s %s [%s]: %s\n", treePrefix(i, len(infra)), d.Name, d.Type, d.Details)
		}
	}

	if len(s.catalogs) > 0 {
		fmt.Fprintf(w, "\n📚 Catalogs\n")
		for i, c := range s.catalogs {
			list := strings.Join(c.Names, ", ")
			if list == "" {
				list = "none"
			}
			fmt.Fprintf(w, "   %s %s (%d): %s\n", treePrefix(i, len(s.catalogs)), c.Kind, len(c.Names), list)
		}
	}

	if len(s.consumers) > 0 {
		fmt.Fprintf(w, "\n📨 Consumers\n")
		for i, c := range s.consumers {
			group := c.Group
			if group == "" {
				group = "-"
			}
			fmt.Fprintf(w, "   %s %s (group: %s, topic: %s)\n", treePrefix(i, len(s.consumers)), c.Name, group, c.Topic)
		}
	}

	if registry != nil {
		results := registry.HealthAll(context.Background())
		if len(results) > 0 {
			fmt.Fprintf(w, "\n🏥 Health Check\n")
			healthy := 0
			for i, h := range results {
				msg := ""
				if h.Message != "" {
					msg = " (" + h.Message + ")"
				}
				if h.Status == component.StatusHealthy {
					healthy++
				}
				fmt.Fprintf(w, "   %s %s %s: %s%s\n", treePrefix(i, len(results)), healthStatusIcon(h.Status), h.Name, strings.ToLower(string(h.Status)), msg)
			}
			if healthy == len(results) {
				fmt.Fprintf(w, "\n✅ All components healthy (%d/%d)\n", healthy, len(results))
			} else {
				fmt.Fprintf(w, "\n⚠️  Some components have issues (%d/%d healthy)\n", healthy, len(results))
			}
		}
	}
	fmt.Fprintln(w)
}

func treePrefix(i, n int) string {
	if i == n-1 {
		return "└──"
	}
	return "├──"
}

func healthStatusIcon(status component.HealthStatus) string {
	switch status {
	case component.StatusHealthy:
		return "✅"
	case component.StatusDegraded:
		return "⚠️"
	case component.StatusUnhealthy:
		return "❌"
	default:
		return "❓"
	}
}
