package observability

import (
	"sync"

	"go.opentelemetry.io/otel"

	"github.com/ETS-Next-Gen/writing-observer-sub002/logger"
)

var diagnostics sync.Once

// routeDiagnostics sends the SDK's own logs and export errors to the
// service logger instead of the standard library's.
func routeDiagnostics() {
	diagnostics.Do(func() {
		log := logger.WithComponent("otel")
		otel.SetLogger(log.Logr())
		otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
			log.Warn("Telemetry export failed", logger.Fields(logger.FieldError, err.Error()))
		}))
	})
}
