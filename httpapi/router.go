package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/webhookgw/webhookgw/ingestion"
	"github.com/webhookgw/webhookgw/pkg/clientip"
	"github.com/webhookgw/webhookgw/pkg/httpserver"
	"github.com/webhookgw/webhookgw/pkg/jwt"
	"github.com/webhookgw/webhookgw/pkg/requestid"
	"github.com/webhookgw/webhookgw/provider"
	"github.com/webhookgw/webhookgw/retrydispatch"
	"github.com/webhookgw/webhookgw/securitylog"
	"github.com/webhookgw/webhookgw/webhookevent"
)

// Router wires C7 and C9-C13 into one chi mux.
type Router struct {
	Pipeline       *ingestion.Pipeline
	MaxPayloadSize int64

	Providers provider.Store
	Events    webhookevent.Store
	Logs      securitylog.Storage
	Retry     *retrydispatch.Dispatcher

	JWT            *jwt.Service
	CORSOrigins    []string
	Logger         *slog.Logger
	ReadyCheckFunc []func(context.Context) error
}

// Build assembles the HTTP handler. Ready is a background context used
// only to run readiness probe functions, not request handling.
func (rt *Router) Build(ready context.Context) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(clientip.Middleware)

	r.Get("/healthz", httpserver.HealthCheckHandler(ready, rt.logger()))
	r.Get("/readyz", httpserver.HealthCheckHandler(ready, rt.logger(), rt.ReadyCheckFunc...))

	ingest := &IngestHandler{Pipeline: rt.Pipeline, MaxPayloadSize: rt.MaxPayloadSize}
	r.Post("/webhooks/{provider_name}", ingest.ServeHTTP)

	providerAPI := &ProviderAPI{Store: rt.Providers}
	webhookAPI := &WebhookAPI{Events: rt.Events, Retry: rt.Retry}
	logAPI := &SecurityLogAPI{Storage: rt.Logs}

	r.Route("/admin", func(r chi.Router) {
		r.Use(CORS(rt.CORSOrigins))
		r.Use(requestid.Middleware)
		r.Use(jwt.Middleware(rt.JWT))

		r.Route("/providers", func(r chi.Router) {
			r.Get("/", providerAPI.List)
			r.Post("/", providerAPI.Create)
			r.Get("/{name}", providerAPI.Get)
			r.Put("/{name}", providerAPI.Update)
			r.Delete("/{name}", providerAPI.Delete)
			r.Get("/{name}/stats", providerAPI.Stats)
		})

		r.Route("/webhooks", func(r chi.Router) {
			r.Get("/", webhookAPI.List)
			r.Get("/stats", webhookAPI.Stats)
			r.Get("/{id}", webhookAPI.Get)
			r.Post("/{id}/retry", webhookAPI.Retry)
		})

		r.Route("/logs", func(r chi.Router) {
			r.Get("/", logAPI.List)
			r.Get("/stats", logAPI.Stats)
			r.Get("/export", logAPI.Export)
			r.Get("/{id}", logAPI.Get)
		})
	})

	return r
}

func (rt *Router) logger() *slog.Logger {
	if rt.Logger != nil {
		return rt.Logger
	}
	return slog.Default()
}
