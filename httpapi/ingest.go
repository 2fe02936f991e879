package httpapi

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/webhookgw/webhookgw/ingestion"
	"github.com/webhookgw/webhookgw/pkg/clientip"
)

// IngestHandler exposes the inbound webhook endpoint, POST
// /webhooks/{provider_name}.
type IngestHandler struct {
	Pipeline       *ingestion.Pipeline
	MaxPayloadSize int64
}

type acceptedBody struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	WebhookID string `json:"webhook_id"`
}

func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider_name")

	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxPayloadSize()+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if int64(len(body)) > h.maxPayloadSize() {
		writeError(w, http.StatusRequestEntityTooLarge, "request body exceeds maximum payload size")
		return
	}

	headers := make(map[string]string, len(r.Header))
	for name := range r.Header {
		headers[name] = r.Header.Get(name)
	}

	req := ingestion.Request{
		ProviderName: providerName,
		Signature:    r.Header.Get("X-Signature"),
		Timestamp:    r.Header.Get("X-Timestamp"),
		RequestID:    r.Header.Get("X-Request-ID"),
		Headers:      headers,
		Body:         body,
		ClientIP:     clientip.GetIPFromContext(r.Context()),
	}

	result, rej := h.Pipeline.Ingest(r.Context(), req)
	if rej != nil {
		writeError(w, rej.Status(), rej.Detail)
		return
	}

	writeJSON(w, http.StatusAccepted, acceptedBody{
		Status:    "accepted",
		Message:   "webhook accepted for processing",
		WebhookID: result.WebhookID.String(),
	})
}

func (h *IngestHandler) maxPayloadSize() int64 {
	if h.MaxPayloadSize > 0 {
		return h.MaxPayloadSize
	}
	return 1_000_000
}
