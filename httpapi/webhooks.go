package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/webhookgw/webhookgw/retrydispatch"
	"github.com/webhookgw/webhookgw/webhookevent"
)

// WebhookAPI implements the Admin Webhook API (C11): list/filter/paginate
// webhook events and trigger a retry dispatch (C9).
type WebhookAPI struct {
	Events webhookevent.Store
	Retry  *retrydispatch.Dispatcher
}

type webhookResponse struct {
	ID             string            `json:"id"`
	ProviderID     string            `json:"provider_id"`
	RequestID      string            `json:"request_id"`
	Headers        map[string]string `json:"headers"`
	SignatureValid bool              `json:"signature_valid"`
	Forwarded      bool              `json:"forwarded"`
	ResponseStatus *int              `json:"response_status"`
	ResponseBody   *string           `json:"response_body"`
	ErrorMessage   *string           `json:"error_message"`
	ReceivedAt     time.Time         `json:"received_at"`
	ForwardedAt    *time.Time        `json:"forwarded_at"`
}

func toWebhookResponse(e *webhookevent.Event) webhookResponse {
	return webhookResponse{
		ID:             e.ID.String(),
		ProviderID:     e.ProviderID.String(),
		RequestID:      e.RequestID,
		Headers:        e.Headers,
		SignatureValid: e.SignatureValid,
		Forwarded:      e.Forwarded,
		ResponseStatus: e.ResponseStatus,
		ResponseBody:   e.ResponseBody,
		ErrorMessage:   e.ErrorMessage,
		ReceivedAt:     e.ReceivedAt,
		ForwardedAt:    e.ForwardedAt,
	}
}

type webhookStatsResponse struct {
	Total     int64 `json:"total"`
	Forwarded int64 `json:"forwarded"`
	Pending   int64 `json:"pending"`
}

func (a *WebhookAPI) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseWebhookFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := a.Events.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list webhook events")
		return
	}

	out := make([]webhookResponse, 0, len(events))
	for _, e := range events {
		out = append(out, toWebhookResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *WebhookAPI) Stats(w http.ResponseWriter, r *http.Request) {
	filter, err := parseWebhookFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.Limit, filter.Offset = 0, 0

	total, err := a.Events.Count(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute webhook stats")
		return
	}

	forwardedTrue := true
	forwardedFilter := filter
	forwardedFilter.Forwarded = &forwardedTrue
	forwarded, err := a.Events.Count(r.Context(), forwardedFilter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute webhook stats")
		return
	}

	writeJSON(w, http.StatusOK, webhookStatsResponse{
		Total:     total,
		Forwarded: forwarded,
		Pending:   total - forwarded,
	})
}

func (a *WebhookAPI) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed webhook id")
		return
	}

	event, err := a.Events.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, webhookevent.ErrNotFound) {
			writeError(w, http.StatusNotFound, "webhook event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch webhook event")
		return
	}
	writeJSON(w, http.StatusOK, toWebhookResponse(event))
}

func (a *WebhookAPI) Retry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed webhook id")
		return
	}

	event, err := a.Retry.Retry(r.Context(), id)
	if err != nil {
		if errors.Is(err, retrydispatch.ErrNotFound) {
			writeError(w, http.StatusNotFound, "webhook event or its provider not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to enqueue retry")
		return
	}
	writeJSON(w, http.StatusAccepted, toWebhookResponse(event))
}

func parseWebhookFilter(r *http.Request) (webhookevent.Filter, error) {
	q := r.URL.Query()
	var f webhookevent.Filter

	if v := q.Get("provider_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, errors.New("malformed provider_id")
		}
		f.ProviderID = &id
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("since must be an RFC3339 timestamp")
		}
		f.Since = &t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("until must be an RFC3339 timestamp")
		}
		f.Until = &t
	}
	if v := q.Get("forwarded"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, errors.New("forwarded must be a boolean")
		}
		f.Forwarded = &b
	}
	f.Limit = parseIntDefault(q.Get("limit"), 50)
	f.Offset = parseIntDefault(q.Get("offset"), 0)
	return f, nil
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
