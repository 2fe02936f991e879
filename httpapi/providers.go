package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/webhookgw/webhookgw/provider"
)

// ProviderAPI implements the Admin Provider API (C10): CRUD over
// providers, with stats. SecretKey is write-only — Response never
// serializes it back.
type ProviderAPI struct {
	Store provider.Store
}

// providerResponse is the admin-facing provider shape; secret_key is
// deliberately absent.
type providerResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	ForwardingURL string    `json:"forwarding_url"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toProviderResponse(p *provider.Provider) providerResponse {
	return providerResponse{
		ID:            p.ID.String(),
		Name:          p.Name,
		ForwardingURL: p.ForwardingURL,
		IsActive:      p.IsActive,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

type providerStatsResponse struct {
	TotalWebhooks      int64      `json:"total_webhooks"`
	SuccessfulWebhooks int64      `json:"successful_webhooks"`
	FailedWebhooks     int64      `json:"failed_webhooks"`
	LastWebhookAt      *time.Time `json:"last_webhook_at"`
}

type createProviderRequest struct {
	Name          string `json:"name"`
	SecretKey     string `json:"secret_key"`
	ForwardingURL string `json:"forwarding_url"`
}

type updateProviderRequest struct {
	SecretKey     string `json:"secret_key"`
	ForwardingURL string `json:"forwarding_url"`
	IsActive      *bool  `json:"is_active"`
}

func (a *ProviderAPI) List(w http.ResponseWriter, r *http.Request) {
	providers, err := a.Store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list providers")
		return
	}

	out := make([]providerResponse, 0, len(providers))
	for _, p := range providers {
		out = append(out, toProviderResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *ProviderAPI) Create(w http.ResponseWriter, r *http.Request) {
	var req createProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p := &provider.Provider{
		Name:          req.Name,
		SecretKey:     []byte(req.SecretKey),
		ForwardingURL: req.ForwardingURL,
	}

	if err := a.Store.Create(r.Context(), p); err != nil {
		writeProviderError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProviderResponse(p))
}

func (a *ProviderAPI) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	providers, err := a.Store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to look up provider")
		return
	}
	for _, p := range providers {
		if p.Name == name {
			writeJSON(w, http.StatusOK, toProviderResponse(p))
			return
		}
	}
	writeError(w, http.StatusNotFound, "provider not found")
}

func (a *ProviderAPI) Update(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req updateProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	p := &provider.Provider{
		Name:          name,
		SecretKey:     []byte(req.SecretKey),
		ForwardingURL: req.ForwardingURL,
		IsActive:      isActive,
	}

	if err := a.Store.Update(r.Context(), p); err != nil {
		writeProviderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProviderResponse(p))
}

func (a *ProviderAPI) Delete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := a.Store.Delete(r.Context(), name); err != nil {
		writeProviderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *ProviderAPI) Stats(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	providers, err := a.Store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to look up provider")
		return
	}

	var id uuid.UUID
	found := false
	for _, p := range providers {
		if p.Name == name {
			id = p.ID
			found = true
			break
		}
	}
	if !found {
		writeError(w, http.StatusNotFound, "provider not found")
		return
	}

	stats, err := a.Store.Stats(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute provider stats")
		return
	}

	writeJSON(w, http.StatusOK, providerStatsResponse{
		TotalWebhooks:      stats.TotalWebhooks,
		SuccessfulWebhooks: stats.SuccessfulWebhooks,
		FailedWebhooks:     stats.FailedWebhooks,
		LastWebhookAt:      stats.LastWebhookAt,
	})
}

func writeProviderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, provider.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, provider.ErrNameTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, provider.ErrHasEvents):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, provider.ErrInvalidName), errors.Is(err, provider.ErrInvalidSecret), errors.Is(err, provider.ErrInvalidURL):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "failed to save provider")
	}
}
