package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// withChiParam attaches a chi URL param to req the way the router would
// after matching a "/{name}"-style route, so handlers can be exercised
// directly with httptest instead of through the full router.
func withChiParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}
