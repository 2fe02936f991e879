package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webhookgw/webhookgw/securitylog"
)

type fakeSecurityLogStorage struct {
	events []securitylog.Event
}

func (f *fakeSecurityLogStorage) Store(ctx context.Context, events ...securitylog.Event) error {
	f.events = append(f.events, events...)
	return nil
}

func (f *fakeSecurityLogStorage) Query(ctx context.Context, c securitylog.Criteria) ([]securitylog.Event, error) {
	var out []securitylog.Event
	for _, e := range f.events {
		if c.EventType != "" && e.EventType != c.EventType {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeSecurityLogStorage) Count(ctx context.Context, c securitylog.Criteria) (int64, error) {
	events, _ := f.Query(ctx, c)
	return int64(len(events)), nil
}

func TestSecurityLogAPI_List(t *testing.T) {
	t.Parallel()

	storage := &fakeSecurityLogStorage{events: []securitylog.Event{
		{ID: "1", ProviderName: "stripe", EventType: securitylog.EventInvalidSignature, IPAddress: "203.0.113.7", CreatedAt: time.Now()},
	}}
	api := &SecurityLogAPI{Storage: storage}

	req := httptest.NewRequest(http.MethodGet, "/admin/logs", nil)
	rec := httptest.NewRecorder()
	api.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out []securityLogResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out, 1)
}

func TestSecurityLogAPI_Stats(t *testing.T) {
	t.Parallel()

	storage := &fakeSecurityLogStorage{events: []securitylog.Event{
		{ID: "1", EventType: securitylog.EventInvalidSignature, CreatedAt: time.Now()},
		{ID: "2", EventType: securitylog.EventReplayAttempt, CreatedAt: time.Now()},
	}}
	api := &SecurityLogAPI{Storage: storage}

	req := httptest.NewRequest(http.MethodGet, "/admin/logs/stats", nil)
	rec := httptest.NewRecorder()
	api.Stats(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var stats securityLogStatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.ByType[string(securitylog.EventInvalidSignature)])
}

func TestSecurityLogAPI_GetNotFound(t *testing.T) {
	t.Parallel()

	api := &SecurityLogAPI{Storage: &fakeSecurityLogStorage{}}
	req := httptest.NewRequest(http.MethodGet, "/admin/logs/ghost", nil)
	req = withChiParam(req, "id", "ghost")
	rec := httptest.NewRecorder()
	api.Get(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSecurityLogAPI_Export(t *testing.T) {
	t.Parallel()

	storage := &fakeSecurityLogStorage{events: []securitylog.Event{
		{ID: "1", ProviderName: "stripe", EventType: securitylog.EventInvalidSignature, IPAddress: "203.0.113.7", CreatedAt: time.Now()},
	}}
	api := &SecurityLogAPI{Storage: storage}

	req := httptest.NewRequest(http.MethodGet, "/admin/logs/export", nil)
	rec := httptest.NewRecorder()
	api.Export(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "invalid_signature")
}
