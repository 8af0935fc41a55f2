package indicators

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/altamarfin/marketd/internal/store"
)

type fakeFetcher struct {
	calls int
	fn    func(seriesID string) (observation, error)
}

func (f *fakeFetcher) Latest(_ context.Context, seriesID string) (observation, error) {
	f.calls++
	return f.fn(seriesID)
}

func TestGetAllFetchesAndCaches(t *testing.T) {
	f := &fakeFetcher{fn: func(string) (observation, error) {
		return observation{Value: 985.23, Date: "2026-08-28"}, nil
	}}
	s := NewService(f, store.NewMemory(), time.Hour, zap.NewNop())

	set := s.GetAll(context.Background())
	assert.Equal(t, "banco_central", set.Source)
	assert.Empty(t, set.Error)
	assert.Len(t, set.Indicators, len(seriesTable))
	assert.Equal(t, len(seriesTable), f.calls)

	dolar := set.Indicators["dolar"]
	assert.Equal(t, "DOLAR", dolar.Name)
	assert.Equal(t, 985.23, dolar.Value)
	assert.Equal(t, "$", dolar.Unit)
	assert.Equal(t, "%", set.Indicators["tpm"].Unit)

	// Second call is served from cache.
	s.GetAll(context.Background())
	assert.Equal(t, len(seriesTable), f.calls)
}

func TestGetAllPartialFailureKeepsRest(t *testing.T) {
	f := &fakeFetcher{fn: func(seriesID string) (observation, error) {
		if seriesID == "F073.UFF.PRE.Z.D" {
			return observation{}, errors.New("series unavailable")
		}
		return observation{Value: 1.0, Date: "2026-08-28"}, nil
	}}
	s := NewService(f, store.NewMemory(), time.Hour, zap.NewNop())

	set := s.GetAll(context.Background())
	assert.Equal(t, "banco_central", set.Source)
	assert.Len(t, set.Indicators, len(seriesTable)-1)
	_, ok := set.Indicators["uf"]
	assert.False(t, ok)
}

func TestGetAllFallbackOnTotalFailure(t *testing.T) {
	f := &fakeFetcher{fn: func(string) (observation, error) {
		return observation{}, errors.New("connection refused")
	}}
	st := store.NewMemory()
	s := NewService(f, st, time.Hour, zap.NewNop())

	set := s.GetAll(context.Background())
	assert.Equal(t, "fallback", set.Source)
	assert.Contains(t, set.Error, "connection refused")
	assert.Equal(t, 980.50, set.Indicators["dolar"].Value)
	assert.Equal(t, 37500.00, set.Indicators["uf"].Value)
	assert.Equal(t, 65967.00, set.Indicators["utm"].Value)
	assert.Equal(t, 1020.30, set.Indicators["euro"].Value)

	// Fallback snapshots are never cached.
	assert.Equal(t, 0, st.Len())
}

func TestGetAllNoCredentials(t *testing.T) {
	s := NewService(nil, store.NewMemory(), time.Hour, zap.NewNop())

	set := s.GetAll(context.Background())
	assert.Equal(t, "fallback", set.Source)
	assert.Contains(t, set.Error, "no credentials")
}

func TestSieteClientLatest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GetSeries", r.URL.Query().Get("function"))
		assert.Equal(t, "F073.TCO.PRE.Z.D", r.URL.Query().Get("timeseries"))
		assert.Equal(t, "alice", r.URL.Query().Get("user"))
		w.Write([]byte(`{
			"Codigo": 0,
			"Descripcion": "Success",
			"Series": {
				"descripEsp": "Dolar observado",
				"Obs": [
					{"indexDateString": "27-08-2026", "value": "978.10", "statusCode": "OK"},
					{"indexDateString": "28-08-2026", "value": "981.45", "statusCode": "OK"},
					{"indexDateString": "29-08-2026", "value": "NaN", "statusCode": "ND"}
				]
			}
		}`))
	}))
	defer srv.Close()

	c := NewSieteClient(srv.URL, "alice", "secret")
	obs, err := c.Latest(context.Background(), "F073.TCO.PRE.Z.D")
	require.NoError(t, err)
	assert.Equal(t, 981.45, obs.Value, "trailing ND padding must be skipped")
	assert.Equal(t, "2026-08-28", obs.Date)
}

func TestSieteClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"Codigo": -5, "Descripcion": "Authentication failed"}`))
	}))
	defer srv.Close()

	c := NewSieteClient(srv.URL, "alice", "wrong")
	_, err := c.Latest(context.Background(), "F073.TCO.PRE.Z.D")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Authentication failed")
}
