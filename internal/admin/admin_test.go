package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/denzelpenzel/mcbridge/internal/backend"
	"github.com/denzelpenzel/mcbridge/internal/backend/breaker"
	"github.com/denzelpenzel/mcbridge/internal/backend/local"
	"github.com/denzelpenzel/mcbridge/internal/element"
	"github.com/denzelpenzel/mcbridge/internal/engine"
	"github.com/denzelpenzel/mcbridge/internal/metrics"
	"github.com/denzelpenzel/mcbridge/internal/op"
	"github.com/stretchr/testify/require"
)

func mockRouter(t *testing.T) (http.Handler, *engine.Engine) {
	s, err := local.Open(local.ShardsTotal(2))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	m := metrics.New()
	e := engine.New(s, engine.WithMetrics(m))
	return NewRouter(e, m), e
}

func do(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func Test_Router(t *testing.T) {
	h, e := mockRouter(t)

	_, err := e.Dispatch(context.Background(), &engine.Command{
		Op:      op.Set,
		Keys:    []string{"k"},
		Element: element.New("k", 0, 0, 0, []byte("v")),
	})
	require.NoError(t, err)

	t.Run("test healthz", func(t *testing.T) {
		rec := do(t, h, "/healthz")
		require.Equal(t, http.StatusOK, rec.Code)
		require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})

	t.Run("test stats", func(t *testing.T) {
		rec := do(t, h, "/stats")
		require.Equal(t, http.StatusOK, rec.Code)

		var stats map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
		require.Equal(t, "1", stats["curr_items"])
		require.Equal(t, "local", stats["backend"])

		rec = do(t, h, "/stats?filter=curr_items")
		require.JSONEq(t, `{"curr_items":"1"}`, rec.Body.String())
	})

	t.Run("test metrics", func(t *testing.T) {
		rec := do(t, h, "/metrics")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), `mcbridge_commands_total{op="SET",outcome="stored"} 1`)
	})

	t.Run("test unknown path", func(t *testing.T) {
		require.Equal(t, http.StatusNotFound, do(t, h, "/nope").Code)
	})
}

// slowStats is a store whose Stat is too expensive for a health check
type slowStats struct {
	*local.Store
	pingErr error
	stats   int
}

func (s *slowStats) Stat(context.Context, string) (map[string]string, error) {
	s.stats++
	return nil, errors.New("stat walked the keyspace")
}

func (s *slowStats) Ping(context.Context) error {
	return s.pingErr
}

func Test_Healthz(t *testing.T) {
	store, err := local.Open(local.ShardsTotal(2))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	t.Run("test healthz does not read stats", func(t *testing.T) {
		b := &slowStats{Store: store}
		h := NewRouter(engine.New(b), metrics.New())

		rec := do(t, h, "/healthz")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Zero(t, b.stats)
	})

	t.Run("test failing ping", func(t *testing.T) {
		b := &slowStats{Store: store, pingErr: errors.New("connection refused")}
		h := NewRouter(engine.New(b), metrics.New())

		rec := do(t, h, "/healthz")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		require.Contains(t, rec.Body.String(), "connection refused")
	})

	t.Run("test open breaker", func(t *testing.T) {
		br := breaker.New(breaker.Config{
			ErrorPct:       50,
			WindowDuration: time.Minute,
			OpenDuration:   time.Minute,
			MinRequests:    1,
		})
		var b backend.Backend = breaker.NewGuard(&slowStats{Store: store}, br)
		h := NewRouter(engine.New(b), metrics.New())
		require.Equal(t, http.StatusOK, do(t, h, "/healthz").Code)

		br.RecordFailure()
		require.Equal(t, breaker.StateOpen, br.State())
		require.Equal(t, http.StatusServiceUnavailable, do(t, h, "/healthz").Code)
	})
}
