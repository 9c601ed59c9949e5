package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectLabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Collect(nil))
	r.Get("/users/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Get("/metrics", ProvideMetrics().ServeHTTP)

	uri := totalHttpRequestsToUri.WithLabelValues("418", "/users/{id}", http.MethodGet)
	self := totalHttpRequestsToUri.WithLabelValues("200", "/metrics", http.MethodGet)
	before, selfBefore := testutil.ToFloat64(uri), testutil.ToFloat64(self)

	for _, p := range []string{"/users/1", "/users/2", "/metrics"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, p, nil))
	}

	assert.Equal(t, before+2, testutil.ToFloat64(uri))
	assert.Equal(t, selfBefore, testutil.ToFloat64(self), "self-scrape is skipped")
}

func TestScriptCollectors(t *testing.T) {
	c := scriptInvocations.WithLabelValues("handler", OutcomeFault)
	before := testutil.ToFloat64(c)
	ScriptInvocation("handler", OutcomeFault)
	assert.Equal(t, before+1, testutil.ToFloat64(c))

	open := testutil.ToFloat64(websocketSessions)
	SessionOpened()
	SessionOpened()
	SessionClosed()
	assert.Equal(t, open+1, testutil.ToFloat64(websocketSessions))

	ObserveGuardWait(2 * time.Millisecond)
	n, err := testutil.GatherAndCount(prometheus.DefaultGatherer, "script_guard_wait_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
