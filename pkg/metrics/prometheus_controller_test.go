package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestPrometheusController_DefaultPath(t *testing.T) {
	t.Parallel()

	require.Equal(t, "/debug/prometheus", NewPrometheusController("").Key())
	require.Equal(t, "/metrics", NewPrometheusController("/metrics").Key())
}

func TestPrometheusController_ServesGatherer(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "import",
		Name:      "test_total",
		Help:      "Test counter.",
	})
	reg.MustRegister(counter)
	counter.Add(3)

	r := mux.NewRouter()
	NewPrometheusController("/metrics", WithGatherer(reg)).Register(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "import_test_total 3")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
