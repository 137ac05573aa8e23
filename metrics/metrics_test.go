package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teatak/postag/tagger"
)

var _ tagger.Observer = DecodeObserver{}

func TestMetricsMiddleware_RecordsDurationAndCount(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Post("/v1/tag", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	req := httptest.NewRequest("POST", "/v1/tag", http.NoBody)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	assert.GreaterOrEqual(t, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "/v1/tag", "200")), 1.0)
	assert.NotZero(t, testutil.CollectAndCount(httpRequestDuration))
}

func TestMetricsMiddleware_StatusCodes(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/ok", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/unprocessable", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	})

	tests := []struct {
		path           string
		expectedStatus string
	}{
		{"/ok", "200"},
		{"/unprocessable", "422"},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.path, http.NoBody)
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			val := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", tc.path, tc.expectedStatus))
			assert.GreaterOrEqual(t, val, 1.0)
		})
	}
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "unknown", normalizePath(""))
	assert.Equal(t, "/v1/tags", normalizePath("/v1/tags"))
}

func TestDecodeObserver(t *testing.T) {
	RegisterDecodeMetrics()
	RegisterDecodeMetrics()

	before := testutil.ToFloat64(DecodesTotal.WithLabelValues("infeasible"))
	tokensBefore := testutil.ToFloat64(DecodeTokensTotal)

	var o DecodeObserver
	o.ObserveDecode(3, time.Millisecond, "infeasible")
	o.ObserveDecode(2, time.Millisecond, "ok")

	assert.Equal(t, before+1, testutil.ToFloat64(DecodesTotal.WithLabelValues("infeasible")))
	assert.Equal(t, tokensBefore+5, testutil.ToFloat64(DecodeTokensTotal))
	assert.NotZero(t, testutil.CollectAndCount(DecodeDuration))
}
