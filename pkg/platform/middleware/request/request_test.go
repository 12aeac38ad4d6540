package request

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"ekyc/pkg/requestcontext"
)

func TestRequestID(t *testing.T) {
	capture := func(header string) (string, *httptest.ResponseRecorder) {
		var got string
		h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = requestcontext.RequestID(r.Context())
		}))
		req := httptest.NewRequest(http.MethodGet, "/documents", nil)
		if header != "" {
			req.Header.Set("X-Request-ID", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return got, rec
	}

	t.Run("generates when absent", func(t *testing.T) {
		id, rec := capture("")
		assert.Len(t, id, 36)
		assert.Equal(t, id, rec.Header().Get("X-Request-ID"))
	})

	t.Run("keeps valid client id", func(t *testing.T) {
		id, _ := capture("upload-42.a_b")
		assert.Equal(t, "upload-42.a_b", id)
	})

	t.Run("replaces unsafe client id", func(t *testing.T) {
		id, _ := capture("bad id\nInjected: 1")
		assert.NotEqual(t, "bad id\nInjected: 1", id)
		id, _ = capture(strings.Repeat("a", MaxRequestIDLength+1))
		assert.Len(t, id, 36)
	})
}

func TestRecovery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Recovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal_error"}`, rec.Body.String())
}

func TestClientIP(t *testing.T) {
	var ip string
	h := ClientIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip = requestcontext.ClientIP(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "10.1.2.3", ip)
}

func TestLatency_LabelsByRoutePattern(t *testing.T) {
	m := NewMetricsWithRegisterer(prometheus.NewRegistry())
	r := chi.NewRouter()
	r.Use(Latency(m))
	r.Get("/documents/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/documents/"+id, nil))
	}

	assert.Equal(t, float64(2), testutil.ToFloat64(m.Requests.WithLabelValues("/documents/{id}", http.MethodGet, "4xx")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.EndpointLatency))
}
