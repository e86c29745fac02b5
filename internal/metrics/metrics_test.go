package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	t.Parallel()

	m := New()
	m.MessagesPersisted(2)
	m.MessagesPersisted(0)
	m.ReplyFiltered("error")
	m.ReplyFiltered("error")
	m.CompletionRequest(OutcomeOK, 120*time.Millisecond)
	m.PersistenceError("append")
	m.SurfaceOpened()
	m.SurfaceOpened()
	m.SurfaceClosed()

	assert.InDelta(t, 2, testutil.ToFloat64(m.messagesPersisted), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.repliesFiltered.WithLabelValues("error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.completionRequests.WithLabelValues(OutcomeOK)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.persistenceErrors.WithLabelValues("append")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.openSurfaces), 0)
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.MessagesPersisted(1)
	m.ReplyFiltered("x")
	m.CompletionRequest(OutcomeOK, time.Second)
	m.PersistenceError("load")
	m.SurfaceOpened()
	m.SurfaceClosed()
	assert.Nil(t, m.Registry())
}

func TestHandlerExposesMetrics(t *testing.T) {
	t.Parallel()

	m := New()
	m.ReplyFiltered("sorry")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `doubtsolver_replies_filtered_total{rule="sorry"} 1`))
}
