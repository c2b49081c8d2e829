package stats

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDiskStatus(t *testing.T) {
	status := NewDiskStatus(t.TempDir())
	assert.NotZero(t, status.All)
	assert.LessOrEqual(t, status.Free, status.All)
}

func TestMemStat(t *testing.T) {
	m := MemStat()
	assert.Positive(t, m.Goroutines)
	assert.NotZero(t, m.Heap)
}

func TestJoinHostPort(t *testing.T) {
	assert.Equal(t, "127.0.0.1:9333", JoinHostPort("127.0.0.1", 9333))
	assert.Equal(t, "[::1]:9333", JoinHostPort("::1", 9333))
	assert.Equal(t, "[::1]:9333", JoinHostPort("[::1]", 9333))
}

func TestMetricsServerHandler(t *testing.T) {
	MasterWriteGateDeniedCounter.WithLabelValues("append").Inc()

	rec := httptest.NewRecorder()
	metricsServerHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "SeaweedFS_master_write_gate_denied_total")

	rec = httptest.NewRecorder()
	metricsServerHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
