package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_ExposesSnapshots(t *testing.T) {
	engine := NewEngine()
	engine.Add(HTTPReqs, 3, nil)
	engine.RecordSuccess(Errors, false, nil)
	engine.RecordSuccess(Errors, true, nil)
	engine.Record(HTTPReqDuration, 42, nil)
	engine.AdjustActiveVUs(2)

	server := httptest.NewServer(Handler(engine))
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)

	assert.Contains(t, text, "prload_http_reqs_total 3")
	assert.Contains(t, text, `prload_errors_samples_total{hit="true"} 1`)
	assert.Contains(t, text, "prload_errors_ratio 0.5")
	assert.Contains(t, text, `prload_http_req_duration{quantile="0.95"} 42`)
	assert.Contains(t, text, "prload_http_req_duration_count 1")
	assert.Contains(t, text, "prload_active_vus 2")
}

func TestPromName(t *testing.T) {
	assert.Equal(t, "prload_http_req_duration", promName("http_req_duration"))
	assert.Equal(t, "prload_my_metric_x", promName("my-metric.x"))
}
