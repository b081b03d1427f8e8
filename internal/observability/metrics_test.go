package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesChatCounters(t *testing.T) {
	StreamStarted()
	RecordChat("chat-assistant", "completed", 2, 150*time.Millisecond)
	RecordToolExecution("analyzeFile", time.Millisecond, true)
	RecordHistoryDropped()

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	out := string(body)

	assert.True(t, strings.Contains(out, `agentdesk_chat_total{agent="chat-assistant",state="completed"} 1`))
	assert.True(t, strings.Contains(out, `agentdesk_tool_execution_total{status="success",tool="analyzeFile"} 1`))
	assert.True(t, strings.Contains(out, "agentdesk_history_dropped_total 1"))
}
