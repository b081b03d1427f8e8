package provider

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeUpstream replays canned stream frames, flushing after each one.
// With hold set it keeps the response open until the client disconnects.
type fakeUpstream struct {
	*httptest.Server
	mu       sync.Mutex
	paths    []string
	bodies   []string
	released chan struct{}
}

func newFakeUpstream(t *testing.T, contentType string, frames []string, hold bool) *fakeUpstream {
	t.Helper()
	f := &fakeUpstream{released: make(chan struct{})}
	var once sync.Once
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.paths = append(f.paths, r.URL.Path)
		f.bodies = append(f.bodies, string(body))
		f.mu.Unlock()

		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for _, frame := range frames {
			_, _ = io.WriteString(w, frame)
			flusher.Flush()
		}
		if hold {
			<-r.Context().Done()
			once.Do(func() { close(f.released) })
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeUpstream) lastRequest() (path, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.paths) == 0 {
		return "", ""
	}
	return f.paths[len(f.paths)-1], f.bodies[len(f.bodies)-1]
}

func (f *fakeUpstream) waitReleased(t *testing.T) {
	t.Helper()
	select {
	case <-f.released:
	case <-time.After(5 * time.Second):
		t.Fatal("upstream connection was not released after the consumer stopped")
	}
}

var toolRequest = Request{
	System:      "be brief",
	Messages:    []Message{{Role: RoleUser, Content: "summarize a.csv"}},
	Temperature: 0.2,
	Tools: []ToolSpec{{
		Name:        "analyzeFile",
		Description: "Analyze an uploaded file",
		Schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"fileUrl": map[string]any{"type": "string"}},
			"required":   []string{"fileUrl"},
		},
	}},
}

// drainStream collects all text and tool calls from one model call.
func drainStream(t *testing.T, c Client, req Request) ([]string, []ToolCall) {
	t.Helper()
	var texts []string
	var calls []ToolCall
	for chunk, err := range c.Stream(context.Background(), req) {
		require.NoError(t, err)
		if chunk.Text != "" {
			texts = append(texts, chunk.Text)
		}
		calls = append(calls, chunk.ToolCalls...)
	}
	return texts, calls
}

// firstChunkThenStop reads one chunk and abandons the iterator.
func firstChunkThenStop(t *testing.T, c Client) string {
	t.Helper()
	for chunk, err := range c.Stream(context.Background(), toolRequest) {
		require.NoError(t, err)
		return chunk.Text
	}
	t.Fatal("stream produced no chunks")
	return ""
}
