package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const fileAnalysisReply = `{"summary":"A lease.","keyPoints":["12 months"],"topics":["real estate"],"insights":["rent is fixed"],"questions":["Is there a renewal clause?"],"sentiment":"neutral","confidence":0.9}`

const insightReply = `{"title":"Lease risk","overview":"Low risk.","keyFindings":[{"finding":"Fixed rent","importance":"medium","category":"terms"}],"recommendations":["Renew early"],"trends":[],"nextSteps":["Review clause 4"],"confidence":0.6}`

func postAnalysis(t *testing.T, handle http.HandlerFunc, path, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	req := withCaller(httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)), "alice", auth)
	w := httptest.NewRecorder()
	handle(w, req)
	return w
}

func TestHandleAnalyzeFile(t *testing.T) {
	tests := []struct {
		name       string
		reply      string
		body       string
		auth       bool
		wantStatus int
	}{
		{name: "anonymous", reply: fileAnalysisReply, body: `{"fileName":"lease.pdf","fileContent":"..."}`, wantStatus: http.StatusUnauthorized},
		{name: "ok", reply: fileAnalysisReply, body: `{"fileName":"lease.pdf","fileContent":"twelve month lease"}`, auth: true, wantStatus: http.StatusOK},
		{name: "missing content", reply: fileAnalysisReply, body: `{"fileName":"lease.pdf"}`, auth: true, wantStatus: http.StatusBadRequest},
		{name: "bad json", reply: fileAnalysisReply, body: `{`, auth: true, wantStatus: http.StatusBadRequest},
		{name: "malformed model output", reply: `{"summary":"only this"}`, body: `{"fileName":"a","fileContent":"b"}`, auth: true, wantStatus: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, fakeModels{client: textClient{chunks: []string{tt.reply}}}, testConfig())
			w := postAnalysis(t, f.handler.HandleAnalyzeFile, "/api/analyze-file", tt.body, tt.auth)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var resp analyzeFileResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !resp.Success || resp.Analysis == nil {
				t.Fatalf("response = %+v", resp)
			}
			if resp.Analysis.FileName != "lease.pdf" || resp.Analysis.UserID != "alice" || resp.Analysis.Sentiment != "neutral" {
				t.Errorf("analysis = %+v", resp.Analysis)
			}
		})
	}
}

func TestHandleGenerateInsights(t *testing.T) {
	f := newFixture(t, fakeModels{client: textClient{chunks: []string{"```json\n", insightReply, "\n```"}}}, testConfig())

	w := postAnalysis(t, f.handler.HandleGenerateInsights, "/api/generate-insights",
		`{"topic":"lease","context":"renewal","fileAnalyses":[`+fileAnalysisReply+`]}`, false)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d, want 401", w.Code)
	}

	w = postAnalysis(t, f.handler.HandleGenerateInsights, "/api/generate-insights", `{"context":"no topic"}`, true)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing topic status = %d, want 400", w.Code)
	}

	w = postAnalysis(t, f.handler.HandleGenerateInsights, "/api/generate-insights",
		`{"topic":"lease","context":"renewal","fileAnalyses":[`+fileAnalysisReply+`]}`, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp generateInsightsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Insights == nil || resp.Insights.Title != "Lease risk" {
		t.Fatalf("insights = %+v", resp.Insights)
	}
	if resp.Insights.Sources.FileCount != 1 || resp.Insights.Sources.Topic != "lease" {
		t.Errorf("sources = %+v", resp.Insights.Sources)
	}
}
