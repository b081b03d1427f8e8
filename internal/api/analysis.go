package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/agentdesk/internal/analysis"
	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/identity"
	"github.com/ashureev/agentdesk/internal/observability"
)

type analyzeFileRequest struct {
	FileName    string `json:"fileName"`
	FileContent string `json:"fileContent"`
}

type analyzeFileResponse struct {
	Success  bool                   `json:"success"`
	Analysis *analysis.FileAnalysis `json:"analysis"`
}

type generateInsightsRequest struct {
	Topic        string            `json:"topic"`
	Context      string            `json:"context"`
	FileAnalyses []json.RawMessage `json:"fileAnalyses"`
}

type generateInsightsResponse struct {
	Success  bool                    `json:"success"`
	Insights *analysis.InsightReport `json:"insights"`
}

// HandleAnalyzeFile handles POST /api/analyze-file.
func (h *Handler) HandleAnalyzeFile(w http.ResponseWriter, r *http.Request) {
	var body analyzeFileRequest
	if !h.decodeAnalysisRequest(w, r, &body) {
		return
	}

	ctx := r.Context()
	userID := identity.UserIDFromContext(ctx)
	result, err := h.analyst.AnalyzeFile(ctx, userID, analysis.FileInput{
		FileName:    body.FileName,
		FileContent: body.FileContent,
	})
	if err != nil {
		writeAnalysisError(w, "Failed to analyze file", userID, err)
		return
	}
	JSON(w, http.StatusOK, analyzeFileResponse{Success: true, Analysis: result})
}

// HandleGenerateInsights handles POST /api/generate-insights.
func (h *Handler) HandleGenerateInsights(w http.ResponseWriter, r *http.Request) {
	var body generateInsightsRequest
	if !h.decodeAnalysisRequest(w, r, &body) {
		return
	}

	ctx := r.Context()
	userID := identity.UserIDFromContext(ctx)
	result, err := h.analyst.GenerateInsights(ctx, userID, analysis.InsightsInput{
		Topic:        body.Topic,
		Context:      body.Context,
		FileAnalyses: body.FileAnalyses,
	})
	if err != nil {
		writeAnalysisError(w, "Failed to generate insights", userID, err)
		return
	}
	JSON(w, http.StatusOK, generateInsightsResponse{Success: true, Insights: result})
}

// decodeAnalysisRequest enforces authentication, the rate limit and the body cap, then decodes into dst.
func (h *Handler) decodeAnalysisRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !identity.IsAuthenticatedFromContext(r.Context()) {
		Error(w, http.StatusUnauthorized, "authentication required")
		return false
	}
	if !h.limiter.Allow(limitKey(r)) {
		observability.RecordRateLimited()
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeAnalysisError(w http.ResponseWriter, msg, userID string, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		Error(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, domain.ErrMalformedOutput):
		slog.Warn("Analysis output rejected", "user_id", userID, "error", err)
		Error(w, http.StatusBadGateway, msg)
	default:
		slog.Error("Analysis failed", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, msg)
	}
}
