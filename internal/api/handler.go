// Package api provides HTTP handlers for the agentdesk API.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/ashureev/agentdesk/internal/analysis"
	"github.com/ashureev/agentdesk/internal/config"
	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/identity"
	"github.com/ashureev/agentdesk/internal/orchestrator"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// AgentCatalog is the read side of the agent registry.
type AgentCatalog interface {
	Available(isAuthenticated bool) []domain.AgentDefinition
	Resolve(id string) domain.AgentDefinition
	Default() domain.AgentDefinition
}

// ChatStarter begins a streamed chat turn.
type ChatStarter interface {
	Start(ctx context.Context, req orchestrator.Request) (*orchestrator.Stream, error)
}

// HistoryReader loads prior turns.
type HistoryReader interface {
	FetchHistory(ctx context.Context, ownerID, agentID string, limit int) []domain.Turn
}

// Analyst produces structured reports for authenticated callers.
type Analyst interface {
	AnalyzeFile(ctx context.Context, userID string, in analysis.FileInput) (*analysis.FileAnalysis, error)
	GenerateInsights(ctx context.Context, userID string, in analysis.InsightsInput) (*analysis.InsightReport, error)
}

// Pinger checks a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the chat API.
type Handler struct {
	agents         AgentCatalog
	chat           ChatStarter
	history        HistoryReader
	analyst        Analyst
	pinger         Pinger
	limiter        *RateLimiter
	maxBodyBytes   int64
	historyLimit   int
	originPatterns []string
}

// NewHandler creates a Handler. Call Close to stop the rate limiter's eviction loop.
func NewHandler(agents AgentCatalog, chat ChatStarter, history HistoryReader, analyst Analyst, pinger Pinger, cfg *config.Config) *Handler {
	return &Handler{
		agents:         agents,
		chat:           chat,
		history:        history,
		analyst:        analyst,
		pinger:         pinger,
		limiter:        NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window),
		maxBodyBytes:   cfg.SSE.MaxBodyBytes,
		historyLimit:   cfg.History.DefaultLimit,
		originPatterns: originPatterns(cfg),
	}
}

// RegisterRoutes mounts the handlers that need a resolved identity.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/chat", h.HandleChat)
	r.Post("/chat", h.HandleChat)
	r.Get("/api/agents", h.HandleAgents)
	r.Get("/api/history", h.HandleHistory)
	r.Post("/api/analyze-file", h.HandleAnalyzeFile)
	r.Post("/api/generate-insights", h.HandleGenerateInsights)
	r.Get("/ws/chat", h.HandleChatSocket)
}

// Close releases background resources.
func (h *Handler) Close() {
	h.limiter.Stop()
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// chatRequest is the body of POST /api/chat and of a websocket chat frame.
type chatRequest struct {
	Messages        []domain.Message `json:"messages"`
	IsAuthenticated bool             `json:"isAuthenticated"`
	AgentID         string           `json:"agentId"`
}

// turnRequest builds the orchestrator request. The caller is treated as
// authenticated only when both the body and the resolved identity say so.
func (h *Handler) turnRequest(ctx context.Context, body chatRequest) orchestrator.Request {
	userID := identity.UserIDFromContext(ctx)
	authenticated := body.IsAuthenticated && identity.IsAuthenticatedFromContext(ctx)
	if body.IsAuthenticated && !authenticated {
		slog.Warn("Authentication claimed without identity", "user_id", userID)
	}

	req := orchestrator.Request{
		Messages:      body.Messages,
		AgentID:       body.AgentID,
		Authenticated: authenticated,
		RequestID:     chiMiddleware.GetReqID(ctx),
	}
	if authenticated {
		req.OwnerID = userID
	}
	return req
}

// limitKey throttles by user id, falling back to the remote address.
func limitKey(r *http.Request) string {
	if id := identity.UserIDFromContext(r.Context()); id != "" {
		return id
	}
	return identity.IPFromRequest(r)
}

// originPatterns converts CORS origins into the host patterns websocket.Accept expects.
func originPatterns(cfg *config.Config) []string {
	if cfg.IsDevelopment() {
		return []string{"*"}
	}
	patterns := make([]string, 0, len(cfg.CORSOrigins))
	for _, o := range cfg.CORSOrigins {
		if o == "*" {
			patterns = append(patterns, o)
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
		}
	}
	return patterns
}
