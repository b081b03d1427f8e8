package api

import (
	"net/http"
	"strconv"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/identity"
)

const maxHistoryLimit = 200

type agentsResponse struct {
	Username       string                   `json:"username"`
	Authenticated  bool                     `json:"authenticated"`
	DefaultAgentID string                   `json:"defaultAgentId"`
	Agents         []domain.AgentDefinition `json:"agents"`
}

// HandleAgents lists the agents visible to the caller.
func (h *Handler) HandleAgents(w http.ResponseWriter, r *http.Request) {
	isAuth := identity.IsAuthenticatedFromContext(r.Context())
	JSON(w, http.StatusOK, agentsResponse{
		Username:       identity.UsernameFromContext(r.Context()),
		Authenticated:  isAuth,
		DefaultAgentID: h.agents.Default().ID,
		Agents:         h.agents.Available(isAuth),
	})
}

type historyResponse struct {
	AgentID  string        `json:"agentId,omitempty"`
	Messages []domain.Turn `json:"messages"`
}

// HandleHistory returns the caller's recent turns with one agent, or with
// every agent when all=true.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !identity.IsAuthenticatedFromContext(ctx) {
		Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	limit := h.historyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	agentID := ""
	if all, _ := strconv.ParseBool(r.URL.Query().Get("all")); !all {
		agentID = h.agents.Resolve(r.URL.Query().Get("agentId")).ID
	}
	turns := h.history.FetchHistory(ctx, identity.UserIDFromContext(ctx), agentID, limit)
	JSON(w, http.StatusOK, historyResponse{AgentID: agentID, Messages: turns})
}
