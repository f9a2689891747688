package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"dialer-platform/internal/analytics"
	"dialer-platform/internal/auth"
	"dialer-platform/internal/bridge"
	"dialer-platform/internal/disposition"
	"dialer-platform/internal/outcome"
	"dialer-platform/internal/rbac"
	"dialer-platform/internal/session"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth      *auth.Manager
	Sessions  *session.Store
	Bridge    *bridge.Coordinator
	Recorder  *disposition.Recorder
	Analytics *analytics.Service
}

// statusFor maps service errors onto the API's error taxonomy: precondition
// conflicts are 409, retryable routing failures are 503, bad input is 400.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, disposition.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrStaleTransition),
		errors.Is(err, bridge.ErrAgentBusy),
		errors.Is(err, bridge.ErrNotJoinable),
		errors.Is(err, disposition.ErrDispositionExists),
		errors.Is(err, outcome.ErrOutcomeExists):
		return http.StatusConflict
	case errors.Is(err, bridge.ErrDoNotCall):
		return http.StatusForbidden
	case errors.Is(err, bridge.ErrRoutingFailure):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrInvalidArgument),
		errors.Is(err, outcome.ErrUnknownDisposition),
		errors.Is(err, analytics.ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func abortWith(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}

// --- Auth ---

type loginRequest struct {
	AgentID string `json:"agent_id"`
	TeamID  string `json:"team_id"`
	Role    string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.AgentID == "" || req.TeamID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "agent_id, team_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.AgentID, req.TeamID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Sessions ---

func (h Handlers) GetSession(c *gin.Context) {
	sess, ok := h.Sessions.Get(c.Param("id"))
	if !ok {
		abortWith(c, session.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, sess)
}

type bridgeRequest struct {
	AgentID string `json:"agent_id"`
}

// BridgeSession joins an agent into a live session's conference room. The
// agent defaults to the authenticated caller.
func (h Handlers) BridgeSession(c *gin.Context) {
	var req bridgeRequest
	// An empty body is allowed; the agent then comes from the token.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.AgentID == "" {
		req.AgentID, _ = auth.AgentID(c.Request.Context())
	}
	if req.AgentID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "agent_id required"})
		return
	}

	res, err := h.Bridge.BridgeAgent(c.Request.Context(), c.Param("id"), req.AgentID)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) TransferSession(c *gin.Context) {
	var target bridge.TransferTarget
	if err := c.ShouldBindJSON(&target); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	sess, err := h.Bridge.TransferSession(c.Request.Context(), c.Param("id"), target)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h Handlers) RecordDisposition(c *gin.Context) {
	var req disposition.RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	req.SessionID = c.Param("id")
	if req.AgentID == "" {
		req.AgentID, _ = auth.AgentID(c.Request.Context())
	}

	out, err := h.Recorder.RecordDisposition(c.Request.Context(), req)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// --- Calls ---

// StartCall originates an outbound call: the customer leg is dialed first
// and the agent joins after the configured delay.
func (h Handlers) StartCall(c *gin.Context) {
	var req bridge.StartOutboundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.AgentID == "" {
		req.AgentID, _ = auth.AgentID(c.Request.Context())
	}

	sess, err := h.Bridge.StartOutbound(c.Request.Context(), req)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusAccepted, sess)
}

// --- Outcomes / analytics ---

func (h Handlers) ListOutcomes(c *gin.Context) {
	f := outcome.Filter{
		CampaignID: c.Query("campaignId"),
		AgentID:    c.Query("agentId"),
		Impact:     outcome.Impact(c.Query("impact")),
		Family:     outcome.Family(c.Query("family")),
	}
	rows, err := h.Analytics.QueryOutcomes(c.Request.Context(), f)
	if err != nil {
		abortWith(c, err)
		return
	}
	if rows == nil {
		rows = []outcome.CallOutcome{}
	}
	c.JSON(http.StatusOK, gin.H{"outcomes": rows})
}

func (h Handlers) CampaignAnalytics(c *gin.Context) {
	kpis, err := h.Analytics.CampaignSummary(c.Request.Context(), analytics.CampaignSummaryRequest{
		CampaignID: c.Param("id"),
		Since:      sinceParam(c),
	})
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, kpis)
}

func (h Handlers) AgentAnalytics(c *gin.Context) {
	kpis, err := h.Analytics.AgentSummary(c.Request.Context(), analytics.AgentSummaryRequest{
		AgentID: c.Param("id"),
		Since:   sinceParam(c),
	})
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, kpis)
}

type predictRequest struct {
	History   outcome.ContactHistory `json:"history"`
	Stats     outcome.CampaignStats  `json:"stats"`
	HourOfDay int                    `json:"hour_of_day"`
}

// PredictOutcome returns agent guidance only; real outcomes always come from
// a recorded disposition.
func (h Handlers) PredictOutcome(c *gin.Context) {
	var req predictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	c.JSON(http.StatusOK, outcome.PredictOutcome(req.History, req.Stats, req.HourOfDay))
}

func sinceParam(c *gin.Context) time.Time {
	raw := c.Query("since")
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Convenience middleware bundles.

func RequireTeamAndAnyRole(roles ...string) []gin.HandlerFunc {
	return []gin.HandlerFunc{rbac.RequireTeam(), rbac.RequireAnyRole(roles...)}
}
