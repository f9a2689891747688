package main

import (
	"database/sql"

	"dialer-platform/internal/httpapi"
	"dialer-platform/internal/rbac"
	"dialer-platform/internal/telephony"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type registerDeps struct {
	handlers httpapi.Handlers
	webhooks telephony.WebhookHandlers
	authMW   gin.HandlerFunc
	carrier  telephony.Carrier
	db       *sql.DB
	redis    *redis.Client
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, deps registerDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := deps.db.PingContext(c.Request.Context()); err != nil {
			c.JSON(503, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		if err := deps.redis.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(503, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		if err := deps.carrier.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(503, gin.H{"status": "degraded", "carrier": err.Error()})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Carrier webhooks (public).
	// NOTE: These endpoints should be protected by carrier signature
	// validation in production.
	{
		r.POST("/webhooks/voice", deps.webhooks.HandleVoice)
		r.POST("/webhooks/status", deps.webhooks.HandleStatus)
		r.POST("/webhooks/recording", deps.webhooks.HandleRecording)
	}

	// Token issuance stays outside the protected group.
	r.POST("/v1/auth/login", deps.handlers.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(deps.authMW)
	{
		h := deps.handlers

		// SESSION routes: live call control for agents.
		sessions := v1.Group("/sessions")
		sessions.Use(httpapi.RequireTeamAndAnyRole(rbac.RoleAgent, rbac.RoleSupervisor)...)
		{
			sessions.GET("/:id", h.GetSession)
			sessions.POST("/:id/bridge", h.BridgeSession)
			sessions.POST("/:id/transfer", h.TransferSession)
			sessions.POST("/:id/disposition", h.RecordDisposition)
		}

		// CALL routes: outbound origination. The hidden dialer_bot role is
		// explicitly allowed so automated campaigns can originate calls.
		calls := v1.Group("/calls")
		calls.Use(httpapi.RequireTeamAndAnyRole(rbac.RoleAgent, rbac.RoleSupervisor, rbac.RoleDialerBot)...)
		{
			calls.POST("/start", h.StartCall)
		}

		// OUTCOME / ANALYTICS routes.
		v1.GET("/outcomes", append(httpapi.RequireTeamAndAnyRole(rbac.RoleSupervisor, rbac.RoleAnalyst), h.ListOutcomes)...)
		v1.POST("/outcomes/predict", append(httpapi.RequireTeamAndAnyRole(rbac.RoleAgent, rbac.RoleSupervisor), h.PredictOutcome)...)

		reports := v1.Group("/analytics")
		reports.Use(httpapi.RequireTeamAndAnyRole(rbac.RoleSupervisor, rbac.RoleAnalyst)...)
		{
			reports.GET("/campaigns/:id", h.CampaignAnalytics)
			reports.GET("/agents/:id", h.AgentAnalytics)
		}
	}
}
