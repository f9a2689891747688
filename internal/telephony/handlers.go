package telephony

import (
	"context"
	"net/http"
	"time"

	"dialer-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Gateway is the inbound-call orchestration contract the webhook handlers
// delegate to. Implemented by internal/gateway; kept as an interface here so
// the carrier adapter stays free of business logic.
type Gateway interface {
	HandleInboundEvent(ctx context.Context, e RingEvent) Instruction
	HandleStatusEvent(ctx context.Context, e StatusEvent) error
	HandleRecordingEvent(ctx context.Context, e RecordingEvent) error
}

// WebhookHandlers converts carrier webhooks to internal events, delegates to
// the gateway, and writes the call-control markup.
type WebhookHandlers struct {
	Gateway Gateway
	Now     func() time.Time
}

func (h WebhookHandlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// HandleVoice serves the initial inbound-call webhook. The gateway never
// returns an error here: failures resolve to a safe fallback instruction so
// the caller hears a message instead of dead air.
func (h WebhookHandlers) HandleVoice(c *gin.Context) {
	log := logger.FromGin(c)

	e, err := ParseRingEvent(c.Request, h.now())
	if err != nil {
		log.Warn("voice webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	inst := h.Gateway.HandleInboundEvent(c.Request.Context(), e)
	markup, err := RenderInstruction(inst)
	if err != nil {
		// Last-ditch fallback; still never a raw error to the caller.
		log.Error("instruction render failed", "err", err)
		markup, _ = RenderInstruction(Instruction{Kind: InstructionHangup})
	}

	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, markup)
}

// HandleStatus serves progress/hangup webhooks. The carrier only retries on
// transport failures, so business-logic rejections (stale transitions) are
// logged and acknowledged with 200.
func (h WebhookHandlers) HandleStatus(c *gin.Context) {
	log := logger.FromGin(c)

	e, err := ParseStatusEvent(c.Request)
	if err != nil {
		log.Warn("status webhook parse failed", "err", err)
		c.String(http.StatusOK, "")
		return
	}

	if err := h.Gateway.HandleStatusEvent(c.Request.Context(), e); err != nil {
		log.Warn("status event rejected", "carrier_call_id", e.CarrierCallID, "status", e.Status, "err", err)
	}
	c.String(http.StatusOK, "")
}

// HandleRecording attaches a recording reference to its session.
func (h WebhookHandlers) HandleRecording(c *gin.Context) {
	log := logger.FromGin(c)

	e, err := ParseRecordingEvent(c.Request)
	if err != nil {
		log.Warn("recording webhook parse failed", "err", err)
		c.String(http.StatusOK, "")
		return
	}

	if err := h.Gateway.HandleRecordingEvent(c.Request.Context(), e); err != nil {
		log.Warn("recording event rejected", "carrier_call_id", e.CarrierCallID, "err", err)
	}
	c.String(http.StatusOK, "")
}
