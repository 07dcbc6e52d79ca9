package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const triggerTimeout = 30 * time.Second

// TriggerQueueJobs godoc
// @Summary      Queue update batches for every tracked mint
// @Description  Starts batch dispatch in the background and returns immediately
// @Tags         internal
// @Produce      json
// @Security     ApiKeyAuth
// @Success      202  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /internal/queue-jobs [post]
func (h *Handler) TriggerQueueJobs(c *gin.Context) {
	if h.trigger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "message": "queue unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.trigger-queue-jobs")
	defer span.End()

	// The dispatch outlives the request.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), triggerTimeout)
	go func() {
		defer cancel()
		queued, err := h.trigger.DispatchTracked(runCtx)
		if err != nil {
			h.logger.WithError(err).Error("manual queueing failed")
			return
		}
		h.logger.WithField("batches", queued).Info("manual trigger queued batches")
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Token update job queuing initiated.",
	})
}
