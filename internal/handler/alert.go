package handler

import (
	"net/http"
	"strings"

	"rug-sentinel/internal/domain"
	"rug-sentinel/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

type alertRequest struct {
	UserEmail  string   `json:"userEmail"`
	Mint       string   `json:"mint"`
	Type       string   `json:"type"`
	Parameter  string   `json:"parameter"`
	Comparison string   `json:"comparison"`
	Threshold  *float64 `json:"threshold"`
}

type emailRequest struct {
	UserEmail string `json:"userEmail"`
}

func (r alertRequest) input() (service.AlertInput, bool) {
	if r.Threshold == nil {
		return service.AlertInput{}, false
	}
	parameter := r.Parameter
	if parameter == "" {
		parameter = r.Type
	}
	return service.AlertInput{
		UserEmail:  r.UserEmail,
		Mint:       r.Mint,
		Parameter:  parameter,
		Comparison: r.Comparison,
		Threshold:  *r.Threshold,
	}, true
}

func bindAlert(c *gin.Context) (service.AlertInput, bool) {
	var req alertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body: " + err.Error()})
		return service.AlertInput{}, false
	}
	in, ok := req.input()
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "threshold is required"})
		return service.AlertInput{}, false
	}
	return in, true
}

// userEmail reads the address from the query string, falling back to a JSON body.
func userEmail(c *gin.Context) string {
	if v := strings.TrimSpace(c.Query("userEmail")); v != "" {
		return v
	}
	var req emailRequest
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		_ = c.ShouldBindJSON(&req)
	}
	return req.UserEmail
}

// CreateAlert godoc
// @Summary      Create an alert rule
// @Description  Creates the caller's alert. Each user may hold a single alert.
// @Tags         alerts
// @Accept       json
// @Produce      json
// @Param        body  body  alertRequest  true  "Alert rule"
// @Success      201  {object}  domain.AlertRule
// @Failure      400  {object}  map[string]string
// @Router       /alert/new [post]
func (h *Handler) CreateAlert(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.create-alert")
	defer span.End()

	in, ok := bindAlert(c)
	if !ok {
		return
	}
	span.SetAttributes(attribute.String("mint", in.Mint))

	rule, err := h.alerts.Create(ctx, in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "alert created successfully", "alert": rule})
}

// ListAlerts godoc
// @Summary      List alert rules
// @Tags         alerts
// @Produce      json
// @Success      200  {array}  domain.AlertRule
// @Router       /alert/get [get]
func (h *Handler) ListAlerts(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.list-alerts")
	defer span.End()

	rules, err := h.alerts.List(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	if rules == nil {
		rules = []domain.AlertRule{}
	}
	c.JSON(http.StatusOK, rules)
}

// UpdateAlert godoc
// @Summary      Update the caller's alert condition
// @Description  Changes mint, parameter, comparison and threshold. A triggered alert stays triggered until reset.
// @Tags         alerts
// @Accept       json
// @Produce      json
// @Param        body  body  alertRequest  true  "Alert rule"
// @Success      200  {object}  domain.AlertRule
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /alert/update [put]
func (h *Handler) UpdateAlert(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.update-alert")
	defer span.End()

	in, ok := bindAlert(c)
	if !ok {
		return
	}
	rule, err := h.alerts.Update(ctx, in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Alert updated successfully", "alert": rule})
}

// ResetAlert godoc
// @Summary      Re-arm a triggered alert
// @Tags         alerts
// @Accept       json
// @Produce      json
// @Param        userEmail  query  string  false  "Owner of the alert"
// @Success      200  {object}  domain.AlertRule
// @Failure      404  {object}  map[string]string
// @Router       /alert/reset [put]
func (h *Handler) ResetAlert(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.reset-alert")
	defer span.End()

	rule, err := h.alerts.Reset(ctx, userEmail(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Alert reset successfully", "alert": rule})
}

// DeleteAlert godoc
// @Summary      Delete the caller's alert
// @Tags         alerts
// @Accept       json
// @Produce      json
// @Param        userEmail  query  string  false  "Owner of the alert"
// @Success      200  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /alert/delete [delete]
func (h *Handler) DeleteAlert(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.delete-alert")
	defer span.End()

	if err := h.alerts.Delete(ctx, userEmail(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Alert deleted successfully"})
}

// GetAlertByUserEmail godoc
// @Summary      Get the alert owned by a user
// @Tags         alerts
// @Produce      json
// @Param        userEmail  query  string  true  "Owner of the alert"
// @Success      200  {object}  domain.AlertRule
// @Failure      404  {object}  map[string]string
// @Router       /alert/getbyuseremail [get]
func (h *Handler) GetAlertByUserEmail(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-alert-by-user-email")
	defer span.End()

	rule, err := h.alerts.GetByUserEmail(ctx, userEmail(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// GetAlertsByMint godoc
// @Summary      List alerts watching a mint
// @Tags         alerts
// @Produce      json
// @Param        mint  query  string  true  "Token mint address"
// @Success      200  {array}  domain.AlertRule
// @Failure      400  {object}  map[string]string
// @Router       /alert/getbymint [get]
func (h *Handler) GetAlertsByMint(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-alerts-by-mint")
	defer span.End()

	mint := c.Query("mint")
	span.SetAttributes(attribute.String("mint", mint))

	rules, err := h.alerts.ListByMint(ctx, mint)
	if err != nil {
		writeError(c, err)
		return
	}
	if rules == nil {
		rules = []domain.AlertRule{}
	}
	c.JSON(http.StatusOK, rules)
}
