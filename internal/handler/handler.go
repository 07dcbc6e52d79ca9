package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"rug-sentinel/internal/domain"
	"rug-sentinel/internal/observability"
	"rug-sentinel/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

type AlertManager interface {
	Create(ctx context.Context, in service.AlertInput) (*domain.AlertRule, error)
	List(ctx context.Context) ([]domain.AlertRule, error)
	GetByUserEmail(ctx context.Context, email string) (*domain.AlertRule, error)
	ListByMint(ctx context.Context, mint string) ([]domain.AlertRule, error)
	Update(ctx context.Context, in service.AlertInput) (*domain.AlertRule, error)
	Delete(ctx context.Context, email string) error
	Reset(ctx context.Context, email string) (*domain.AlertRule, error)
}

type TokenomicsReader interface {
	History(ctx context.Context, mint, series string, limit, offset int) ([]domain.Point, error)
	TopHolders(ctx context.Context, mint string) ([]domain.HolderMovement, error)
	LiquidityLock(ctx context.Context, mint string) (*domain.LiquidityEvent, error)
	Summary(ctx context.Context, mint string) (json.RawMessage, error)
}

// QueueTrigger enqueues update batches for every tracked mint.
type QueueTrigger interface {
	DispatchTracked(ctx context.Context) (int, error)
}

type Handler struct {
	tracer     trace.Tracer
	logger     logrus.FieldLogger
	alerts     AlertManager
	tokenomics TokenomicsReader
	trigger    QueueTrigger
	checks     map[string]ReadinessCheck
}

func New(tracer trace.Tracer, alerts AlertManager, tokenomics TokenomicsReader) *Handler {
	return &Handler{
		tracer:     tracer,
		logger:     logrus.StandardLogger(),
		alerts:     alerts,
		tokenomics: tokenomics,
	}
}

// AddReadinessCheck registers a dependency probe for GET /ready.
func (h *Handler) AddReadinessCheck(name string, check ReadinessCheck) {
	if h.checks == nil {
		h.checks = make(map[string]ReadinessCheck)
	}
	h.checks[name] = check
}

// SetQueueTrigger enables POST /internal/queue-jobs.
func (h *Handler) SetQueueTrigger(trigger QueueTrigger) {
	h.trigger = trigger
}

func (h *Handler) RegisterRoutes(r *gin.Engine, apiKey string) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	r.GET("/metrics", gin.WrapH(observability.Handler()))

	alerts := r.Group("/alert")
	alerts.POST("/new", h.CreateAlert)
	alerts.GET("/get", h.ListAlerts)
	alerts.DELETE("/delete", h.DeleteAlert)
	alerts.PUT("/update", h.UpdateAlert)
	alerts.PUT("/reset", h.ResetAlert)
	alerts.GET("/getbyuseremail", h.GetAlertByUserEmail)
	alerts.GET("/getbymint", h.GetAlertsByMint)

	tokens := r.Group("/tokens/:mint")
	tokens.GET("/report/summary", h.GetSummary)
	tokens.GET("/visualizations/price", h.GetPriceHistory)
	tokens.GET("/visualizations/liquidity", h.GetLiquidityHistory)
	tokens.GET("/visualizations/holders", h.GetHolderHistory)
	tokens.GET("/visualizations/top-holders", h.GetTopHolders)
	tokens.GET("/visualizations/liquidity-lock", h.GetLiquidityLock)

	internal := r.Group("/internal", APIKeyAuth(apiKey))
	internal.POST("/queue-jobs", h.TriggerQueueJobs)
}

// writeError maps service errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrAlertExists):
		c.JSON(http.StatusBadRequest, gin.H{"error": "User already has an alert"})
	case errors.Is(err, domain.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
