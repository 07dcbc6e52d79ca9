package handler

import (
	"errors"
	"net/http"
	"strconv"

	"rug-sentinel/internal/domain"
	"rug-sentinel/internal/repository"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// GetSummary godoc
// @Summary      Upstream risk report summary
// @Description  Proxies the RugCheck report summary, cached for a few minutes per mint
// @Tags         tokens
// @Produce      json
// @Param        mint  path  string  true  "Token mint address"
// @Success      200  {object}  map[string]interface{}
// @Failure      500  {object}  map[string]string
// @Router       /tokens/{mint}/report/summary [get]
func (h *Handler) GetSummary(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-summary")
	defer span.End()

	mint := c.Param("mint")
	span.SetAttributes(attribute.String("mint", mint))

	summary, err := h.tokenomics.Summary(ctx, mint)
	if err != nil {
		var fetchErr *domain.FetchError
		if errors.As(err, &fetchErr) && fetchErr.Status == http.StatusNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "token not found upstream"})
			return
		}
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", summary)
}

// GetPriceHistory godoc
// @Summary      Price history
// @Tags         visualizations
// @Produce      json
// @Param        mint    path   string  true   "Token mint address"
// @Param        limit   query  int     false  "Points per page (default 100)"
// @Param        offset  query  int     false  "Points to skip from the newest"
// @Success      200  {array}  map[string]interface{}
// @Router       /tokens/{mint}/visualizations/price [get]
func (h *Handler) GetPriceHistory(c *gin.Context) {
	h.history(c, repository.SeriesPrice, "price", false)
}

// GetLiquidityHistory godoc
// @Summary      Total market liquidity history
// @Tags         visualizations
// @Produce      json
// @Param        mint    path   string  true   "Token mint address"
// @Param        limit   query  int     false  "Points per page (default 100)"
// @Param        offset  query  int     false  "Points to skip from the newest"
// @Success      200  {array}  map[string]interface{}
// @Router       /tokens/{mint}/visualizations/liquidity [get]
func (h *Handler) GetLiquidityHistory(c *gin.Context) {
	h.history(c, repository.SeriesLiquidity, "totalMarketLiquidity", false)
}

// GetHolderHistory godoc
// @Summary      Holder count history
// @Tags         visualizations
// @Produce      json
// @Param        mint    path   string  true   "Token mint address"
// @Param        limit   query  int     false  "Points per page (default 100)"
// @Param        offset  query  int     false  "Points to skip from the newest"
// @Success      200  {array}  map[string]interface{}
// @Router       /tokens/{mint}/visualizations/holders [get]
func (h *Handler) GetHolderHistory(c *gin.Context) {
	h.history(c, repository.SeriesHolders, "totalHolders", true)
}

func (h *Handler) history(c *gin.Context, series, field string, integral bool) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-history")
	defer span.End()

	mint := c.Param("mint")
	span.SetAttributes(attribute.String("mint", mint), attribute.String("series", series))

	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	points, err := h.tokenomics.History(ctx, mint, series, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]gin.H, 0, len(points))
	for _, p := range points {
		var v any = p.Value
		if integral {
			v = int64(p.Value)
		}
		out = append(out, gin.H{"timestamp": p.Timestamp, field: v})
	}
	c.JSON(http.StatusOK, out)
}

// GetTopHolders godoc
// @Summary      Largest holders in the newest snapshot
// @Tags         visualizations
// @Produce      json
// @Param        mint  path  string  true  "Token mint address"
// @Success      200  {array}  domain.HolderMovement
// @Router       /tokens/{mint}/visualizations/top-holders [get]
func (h *Handler) GetTopHolders(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-top-holders")
	defer span.End()

	holders, err := h.tokenomics.TopHolders(ctx, c.Param("mint"))
	if err != nil {
		writeError(c, err)
		return
	}
	if holders == nil {
		holders = []domain.HolderMovement{}
	}
	c.JSON(http.StatusOK, holders)
}

// GetLiquidityLock godoc
// @Summary      Newest liquidity lock state
// @Tags         visualizations
// @Produce      json
// @Param        mint  path  string  true  "Token mint address"
// @Success      200  {object}  domain.LiquidityEvent
// @Failure      404  {object}  map[string]string
// @Router       /tokens/{mint}/visualizations/liquidity-lock [get]
func (h *Handler) GetLiquidityLock(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-liquidity-lock")
	defer span.End()

	event, err := h.tokenomics.LiquidityLock(ctx, c.Param("mint"))
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "No liquidity event data found for this mint."})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}
