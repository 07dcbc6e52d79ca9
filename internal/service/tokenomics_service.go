package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"rug-sentinel/internal/domain"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
)

type MetricsReader interface {
	LatestSnapshot(ctx context.Context, mint string) (*domain.MetricsSnapshot, error)
	History(ctx context.Context, mint, series string, limit, offset int) ([]domain.Point, error)
	TopHolders(ctx context.Context, mint string) ([]domain.HolderMovement, error)
	LatestLiquidityLock(ctx context.Context, mint string) (*domain.LiquidityEvent, error)
}

type SummaryFetcher interface {
	FetchSummary(ctx context.Context, mint string) (json.RawMessage, error)
}

type SummaryCache interface {
	Get(key string) (json.RawMessage, bool)
	Set(key string, value json.RawMessage)
}

// TokenomicsService serves stored series and the upstream risk summary.
type TokenomicsService struct {
	tracer  trace.Tracer
	metrics MetricsReader
	summary SummaryFetcher
	cache   SummaryCache
}

func NewTokenomicsService(tracer trace.Tracer, metrics MetricsReader, summary SummaryFetcher, cache SummaryCache) *TokenomicsService {
	return &TokenomicsService{
		tracer:  tracer,
		metrics: metrics,
		summary: summary,
		cache:   cache,
	}
}

// History returns one series page in chronological order. A non-positive limit means the default.
func (s *TokenomicsService) History(ctx context.Context, mint, series string, limit, offset int) ([]domain.Point, error) {
	ctx, span := s.tracer.Start(ctx, "tokenomics-service.history", trace.WithAttributes(
		attribute.String("mint", mint),
		attribute.String("series", series),
	))
	defer span.End()

	mint, err := requireMint(mint)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.metrics.History(ctx, mint, series, limit, offset)
}

func (s *TokenomicsService) LatestSnapshot(ctx context.Context, mint string) (*domain.MetricsSnapshot, error) {
	ctx, span := s.tracer.Start(ctx, "tokenomics-service.latest-snapshot")
	defer span.End()

	mint, err := requireMint(mint)
	if err != nil {
		return nil, err
	}
	return s.metrics.LatestSnapshot(ctx, mint)
}

func (s *TokenomicsService) TopHolders(ctx context.Context, mint string) ([]domain.HolderMovement, error) {
	ctx, span := s.tracer.Start(ctx, "tokenomics-service.top-holders")
	defer span.End()

	mint, err := requireMint(mint)
	if err != nil {
		return nil, err
	}
	return s.metrics.TopHolders(ctx, mint)
}

func (s *TokenomicsService) LiquidityLock(ctx context.Context, mint string) (*domain.LiquidityEvent, error) {
	ctx, span := s.tracer.Start(ctx, "tokenomics-service.liquidity-lock")
	defer span.End()

	mint, err := requireMint(mint)
	if err != nil {
		return nil, err
	}
	return s.metrics.LatestLiquidityLock(ctx, mint)
}

// Summary returns the upstream report summary, served from cache while fresh.
func (s *TokenomicsService) Summary(ctx context.Context, mint string) (json.RawMessage, error) {
	ctx, span := s.tracer.Start(ctx, "tokenomics-service.summary", trace.WithAttributes(attribute.String("mint", mint)))
	defer span.End()

	mint, err := requireMint(mint)
	if err != nil {
		return nil, err
	}

	key := "summary:" + mint
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return cached, nil
		}
	}

	summary, err := s.summary.FetchSummary(ctx, mint)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(key, summary)
	}
	logrus.WithField("mint", mint).Debug("report summary fetched")
	return summary, nil
}

func requireMint(mint string) (string, error) {
	mint = strings.TrimSpace(mint)
	if mint == "" {
		return "", fmt.Errorf("%w: mint address is required", domain.ErrInvalidInput)
	}
	return mint, nil
}
