package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"rug-sentinel/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	defaultRugCheckBaseURL = "https://api.rugcheck.xyz/v1"
	defaultFluxBeamBaseURL = "https://data.fluxbeam.xyz"

	ResourceReport  = "report"
	ResourcePrice   = "price"
	ResourceVotes   = "votes"
	ResourceGraph   = "insider-graph"
	ResourceSummary = "summary"

	maxErrorBody = 512
)

type RugCheckConfig struct {
	RugCheckBaseURL string
	FluxBeamBaseURL string
	RequestsPerSec  float64
	Burst           int
	Timeout         time.Duration
}

// RugCheckProvider fetches token reports, votes and insider graphs from RugCheck and prices
// from FluxBeam. All requests share one limiter.
type RugCheckProvider struct {
	client      *http.Client
	rugcheckURL string
	fluxbeamURL string
	tracer      trace.Tracer
	limiter     *rate.Limiter
}

func NewRugCheckProvider(tracer trace.Tracer, cfg RugCheckConfig) *RugCheckProvider {
	if cfg.RugCheckBaseURL == "" {
		cfg.RugCheckBaseURL = defaultRugCheckBaseURL
	}
	if cfg.FluxBeamBaseURL == "" {
		cfg.FluxBeamBaseURL = defaultFluxBeamBaseURL
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &RugCheckProvider{
		client:      &http.Client{Timeout: cfg.Timeout},
		rugcheckURL: strings.TrimRight(cfg.RugCheckBaseURL, "/"),
		fluxbeamURL: strings.TrimRight(cfg.FluxBeamBaseURL, "/"),
		tracer:      tracer,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
	}
}

// FetchReport fetches only the report. The processor calls it first so the freshness gate can
// run before the secondary calls are spent.
func (p *RugCheckProvider) FetchReport(ctx context.Context, mint string) (*domain.Report, error) {
	ctx, span := p.tracer.Start(ctx, "rugcheck.fetch-report", trace.WithAttributes(attribute.String("mint", mint)))
	defer span.End()

	var report domain.Report
	if err := p.getJSON(ctx, ResourceReport, p.tokenURL(p.rugcheckURL, mint, "report"), &report); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if report.Mint == "" {
		report.Mint = mint
	}
	return &report, nil
}

// FetchSecondary fetches price, votes and insider graph concurrently. The first failure cancels
// the remaining calls.
func (p *RugCheckProvider) FetchSecondary(ctx context.Context, mint string) (domain.PriceQuote, domain.Votes, domain.InsiderGraph, error) {
	ctx, span := p.tracer.Start(ctx, "rugcheck.fetch-secondary", trace.WithAttributes(attribute.String("mint", mint)))
	defer span.End()

	var (
		price domain.PriceQuote
		votes domain.Votes
		graph domain.InsiderGraph
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.getJSON(gctx, ResourcePrice, p.tokenURL(p.fluxbeamURL, mint, "price"), &price)
	})
	g.Go(func() error {
		return p.getJSON(gctx, ResourceVotes, p.tokenURL(p.rugcheckURL, mint, "votes"), &votes)
	})
	g.Go(func() error {
		return p.getJSON(gctx, ResourceGraph, p.tokenURL(p.rugcheckURL, mint, "insiders/graph"), &graph)
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.PriceQuote{}, domain.Votes{}, domain.InsiderGraph{}, err
	}
	return price, votes, graph, nil
}

// FetchAll returns the complete fetch set for one token, report first.
func (p *RugCheckProvider) FetchAll(ctx context.Context, mint string) (*domain.UpstreamData, error) {
	ctx, span := p.tracer.Start(ctx, "rugcheck.fetch-all", trace.WithAttributes(attribute.String("mint", mint)))
	defer span.End()

	report, err := p.FetchReport(ctx, mint)
	if err != nil {
		return nil, err
	}
	price, votes, graph, err := p.FetchSecondary(ctx, mint)
	if err != nil {
		return nil, err
	}
	return &domain.UpstreamData{Report: report, Price: price, Votes: votes, Graph: graph}, nil
}

// FetchSummary proxies the upstream report summary untouched.
func (p *RugCheckProvider) FetchSummary(ctx context.Context, mint string) (json.RawMessage, error) {
	ctx, span := p.tracer.Start(ctx, "rugcheck.fetch-summary", trace.WithAttributes(attribute.String("mint", mint)))
	defer span.End()

	body, err := p.doRequest(ctx, ResourceSummary, p.tokenURL(p.rugcheckURL, mint, "report/summary"))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !json.Valid(body) {
		return nil, &domain.FetchError{Resource: ResourceSummary, Status: http.StatusOK, Err: errors.New("invalid json body")}
	}
	return json.RawMessage(body), nil
}

func (p *RugCheckProvider) tokenURL(base, mint, suffix string) string {
	return fmt.Sprintf("%s/tokens/%s/%s", base, url.PathEscape(mint), suffix)
}

func (p *RugCheckProvider) getJSON(ctx context.Context, resource, url string, out any) error {
	body, err := p.doRequest(ctx, resource, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &domain.FetchError{Resource: resource, Status: http.StatusOK, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

func (p *RugCheckProvider) doRequest(ctx context.Context, resource, url string) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, &domain.FetchError{Resource: resource, Err: fmt.Errorf("rate limit wait: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &domain.FetchError{Resource: resource, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &domain.FetchError{Resource: resource, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &domain.FetchError{Resource: resource, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.FetchError{Resource: resource, Status: resp.StatusCode, Err: err}
	}
	return body, nil
}
