package service

import (
	"context"
	"fmt"
	"math"
	"net/mail"
	"strings"

	"rug-sentinel/internal/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type AlertStore interface {
	Create(ctx context.Context, rule *domain.AlertRule) error
	List(ctx context.Context) ([]domain.AlertRule, error)
	GetByUserEmail(ctx context.Context, email string) (*domain.AlertRule, error)
	ListByMint(ctx context.Context, mint string) ([]domain.AlertRule, error)
	UpdateByUserEmail(ctx context.Context, rule *domain.AlertRule) (*domain.AlertRule, error)
	DeleteByUserEmail(ctx context.Context, email string) error
	ResetByUserEmail(ctx context.Context, email string) (*domain.AlertRule, error)
}

// AlertInput is the user-supplied part of an alert rule.
type AlertInput struct {
	UserEmail  string
	Mint       string
	Parameter  string
	Comparison string
	Threshold  float64
}

// AlertService manages user alert rules. Each user may hold one rule.
type AlertService struct {
	tracer trace.Tracer
	store  AlertStore
}

func NewAlertService(tracer trace.Tracer, store AlertStore) *AlertService {
	return &AlertService{tracer: tracer, store: store}
}

func (s *AlertService) Create(ctx context.Context, in AlertInput) (*domain.AlertRule, error) {
	ctx, span := s.tracer.Start(ctx, "alert-service.create", trace.WithAttributes(attribute.String("mint", in.Mint)))
	defer span.End()

	rule, err := buildRule(in)
	if err != nil {
		return nil, err
	}
	rule.ID = uuid.NewString()
	rule.IsActive = true

	if err := s.store.Create(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *AlertService) List(ctx context.Context) ([]domain.AlertRule, error) {
	ctx, span := s.tracer.Start(ctx, "alert-service.list")
	defer span.End()
	return s.store.List(ctx)
}

func (s *AlertService) GetByUserEmail(ctx context.Context, email string) (*domain.AlertRule, error) {
	ctx, span := s.tracer.Start(ctx, "alert-service.get-by-user-email")
	defer span.End()

	email, err := normaliseEmail(email)
	if err != nil {
		return nil, err
	}
	return s.store.GetByUserEmail(ctx, email)
}

func (s *AlertService) ListByMint(ctx context.Context, mint string) ([]domain.AlertRule, error) {
	ctx, span := s.tracer.Start(ctx, "alert-service.list-by-mint")
	defer span.End()

	mint = strings.TrimSpace(mint)
	if mint == "" {
		return nil, fmt.Errorf("%w: mint is required", domain.ErrInvalidInput)
	}
	return s.store.ListByMint(ctx, mint)
}

// Update replaces the watched condition of the user's rule without re-arming it.
func (s *AlertService) Update(ctx context.Context, in AlertInput) (*domain.AlertRule, error) {
	ctx, span := s.tracer.Start(ctx, "alert-service.update")
	defer span.End()

	rule, err := buildRule(in)
	if err != nil {
		return nil, err
	}
	return s.store.UpdateByUserEmail(ctx, rule)
}

func (s *AlertService) Delete(ctx context.Context, email string) error {
	ctx, span := s.tracer.Start(ctx, "alert-service.delete")
	defer span.End()

	email, err := normaliseEmail(email)
	if err != nil {
		return err
	}
	return s.store.DeleteByUserEmail(ctx, email)
}

// Reset clears the triggered state so the rule fires again on the next matching snapshot.
func (s *AlertService) Reset(ctx context.Context, email string) (*domain.AlertRule, error) {
	ctx, span := s.tracer.Start(ctx, "alert-service.reset")
	defer span.End()

	email, err := normaliseEmail(email)
	if err != nil {
		return nil, err
	}
	return s.store.ResetByUserEmail(ctx, email)
}

func buildRule(in AlertInput) (*domain.AlertRule, error) {
	email, err := normaliseEmail(in.UserEmail)
	if err != nil {
		return nil, err
	}
	mint := strings.TrimSpace(in.Mint)
	if mint == "" {
		return nil, fmt.Errorf("%w: mint is required", domain.ErrInvalidInput)
	}
	metric, ok := domain.ParseMetric(strings.TrimSpace(in.Parameter))
	if !ok {
		return nil, fmt.Errorf("%w: unsupported parameter %q (supported: %v)", domain.ErrInvalidInput, in.Parameter, domain.SupportedMetrics)
	}
	cmp := domain.Comparison(strings.ToUpper(strings.TrimSpace(in.Comparison)))
	if !cmp.IsValid() {
		return nil, fmt.Errorf("%w: unsupported comparison %q (supported: %v)", domain.ErrInvalidInput, in.Comparison, domain.SupportedComparisons)
	}
	if math.IsNaN(in.Threshold) || math.IsInf(in.Threshold, 0) {
		return nil, fmt.Errorf("%w: threshold must be a finite number", domain.ErrInvalidInput)
	}
	return &domain.AlertRule{
		UserEmail:  email,
		Mint:       mint,
		Parameter:  string(metric),
		Comparison: cmp,
		Threshold:  in.Threshold,
	}, nil
}

func normaliseEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", fmt.Errorf("%w: userEmail is required", domain.ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid userEmail %q", domain.ErrInvalidInput, email)
	}
	return strings.ToLower(email), nil
}
