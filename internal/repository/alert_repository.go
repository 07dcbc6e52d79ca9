package repository

import (
	"context"
	"time"

	"rug-sentinel/internal/domain"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const alertColumns = `id::text, user_email, mint, parameter, comparison, threshold, is_active, triggered_at, created_at, updated_at`

type AlertRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewAlertRepository(pool PgxPool, tracer trace.Tracer) *AlertRepository {
	return &AlertRepository{pool: pool, tracer: tracer}
}

func scanAlert(row pgx.Row) (*domain.AlertRule, error) {
	a := &domain.AlertRule{}
	var comparison string
	if err := row.Scan(&a.ID, &a.UserEmail, &a.Mint, &a.Parameter, &comparison, &a.Threshold, &a.IsActive, &a.TriggeredAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Comparison = domain.Comparison(comparison)
	return a, nil
}

func collectAlerts(rows pgx.Rows) ([]domain.AlertRule, error) {
	defer rows.Close()
	alerts := []domain.AlertRule{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

// Create inserts a new rule. A second rule for the same user yields domain.ErrAlertExists.
func (r *AlertRepository) Create(ctx context.Context, rule *domain.AlertRule) error {
	ctx, span := r.tracer.Start(ctx, "alert-repo.create")
	defer span.End()

	row := r.pool.QueryRow(ctx,
		`INSERT INTO alerts (id, user_email, mint, parameter, comparison, threshold, is_active)
		 VALUES ($1::text::uuid, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at, updated_at`,
		rule.ID, rule.UserEmail, rule.Mint, rule.Parameter, string(rule.Comparison), rule.Threshold, rule.IsActive,
	)
	if err := row.Scan(&rule.CreatedAt, &rule.UpdatedAt); err != nil {
		if isDuplicateKeyError(err) {
			return domain.ErrAlertExists
		}
		return classifyRead("create-alert", err)
	}
	return nil
}

func (r *AlertRepository) List(ctx context.Context) ([]domain.AlertRule, error) {
	ctx, span := r.tracer.Start(ctx, "alert-repo.list")
	defer span.End()

	rows, err := r.pool.Query(ctx, `SELECT `+alertColumns+` FROM alerts ORDER BY created_at`)
	if err != nil {
		return nil, classifyRead("list-alerts", err)
	}
	return collectAlerts(rows)
}

func (r *AlertRepository) GetByUserEmail(ctx context.Context, email string) (*domain.AlertRule, error) {
	ctx, span := r.tracer.Start(ctx, "alert-repo.get-by-user-email")
	defer span.End()

	a, err := scanAlert(r.pool.QueryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE user_email = $1`, email))
	if isNotFoundError(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, classifyRead("get-alert", err)
	}
	return a, nil
}

func (r *AlertRepository) ListByMint(ctx context.Context, mint string) ([]domain.AlertRule, error) {
	ctx, span := r.tracer.Start(ctx, "alert-repo.list-by-mint")
	defer span.End()

	rows, err := r.pool.Query(ctx, `SELECT `+alertColumns+` FROM alerts WHERE mint = $1 ORDER BY created_at`, mint)
	if err != nil {
		return nil, classifyRead("list-alerts-by-mint", err)
	}
	return collectAlerts(rows)
}

// UpdateByUserEmail changes the watched condition. The triggered state is left untouched;
// use ResetByUserEmail to re-arm a fired rule.
func (r *AlertRepository) UpdateByUserEmail(ctx context.Context, rule *domain.AlertRule) (*domain.AlertRule, error) {
	ctx, span := r.tracer.Start(ctx, "alert-repo.update")
	defer span.End()

	a, err := scanAlert(r.pool.QueryRow(ctx,
		`UPDATE alerts
		 SET mint = $2, parameter = $3, comparison = $4, threshold = $5, updated_at = NOW()
		 WHERE user_email = $1
		 RETURNING `+alertColumns,
		rule.UserEmail, rule.Mint, rule.Parameter, string(rule.Comparison), rule.Threshold,
	))
	if isNotFoundError(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, classifyRead("update-alert", err)
	}
	return a, nil
}

func (r *AlertRepository) DeleteByUserEmail(ctx context.Context, email string) error {
	ctx, span := r.tracer.Start(ctx, "alert-repo.delete")
	defer span.End()

	tag, err := r.pool.Exec(ctx, `DELETE FROM alerts WHERE user_email = $1`, email)
	if err != nil {
		return classifyRead("delete-alert", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ResetByUserEmail clears the triggered state so the rule is evaluated again.
func (r *AlertRepository) ResetByUserEmail(ctx context.Context, email string) (*domain.AlertRule, error) {
	ctx, span := r.tracer.Start(ctx, "alert-repo.reset")
	defer span.End()

	a, err := scanAlert(r.pool.QueryRow(ctx,
		`UPDATE alerts
		 SET triggered_at = NULL, is_active = TRUE, updated_at = NOW()
		 WHERE user_email = $1
		 RETURNING `+alertColumns,
		email,
	))
	if isNotFoundError(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, classifyRead("reset-alert", err)
	}
	return a, nil
}

// ListPending returns the active, untriggered rules for mint.
func (r *AlertRepository) ListPending(ctx context.Context, mint string) ([]domain.AlertRule, error) {
	ctx, span := r.tracer.Start(ctx, "alert-repo.list-pending", trace.WithAttributes(attribute.String("mint", mint)))
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT `+alertColumns+`
		 FROM alerts
		 WHERE mint = $1 AND is_active = TRUE AND triggered_at IS NULL
		 ORDER BY created_at`,
		mint,
	)
	if err != nil {
		return nil, classify(mint, "list-pending-alerts", err)
	}
	return collectAlerts(rows)
}

// MarkTriggered stamps the given rules in one statement and returns the ids it actually
// changed. A rule already stamped by a concurrent evaluation is not returned.
func (r *AlertRepository) MarkTriggered(ctx context.Context, ids []string, at time.Time) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	ctx, span := r.tracer.Start(ctx, "alert-repo.mark-triggered", trace.WithAttributes(attribute.Int("count", len(ids))))
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`UPDATE alerts
		 SET triggered_at = $2, updated_at = NOW()
		 WHERE id = ANY($1::text[]::uuid[]) AND triggered_at IS NULL
		 RETURNING id::text`,
		ids, at,
	)
	if err != nil {
		return nil, classify("", "mark-triggered", err)
	}
	defer rows.Close()

	marked := make([]string, 0, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		marked = append(marked, id)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("", "mark-triggered", err)
	}
	return marked, nil
}

// ActiveMints lists the distinct mints watched by active rules.
func (r *AlertRepository) ActiveMints(ctx context.Context) ([]string, error) {
	ctx, span := r.tracer.Start(ctx, "alert-repo.active-mints")
	defer span.End()

	rows, err := r.pool.Query(ctx, `SELECT DISTINCT mint FROM alerts WHERE is_active = TRUE ORDER BY mint`)
	if err != nil {
		return nil, classifyRead("active-mints", err)
	}
	defer rows.Close()

	var mints []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		mints = append(mints, m)
	}
	return mints, rows.Err()
}
