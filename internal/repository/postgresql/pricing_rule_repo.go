package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xrl111/smart-eparking-pi4/internal/domain"
	"github.com/xrl111/smart-eparking-pi4/internal/repository"
)

const pricingRuleColumns = `id, name, rule_type, is_active, priority, start_hour, end_hour, days_of_week,
	first_hour_fee, subsequent_hour_fee, flat_rate_fee, overnight_fee, user_id, description, created_by,
	created_at, updated_at`

type pgPricingRuleRepository struct {
	db *sql.DB
}

func NewPgPricingRuleRepository(db *sql.DB) repository.PricingRuleRepository {
	return &pgPricingRuleRepository{db: db}
}

func scanPricingRule(row rowScanner) (*domain.PricingRule, error) {
	rule := &domain.PricingRule{}
	err := row.Scan(
		&rule.ID, &rule.Name, &rule.RuleType, &rule.IsActive, &rule.Priority, &rule.StartHour, &rule.EndHour,
		&rule.DaysOfWeek, &rule.FirstHourFee, &rule.SubsequentHourFee, &rule.FlatRateFee, &rule.OvernightFee,
		&rule.UserID, &rule.Description, &rule.CreatedBy, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rule.CreatedAt = rule.CreatedAt.In(time.UTC)
	rule.UpdatedAt = rule.UpdatedAt.In(time.UTC)
	return rule, nil
}

func (r *pgPricingRuleRepository) ListApplicable(ctx context.Context, userID *int) ([]domain.PricingRule, error) {
	if userID == nil {
		query := `SELECT ` + pricingRuleColumns + ` FROM pricing_rules
		           WHERE is_active = TRUE AND user_id IS NULL
		           ORDER BY priority DESC, id ASC`
		return r.query(ctx, "ListApplicable", query)
	}
	query := `SELECT ` + pricingRuleColumns + ` FROM pricing_rules
	           WHERE is_active = TRUE AND (user_id = $1 OR user_id IS NULL)
	           ORDER BY priority DESC, id ASC`
	return r.query(ctx, "ListApplicable", query, *userID)
}

func (r *pgPricingRuleRepository) FindAll(ctx context.Context) ([]domain.PricingRule, error) {
	query := `SELECT ` + pricingRuleColumns + ` FROM pricing_rules ORDER BY priority DESC, id ASC`
	return r.query(ctx, "FindAll", query)
}

func (r *pgPricingRuleRepository) FindByID(ctx context.Context, id int) (*domain.PricingRule, error) {
	query := `SELECT ` + pricingRuleColumns + ` FROM pricing_rules WHERE id = $1`
	rule, err := scanPricingRule(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("PricingRuleRepository.FindByID: %w", err)
	}
	return rule, nil
}

func (r *pgPricingRuleRepository) Create(ctx context.Context, rule *domain.PricingRule) (*domain.PricingRule, error) {
	query := `INSERT INTO pricing_rules
	           (name, rule_type, is_active, priority, start_hour, end_hour, days_of_week, first_hour_fee,
	            subsequent_hour_fee, flat_rate_fee, overnight_fee, user_id, description, created_by, created_at, updated_at)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	           RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		rule.Name, rule.RuleType, rule.IsActive, rule.Priority, rule.StartHour, rule.EndHour, rule.DaysOfWeek,
		rule.FirstHourFee, rule.SubsequentHourFee, rule.FlatRateFee, rule.OvernightFee, rule.UserID,
		rule.Description, rule.CreatedBy,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: pricing rule '%s'", repository.ErrDuplicateEntry, rule.Name)
		}
		return nil, fmt.Errorf("PricingRuleRepository.Create: %w", err)
	}
	rule.CreatedAt = rule.CreatedAt.In(time.UTC)
	rule.UpdatedAt = rule.UpdatedAt.In(time.UTC)
	return rule, nil
}

func (r *pgPricingRuleRepository) Update(ctx context.Context, rule *domain.PricingRule) (*domain.PricingRule, error) {
	query := `UPDATE pricing_rules
	           SET name = $1, rule_type = $2, is_active = $3, priority = $4, start_hour = $5, end_hour = $6,
	               days_of_week = $7, first_hour_fee = $8, subsequent_hour_fee = $9, flat_rate_fee = $10,
	               overnight_fee = $11, user_id = $12, description = $13, updated_at = CURRENT_TIMESTAMP
	           WHERE id = $14
	           RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query,
		rule.Name, rule.RuleType, rule.IsActive, rule.Priority, rule.StartHour, rule.EndHour, rule.DaysOfWeek,
		rule.FirstHourFee, rule.SubsequentHourFee, rule.FlatRateFee, rule.OvernightFee, rule.UserID,
		rule.Description, rule.ID,
	).Scan(&rule.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("PricingRuleRepository.Update: %w", err)
	}
	rule.UpdatedAt = rule.UpdatedAt.In(time.UTC)
	return rule, nil
}

func (r *pgPricingRuleRepository) Delete(ctx context.Context, id int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pricing_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("PricingRuleRepository.Delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("PricingRuleRepository.Delete: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *pgPricingRuleRepository) query(ctx context.Context, op, query string, args ...any) ([]domain.PricingRule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("PricingRuleRepository.%s: %w", op, err)
	}
	defer rows.Close()

	rules := []domain.PricingRule{}
	for rows.Next() {
		rule, err := scanPricingRule(rows)
		if err != nil {
			return nil, fmt.Errorf("PricingRuleRepository.%s (scanning row): %w", op, err)
		}
		rules = append(rules, *rule)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("PricingRuleRepository.%s (rows error): %w", op, err)
	}
	return rules, nil
}
