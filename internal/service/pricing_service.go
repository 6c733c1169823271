package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/guregu/null.v4"

	"github.com/xrl111/smart-eparking-pi4/internal/domain"
	"github.com/xrl111/smart-eparking-pi4/internal/repository"
)

var ErrInvalidPricingRule = errors.New("pricing rule không hợp lệ")

// PricingService quản lý bảng giá cho admin.
type PricingService struct {
	repo  repository.PricingRuleRepository
	audit AuditSink
	log   zerolog.Logger
}

func NewPricingService(repo repository.PricingRuleRepository, audit AuditSink, log zerolog.Logger) *PricingService {
	return &PricingService{repo: repo, audit: audit, log: log.With().Str("component", "pricing_service").Logger()}
}

func (s *PricingService) List(ctx context.Context) ([]domain.PricingRule, error) {
	return s.repo.FindAll(ctx)
}

func (s *PricingService) Get(ctx context.Context, id int) (*domain.PricingRule, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *PricingService) Create(ctx context.Context, dto domain.PricingRuleDTO, actor domain.Actor) (*domain.PricingRule, error) {
	rule := &domain.PricingRule{IsActive: true, CreatedBy: actor.UserID}
	if err := applyPricingDTO(rule, dto); err != nil {
		return nil, err
	}
	created, err := s.repo.Create(ctx, rule)
	if err != nil {
		return nil, err
	}
	s.record(ctx, "create", created, actor)
	return created, nil
}

func (s *PricingService) Update(ctx context.Context, id int, dto domain.PricingRuleDTO, actor domain.Actor) (*domain.PricingRule, error) {
	rule, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := applyPricingDTO(rule, dto); err != nil {
		return nil, err
	}
	updated, err := s.repo.Update(ctx, rule)
	if err != nil {
		return nil, err
	}
	s.record(ctx, "update", updated, actor)
	return updated, nil
}

func (s *PricingService) Delete(ctx context.Context, id int, actor domain.Actor) error {
	rule, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, "delete", rule, actor)
	return nil
}

func (s *PricingService) record(ctx context.Context, action string, rule *domain.PricingRule, actor domain.Actor) {
	s.log.Info().Str("action", action).Int("rule_id", rule.ID).Str("name", rule.Name).Str("actor", actor.Username).
		Msg("Thay đổi bảng giá")
	if s.audit == nil {
		return
	}
	meta := map[string]any{"action": action, "rule_id": rule.ID, "rule_type": rule.RuleType, "actor": actor.Username}
	if err := s.audit.Append(ctx, domain.EventPricingRule, fmt.Sprintf("Pricing rule %s: %s", action, rule.Name), actor.UserID, meta); err != nil {
		s.log.Warn().Err(err).Msg("Không ghi được audit pricing rule")
	}
}

func applyPricingDTO(rule *domain.PricingRule, dto domain.PricingRuleDTO) error {
	ruleType := domain.PricingRuleType(dto.RuleType)
	if !ruleType.Valid() {
		return fmt.Errorf("%w: rule_type '%s'", ErrInvalidPricingRule, dto.RuleType)
	}
	if strings.TrimSpace(dto.Name) == "" {
		return fmt.Errorf("%w: thiếu tên", ErrInvalidPricingRule)
	}
	if (dto.StartHour == nil) != (dto.EndHour == nil) {
		return fmt.Errorf("%w: start_hour và end_hour phải đi cùng nhau", ErrInvalidPricingRule)
	}
	for _, h := range []*int64{dto.StartHour, dto.EndHour} {
		if h != nil && (*h < 0 || *h > 23) {
			return fmt.Errorf("%w: giờ phải trong khoảng 0-23", ErrInvalidPricingRule)
		}
	}
	days := strings.TrimSpace(dto.DaysOfWeek)
	if days != "" {
		if _, err := domain.ParseWeekdays(days); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPricingRule, err)
		}
	}
	for _, fee := range []int64{dto.FirstHourFee, dto.SubsequentHourFee, dto.FlatRateFee, dto.OvernightFee} {
		if fee < 0 {
			return fmt.Errorf("%w: phí không được âm", ErrInvalidPricingRule)
		}
	}

	rule.Name = strings.TrimSpace(dto.Name)
	rule.RuleType = ruleType
	if dto.IsActive != nil {
		rule.IsActive = *dto.IsActive
	}
	rule.Priority = dto.Priority
	rule.StartHour = null.IntFromPtr(dto.StartHour)
	rule.EndHour = null.IntFromPtr(dto.EndHour)
	rule.DaysOfWeek = null.NewString(days, days != "")
	rule.FirstHourFee = dto.FirstHourFee
	rule.SubsequentHourFee = dto.SubsequentHourFee
	rule.FlatRateFee = dto.FlatRateFee
	rule.OvernightFee = dto.OvernightFee
	rule.UserID = null.IntFromPtr(dto.UserID)
	rule.Description = dto.Description
	return nil
}
