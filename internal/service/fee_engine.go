package service

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/xrl111/smart-eparking-pi4/internal/domain"
	"github.com/xrl111/smart-eparking-pi4/internal/metrics"
	"github.com/xrl111/smart-eparking-pi4/internal/repository"
)

// Biểu phí mặc định khi không có rule nào áp dụng (VND).
const (
	DefaultFirstHourFee      int64 = 10000
	DefaultSubsequentHourFee int64 = 5000
)

// FeeEngine chọn rule ưu tiên cao nhất còn áp dụng và tính phí.
type FeeEngine struct {
	rules repository.PricingRuleRepository
	loc   *time.Location
	now   func() time.Time
	log   zerolog.Logger
}

// NewFeeEngine: loc là múi giờ dùng để xét giờ vào và ngày lịch (nil = UTC).
func NewFeeEngine(rules repository.PricingRuleRepository, loc *time.Location, log zerolog.Logger) *FeeEngine {
	if loc == nil {
		loc = time.UTC
	}
	return &FeeEngine{
		rules: rules,
		loc:   loc,
		now:   time.Now,
		log:   log.With().Str("component", "fee_engine").Logger(),
	}
}

// CalculateFee tính phí cho phiên. Phiên không có thời lượng hoặc giờ vào thì phí 0.
// Lỗi đọc rule được log và dùng biểu phí mặc định.
func (e *FeeEngine) CalculateFee(ctx context.Context, session *domain.ParkingSession, userID *int) (int64, error) {
	if session == nil || session.EntryTime.IsZero() || !session.DurationMinutes.Valid || session.DurationMinutes.Int64 <= 0 {
		return 0, nil
	}
	minutes := session.DurationMinutes.Int64

	rules, err := e.rules.ListApplicable(ctx, userID)
	if err != nil {
		e.log.Warn().Err(err).Int("session_id", session.ID).Msg("Không đọc được bảng giá, dùng biểu phí mặc định")
		rules = nil
	}

	entry := session.EntryTime.In(e.loc)
	rule := e.selectRule(rules, entry)
	if rule == nil {
		fee := hourlyFee(minutes, DefaultFirstHourFee, DefaultSubsequentHourFee)
		metrics.RecordFee(fee)
		return fee, nil
	}

	var fee int64
	switch rule.RuleType {
	case domain.RuleFlatRate:
		fee = rule.FlatRateFee
	case domain.RuleOvernight:
		exit := e.now()
		if session.ExitTime.Valid {
			exit = session.ExitTime.Time
		}
		if days := calendarDayDiff(entry, exit.In(e.loc)); days > 0 {
			fee = (days + 1) * rule.OvernightFee
		} else {
			fee = hourlyFee(minutes, rule.FirstHourFee, rule.SubsequentHourFee)
		}
	default:
		fee = hourlyFee(minutes, rule.FirstHourFee, rule.SubsequentHourFee)
	}
	if fee < 0 {
		fee = 0
	}
	e.log.Debug().Int("session_id", session.ID).Int("rule_id", rule.ID).Str("rule", rule.Name).
		Int64("minutes", minutes).Int64("fee", fee).Msg("Đã tính phí theo rule")
	metrics.RecordFee(fee)
	return fee, nil
}

// selectRule lọc rule áp dụng được tại giờ vào, sắp theo priority giảm dần.
// Cùng priority: rule riêng của user trước, rồi ID nhỏ trước.
func (e *FeeEngine) selectRule(rules []domain.PricingRule, entry time.Time) *domain.PricingRule {
	candidates := make([]domain.PricingRule, 0, len(rules))
	for _, r := range rules {
		if !r.IsActive || !e.applicable(r, entry) {
			continue
		}
		candidates = append(candidates, r)
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.UserID.Valid != b.UserID.Valid {
			return a.UserID.Valid
		}
		return a.ID < b.ID
	})
	return &candidates[0]
}

func (e *FeeEngine) applicable(r domain.PricingRule, entry time.Time) bool {
	switch r.RuleType {
	case domain.RuleTimeBased:
		if !r.HasHourWindow() {
			return true
		}
		if !inHourWindow(entry.Hour(), int(r.StartHour.Int64), int(r.EndHour.Int64)) {
			return false
		}
		days, err := r.Weekdays()
		if err != nil {
			e.log.Warn().Err(err).Int("rule_id", r.ID).Msg("days_of_week không hợp lệ, bỏ qua rule")
			return false
		}
		if days == nil {
			return true
		}
		wd := domain.MondayWeekday(entry)
		for _, d := range days {
			if d == wd {
				return true
			}
		}
		return false
	case domain.RuleFlatRate, domain.RulePerHour, domain.RuleOvernight, domain.RuleCustom:
		return true
	}
	return false
}

// inHourWindow: [start,end), hoặc qua nửa đêm khi start > end.
func inHourWindow(hour, start, end int) bool {
	if start <= end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// billableHours = ceil(minutes/60).
func billableHours(minutes int64) int64 {
	if minutes <= 0 {
		return 0
	}
	return int64(math.Ceil(float64(minutes) / 60))
}

func hourlyFee(minutes, first, subsequent int64) int64 {
	hours := billableHours(minutes)
	if hours == 0 {
		return 0
	}
	return first + (hours-1)*subsequent
}

// calendarDayDiff đếm số ngày lịch giữa hai thời điểm (cùng múi giờ).
func calendarDayDiff(from, to time.Time) int64 {
	y1, m1, d1 := from.Date()
	y2, m2, d2 := to.Date()
	a := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	b := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return int64(b.Sub(a).Hours() / 24)
}
