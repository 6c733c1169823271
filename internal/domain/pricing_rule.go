package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/guregu/null.v4"
)

type PricingRuleType string

const (
	RuleTimeBased PricingRuleType = "time_based"
	RuleFlatRate  PricingRuleType = "flat_rate"
	RulePerHour   PricingRuleType = "per_hour"
	RuleOvernight PricingRuleType = "overnight"
	RuleCustom    PricingRuleType = "custom"
)

func (t PricingRuleType) Valid() bool {
	switch t {
	case RuleTimeBased, RuleFlatRate, RulePerHour, RuleOvernight, RuleCustom:
		return true
	}
	return false
}

type PricingRule struct {
	ID                int             `json:"id"`
	Name              string          `json:"name"`
	RuleType          PricingRuleType `json:"rule_type"`
	IsActive          bool            `json:"is_active"`
	Priority          int             `json:"priority"` // số càng cao càng ưu tiên
	StartHour         null.Int        `json:"start_hour"`
	EndHour           null.Int        `json:"end_hour"`
	DaysOfWeek        null.String     `json:"days_of_week"` // "0,1,2" với 0 = thứ Hai
	FirstHourFee      int64           `json:"first_hour_fee"`
	SubsequentHourFee int64           `json:"subsequent_hour_fee"`
	FlatRateFee       int64           `json:"flat_rate_fee"`
	OvernightFee      int64           `json:"overnight_fee"`
	UserID            null.Int        `json:"user_id"` // null = áp dụng cho tất cả
	Description       string          `json:"description,omitempty"`
	CreatedBy         null.Int        `json:"created_by"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// HasHourWindow báo rule có khung giờ đầy đủ hay không.
func (r PricingRule) HasHourWindow() bool {
	return r.StartHour.Valid && r.EndHour.Valid
}

// Weekdays phân tích DaysOfWeek. Trả về nil nếu không giới hạn ngày.
func (r PricingRule) Weekdays() ([]int, error) {
	if !r.DaysOfWeek.Valid || strings.TrimSpace(r.DaysOfWeek.String) == "" {
		return nil, nil
	}
	return ParseWeekdays(r.DaysOfWeek.String)
}

// ParseWeekdays đọc danh sách "0,1,..." (0 = thứ Hai, 6 = Chủ nhật).
func ParseWeekdays(csv string) ([]int, error) {
	var days []int
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := strconv.Atoi(part)
		if err != nil || d < 0 || d > 6 {
			return nil, fmt.Errorf("ngày trong tuần không hợp lệ: %q", part)
		}
		days = append(days, d)
	}
	return days, nil
}

// MondayWeekday chuyển time.Weekday (Chủ nhật = 0) sang quy ước thứ Hai = 0.
func MondayWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

type PricingRuleDTO struct {
	Name              string `json:"name" binding:"required"`
	RuleType          string `json:"rule_type" binding:"required,oneof=time_based flat_rate per_hour overnight custom"`
	IsActive          *bool  `json:"is_active"`
	Priority          int    `json:"priority"`
	StartHour         *int64 `json:"start_hour" binding:"omitempty,min=0,max=23"`
	EndHour           *int64 `json:"end_hour" binding:"omitempty,min=0,max=23"`
	DaysOfWeek        string `json:"days_of_week"`
	FirstHourFee      int64  `json:"first_hour_fee" binding:"min=0"`
	SubsequentHourFee int64  `json:"subsequent_hour_fee" binding:"min=0"`
	FlatRateFee       int64  `json:"flat_rate_fee" binding:"min=0"`
	OvernightFee      int64  `json:"overnight_fee" binding:"min=0"`
	UserID            *int64 `json:"user_id"`
	Description       string `json:"description"`
}
