package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/guregu/null.v4"

	"github.com/xrl111/smart-eparking-pi4/internal/domain"
)

// 2024-01-10 là thứ Tư.
var wednesday = time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

func sessionAt(entry time.Time, minutes int64) *domain.ParkingSession {
	return &domain.ParkingSession{
		ID:              1,
		EntryTime:       entry,
		ExitTime:        null.TimeFrom(entry.Add(time.Duration(minutes) * time.Minute)),
		DurationMinutes: null.IntFrom(minutes),
	}
}

func flatRule(id, priority int, fee int64) domain.PricingRule {
	return domain.PricingRule{ID: id, Name: "flat", RuleType: domain.RuleFlatRate, IsActive: true, Priority: priority, FlatRateFee: fee}
}

func TestCalculateFee(t *testing.T) {
	perHour := domain.PricingRule{ID: 1, RuleType: domain.RulePerHour, IsActive: true, FirstHourFee: 15000, SubsequentHourFee: 7000}
	overnight := domain.PricingRule{ID: 2, RuleType: domain.RuleOvernight, IsActive: true, OvernightFee: 50000,
		FirstHourFee: 8000, SubsequentHourFee: 4000}
	nightWindow := domain.PricingRule{ID: 3, RuleType: domain.RuleTimeBased, IsActive: true, Priority: 1,
		StartHour: null.IntFrom(22), EndHour: null.IntFrom(6), FirstHourFee: 30000, SubsequentHourFee: 1000}
	mondayOnly := domain.PricingRule{ID: 4, RuleType: domain.RuleTimeBased, IsActive: true, Priority: 1,
		StartHour: null.IntFrom(8), EndHour: null.IntFrom(18), DaysOfWeek: null.StringFrom("0"), FirstHourFee: 99000}
	inactive := flatRule(5, 100, 1)
	inactive.IsActive = false

	tests := []struct {
		name    string
		rules   []domain.PricingRule
		session *domain.ParkingSession
		want    int64
	}{
		{"default 45 minutes", nil, sessionAt(wednesday, 45), 10000},
		{"default 125 minutes", nil, sessionAt(wednesday, 125), 20000},
		{"default exactly one hour", nil, sessionAt(wednesday, 60), 10000},
		{"per hour 90 minutes", []domain.PricingRule{perHour}, sessionAt(wednesday, 90), 22000},
		{"higher priority wins", []domain.PricingRule{flatRule(1, 5, 1000), flatRule(2, 10, 2000)}, sessionAt(wednesday, 30), 2000},
		{"higher priority wins reversed", []domain.PricingRule{flatRule(2, 10, 2000), flatRule(1, 5, 1000)}, sessionAt(wednesday, 30), 2000},
		{"overnight across midnight", []domain.PricingRule{overnight},
			sessionAt(time.Date(2024, 1, 10, 22, 0, 0, 0, time.UTC), 480), 100000},
		{"overnight same day uses hourly", []domain.PricingRule{overnight}, sessionAt(wednesday, 90), 12000},
		{"wrapped window matches 23h", []domain.PricingRule{nightWindow},
			sessionAt(time.Date(2024, 1, 10, 23, 0, 0, 0, time.UTC), 30), 30000},
		{"wrapped window matches 2h", []domain.PricingRule{nightWindow},
			sessionAt(time.Date(2024, 1, 11, 2, 0, 0, 0, time.UTC), 30), 30000},
		{"wrapped window rejects 10h", []domain.PricingRule{nightWindow},
			sessionAt(time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC), 30), 10000},
		{"weekday filter rejects wednesday", []domain.PricingRule{mondayOnly}, sessionAt(wednesday, 30), 10000},
		{"weekday filter accepts monday", []domain.PricingRule{mondayOnly},
			sessionAt(time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC), 30), 99000},
		{"inactive rule ignored", []domain.PricingRule{inactive}, sessionAt(wednesday, 30), 10000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewFeeEngine(&fakeRuleRepo{rules: tt.rules}, time.UTC, zerolog.Nop())
			got, err := engine.CalculateFee(context.Background(), tt.session, nil)
			if err != nil {
				t.Fatalf("CalculateFee err = %v", err)
			}
			if got != tt.want {
				t.Errorf("CalculateFee = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCalculateFeeTieBreak(t *testing.T) {
	global := flatRule(1, 5, 1000)
	user := flatRule(2, 5, 3000)
	user.UserID = null.IntFrom(42)
	uid := 42

	for _, order := range [][]domain.PricingRule{{global, user}, {user, global}} {
		engine := NewFeeEngine(&fakeRuleRepo{rules: order}, time.UTC, zerolog.Nop())
		got, _ := engine.CalculateFee(context.Background(), sessionAt(wednesday, 30), &uid)
		if got != 3000 {
			t.Errorf("user rule should win the tie, got %d", got)
		}
	}

	for _, order := range [][]domain.PricingRule{{flatRule(4, 5, 4000), flatRule(3, 5, 3000)}, {flatRule(3, 5, 3000), flatRule(4, 5, 4000)}} {
		engine := NewFeeEngine(&fakeRuleRepo{rules: order}, time.UTC, zerolog.Nop())
		got, _ := engine.CalculateFee(context.Background(), sessionAt(wednesday, 30), nil)
		if got != 3000 {
			t.Errorf("lower id should win the tie, got %d", got)
		}
	}
}

func TestCalculateFeeZeroDuration(t *testing.T) {
	repo := &fakeRuleRepo{rules: []domain.PricingRule{flatRule(1, 1, 5000)}}
	engine := NewFeeEngine(repo, time.UTC, zerolog.Nop())

	cases := []*domain.ParkingSession{
		nil,
		sessionAt(wednesday, 0),
		{EntryTime: wednesday},
		{DurationMinutes: null.IntFrom(30)},
	}
	for i, s := range cases {
		if got, err := engine.CalculateFee(context.Background(), s, nil); err != nil || got != 0 {
			t.Errorf("case %d: CalculateFee = %d, %v; want 0", i, got, err)
		}
	}
	if repo.calls != 0 {
		t.Errorf("rules consulted %d times for empty sessions", repo.calls)
	}
}

func TestCalculateFeeRepoErrorFallsBack(t *testing.T) {
	engine := NewFeeEngine(&fakeRuleRepo{err: errors.New("db down")}, time.UTC, zerolog.Nop())
	got, err := engine.CalculateFee(context.Background(), sessionAt(wednesday, 61), nil)
	if err != nil || got != 15000 {
		t.Errorf("CalculateFee = %d, %v; want 15000", got, err)
	}
}

func TestCalculateFeeUsesPricingLocation(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)
	rule := domain.PricingRule{ID: 1, RuleType: domain.RuleTimeBased, IsActive: true,
		StartHour: null.IntFrom(22), EndHour: null.IntFrom(6), FirstHourFee: 30000}
	engine := NewFeeEngine(&fakeRuleRepo{rules: []domain.PricingRule{rule}}, loc, zerolog.Nop())

	// 16:00 UTC = 23:00 ICT
	got, _ := engine.CalculateFee(context.Background(), sessionAt(time.Date(2024, 1, 10, 16, 0, 0, 0, time.UTC), 30), nil)
	if got != 30000 {
		t.Errorf("CalculateFee = %d, want 30000", got)
	}
}

func TestInHourWindow(t *testing.T) {
	tests := []struct {
		hour, start, end int
		want             bool
	}{
		{8, 8, 18, true},
		{17, 8, 18, true},
		{18, 8, 18, false},
		{22, 22, 6, true},
		{5, 22, 6, true},
		{6, 22, 6, false},
		{12, 22, 6, false},
	}
	for _, tt := range tests {
		if got := inHourWindow(tt.hour, tt.start, tt.end); got != tt.want {
			t.Errorf("inHourWindow(%d, %d, %d) = %v, want %v", tt.hour, tt.start, tt.end, got, tt.want)
		}
	}
}
