package service

import (
	"context"
	"sync"
	"time"

	"gopkg.in/guregu/null.v4"

	"github.com/xrl111/smart-eparking-pi4/internal/domain"
	"github.com/xrl111/smart-eparking-pi4/internal/repository"
)

type fakeRuleRepo struct {
	rules []domain.PricingRule
	err   error
	calls int
}

func (f *fakeRuleRepo) ListApplicable(_ context.Context, _ *int) ([]domain.PricingRule, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]domain.PricingRule(nil), f.rules...), nil
}

func (f *fakeRuleRepo) FindAll(context.Context) ([]domain.PricingRule, error) {
	return append([]domain.PricingRule(nil), f.rules...), nil
}

func (f *fakeRuleRepo) FindByID(_ context.Context, id int) (*domain.PricingRule, error) {
	for i := range f.rules {
		if f.rules[i].ID == id {
			r := f.rules[i]
			return &r, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRuleRepo) Create(_ context.Context, rule *domain.PricingRule) (*domain.PricingRule, error) {
	rule.ID = len(f.rules) + 1
	f.rules = append(f.rules, *rule)
	return rule, nil
}

func (f *fakeRuleRepo) Update(_ context.Context, rule *domain.PricingRule) (*domain.PricingRule, error) {
	for i := range f.rules {
		if f.rules[i].ID == rule.ID {
			f.rules[i] = *rule
			return rule, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRuleRepo) Delete(_ context.Context, id int) error {
	for i := range f.rules {
		if f.rules[i].ID == id {
			f.rules = append(f.rules[:i], f.rules[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

type fakeSessionRepo struct {
	mu        sync.Mutex
	sessions  map[int]*domain.ParkingSession
	nextID    int
	createErr error
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[int]*domain.ParkingSession{}}
}

func (f *fakeSessionRepo) Create(_ context.Context, s *domain.ParkingSession) (*domain.ParkingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	for _, existing := range f.sessions {
		if existing.SlotID == s.SlotID && existing.Status == domain.SessionActive {
			return nil, repository.ErrDuplicateEntry
		}
	}
	f.nextID++
	c := *s
	c.ID = f.nextID
	f.sessions[c.ID] = &c
	out := c
	return &out, nil
}

func (f *fakeSessionRepo) FindByID(_ context.Context, id int) (*domain.ParkingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (f *fakeSessionRepo) FindActiveBySlotID(_ context.Context, slotID int) (*domain.ParkingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.SlotID == slotID && s.Status == domain.SessionActive {
			c := *s
			return &c, nil
		}
	}
	return nil, repository.ErrNoActiveSession
}

func (f *fakeSessionRepo) Update(_ context.Context, s *domain.ParkingSession) (*domain.ParkingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[s.ID]; !ok {
		return nil, repository.ErrNotFound
	}
	c := *s
	f.sessions[s.ID] = &c
	out := c
	return &out, nil
}

func (f *fakeSessionRepo) Complete(_ context.Context, s *domain.ParkingSession) (*domain.ParkingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.sessions[s.ID]
	if !ok || stored.Status != domain.SessionActive {
		return nil, repository.ErrNoActiveSession
	}
	c := *s
	f.sessions[s.ID] = &c
	out := c
	return &out, nil
}

func (f *fakeSessionRepo) list(match func(*domain.ParkingSession) bool) []domain.ParkingSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.ParkingSession{}
	for id := 1; id <= f.nextID; id++ {
		if s, ok := f.sessions[id]; ok && match(s) {
			out = append(out, *s)
		}
	}
	return out
}

func (f *fakeSessionRepo) FindActive(context.Context) ([]domain.ParkingSession, error) {
	return f.list(func(s *domain.ParkingSession) bool { return s.Status == domain.SessionActive }), nil
}

func (f *fakeSessionRepo) FindRecent(_ context.Context, limit int) ([]domain.ParkingSession, error) {
	all := f.list(func(*domain.ParkingSession) bool { return true })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (f *fakeSessionRepo) FindByUserID(_ context.Context, userID int, limit int) ([]domain.ParkingSession, error) {
	all := f.list(func(s *domain.ParkingSession) bool { return s.UserID.Valid && s.UserID.Int64 == int64(userID) })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (f *fakeSessionRepo) Statistics(_ context.Context, since time.Time) (*domain.ParkingStatistics, error) {
	stats := &domain.ParkingStatistics{}
	for _, s := range f.list(func(*domain.ParkingSession) bool { return true }) {
		stats.TotalSessions++
		switch s.Status {
		case domain.SessionActive:
			stats.ActiveSessions++
		case domain.SessionCompleted:
			stats.CompletedSessions++
		}
		if !s.EntryTime.Before(since) {
			stats.TodaySessions++
		}
		if s.PaymentStatus == domain.PaymentPaid {
			stats.TotalRevenue += s.FeeAmount
		}
	}
	return stats, nil
}

type auditRecord struct {
	eventType string
	message   string
	actorID   null.Int
	metadata  map[string]any
}

type fakeAudit struct {
	mu      sync.Mutex
	records []auditRecord
	err     error
}

func (f *fakeAudit) Append(_ context.Context, eventType, message string, actorID null.Int, metadata map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, auditRecord{eventType, message, actorID, metadata})
	return f.err
}

func (f *fakeAudit) byType(eventType string) []auditRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []auditRecord
	for _, r := range f.records {
		if r.eventType == eventType {
			out = append(out, r)
		}
	}
	return out
}

type fakeSender struct {
	mu        sync.Mutex
	commands  []string
	fail      bool
	connected bool
	last      time.Time
}

func (f *fakeSender) SendCommand(cmd string, _ int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	return !f.fail
}

func (f *fakeSender) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSender) LastReceivedAt() (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last, !f.last.IsZero()
}

func (f *fakeSender) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}
