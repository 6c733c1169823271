package repository

import (
	"context"
	"errors"
	"time"

	"github.com/xrl111/smart-eparking-pi4/internal/domain"
)

var ErrNotFound = errors.New("không tìm thấy bản ghi")
var ErrDuplicateEntry = errors.New("bản ghi đã tồn tại")
var ErrNoActiveSession = errors.New("không tìm thấy phiên đỗ xe đang hoạt động cho thông tin cung cấp")

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByID(ctx context.Context, id int) (*domain.User, error)
	UpdateLastLogin(ctx context.Context, id int, at time.Time) error
}

type ParkingSessionRepository interface {
	// Create trả về ErrDuplicateEntry nếu slot đã có phiên active.
	Create(ctx context.Context, session *domain.ParkingSession) (*domain.ParkingSession, error)
	FindByID(ctx context.Context, id int) (*domain.ParkingSession, error)
	FindActiveBySlotID(ctx context.Context, slotID int) (*domain.ParkingSession, error)
	Update(ctx context.Context, session *domain.ParkingSession) (*domain.ParkingSession, error)
	// Complete chỉ ghi khi phiên còn active; nếu phiên đã bị kết thúc trước đó trả về ErrNoActiveSession.
	Complete(ctx context.Context, session *domain.ParkingSession) (*domain.ParkingSession, error)
	FindActive(ctx context.Context) ([]domain.ParkingSession, error)
	FindRecent(ctx context.Context, limit int) ([]domain.ParkingSession, error)
	FindByUserID(ctx context.Context, userID int, limit int) ([]domain.ParkingSession, error)
	Statistics(ctx context.Context, since time.Time) (*domain.ParkingStatistics, error)
}

type PricingRuleRepository interface {
	// ListApplicable trả về rule active của user (nếu có) cộng rule chung.
	ListApplicable(ctx context.Context, userID *int) ([]domain.PricingRule, error)
	FindAll(ctx context.Context) ([]domain.PricingRule, error)
	FindByID(ctx context.Context, id int) (*domain.PricingRule, error)
	Create(ctx context.Context, rule *domain.PricingRule) (*domain.PricingRule, error)
	Update(ctx context.Context, rule *domain.PricingRule) (*domain.PricingRule, error)
	Delete(ctx context.Context, id int) error
}

type SystemLogRepository interface {
	Create(ctx context.Context, entry *domain.SystemLog) error
	FindRecent(ctx context.Context, filter domain.SystemLogFilterDTO) ([]domain.SystemLog, error)
}
