package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/guregu/null.v4"

	"github.com/xrl111/smart-eparking-pi4/internal/domain"
	"github.com/xrl111/smart-eparking-pi4/internal/mode"
	"github.com/xrl111/smart-eparking-pi4/internal/repository"
)

// AuditSink nhận các sự kiện audit (đổi chế độ, phiên đỗ xe, thanh toán...).
type AuditSink = mode.AuditSink

// AuditService ghi và đọc system_logs.
type AuditService struct {
	repo repository.SystemLogRepository
	now  func() time.Time
}

func NewAuditService(repo repository.SystemLogRepository) *AuditService {
	return &AuditService{repo: repo, now: time.Now}
}

func (s *AuditService) Append(ctx context.Context, eventType, message string, actorID null.Int, metadata map[string]any) error {
	entry := &domain.SystemLog{
		EventType: eventType,
		Message:   message,
		UserID:    actorID,
		CreatedAt: s.now().UTC(),
	}
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("lỗi mã hoá metadata audit: %w", err)
		}
		entry.Metadata = raw
	}
	return s.repo.Create(ctx, entry)
}

func (s *AuditService) Recent(ctx context.Context, filter domain.SystemLogFilterDTO) ([]domain.SystemLog, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	return s.repo.FindRecent(ctx, filter)
}
