package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/guregu/null.v4"

	"github.com/xrl111/smart-eparking-pi4/internal/domain"
	"github.com/xrl111/smart-eparking-pi4/internal/metrics"
	"github.com/xrl111/smart-eparking-pi4/internal/repository"
)

// SessionLifecycle là phần mà bộ suy diễn phiên cần từ tầng phiên đỗ xe.
type SessionLifecycle interface {
	// StartSession trả về ErrSessionConflict nếu slot đã có phiên active.
	StartSession(ctx context.Context, slotID int, userID *int, plate string) (*domain.ParkingSession, error)
	// EndSession trả về (nil, nil) nếu slot không có phiên active.
	EndSession(ctx context.Context, slotID int, userID *int) (*domain.ParkingSession, error)
}

// SessionObserver được gọi sau khi một phiên bắt đầu hoặc kết thúc.
type SessionObserver func(session *domain.ParkingSession)

const defaultHistoryLimit = 50

type ParkingService struct {
	sessionRepo repository.ParkingSessionRepository
	fees        *FeeEngine
	audit       AuditSink
	loc         *time.Location
	log         zerolog.Logger
	now         func() time.Time

	obsMu     sync.RWMutex
	observers []SessionObserver
}

func NewParkingService(
	sessionRepo repository.ParkingSessionRepository,
	fees *FeeEngine,
	audit AuditSink,
	loc *time.Location,
	log zerolog.Logger,
) *ParkingService {
	if loc == nil {
		loc = time.UTC
	}
	return &ParkingService{
		sessionRepo: sessionRepo,
		fees:        fees,
		audit:       audit,
		loc:         loc,
		log:         log.With().Str("component", "parking_service").Logger(),
		now:         time.Now,
	}
}

func (s *ParkingService) AddObserver(fn SessionObserver) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *ParkingService) StartSession(ctx context.Context, slotID int, userID *int, plate string) (*domain.ParkingSession, error) {
	existing, err := s.sessionRepo.FindActiveBySlotID(ctx, slotID)
	if err != nil && !errors.Is(err, repository.ErrNoActiveSession) {
		return nil, fmt.Errorf("lỗi khi kiểm tra phiên đang hoạt động của slot %d: %w", slotID, err)
	}
	if existing != nil {
		metrics.RecordSession("start", "conflict")
		return nil, fmt.Errorf("%w: slot %d (phiên %d)", ErrSessionConflict, slotID, existing.ID)
	}

	session := &domain.ParkingSession{
		SlotID:        slotID,
		UserID:        intPtrToNull(userID),
		EntryTime:     s.now().UTC(),
		Status:        domain.SessionActive,
		PaymentStatus: domain.PaymentPending,
	}
	if plate = strings.TrimSpace(plate); plate != "" {
		session.VehiclePlate = null.StringFrom(strings.ToUpper(plate))
	}

	created, err := s.sessionRepo.Create(ctx, session)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			metrics.RecordSession("start", "conflict")
			return nil, fmt.Errorf("%w: %w", ErrSessionConflict, err)
		}
		metrics.RecordSession("start", "error")
		return nil, fmt.Errorf("lỗi khi tạo phiên đỗ xe: %w", err)
	}
	metrics.RecordSession("start", "ok")
	s.log.Info().Int("session_id", created.ID).Int("slot", slotID).Str("plate", created.VehiclePlate.String).
		Msg("Đã tạo phiên đỗ xe mới")

	s.appendAudit(ctx, domain.EventSessionStart,
		fmt.Sprintf("Bắt đầu phiên đỗ xe %d tại slot %d", created.ID, slotID),
		created.UserID,
		map[string]any{"session_id": created.ID, "slot_id": slotID, "vehicle_plate": created.VehiclePlate.String})
	s.notify(created)
	return created, nil
}

func (s *ParkingService) EndSession(ctx context.Context, slotID int, userID *int) (*domain.ParkingSession, error) {
	session, err := s.sessionRepo.FindActiveBySlotID(ctx, slotID)
	if err != nil {
		if errors.Is(err, repository.ErrNoActiveSession) {
			s.log.Debug().Int("slot", slotID).Msg("Không có phiên đang hoạt động để kết thúc")
			return nil, nil
		}
		return nil, fmt.Errorf("lỗi khi tìm phiên đang hoạt động của slot %d: %w", slotID, err)
	}

	exit := s.now().UTC()
	minutes := int64(exit.Sub(session.EntryTime).Seconds()) / 60
	if minutes < 0 {
		minutes = 0
	}
	session.ExitTime = null.TimeFrom(exit)
	session.DurationMinutes = null.IntFrom(minutes)
	session.Status = domain.SessionCompleted
	session.PaymentStatus = domain.PaymentPending

	feeUser := userID
	if feeUser == nil && session.UserID.Valid {
		id := int(session.UserID.Int64)
		feeUser = &id
	}
	fee, err := s.fees.CalculateFee(ctx, session, feeUser)
	if err != nil {
		s.log.Warn().Err(err).Int("session_id", session.ID).Msg("Không tính được phí, ghi nhận phí 0")
		fee = 0
	}
	session.FeeAmount = fee

	updated, err := s.sessionRepo.Complete(ctx, session)
	if err != nil {
		if errors.Is(err, repository.ErrNoActiveSession) {
			s.log.Debug().Int("session_id", session.ID).Int("slot", slotID).Msg("Phiên đã được kết thúc ở nơi khác")
			return nil, nil
		}
		metrics.RecordSession("end", "error")
		return nil, fmt.Errorf("lỗi cập nhật phiên đỗ xe: %w", err)
	}
	metrics.RecordSession("end", "ok")
	s.log.Info().Int("session_id", updated.ID).Int("slot", slotID).Int64("minutes", minutes).Int64("fee", fee).
		Msg("Đã kết thúc phiên đỗ xe")

	s.appendAudit(ctx, domain.EventSessionEnd,
		fmt.Sprintf("Kết thúc phiên đỗ xe %d tại slot %d, phí %d", updated.ID, slotID, fee),
		updated.UserID,
		map[string]any{"session_id": updated.ID, "slot_id": slotID, "duration_minutes": minutes, "fee_amount": fee})
	s.notify(updated)
	return updated, nil
}

func (s *ParkingService) GetSession(ctx context.Context, id int) (*domain.ParkingSession, error) {
	return s.sessionRepo.FindByID(ctx, id)
}

func (s *ParkingService) ActiveSessions(ctx context.Context) ([]domain.ParkingSession, error) {
	return s.sessionRepo.FindActive(ctx)
}

func (s *ParkingService) SessionHistory(ctx context.Context, limit int) ([]domain.ParkingSession, error) {
	return s.sessionRepo.FindRecent(ctx, normalizeLimit(limit))
}

func (s *ParkingService) UserSessions(ctx context.Context, userID int, limit int) ([]domain.ParkingSession, error) {
	return s.sessionRepo.FindByUserID(ctx, userID, normalizeLimit(limit))
}

// MarkPaid đánh dấu phiên đã kết thúc là đã thanh toán.
func (s *ParkingService) MarkPaid(ctx context.Context, sessionID int, method string, actor domain.Actor) (*domain.ParkingSession, error) {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == domain.SessionActive {
		return nil, ErrSessionNotEnded
	}
	if session.PaymentStatus == domain.PaymentPaid {
		return nil, ErrAlreadyPaid
	}
	if method = strings.TrimSpace(method); method == "" {
		method = "cash"
	}
	session.PaymentStatus = domain.PaymentPaid
	session.PaymentTime = null.TimeFrom(s.now().UTC())
	session.PaymentMethod = null.StringFrom(method)

	updated, err := s.sessionRepo.Update(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("lỗi cập nhật thanh toán: %w", err)
	}
	s.appendAudit(ctx, domain.EventPaymentCompleted,
		fmt.Sprintf("Thanh toán phiên %d: %d (%s)", updated.ID, updated.FeeAmount, method),
		actor.UserID,
		map[string]any{"session_id": updated.ID, "fee_amount": updated.FeeAmount, "payment_method": method, "actor": actor.Username})
	return updated, nil
}

// FeeQuote tính phí tạm cho phiên đang hoạt động như thể kết thúc ngay bây giờ.
func (s *ParkingService) FeeQuote(ctx context.Context, sessionID int) (*domain.FeeQuoteDTO, error) {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.SessionActive {
		return nil, ErrSessionNotActive
	}
	quote := *session
	now := s.now().UTC()
	minutes := int64(now.Sub(session.EntryTime).Seconds()) / 60
	if minutes < 0 {
		minutes = 0
	}
	quote.ExitTime = null.TimeFrom(now)
	quote.DurationMinutes = null.IntFrom(minutes)

	var userID *int
	if session.UserID.Valid {
		id := int(session.UserID.Int64)
		userID = &id
	}
	fee, err := s.fees.CalculateFee(ctx, &quote, userID)
	if err != nil {
		return nil, err
	}
	return &domain.FeeQuoteDTO{SessionID: session.ID, DurationMinutes: minutes, Fee: fee}, nil
}

// Statistics: "hôm nay" tính theo múi giờ tính phí.
func (s *ParkingService) Statistics(ctx context.Context) (*domain.ParkingStatistics, error) {
	y, m, d := s.now().In(s.loc).Date()
	since := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	return s.sessionRepo.Statistics(ctx, since)
}

func (s *ParkingService) appendAudit(ctx context.Context, eventType, msg string, actorID null.Int, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Append(ctx, eventType, msg, actorID, meta); err != nil {
		s.log.Warn().Err(err).Str("event_type", eventType).Msg("Không ghi được audit")
	}
}

func (s *ParkingService) notify(session *domain.ParkingSession) {
	s.obsMu.RLock()
	observers := append([]SessionObserver(nil), s.observers...)
	s.obsMu.RUnlock()
	for _, fn := range observers {
		c := *session
		fn(&c)
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return defaultHistoryLimit
	}
	return limit
}

func intPtrToNull(v *int) null.Int {
	if v == nil {
		return null.Int{}
	}
	return null.IntFrom(int64(*v))
}
