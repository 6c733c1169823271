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

const sessionColumns = `id, slot_id, user_id, vehicle_plate, entry_time, exit_time, duration_minutes,
	status, notes, fee_amount, payment_status, payment_time, payment_method, created_at, updated_at`

type pgParkingSessionRepository struct {
	db *sql.DB
}

func NewPgParkingSessionRepository(db *sql.DB) repository.ParkingSessionRepository {
	return &pgParkingSessionRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.ParkingSession, error) {
	s := &domain.ParkingSession{}
	err := row.Scan(
		&s.ID, &s.SlotID, &s.UserID, &s.VehiclePlate, &s.EntryTime, &s.ExitTime, &s.DurationMinutes,
		&s.Status, &s.Notes, &s.FeeAmount, &s.PaymentStatus, &s.PaymentTime, &s.PaymentMethod,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.EntryTime = s.EntryTime.In(time.UTC)
	if s.ExitTime.Valid {
		s.ExitTime.Time = s.ExitTime.Time.In(time.UTC)
	}
	if s.PaymentTime.Valid {
		s.PaymentTime.Time = s.PaymentTime.Time.In(time.UTC)
	}
	s.CreatedAt = s.CreatedAt.In(time.UTC)
	s.UpdatedAt = s.UpdatedAt.In(time.UTC)
	return s, nil
}

func (r *pgParkingSessionRepository) Create(ctx context.Context, session *domain.ParkingSession) (*domain.ParkingSession, error) {
	query := `INSERT INTO parking_sessions
	           (slot_id, user_id, vehicle_plate, entry_time, status, notes, fee_amount, payment_status, created_at, updated_at)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, $8, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	           RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		session.SlotID, session.UserID, session.VehiclePlate, session.EntryTime,
		session.Status, session.Notes, session.FeeAmount, session.PaymentStatus,
	).Scan(&session.ID, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: slot %d đã có phiên đỗ xe đang hoạt động", repository.ErrDuplicateEntry, session.SlotID)
		}
		return nil, fmt.Errorf("ParkingSessionRepository.Create: %w", err)
	}
	session.CreatedAt = session.CreatedAt.In(time.UTC)
	session.UpdatedAt = session.UpdatedAt.In(time.UTC)
	return session, nil
}

func (r *pgParkingSessionRepository) FindByID(ctx context.Context, id int) (*domain.ParkingSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM parking_sessions WHERE id = $1`
	session, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("ParkingSessionRepository.FindByID: %w", err)
	}
	return session, nil
}

func (r *pgParkingSessionRepository) FindActiveBySlotID(ctx context.Context, slotID int) (*domain.ParkingSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM parking_sessions
	           WHERE slot_id = $1 AND status = $2
	           ORDER BY entry_time DESC LIMIT 1`
	session, err := scanSession(r.db.QueryRowContext(ctx, query, slotID, domain.SessionActive))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNoActiveSession
		}
		return nil, fmt.Errorf("ParkingSessionRepository.FindActiveBySlotID: %w", err)
	}
	return session, nil
}

func (r *pgParkingSessionRepository) Update(ctx context.Context, session *domain.ParkingSession) (*domain.ParkingSession, error) {
	query := `UPDATE parking_sessions
	           SET user_id = $1, vehicle_plate = $2, exit_time = $3, duration_minutes = $4, status = $5,
	               notes = $6, fee_amount = $7, payment_status = $8, payment_time = $9, payment_method = $10,
	               updated_at = CURRENT_TIMESTAMP
	           WHERE id = $11
	           RETURNING updated_at`

	err := r.db.QueryRowContext(ctx, query,
		session.UserID, session.VehiclePlate, session.ExitTime, session.DurationMinutes, session.Status,
		session.Notes, session.FeeAmount, session.PaymentStatus, session.PaymentTime, session.PaymentMethod,
		session.ID,
	).Scan(&session.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("ParkingSessionRepository.Update: %w", err)
	}
	session.UpdatedAt = session.UpdatedAt.In(time.UTC)
	return session, nil
}

func (r *pgParkingSessionRepository) Complete(ctx context.Context, session *domain.ParkingSession) (*domain.ParkingSession, error) {
	query := `UPDATE parking_sessions
	           SET user_id = $1, exit_time = $2, duration_minutes = $3, status = $4,
	               fee_amount = $5, payment_status = $6, updated_at = CURRENT_TIMESTAMP
	           WHERE id = $7 AND status = $8
	           RETURNING updated_at`

	err := r.db.QueryRowContext(ctx, query,
		session.UserID, session.ExitTime, session.DurationMinutes, session.Status,
		session.FeeAmount, session.PaymentStatus,
		session.ID, domain.SessionActive,
	).Scan(&session.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNoActiveSession
		}
		return nil, fmt.Errorf("ParkingSessionRepository.Complete: %w", err)
	}
	session.UpdatedAt = session.UpdatedAt.In(time.UTC)
	return session, nil
}

func (r *pgParkingSessionRepository) FindActive(ctx context.Context) ([]domain.ParkingSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM parking_sessions WHERE status = $1 ORDER BY entry_time DESC`
	return r.query(ctx, "FindActive", query, domain.SessionActive)
}

func (r *pgParkingSessionRepository) FindRecent(ctx context.Context, limit int) ([]domain.ParkingSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM parking_sessions ORDER BY entry_time DESC LIMIT $1`
	return r.query(ctx, "FindRecent", query, limit)
}

func (r *pgParkingSessionRepository) FindByUserID(ctx context.Context, userID int, limit int) ([]domain.ParkingSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM parking_sessions WHERE user_id = $1 ORDER BY entry_time DESC LIMIT $2`
	return r.query(ctx, "FindByUserID", query, userID, limit)
}

func (r *pgParkingSessionRepository) query(ctx context.Context, op, query string, args ...any) ([]domain.ParkingSession, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ParkingSessionRepository.%s: %w", op, err)
	}
	defer rows.Close()

	sessions := []domain.ParkingSession{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("ParkingSessionRepository.%s (scanning row): %w", op, err)
		}
		sessions = append(sessions, *session)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("ParkingSessionRepository.%s (rows error): %w", op, err)
	}
	return sessions, nil
}

func (r *pgParkingSessionRepository) Statistics(ctx context.Context, since time.Time) (*domain.ParkingStatistics, error) {
	query := `SELECT
	             COUNT(*),
	             COUNT(*) FILTER (WHERE status = 'active'),
	             COUNT(*) FILTER (WHERE status = 'completed'),
	             COUNT(*) FILTER (WHERE entry_time >= $1),
	             COALESCE(SUM(fee_amount) FILTER (WHERE payment_status = 'paid'), 0),
	             COALESCE(SUM(fee_amount) FILTER (WHERE payment_status = 'paid' AND payment_time >= $1), 0)
	           FROM parking_sessions`
	stats := &domain.ParkingStatistics{}
	err := r.db.QueryRowContext(ctx, query, since).Scan(
		&stats.TotalSessions, &stats.ActiveSessions, &stats.CompletedSessions, &stats.TodaySessions,
		&stats.TotalRevenue, &stats.TodayRevenue,
	)
	if err != nil {
		return nil, fmt.Errorf("ParkingSessionRepository.Statistics: %w", err)
	}
	return stats, nil
}
