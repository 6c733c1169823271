package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xrl111/smart-eparking-pi4/internal/domain"
	"github.com/xrl111/smart-eparking-pi4/internal/repository"
)

type pgSystemLogRepository struct {
	db *sql.DB
}

func NewPgSystemLogRepository(db *sql.DB) repository.SystemLogRepository {
	return &pgSystemLogRepository{db: db}
}

func (r *pgSystemLogRepository) Create(ctx context.Context, entry *domain.SystemLog) error {
	query := `INSERT INTO system_logs (event_type, message, user_id, metadata, created_at)
	           VALUES ($1, $2, $3, $4, $5) RETURNING id`

	var metadata sql.NullString
	if len(entry.Metadata) > 0 {
		metadata = sql.NullString{String: string(entry.Metadata), Valid: true}
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	err := r.db.QueryRowContext(ctx, query,
		entry.EventType, entry.Message, entry.UserID, metadata, entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("SystemLogRepository.Create: %w", err)
	}
	return nil
}

func (r *pgSystemLogRepository) FindRecent(ctx context.Context, filter domain.SystemLogFilterDTO) ([]domain.SystemLog, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, event_type, message, user_id, metadata, created_at FROM system_logs`
	args := []any{}
	if filter.EventType != "" {
		query += ` WHERE event_type = $1`
		args = append(args, filter.EventType)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("SystemLogRepository.FindRecent: %w", err)
	}
	defer rows.Close()

	entries := []domain.SystemLog{}
	for rows.Next() {
		var e domain.SystemLog
		var metadata []byte
		if err := rows.Scan(&e.ID, &e.EventType, &e.Message, &e.UserID, &metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("SystemLogRepository.FindRecent (scanning row): %w", err)
		}
		e.Metadata = metadata
		e.CreatedAt = e.CreatedAt.In(time.UTC)
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("SystemLogRepository.FindRecent (rows error): %w", err)
	}
	return entries, nil
}
