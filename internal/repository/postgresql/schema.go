package postgresql

import (
	"context"
	"database/sql"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		username VARCHAR(80) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		role VARCHAR(20) NOT NULL DEFAULT 'client',
		full_name VARCHAR(120),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		last_login TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS parking_sessions (
		id SERIAL PRIMARY KEY,
		slot_id INTEGER NOT NULL,
		user_id INTEGER REFERENCES users(id),
		vehicle_plate VARCHAR(20),
		entry_time TIMESTAMPTZ NOT NULL,
		exit_time TIMESTAMPTZ,
		duration_minutes INTEGER,
		status VARCHAR(20) NOT NULL DEFAULT 'active',
		notes TEXT NOT NULL DEFAULT '',
		fee_amount BIGINT NOT NULL DEFAULT 0,
		payment_status VARCHAR(20) NOT NULL DEFAULT 'pending',
		payment_time TIMESTAMPTZ,
		payment_method VARCHAR(20),
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	// mỗi slot chỉ có tối đa một phiên active
	`CREATE UNIQUE INDEX IF NOT EXISTS parking_sessions_one_active_per_slot
		ON parking_sessions (slot_id) WHERE status = 'active'`,
	`CREATE TABLE IF NOT EXISTS pricing_rules (
		id SERIAL PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		rule_type VARCHAR(50) NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		priority INTEGER NOT NULL DEFAULT 0,
		start_hour INTEGER,
		end_hour INTEGER,
		days_of_week VARCHAR(20),
		first_hour_fee BIGINT NOT NULL DEFAULT 0,
		subsequent_hour_fee BIGINT NOT NULL DEFAULT 0,
		flat_rate_fee BIGINT NOT NULL DEFAULT 0,
		overnight_fee BIGINT NOT NULL DEFAULT 0,
		user_id INTEGER REFERENCES users(id),
		description TEXT NOT NULL DEFAULT '',
		created_by INTEGER REFERENCES users(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS system_logs (
		id BIGSERIAL PRIMARY KEY,
		event_type VARCHAR(50) NOT NULL,
		message TEXT NOT NULL,
		user_id INTEGER REFERENCES users(id),
		metadata JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}

// EnsureSchema tạo bảng nếu chưa có.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("EnsureSchema: %w", err)
		}
	}
	return nil
}
