package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"github.com/xrl111/smart-eparking-pi4/internal/config"
)

func NewDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSslMode)

	// "pgx" từ pgx/stdlib, "postgres" từ lib/pq
	db, err := sql.Open(cfg.DBDriver, psqlInfo)
	if err != nil {
		return nil, fmt.Errorf("lỗi mở kết nối database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("lỗi ping database: %w", err)
	}
	return db, nil
}

// isUniqueViolation nhận diện lỗi unique từ cả hai driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Name() == "unique_violation"
	}
	return false
}
