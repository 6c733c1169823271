package postgresql

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/xrl111/smart-eparking-pi4/internal/domain"
)

func newLogMock(t *testing.T) (*pgSystemLogRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &pgSystemLogRepository{db: db}, mock
}

func TestSystemLogCreate(t *testing.T) {
	repo, mock := newLogMock(t)
	mock.ExpectQuery("INSERT INTO system_logs").
		WithArgs(domain.EventModeChange, "Đổi chế độ", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))

	entry := &domain.SystemLog{
		EventType: domain.EventModeChange,
		Message:   "Đổi chế độ",
		Metadata:  json.RawMessage(`{"new_mode":"manual"}`),
	}
	if err := repo.Create(context.Background(), entry); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if entry.ID != 11 || entry.CreatedAt.IsZero() {
		t.Errorf("unexpected entry %+v", entry)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSystemLogFindRecent(t *testing.T) {
	repo, mock := newLogMock(t)
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	cols := []string{"id", "event_type", "message", "user_id", "metadata", "created_at"}

	mock.ExpectQuery(`SELECT (.+) FROM system_logs WHERE event_type = \$1 ORDER BY created_at DESC LIMIT \$2`).
		WithArgs(domain.EventGateControl, 100).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(2), domain.EventGateControl, "Mở cổng", int64(1), []byte(`{"gate":"open"}`), now))
	mock.ExpectQuery(`SELECT (.+) FROM system_logs ORDER BY created_at DESC LIMIT \$1`).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(cols))

	entries, err := repo.FindRecent(context.Background(), domain.SystemLogFilterDTO{EventType: domain.EventGateControl})
	if err != nil {
		t.Fatalf("FindRecent failed: %v", err)
	}
	if len(entries) != 1 || entries[0].UserID.Int64 != 1 || string(entries[0].Metadata) != `{"gate":"open"}` {
		t.Errorf("unexpected entries %+v", entries)
	}

	entries, err = repo.FindRecent(context.Background(), domain.SystemLogFilterDTO{Limit: 5})
	if err != nil {
		t.Fatalf("FindRecent failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty result, got %d", len(entries))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
