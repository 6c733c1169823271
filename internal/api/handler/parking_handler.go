package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xrl111/smart-eparking-pi4/internal/api/middleware"
	"github.com/xrl111/smart-eparking-pi4/internal/domain"
)

// SessionService là phần của service.ParkingService mà API dùng.
type SessionService interface {
	StartSession(ctx context.Context, slotID int, userID *int, plate string) (*domain.ParkingSession, error)
	EndSession(ctx context.Context, slotID int, userID *int) (*domain.ParkingSession, error)
	GetSession(ctx context.Context, id int) (*domain.ParkingSession, error)
	ActiveSessions(ctx context.Context) ([]domain.ParkingSession, error)
	SessionHistory(ctx context.Context, limit int) ([]domain.ParkingSession, error)
	UserSessions(ctx context.Context, userID int, limit int) ([]domain.ParkingSession, error)
	MarkPaid(ctx context.Context, sessionID int, method string, actor domain.Actor) (*domain.ParkingSession, error)
	FeeQuote(ctx context.Context, sessionID int) (*domain.FeeQuoteDTO, error)
	Statistics(ctx context.Context) (*domain.ParkingStatistics, error)
}

type ParkingSessionHandler struct {
	parkingService SessionService
}

func NewParkingSessionHandler(ps SessionService) *ParkingSessionHandler {
	return &ParkingSessionHandler{parkingService: ps}
}

// POST /api/v1/sessions/start
func (h *ParkingSessionHandler) StartSession(c *gin.Context) {
	var dto domain.StartSessionDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Dữ liệu không hợp lệ: " + err.Error()})
		return
	}
	session, err := h.parkingService.StartSession(c.Request.Context(), *dto.SlotID, nil, strings.TrimSpace(dto.VehiclePlate))
	if err != nil {
		respondError(c, err, "Không thể bắt đầu phiên đỗ xe")
		return
	}
	c.JSON(http.StatusCreated, session)
}

// POST /api/v1/sessions/end
func (h *ParkingSessionHandler) EndSession(c *gin.Context) {
	var dto domain.EndSessionDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Dữ liệu không hợp lệ: " + err.Error()})
		return
	}
	session, err := h.parkingService.EndSession(c.Request.Context(), *dto.SlotID, nil)
	if err != nil {
		respondError(c, err, "Không thể kết thúc phiên đỗ xe")
		return
	}
	if session == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Không có phiên đỗ xe đang hoạt động cho slot này"})
		return
	}
	c.JSON(http.StatusOK, session)
}

// GET /api/v1/sessions/:id
func (h *ParkingSessionHandler) GetSession(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	session, err := h.parkingService.GetSession(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Không thể lấy phiên đỗ xe")
		return
	}
	c.JSON(http.StatusOK, session)
}

// GET /api/v1/sessions/active
func (h *ParkingSessionHandler) ActiveSessions(c *gin.Context) {
	sessions, err := h.parkingService.ActiveSessions(c.Request.Context())
	if err != nil {
		respondError(c, err, "Không thể lấy danh sách phiên đang hoạt động")
		return
	}
	c.JSON(http.StatusOK, nonNilSessions(sessions))
}

// GET /api/v1/sessions/history?limit=
func (h *ParkingSessionHandler) SessionHistory(c *gin.Context) {
	sessions, err := h.parkingService.SessionHistory(c.Request.Context(), queryLimit(c))
	if err != nil {
		respondError(c, err, "Không thể lấy lịch sử phiên đỗ xe")
		return
	}
	c.JSON(http.StatusOK, nonNilSessions(sessions))
}

// GET /api/v1/sessions/mine?limit=
func (h *ParkingSessionHandler) MySessions(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Không xác định được người dùng"})
		return
	}
	sessions, err := h.parkingService.UserSessions(c.Request.Context(), userID, queryLimit(c))
	if err != nil {
		respondError(c, err, "Không thể lấy phiên đỗ xe của người dùng")
		return
	}
	c.JSON(http.StatusOK, nonNilSessions(sessions))
}

// GET /api/v1/sessions/:id/fee
func (h *ParkingSessionHandler) FeeQuote(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	quote, err := h.parkingService.FeeQuote(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Không thể tính phí")
		return
	}
	c.JSON(http.StatusOK, quote)
}

// POST /api/v1/sessions/:id/pay
func (h *ParkingSessionHandler) PaySession(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var dto domain.PaySessionDTO
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&dto); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Dữ liệu không hợp lệ: " + err.Error()})
			return
		}
	}
	session, err := h.parkingService.MarkPaid(c.Request.Context(), id, dto.PaymentMethod, middleware.CurrentActor(c))
	if err != nil {
		respondError(c, err, "Không thể ghi nhận thanh toán")
		return
	}
	c.JSON(http.StatusOK, session)
}

// GET /api/v1/stats
func (h *ParkingSessionHandler) Statistics(c *gin.Context) {
	stats, err := h.parkingService.Statistics(c.Request.Context())
	if err != nil {
		respondError(c, err, "Không thể lấy thống kê")
		return
	}
	c.JSON(http.StatusOK, stats)
}

func nonNilSessions(s []domain.ParkingSession) []domain.ParkingSession {
	if s == nil {
		return []domain.ParkingSession{}
	}
	return s
}
