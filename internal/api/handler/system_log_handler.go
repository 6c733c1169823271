package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xrl111/smart-eparking-pi4/internal/domain"
)

type AuditLogReader interface {
	Recent(ctx context.Context, filter domain.SystemLogFilterDTO) ([]domain.SystemLog, error)
}

type SystemLogHandler struct {
	logs AuditLogReader
}

func NewSystemLogHandler(logs AuditLogReader) *SystemLogHandler {
	return &SystemLogHandler{logs: logs}
}

// GET /api/v1/logs?event_type=&limit=
func (h *SystemLogHandler) Recent(c *gin.Context) {
	var filter domain.SystemLogFilterDTO
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entries, err := h.logs.Recent(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, "Không thể lấy system log")
		return
	}
	if entries == nil {
		entries = []domain.SystemLog{}
	}
	c.JSON(http.StatusOK, entries)
}
