package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xrl111/smart-eparking-pi4/internal/mode"
	"github.com/xrl111/smart-eparking-pi4/internal/repository"
	"github.com/xrl111/smart-eparking-pi4/internal/service"
)

// statusForError ánh xạ lỗi sentinel của service/repository sang HTTP status.
func statusForError(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrNoActiveSession):
		return http.StatusNotFound
	case errors.Is(err, service.ErrSessionConflict), errors.Is(err, repository.ErrDuplicateEntry),
		errors.Is(err, service.ErrAlreadyPaid), errors.Is(err, service.ErrSessionNotEnded),
		errors.Is(err, service.ErrSessionNotActive), errors.Is(err, service.ErrUserAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrNotPermitted), errors.Is(err, service.ErrUserInactive):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, mode.ErrInvalidMode), errors.Is(err, service.ErrInvalidGateState),
		errors.Is(err, service.ErrSlotOutOfRange), errors.Is(err, service.ErrSensorSlot),
		errors.Is(err, service.ErrInvalidPricingRule), errors.Is(err, service.ErrPlateNotFound):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// respondError trả lỗi JSON; lỗi 500 kèm message chung và details.
func respondError(c *gin.Context, err error, internalMsg string) {
	code := statusForError(err)
	if code == http.StatusInternalServerError {
		c.JSON(code, gin.H{"error": internalMsg, "details": err.Error()})
		return
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func parseIDParam(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " không hợp lệ"})
		return 0, false
	}
	return id, true
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil {
		return 0
	}
	return limit
}
