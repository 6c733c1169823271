package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xrl111/smart-eparking-pi4/internal/api/middleware"
	"github.com/xrl111/smart-eparking-pi4/internal/domain"
)

// ParkingController là phần của service.Controller mà API dùng.
type ParkingController interface {
	Snapshot() domain.ParkingState
	SetMode(ctx context.Context, raw string, actor domain.Actor) (domain.ControlResponseDTO, error)
	ManualSetGate(ctx context.Context, raw string, actor domain.Actor) (domain.ControlResponseDTO, error)
	ManualSetSlot(ctx context.Context, index int, occupied bool, actor domain.Actor) (domain.ControlResponseDTO, error)
}

type LinkStatusProvider interface {
	Status() domain.DeviceLinkStatus
}

type ControlHandler struct {
	controller ParkingController
	link       LinkStatusProvider
}

func NewControlHandler(controller ParkingController, link LinkStatusProvider) *ControlHandler {
	return &ControlHandler{controller: controller, link: link}
}

// GET /health
func (h *ControlHandler) Health(c *gin.Context) {
	st := h.controller.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"device":         h.link.Status(),
		"operation_mode": st.OperationMode,
		"last_update":    st.LastUpdate,
	})
}

// GET /api/v1/status
func (h *ControlHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller.Snapshot())
}

// GET /api/v1/mode
func (h *ControlHandler) GetMode(c *gin.Context) {
	st := h.controller.Snapshot()
	c.JSON(http.StatusOK, gin.H{"operation_mode": st.OperationMode, "mode_locked_by": st.ModeLockedBy})
}

// POST /api/v1/mode
func (h *ControlHandler) SetMode(c *gin.Context) {
	var dto domain.ModeChangeDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := h.controller.SetMode(c.Request.Context(), dto.Mode, middleware.CurrentActor(c))
	if err != nil {
		respondError(c, err, "Không thể đổi chế độ")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// POST /api/v1/gate
func (h *ControlHandler) SetGate(c *gin.Context) {
	var dto domain.GateControlDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := h.controller.ManualSetGate(c.Request.Context(), dto.State, middleware.CurrentActor(c))
	if err != nil {
		respondError(c, err, "Không thể điều khiển cổng")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// POST /api/v1/slots/:index
func (h *ControlHandler) SetSlot(c *gin.Context) {
	index, ok := parseIDParam(c, "index")
	if !ok {
		return
	}
	var dto domain.SlotControlDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := h.controller.ManualSetSlot(c.Request.Context(), index, *dto.Occupied, middleware.CurrentActor(c))
	if err != nil {
		respondError(c, err, "Không thể điều khiển slot")
		return
	}
	c.JSON(http.StatusOK, resp)
}
