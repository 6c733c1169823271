package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/xrl111/smart-eparking-pi4/internal/domain"
	"github.com/xrl111/smart-eparking-pi4/internal/service"
)

type PlateRecognizer interface {
	Enabled() bool
	RecognizePlate(ctx context.Context, imageBytes []byte) (string, float32, error)
}

type SessionStarter interface {
	StartSession(ctx context.Context, slotID int, userID *int, plate string) (*domain.ParkingSession, error)
}

type LPRHandler struct {
	lprService     PlateRecognizer
	parkingService SessionStarter
	log            zerolog.Logger
}

func NewLPRHandler(lprService PlateRecognizer, parkingService SessionStarter, log zerolog.Logger) *LPRHandler {
	return &LPRHandler{
		lprService:     lprService,
		parkingService: parkingService,
		log:            log.With().Str("component", "lpr_handler").Logger(),
	}
}

// POST /api/v1/lpr/recognize
func (h *LPRHandler) Recognize(c *gin.Context) {
	if !h.lprService.Enabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "LPR chưa được bật"})
		return
	}
	var req domain.LPRRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Payload không hợp lệ: " + err.Error()})
		return
	}

	imageBytes, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		h.log.Warn().Err(err).Msg("Lỗi giải mã ảnh base64")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Dữ liệu ảnh không hợp lệ"})
		return
	}
	if len(imageBytes) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Dữ liệu ảnh rỗng"})
		return
	}
	h.log.Debug().Int("bytes", len(imageBytes)).Msg("Đã nhận ảnh để xử lý LPR")

	plate, confidence, err := h.lprService.RecognizePlate(c.Request.Context(), imageBytes)
	if err != nil {
		if errors.Is(err, service.ErrPlateNotFound) {
			c.JSON(http.StatusOK, domain.LPRResponseDTO{ErrorMessage: "Không nhận dạng được biển số."})
			return
		}
		h.log.Error().Err(err).Msg("Lỗi từ LPRService")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Lỗi xử lý ảnh LPR", "details": err.Error()})
		return
	}

	resp := domain.LPRResponseDTO{DetectedPlate: plate, Confidence: confidence}
	if req.SlotID != nil {
		session, err := h.parkingService.StartSession(c.Request.Context(), *req.SlotID, nil, plate)
		if err != nil {
			// vẫn trả biển số, kèm lỗi tạo phiên
			h.log.Warn().Err(err).Int("slot", *req.SlotID).Msg("Không tạo được phiên sau LPR")
			resp.ErrorMessage = err.Error()
		} else {
			resp.Session = session
		}
	}
	c.JSON(http.StatusOK, resp)
}
