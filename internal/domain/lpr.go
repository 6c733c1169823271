package domain

// LPRRequestDTO: frontend gửi ảnh base64, tùy chọn kèm slot để mở phiên ngay.
type LPRRequestDTO struct {
	ImageBase64 string `json:"image_base64" binding:"required"`
	SlotID      *int   `json:"slot_id,omitempty"`
}

type LPRResponseDTO struct {
	DetectedPlate string          `json:"detected_plate"`
	Confidence    float32         `json:"confidence,omitempty"`
	Session       *ParkingSession `json:"session,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
}
