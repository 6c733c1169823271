package service

import "errors"

var (
	ErrNotPermitted     = errors.New("thao tác không được phép ở chế độ hoạt động hiện tại")
	ErrSessionConflict  = errors.New("slot đã có phiên đỗ xe đang hoạt động")
	ErrSensorSlot       = errors.New("slot 0 do cảm biến quyết định, không thể đặt thủ công")
	ErrInvalidGateState = errors.New("trạng thái cổng không hợp lệ, chỉ chấp nhận open hoặc closed")
	ErrSlotOutOfRange   = errors.New("chỉ số slot nằm ngoài phạm vi")
	ErrSessionNotActive = errors.New("phiên đỗ xe không còn hoạt động")
	ErrSessionNotEnded  = errors.New("phiên đỗ xe chưa kết thúc")
	ErrAlreadyPaid      = errors.New("phiên đỗ xe đã được thanh toán")
)
