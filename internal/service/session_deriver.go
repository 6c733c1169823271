package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// SessionDeriver so sánh hai mảng occupancy liên tiếp: 0->1 mở phiên, 1->0 đóng phiên.
// Mọi lỗi chỉ được log, không chặn xử lý frame.
type SessionDeriver struct {
	sessions SessionLifecycle
	log      zerolog.Logger
}

func NewSessionDeriver(sessions SessionLifecycle, log zerolog.Logger) *SessionDeriver {
	return &SessionDeriver{
		sessions: sessions,
		log:      log.With().Str("component", "session_deriver").Logger(),
	}
}

func (d *SessionDeriver) Derive(ctx context.Context, prev, next []bool) {
	if d == nil || d.sessions == nil {
		return
	}
	for i := range next {
		was := i < len(prev) && prev[i]
		switch {
		case !was && next[i]:
			d.start(ctx, i)
		case was && !next[i]:
			d.end(ctx, i)
		}
	}
}

func (d *SessionDeriver) start(ctx context.Context, slot int) {
	session, err := d.sessions.StartSession(ctx, slot, nil, "")
	if err != nil {
		if errors.Is(err, ErrSessionConflict) {
			d.log.Warn().Int("slot", slot).Msg("Slot đã có phiên đang hoạt động, bỏ qua")
			return
		}
		d.log.Error().Err(err).Int("slot", slot).Msg("Không thể tạo phiên đỗ xe tự động")
		return
	}
	d.log.Info().Int("slot", slot).Int("session_id", session.ID).Msg("Tự động tạo phiên đỗ xe")
}

func (d *SessionDeriver) end(ctx context.Context, slot int) {
	session, err := d.sessions.EndSession(ctx, slot, nil)
	if err != nil {
		d.log.Error().Err(err).Int("slot", slot).Msg("Không thể kết thúc phiên đỗ xe tự động")
		return
	}
	if session != nil {
		d.log.Info().Int("slot", slot).Int("session_id", session.ID).Int64("fee", session.FeeAmount).
			Msg("Tự động kết thúc phiên đỗ xe")
	}
}
