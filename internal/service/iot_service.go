package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
	"github.com/rs/zerolog"

	"github.com/xrl111/smart-eparking-pi4/internal/domain"
)

// ErrCommandRejected: lệnh từ xa không hợp lệ hoặc bị từ chối, không nên gửi lại.
var ErrCommandRejected = errors.New("lệnh từ xa bị từ chối")

// IoTPublisher là phần của iotdataplane.Client mà IoTService dùng.
type IoTPublisher interface {
	Publish(ctx context.Context, params *iotdataplane.PublishInput, optFns ...func(*iotdataplane.Options)) (*iotdataplane.PublishOutput, error)
}

// RemoteController là các thao tác điều khiển mà lệnh từ xa được phép gọi.
type RemoteController interface {
	SetMode(ctx context.Context, raw string, actor domain.Actor) (domain.ControlResponseDTO, error)
	ManualSetGate(ctx context.Context, raw string, actor domain.Actor) (domain.ControlResponseDTO, error)
	ManualSetSlot(ctx context.Context, index int, occupied bool, actor domain.Actor) (domain.ControlResponseDTO, error)
}

// IoTService mirror trạng thái lên AWS IoT Core và nhận lệnh operator từ SQS.
type IoTService struct {
	publisher IoTPublisher
	topic     string
	control   RemoteController
	log       zerolog.Logger

	pending chan domain.ParkingState
}

func NewIoTService(publisher IoTPublisher, topic string, control RemoteController, log zerolog.Logger) *IoTService {
	return &IoTService{
		publisher: publisher,
		topic:     topic,
		control:   control,
		log:       log.With().Str("component", "iot_service").Logger(),
		pending:   make(chan domain.ParkingState, 1),
	}
}

// ObserveStatus không chặn: chỉ giữ snapshot mới nhất chờ publish.
func (s *IoTService) ObserveStatus(st domain.ParkingState) {
	if s.publisher == nil {
		return
	}
	select {
	case s.pending <- st:
		return
	default:
	}
	select {
	case <-s.pending:
	default:
	}
	select {
	case s.pending <- st:
	default:
	}
}

// Run publish các snapshot đang chờ cho tới khi ctx bị hủy.
func (s *IoTService) Run(ctx context.Context) {
	if s.publisher == nil {
		return
	}
	s.log.Info().Str("topic", s.topic).Msg("Bắt đầu mirror trạng thái lên IoT Core")
	for {
		select {
		case <-ctx.Done():
			return
		case st := <-s.pending:
			if err := s.PublishStatus(ctx, st); err != nil {
				s.log.Warn().Err(err).Msg("Không publish được trạng thái lên IoT Core")
			}
		}
	}
}

func (s *IoTService) PublishStatus(ctx context.Context, st domain.ParkingState) error {
	payload, err := json.Marshal(domain.StatusNotification{
		Type:      domain.NotificationStatus,
		Timestamp: time.Now().UTC(),
		State:     &st,
	})
	if err != nil {
		return fmt.Errorf("lỗi marshal trạng thái: %w", err)
	}
	_, err = s.publisher.Publish(ctx, &iotdataplane.PublishInput{
		Topic:   aws.String(s.topic),
		Qos:     1,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("lỗi publish MQTT: %w", err)
	}
	s.log.Debug().Str("topic", s.topic).Int("free", st.Free).Msg("Đã publish trạng thái")
	return nil
}

// HandleRemoteCommand xử lý một message SQS chứa domain.RemoteCommand.
func (s *IoTService) HandleRemoteCommand(ctx context.Context, body string) error {
	var cmd domain.RemoteCommand
	if err := json.Unmarshal([]byte(body), &cmd); err != nil {
		s.log.Warn().Err(err).Str("body", body).Msg("Lệnh từ xa không phải JSON hợp lệ")
		return fmt.Errorf("%w: %v", ErrCommandRejected, err)
	}
	actor := domain.Actor{Username: strings.TrimSpace(cmd.Actor)}
	if actor.Username == "" {
		actor.Username = "remote"
	}
	s.log.Info().Str("type", cmd.Type).Str("request_id", cmd.RequestID).Str("actor", actor.Username).
		Msg("Nhận lệnh điều khiển từ xa")

	var (
		resp domain.ControlResponseDTO
		err  error
	)
	switch strings.ToLower(cmd.Type) {
	case "mode":
		resp, err = s.control.SetMode(ctx, cmd.Mode, actor)
	case "gate":
		resp, err = s.control.ManualSetGate(ctx, cmd.Gate, actor)
	case "slot":
		if cmd.SlotIndex == nil || cmd.Occupied == nil {
			return fmt.Errorf("%w: thiếu slot_index hoặc occupied", ErrCommandRejected)
		}
		resp, err = s.control.ManualSetSlot(ctx, *cmd.SlotIndex, *cmd.Occupied, actor)
	default:
		return fmt.Errorf("%w: loại lệnh không xác định '%s'", ErrCommandRejected, cmd.Type)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("type", cmd.Type).Str("request_id", cmd.RequestID).Msg("Lệnh từ xa bị từ chối")
		return fmt.Errorf("%w: %w", ErrCommandRejected, err)
	}
	s.log.Info().Str("command", resp.Command).Bool("delivered", resp.Delivered).Str("request_id", cmd.RequestID).
		Msg("Đã thực hiện lệnh từ xa")
	return nil
}
