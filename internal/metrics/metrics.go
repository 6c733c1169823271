package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "smart_parking"
)

var (
	// FramesTotal đếm frame nhận từ thiết bị theo kết quả
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_frames_total",
			Help:      "Total number of device lines received",
		},
		[]string{"result"}, // accepted/dropped
	)

	// CommandsTotal đếm lệnh gửi xuống thiết bị
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_commands_total",
			Help:      "Total number of commands sent to the device",
		},
		[]string{"command", "status"},
	)

	DeviceConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_connected",
			Help:      "1 when the serial link is connected",
		},
	)

	Reconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_reconnects_total",
			Help:      "Total number of serial reconnect attempts",
		},
	)

	FreeSlots = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "free_slots",
			Help:      "Number of free parking slots",
		},
	)

	GateOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gate_open",
			Help:      "1 when the gate is open",
		},
	)

	ManualMode = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "manual_mode",
			Help:      "1 when the controller is in manual mode",
		},
	)

	SessionEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events derived from occupancy",
		},
		[]string{"event", "status"}, // start/end, ok/conflict/error
	)

	FeeAmount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_fee_amount",
			Help:      "Fee computed at session end",
			Buckets:   []float64{0, 10000, 20000, 50000, 100000, 200000, 500000},
		},
	)

	ListenerDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_handler_duration_seconds",
			Help:      "Time spent dispatching one frame to listeners",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		},
	)
)

func RecordFrame(accepted bool) {
	if accepted {
		FramesTotal.WithLabelValues("accepted").Inc()
		return
	}
	FramesTotal.WithLabelValues("dropped").Inc()
}

func RecordCommand(command string, ok bool) {
	status := "success"
	if !ok {
		status = "error"
	}
	CommandsTotal.WithLabelValues(command, status).Inc()
}

func RecordConnected(connected bool) {
	DeviceConnected.Set(boolToFloat(connected))
}

func RecordReconnect() {
	Reconnects.Inc()
}

// RecordState cập nhật gauge từ một snapshot.
func RecordState(free int, gateOpen, manual bool) {
	FreeSlots.Set(float64(free))
	GateOpen.Set(boolToFloat(gateOpen))
	ManualMode.Set(boolToFloat(manual))
}

func RecordSession(event, status string) {
	SessionEvents.WithLabelValues(event, status).Inc()
}

func RecordFee(fee int64) {
	FeeAmount.Observe(float64(fee))
}

func RecordDispatch(d time.Duration) {
	ListenerDuration.Observe(d.Seconds())
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
