package device

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/xrl111/smart-eparking-pi4/internal/domain"
	"github.com/xrl111/smart-eparking-pi4/internal/metrics"
)

const (
	DefaultReconnectInterval = 5 * time.Second
	DefaultSimulationPeriod  = 1500 * time.Millisecond
	DefaultStopTimeout       = 2 * time.Second
	DefaultCommandBackoff    = 100 * time.Millisecond
	maxLineLength            = 4096
)

var errNotConnected = errors.New("serial chưa kết nối")

// Listener nhận từng frame theo thứ tự đến. Lỗi và panic chỉ được log.
type Listener func(frame domain.InboundFrame) error

type Options struct {
	Simulate          bool
	PortName          string
	ReconnectInterval time.Duration
	SimulationPeriod  time.Duration
	SimulationSeed    int64
	TotalSlots        int
	StopTimeout       time.Duration
	CommandBackoff    time.Duration
}

func (o *Options) setDefaults() {
	if o.ReconnectInterval <= 0 {
		o.ReconnectInterval = DefaultReconnectInterval
	}
	if o.SimulationPeriod <= 0 {
		o.SimulationPeriod = DefaultSimulationPeriod
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = DefaultStopTimeout
	}
	if o.CommandBackoff <= 0 {
		o.CommandBackoff = DefaultCommandBackoff
	}
}

// Link đọc JSON từng dòng từ thiết bị (hoặc bộ mô phỏng) và gửi lệnh xuống.
type Link struct {
	dialer Dialer
	opts   Options
	log    zerolog.Logger
	now    func() time.Time

	listenersMu sync.RWMutex
	listeners   []Listener

	// portMu chỉ bảo vệ handle cổng, không bao giờ là lock của state.
	portMu sync.Mutex
	port   Port

	connected    atomic.Bool
	lastReceived atomic.Int64

	runMu sync.Mutex
	stop  chan struct{}
	done  chan struct{}
	// exiting là done của vòng đọc đã bị Stop; nó có thể vẫn còn kẹt trong Read.
	exiting chan struct{}
}

func NewLink(dialer Dialer, opts Options, log zerolog.Logger) *Link {
	opts.setDefaults()
	return &Link{
		dialer: dialer,
		opts:   opts,
		log:    log.With().Str("component", "device_link").Logger(),
		now:    time.Now,
	}
}

func (l *Link) Simulated() bool {
	return l.opts.Simulate
}

func (l *Link) AddListener(fn Listener) {
	l.listenersMu.Lock()
	defer l.listenersMu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Start chạy vòng đọc nền; gọi lại khi đang chạy thì không làm gì.
// Nếu vòng đọc cũ chưa thoát sau StopTimeout thì không khởi động, để không có hai vòng đọc cùng lúc.
func (l *Link) Start() bool {
	l.runMu.Lock()
	defer l.runMu.Unlock()
	if l.done != nil {
		return true
	}
	if l.exiting != nil {
		select {
		case <-l.exiting:
			l.exiting = nil
		case <-time.After(l.opts.StopTimeout):
			l.log.Error().Msg("Vòng đọc cũ vẫn chưa thoát, chưa thể khởi động lại device link")
			return false
		}
	}
	l.stop = make(chan struct{})
	l.done = make(chan struct{})

	go func(stop <-chan struct{}, done chan<- struct{}) {
		defer close(done)
		if l.opts.Simulate {
			l.runSimulation(stop)
			return
		}
		l.runSerial(stop)
	}(l.stop, l.done)

	if l.opts.Simulate {
		l.log.Info().Msg("Device link bắt đầu ở chế độ mô phỏng")
	} else {
		l.log.Info().Str("port", l.opts.PortName).Msg("Device link bắt đầu ở chế độ serial")
	}
	return true
}

// Stop báo dừng và chờ vòng đọc tối đa StopTimeout rồi đóng cổng.
func (l *Link) Stop() {
	l.runMu.Lock()
	stop, done := l.stop, l.done
	l.stop, l.done = nil, nil
	if done != nil {
		l.exiting = done
	}
	l.runMu.Unlock()
	if stop == nil {
		return
	}

	close(stop)
	select {
	case <-done:
	case <-time.After(l.opts.StopTimeout):
		l.log.Warn().Dur("timeout", l.opts.StopTimeout).Msg("Vòng đọc không dừng kịp, vẫn đóng cổng")
	}
	l.closePort(nil)
	l.connected.Store(false)
	metrics.RecordConnected(false)
	l.log.Info().Msg("Device link đã dừng")
}

func (l *Link) IsConnected() bool {
	if !l.connected.Load() {
		return false
	}
	if l.opts.Simulate {
		return true
	}
	l.portMu.Lock()
	defer l.portMu.Unlock()
	return l.port != nil
}

// LastReceivedAt trả về thời điểm nhận dòng dữ liệu gần nhất.
func (l *Link) LastReceivedAt() (time.Time, bool) {
	ns := l.lastReceived.Load()
	if ns == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}

func (l *Link) Status() domain.DeviceLinkStatus {
	st := domain.DeviceLinkStatus{
		Connected: l.IsConnected(),
		Simulated: l.opts.Simulate,
		Port:      l.opts.PortName,
	}
	if t, ok := l.LastReceivedAt(); ok {
		st.LastReceivedAt.SetValid(t)
	}
	return st
}

// SendCommand ghi cmd + "\n", thử lại tối đa retries lần. Ở chế độ mô phỏng
// luôn trả về true.
func (l *Link) SendCommand(cmd string, retries int) bool {
	kind := CommandKind(cmd)
	if l.opts.Simulate {
		l.log.Debug().Str("command", cmd).Msg("Chế độ mô phỏng: bỏ qua lệnh")
		metrics.RecordCommand(kind, true)
		return true
	}
	if retries < 0 {
		retries = 0
	}

	payload := []byte(cmd + "\n")
	for attempt := 0; attempt <= retries; attempt++ {
		err := l.write(payload)
		if err == nil {
			l.log.Debug().Str("command", cmd).Int("attempt", attempt+1).Msg("Đã gửi lệnh xuống thiết bị")
			metrics.RecordCommand(kind, true)
			return true
		}
		if errors.Is(err, errNotConnected) {
			l.log.Warn().Str("command", cmd).Msg("Serial chưa kết nối, không thể gửi lệnh")
			break
		}
		if attempt < retries {
			l.log.Warn().Err(err).Str("command", cmd).Int("attempt", attempt+1).Int("max", retries+1).
				Msg("Lỗi khi gửi lệnh, thử lại")
			time.Sleep(l.opts.CommandBackoff)
			continue
		}
		l.log.Error().Err(err).Str("command", cmd).Int("attempts", retries+1).Msg("Gửi lệnh thất bại")
	}
	metrics.RecordCommand(kind, false)
	return false
}

func (l *Link) write(payload []byte) error {
	l.portMu.Lock()
	defer l.portMu.Unlock()
	if l.port == nil {
		return errNotConnected
	}
	n, err := l.port.Write(payload)
	if err != nil {
		return err
	}
	if n < len(payload) {
		return io.ErrShortWrite
	}
	if d, ok := l.port.(interface{ Drain() error }); ok {
		return d.Drain()
	}
	return nil
}

func (l *Link) runSerial(stop <-chan struct{}) {
	buf := make([]byte, 256)
	var lines lineBuffer
	var port Port

	for {
		select {
		case <-stop:
			return
		default:
		}

		if port == nil {
			l.log.Info().Str("port", l.opts.PortName).Msg("Kết nối tới serial port")
			p, err := l.dialer.Dial()
			if err != nil {
				l.log.Warn().Err(err).Dur("retry_in", l.opts.ReconnectInterval).Msg("Không mở được serial port")
				metrics.RecordReconnect()
				if !sleepOrStop(stop, l.opts.ReconnectInterval) {
					return
				}
				continue
			}
			port = p
			lines.Reset()
			l.setPort(p)
			l.connected.Store(true)
			metrics.RecordConnected(true)
			l.log.Info().Msg("Đã kết nối thành công tới thiết bị")
		}

		n, err := port.Read(buf)
		if n > 0 {
			for _, line := range lines.Feed(buf[:n]) {
				l.lastReceived.Store(l.now().UnixNano())
				l.handleLine(line)
			}
		}
		if err != nil {
			if l.connected.Swap(false) {
				l.log.Warn().Err(err).Dur("retry_in", l.opts.ReconnectInterval).Msg("Mất kết nối với thiết bị")
			}
			metrics.RecordConnected(false)
			metrics.RecordReconnect()
			l.closePort(port)
			port = nil
			if !sleepOrStop(stop, l.opts.ReconnectInterval) {
				return
			}
		}
	}
}

func (l *Link) runSimulation(stop <-chan struct{}) {
	l.log.Warn().Msg("Kích hoạt chế độ mô phỏng serial để phát triển/trên PC")
	sim := NewSimulator(l.opts.TotalSlots, l.opts.SimulationSeed)
	l.connected.Store(true)
	metrics.RecordConnected(true)

	ticker := time.NewTicker(l.opts.SimulationPeriod)
	defer ticker.Stop()
	for {
		now := l.now()
		l.lastReceived.Store(now.UnixNano())
		l.handleLine(sim.NextLine(now))
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

func (l *Link) handleLine(line []byte) {
	frame, err := ParseFrame(line, l.now())
	if err != nil {
		l.log.Debug().Bytes("line", line).Msg("Bỏ qua dòng không phải JSON")
		metrics.RecordFrame(false)
		return
	}
	metrics.RecordFrame(true)
	l.dispatch(frame)
}

func (l *Link) dispatch(frame domain.InboundFrame) {
	l.listenersMu.RLock()
	listeners := append([]Listener(nil), l.listeners...)
	l.listenersMu.RUnlock()

	start := time.Now()
	for i, fn := range listeners {
		l.invoke(i, fn, frame)
	}
	metrics.RecordDispatch(time.Since(start))
}

func (l *Link) invoke(idx int, fn Listener, frame domain.InboundFrame) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Int("listener", idx).Str("panic", fmt.Sprint(r)).Msg("Listener lỗi")
		}
	}()
	if err := fn(frame); err != nil {
		l.log.Error().Err(err).Int("listener", idx).Msg("Listener lỗi")
	}
}

func (l *Link) setPort(p Port) {
	l.portMu.Lock()
	l.port = p
	l.portMu.Unlock()
}

// closePort đóng p nếu nó vẫn là cổng hiện tại; p == nil đóng bất kỳ cổng nào.
func (l *Link) closePort(p Port) {
	l.portMu.Lock()
	defer l.portMu.Unlock()
	if l.port == nil || (p != nil && l.port != p) {
		return
	}
	if err := l.port.Close(); err != nil {
		l.log.Debug().Err(err).Msg("Lỗi khi đóng serial port")
	}
	l.port = nil
}

func sleepOrStop(stop <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}

// lineBuffer gom byte thành từng dòng hoàn chỉnh qua nhiều lần Read.
type lineBuffer struct {
	buf      []byte
	overflow bool
}

func (b *lineBuffer) Reset() {
	b.buf = b.buf[:0]
	b.overflow = false
}

// Feed trả về các dòng đã hoàn chỉnh (bỏ khoảng trắng, bỏ dòng rỗng).
func (b *lineBuffer) Feed(chunk []byte) [][]byte {
	var out [][]byte
	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			b.append(chunk)
			break
		}
		b.append(chunk[:i])
		if !b.overflow {
			if line := bytes.TrimSpace(b.buf); len(line) > 0 {
				out = append(out, append([]byte(nil), line...))
			}
		}
		b.Reset()
		chunk = chunk[i+1:]
	}
	return out
}

func (b *lineBuffer) append(p []byte) {
	if b.overflow {
		return
	}
	if len(b.buf)+len(p) > maxLineLength {
		b.overflow = true
		b.buf = b.buf[:0]
		return
	}
	b.buf = append(b.buf, p...)
}
