package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/xrl111/smart-eparking-pi4/internal/domain"
)

const (
	wsWriteWait     = 5 * time.Second
	wsBroadcastSize = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Cho phép kết nối từ mọi nguồn
	},
}

// WebSocketManager đẩy snapshot trạng thái và sự kiện phiên tới dashboard.
// Mọi thao tác ghi lên kết nối chỉ diễn ra trong goroutine Start.
type WebSocketManager struct {
	clients    map[*websocket.Conn]bool
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan []byte
	done       chan struct{}
	mutex      sync.RWMutex

	snapshot func() domain.ParkingState
	log      zerolog.Logger
}

// NewWebSocketManager: snapshot (có thể nil) dùng để gửi trạng thái hiện tại cho client mới.
func NewWebSocketManager(snapshot func() domain.ParkingState, log zerolog.Logger) *WebSocketManager {
	return &WebSocketManager{
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan []byte, wsBroadcastSize),
		done:       make(chan struct{}),
		snapshot:   snapshot,
		log:        log.With().Str("component", "websocket").Logger(),
	}
}

func (wsm *WebSocketManager) Start(ctx context.Context) {
	defer close(wsm.done)
	for {
		select {
		case <-ctx.Done():
			wsm.mutex.Lock()
			for client := range wsm.clients {
				client.Close()
				delete(wsm.clients, client)
			}
			wsm.mutex.Unlock()
			wsm.log.Info().Msg("WebSocket Manager đã dừng")
			return

		case client := <-wsm.register:
			wsm.mutex.Lock()
			wsm.clients[client] = true
			total := len(wsm.clients)
			wsm.mutex.Unlock()
			wsm.log.Info().Int("total", total).Msg("WebSocket client connected")
			if wsm.snapshot != nil {
				if msg, err := wsm.statusMessage(wsm.snapshot()); err == nil {
					wsm.write(client, msg)
				}
			}

		case client := <-wsm.unregister:
			wsm.remove(client)

		case message := <-wsm.broadcast:
			wsm.mutex.RLock()
			clients := make([]*websocket.Conn, 0, len(wsm.clients))
			for client := range wsm.clients {
				clients = append(clients, client)
			}
			wsm.mutex.RUnlock()
			for _, client := range clients {
				wsm.write(client, message)
			}
		}
	}
}

func (wsm *WebSocketManager) ClientCount() int {
	wsm.mutex.RLock()
	defer wsm.mutex.RUnlock()
	return len(wsm.clients)
}

// BroadcastStatus có chữ ký của service.StatusObserver.
func (wsm *WebSocketManager) BroadcastStatus(st domain.ParkingState) {
	msg, err := wsm.statusMessage(st)
	if err != nil {
		return
	}
	wsm.enqueue(msg)
}

// BroadcastSession có chữ ký của service.SessionObserver.
func (wsm *WebSocketManager) BroadcastSession(session *domain.ParkingSession) {
	if session == nil {
		return
	}
	msg, err := json.Marshal(domain.StatusNotification{
		Type:      domain.NotificationSession,
		Timestamp: time.Now().UTC(),
		Session:   session,
	})
	if err != nil {
		wsm.log.Error().Err(err).Msg("Error marshaling session event")
		return
	}
	wsm.enqueue(msg)
}

func (wsm *WebSocketManager) statusMessage(st domain.ParkingState) ([]byte, error) {
	msg, err := json.Marshal(domain.StatusNotification{
		Type:      domain.NotificationStatus,
		Timestamp: time.Now().UTC(),
		State:     &st,
	})
	if err != nil {
		wsm.log.Error().Err(err).Msg("Error marshaling status")
	}
	return msg, err
}

func (wsm *WebSocketManager) enqueue(msg []byte) {
	select {
	case wsm.broadcast <- msg:
	default:
		wsm.log.Warn().Msg("Broadcast channel is full, dropping message")
	}
}

func (wsm *WebSocketManager) write(client *websocket.Conn, msg []byte) {
	_ = client.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := client.WriteMessage(websocket.TextMessage, msg); err != nil {
		wsm.log.Debug().Err(err).Msg("Error writing to WebSocket client")
		wsm.remove(client)
	}
}

func (wsm *WebSocketManager) remove(client *websocket.Conn) {
	wsm.mutex.Lock()
	_, ok := wsm.clients[client]
	if ok {
		delete(wsm.clients, client)
		client.Close()
	}
	total := len(wsm.clients)
	wsm.mutex.Unlock()
	if ok {
		wsm.log.Info().Int("total", total).Msg("WebSocket client disconnected")
	}
}

type WebSocketHandler struct {
	wsManager *WebSocketManager
}

func NewWebSocketHandler(wsManager *WebSocketManager) *WebSocketHandler {
	return &WebSocketHandler{wsManager: wsManager}
}

// GET /ws
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.wsManager.log.Warn().Err(err).Msg("Failed to upgrade to WebSocket")
		return
	}

	select {
	case h.wsManager.register <- conn:
	case <-h.wsManager.done:
		conn.Close()
		return
	}

	// client chỉ nhận; đọc để phát hiện ngắt kết nối
	go func() {
		defer func() {
			select {
			case h.wsManager.unregister <- conn:
			case <-h.wsManager.done:
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.wsManager.log.Debug().Err(err).Msg("WebSocket error")
				}
				return
			}
		}
	}()
}
