package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/web-terminal/backend/internal/logging"
	"github.com/web-terminal/backend/internal/monitoring"
	"github.com/web-terminal/backend/internal/pty"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler attaches WebSocket connections to PTY sessions.
type Handler struct {
	hubManager *HubManager
	ptyManager *pty.Manager
	metrics    *monitoring.Metrics
	log        *logging.Logger
}

// NewHandler creates a WebSocket handler. metrics may be nil.
func NewHandler(hubManager *HubManager, ptyManager *pty.Manager, metrics *monitoring.Metrics, log *logging.Logger) *Handler {
	if log == nil {
		log = logging.NewNop()
	}
	return &Handler{
		hubManager: hubManager,
		ptyManager: ptyManager,
		metrics:    metrics,
		log:        log,
	}
}

// HandleConnection upgrades the request and attaches the client to the
// session. The buffered output is replayed first so a reconnecting
// client sees the terminal exactly where it left off.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request, sessionID string) error {
	ptyProcess, ok := h.ptyManager.Get(sessionID)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return nil
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	hub := h.hubManager.GetOrCreate(sessionID)
	hub.SetOnMessage(h.handleMessage)

	client := NewClient(hub, conn, sessionID)

	// Queue the replay before the client can receive broadcasts, so the
	// history frame always arrives first and live output is never
	// duplicated inside it.
	h.sendHistory(client, ptyProcess)
	hub.Register(client)

	if h.metrics != nil {
		h.metrics.WSConnections.Inc()
	}
	h.log.Info("client attached",
		zap.String("session_id", sessionID),
		zap.Int("clients", hub.ClientCount()))

	go h.writePump(client)
	go h.readPump(client, hub)

	return nil
}

// sendHistory replays the hot-restore buffer to a newly attached client.
func (h *Handler) sendHistory(client *Client, ptyProcess *pty.PTYProcess) {
	history := ptyProcess.GetHistory()
	if len(history) == 0 {
		return
	}

	data, err := json.Marshal(&Message{
		Type: MessageTypeHistory,
		Data: string(history),
	})
	if err != nil {
		h.log.Error("marshal history message", zap.Error(err))
		return
	}

	client.Send(data)
	h.countMessage("out", MessageTypeHistory)
}

func (h *Handler) handleMessage(client *Client, msg *Message) {
	h.countMessage("in", msg.Type)

	switch msg.Type {
	case MessageTypeStdin, MessageTypeResize:
		// Resolved per message, not captured at attach time, so clients
		// that stay connected across a restart reach the new process.
		ptyProcess, ok := h.ptyManager.Get(client.SessionID())
		if !ok {
			h.log.Debug("input for session without process",
				zap.String("session_id", client.SessionID()))
			return
		}
		if msg.Type == MessageTypeStdin {
			h.handleStdin(msg, ptyProcess)
		} else {
			h.handleResize(msg, ptyProcess)
		}
	case MessageTypePing:
		h.handlePing(client)
	default:
		h.log.Debug("unknown message type",
			zap.String("session_id", client.SessionID()),
			zap.String("type", string(msg.Type)))
	}
}

func (h *Handler) handleStdin(msg *Message, ptyProcess *pty.PTYProcess) {
	if msg.Data == "" {
		return
	}

	if err := ptyProcess.Write([]byte(msg.Data)); err != nil {
		h.log.Warn("write to pty",
			zap.String("session_id", ptyProcess.ID),
			zap.Error(err))
		return
	}
	if h.metrics != nil {
		h.metrics.PTYBytesWritten.Add(float64(len(msg.Data)))
	}
}

func (h *Handler) handleResize(msg *Message, ptyProcess *pty.PTYProcess) {
	if msg.Rows == 0 || msg.Cols == 0 {
		return
	}

	if err := ptyProcess.Resize(msg.Rows, msg.Cols); err != nil {
		h.log.Warn("resize pty",
			zap.String("session_id", ptyProcess.ID),
			zap.Uint16("rows", msg.Rows),
			zap.Uint16("cols", msg.Cols),
			zap.Error(err))
	}
}

func (h *Handler) handlePing(client *Client) {
	data, err := json.Marshal(&Message{Type: MessageTypePong})
	if err != nil {
		return
	}
	client.Send(data)
	h.countMessage("out", MessageTypePong)
}

// readPump pumps messages from the WebSocket connection to the hub.
func (h *Handler) readPump(client *Client, hub *Hub) {
	defer func() {
		hub.Unregister(client)
		client.Conn().Close()
		if h.metrics != nil {
			h.metrics.WSConnections.Dec()
		}
		h.log.Info("client detached",
			zap.String("session_id", client.SessionID()),
			zap.Int("clients", hub.ClientCount()))
	}()

	client.Conn().SetReadLimit(maxMessageSize)
	client.Conn().SetReadDeadline(time.Now().Add(pongWait))
	client.Conn().SetPongHandler(func(string) error {
		client.Conn().SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := client.Conn().ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("websocket read",
					zap.String("session_id", client.SessionID()),
					zap.Error(err))
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.log.Debug("unmarshal client message",
				zap.String("session_id", client.SessionID()),
				zap.Error(err))
			continue
		}

		hub.HandleMessage(client, &msg)
	}
}

// writePump pumps queued messages to the WebSocket connection. Each
// message goes in its own text frame so the client can JSON-parse them
// one by one.
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn().Close()
	}()

	for {
		select {
		case message, ok := <-client.SendChan():
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Conn().WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Conn().WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			n := len(client.SendChan())
			for i := 0; i < n; i++ {
				queued := <-client.SendChan()
				client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.Conn().WriteMessage(websocket.TextMessage, queued); err != nil {
					return
				}
			}
		case <-ticker.C:
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn().WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// BroadcastOutput delivers a chunk of PTY output to all attached clients.
func (h *Handler) BroadcastOutput(sessionID string, data []byte) {
	hub := h.hubManager.Get(sessionID)
	if hub == nil {
		return
	}

	hub.BroadcastMessage(&Message{
		Type: MessageTypeStdout,
		Data: string(data),
	})
	h.countMessage("out", MessageTypeStdout)
	if h.metrics != nil {
		h.metrics.PTYBytesRead.Add(float64(len(data)))
	}
}

// BroadcastStatus notifies attached clients of a state change.
func (h *Handler) BroadcastStatus(sessionID string, state string, exitCode *int) {
	hub := h.hubManager.Get(sessionID)
	if hub == nil {
		return
	}

	hub.BroadcastMessage(&Message{
		Type:  MessageTypeStatus,
		State: state,
		Code:  exitCode,
	})
	h.countMessage("out", MessageTypeStatus)
}

// BroadcastError sends an error message to attached clients.
func (h *Handler) BroadcastError(sessionID string, errMsg string) {
	hub := h.hubManager.Get(sessionID)
	if hub == nil {
		return
	}

	hub.BroadcastMessage(&Message{
		Type:  MessageTypeError,
		Error: errMsg,
	})
	h.countMessage("out", MessageTypeError)
}

func (h *Handler) countMessage(direction string, t MessageType) {
	if h.metrics != nil {
		h.metrics.WSMessages.WithLabelValues(direction, string(t)).Inc()
	}
}
