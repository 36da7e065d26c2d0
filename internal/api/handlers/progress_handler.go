package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ProgressHandler 归因执行进度的 websocket 推送
type ProgressHandler struct {
	logger      *logrus.Logger
	upgrader    websocket.Upgrader
	clients     map[string]map[*websocket.Conn]bool // run_id → connections
	clientMutex sync.RWMutex
	broadcast   chan ProgressMessage
}

// ProgressMessage 进度消息
type ProgressMessage struct {
	RunID     string `json:"run_id"`
	Stage     string `json:"stage,omitempty"` // compile, attribute, expand
	Done      int    `json:"done,omitempty"`
	Total     int    `json:"total,omitempty"`
	Status    string `json:"status,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// NewProgressHandler 创建进度处理器
func NewProgressHandler(logger *logrus.Logger) *ProgressHandler {
	return &ProgressHandler{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:   make(map[string]map[*websocket.Conn]bool),
		broadcast: make(chan ProgressMessage, 100),
	}
}

// Start 启动广播协程
func (h *ProgressHandler) Start() {
	go h.runBroadcaster()
}

// runBroadcaster 把进度消息分发给订阅对应 run 的客户端
func (h *ProgressHandler) runBroadcaster() {
	for msg := range h.broadcast {
		h.clientMutex.Lock()
		for conn := range h.clients[msg.RunID] {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.WithError(err).Warn("Failed to write to WebSocket client")
				conn.Close()
				delete(h.clients[msg.RunID], conn)
			}
		}
		h.clientMutex.Unlock()
	}
}

// HandleWebSocket 处理 websocket 订阅连接
func (h *ProgressHandler) HandleWebSocket(c *gin.Context) {
	runID := c.Param("id")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade to WebSocket")
		return
	}
	defer conn.Close()

	h.clientMutex.Lock()
	if h.clients[runID] == nil {
		h.clients[runID] = make(map[*websocket.Conn]bool)
	}
	h.clients[runID][conn] = true
	h.clientMutex.Unlock()

	h.logger.WithField("run_id", runID).Info("WebSocket client connected")

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.WithError(err).Warn("WebSocket error")
			}
			break
		}
	}

	h.clientMutex.Lock()
	delete(h.clients[runID], conn)
	h.clientMutex.Unlock()

	h.logger.WithField("run_id", runID).Info("WebSocket client disconnected")
}

// BroadcastProgress 广播阶段进度（实现 worker.ProgressBroadcaster）
func (h *ProgressHandler) BroadcastProgress(runID, stage string, done, total int) {
	h.send(ProgressMessage{
		RunID:     runID,
		Stage:     stage,
		Done:      done,
		Total:     total,
		Timestamp: time.Now().Unix(),
	})
}

// BroadcastStatus 广播状态变更
func (h *ProgressHandler) BroadcastStatus(runID, status string) {
	h.send(ProgressMessage{
		RunID:     runID,
		Status:    status,
		Timestamp: time.Now().Unix(),
	})
}

func (h *ProgressHandler) send(msg ProgressMessage) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("Broadcast channel is full, dropping message")
	}
}
