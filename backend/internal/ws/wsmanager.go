package ws

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"deltaServer/backend/internal/collab"
)

// 全局的WebSocket upgrader（允许本地开发环境的来源）
var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" { // 一些环境可能不发送 Origin，或为 "null"
		return true
	}
	allowedPrefixes := []string{
		"http://localhost",
		"http://127.0.0.1",
		"https://localhost",
		"https://127.0.0.1",
	}
	for _, p := range allowedPrefixes {
		if strings.HasPrefix(origin, p) {
			return true
		}
	}
	return false
}}

type Manager struct {
	h    *Hub
	svc  collab.Service
	sem  *collab.SemaphoreControl
	opts ConnOptions
}

func NewManager(h *Hub, svc collab.Service, sem *collab.SemaphoreControl, opts ConnOptions) *Manager {
	return &Manager{h: h, svc: svc, sem: sem, opts: opts.withDefaults()}
}

// WebSocketConnect 依赖鉴权中间件写入的 userId / username
func (m *Manager) WebSocketConnect(c *gin.Context) {
	userID := c.GetUint64("userId")
	username := c.GetString("username")
	log := m.opts.Logger

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("websocket upgrade error", "err", err, "origin", c.Request.Header.Get("Origin"))
		return
	}
	defer conn.Close()

	wsConn := NewConn(conn, m.h, userID, username, m.svc, m.sem, m.opts)

	// 先启动写循环，确保后续写入 send 通道的消息可以被及时发送
	done := make(chan struct{})
	go func() {
		defer close(done)
		wsConn.writeLoop()
	}()
	wsConn.reply(ServerMessage{Type: TypeWelcome, UserID: userID, Content: "welcome " + username})

	// 最后再进入读循环（阻塞至连接关闭），等写循环把剩余消息发完再关连接
	wsConn.readLoop(c.Request.Context())
	<-done
}
