package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"deltaServer/backend/internal/collab"
	"deltaServer/backend/internal/events"
	"deltaServer/backend/internal/ot/delta"
)

const (
	sendQueueSize = 64
	writeWait     = 10 * time.Second
	cleanupWait   = 2 * time.Second
)

type ConnOptions struct {
	SubmitTimeout time.Duration
	PresenceTTL   time.Duration
	Logger        *slog.Logger
}

func (o ConnOptions) withDefaults() ConnOptions {
	if o.SubmitTimeout <= 0 {
		o.SubmitTimeout = 200 * time.Millisecond
	}
	if o.PresenceTTL <= 0 {
		o.PresenceTTL = 600 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

type Conn struct {
	ws       *websocket.Conn
	hub      *Hub
	userID   uint64
	username string
	//协作引擎服务
	svc collab.Service
	// 信号量控制
	sem  *collab.SemaphoreControl
	opts ConnOptions
	log  *slog.Logger

	// send 是出站队列，由 writeLoop 消费；closed 之后不再写入
	mu      sync.Mutex
	closed  bool
	send    chan OutboundMessage
	clients map[string]struct{} // 本连接用过的 clientId，广播时跳过自己的操作

	// 以下只在读循环中访问
	docID    string
	registry *events.Registry
	handle   events.Handle
}

func NewConn(ws *websocket.Conn, hub *Hub, userID uint64, username string, svc collab.Service, sem *collab.SemaphoreControl, opts ConnOptions) *Conn {
	opts = opts.withDefaults()
	return &Conn{
		ws:       ws,
		hub:      hub,
		userID:   userID,
		username: username,
		svc:      svc,
		sem:      sem,
		opts:     opts,
		log:      opts.Logger.With("user", userID),
		send:     make(chan OutboundMessage, sendQueueSize),
		clients:  make(map[string]struct{}),
	}
}

// SendMessage_Enqueue 非阻塞入队，队列满或连接已关闭时丢弃
func (c *Conn) SendMessage_Enqueue(msg OutboundMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.log.Warn("send queue full, drop message", "type", msg.MessageType())
	}
}

// reply 只在读循环中调用，此时 send 不会被关闭
func (c *Conn) reply(msg OutboundMessage) {
	c.send <- msg
}

func (c *Conn) replyError(docID string, err error) {
	c.reply(ServerMessage{Type: TypeError, DocID: docID, Content: collab.ErrorCode(err)})
}

func (c *Conn) rememberClient(clientID string) {
	if clientID == "" {
		return
	}
	c.mu.Lock()
	c.clients[clientID] = struct{}{}
	c.mu.Unlock()
}

// clientId 为空的操作无法区分来源，提交者自己也会收到广播
func (c *Conn) isOwnClient(clientID string) bool {
	if clientID == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.clients[clientID]
	return ok
}

func (c *Conn) joinDocument(ctx context.Context, docID string) {
	if docID == "" {
		c.reply(ServerMessage{Type: TypeError, Content: "MISSING_DOC_ID"})
		return
	}
	if docID != c.docID {
		// 先离开旧房间
		c.leaveDocument(ctx)

		reg, err := c.svc.Events(ctx, docID)
		if err != nil {
			c.log.Error("open document failed", "doc", docID, "err", err)
			c.replyError(docID, err)
			return
		}
		c.registry = reg
		c.handle = collab.OnOpApplied(reg, func(op collab.AppliedOp) {
			if c.isOwnClient(op.ClientId) {
				return
			}
			c.SendMessage_Enqueue(newOpBroadcast(docID, op))
		})
		c.docID = docID
		c.hub.Join(docID, c)
	}

	if err := c.hub.touchPresence(ctx, docID, c.userID, c.username, c.opts.PresenceTTL); err != nil {
		c.log.Warn("add member failed", "doc", docID, "err", err)
	}
	members, err := c.hub.aliveMembers(ctx, docID)
	if err != nil {
		c.log.Warn("get members failed", "doc", docID, "err", err)
	}
	rev, err := c.svc.CurrentRevision(ctx, docID)
	if err != nil {
		c.replyError(docID, err)
		return
	}
	c.reply(ServerMessage{Type: TypeJoinDocument, DocID: docID, UserID: c.userID, Revision: rev, Members: members})
	c.hub.BroadcastPresence(docID, members)
}

func (c *Conn) leaveDocument(ctx context.Context) {
	docID := c.docID
	if docID == "" {
		return
	}
	c.registry.Unregister(c.handle)
	c.hub.Leave(docID, c)
	c.docID, c.registry, c.handle = "", nil, events.Handle{}

	if err := c.svc.UpdateSelection(ctx, docID, c.userID, nil); err != nil {
		c.log.Warn("clear selection failed", "doc", docID, "err", err)
	}
	c.hub.BroadcastCursor(docID, c, c.userID, nil)
	if err := c.hub.dropPresence(ctx, docID, c.userID); err != nil {
		c.log.Warn("remove member failed", "doc", docID, "err", err)
	}
	members, err := c.hub.aliveMembers(ctx, docID)
	if err == nil {
		c.hub.BroadcastPresence(docID, members)
	}
}

func (c *Conn) handleOpSubmit(ctx context.Context, msg ClientMessage) {
	docID := msg.DocID
	if docID == "" {
		docID = c.docID
	}
	submitCtx, cancel := context.WithTimeout(ctx, c.opts.SubmitTimeout)
	defer cancel()

	if c.sem != nil {
		if err := c.sem.Acquire(submitCtx); err != nil {
			c.replyError(docID, err)
			return
		}
		defer c.sem.Release()
	}

	c.rememberClient(msg.ClientId)
	op, err := c.svc.Submit(submitCtx, docID, c.userID,
		msg.BaseRevision, msg.ClientId, msg.ClientSeq, msg.Ops)
	if err != nil {
		c.log.Info("submit rejected", "doc", docID, "base", msg.BaseRevision,
			"client", msg.ClientId, "seq", msg.ClientSeq, "err", err)
		c.replyError(docID, err)
		return
	}
	c.reply(OpAppliedMessage{
		Type:         TypeOpApplied,
		DocID:        docID,
		BaseRevision: msg.BaseRevision,
		Revision:     op.Revision,
		ClientId:     msg.ClientId,
		ClientSeq:    msg.ClientSeq,
		OperationId:  op.OperationId,
		Ops:          op.Ops,
	})
}

func (c *Conn) handleSelection(ctx context.Context, msg ClientMessage) {
	if c.docID == "" {
		c.reply(ServerMessage{Type: TypeError, Content: "NOT_IN_DOCUMENT"})
		return
	}
	if err := c.svc.UpdateSelection(ctx, c.docID, c.userID, msg.Range); err != nil {
		c.replyError(c.docID, err)
		return
	}
	c.hub.BroadcastCursor(c.docID, c, c.userID, msg.Range)
}

func (c *Conn) readLoop(ctx context.Context) {
	defer c.shutdown(ctx)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("read message error", "doc", c.docID, "err", err)
			}
			return
		}
		// 解析失败只回错误，不断开连接
		var clientMessage ClientMessage
		if err := json.Unmarshal(data, &clientMessage); err != nil {
			c.log.Info("malformed message", "doc", c.docID, "err", err)
			if errors.Is(err, delta.ErrInvalidOperation) {
				c.replyError(c.docID, err)
			} else {
				c.reply(ServerMessage{Type: TypeError, DocID: c.docID, Content: "BAD_REQUEST"})
			}
			continue
		}
		docID := clientMessage.DocID
		if docID == "" {
			docID = c.docID
		}

		switch clientMessage.Type {
		case TypeHeartbeat:
			if c.docID == "" {
				c.reply(ServerMessage{Type: TypeFeedback, Content: "Heartbeat received"})
				continue
			}
			if err := c.hub.touchPresence(ctx, c.docID, c.userID, c.username, c.opts.PresenceTTL); err != nil {
				c.log.Warn("add member failed", "doc", c.docID, "err", err)
			}
			members, err := c.hub.aliveMembers(ctx, c.docID)
			if err != nil {
				c.log.Warn("get members failed", "doc", c.docID, "err", err)
			} else {
				c.hub.BroadcastPresence(c.docID, members)
			}
			c.reply(ServerMessage{Type: TypeFeedback, Content: "Heartbeat received"})

		case TypeJoinDocument:
			// 允许客户端在 joinDocument 中指定 docId，用于动态切换房间
			c.joinDocument(ctx, clientMessage.DocID)

		case TypeLeaveDocument:
			left := c.docID
			c.leaveDocument(ctx)
			c.reply(ServerMessage{Type: TypeLeaveDocument, DocID: left})

		case TypeShowAliveMembers:
			members, err := c.hub.aliveMembers(ctx, docID)
			if err != nil {
				c.log.Warn("get alive members failed", "doc", docID, "err", err)
			}
			c.reply(ServerMessage{Type: TypeShowAliveMembers, DocID: docID, Members: members})

		case TypeOpSubmit:
			c.handleOpSubmit(ctx, clientMessage)

		case TypeSelection:
			c.handleSelection(ctx, clientMessage)

		case TypeSaveDocument:
			if err := c.svc.SaveSnapshot(ctx, docID); err != nil {
				c.log.Error("save document failed", "doc", docID, "err", err)
				c.replyError(docID, err)
				continue
			}
			c.reply(ServerMessage{Type: TypeSaveDocument, DocID: docID, Content: "Document " + docID + " saved"})

		case TypeLoadDocument:
			doc, err := c.svc.LoadDocument(ctx, docID)
			if err != nil {
				c.replyError(docID, err)
				continue
			}
			c.reply(ServerMessage{Type: TypeLoadDocument, DocID: docID, Revision: doc.Revision, Contents: doc.Contents, Content: doc.Text})

		case TypeOpsSince:
			// 断线重连后追平
			ops, err := c.svc.OpsSince(ctx, docID, clientMessage.BaseRevision, clientMessage.Limit)
			if err != nil {
				c.replyError(docID, err)
				continue
			}
			rev, err := c.svc.CurrentRevision(ctx, docID)
			if err != nil {
				c.replyError(docID, err)
				continue
			}
			c.reply(ServerMessage{Type: TypeOpsSince, DocID: docID, Revision: rev, Applied: ops})

		default:
			// 忽略未知类型，回一条提示
			c.reply(ServerMessage{Type: TypeIgnored, Content: "Unknown message type"})
		}
	}
}

// shutdown 离开房间并关闭出站队列，writeLoop 随之退出
func (c *Conn) shutdown(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupWait)
	defer cancel()
	c.leaveDocument(cleanupCtx)

	c.mu.Lock()
	c.closed = true
	close(c.send)
	c.mu.Unlock()
}

func (c *Conn) writeLoop() {
	// 持续消费通道中的消息；写失败后继续排空队列，避免阻塞读循环
	var failed bool
	for msg := range c.send {
		if failed {
			continue
		}
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteJSON(msg); err != nil {
			c.log.Debug("write failed", "type", msg.MessageType(), "err", err)
			failed = true
		}
	}
}
