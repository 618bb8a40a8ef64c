package ws

import (
	"context"
	"sync"
	"time"

	"deltaServer/backend/internal/cache"
	"deltaServer/backend/internal/events"
)

type Hub struct {
	// 接口实例（一般是 Redis 实现的客户端句柄），用来落地/共享在线状态；为 nil 时不记录在线状态
	presence cache.PresenceCache
	// 读写锁，保护 rooms；加入/离开房间、广播时都会先加锁
	mu sync.RWMutex
	// docID -> set of connections
	rooms map[string]map[*Conn]struct{}
}

func NewHub(p cache.PresenceCache) *Hub {
	return &Hub{presence: p, rooms: make(map[string]map[*Conn]struct{})}
}

// Join 将连接加入指定文档房间
func (h *Hub) Join(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[docID] == nil {
		// 一个用户可开多个标签页/设备（多连接），广播要逐连接发
		h.rooms[docID] = make(map[*Conn]struct{})
	}
	h.rooms[docID][c] = struct{}{}
}

// Leave 将连接从指定文档房间移除
func (h *Hub) Leave(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[docID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, docID)
		}
	}
}

func (h *Hub) RoomSize(docID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[docID])
}

// 广播前先拷贝一份连接列表，避免持锁写通道
func (h *Hub) members(docID string) []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Conn, 0, len(h.rooms[docID]))
	for c := range h.rooms[docID] {
		out = append(out, c)
	}
	return out
}

func (h *Hub) touchPresence(ctx context.Context, docID string, userID uint64, username string, ttl time.Duration) error {
	if h.presence == nil {
		return nil
	}
	return h.presence.AddMember(ctx, docID, userID, username, ttl)
}

func (h *Hub) dropPresence(ctx context.Context, docID string, userID uint64) error {
	if h.presence == nil {
		return nil
	}
	return h.presence.RemoveMember(ctx, docID, userID)
}

func (h *Hub) aliveMembers(ctx context.Context, docID string) ([]cache.PresenceMember, error) {
	if h.presence == nil {
		return nil, nil
	}
	return h.presence.GetAliveMembersWithNames(ctx, docID)
}

func (h *Hub) BroadcastPresence(docID string, members []cache.PresenceMember) {
	msg := ServerMessage{Type: TypePresence, DocID: docID, Members: members}
	for _, c := range h.members(docID) {
		c.SendMessage_Enqueue(msg)
	}
}

// BroadcastCursor 发给房间内除 from 以外的连接；rng 为 nil 表示该用户失去焦点
func (h *Hub) BroadcastCursor(docID string, from *Conn, userID uint64, rng *events.Range) {
	msg := ServerMessage{Type: TypeCursor, DocID: docID, UserID: userID, Range: rng}
	for _, c := range h.members(docID) {
		if c == from {
			continue
		}
		c.SendMessage_Enqueue(msg)
	}
}
