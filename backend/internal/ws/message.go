package ws

import (
	"time"

	"deltaServer/backend/internal/cache"
	"deltaServer/backend/internal/collab"
	"deltaServer/backend/internal/events"
	"deltaServer/backend/internal/ot/delta"
)

// 客户端 -> 服务端
const (
	TypeHeartbeat        = "heartbeat"
	TypeJoinDocument     = "joinDocument"
	TypeLeaveDocument    = "leaveDocument"
	TypeOpSubmit         = "op_submit"
	TypeSelection        = "selection"
	TypeLoadDocument     = "loadDocument"
	TypeOpsSince         = "opsSince"
	TypeSaveDocument     = "saveDocument"
	TypeShowAliveMembers = "show_alive_members"
)

// 服务端 -> 客户端
const (
	TypeWelcome     = "welcome"
	TypeFeedback    = "feedback"
	TypeError       = "error"
	TypeIgnored     = "ignored"
	TypePresence    = "presence"
	TypeCursor      = "cursor"
	TypeOpApplied   = "op_applied"
	TypeOpBroadcast = "op_broadcast"
)

type ClientMessage struct {
	Type         string        `json:"type"`
	DocID        string        `json:"docId"`
	Range        *events.Range `json:"range,omitempty"`
	BaseRevision uint64        `json:"baseRevision"`
	// 客户端实例标识。同一用户可有多个 clientId（多端/多标签页）。
	ClientId string `json:"clientId"`
	// 针对同一个 clientId 的“本地递增序号”
	ClientSeq uint64      `json:"clientSeq"`
	Ops       delta.Delta `json:"ops"`
	Limit     int         `json:"limit,omitempty"`
}

type ServerMessage struct {
	Type     string                 `json:"type"`
	UserID   uint64                 `json:"userId,omitempty"`
	DocID    string                 `json:"docId,omitempty"`
	Revision uint64                 `json:"revision,omitempty"`
	Members  []cache.PresenceMember `json:"members,omitempty"`
	Range    *events.Range          `json:"range,omitempty"`
	Contents delta.Delta            `json:"contents,omitempty"`
	Applied  []collab.AppliedOp     `json:"applied,omitempty"`
	Content  string                 `json:"content,omitempty"`
}

// 广播给同文档房间内其他连接的“已应用操作”事件
// - 与 op_applied(ack) 区分：这里用于把变更推送给其他协作者（包括同用户的其他标签页）
// - 前端收到后在本地对未确认的操作做 transform，再应用 ops，并将本地 revision 对齐到 revision
type OpBroadcastMessage struct {
	Type      string      `json:"type"` // 固定 "op_broadcast"
	DocID     string      `json:"docId"`
	Revision  uint64      `json:"revision"` // 服务端已应用后的最新版本
	AuthorID  uint64      `json:"authorId"`
	ClientId  string      `json:"clientId,omitempty"`
	ClientSeq uint64      `json:"clientSeq,omitempty"`
	Ops       delta.Delta `json:"ops"`
	AppliedAt time.Time   `json:"appliedAt"`
}

type OpAppliedMessage struct {
	Type         string `json:"type"` // 固定 "op_applied"
	DocID        string `json:"docId"`
	BaseRevision uint64 `json:"baseRevision"` // 客户端提交时的 base
	Revision     uint64 `json:"revision"`     // 本次操作落地后的版本
	ClientId     string `json:"clientId"`
	ClientSeq    uint64 `json:"clientSeq"`
	OperationId  string `json:"operationId"`
	// 变换后的 ops；与提交的不同说明期间有别人的操作插入
	Ops delta.Delta `json:"ops"`
}

// 出站消息接口
type OutboundMessage interface {
	MessageType() string
}

func (m ServerMessage) MessageType() string      { return m.Type }
func (m OpAppliedMessage) MessageType() string   { return m.Type }
func (m OpBroadcastMessage) MessageType() string { return m.Type }

func newOpBroadcast(docID string, op collab.AppliedOp) OpBroadcastMessage {
	return OpBroadcastMessage{
		Type:      TypeOpBroadcast,
		DocID:     docID,
		Revision:  op.Revision,
		AuthorID:  op.AuthorId,
		ClientId:  op.ClientId,
		ClientSeq: op.ClientSeq,
		Ops:       op.Ops,
		AppliedAt: op.AppliedAt,
	}
}
