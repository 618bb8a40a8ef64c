package collab

import (
	"time"

	"deltaServer/backend/internal/ot/delta"
)

const EventOpApplied = "OP_APPLIED"

// DocOpEvent 是写入 Kafka 的操作事件，Ops 为服务端变换后的 delta
type DocOpEvent struct {
	EventType    string      `json:"eventType"` // 固定 "OP_APPLIED"
	DocID        string      `json:"docId"`
	OperationID  string      `json:"operationId"`
	Revision     uint64      `json:"revision"`
	AuthorID     uint64      `json:"authorId"`
	ClientID     string      `json:"clientId"`
	ClientSeq    uint64      `json:"clientSeq"` // 针对同一个 clientId 的“本地递增序号”
	BaseRevision uint64      `json:"baseRevision"`
	Ops          delta.Delta `json:"ops"`
	AppliedAt    time.Time   `json:"appliedAt"`
}

func newDocOpEvent(docID string, op AppliedOp, baseRevision uint64) DocOpEvent {
	return DocOpEvent{
		EventType:    EventOpApplied,
		DocID:        docID,
		OperationID:  op.OperationId,
		Revision:     op.Revision,
		AuthorID:     op.AuthorId,
		ClientID:     op.ClientId,
		ClientSeq:    op.ClientSeq,
		BaseRevision: baseRevision,
		Ops:          op.Ops,
		AppliedAt:    op.AppliedAt,
	}
}
