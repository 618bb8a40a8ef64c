package collab

import (
	"context"
	"sync"

	"deltaServer/backend/internal/events"
	"deltaServer/backend/internal/ot/delta"
)

// CursorStore keeps one selection per user per document.
type CursorStore interface {
	// SetCursor stores rng (nil clears it) and returns the previous value.
	SetCursor(ctx context.Context, docID string, userID uint64, rng *events.Range) (*events.Range, error)
	Cursors(ctx context.Context, docID string) (map[uint64]events.Range, error)
	// TransformCursors moves every stored cursor through change. The author's
	// own caret stays after text they inserted at it.
	TransformCursors(ctx context.Context, docID string, change delta.Delta, authorID uint64) error
}

// MemoryCursors 单实例部署时使用；多实例请用 cache.CursorStore
type MemoryCursors struct {
	mu   sync.Mutex
	docs map[string]map[uint64]events.Range
}

func NewMemoryCursors() *MemoryCursors {
	return &MemoryCursors{docs: make(map[string]map[uint64]events.Range)}
}

func (m *MemoryCursors) SetCursor(_ context.Context, docID string, userID uint64, rng *events.Range) (*events.Range, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byUser := m.docs[docID]
	var old *events.Range
	if prev, ok := byUser[userID]; ok {
		old = &prev
	}
	if rng == nil {
		delete(byUser, userID)
		return old, nil
	}
	if byUser == nil {
		byUser = make(map[uint64]events.Range)
		m.docs[docID] = byUser
	}
	byUser[userID] = *rng
	return old, nil
}

func (m *MemoryCursors) Cursors(_ context.Context, docID string) (map[uint64]events.Range, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uint64]events.Range, len(m.docs[docID]))
	for uid, r := range m.docs[docID] {
		out[uid] = r
	}
	return out, nil
}

func (m *MemoryCursors) TransformCursors(_ context.Context, docID string, change delta.Delta, authorID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for uid, r := range m.docs[docID] {
		moved, err := TransformCursor(r, change, uid, authorID)
		if err != nil {
			return err
		}
		m.docs[docID][uid] = moved
	}
	return nil
}

// TransformCursor is the shared rule for cursor stores: the author's cursor
// is pushed past their own insert, everyone else's stays put at a tie.
func TransformCursor(r events.Range, change delta.Delta, userID, authorID uint64) (events.Range, error) {
	return r.Transform(change, userID != authorID)
}
