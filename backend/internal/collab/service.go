package collab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"deltaServer/backend/internal/events"
	"deltaServer/backend/internal/ot/delta"
)

// 协作引擎接口
type Service interface {
	// Submit applies change, built against baseRevision, to the document.
	// A stale change is transformed over everything applied since.
	Submit(ctx context.Context, docID string, authorID uint64,
		baseRevision uint64, clientID string, clientSeq uint64,
		change delta.Delta) (AppliedOp, error)

	CurrentRevision(ctx context.Context, docID string) (uint64, error)

	LoadDocument(ctx context.Context, docID string) (Document, error)

	// 用于握手/追平
	OpsSince(ctx context.Context, docID string, fromRevision uint64, limit int) ([]AppliedOp, error)

	SaveSnapshot(ctx context.Context, docID string) error

	// Events returns the document's callback registry, loading the document
	// first if needed.
	Events(ctx context.Context, docID string) (*events.Registry, error)

	// UpdateSelection stores the user's selection (nil clears it) and emits
	// selection-change on the document's registry.
	UpdateSelection(ctx context.Context, docID string, userID uint64, rng *events.Range) error

	Cursors(ctx context.Context, docID string) (map[uint64]events.Range, error)
}

// 快照存储接口，实现在 store 中
type SnapshotStore interface {
	SaveDocumentSnapshot(ctx context.Context, docID string, rev uint64, content string) error
	// LatestSnapshot returns ErrDocumentNotFound when the document has none.
	LatestSnapshot(ctx context.Context, docID string) (rev uint64, content string, err error)
}

type AppliedOp struct {
	OperationId string      `json:"operationId"` // 本次操作的唯一ID（用于幂等/追踪）
	Revision    uint64      `json:"revision"`    // 全局版本号
	AuthorId    uint64      `json:"authorId"`
	ClientId    string      `json:"clientId,omitempty"`
	ClientSeq   uint64      `json:"clientSeq,omitempty"`
	Ops         delta.Delta `json:"ops"` // 变换后真正作用到文档上的 delta
	AppliedAt   time.Time   `json:"appliedAt"`
}

type Document struct {
	DocID    string      `json:"docId"`
	Contents delta.Delta `json:"contents"`
	// 纯文本投影，embed 显示为 U+FFFC
	Text     string `json:"text"`
	Revision uint64 `json:"revision"`
}

type docState struct {
	mu       sync.RWMutex
	revision uint64
	contents delta.Delta
	opsRing  []AppliedOp
	// 去重窗口：记录某 clientId 最近的最大 clientSeq
	lastSeqByClient map[string]uint64
	// 文档纯文本缓冲区
	buf Buffer

	registry *events.Registry
	// 保证 text-change / kafka 事件按版本顺序发出
	emitMu sync.Mutex
}

func newDocState(capacity int, revision uint64, contents delta.Delta) (*docState, error) {
	buf, err := NewPieceTableFromDelta(contents)
	if err != nil {
		return nil, err
	}
	return &docState{
		revision:        revision,
		contents:        contents,
		opsRing:         make([]AppliedOp, 0, capacity),
		lastSeqByClient: make(map[string]uint64),
		buf:             buf,
		registry:        events.NewRegistry(),
	}, nil
}

type Options struct {
	// 近期操作环形缓冲容量
	RingCapacity   int
	PublishTimeout time.Duration
	Logger         *slog.Logger
}

var _ Service = (*InMemoryService)(nil)

// 内存实现：持有所有文档的状态
type InMemoryService struct {
	mu      sync.RWMutex
	docs    map[string]*docState
	ringCap int

	// 依赖注入，都允许为 nil
	store     SnapshotStore
	publisher EventPublisher
	cursors   CursorStore

	loads          singleflight.Group
	publishTimeout time.Duration
	log            *slog.Logger
}

// NewInMemoryService 返回一个满足 Service 接口的实例
func NewInMemoryService(store SnapshotStore, publisher EventPublisher, cursors CursorStore, opt Options) *InMemoryService {
	if opt.RingCapacity <= 0 {
		opt.RingCapacity = 1024
	}
	if opt.PublishTimeout <= 0 {
		opt.PublishTimeout = 50 * time.Millisecond
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if cursors == nil {
		cursors = NewMemoryCursors()
	}
	return &InMemoryService{
		docs:           make(map[string]*docState),
		ringCap:        opt.RingCapacity,
		store:          store,
		publisher:      publisher,
		cursors:        cursors,
		publishTimeout: opt.PublishTimeout,
		log:            opt.Logger.With("component", "collab"),
	}
}

func (s *InMemoryService) lookup(docID string) *docState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs[docID]
}

// 获取文档状态：内存 -> 最新快照 -> (create 时) 新建空文档
func (s *InMemoryService) getOrLoadDoc(ctx context.Context, docID string, create bool) (*docState, error) {
	if ds := s.lookup(docID); ds != nil {
		return ds, nil
	}

	// 同一文档并发加载只查一次库
	v, err, _ := s.loads.Do(docID, func() (any, error) {
		if ds := s.lookup(docID); ds != nil {
			return ds, nil
		}
		ds, err := s.loadSnapshot(ctx, docID)
		if err != nil {
			return nil, err
		}
		return s.install(docID, ds), nil
	})
	if err != nil && !errors.Is(err, ErrDocumentNotFound) {
		return nil, err
	}
	loaded, _ := v.(*docState)
	if loaded == nil && !create {
		return nil, ErrDocumentNotFound
	}

	if loaded != nil {
		return loaded, nil
	}
	empty, err := newDocState(s.ringCap, 0, delta.Delta{})
	if err != nil {
		return nil, err
	}
	return s.install(docID, empty), nil
}

// install 只在文档尚未存在时写入，返回最终生效的那一份
func (s *InMemoryService) install(docID string, ds *docState) *docState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur := s.docs[docID]; cur != nil {
		return cur
	}
	s.docs[docID] = ds
	return ds
}

func (s *InMemoryService) loadSnapshot(ctx context.Context, docID string) (*docState, error) {
	if s.store == nil {
		return nil, ErrDocumentNotFound
	}
	rev, content, err := s.store.LatestSnapshot(ctx, docID)
	if err != nil {
		return nil, err
	}
	contents, err := delta.Parse([]byte(content))
	if err != nil {
		return nil, fmt.Errorf("snapshot of %s at rev %d: %w", docID, rev, err)
	}
	ds, err := newDocState(s.ringCap, rev, contents)
	if err != nil {
		return nil, fmt.Errorf("snapshot of %s at rev %d: %w", docID, rev, err)
	}
	s.log.Info("document loaded from snapshot", "doc", docID, "rev", rev)
	return ds, nil
}

// 提交操作（InMemoryService 实现）
func (s *InMemoryService) Submit(ctx context.Context, docID string, authorID uint64, baseRevision uint64, clientID string, clientSeq uint64, change delta.Delta) (AppliedOp, error) {
	if err := change.Validate(); err != nil {
		return AppliedOp{}, err
	}
	// 空操作不占版本号
	if len(change.Canonical()) == 0 {
		return AppliedOp{}, fmt.Errorf("submit to %s: empty change: %w", docID, delta.ErrInvalidOperation)
	}
	ds, err := s.getOrLoadDoc(ctx, docID, true)
	if err != nil {
		return AppliedOp{}, err
	}

	ds.mu.Lock()
	// 幂等/去重：同一 clientId 只允许递增；clientId 为空时不做去重
	if clientID != "" {
		if last, ok := ds.lastSeqByClient[clientID]; ok && clientSeq <= last {
			ds.mu.Unlock()
			return AppliedOp{}, ErrDuplicateOrOutOfOrder
		}
	}
	concurrent, err := ds.opsAfter(baseRevision)
	if err != nil {
		ds.mu.Unlock()
		return AppliedOp{}, err
	}
	// 服务端已应用的操作优先
	for _, applied := range concurrent {
		if change, err = applied.Ops.Transform(change, true); err != nil {
			ds.mu.Unlock()
			return AppliedOp{}, err
		}
	}
	if need, have := change.BaseLength(), ds.contents.Length(); need > have {
		ds.mu.Unlock()
		return AppliedOp{}, fmt.Errorf("change spans %d units, document %s has %d: %w", need, docID, have, delta.ErrInvalidOperation)
	}
	next, err := ds.contents.Compose(change)
	if err != nil {
		ds.mu.Unlock()
		return AppliedOp{}, err
	}
	if err := ds.buf.Apply(change); err != nil {
		ds.mu.Unlock()
		return AppliedOp{}, err
	}

	old := ds.contents
	ds.contents = next
	// 推进版本
	ds.revision++
	appliedOp := AppliedOp{
		OperationId: uuid.NewString(),
		Revision:    ds.revision,
		AuthorId:    authorID,
		ClientId:    clientID,
		ClientSeq:   clientSeq,
		Ops:         change,
		AppliedAt:   time.Now(),
	}
	ds.pushRing(appliedOp)
	if clientID != "" {
		ds.lastSeqByClient[clientID] = clientSeq
	}

	// 先拿 emitMu 再放文档锁，事件顺序与版本顺序一致
	ds.emitMu.Lock()
	ds.mu.Unlock()
	defer ds.emitMu.Unlock()

	ds.registry.EmitTextChange(change, old, events.SourceUser, appliedOp)
	if err := s.cursors.TransformCursors(ctx, docID, change, authorID); err != nil {
		s.log.Warn("transform cursors failed", "doc", docID, "rev", appliedOp.Revision, "err", err)
	}
	s.publish(ctx, newDocOpEvent(docID, appliedOp, baseRevision))

	return appliedOp, nil
}

// 异步发 Kafka（入队失败只记日志，不影响提交结果）
func (s *InMemoryService) publish(ctx context.Context, evt DocOpEvent) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()
	if err := s.publisher.Enqueue(ctx, evt); err != nil {
		s.log.Warn("enqueue op event failed", "doc", evt.DocID, "rev", evt.Revision, "err", err)
	}
}

// opsAfter 返回 base 之后已应用的操作；base 太旧（已滚出环形缓冲）或超前都算冲突
func (ds *docState) opsAfter(base uint64) ([]AppliedOp, error) {
	if base > ds.revision {
		return nil, fmt.Errorf("base revision %d ahead of %d: %w", base, ds.revision, ErrRevisionConflict)
	}
	missing := ds.revision - base
	if missing > uint64(len(ds.opsRing)) {
		return nil, fmt.Errorf("base revision %d no longer in history: %w", base, ErrRevisionConflict)
	}
	return ds.opsRing[len(ds.opsRing)-int(missing):], nil
}

// 保存到环形缓冲（如果达到容量则丢弃最老的一条）
func (ds *docState) pushRing(op AppliedOp) {
	if cap(ds.opsRing) > 0 && len(ds.opsRing) == cap(ds.opsRing) {
		copy(ds.opsRing[0:], ds.opsRing[1:])
		ds.opsRing = ds.opsRing[:len(ds.opsRing)-1]
	}
	ds.opsRing = append(ds.opsRing, op)
}

// 返回当前文档版本；从未出现过的文档为 0
func (s *InMemoryService) CurrentRevision(ctx context.Context, docID string) (uint64, error) {
	ds, err := s.getOrLoadDoc(ctx, docID, false)
	if errors.Is(err, ErrDocumentNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.revision, nil
}

func (s *InMemoryService) LoadDocument(ctx context.Context, docID string) (Document, error) {
	ds, err := s.getOrLoadDoc(ctx, docID, false)
	if err != nil {
		return Document{}, err
	}
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return Document{
		DocID:    docID,
		Contents: ds.contents,
		Text:     ds.buf.String(),
		Revision: ds.revision,
	}, nil
}

// 返回 fromRevision 之后的已应用操作（InMemoryService 实现）
func (s *InMemoryService) OpsSince(ctx context.Context, docID string, fromRevision uint64, limit int) ([]AppliedOp, error) {
	ds, err := s.getOrLoadDoc(ctx, docID, false)
	if errors.Is(err, ErrDocumentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	var out []AppliedOp
	for _, op := range ds.opsRing {
		if op.Revision > fromRevision {
			out = append(out, op)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *InMemoryService) SaveSnapshot(ctx context.Context, docID string) error {
	if s.store == nil {
		return ErrNoSnapshotStore
	}
	ds := s.lookup(docID)
	if ds == nil {
		return ErrDocumentNotFound
	}
	ds.mu.RLock()
	contents, rev := ds.contents, ds.revision
	ds.mu.RUnlock()

	b, err := contents.MarshalJSON()
	if err != nil {
		return err
	}
	return s.store.SaveDocumentSnapshot(ctx, docID, rev, string(b))
}

func (s *InMemoryService) Events(ctx context.Context, docID string) (*events.Registry, error) {
	ds, err := s.getOrLoadDoc(ctx, docID, true)
	if err != nil {
		return nil, err
	}
	return ds.registry, nil
}

func (s *InMemoryService) UpdateSelection(ctx context.Context, docID string, userID uint64, rng *events.Range) error {
	if rng != nil && (rng.Index < 0 || rng.Length < 0) {
		return fmt.Errorf("selection %+v: %w", *rng, delta.ErrInvalidOperation)
	}
	ds, err := s.getOrLoadDoc(ctx, docID, true)
	if err != nil {
		return err
	}
	old, err := s.cursors.SetCursor(ctx, docID, userID, rng)
	if err != nil {
		return err
	}
	ds.registry.EmitSelectionChange(old, rng, events.SourceUser)
	return nil
}

func (s *InMemoryService) Cursors(ctx context.Context, docID string) (map[uint64]events.Range, error) {
	return s.cursors.Cursors(ctx, docID)
}
