package ws

import (
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deltaServer/backend/internal/collab"
	"deltaServer/backend/internal/events"
	"deltaServer/backend/internal/logs"
	"deltaServer/backend/internal/ot/delta"
)

// frame 覆盖测试关心的所有出站字段
type frame struct {
	Type     string        `json:"type"`
	DocID    string        `json:"docId"`
	Revision uint64        `json:"revision"`
	UserID   uint64        `json:"userId"`
	AuthorID uint64        `json:"authorId"`
	ClientId string        `json:"clientId"`
	Content  string        `json:"content"`
	Ops      delta.Delta   `json:"ops"`
	Range    *events.Range `json:"range"`
}

func newTestServer(t *testing.T) (*httptest.Server, *collab.InMemoryService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := collab.NewInMemoryService(nil, nil, nil, collab.Options{Logger: logs.Discard()})
	opts := ConnOptions{SubmitTimeout: time.Second, Logger: logs.Discard()}
	m := NewManager(NewHub(nil), svc, collab.NewSemaphoreControl(4), opts)

	r := gin.New()
	// 测试里用 query 参数代替鉴权中间件
	r.GET("/ws", func(c *gin.Context) {
		uid, _ := strconv.ParseUint(c.Query("uid"), 10, 64)
		c.Set("userId", uid)
		c.Set("username", "user"+c.Query("uid"))
		c.Next()
	}, m.WebSocketConnect)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, svc
}

func dial(t *testing.T, srv *httptest.Server, uid int) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?uid=" + strconv.Itoa(uid)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	readUntil(t, conn, TypeWelcome)
	return conn
}

// readUntil 跳过其他类型的消息（presence 等广播顺序不固定）
func readUntil(t *testing.T, conn *websocket.Conn, typ string) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f), "waiting for %s", typ)
		if f.Type == typ {
			return f
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func TestConn_CollaborativeEditing(t *testing.T) {
	srv, svc := newTestServer(t)
	alice := dial(t, srv, 1)
	bob := dial(t, srv, 2)

	send(t, alice, ClientMessage{Type: TypeJoinDocument, DocID: "doc"})
	joined := readUntil(t, alice, TypeJoinDocument)
	assert.Equal(t, "doc", joined.DocID)
	assert.Zero(t, joined.Revision)
	send(t, bob, ClientMessage{Type: TypeJoinDocument, DocID: "doc"})
	readUntil(t, bob, TypeJoinDocument)

	send(t, alice, ClientMessage{Type: TypeOpSubmit, DocID: "doc", ClientId: "a", ClientSeq: 1, Ops: delta.New().Insert("hi", nil)})
	ack := readUntil(t, alice, TypeOpApplied)
	assert.Equal(t, uint64(1), ack.Revision)
	bc := readUntil(t, bob, TypeOpBroadcast)
	assert.Equal(t, uint64(1), bc.Revision)
	assert.Equal(t, uint64(1), bc.AuthorID)
	assert.True(t, bc.Ops.Equal(delta.New().Insert("hi", nil)))

	// bob 基于旧版本提交，服务端变换后落在 alice 的文本之后
	send(t, bob, ClientMessage{Type: TypeOpSubmit, ClientId: "b", ClientSeq: 1, Ops: delta.New().Insert("X", nil)})
	ack = readUntil(t, bob, TypeOpApplied)
	assert.Equal(t, uint64(2), ack.Revision)
	assert.True(t, ack.Ops.Equal(delta.New().Retain(2, nil).Insert("X", nil)), "got %+v", ack.Ops)
	bc = readUntil(t, alice, TypeOpBroadcast)
	assert.Equal(t, uint64(2), bc.Revision)
	assert.Equal(t, "b", bc.ClientId)

	send(t, bob, ClientMessage{Type: TypeLoadDocument})
	loaded := readUntil(t, bob, TypeLoadDocument)
	assert.Equal(t, "hiX", loaded.Content)
	assert.Equal(t, uint64(2), loaded.Revision)

	send(t, alice, ClientMessage{Type: TypeOpSubmit, ClientId: "a", ClientSeq: 1, BaseRevision: 2, Ops: delta.New().Insert("dup", nil)})
	errMsg := readUntil(t, alice, TypeError)
	assert.Equal(t, "DUPLICATE_OR_OUT_OF_ORDER", errMsg.Content)

	send(t, alice, ClientMessage{Type: TypeOpSubmit, ClientId: "a", ClientSeq: 2, BaseRevision: 2, Ops: delta.New().Retain(9, nil).Delete(1)})
	errMsg = readUntil(t, alice, TypeError)
	assert.Equal(t, "INVALID_OPERATION", errMsg.Content)

	rev, err := svc.CurrentRevision(t.Context(), "doc")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), rev)
}

func TestConn_SelectionAndLeave(t *testing.T) {
	srv, svc := newTestServer(t)
	alice := dial(t, srv, 1)
	bob := dial(t, srv, 2)

	send(t, bob, ClientMessage{Type: TypeSelection, Range: &events.Range{Index: 0}})
	assert.Equal(t, "NOT_IN_DOCUMENT", readUntil(t, bob, TypeError).Content)

	for _, c := range []*websocket.Conn{alice, bob} {
		send(t, c, ClientMessage{Type: TypeJoinDocument, DocID: "doc"})
		readUntil(t, c, TypeJoinDocument)
	}

	send(t, bob, ClientMessage{Type: TypeSelection, Range: &events.Range{Index: 0, Length: 0}})
	cur := readUntil(t, alice, TypeCursor)
	assert.Equal(t, uint64(2), cur.UserID)
	require.NotNil(t, cur.Range)

	cursors, err := svc.Cursors(t.Context(), "doc")
	require.NoError(t, err)
	assert.Contains(t, cursors, uint64(2))

	send(t, bob, ClientMessage{Type: TypeLeaveDocument})
	readUntil(t, bob, TypeLeaveDocument)
	gone := readUntil(t, alice, TypeCursor)
	assert.Equal(t, uint64(2), gone.UserID)
	assert.Nil(t, gone.Range)

	// 离开后不再收到该文档的广播
	send(t, alice, ClientMessage{Type: TypeOpSubmit, ClientId: "a", ClientSeq: 1, Ops: delta.New().Insert("x", nil)})
	readUntil(t, alice, TypeOpApplied)
	send(t, bob, ClientMessage{Type: TypeHeartbeat})
	// heartbeat 的回复之前不应出现 op_broadcast
	require.NoError(t, bob.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f frame
		require.NoError(t, bob.ReadJSON(&f))
		require.NotEqual(t, TypeOpBroadcast, f.Type)
		if f.Type == TypeFeedback {
			break
		}
	}

	send(t, bob, ClientMessage{Type: "bogus"})
	readUntil(t, bob, TypeIgnored)
}

func TestConn_MalformedOpsKeepConnection(t *testing.T) {
	srv, svc := newTestServer(t)
	alice := dial(t, srv, 1)
	send(t, alice, ClientMessage{Type: TypeJoinDocument, DocID: "doc"})
	readUntil(t, alice, TypeJoinDocument)
	send(t, alice, ClientMessage{Type: TypeOpSubmit, ClientId: "a", ClientSeq: 1, Ops: delta.New().Insert("hi", nil)})
	readUntil(t, alice, TypeOpApplied)

	// ops 写成了没有 "ops" 字段的对象
	require.NoError(t, alice.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"op_submit","clientId":"a","clientSeq":2,"baseRevision":1,"ops":{"opz":[{"insert":"zzz"}]}}`)))
	assert.Equal(t, "INVALID_OPERATION", readUntil(t, alice, TypeError).Content)

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(`{"type":`)))
	assert.Equal(t, "BAD_REQUEST", readUntil(t, alice, TypeError).Content)

	send(t, alice, ClientMessage{Type: TypeOpSubmit, ClientId: "a", ClientSeq: 2, BaseRevision: 1})
	assert.Equal(t, "INVALID_OPERATION", readUntil(t, alice, TypeError).Content)

	send(t, alice, ClientMessage{Type: TypeHeartbeat})
	readUntil(t, alice, TypeFeedback)

	rev, err := svc.CurrentRevision(t.Context(), "doc")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rev)
}
