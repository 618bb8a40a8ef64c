package cache

import (
	"fmt"
	"strings"
)

// 键语义：
// - roomKey(docID):           房间在线成员（ZSet<userId, expireAtUnix>，score=expireAt）
// - namesKey(docID):          房间内 userId→username 映射（Hash）
// - docsKey():                有人在线过的文档索引集合（Set<docID>）
// - cursorKey(docID):         文档内各用户的选区（Hash<userId -> Range JSON>）

// {docID:...} 作为 hash tag，同一文档的键落在同一个 cluster slot，lua/事务可以跨键

const (
	keyRoomFmt   = "presence:room:{docID:%s}"       // ZSet<userId, expireAtUnix>
	keyNamesFmt  = "presence:room:names:{docID:%s}" // Hash<userId -> username>
	keyDocsSet   = "presence:docs"                  // Set<docID>
	keyCursorFmt = "cursor:{docID:%s}"              // Hash<userId -> Range JSON>
)

func roomKey(docID string) string   { return fmt.Sprintf(keyRoomFmt, docID) }
func namesKey(docID string) string  { return fmt.Sprintf(keyNamesFmt, docID) }
func docsKey() string               { return keyDocsSet }
func cursorKey(docID string) string { return fmt.Sprintf(keyCursorFmt, docID) }

// docIDFromRoomKey 是 roomKey 的逆运算，names 键或格式不符时返回 false
func docIDFromRoomKey(key string) (string, bool) {
	const prefix, suffix = "presence:room:{docID:", "}"
	if !strings.HasPrefix(key, prefix) || !strings.HasSuffix(key, suffix) {
		return "", false
	}
	docID := key[len(prefix) : len(key)-len(suffix)]
	return docID, docID != ""
}
