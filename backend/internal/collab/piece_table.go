package collab

import (
	"fmt"
	"strings"

	"deltaServer/backend/internal/ot/delta"
)

type bufferKind int

const (
	bufOriginal bufferKind = iota
	bufAdd
)

type piece struct {
	// 指针标签，表示从 original 还是 add 切片上偏移
	buf    bufferKind
	offset int
	length int
}

// PieceTable keeps the plain-text projection of a document. Positions count
// runes; an embed is one EmbedPlaceholder rune.
type PieceTable struct {
	original []rune
	add      []rune
	pieces   []piece
}

func NewPieceTable(initial string) *PieceTable {
	r := []rune(initial)
	pt := &PieceTable{original: r}
	if len(r) > 0 {
		pt.pieces = []piece{{buf: bufOriginal, offset: 0, length: len(r)}}
	}
	return pt
}

// NewPieceTableFromDelta projects a document delta.
func NewPieceTableFromDelta(doc delta.Delta) (*PieceTable, error) {
	if !doc.IsDocument() {
		return nil, fmt.Errorf("piece table: not a document: %w", delta.ErrInvalidOperation)
	}
	var sb strings.Builder
	for _, op := range doc {
		if op.Embed != nil {
			sb.WriteRune(EmbedPlaceholder)
			continue
		}
		sb.WriteString(op.Text)
	}
	return NewPieceTable(sb.String()), nil
}

func (pt *PieceTable) Len() int {
	n := 0
	for _, p := range pt.pieces {
		n += p.length
	}
	return n
}

func (pt *PieceTable) String() string {
	var sb strings.Builder
	for _, p := range pt.pieces {
		sb.WriteString(string(pt.runes(p)))
	}
	return sb.String()
}

func (pt *PieceTable) runes(p piece) []rune {
	if p.buf == bufOriginal {
		return pt.original[p.offset : p.offset+p.length]
	}
	return pt.add[p.offset : p.offset+p.length]
}

// Apply runs a change against the table. The change must fit the current
// length; it is checked before anything is touched, so a rejected change
// leaves the table as it was.
func (pt *PieceTable) Apply(d delta.Delta) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if need, have := d.BaseLength(), pt.Len(); need > have {
		return fmt.Errorf("piece table: change spans %d units, document has %d: %w", need, have, delta.ErrInvalidOperation)
	}

	pos := 0
	//retain: 沿 piece 列表向前走，对应“移动 pos”；
	//insert: 在当前 pos 插入；
	//delete: 在当前 pos 删除（通过调整/合并 piece）。
	for _, op := range d {
		switch op.Kind {
		case delta.KindRetain:
			pos += op.Count
		case delta.KindInsert:
			pos += pt.insert(pos, op)
		case delta.KindDelete:
			pt.delete(pos, op.Count)
		}
	}
	return nil
}

func (pt *PieceTable) insert(pos int, op delta.Op) int {
	content := []rune(op.Text)
	if op.Embed != nil {
		content = []rune{EmbedPlaceholder}
	}
	start := len(pt.add)
	pt.add = append(pt.add, content...)
	newPiece := piece{buf: bufAdd, offset: start, length: len(content)}

	idx, offset := pt.locate(pos)
	if idx >= len(pt.pieces) {
		pt.pieces = append(pt.pieces, newPiece)
		return len(content)
	}

	cur := pt.pieces[idx]
	left := piece{buf: cur.buf, offset: cur.offset, length: offset}
	right := piece{buf: cur.buf, offset: cur.offset + offset, length: cur.length - offset}

	newPieces := make([]piece, 0, len(pt.pieces)+2)
	newPieces = append(newPieces, pt.pieces[:idx]...)
	if left.length > 0 {
		newPieces = append(newPieces, left)
	}
	newPieces = append(newPieces, newPiece)
	if right.length > 0 {
		newPieces = append(newPieces, right)
	}
	newPieces = append(newPieces, pt.pieces[idx+1:]...)
	pt.pieces = newPieces
	return len(content)
}

func (pt *PieceTable) delete(pos, count int) {
	// 要删的剩余长度
	remain := count
	idx, offset := pt.locate(pos)

	for remain > 0 && idx < len(pt.pieces) {
		cur := pt.pieces[idx]
		// 这个 piece 里还剩多少可删
		take := min(remain, cur.length-offset)

		leftLen := offset
		rightLen := cur.length - offset - take

		replacement := make([]piece, 0, 2)
		if leftLen > 0 {
			replacement = append(replacement, piece{buf: cur.buf, offset: cur.offset, length: leftLen})
		}
		if rightLen > 0 {
			replacement = append(replacement, piece{buf: cur.buf, offset: cur.offset + offset + take, length: rightLen})
		}

		newPieces := make([]piece, 0, len(pt.pieces)+1)
		newPieces = append(newPieces, pt.pieces[:idx]...)
		newPieces = append(newPieces, replacement...)
		newPieces = append(newPieces, pt.pieces[idx+1:]...)
		pt.pieces = newPieces

		// 左半段留在原处，继续从它后面删
		if leftLen > 0 {
			idx++
		}
		offset = 0
		remain -= take
	}
}

// 根据逻辑位置 pos，找到对应的 piece 下标 idx 和在该 piece 内的偏移 offset
func (pt *PieceTable) locate(pos int) (idx int, offset int) {
	cur := 0
	for i, p := range pt.pieces {
		if pos < cur+p.length {
			return i, pos - cur
		}
		cur += p.length
	}
	return len(pt.pieces), 0
}
