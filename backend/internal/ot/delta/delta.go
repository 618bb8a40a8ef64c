// Package delta implements the rich-text delta: an ordered list of insert,
// delete and retain ops applied left to right from position 0, with compose,
// diff, transform and position mapping.
//
// A Delta is treated as an immutable value. Every method returns a new Delta
// and never writes through the receiver, so one Delta can be handed to many
// readers at once. Lengths count runes; an embed counts as one.
//
// "ops":[{"retain":5},{"insert":"Hello","attributes":{"bold":true}},{"delete":2}]
package delta

import (
	"strings"

	"deltaServer/backend/internal/ot/attr"
)

type Delta []Op

// New builds a delta from ops, merging neighbours the way the builders do.
func New(ops ...Op) Delta {
	b := newBuilder(nil, len(ops))
	for _, op := range ops {
		b.push(op)
	}
	return b.delta()
}

// Insert appends a text insert. Empty text is a no-op.
func (d Delta) Insert(text string, attrs attr.Map) Delta {
	if text == "" {
		return d
	}
	return d.with(Op{Kind: KindInsert, Text: text, Attrs: attrs})
}

// InsertEmbed appends an embed insert.
func (d Delta) InsertEmbed(e *Embed, attrs attr.Map) Delta {
	if e == nil {
		return d
	}
	return d.with(Op{Kind: KindInsert, Embed: e, Attrs: attrs})
}

// Delete appends a delete. Zero is a no-op; a negative length is recorded
// as-is and reported by Validate and by every algorithm.
func (d Delta) Delete(n int) Delta {
	if n == 0 {
		return d
	}
	return d.with(Op{Kind: KindDelete, Count: n})
}

// Retain appends a retain, optionally reformatting the retained span.
func (d Delta) Retain(n int, attrs attr.Map) Delta {
	if n == 0 {
		return d
	}
	return d.with(Op{Kind: KindRetain, Count: n, Attrs: attrs})
}

func (d Delta) with(op Op) Delta {
	b := newBuilder(d, 1)
	b.push(op)
	return b.delta()
}

// Concat appends other, merging the two ops that meet at the boundary.
func (d Delta) Concat(other Delta) Delta {
	if len(other) == 0 {
		return d
	}
	b := newBuilder(d, len(other))
	b.push(other[0])
	for _, op := range other[1:] {
		b.appendRaw(op)
	}
	return b.delta()
}

// Chop drops a trailing retain without attributes, which changes nothing.
func (d Delta) Chop() Delta {
	if n := len(d); n > 0 {
		last := d[n-1]
		if last.Kind == KindRetain && len(last.Attrs) == 0 && last.Count >= 0 {
			return d[:n-1:n-1]
		}
	}
	return d
}

// Validate checks every op and reports the first malformed one as an
// *OpError.
func (d Delta) Validate() error {
	for i, op := range d {
		if err := op.validate(i); err != nil {
			return err
		}
	}
	return nil
}

// Length is the total number of content units the ops cover.
func (d Delta) Length() int {
	n := 0
	for _, op := range d {
		n += op.Len()
	}
	return n
}

// ChangeLength is how much the delta grows (or shrinks) a document.
func (d Delta) ChangeLength() int {
	n := 0
	for _, op := range d {
		switch op.Kind {
		case KindInsert:
			n += op.Len()
		case KindDelete:
			n -= op.Count
		}
	}
	return n
}

// BaseLength is the shortest document the delta can apply to: the units it
// retains or deletes.
func (d Delta) BaseLength() int {
	n := 0
	for _, op := range d {
		if op.Kind != KindInsert {
			n += op.Count
		}
	}
	return n
}

// IsDocument reports whether the delta is made of inserts only.
func (d Delta) IsDocument() bool {
	for _, op := range d {
		if op.Kind != KindInsert {
			return false
		}
	}
	return true
}

// PlainText concatenates the text inserts; embeds are left out.
func (d Delta) PlainText() string {
	var sb strings.Builder
	for _, op := range d {
		if op.Kind == KindInsert && op.Embed == nil {
			sb.WriteString(op.Text)
		}
	}
	return sb.String()
}

// Slice returns the ops covering [start, end). Bounds past the content are
// cut to it.
func (d Delta) Slice(start, end int) Delta {
	if start < 0 {
		start = 0
	}
	b := newBuilder(nil, 0)
	it := newIterator(d)
	index := 0
	for index < end && it.hasNext() {
		var op Op
		if index < start {
			op = it.next(start - index)
		} else {
			op = it.next(end - index)
			b.push(op)
		}
		index += op.Len()
	}
	return b.delta()
}

// Canonical merges neighbouring ops, drops zero-length ops and chops a
// trailing plain retain.
func (d Delta) Canonical() Delta {
	return New(d...).Chop()
}

// Equal compares two deltas after canonicalization.
func (d Delta) Equal(other Delta) bool {
	a, b := d.Canonical(), other.Canonical()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !opEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

// builder owns its slice, so merging into the last op never writes through
// a Delta someone else holds.
type builder struct {
	ops []Op
}

func newBuilder(base Delta, extra int) *builder {
	ops := make([]Op, len(base), len(base)+extra)
	copy(ops, base)
	return &builder{ops: ops}
}

func (b *builder) delta() Delta {
	return Delta(b.ops)
}

func (b *builder) last() (Op, bool) {
	if len(b.ops) == 0 {
		return Op{}, false
	}
	return b.ops[len(b.ops)-1], true
}

func (b *builder) appendRaw(op Op) {
	op.Attrs = op.Attrs.Clone()
	b.ops = append(b.ops, op)
}

func (b *builder) insertAt(i int, op Op) {
	b.ops = append(b.ops, Op{})
	copy(b.ops[i+1:], b.ops[i:])
	b.ops[i] = op
}

// push appends op, merging it into the previous op where possible. An insert
// that follows a delete is placed before it: the order of the two at one
// position does not matter and this keeps the form canonical. Malformed ops
// are appended untouched so that validation can report them.
func (b *builder) push(op Op) {
	if op.validate(-1) != nil {
		b.appendRaw(op)
		return
	}
	if op.Len() == 0 {
		return
	}
	op.Attrs = op.Attrs.Clone()

	idx := len(b.ops)
	if idx == 0 {
		b.ops = append(b.ops, op)
		return
	}
	last := &b.ops[idx-1]
	if last.validate(-1) != nil {
		b.ops = append(b.ops, op)
		return
	}
	if op.Kind == KindDelete && last.Kind == KindDelete {
		last.Count += op.Count
		return
	}
	if last.Kind == KindDelete && op.Kind == KindInsert {
		idx--
		if idx == 0 {
			b.insertAt(0, op)
			return
		}
		last = &b.ops[idx-1]
		if last.validate(-1) != nil {
			b.insertAt(idx, op)
			return
		}
	}
	if attr.Equal(op.Attrs, last.Attrs) {
		switch {
		case op.Kind == KindInsert && last.Kind == KindInsert && op.Embed == nil && last.Embed == nil:
			last.Text += op.Text
			return
		case op.Kind == KindRetain && last.Kind == KindRetain:
			last.Count += op.Count
			return
		}
	}
	if idx == len(b.ops) {
		b.ops = append(b.ops, op)
		return
	}
	b.insertAt(idx, op)
}
