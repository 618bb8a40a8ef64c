package delta

import "math"

const infinity = math.MaxInt

// iterator walks a delta in content units, splitting ops on demand.
// Past the end it yields an endless retain.
type iterator struct {
	ops    []Op
	index  int
	offset int

	runesIdx int
	runes    []rune
}

func newIterator(ops []Op) *iterator {
	return &iterator{ops: ops, runesIdx: -1}
}

// zero-length ops cover nothing and are stepped over
func (it *iterator) skipEmpty() {
	for it.index < len(it.ops) && it.ops[it.index].Len() <= 0 {
		it.index++
		it.offset = 0
	}
}

func (it *iterator) hasNext() bool {
	return it.peekLength() < infinity
}

func (it *iterator) peekLength() int {
	it.skipEmpty()
	if it.index >= len(it.ops) {
		return infinity
	}
	return it.ops[it.index].Len() - it.offset
}

func (it *iterator) peekType() Kind {
	it.skipEmpty()
	if it.index >= len(it.ops) {
		return KindRetain
	}
	return it.ops[it.index].Kind
}

func (it *iterator) peek() (Op, bool) {
	it.skipEmpty()
	if it.index >= len(it.ops) {
		return Op{}, false
	}
	return it.ops[it.index], true
}

func (it *iterator) nextAll() Op {
	return it.next(infinity)
}

func (it *iterator) next(length int) Op {
	it.skipEmpty()
	if it.index >= len(it.ops) {
		return Op{Kind: KindRetain, Count: infinity}
	}
	op := it.ops[it.index]
	idx := it.index
	offset := it.offset
	if opLen := op.Len(); length >= opLen-offset {
		length = opLen - offset
		it.index++
		it.offset = 0
	} else {
		it.offset += length
	}

	switch op.Kind {
	case KindDelete:
		return Op{Kind: KindDelete, Count: length}
	case KindRetain:
		return Op{Kind: KindRetain, Count: length, Attrs: op.Attrs}
	}
	if op.Embed != nil {
		return Op{Kind: KindInsert, Embed: op.Embed, Attrs: op.Attrs}
	}
	if offset == 0 && length == op.Len() {
		return Op{Kind: KindInsert, Text: op.Text, Attrs: op.Attrs}
	}
	if it.runesIdx != idx {
		it.runes = []rune(op.Text)
		it.runesIdx = idx
	}
	return Op{Kind: KindInsert, Text: string(it.runes[offset : offset+length]), Attrs: op.Attrs}
}

// rest returns the unconsumed ops without advancing the iterator.
func (it *iterator) rest() []Op {
	if !it.hasNext() {
		return nil
	}
	if it.offset == 0 {
		return append([]Op(nil), it.ops[it.index:]...)
	}
	index, offset := it.index, it.offset
	head := it.nextAll()
	out := append([]Op{head}, it.ops[it.index:]...)
	it.index, it.offset = index, offset
	return out
}
