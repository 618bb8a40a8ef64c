package delta

import (
	"fmt"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"

	"deltaServer/backend/internal/ot/attr"
)

// embeds take part in the sequence diff as one opaque rune each
const embedRune = '\x00'

func documentRunes(d Delta) ([]rune, error) {
	runes := make([]rune, 0, d.Length())
	for i, op := range d {
		if op.Kind != KindInsert {
			return nil, &OpError{Index: i, Kind: op.Kind, Reason: "diff needs a document (inserts only)"}
		}
		if op.Embed != nil {
			runes = append(runes, embedRune)
			continue
		}
		runes = append(runes, []rune(op.Text)...)
	}
	return runes, nil
}

// Diff returns the change that turns document d into document other. Equal
// content with different attributes becomes an attribute-only retain. Both
// sides must be documents.
func (d Delta) Diff(other Delta) (Delta, error) {
	if err := validatePair("diff", d, other); err != nil {
		return nil, err
	}
	a, err := documentRunes(d)
	if err != nil {
		return nil, fmt.Errorf("diff: receiver: %w", err)
	}
	b, err := documentRunes(other)
	if err != nil {
		return nil, fmt.Errorf("diff: argument: %w", err)
	}

	dmp := diffmatchpatch.New()
	// no deadline, so the same pair always yields the same alignment
	dmp.DiffTimeout = 0
	diffs := dmp.DiffMainRunes(a, b, false)

	thisIter := newIterator(d)
	otherIter := newIterator(other)
	out := newBuilder(nil, len(diffs))
	for _, c := range diffs {
		length := utf8.RuneCountInString(c.Text)
		for length > 0 {
			var opLength int
			switch c.Type {
			case diffmatchpatch.DiffInsert:
				opLength = min(otherIter.peekLength(), length)
				out.push(otherIter.next(opLength))
			case diffmatchpatch.DiffDelete:
				opLength = min(length, thisIter.peekLength())
				thisIter.next(opLength)
				out.push(Op{Kind: KindDelete, Count: opLength})
			case diffmatchpatch.DiffEqual:
				opLength = min(thisIter.peekLength(), otherIter.peekLength(), length)
				thisOp := thisIter.next(opLength)
				otherOp := otherIter.next(opLength)
				if sameContent(thisOp, otherOp) {
					out.push(Op{Kind: KindRetain, Count: opLength, Attrs: attr.Diff(thisOp.Attrs, otherOp.Attrs)})
				} else {
					// two different embeds line up on the placeholder rune
					out.push(otherOp)
					out.push(Op{Kind: KindDelete, Count: opLength})
				}
			}
			if opLength <= 0 {
				break
			}
			length -= opLength
		}
	}
	return out.delta().Chop(), nil
}
