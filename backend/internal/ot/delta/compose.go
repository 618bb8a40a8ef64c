package delta

import (
	"fmt"

	"deltaServer/backend/internal/ot/attr"
)

func validatePair(op string, a, b Delta) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("%s: receiver: %w", op, err)
	}
	if err := b.Validate(); err != nil {
		return fmt.Errorf("%s: argument: %w", op, err)
	}
	return nil
}

// Compose returns the single delta equivalent to applying d and then other.
func (d Delta) Compose(other Delta) (Delta, error) {
	if err := validatePair("compose", d, other); err != nil {
		return nil, err
	}
	return compose(d, other), nil
}

func compose(a, b Delta) Delta {
	thisIter := newIterator(a)
	otherIter := newIterator(b)
	out := newBuilder(nil, len(a)+len(b))

	// A leading plain retain in b passes a's leading inserts through unchanged.
	if first, ok := otherIter.peek(); ok && first.Kind == KindRetain && len(first.Attrs) == 0 {
		firstLeft := otherIter.peekLength()
		for thisIter.peekType() == KindInsert && thisIter.peekLength() <= firstLeft {
			firstLeft -= thisIter.peekLength()
			out.push(thisIter.nextAll())
		}
		if consumed := otherIter.peekLength() - firstLeft; consumed > 0 {
			otherIter.next(consumed)
		}
	}

	for thisIter.hasNext() || otherIter.hasNext() {
		switch {
		case otherIter.peekType() == KindInsert:
			out.push(otherIter.nextAll())
		case thisIter.peekType() == KindDelete:
			out.push(thisIter.nextAll())
		default:
			length := min(thisIter.peekLength(), otherIter.peekLength())
			thisOp := thisIter.next(length)
			otherOp := otherIter.next(length)
			switch otherOp.Kind {
			case KindRetain:
				var newOp Op
				if thisOp.Kind == KindRetain {
					newOp = Op{Kind: KindRetain, Count: length}
				} else {
					newOp = Op{Kind: KindInsert, Text: thisOp.Text, Embed: thisOp.Embed}
				}
				newOp.Attrs = attr.Compose(thisOp.Attrs, otherOp.Attrs, thisOp.Kind == KindRetain)
				out.push(newOp)

				// the rest of b is a plain retain: copy the rest of a
				if last, _ := out.last(); !otherIter.hasNext() && opEqual(last, newOp) {
					return out.delta().Concat(thisIter.rest()).Chop()
				}
			case KindDelete:
				// deleting a's insert cancels both
				if thisOp.Kind == KindRetain {
					out.push(otherOp)
				}
			}
		}
	}
	return out.delta().Chop()
}

// Transform rewrites other, made concurrently with d against the same base,
// so that it applies after d. With priority, d is taken to have happened
// first: where both insert at one position, d's insert stays in front.
func (d Delta) Transform(other Delta, priority bool) (Delta, error) {
	if err := validatePair("transform", d, other); err != nil {
		return nil, err
	}
	return transform(d, other, priority), nil
}

func transform(a, b Delta, priority bool) Delta {
	thisIter := newIterator(a)
	otherIter := newIterator(b)
	out := newBuilder(nil, len(b))

	for thisIter.hasNext() || otherIter.hasNext() {
		switch {
		case thisIter.peekType() == KindInsert && (priority || otherIter.peekType() != KindInsert):
			out.push(Op{Kind: KindRetain, Count: thisIter.nextAll().Len()})
		case otherIter.peekType() == KindInsert:
			out.push(otherIter.nextAll())
		default:
			length := min(thisIter.peekLength(), otherIter.peekLength())
			thisOp := thisIter.next(length)
			otherOp := otherIter.next(length)
			switch {
			case thisOp.Kind == KindDelete:
				// already gone: other's delete is redundant, its retain has nothing left
			case otherOp.Kind == KindDelete:
				out.push(otherOp)
			default:
				out.push(Op{Kind: KindRetain, Count: length, Attrs: attr.Transform(thisOp.Attrs, otherOp.Attrs, priority)})
			}
		}
	}
	return out.delta().Chop()
}

// TransformPosition maps a document offset through d. Deletes before the
// offset pull it left, never past the start of the deletion; inserts before
// it push it right. An insert exactly at the offset pushes it right unless
// priority is set.
func (d Delta) TransformPosition(index int, priority bool) (int, error) {
	if err := d.Validate(); err != nil {
		return 0, fmt.Errorf("transform position: %w", err)
	}
	if index < 0 {
		return 0, fmt.Errorf("transform position: negative index %d: %w", index, ErrInvalidOperation)
	}
	it := newIterator(d)
	offset := 0
	for it.hasNext() && offset <= index {
		length := it.peekLength()
		kind := it.peekType()
		it.nextAll()
		if kind == KindDelete {
			index -= min(length, index-offset)
			continue
		}
		if kind == KindInsert && (offset < index || !priority) {
			index += length
		}
		offset += length
	}
	return index, nil
}

// Invert returns the delta that undoes d when applied to the document
// produced by applying d to base.
func (d Delta) Invert(base Delta) (Delta, error) {
	if err := validatePair("invert", d, base); err != nil {
		return nil, err
	}
	out := newBuilder(nil, len(d))
	baseIndex := 0
	for _, op := range d {
		switch {
		case op.Kind == KindInsert:
			out.push(Op{Kind: KindDelete, Count: op.Len()})
		case op.Kind == KindRetain && len(op.Attrs) == 0:
			out.push(Op{Kind: KindRetain, Count: op.Count})
			baseIndex += op.Count
		default:
			for _, baseOp := range base.Slice(baseIndex, baseIndex+op.Count) {
				if op.Kind == KindDelete {
					out.push(baseOp)
					continue
				}
				out.push(Op{Kind: KindRetain, Count: baseOp.Len(), Attrs: attr.Invert(op.Attrs, baseOp.Attrs)})
			}
			baseIndex += op.Count
		}
	}
	return out.delta().Chop(), nil
}
