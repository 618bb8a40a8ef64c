// Package editor is a small stateful wrapper around one delta. Every mutation
// builds a change at the cursor, composes it onto the owned delta and returns
// the change, so callers can keep both the running state and an edit log.
//
// An Editor is single-writer: callers that share one must serialize access.
package editor

import (
	"encoding/json"
	"fmt"

	"deltaServer/backend/internal/ot/attr"
	"deltaServer/backend/internal/ot/delta"
)

type Editor struct {
	contents delta.Delta
	// 游标：下一次修改落在 contents 结果中的位置
	cursor int
	// 游标到过的最远位置；retain 越过内容末尾后，这些位置仍可 Seek
	reach int
}

func New() *Editor {
	return &Editor{contents: delta.New()}
}

// FromDelta wraps d with the cursor at its end.
func FromDelta(d delta.Delta) (*Editor, error) {
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("editor: %w", err)
	}
	n := outputLength(d)
	return &Editor{contents: d, cursor: n, reach: n}, nil
}

// FromText parses the {"ops":[...]} form (a bare op array is accepted too).
func FromText(text string) (*Editor, error) {
	d, err := delta.Parse([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("editor: %w", err)
	}
	return FromDelta(d)
}

// outputLength is how far the ops reach in the content they produce.
func outputLength(d delta.Delta) int {
	n := 0
	for _, op := range d {
		if op.Kind != delta.KindDelete {
			n += op.Len()
		}
	}
	return n
}

func (e *Editor) Delta() delta.Delta { return e.contents }
func (e *Editor) Cursor() int        { return e.cursor }
func (e *Editor) Length() int        { return outputLength(e.contents) }

// Seek moves the cursor anywhere in [0, max(Length(), furthest cursor so
// far)]. A Retain past the content leaves the cursor there, so that offset
// stays reachable.
func (e *Editor) Seek(index int) error {
	limit := max(outputLength(e.contents), e.reach)
	if index < 0 || index > limit {
		return fmt.Errorf("editor: seek to %d outside [0, %d]: %w", index, limit, delta.ErrInvalidOperation)
	}
	e.cursor = index
	return nil
}

func (e *Editor) InsertText(text string, attrs ...attr.Attribute) (delta.Delta, error) {
	change := delta.New().Insert(text, attr.EncodeAll(attrs...))
	return e.apply(change, change.Length())
}

// InsertEmbed only takes attributes that may format an embed.
func (e *Editor) InsertEmbed(embed *delta.Embed, attrs ...attr.Attribute) (delta.Delta, error) {
	if embed == nil {
		return nil, fmt.Errorf("editor: nil embed: %w", delta.ErrInvalidOperation)
	}
	for _, a := range attrs {
		if !a.Embeddable() {
			return nil, fmt.Errorf("editor: %s cannot format an embed: %w", a.Key(), attr.ErrInvalidAttribute)
		}
	}
	change := delta.New().InsertEmbed(embed, attr.EncodeAll(attrs...))
	return e.apply(change, 1)
}

// Delete removes n units at the cursor; the cursor stays put.
func (e *Editor) Delete(n int) (delta.Delta, error) {
	return e.apply(delta.New().Delete(n), 0)
}

// Retain moves the cursor over n units, reformatting them when attrs are given.
// n may run past the content; the cursor follows it (see Seek).
func (e *Editor) Retain(n int, attrs ...attr.Attribute) (delta.Delta, error) {
	return e.apply(delta.New().Retain(n, attr.EncodeAll(attrs...)), n)
}

// apply positions change at the cursor, composes it and returns it.
// On error the editor is left untouched.
func (e *Editor) apply(change delta.Delta, advance int) (delta.Delta, error) {
	if err := change.Validate(); err != nil {
		return nil, fmt.Errorf("editor: %w", err)
	}
	positioned := delta.New().Retain(e.cursor, nil).Concat(change)
	next, err := e.contents.Compose(positioned)
	if err != nil {
		return nil, fmt.Errorf("editor: %w", err)
	}
	e.contents = next
	e.cursor += advance
	e.reach = max(e.reach, e.cursor)
	return positioned, nil
}

// Concat returns a new editor holding this delta followed by other's.
func (e *Editor) Concat(other *Editor) *Editor {
	d := e.contents.Concat(other.contents)
	n := outputLength(d)
	return &Editor{contents: d, cursor: n, reach: n}
}

// Diff returns the change turning this document into other's.
func (e *Editor) Diff(other *Editor) (delta.Delta, error) {
	return e.contents.Diff(other.contents)
}

func (e *Editor) ToText() (string, error) {
	b, err := json.Marshal(delta.Envelope{Ops: e.contents})
	if err != nil {
		return "", fmt.Errorf("editor: %w", err)
	}
	return string(b), nil
}
