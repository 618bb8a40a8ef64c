package events

import (
	"deltaServer/backend/internal/ot/delta"
)

// Source tags who caused a change.
type Source string

const (
	SourceAPI    Source = "api"
	SourceUser   Source = "user"
	SourceSilent Source = "silent"
)

// Range is a selection: Length 0 is a caret.
type Range struct {
	Index  int `json:"index"`
	Length int `json:"length"`
}

// Transform maps the range through change. Both ends move independently, so
// a selection swallowed by a delete collapses to a caret.
func (r Range) Transform(change delta.Delta, priority bool) (Range, error) {
	start, err := change.TransformPosition(r.Index, priority)
	if err != nil {
		return Range{}, err
	}
	end, err := change.TransformPosition(r.Index+r.Length, priority)
	if err != nil {
		return Range{}, err
	}
	return Range{Index: start, Length: max(end-start, 0)}, nil
}

type TextChangeHandler func(change, oldContents delta.Delta, source Source)

// SelectionChangeHandler gets nil ranges when there is no selection (focus lost or gained).
type SelectionChangeHandler func(oldRange, newRange *Range, source Source)

func (r *Registry) OnTextChange(fn TextChangeHandler) Handle {
	if fn == nil {
		return Handle{}
	}
	return r.Register(TextChange, func(args ...any) {
		change, old, source := textArgs(args)
		fn(change, old, source)
	})
}

func (r *Registry) OnSelectionChange(fn SelectionChangeHandler) Handle {
	if fn == nil {
		return Handle{}
	}
	return r.Register(SelectionChange, func(args ...any) {
		oldRange, newRange, source := selectionArgs(args)
		fn(oldRange, newRange, source)
	})
}

// EmitTextChange dispatches text-change and then editor-change. Extra
// arguments go after source; typed handlers never see them.
func (r *Registry) EmitTextChange(change, oldContents delta.Delta, source Source, extra ...any) int {
	args := append([]any{change, oldContents, source}, extra...)
	n := r.Emit(TextChange, args...)
	return n + r.Emit(EditorChange, append([]any{TextChange}, args...)...)
}

// EmitSelectionChange dispatches selection-change and then editor-change.
func (r *Registry) EmitSelectionChange(oldRange, newRange *Range, source Source) int {
	n := r.Emit(SelectionChange, oldRange, newRange, source)
	return n + r.Emit(EditorChange, SelectionChange, oldRange, newRange, source)
}

// handlers registered through Register may be fed anything; missing or
// mistyped arguments come through as zero values
func textArgs(args []any) (change, old delta.Delta, source Source) {
	if len(args) > 0 {
		change, _ = args[0].(delta.Delta)
	}
	if len(args) > 1 {
		old, _ = args[1].(delta.Delta)
	}
	if len(args) > 2 {
		source, _ = args[2].(Source)
	}
	return change, old, source
}

func selectionArgs(args []any) (oldRange, newRange *Range, source Source) {
	if len(args) > 0 {
		oldRange, _ = args[0].(*Range)
	}
	if len(args) > 1 {
		newRange, _ = args[1].(*Range)
	}
	if len(args) > 2 {
		source, _ = args[2].(Source)
	}
	return oldRange, newRange, source
}
