package collab

import (
	"deltaServer/backend/internal/events"
)

// OnOpApplied registers fn for the text-change events Submit emits; the
// AppliedOp rides after the typed arguments. Text changes emitted by anyone
// else are ignored.
func OnOpApplied(reg *events.Registry, fn func(op AppliedOp)) events.Handle {
	if fn == nil {
		return events.Handle{}
	}
	return reg.Register(events.TextChange, func(args ...any) {
		if len(args) < 4 {
			return
		}
		if op, ok := args[3].(AppliedOp); ok {
			fn(op)
		}
	})
}
