package delta

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"deltaServer/backend/internal/ot/attr"
)

type Kind string

const (
	KindRetain Kind = "retain"
	KindInsert Kind = "insert"
	KindDelete Kind = "delete"
)

var ErrInvalidOperation = errors.New("INVALID_OPERATION")

// OpError identifies the op that failed validation. It unwraps to
// ErrInvalidOperation.
type OpError struct {
	Index  int // -1 when the op was checked on its own
	Kind   Kind
	Reason string
}

func (e *OpError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid %s op: %s", kindName(e.Kind), e.Reason)
	}
	return fmt.Sprintf("invalid %s op at index %d: %s", kindName(e.Kind), e.Index, e.Reason)
}

func (e *OpError) Unwrap() error { return ErrInvalidOperation }

func kindName(k Kind) string {
	if k == "" {
		return "unknown"
	}
	return string(k)
}

type EmbedType string

const (
	EmbedImage   EmbedType = "image"
	EmbedVideo   EmbedType = "video"
	EmbedFormula EmbedType = "formula"
)

// Embed is a non-text content unit occupying exactly one position. Its type
// doubles as the key of the insert object on the wire. Unknown types read
// from JSON are kept as-is.
type Embed struct {
	Type  EmbedType
	Value any
}

func Image(url string) *Embed      { return &Embed{Type: EmbedImage, Value: url} }
func Video(url string) *Embed      { return &Embed{Type: EmbedVideo, Value: url} }
func Formula(source string) *Embed { return &Embed{Type: EmbedFormula, Value: source} }

func embedEqual(a, b *Embed) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Type == b.Type && attr.ValueEqual(a.Value, b.Value)
}

// Op is one element of a delta. Count is the length of a retain or delete;
// an insert carries either Text or Embed.
type Op struct {
	Kind  Kind
	Count int
	Text  string
	Embed *Embed
	Attrs attr.Map
}

// Len is the number of content units the op covers.
func (o Op) Len() int {
	switch o.Kind {
	case KindInsert:
		if o.Embed != nil {
			return 1
		}
		return utf8.RuneCountInString(o.Text)
	default:
		return o.Count
	}
}

func (o Op) validate(index int) error {
	fail := func(reason string) error {
		return &OpError{Index: index, Kind: o.Kind, Reason: reason}
	}
	switch o.Kind {
	case KindInsert:
		switch {
		case o.Embed != nil && o.Text != "":
			return fail("insert carries both text and embed")
		case o.Embed == nil && o.Text == "":
			return fail("insert without content")
		case o.Embed != nil && o.Embed.Type == "":
			return fail("embed without type")
		}
	case KindDelete, KindRetain:
		if o.Count < 0 {
			return fail(fmt.Sprintf("negative length %d", o.Count))
		}
	default:
		return fail(fmt.Sprintf("unknown op kind %q", string(o.Kind)))
	}
	for k := range o.Attrs {
		if k == "" {
			return fail("attribute with empty key")
		}
	}
	return nil
}

func opEqual(a, b Op) bool {
	return a.Kind == b.Kind &&
		a.Count == b.Count &&
		a.Text == b.Text &&
		embedEqual(a.Embed, b.Embed) &&
		attr.Equal(a.Attrs, b.Attrs)
}

func sameContent(a, b Op) bool {
	return a.Text == b.Text && embedEqual(a.Embed, b.Embed)
}
