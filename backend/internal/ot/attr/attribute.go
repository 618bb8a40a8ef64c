// Package attr holds the formatting vocabulary attached to delta ops: a closed
// set of well-known attributes plus a custom escape for everything else, and
// the map algebra (compose, diff, invert, transform) the delta algorithms use.
package attr

import (
	"errors"
	"fmt"
	"sort"
)

var ErrInvalidAttribute = errors.New("INVALID_ATTRIBUTE")

type Kind int

const (
	KindCustom Kind = iota
	KindBold
	KindItalic
	KindUnderline
	KindStrike
	KindCode
	KindLink
	KindBackground
	KindColor
	KindFont
	KindSize
	KindScript
	KindAlign
	KindWidth
	KindHeight
	KindAlt
)

const (
	KeyBold       = "bold"
	KeyItalic     = "italic"
	KeyUnderline  = "underline"
	KeyStrike     = "strike"
	KeyCode       = "code"
	KeyLink       = "link"
	KeyBackground = "background"
	KeyColor      = "color"
	KeyFont       = "font"
	KeySize       = "size"
	KeyScript     = "script"
	KeyAlign      = "align"
	KeyWidth      = "width"
	KeyHeight     = "height"
	KeyAlt        = "alt"

	ScriptSub   = "sub"
	ScriptSuper = "super"
)

// sub and super share the script key, so a collection can only hold one of them.
var wellKnown = map[string]Kind{
	KeyBold:       KindBold,
	KeyItalic:     KindItalic,
	KeyUnderline:  KindUnderline,
	KeyStrike:     KindStrike,
	KeyCode:       KindCode,
	KeyLink:       KindLink,
	KeyBackground: KindBackground,
	KeyColor:      KindColor,
	KeyFont:       KindFont,
	KeySize:       KindSize,
	KeyScript:     KindScript,
	KeyAlign:      KindAlign,
	KeyWidth:      KindWidth,
	KeyHeight:     KindHeight,
	KeyAlt:        KindAlt,
}

// IsWellKnown reports whether key belongs to the closed vocabulary.
func IsWellKnown(key string) bool {
	_, ok := wellKnown[key]
	return ok
}

// Attribute is one formatting property. It is an immutable value; build it
// with the constructors below.
type Attribute struct {
	kind  Kind
	key   string
	value any
}

func (a Attribute) Kind() Kind    { return a.kind }
func (a Attribute) Key() string   { return a.key }
func (a Attribute) Value() any    { return a.value }
func (a Attribute) IsUnset() bool { return a.value == nil }

func (a Attribute) String() string {
	if a.value == nil {
		return a.key + "=null"
	}
	return fmt.Sprintf("%s=%v", a.key, a.value)
}

// Embeddable reports whether the attribute may format an embed.
func (a Attribute) Embeddable() bool {
	switch a.kind {
	case KindWidth, KindHeight, KindAlt, KindAlign, KindCustom:
		return true
	}
	return false
}

func Bold() Attribute      { return Attribute{KindBold, KeyBold, true} }
func Italic() Attribute    { return Attribute{KindItalic, KeyItalic, true} }
func Underline() Attribute { return Attribute{KindUnderline, KeyUnderline, true} }
func Strike() Attribute    { return Attribute{KindStrike, KeyStrike, true} }
func Code() Attribute      { return Attribute{KindCode, KeyCode, true} }

func Link(url string) Attribute        { return Attribute{KindLink, KeyLink, url} }
func Background(color string) Attribute { return Attribute{KindBackground, KeyBackground, color} }
func Color(color string) Attribute      { return Attribute{KindColor, KeyColor, color} }
func Font(family string) Attribute      { return Attribute{KindFont, KeyFont, family} }
func Align(align string) Attribute      { return Attribute{KindAlign, KeyAlign, align} }
func Width(w string) Attribute          { return Attribute{KindWidth, KeyWidth, w} }
func Height(h string) Attribute         { return Attribute{KindHeight, KeyHeight, h} }
func Alt(text string) Attribute         { return Attribute{KindAlt, KeyAlt, text} }

// Size sets a numeric text size.
func Size(size float64) Attribute { return Attribute{KindSize, KeySize, size} }

// SizeName sets a named text size such as "small" or "large".
func SizeName(name string) Attribute { return Attribute{KindSize, KeySize, name} }

func Sub() Attribute   { return Attribute{KindScript, KeyScript, ScriptSub} }
func Super() Attribute { return Attribute{KindScript, KeyScript, ScriptSuper} }

// Custom carries any attribute outside the closed vocabulary. The key must be
// non-empty and must not be a well-known key.
func Custom(key string, value any) (Attribute, error) {
	if key == "" {
		return Attribute{}, fmt.Errorf("custom attribute: empty key: %w", ErrInvalidAttribute)
	}
	if IsWellKnown(key) {
		return Attribute{}, fmt.Errorf("custom attribute %q collides with a well-known key: %w", key, ErrInvalidAttribute)
	}
	return Attribute{KindCustom, key, value}, nil
}

// MustCustom is Custom for keys known to be valid at compile time.
func MustCustom(key string, value any) Attribute {
	a, err := Custom(key, value)
	if err != nil {
		panic(err)
	}
	return a
}

// Unset is the tombstone for key: applied through a retain it removes the
// attribute from the retained content.
func Unset(key string) Attribute {
	kind, ok := wellKnown[key]
	if !ok {
		kind = KindCustom
	}
	return Attribute{kind, key, nil}
}

// Encode maps one attribute to its key and value.
func Encode(a Attribute) (string, any) {
	return a.key, a.value
}

// EncodeAll builds a key-unique map; later attributes overwrite earlier ones
// with the same key.
func EncodeAll(attrs ...Attribute) Map {
	if len(attrs) == 0 {
		return nil
	}
	m := make(Map, len(attrs))
	for _, a := range attrs {
		if a.key == "" {
			continue
		}
		k, v := Encode(a)
		m[k] = v
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// Decode turns a generic map into attributes, sorted by key. Unknown keys
// always survive as Custom; a well-known key whose value has the wrong shape
// is skipped rather than failing the whole map. A nil value decodes to Unset.
func Decode(m Map) []Attribute {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Attribute, 0, len(keys))
	for _, k := range keys {
		v := m[k]
		kind, known := wellKnown[k]
		switch {
		case !known:
			if k == "" {
				continue
			}
			out = append(out, Attribute{KindCustom, k, v})
		case v == nil:
			out = append(out, Unset(k))
		default:
			if a, ok := decodeKnown(kind, v); ok {
				out = append(out, a)
			}
		}
	}
	return out
}

func decodeKnown(kind Kind, v any) (Attribute, bool) {
	switch kind {
	case KindBold, KindItalic, KindUnderline, KindStrike, KindCode:
		if b, ok := v.(bool); ok && b {
			return Attribute{kind, keyOf(kind), true}, true
		}
	case KindLink, KindBackground, KindColor, KindFont, KindAlign, KindWidth, KindHeight, KindAlt:
		if s, ok := v.(string); ok {
			return Attribute{kind, keyOf(kind), s}, true
		}
	case KindSize:
		if f, ok := toFloat(v); ok {
			return Size(f), true
		}
		if s, ok := v.(string); ok && s != "" {
			return SizeName(s), true
		}
	case KindScript:
		switch s, _ := v.(string); s {
		case ScriptSub:
			return Sub(), true
		case ScriptSuper:
			return Super(), true
		}
	}
	return Attribute{}, false
}

func keyOf(kind Kind) string {
	for k, kk := range wellKnown {
		if kk == kind {
			return k
		}
	}
	return ""
}
