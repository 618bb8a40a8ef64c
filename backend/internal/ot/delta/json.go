package delta

import (
	"bytes"
	"encoding/json"
	"fmt"

	"deltaServer/backend/internal/ot/attr"
)

// wire form of one op: exactly one of insert / delete / retain
type wireOp struct {
	Insert     json.RawMessage `json:"insert,omitempty"`
	Delete     *json.Number    `json:"delete,omitempty"`
	Retain     *json.Number    `json:"retain,omitempty"`
	Attributes attr.Map        `json:"attributes,omitempty"`
}

func (o Op) MarshalJSON() ([]byte, error) {
	if err := o.validate(-1); err != nil {
		return nil, err
	}
	w := wireOp{Attributes: o.Attrs}
	switch o.Kind {
	case KindInsert:
		var content any = o.Text
		if o.Embed != nil {
			content = map[string]any{string(o.Embed.Type): o.Embed.Value}
		}
		raw, err := json.Marshal(content)
		if err != nil {
			return nil, err
		}
		w.Insert = raw
	case KindDelete:
		n := json.Number(fmt.Sprint(o.Count))
		w.Delete = &n
		w.Attributes = nil
	case KindRetain:
		n := json.Number(fmt.Sprint(o.Count))
		w.Retain = &n
	}
	return json.Marshal(w)
}

func (o *Op) UnmarshalJSON(data []byte) error {
	op, err := decodeOp(data, -1)
	if err != nil {
		return err
	}
	*o = op
	return nil
}

func decodeOp(data []byte, index int) (Op, error) {
	fail := func(kind Kind, reason string) (Op, error) {
		return Op{}, &OpError{Index: index, Kind: kind, Reason: reason}
	}
	var w wireOp
	if err := json.Unmarshal(data, &w); err != nil {
		return fail("", "malformed op record: "+err.Error())
	}

	present := 0
	for _, ok := range []bool{w.Insert != nil, w.Delete != nil, w.Retain != nil} {
		if ok {
			present++
		}
	}
	if present != 1 {
		return fail("", "op record needs exactly one of insert, delete, retain")
	}

	var op Op
	switch {
	case w.Insert != nil:
		op = Op{Kind: KindInsert, Attrs: w.Attributes}
		trimmed := bytes.TrimSpace(w.Insert)
		switch {
		case len(trimmed) > 0 && trimmed[0] == '"':
			if err := json.Unmarshal(trimmed, &op.Text); err != nil {
				return fail(KindInsert, "malformed insert text")
			}
		case len(trimmed) > 0 && trimmed[0] == '{':
			var obj map[string]any
			if err := json.Unmarshal(trimmed, &obj); err != nil || len(obj) != 1 {
				return fail(KindInsert, "embed insert must be an object with one key")
			}
			for k, v := range obj {
				op.Embed = &Embed{Type: EmbedType(k), Value: v}
			}
		default:
			return fail(KindInsert, "insert must be a string or an embed object")
		}
	case w.Delete != nil:
		n, err := w.Delete.Int64()
		if err != nil {
			return fail(KindDelete, "length is not an integer")
		}
		op = Op{Kind: KindDelete, Count: int(n)}
	case w.Retain != nil:
		n, err := w.Retain.Int64()
		if err != nil {
			return fail(KindRetain, "length is not an integer")
		}
		op = Op{Kind: KindRetain, Count: int(n), Attrs: w.Attributes}
	}
	if err := op.validate(index); err != nil {
		return Op{}, err
	}
	return op, nil
}

// MarshalJSON writes the op array; a nil delta encodes as [].
func (d Delta) MarshalJSON() ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if d == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Op(d))
}

func (d *Delta) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Parse reads a delta from either a bare op array or an {"ops":[...]}
// object. The object must carry an "ops" array; a bare null is a nil delta. Every record is validated; the first bad one is reported as an
// *OpError carrying its index.
func Parse(data []byte) (Delta, error) {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var env struct {
			Ops json.RawMessage `json:"ops"`
		}
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, &OpError{Index: -1, Reason: "malformed delta: " + err.Error()}
		}
		trimmed = bytes.TrimSpace(env.Ops)
		if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
			return nil, &OpError{Index: -1, Reason: `envelope has no "ops" array`}
		}
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(trimmed, &raws); err != nil {
		return nil, &OpError{Index: -1, Reason: "malformed delta: " + err.Error()}
	}
	out := make(Delta, 0, len(raws))
	for i, raw := range raws {
		op, err := decodeOp(raw, i)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, nil
}

// Envelope is the {"ops":[...]} text form.
type Envelope struct {
	Ops Delta `json:"ops"`
}
