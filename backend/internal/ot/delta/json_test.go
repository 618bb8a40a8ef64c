package delta

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deltaServer/backend/internal/ot/attr"
)

func TestMarshal_WireShape(t *testing.T) {
	d := New().
		Insert("Hi", bold).
		InsertEmbed(Image("https://x/y.png"), attr.Map{"width": "40"}).
		Retain(3, attr.Map{"color": nil}).
		Delete(2)

	raw, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"insert":"Hi","attributes":{"bold":true}},
		{"insert":{"image":"https://x/y.png"},"attributes":{"width":"40"}},
		{"retain":3,"attributes":{"color":null}},
		{"delete":2}
	]`, string(raw))
}

func TestMarshal_EmptyDelta(t *testing.T) {
	raw, err := json.Marshal(Delta(nil))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))

	raw, err = json.Marshal(Envelope{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ops":[]}`, string(raw))
}

func TestMarshal_RejectsMalformed(t *testing.T) {
	_, err := json.Marshal(New().Retain(-1, nil))
	assert.ErrorIs(t, err, ErrInvalidOperation)
}

func TestParse_BothForms(t *testing.T) {
	want := New().Insert("ab", nil).Retain(1, bold)

	bare, err := Parse([]byte(`[{"insert":"ab"},{"retain":1,"attributes":{"bold":true}}]`))
	require.NoError(t, err)
	assert.True(t, bare.Equal(want))

	wrapped, err := Parse([]byte(` {"ops":[{"insert":"ab"},{"retain":1,"attributes":{"bold":true}}]}`))
	require.NoError(t, err)
	assert.True(t, wrapped.Equal(want))

	empty, err := Parse([]byte(`{"ops":[]}`))
	require.NoError(t, err)
	assert.Len(t, empty, 0)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		index int
	}{
		{"negative delete", `[{"insert":"a"},{"delete":-1}]`, 1},
		{"two kinds", `[{"insert":"a","delete":1}]`, 0},
		{"no kind", `[{"retain":1},{"attributes":{"bold":true}}]`, 1},
		{"empty insert", `[{"insert":""}]`, 0},
		{"fractional length", `[{"retain":1.5}]`, 0},
		{"embed with two keys", `[{"insert":{"image":"a","video":"b"}}]`, 0},
		{"insert number", `[{"insert":3}]`, 0},
		{"not an array", `{"ops":{"insert":"a"}}`, -1},
		{"garbage", `[{`, -1},
		{"envelope without ops", `{"opz":[{"insert":"zzz"}]}`, -1},
		{"empty envelope", `{}`, -1},
		{"null ops", `{"ops":null}`, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			require.ErrorIs(t, err, ErrInvalidOperation)
			var opErr *OpError
			require.ErrorAs(t, err, &opErr)
			assert.Equal(t, tt.index, opErr.Index)
		})
	}
}

func TestParse_KeepsUnknownEmbeds(t *testing.T) {
	d, err := Parse([]byte(`[{"insert":{"mention":{"id":"u1"}}}]`))
	require.NoError(t, err)
	require.Len(t, d, 1)
	assert.Equal(t, EmbedType("mention"), d[0].Embed.Type)
	assert.Equal(t, 1, d.Length())
}

func TestJSON_RoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(61))
	for i := 0; i < 200; i++ {
		var d Delta
		if i%2 == 0 {
			d = randomDocument(r)
		} else {
			d = randomChange(r, r.Intn(20)+1)
		}
		raw, err := json.Marshal(d)
		require.NoError(t, err)

		var back Delta
		require.NoError(t, json.Unmarshal(raw, &back))
		require.True(t, back.Equal(d), "%s", raw)
	}
}

func TestOp_UnmarshalSingle(t *testing.T) {
	var op Op
	require.NoError(t, json.Unmarshal([]byte(`{"insert":{"formula":"x^2"},"attributes":{"alt":"square"}}`), &op))
	assert.Equal(t, KindInsert, op.Kind)
	assert.Equal(t, EmbedFormula, op.Embed.Type)
	assert.Equal(t, "x^2", op.Embed.Value)

	err := json.Unmarshal([]byte(`{"delete":-4}`), &op)
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, -1, opErr.Index)
}
