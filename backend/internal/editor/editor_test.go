package editor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deltaServer/backend/internal/ot/attr"
	"deltaServer/backend/internal/ot/delta"
)

func TestEditor_BuildsLikeAppending(t *testing.T) {
	e := New()
	change, err := e.InsertText("Hello", attr.Bold())
	require.NoError(t, err)
	assert.True(t, change.Equal(delta.New().Insert("Hello", attr.Map{"bold": true})))

	_, err = e.InsertText(" world")
	require.NoError(t, err)
	_, err = e.InsertEmbed(delta.Image("https://x/cat.png"), attr.Width("120"), attr.Alt("cat"))
	require.NoError(t, err)

	want := delta.New().
		Insert("Hello", attr.Map{"bold": true}).
		Insert(" world", nil).
		InsertEmbed(delta.Image("https://x/cat.png"), attr.Map{"width": "120", "alt": "cat"})
	assert.True(t, e.Delta().Equal(want), "%+v", e.Delta())
	assert.Equal(t, 12, e.Cursor())
}

func TestEditor_ChangeIsPositionedAtCursor(t *testing.T) {
	e, err := FromDelta(delta.New().Insert("abc", nil))
	require.NoError(t, err)
	require.NoError(t, e.Seek(1))

	change, err := e.InsertText("X")
	require.NoError(t, err)
	assert.True(t, change.Equal(delta.New().Retain(1, nil).Insert("X", nil)))
	assert.Equal(t, "aXbc", e.Delta().PlainText())
	assert.Equal(t, 2, e.Cursor())

	change, err = e.Delete(1)
	require.NoError(t, err)
	assert.True(t, change.Equal(delta.New().Retain(2, nil).Delete(1)))
	assert.Equal(t, "aXc", e.Delta().PlainText())
	assert.Equal(t, 2, e.Cursor())
}

func TestEditor_RetainFormats(t *testing.T) {
	e, err := FromDelta(delta.New().Insert("abcd", nil))
	require.NoError(t, err)
	require.NoError(t, e.Seek(0))

	_, err = e.Retain(1)
	require.NoError(t, err)
	_, err = e.Retain(2, attr.Italic())
	require.NoError(t, err)

	want := delta.New().Insert("a", nil).Insert("bc", attr.Map{"italic": true}).Insert("d", nil)
	assert.True(t, e.Delta().Equal(want))
	assert.Equal(t, 3, e.Cursor())

	require.NoError(t, e.Seek(1))
	_, err = e.Retain(1, attr.Unset(attr.KeyItalic))
	require.NoError(t, err)
	want = delta.New().Insert("ab", nil).Insert("c", attr.Map{"italic": true}).Insert("d", nil)
	assert.True(t, e.Delta().Equal(want))
}

func TestEditor_DeltaShapedContents(t *testing.T) {
	// an empty editor records a change rather than a document
	e := New()
	_, err := e.Retain(3)
	require.NoError(t, err)
	_, err = e.Delete(2)
	require.NoError(t, err)
	_, err = e.InsertText("x")
	require.NoError(t, err)

	want := delta.New().Retain(3, nil).Delete(2).Insert("x", nil)
	assert.True(t, e.Delta().Equal(want), "%+v", e.Delta())
}

func TestEditor_ZeroLengthIsNoop(t *testing.T) {
	e, err := FromDelta(delta.New().Insert("Hello", nil))
	require.NoError(t, err)
	_, err = e.Delete(0)
	require.NoError(t, err)
	_, err = e.InsertText("")
	require.NoError(t, err)
	assert.True(t, e.Delta().Equal(delta.New().Insert("Hello", nil)))
}

func TestEditor_ErrorsLeaveStateAlone(t *testing.T) {
	e, err := FromDelta(delta.New().Insert("Hi", nil))
	require.NoError(t, err)

	_, err = e.Delete(-1)
	assert.ErrorIs(t, err, delta.ErrInvalidOperation)
	_, err = e.Retain(-2)
	assert.ErrorIs(t, err, delta.ErrInvalidOperation)
	_, err = e.InsertEmbed(delta.Video("v"), attr.Bold())
	assert.ErrorIs(t, err, attr.ErrInvalidAttribute)
	_, err = e.InsertEmbed(nil)
	assert.ErrorIs(t, err, delta.ErrInvalidOperation)
	assert.ErrorIs(t, e.Seek(3), delta.ErrInvalidOperation)
	assert.ErrorIs(t, e.Seek(-1), delta.ErrInvalidOperation)

	assert.True(t, e.Delta().Equal(delta.New().Insert("Hi", nil)))
	assert.Equal(t, 2, e.Cursor())
}

func TestEditor_ConcatAndDiffAreReadOnly(t *testing.T) {
	a, err := FromDelta(delta.New().Insert("Hello", nil))
	require.NoError(t, err)
	b, err := FromDelta(delta.New().Insert("Hallo", nil))
	require.NoError(t, err)

	joined := a.Concat(b)
	assert.Equal(t, "HelloHallo", joined.Delta().PlainText())
	assert.Equal(t, 10, joined.Cursor())

	d, err := a.Diff(b)
	require.NoError(t, err)
	assert.True(t, d.Equal(delta.New().Retain(1, nil).Delete(1).Insert("a", nil)))

	assert.Equal(t, "Hello", a.Delta().PlainText())
	assert.Equal(t, "Hallo", b.Delta().PlainText())
}

func TestEditor_TextRoundTrip(t *testing.T) {
	e := New()
	_, err := e.InsertText("Gandalf", attr.Bold())
	require.NoError(t, err)
	_, err = e.InsertText(" the ")
	require.NoError(t, err)
	_, err = e.InsertText("Grey", attr.Color("#cccccc"), attr.MustCustom("data-id", "g1"))
	require.NoError(t, err)
	_, err = e.InsertEmbed(delta.Formula("x^2"))
	require.NoError(t, err)

	text, err := e.ToText()
	require.NoError(t, err)
	assert.JSONEq(t, `{"ops":[
		{"insert":"Gandalf","attributes":{"bold":true}},
		{"insert":" the "},
		{"insert":"Grey","attributes":{"color":"#cccccc","data-id":"g1"}},
		{"insert":{"formula":"x^2"}}
	]}`, text)

	back, err := FromText(text)
	require.NoError(t, err)
	assert.True(t, back.Delta().Equal(e.Delta()))
	assert.Equal(t, e.Cursor(), back.Cursor())

	_, err = FromText(`{"ops":[{"retain":-1}]}`)
	assert.ErrorIs(t, err, delta.ErrInvalidOperation)
}

func TestEditor_SeekBackToRetainedOffset(t *testing.T) {
	e := New()
	_, err := e.Retain(3)
	require.NoError(t, err)
	assert.Equal(t, 3, e.Cursor())
	assert.Zero(t, e.Length())

	require.NoError(t, e.Seek(0))
	require.NoError(t, e.Seek(3))
	assert.ErrorIs(t, e.Seek(4), delta.ErrInvalidOperation)

	change, err := e.InsertText("x")
	require.NoError(t, err)
	assert.True(t, change.Equal(delta.New().Retain(3, nil).Insert("x", nil)))
	assert.Equal(t, 4, e.Cursor())
}
