package delta

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deltaServer/backend/internal/ot/attr"
)

func TestDiff_ReplaceOneLetter(t *testing.T) {
	a := New().Insert("Hello", nil)
	b := New().Insert("Hallo", nil)

	got, err := a.Diff(b)
	require.NoError(t, err)
	want := New().Retain(1, nil).Delete(1).Insert("a", nil).Retain(3, nil)
	assert.True(t, got.Equal(want), "got %+v", got)
}

func TestDiff_Cases(t *testing.T) {
	tests := []struct {
		name string
		a, b Delta
		want Delta
	}{
		{"identical", New().Insert("same", bold), New().Insert("same", bold), New()},
		{"format only", New().Insert("ab", nil), New().Insert("a", nil).Insert("b", bold), New().Retain(1, nil).Retain(1, bold)},
		{"format removed", New().Insert("ab", bold), New().Insert("ab", nil), New().Retain(2, attr.Map{"bold": nil})},
		{"append", New().Insert("ab", nil), New().Insert("abc", nil), New().Retain(2, nil).Insert("c", nil)},
		{"embed swapped", New().InsertEmbed(Image("a"), nil), New().InsertEmbed(Image("b"), nil), New().InsertEmbed(Image("b"), nil).Delete(1)},
		{"embed kept", New().Insert("x", nil).InsertEmbed(Image("a"), nil), New().InsertEmbed(Image("a"), nil), New().Delete(1)},
		{"to empty", New().Insert("abc", nil), New(), New().Delete(3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.a.Diff(tt.b)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %+v want %+v", got, tt.want)
			assert.True(t, mustCompose(t, tt.a, got).Equal(tt.b))
		})
	}
}

func TestDiff_RoundTripsThroughCompose(t *testing.T) {
	r := rand.New(rand.NewSource(53))
	for i := 0; i < 200; i++ {
		a := randomDocument(r)
		b := randomDocument(r)
		if i%3 == 0 {
			b = mustCompose(t, a, randomChange(r, a.Length()))
		}
		d, err := a.Diff(b)
		require.NoError(t, err)
		require.True(t, mustCompose(t, a, d).Equal(b), "a=%+v b=%+v diff=%+v", a, b, d)
	}
}

func TestDiff_Deterministic(t *testing.T) {
	a := New().Insert("the quick brown fox", nil)
	b := New().Insert("the quack brawn fix", bold)
	first, err := a.Diff(b)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := a.Diff(b)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestDiff_RejectsNonDocuments(t *testing.T) {
	_, err := New().Insert("a", nil).Diff(New().Retain(1, nil))
	assert.ErrorIs(t, err, ErrInvalidOperation)

	var opErr *OpError
	_, err = New().Delete(1).Diff(New().Insert("a", nil))
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, 0, opErr.Index)
}
