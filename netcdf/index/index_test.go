package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name  string
		slice Slice
		n     int
		want  Range
		len   int
	}{
		{"open", All(), 5, Range{0, 5, 1}, 5},
		{"span", Span(1, 3), 5, Range{1, 3, 1}, 2},
		{"negative start", Slice{Start: Int(-2)}, 5, Range{3, 5, 1}, 2},
		{"negative stop", Span(20, -20), 200, Range{20, 180, 1}, 160},
		{"clipped", Span(-10, 10), 5, Range{0, 5, 1}, 5},
		{"reversed", Span(4, 1), 5, Range{4, 4, 1}, 0},
		{"stepped", All().WithStep(2), 5, Range{0, 5, 2}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.slice.Resolve(tt.n)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.len, got.Len())
		})
	}
}

func TestResolveStep(t *testing.T) {
	_, err := All().WithStep(0).Resolve(3)
	assert.ErrorIs(t, err, ErrStep)
	_, err = All().WithStep(-1).Resolve(3)
	assert.ErrorIs(t, err, ErrStep)
}

func TestNormalize(t *testing.T) {
	got := Of(Span(0, 2)).Normalize(3)
	assert.Equal(t, []Slice{Span(0, 2), All(), All()}, got)

	got = List(Sub(Span(0, 2)), At(10), At(-3)).Normalize(3)
	assert.Equal(t, []Slice{Span(0, 2), Span(10, 11), Span(-3, -2)}, got)

	got = List(At(1)).Normalize(2)
	assert.Equal(t, []Slice{Span(1, 2), All()}, got)

	got = Whole().Normalize(2)
	assert.Equal(t, []Slice{All(), All()}, got)

	// extra axes are kept for the variable to reject
	got = List(At(0), At(1), At(2)).Normalize(2)
	assert.Len(t, got, 3)
}

func TestParse(t *testing.T) {
	ix, err := Parse("0:2, 10, 3")
	require.NoError(t, err)
	assert.Equal(t, List(Sub(Span(0, 2)), At(10), At(3)), ix)
	assert.Equal(t, "[0:2, 10, 3]", ix.String())

	ix, err = Parse(":")
	require.NoError(t, err)
	assert.Equal(t, Whole(), ix)

	ix, err = Parse("-2:")
	require.NoError(t, err)
	assert.Equal(t, Of(Slice{Start: Int(-2)}), ix)

	ix, err = Parse("::2,1")
	require.NoError(t, err)
	assert.Equal(t, List(Sub(All().WithStep(2)), At(1)), ix)

	for _, bad := range []string{"", "a", "1:2:3:4", "0,,1", "1:x"} {
		_, err := Parse(bad)
		assert.ErrorIs(t, err, ErrSyntax, bad)
	}
}

func TestParseSlice(t *testing.T) {
	s, err := ParseSlice(" 20:-20 ")
	require.NoError(t, err)
	assert.Equal(t, Span(20, -20), s)
	assert.Equal(t, "20:-20", s.String())

	s, err = ParseSlice(":3")
	require.NoError(t, err)
	assert.Equal(t, Slice{Stop: Int(3)}, s)
}

func TestMustParsePanics(t *testing.T) {
	assert.Panics(t, func() { MustParse("?") })
}

func TestRanges(t *testing.T) {
	shape := []int{5, 100, 200}
	got, err := MustParse("0:2, 20, -1").Ranges(shape)
	require.NoError(t, err)
	assert.Equal(t, []Range{{0, 2, 1}, {20, 21, 1}, {199, 200, 1}}, got)

	got, err = MustParse(":3").Ranges(shape)
	require.NoError(t, err)
	assert.Equal(t, []Range{{0, 3, 1}, {0, 100, 1}, {0, 200, 1}}, got)

	_, err = MustParse("5").Ranges(shape)
	assert.ErrorIs(t, err, ErrBounds)
	_, err = MustParse("0, 0, 0, 0").Ranges(shape)
	assert.ErrorIs(t, err, ErrRank)
}

func TestReach(t *testing.T) {
	tests := []struct {
		text string
		axis int
		want int
		ok   bool
	}{
		{"0:3", 0, 3, true},
		{"0:3", 1, 0, false},
		{"2, 5:7", 1, 7, true},
		{"4", 0, 5, true},
		{"-1", 0, 0, false},
		{":", 0, 0, false},
		{"0:-1", 0, 0, false},
	}
	for _, tt := range tests {
		got, ok := MustParse(tt.text).Reach(tt.axis)
		assert.Equal(t, tt.ok, ok, tt.text)
		if ok {
			assert.Equal(t, tt.want, got, tt.text)
		}
	}
}
