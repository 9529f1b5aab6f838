package text

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevenshtein(t *testing.T) {
	require.Equal(t, 3, Levenshtein("kitten", "sitting"))
	require.Equal(t, 0, Levenshtein("", ""))
	require.Equal(t, 4, Levenshtein("", "abcd"))
	require.Equal(t, 1, Levenshtein("café", "cafe"))
}

func TestRawText_Validate(t *testing.T) {
	typ := NewRawText()
	got, err := typ.Validate("  The   QUICK\tfox ")
	require.NoError(t, err)
	require.Equal(t, "the quick fox", got)
	again, err := typ.Validate(got)
	require.NoError(t, err)
	require.Equal(t, got, again)

	_, err = typ.Validate("   ")
	require.Error(t, err)
}

func TestRawText_Compare(t *testing.T) {
	typ := NewRawText()
	long := typ.Examples()[1]

	c, err := typ.Compare(long, strings.ToUpper(long), 0)
	require.NoError(t, err)
	require.True(t, c.Match)
	require.Equal(t, 0.0, c.Distance)

	edited := strings.Replace(long, "Justice", "Justise", 1)
	c, err = typ.Compare(long, edited, 0)
	require.NoError(t, err)
	require.True(t, c.Match)
	require.Equal(t, 1.0, c.Distance)

	c, err = typ.Compare("bball now?", "bball later?", 0)
	require.NoError(t, err)
	require.False(t, c.Match)

	_, err = typ.Compare("a", "b", 101)
	require.Error(t, err)
}

func TestLinearIndex(t *testing.T) {
	typ := NewRawText()
	ix := typ.NewIndex()
	for i, ex := range typ.Examples() {
		require.NoError(t, ix.Add(ex, int64(i+1)))
	}
	require.NoError(t, ix.Add(strings.ToLower(typ.Examples()[0]), 9))
	require.Equal(t, 4, ix.Len())

	got, err := ix.Query("the quick brown fox jumps over the lazy dog!!!")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, int64(1), got[0].ID)
	require.Equal(t, int64(9), got[1].ID)

	blob, err := ix.MarshalBinary()
	require.NoError(t, err)
	loaded, err := typ.LoadIndex(blob)
	require.NoError(t, err)
	for _, ex := range typ.Examples() {
		want, _ := ix.Query(ex)
		have, err := loaded.Query(ex)
		require.NoError(t, err)
		require.Equal(t, want, have)
	}
}

func TestURL(t *testing.T) {
	typ := NewURL()
	got, err := typ.Validate("HTTPS://Example.com/A")
	require.NoError(t, err)
	require.Equal(t, "example.com/a", got)

	c, err := typ.Compare("http://example.com/a", "https://EXAMPLE.com/a", 0)
	require.NoError(t, err)
	require.True(t, c.Match)

	ix := typ.NewIndex()
	require.NoError(t, ix.Add(got, 5))
	m, err := ix.Query("example.com/a")
	require.NoError(t, err)
	require.Len(t, m, 1)
}
