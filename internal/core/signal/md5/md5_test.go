package md5

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	for _, typ := range []Type{Photo(), Video()} {
		for _, ex := range typ.Examples() {
			got, err := typ.Validate(strings.ToUpper(ex))
			require.NoError(t, err)
			require.Equal(t, ex, got)
		}
		_, err := typ.Validate("xyz")
		require.Error(t, err)
		_, err = typ.Validate(strings.Repeat("g", 32))
		require.Error(t, err)
	}
}

func TestCompare(t *testing.T) {
	typ := Photo()
	a, b := typ.Examples()[0], typ.Examples()[1]
	c, err := typ.Compare(a, strings.ToUpper(a), 0)
	require.NoError(t, err)
	require.True(t, c.Match)
	require.Equal(t, 0.0, c.Distance)

	c, err = typ.Compare(a, b, 0)
	require.NoError(t, err)
	require.False(t, c.Match)
}

func TestHashBytes(t *testing.T) {
	got, err := Video().HashBytes(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", got)
}

func TestIndexRoundTrip(t *testing.T) {
	typ := Video()
	ix := typ.NewIndex()
	for i, ex := range typ.Examples() {
		require.NoError(t, ix.Add(ex, int64(i+10)))
	}
	blob, err := ix.MarshalBinary()
	require.NoError(t, err)
	loaded, err := typ.LoadIndex(blob)
	require.NoError(t, err)
	for _, ex := range typ.Examples() {
		want, _ := ix.Query(ex)
		got, err := loaded.Query(ex)
		require.NoError(t, err)
		require.Equal(t, want, got)
		require.Len(t, got, 1)
	}
}
