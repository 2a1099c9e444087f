package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyForURL_Normalization(t *testing.T) {
	base := KeyForURL("https://i.redd.it/abc123.jpg")

	// query, fragment, case of host/scheme and surrounding space are
	// not part of the content identity
	same := []string{
		"https://i.redd.it/abc123.jpg?width=640&s=tracking",
		"https://I.REDD.IT/abc123.jpg",
		"HTTPS://i.redd.it/abc123.jpg#section",
		"  https://i.redd.it/abc123.jpg  ",
	}
	for _, u := range same {
		require.Equal(t, base, KeyForURL(u), "url %q", u)
	}

	require.NotEqual(t, base, KeyForURL("https://i.redd.it/other.jpg"))
	// path case stays significant
	require.NotEqual(t, base, KeyForURL("https://i.redd.it/ABC123.jpg"))
}

func TestKeyForURL_Unparseable(t *testing.T) {
	require.NotEmpty(t, KeyForURL("::not a url::"))
	require.Equal(t, KeyForURL("::not a url::"), KeyForURL("::not a url::"))
}

func TestKeyForContent(t *testing.T) {
	a := KeyForContent([]byte("image-bytes"))
	require.Equal(t, a, KeyForContent([]byte("image-bytes")))
	require.NotEqual(t, a, KeyForContent([]byte("other-bytes")))
	require.Len(t, a, 64)
}
