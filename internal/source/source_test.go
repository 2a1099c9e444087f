package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lazylama/memeswap/internal/model"
)

const listingJSON = `{
	"data": {
		"children": [
			{"data": {"title": "low score", "url": "https://i.redd.it/a.jpg", "subreddit": "memes", "score": 5}},
			{"data": {"title": "top meme", "url": "https://i.redd.it/b.jpg", "subreddit": "memes", "score": 100, "over_18": true}},
			{"data": {"title": "duplicate", "url": "https://i.redd.it/a.jpg", "subreddit": "memes", "score": 50}},
			{"data": {"title": "text post", "url": "https://reddit.com/r/memes/comments/xyz", "subreddit": "memes", "score": 999}}
		]
	}
}`

func TestRedditSource_Trending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/r/memes/hot.json", r.URL.Path)
		require.NotEmpty(t, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(listingJSON))
	}))
	defer srv.Close()

	s := NewRedditSource(time.Second, "test-agent")
	s.baseURL = srv.URL

	got, err := s.Trending(context.Background(), []string{"memes"}, 10)
	require.NoError(t, err)

	// text post dropped, duplicate URL deduped, sorted by score
	require.Len(t, got, 2)
	require.Equal(t, "top meme", got[0].Title)
	require.True(t, got[0].NSFW)
	require.Equal(t, "low score", got[1].Title)
}

func TestRedditSource_AllSubredditsDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewRedditSource(time.Second, "")
	s.baseURL = srv.URL

	_, err := s.Trending(context.Background(), []string{"memes", "funny"}, 10)
	require.ErrorIs(t, err, model.ErrSourceUnavailable)
}

func TestFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	f := NewFetcher(time.Second)
	data, ctype, err := f.Fetch(context.Background(), srv.URL+"/img.jpg")
	require.NoError(t, err)
	require.Equal(t, []byte("jpeg-bytes"), data)
	require.Equal(t, "image/jpeg", ctype)
}

func TestFetcher_FetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(time.Second)
	_, _, err := f.Fetch(context.Background(), srv.URL+"/gone.jpg")
	require.ErrorIs(t, err, model.ErrSourceUnavailable)
}

func TestIsImageURL(t *testing.T) {
	require.True(t, isImageURL("https://i.redd.it/abc"))
	require.True(t, isImageURL("https://example.com/photo.JPG"))
	require.True(t, isImageURL("https://i.imgur.com/x.gifv"))
	require.False(t, isImageURL("https://reddit.com/r/memes/comments/1"))
}
