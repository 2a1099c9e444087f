package roast

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lazylama/memeswap/internal/model"
)

func TestGenerator_NoCredential(t *testing.T) {
	g := New("", "", "")

	_, err := g.Generate(context.Background(), []byte("img"), "image/jpeg", "")
	require.ErrorIs(t, err, model.ErrCredentialMissing)
}

func TestGenerator_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "grok-beta", req["model"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  that haircut called, it wants bail money  "}}]}`))
	}))
	defer srv.Close()

	g := New("test-key", srv.URL, "")

	text, err := g.Generate(context.Background(), []byte("jpeg-bytes"), "image/jpeg", "savage")
	require.NoError(t, err)
	require.Equal(t, "that haircut called, it wants bail money", text)
}

func TestGenerator_EmptyCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	g := New("test-key", srv.URL, "")

	_, err := g.Generate(context.Background(), []byte("jpeg"), "image/jpeg", "")
	require.ErrorIs(t, err, model.ErrGenerationUnavailable)
}
