package gemini_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/aretw0/ason/pkg/adapters/gemini"
	"github.com/aretw0/ason/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_Generate(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
		paths  []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(data))
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"return 5"}]}}]}`)
	}))
	t.Cleanup(srv.Close)

	g, err := gemini.New(context.Background(), "test-key",
		gemini.WithBaseURL(srv.URL+"/"),
		gemini.WithModel("test-model"),
		gemini.WithTemperature(0),
	)
	require.NoError(t, err)

	out, err := g.Generate(context.Background(), ports.Prompt{Instructions: "api listing", Input: "Compute 2+3"})
	require.NoError(t, err)
	assert.Equal(t, "return 5", out)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 1)
	assert.Contains(t, paths[0], "test-model:generateContent")
	assert.Contains(t, bodies[0], "api listing")
	assert.Contains(t, bodies[0], "Compute 2+3")
}

func TestGenerator_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":400,"message":"bad prompt","status":"INVALID_ARGUMENT"}}`, http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	g, err := gemini.New(context.Background(), "test-key", gemini.WithBaseURL(srv.URL+"/"))
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), ports.Prompt{Input: "x"})
	assert.Error(t, err)
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := gemini.New(context.Background(), "")
	assert.Error(t, err)
}
