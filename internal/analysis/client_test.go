package analysis

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jstittsworth/auction-copilot/pkg/config"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return NewClient(&config.Config{
		LLMAPIKey:         "test-key",
		LLMBaseURL:        baseURL,
		LLMModel:          "test-model",
		LLMMaxTokens:      256,
		LLMTimeoutSeconds: 5,
	}, quietLogger())
}

func sseChunk(text string) string {
	return fmt.Sprintf("event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":%q}}\n\n", text)
}

func TestStreamDecodesChunks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, text := range []string{"Bid up ", "to $42.", " Stop there."} {
			fmt.Fprint(w, sseChunk(text))
			flusher.Flush()
		}
		fmt.Fprint(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
		flusher.Flush()
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	var chunks []string
	full, err := client.Stream(context.Background(), "prompt", func(chunk string) {
		chunks = append(chunks, chunk)
	})
	require.NoError(t, err)
	assert.Equal(t, "Bid up to $42. Stop there.", full)
	assert.Equal(t, []string{"Bid up ", "to $42.", " Stop there."}, chunks)
}

func TestStreamCancelledAtChunkBoundary(t *testing.T) {
	release := make(chan struct{})
	closed := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(closed)
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, sseChunk("first chunk"))
		flusher.Flush()
		<-release
	}))
	defer server.Close()
	defer close(release)

	client := newTestClient(t, server.URL)
	ctx, cancel := context.WithCancel(context.Background())

	got := make(chan error, 1)
	go func() {
		_, err := client.Stream(ctx, "prompt", func(chunk string) {
			cancel()
		})
		got <- err
	}()

	select {
	case err := <-got:
		assert.ErrorIs(t, err, ErrLLMCancelled)
	case <-time.After(3 * time.Second):
		t.Fatal("stream did not observe cancellation")
	}
}

func TestStreamErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"type":"error"}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Stream(context.Background(), "prompt", func(string) {})
	assert.ErrorIs(t, err, ErrLLMUnavailable)
}

func TestStreamTimeoutClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := client.Stream(ctx, "prompt", func(string) {})
	assert.ErrorIs(t, err, ErrLLMTimeout)
}
