package analysis

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// streamSession is one in-flight fake request; the test feeds its chunks.
type streamSession struct {
	ctx    context.Context
	chunks chan string
}

// fakeStream is a hand-driven StreamClient: the test controls when chunks
// arrive and observes cancellation at chunk boundaries.
type fakeStream struct {
	calls    int32
	sessions chan *streamSession
}

func newFakeStream() *fakeStream {
	return &fakeStream{sessions: make(chan *streamSession, 16)}
}

func (f *fakeStream) Timeout() time.Duration { return 5 * time.Second }

func (f *fakeStream) Stream(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	sess := &streamSession{ctx: ctx, chunks: make(chan string, 16)}
	f.sessions <- sess

	var full strings.Builder
	for {
		select {
		case <-ctx.Done():
			return full.String(), ctx.Err()
		case chunk, ok := <-sess.chunks:
			if !ok {
				return full.String(), nil
			}
			full.WriteString(chunk)
			onChunk(chunk)
		}
	}
}

type recorder struct {
	mu       sync.Mutex
	chunks   []string
	complete []string
	errs     []error
}

func newTestEvents() (Events, *recorder) {
	rec := &recorder{}
	return Events{
		OnChunk: func(_, chunk string) {
			rec.mu.Lock()
			rec.chunks = append(rec.chunks, chunk)
			rec.mu.Unlock()
		},
		OnComplete: func(_, full string) {
			rec.mu.Lock()
			rec.complete = append(rec.complete, full)
			rec.mu.Unlock()
		},
		OnError: func(_ string, err error) {
			rec.mu.Lock()
			rec.errs = append(rec.errs, err)
			rec.mu.Unlock()
		},
	}, rec
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func TestSameFingerprintIsNoOp(t *testing.T) {
	stream := newFakeStream()
	events, _ := newTestEvents()
	p := NewPipeline(stream, events, quietLogger())

	assert.True(t, p.Request("fp1", "prompt"))
	sess := <-stream.sessions
	assert.False(t, p.Request("fp1", "prompt"))

	// Exactly one upstream call was made.
	assert.Equal(t, int32(1), atomic.LoadInt32(&stream.calls))

	close(sess.chunks)
	p.Shutdown()
}

func TestSupersessionCancelsInFlight(t *testing.T) {
	stream := newFakeStream()
	events, rec := newTestEvents()
	p := NewPipeline(stream, events, quietLogger())

	require.True(t, p.Request("fp1", "prompt for X"))
	first := <-stream.sessions
	first.chunks <- "X partial "

	// Different fingerprint supersedes the in-flight request.
	require.True(t, p.Request("fp2", "prompt for Y"))
	second := <-stream.sessions

	// The superseded request observes cancellation within one chunk read.
	select {
	case <-first.ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("superseded request was not cancelled")
	}
	assert.NoError(t, second.ctx.Err())

	second.chunks <- "Y complete"
	close(second.chunks)

	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.complete) == 1
	}, 2*time.Second, 10*time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	// Only the surviving request completes; the view never sees interleaved
	// text from the superseded one after the switch.
	assert.Equal(t, []string{"Y complete"}, rec.complete)
	assert.Equal(t, "Y complete", rec.chunks[len(rec.chunks)-1])
	assert.Equal(t, int32(2), atomic.LoadInt32(&stream.calls))
}

func TestUpstreamErrorSurfacedNonFatal(t *testing.T) {
	events, rec := newTestEvents()
	p := NewPipeline(&errorStream{}, events, quietLogger())

	require.True(t, p.Request("fp1", "prompt"))

	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.errs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	rec.mu.Lock()
	assert.ErrorIs(t, rec.errs[0], ErrLLMUnavailable)
	rec.mu.Unlock()

	// A later nomination retries.
	assert.True(t, p.Request("fp2", "prompt"))
	p.Shutdown()
}

type errorStream struct{}

func (e *errorStream) Timeout() time.Duration { return time.Second }

func (e *errorStream) Stream(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	return "", ErrLLMUnavailable
}

func TestCancelStopsInFlight(t *testing.T) {
	stream := newFakeStream()
	events, rec := newTestEvents()
	p := NewPipeline(stream, events, quietLogger())

	require.True(t, p.Request("fp1", "prompt"))
	sess := <-stream.sessions
	p.Cancel()

	select {
	case <-sess.ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not reach the in-flight request")
	}

	require.Eventually(t, func() bool { return !p.InFlight() }, 2*time.Second, 10*time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Empty(t, rec.complete)
	assert.Empty(t, rec.errs)
}
