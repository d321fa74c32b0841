package analysis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// StreamClient is the outbound analysis transport.
type StreamClient interface {
	Stream(ctx context.Context, prompt string, onChunk func(string)) (string, error)
	Timeout() time.Duration
}

// Events receives the pipeline's streaming output. Callbacks run on the
// request goroutine; implementations must be safe for that.
type Events struct {
	OnChunk    func(fingerprint, chunk string)
	OnComplete func(fingerprint, full string)
	OnError    func(fingerprint string, err error)
}

type request struct {
	id          string
	fingerprint string
	cancel      context.CancelFunc
	done        chan struct{}
}

// Pipeline permits at most one outstanding analysis request, keyed by
// fingerprint. A same-fingerprint request is a no-op; a different fingerprint
// cancels the in-flight request (partial output discarded) and starts fresh.
type Pipeline struct {
	client StreamClient
	events Events
	log    *logrus.Entry

	mu      sync.Mutex
	current *request
}

func NewPipeline(client StreamClient, events Events, log *logrus.Logger) *Pipeline {
	return &Pipeline{
		client: client,
		events: events,
		log:    log.WithField("component", "analysis"),
	}
}

// Request dispatches analysis for the fingerprint unless it is already in
// flight. Reports whether a new request was started.
func (p *Pipeline) Request(fingerprint, prompt string) bool {
	p.mu.Lock()
	if p.current != nil && p.current.fingerprint == fingerprint {
		p.mu.Unlock()
		return false
	}
	if p.current != nil {
		p.current.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.client.Timeout())
	req := &request{
		id:          uuid.NewString(),
		fingerprint: fingerprint,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	p.current = req
	p.mu.Unlock()

	p.log.WithFields(logrus.Fields{
		"request_id":  req.id,
		"fingerprint": fingerprint,
	}).Info("Analysis dispatched")

	go p.run(ctx, req, prompt)
	return true
}

func (p *Pipeline) run(ctx context.Context, req *request, prompt string) {
	defer close(req.done)
	defer req.cancel()

	full, err := p.client.Stream(ctx, prompt, func(chunk string) {
		if p.isCurrent(req) && p.events.OnChunk != nil {
			p.events.OnChunk(req.fingerprint, chunk)
		}
	})

	p.mu.Lock()
	active := p.current == req
	if active {
		p.current = nil
	}
	p.mu.Unlock()

	if err != nil {
		err = classify(err)
		if errors.Is(err, ErrLLMCancelled) {
			p.log.WithField("request_id", req.id).Debug("Analysis cancelled")
			return
		}
		p.log.WithError(err).WithField("request_id", req.id).Warn("Analysis failed")
		if active && p.events.OnError != nil {
			p.events.OnError(req.fingerprint, err)
		}
		return
	}

	if active && p.events.OnComplete != nil {
		p.events.OnComplete(req.fingerprint, full)
	}
}

func (p *Pipeline) isCurrent(req *request) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current == req
}

// Cancel aborts any in-flight request.
func (p *Pipeline) Cancel() {
	p.mu.Lock()
	req := p.current
	p.current = nil
	p.mu.Unlock()
	if req != nil {
		req.cancel()
	}
}

// Shutdown cancels the in-flight request and waits for its goroutine to
// observe the cancellation.
func (p *Pipeline) Shutdown() {
	p.mu.Lock()
	req := p.current
	p.current = nil
	p.mu.Unlock()
	if req != nil {
		req.cancel()
		<-req.done
	}
}

// InFlight reports whether a request is outstanding, for the view's status line.
func (p *Pipeline) InFlight() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil
}
