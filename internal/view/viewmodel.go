package view

import (
	"sync"

	"github.com/jstittsworth/auction-copilot/internal/models"
)

// RankedPlayer is one row of the value table.
type RankedPlayer struct {
	Name         string  `json:"name"`
	Position     string  `json:"position"`
	BaseValue    float64 `json:"base_value"`
	CurrentValue float64 `json:"current_value"`
	Scarcity     float64 `json:"scarcity"`
	ADP          float64 `json:"adp"`
}

// NominationCard is the on-the-block panel, including the engine's
// recommended bid ceiling.
type NominationCard struct {
	Player        string  `json:"player"`
	Position      string  `json:"position"`
	NominatedBy   string  `json:"nominated_by"`
	CurrentBid    int     `json:"current_bid"`
	CurrentBidder string  `json:"current_bidder"`
	TimeRemaining int     `json:"time_remaining"`
	BidCeiling    float64 `json:"bid_ceiling"`
}

// Model is the published view-model snapshot the terminal layer renders.
type Model struct {
	Status          string                      `json:"status"`
	SafeMode        bool                        `json:"safe_mode"`
	DraftComplete   bool                        `json:"draft_complete"`
	Inflation       float64                     `json:"inflation"`
	MyBudget        int                         `json:"my_budget"`
	MyOpenSlots     int                         `json:"my_open_slots"`
	PickCount       int                         `json:"pick_count"`
	Nomination      *NominationCard             `json:"nomination,omitempty"`
	Rankings        []RankedPlayer              `json:"rankings"`
	Scarcity        map[models.SlotKind]float64 `json:"scarcity"`
	Analysis        string                      `json:"analysis"`
	AnalysisPartial bool                        `json:"analysis_partial"`
	AnalysisError   string                      `json:"analysis_error,omitempty"`
}

// Publisher holds the latest view model behind a mutex and notifies one
// subscriber (the terminal renderer) on every update.
type Publisher struct {
	mu         sync.Mutex
	model      Model
	subscriber func(Model)
}

func NewPublisher() *Publisher {
	return &Publisher{model: Model{Status: "waiting for scraper", Inflation: 1.0}}
}

// Subscribe registers the render callback. The callback runs under the
// publisher lock; keep it cheap (copy out and signal).
func (p *Publisher) Subscribe(fn func(Model)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscriber = fn
}

// Update mutates the model and publishes it.
func (p *Publisher) Update(fn func(*Model)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.model)
	if p.subscriber != nil {
		p.subscriber(p.model)
	}
}

// AppendAnalysisChunk streams partial analysis into the model.
func (p *Publisher) AppendAnalysisChunk(chunk string) {
	p.Update(func(m *Model) {
		m.Analysis += chunk
		m.AnalysisPartial = true
		m.AnalysisError = ""
	})
}

// CompleteAnalysis replaces the streamed buffer with the final text.
func (p *Publisher) CompleteAnalysis(full string) {
	p.Update(func(m *Model) {
		m.Analysis = full
		m.AnalysisPartial = false
		m.AnalysisError = ""
	})
}

// ResetAnalysis clears the buffer when a new request supersedes the old one.
func (p *Publisher) ResetAnalysis() {
	p.Update(func(m *Model) {
		m.Analysis = ""
		m.AnalysisPartial = false
		m.AnalysisError = ""
	})
}

// FailAnalysis surfaces a non-fatal analysis error once.
func (p *Publisher) FailAnalysis(msg string) {
	p.Update(func(m *Model) {
		m.AnalysisPartial = false
		m.AnalysisError = msg
	})
}

// Current returns a copy of the latest model.
func (p *Publisher) Current() Model {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.model
}
