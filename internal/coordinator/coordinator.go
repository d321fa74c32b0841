package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jstittsworth/auction-copilot/internal/analysis"
	"github.com/jstittsworth/auction-copilot/internal/draft"
	"github.com/jstittsworth/auction-copilot/internal/models"
	"github.com/jstittsworth/auction-copilot/internal/valuation"
	"github.com/jstittsworth/auction-copilot/internal/view"
	"github.com/jstittsworth/auction-copilot/pkg/config"
)

// rankingRows is how many undrafted players the view table carries.
const rankingRows = 15

// watchdogSilence is how long without a snapshot before the view warns that
// the scraper has gone quiet.
const watchdogSilence = 15 * time.Second

type command interface{ isCommand() }

type snapshotCmd struct{ snap *models.Snapshot }
type refreshCmd struct{}
type checkpointCmd struct{}

func (snapshotCmd) isCommand()   {}
func (refreshCmd) isCommand()    {}
func (checkpointCmd) isCommand() {}

// Persister is the durable log the coordinator writes through.
type Persister interface {
	AppendDiff(diff *models.StateDiff) error
	Checkpoint(state *models.DraftState) error
}

// Analyzer is the analysis request pipeline contract.
type Analyzer interface {
	Request(fingerprint, prompt string) bool
	Cancel()
	Shutdown()
	InFlight() bool
}

// Coordinator owns the single mutable DraftState behind an exclusive writer
// discipline: every mutation happens on the Run goroutine, fed by the command
// channel. External workers send messages; they never touch state.
type Coordinator struct {
	cfg      *config.Config
	machine  *draft.Machine
	pipeline *valuation.Pipeline
	store    Persister
	analyzer Analyzer
	view     *view.Publisher
	log      *logrus.Entry

	commands     chan command
	lastSnapshot time.Time
	diverged     bool
}

func New(cfg *config.Config, machine *draft.Machine, pipeline *valuation.Pipeline,
	store Persister, analyzer Analyzer, publisher *view.Publisher, log *logrus.Logger) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		machine:  machine,
		pipeline: pipeline,
		store:    store,
		analyzer: analyzer,
		view:     publisher,
		log:      log.WithField("component", "coordinator"),
		commands: make(chan command, 64),
	}
}

// SubmitSnapshot enqueues a scraper snapshot. Snapshots from one connection
// arrive here in order and are processed in order.
func (c *Coordinator) SubmitSnapshot(snap *models.Snapshot) {
	c.commands <- snapshotCmd{snap: snap}
}

// RequestAnalysisRefresh is the operator's manual trigger; it bypasses the
// configured trigger policy.
func (c *Coordinator) RequestAnalysisRefresh() {
	c.commands <- refreshCmd{}
}

// RequestCheckpoint enqueues a checkpoint; the write happens on the loop
// goroutine, which owns the persistence handle.
func (c *Coordinator) RequestCheckpoint() {
	c.commands <- checkpointCmd{}
}

// Diverged reports whether the engine hit an unresolvable history divergence;
// the process should exit with code 2 after shutdown.
func (c *Coordinator) Diverged() bool {
	return c.diverged
}

// Run is the event loop. Blocks until ctx is cancelled; on the way out it
// cancels in-flight analysis and writes a final checkpoint, returning only
// after the checkpoint is acknowledged.
func (c *Coordinator) Run(ctx context.Context) error {
	c.publishView()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return c.shutdown()

		case cmd := <-c.commands:
			switch cmd := cmd.(type) {
			case snapshotCmd:
				c.handleSnapshot(cmd.snap)
			case refreshCmd:
				c.dispatchAnalysis(true)
			case checkpointCmd:
				if err := c.store.Checkpoint(c.machine.State()); err != nil {
					c.log.WithError(err).Error("Periodic checkpoint failed")
				}
			}

		case <-ticker.C:
			c.tick()
		}
	}
}

func (c *Coordinator) shutdown() error {
	c.analyzer.Shutdown()
	if err := c.store.Checkpoint(c.machine.State()); err != nil {
		return fmt.Errorf("final checkpoint failed: %w", err)
	}
	c.log.Info("Final checkpoint acknowledged")
	return nil
}

func (c *Coordinator) handleSnapshot(snap *models.Snapshot) {
	c.lastSnapshot = time.Now()

	diff, err := c.machine.Apply(snap)
	switch {
	case errors.Is(err, draft.ErrHistoryDivergence):
		c.diverged = true
		c.log.WithError(err).Error("History divergence, entering safe mode")
		c.analyzer.Cancel()
		c.view.Update(func(m *view.Model) {
			m.SafeMode = true
			m.Status = "SAFE MODE: history divergence, restart required"
		})
		return
	case errors.Is(err, draft.ErrSnapshotGap):
		c.view.Update(func(m *view.Model) {
			m.Status = "warning: snapshot gap, waiting for missing picks"
		})
	case err != nil:
		c.log.WithError(err).Warn("Snapshot rejected")
		return
	}

	if diff == nil || diff.Empty() {
		return
	}

	// Committed picks are durable before any downstream effect runs.
	if err := c.store.AppendDiff(diff); err != nil {
		c.log.WithError(err).Error("Failed to persist diff")
	}

	state := c.machine.State()
	c.pipeline.RecomputeInflation(state)
	c.publishView()

	if diff.NominationChanged {
		c.dispatchAnalysis(false)
	}
}

// dispatchAnalysis evaluates the trigger policy and hands a request to the
// pipeline. Manual refreshes bypass the policy.
func (c *Coordinator) dispatchAnalysis(manual bool) {
	state := c.machine.State()
	if state.SafeMode || state.Nomination == nil {
		if state.Nomination == nil {
			c.analyzer.Cancel()
		}
		return
	}

	if !manual && c.cfg.LLMAnalysisTrigger == config.AnalysisTriggerMyTurnOnly && !c.myTurn(state) {
		return
	}

	clone := state.Clone()
	prompt := analysis.BuildPrompt(clone, c.pipeline, c.cfg.AnalysisTopPlayers)
	if c.analyzer.Request(state.AnalysisFingerprint(), prompt) {
		c.view.ResetAnalysis()
	}
}

// myTurn: the operator has a decision to make while another team holds the
// high bid (or nobody has bid yet). Once the operator is the high bidder the
// next move belongs to the room.
func (c *Coordinator) myTurn(state *models.DraftState) bool {
	nom := state.Nomination
	if nom == nil {
		return false
	}
	me, ok := state.Teams[state.League.MyTeamID]
	if !ok {
		return true
	}
	return nom.CurrentBidder != me.ID && nom.CurrentBidder != me.Name
}

func (c *Coordinator) tick() {
	state := c.machine.State()
	changed := false

	if state.Nomination != nil && state.Nomination.TimeRemaining > 0 {
		state.Nomination.TimeRemaining--
		changed = true
	}

	if !c.lastSnapshot.IsZero() && time.Since(c.lastSnapshot) > watchdogSilence && !state.SafeMode {
		c.view.Update(func(m *view.Model) {
			m.Status = "warning: no snapshots from scraper"
		})
	}

	if changed {
		c.publishView()
	}
}

func (c *Coordinator) publishView() {
	state := c.machine.State()
	scarcity := c.pipeline.RecomputeScarcity(state)

	undrafted := c.pipeline.UndraftedByValue(state)
	if len(undrafted) > rankingRows {
		undrafted = undrafted[:rankingRows]
	}

	rankings := make([]view.RankedPlayer, 0, len(undrafted))
	for _, pl := range undrafted {
		rankings = append(rankings, view.RankedPlayer{
			Name:         pl.Name,
			Position:     string(pl.Position),
			BaseValue:    pl.BaseValue,
			CurrentValue: pl.CurrentValue,
			Scarcity:     pl.Scarcity,
			ADP:          pl.ADP,
		})
	}

	c.view.Update(func(m *view.Model) {
		m.SafeMode = state.SafeMode
		m.DraftComplete = state.Complete
		m.Inflation = c.pipeline.Inflation()
		m.PickCount = len(state.Picks)
		m.Rankings = rankings
		m.Scarcity = scarcity

		if me, ok := state.Teams[state.League.MyTeamID]; ok {
			m.MyBudget = me.Budget
			if me.Roster != nil {
				m.MyOpenSlots = me.Roster.OpenCount()
			}
		} else {
			m.MyBudget = state.League.StartingBudget
			m.MyOpenSlots = state.League.RosterSize()
		}

		if nom := state.Nomination; nom != nil {
			card := &view.NominationCard{
				Player:        nom.PlayerName,
				Position:      nom.Position,
				NominatedBy:   nom.NominatedBy,
				CurrentBid:    nom.CurrentBid,
				CurrentBidder: nom.CurrentBidder,
				TimeRemaining: nom.TimeRemaining,
			}
			if pl, ok := c.pipeline.Lookup(nom.PlayerName); ok {
				card.BidCeiling = pl.CurrentValue
			}
			m.Nomination = card
		} else {
			m.Nomination = nil
		}

		switch {
		case state.SafeMode:
			m.Status = "SAFE MODE: history divergence, restart required"
		case state.Complete:
			m.Status = "draft complete"
		case len(state.Picks) == 0 && state.Nomination == nil:
			m.Status = "waiting for scraper"
		default:
			m.Status = "live"
		}
	})
}
