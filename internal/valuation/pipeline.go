package valuation

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/jstittsworth/auction-copilot/internal/models"
)

// Config carries the league parameters the pipeline needs.
type Config struct {
	League                models.LeagueSettings
	HitterCategories      []models.Category
	PitcherCategories     []models.Category
	HittingBudgetFraction float64
	ReplacementCushion    int
}

// Pipeline converts raw projections into auction dollar values: z-scores,
// value over replacement, budget-constrained dollar conversion, and
// inflation-adjusted current values. The player slice is shared with the rest
// of the engine; derived fields are mutated in place, identity never is.
type Pipeline struct {
	cfg       Config
	players   []*models.Player
	byID      map[int]*models.Player
	byName    map[string]*models.Player
	inflation float64
	log       *logrus.Entry
}

func NewPipeline(cfg Config, players []*models.Player, log *logrus.Logger) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		players:   players,
		byID:      make(map[int]*models.Player, len(players)),
		byName:    make(map[string]*models.Player, len(players)),
		inflation: 1.0,
		log:       log.WithField("component", "valuation"),
	}
	for _, pl := range players {
		p.byID[pl.ID] = pl
		if _, dup := p.byName[pl.Name]; !dup {
			p.byName[pl.Name] = pl
		}
	}
	return p
}

// Players returns the shared player slice.
func (p *Pipeline) Players() []*models.Player {
	return p.players
}

// Lookup finds a player by normalized name.
func (p *Pipeline) Lookup(name string) (*models.Player, bool) {
	pl, ok := p.byName[models.NormalizeName(name)]
	return pl, ok
}

// ByID finds a player by ID.
func (p *Pipeline) ByID(id int) (*models.Player, bool) {
	pl, ok := p.byID[id]
	return pl, ok
}

// Inflation returns the current inflation multiplier.
func (p *Pipeline) Inflation() float64 {
	return p.inflation
}

// Recompute runs the full static pipeline: z-scores, VOR, base dollar values.
// Called once after projections load; deterministic for identical inputs.
func (p *Pipeline) Recompute() {
	hitters, pitchers := p.pools()

	computeZScores(hitters, p.cfg.HitterCategories)
	computeZScores(pitchers, p.cfg.PitcherCategories)

	p.computeVOR(hitters, pitchers)

	total := p.totalPurchasable()
	hitterDollars := total * p.cfg.HittingBudgetFraction
	pitcherDollars := total - hitterDollars

	p.assignBaseValues(hitters, hitterDollars, p.startingHitterSlots())
	p.assignBaseValues(pitchers, pitcherDollars, p.startingPitcherSlots())

	for _, pl := range p.players {
		pl.CurrentValue = pl.BaseValue
	}
	p.inflation = 1.0

	p.log.WithFields(logrus.Fields{
		"players":         len(p.players),
		"total_dollars":   total,
		"hitter_dollars":  hitterDollars,
		"pitcher_dollars": pitcherDollars,
	}).Info("Valuations computed")
}

func (p *Pipeline) pools() (hitters, pitchers []*models.Player) {
	for _, pl := range p.players {
		if pl.Position.IsPitcher() {
			pitchers = append(pitchers, pl)
		} else {
			hitters = append(hitters, pl)
		}
	}
	return hitters, pitchers
}

// totalPurchasable is league money minus the mandatory minimum bid reserved
// for every roster slot.
func (p *Pipeline) totalPurchasable() float64 {
	l := p.cfg.League
	return float64(l.TeamCount*l.StartingBudget - l.TeamCount*l.RosterSize()*l.MinimumBid)
}

// startingHitterSlots counts hitter starting slots per team (incl. utility).
func (p *Pipeline) startingHitterSlots() int {
	n := 0
	for _, k := range p.cfg.League.RosterTemplate {
		switch k {
		case models.SlotCatcher, models.SlotFirstBase, models.SlotSecondBase,
			models.SlotThirdBase, models.SlotShortstop, models.SlotOutfield, models.SlotUtility:
			n++
		}
	}
	return n
}

func (p *Pipeline) startingPitcherSlots() int {
	n := 0
	for _, k := range p.cfg.League.RosterTemplate {
		if k == models.SlotStarter || k == models.SlotReliever {
			n++
		}
	}
	return n
}

// assignBaseValues scales VOR into dollars within one pool. The draftable
// pool is the top (teams x starting slots) players by VOR; the sum of their
// VOR anchors the dollar-per-VOR rate.
func (p *Pipeline) assignBaseValues(pool []*models.Player, dollars float64, startingSlots int) {
	if len(pool) == 0 {
		return
	}

	ranked := sortedByVOR(pool)
	topN := p.cfg.League.TeamCount * startingSlots
	if topN > len(ranked) {
		topN = len(ranked)
	}

	var totalVOR float64
	for _, pl := range ranked[:topN] {
		if pl.VOR > 0 {
			totalVOR += pl.VOR
		}
	}

	rate := 0.0
	if totalVOR > 0 {
		rate = dollars / totalVOR
	}

	for _, pl := range pool {
		v := pl.VOR * rate
		if v < 1 {
			v = 1
		}
		pl.BaseValue = v
	}
}

// RecomputeInflation rescales every undrafted player's current value after a
// state change. Returns the new multiplier.
func (p *Pipeline) RecomputeInflation(state *models.DraftState) float64 {
	l := p.cfg.League
	totalSlots := l.TeamCount * l.RosterSize()
	openSlots := totalSlots - len(state.Picks)
	if openSlots < 0 {
		openSlots = 0
	}

	spent := 0
	for i := range state.Picks {
		spent += state.Picks[i].Price
	}

	remainingDollars := float64(l.TeamCount*l.StartingBudget-spent) - float64(openSlots*l.MinimumBid)

	drafted := draftedNames(state)
	remainingValue := 0.0
	for _, pl := range p.topPool() {
		if !drafted[pl.Name] {
			remainingValue += pl.BaseValue
		}
	}

	inflation := 1.0
	if remainingValue > 0 {
		inflation = remainingDollars / remainingValue
	}
	p.inflation = inflation

	for _, pl := range p.players {
		if drafted[pl.Name] {
			continue
		}
		v := pl.BaseValue * inflation
		if v < 1 {
			v = 1
		}
		pl.CurrentValue = v
	}

	p.log.WithFields(logrus.Fields{
		"inflation":         inflation,
		"remaining_dollars": remainingDollars,
		"remaining_value":   remainingValue,
	}).Debug("Inflation recomputed")

	return inflation
}

// topPool is the draftable pool across both position groups.
func (p *Pipeline) topPool() []*models.Player {
	hitters, pitchers := p.pools()
	out := make([]*models.Player, 0, len(p.players))

	take := func(pool []*models.Player, slots int) {
		ranked := sortedByVOR(pool)
		n := p.cfg.League.TeamCount * slots
		if n > len(ranked) {
			n = len(ranked)
		}
		out = append(out, ranked[:n]...)
	}
	take(hitters, p.startingHitterSlots())
	take(pitchers, p.startingPitcherSlots())
	return out
}

// UndraftedByValue returns undrafted players ordered by current value.
func (p *Pipeline) UndraftedByValue(state *models.DraftState) []*models.Player {
	drafted := draftedNames(state)
	out := make([]*models.Player, 0, len(p.players))
	for _, pl := range p.players {
		if !drafted[pl.Name] {
			out = append(out, pl)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CurrentValue != out[j].CurrentValue {
			return out[i].CurrentValue > out[j].CurrentValue
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func draftedNames(state *models.DraftState) map[string]bool {
	drafted := make(map[string]bool, len(state.Picks))
	for i := range state.Picks {
		drafted[state.Picks[i].PlayerName] = true
	}
	return drafted
}

// sortedByVOR returns a copy ordered by VOR descending, name ascending on
// ties so valuations are bit-identical across runs.
func sortedByVOR(pool []*models.Player) []*models.Player {
	ranked := append([]*models.Player(nil), pool...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].VOR != ranked[j].VOR {
			return ranked[i].VOR > ranked[j].VOR
		}
		return ranked[i].Name < ranked[j].Name
	})
	return ranked
}
