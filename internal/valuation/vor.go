package valuation

import (
	"sort"

	"github.com/jstittsworth/auction-copilot/internal/models"
)

// slotForPosition maps a primary position tag to the roster slot whose demand
// sets its replacement level. Outfield spots share the OF slot pool; DH
// competes for utility.
func slotForPosition(tag models.PositionTag) models.SlotKind {
	switch tag {
	case models.PositionCatcher:
		return models.SlotCatcher
	case models.PositionFirstBase:
		return models.SlotFirstBase
	case models.PositionSecondBase:
		return models.SlotSecondBase
	case models.PositionThirdBase:
		return models.SlotThirdBase
	case models.PositionShortstop:
		return models.SlotShortstop
	case models.PositionLeftField, models.PositionCenterField, models.PositionRightField:
		return models.SlotOutfield
	case models.PositionStarter:
		return models.SlotStarter
	case models.PositionReliever:
		return models.SlotReliever
	}
	return models.SlotUtility
}

// computeVOR subtracts a replacement-level baseline from each player's
// weighted-z total. The baseline for a position is the weighted-z of the
// Nth-ranked eligible player, N = teams x starting slots + cushion. Hitters
// are also eligible at utility; the best (lowest) eligible baseline applies.
func (p *Pipeline) computeVOR(hitters, pitchers []*models.Player) {
	baselines := make(map[models.SlotKind]float64)

	group := func(pool []*models.Player, slot models.SlotKind) []*models.Player {
		out := make([]*models.Player, 0, len(pool))
		for _, pl := range pool {
			if slotForPosition(pl.Position) == slot {
				out = append(out, pl)
			}
		}
		return out
	}

	hitterSlots := []models.SlotKind{
		models.SlotCatcher, models.SlotFirstBase, models.SlotSecondBase,
		models.SlotThirdBase, models.SlotShortstop, models.SlotOutfield,
	}
	for _, slot := range hitterSlots {
		baselines[slot] = p.baselineAt(group(hitters, slot), slot)
	}
	// Utility draws from the whole hitter pool.
	baselines[models.SlotUtility] = p.baselineAt(hitters, models.SlotUtility)

	baselines[models.SlotStarter] = p.baselineAt(group(pitchers, models.SlotStarter), models.SlotStarter)
	baselines[models.SlotReliever] = p.baselineAt(group(pitchers, models.SlotReliever), models.SlotReliever)

	for _, pl := range hitters {
		primary := baselines[slotForPosition(pl.Position)]
		util := baselines[models.SlotUtility]
		base := primary
		if util < base {
			base = util
		}
		pl.VOR = pl.WeightedZ - base
	}
	for _, pl := range pitchers {
		pl.VOR = pl.WeightedZ - baselines[slotForPosition(pl.Position)]
	}
}

// baselineAt ranks the eligible pool by weighted-z and returns the value at
// replacement rank for the slot's league-wide demand.
func (p *Pipeline) baselineAt(pool []*models.Player, slot models.SlotKind) float64 {
	if len(pool) == 0 {
		return 0
	}

	ranked := append([]*models.Player(nil), pool...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].WeightedZ != ranked[j].WeightedZ {
			return ranked[i].WeightedZ > ranked[j].WeightedZ
		}
		return ranked[i].Name < ranked[j].Name
	})

	n := p.cfg.League.TeamCount*p.cfg.League.StartingSlots(slot) + p.cfg.ReplacementCushion
	if n < 1 {
		n = 1
	}
	if n > len(ranked) {
		n = len(ranked)
	}
	return ranked[n-1].WeightedZ
}
