package valuation

import (
	"sort"

	"github.com/jstittsworth/auction-copilot/internal/models"
)

// RecomputeScarcity measures, per position, the drop from the best undrafted
// eligible player to the last one the league still demands: current value of
// the best minus the Kth-best, K = open starting slots at that position
// across all teams. Sets each undrafted player's Scarcity to their position's
// index and returns the per-slot table.
func (p *Pipeline) RecomputeScarcity(state *models.DraftState) map[models.SlotKind]float64 {
	demand := make(map[models.SlotKind]int)
	for _, t := range state.Teams {
		if t.Roster == nil {
			continue
		}
		for i := range t.Roster.Slots {
			s := &t.Roster.Slots[i]
			if s.Kind.IsStarting() && !s.Filled() {
				demand[s.Kind]++
			}
		}
	}
	// Before any snapshot arrives no team rosters exist yet; demand is the
	// full league template.
	if len(state.Teams) == 0 {
		for _, k := range state.League.RosterTemplate {
			if k.IsStarting() {
				demand[k] += state.League.TeamCount
			}
		}
	}

	drafted := draftedNames(state)
	bySlot := make(map[models.SlotKind][]*models.Player)
	for _, pl := range p.players {
		if drafted[pl.Name] {
			continue
		}
		slot := slotForPosition(pl.Position)
		bySlot[slot] = append(bySlot[slot], pl)
	}

	index := make(map[models.SlotKind]float64, len(bySlot))
	for slot, pool := range bySlot {
		k := demand[slot]
		if k <= 0 || len(pool) == 0 {
			index[slot] = 0
			continue
		}
		sort.SliceStable(pool, func(i, j int) bool {
			if pool[i].CurrentValue != pool[j].CurrentValue {
				return pool[i].CurrentValue > pool[j].CurrentValue
			}
			return pool[i].Name < pool[j].Name
		})
		last := k
		if last > len(pool) {
			last = len(pool)
		}
		index[slot] = pool[0].CurrentValue - pool[last-1].CurrentValue
	}

	for slot, pool := range bySlot {
		for _, pl := range pool {
			pl.Scarcity = index[slot]
		}
	}
	return index
}
