package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jstittsworth/auction-copilot/internal/models"
	"github.com/jstittsworth/auction-copilot/internal/valuation"
)

// BuildPrompt assembles the analysis prompt from a point-in-time state clone.
// Deterministic: identical state and valuations produce identical text.
func BuildPrompt(state *models.DraftState, pipe *valuation.Pipeline, topN int) string {
	var b strings.Builder

	b.WriteString("Live salary-cap auction draft.\n\n")

	if nom := state.Nomination; nom != nil {
		fmt.Fprintf(&b, "ON THE BLOCK: %s (%s), nominated by %s. Current bid $%d",
			nom.PlayerName, nom.Position, nom.NominatedBy, nom.CurrentBid)
		if nom.CurrentBidder != "" {
			fmt.Fprintf(&b, " by %s", nom.CurrentBidder)
		}
		b.WriteString(".\n")
		if pl, ok := pipe.Lookup(nom.PlayerName); ok {
			fmt.Fprintf(&b, "My valuation: base $%.0f, inflation-adjusted $%.0f, positional scarcity %.1f.\n",
				pl.BaseValue, pl.CurrentValue, pl.Scarcity)
		}
		b.WriteString("\n")
	}

	if me, ok := state.Teams[state.League.MyTeamID]; ok {
		fmt.Fprintf(&b, "MY TEAM (%s): $%d remaining", me.Name, me.Budget)
		if me.Roster != nil {
			open := openSlotSummary(me.Roster)
			if open != "" {
				fmt.Fprintf(&b, ", open slots: %s", open)
			}
		}
		b.WriteString(".\n\n")
	}

	fmt.Fprintf(&b, "Inflation multiplier: %.3f (>1 means the remaining pool is under-priced).\n\n", pipe.Inflation())

	undrafted := pipe.UndraftedByValue(state)
	if len(undrafted) > topN {
		undrafted = undrafted[:topN]
	}
	b.WriteString("TOP UNDRAFTED PLAYERS (value / scarcity):\n")
	for _, pl := range undrafted {
		fmt.Fprintf(&b, "- %s (%s): $%.0f / %.1f\n", pl.Name, pl.Position, pl.CurrentValue, pl.Scarcity)
	}
	b.WriteString("\n")

	if posture := categoryPosture(state, pipe); posture != "" {
		fmt.Fprintf(&b, "CATEGORY POSTURE: %s\n\n", posture)
	}

	b.WriteString("Recommend a bid ceiling for the nominated player and explain briefly.")
	return b.String()
}

func openSlotSummary(roster *models.Roster) string {
	counts := make(map[models.SlotKind]int)
	order := []models.SlotKind{}
	for i := range roster.Slots {
		s := &roster.Slots[i]
		if s.Filled() {
			continue
		}
		if counts[s.Kind] == 0 {
			order = append(order, s.Kind)
		}
		counts[s.Kind]++
	}
	parts := make([]string, 0, len(order))
	for _, k := range order {
		parts = append(parts, fmt.Sprintf("%dx%s", counts[k], k))
	}
	return strings.Join(parts, ", ")
}

// categoryPosture compares the operator's summed per-category z-scores of
// drafted players against the league mean, naming the categories they trail
// or lead.
func categoryPosture(state *models.DraftState, pipe *valuation.Pipeline) string {
	me, ok := state.Teams[state.League.MyTeamID]
	if !ok || len(state.Teams) < 2 {
		return ""
	}

	teamTotals := func(t *models.Team) map[string]float64 {
		totals := make(map[string]float64)
		for i := range t.Picks {
			pl, ok := pipe.ByID(t.Picks[i].PlayerID)
			if !ok {
				continue
			}
			for stat, z := range pl.ZScores {
				totals[stat] += z
			}
		}
		return totals
	}

	mine := teamTotals(me)
	league := make(map[string]float64)
	for _, t := range state.Teams {
		for stat, v := range teamTotals(t) {
			league[stat] += v
		}
	}

	var behind, ahead []string
	stats := make([]string, 0, len(league))
	for stat := range league {
		stats = append(stats, stat)
	}
	sort.Strings(stats)
	n := float64(len(state.Teams))
	for _, stat := range stats {
		avg := league[stat] / n
		switch {
		case mine[stat] < avg-0.5:
			behind = append(behind, stat)
		case mine[stat] > avg+0.5:
			ahead = append(ahead, stat)
		}
	}

	var parts []string
	if len(ahead) > 0 {
		parts = append(parts, "ahead on "+strings.Join(ahead, ", "))
	}
	if len(behind) > 0 {
		parts = append(parts, "behind on "+strings.Join(behind, ", "))
	}
	return strings.Join(parts, "; ")
}
