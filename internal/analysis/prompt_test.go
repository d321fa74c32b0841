package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jstittsworth/auction-copilot/internal/models"
	"github.com/jstittsworth/auction-copilot/internal/valuation"
)

func promptFixture() (*models.DraftState, *valuation.Pipeline) {
	league := models.LeagueSettings{
		TeamCount:      2,
		StartingBudget: 260,
		MinimumBid:     1,
		RosterTemplate: []models.SlotKind{
			models.SlotFirstBase, models.SlotOutfield, models.SlotUtility, models.SlotBench,
		},
		MyTeamID: "team_1",
	}
	players := []*models.Player{
		{ID: 1, Name: "Alpha One", Position: models.PositionFirstBase, Stats: map[string]float64{
			models.StatPlateAppearances: 600, models.StatRuns: 95, models.StatHomeRuns: 32,
			models.StatRBI: 100, models.StatStolenBases: 8, models.StatWalks: 65, models.StatAverage: 0.295,
		}},
		{ID: 2, Name: "Bravo Two", Position: models.PositionCenterField, Stats: map[string]float64{
			models.StatPlateAppearances: 560, models.StatRuns: 70, models.StatHomeRuns: 18,
			models.StatRBI: 62, models.StatStolenBases: 22, models.StatWalks: 48, models.StatAverage: 0.270,
		}},
		{ID: 3, Name: "Charlie Three", Position: models.PositionFirstBase, Stats: map[string]float64{
			models.StatPlateAppearances: 480, models.StatRuns: 50, models.StatHomeRuns: 10,
			models.StatRBI: 45, models.StatStolenBases: 2, models.StatWalks: 30, models.StatAverage: 0.250,
		}},
	}

	pipe := valuation.NewPipeline(valuation.Config{
		League:                league,
		HitterCategories:      models.HitterCategories(nil),
		PitcherCategories:     models.PitcherCategories(nil),
		HittingBudgetFraction: 0.65,
		ReplacementCushion:    1,
	}, players, quietLogger())
	pipe.Recompute()

	state := &models.DraftState{League: league, Teams: make(map[string]*models.Team)}
	state.Team("team_1")
	state.Team("team_2")
	state.Nomination = &models.Nomination{
		PlayerName:  "Alpha One",
		Position:    "1B",
		NominatedBy: "team_2",
		CurrentBid:  14,
	}
	return state, pipe
}

func TestBuildPromptContent(t *testing.T) {
	state, pipe := promptFixture()
	prompt := BuildPrompt(state, pipe, 5)

	assert.Contains(t, prompt, "ON THE BLOCK: Alpha One (1B)")
	assert.Contains(t, prompt, "Current bid $14")
	assert.Contains(t, prompt, "MY TEAM")
	assert.Contains(t, prompt, "$260 remaining")
	assert.Contains(t, prompt, "Inflation multiplier: 1.000")
	assert.Contains(t, prompt, "TOP UNDRAFTED PLAYERS")
	assert.Contains(t, prompt, "Bravo Two")
	assert.Contains(t, prompt, "bid ceiling")
}

func TestBuildPromptDeterministic(t *testing.T) {
	state, pipe := promptFixture()
	first := BuildPrompt(state, pipe, 5)
	for i := 0; i < 5; i++ {
		require.Equal(t, first, BuildPrompt(state, pipe, 5))
	}
}

func TestBuildPromptHonorsTopN(t *testing.T) {
	state, pipe := promptFixture()
	prompt := BuildPrompt(state, pipe, 1)

	assert.Contains(t, prompt, "Alpha One")
	assert.NotContains(t, prompt, "Charlie Three")
}
