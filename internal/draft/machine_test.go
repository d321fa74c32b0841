package draft

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jstittsworth/auction-copilot/internal/models"
)

type stubResolver struct {
	players map[string]*models.Player
}

func (r *stubResolver) Lookup(name string) (*models.Player, bool) {
	pl, ok := r.players[models.NormalizeName(name)]
	return pl, ok
}

func newStubResolver(names ...string) *stubResolver {
	r := &stubResolver{players: make(map[string]*models.Player)}
	for i, name := range names {
		r.players[name] = &models.Player{ID: i + 1, Name: name, Position: models.PositionFirstBase}
	}
	return r
}

func testLeague() models.LeagueSettings {
	return models.LeagueSettings{
		TeamCount:      2,
		StartingBudget: 260,
		MinimumBid:     1,
		RosterTemplate: []models.SlotKind{
			models.SlotCatcher, models.SlotFirstBase, models.SlotSecondBase,
			models.SlotShortstop, models.SlotOutfield, models.SlotUtility, models.SlotBench,
		},
		MyTeamID: "team_1",
	}
}

func newTestMachine(names ...string) *Machine {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	state := &models.DraftState{
		League: testLeague(),
		Teams:  make(map[string]*models.Team),
	}
	return NewMachine(state, newStubResolver(names...), log)
}

// checkInvariants asserts the structural invariants that must hold after
// every state transition.
func checkInvariants(t *testing.T, state *models.DraftState) {
	t.Helper()

	// Pick ordinals strictly contiguous from 1.
	for i := range state.Picks {
		require.Equal(t, i+1, state.Picks[i].Ordinal)
	}

	// Budget conservation per team.
	for id, team := range state.Teams {
		assert.Equal(t, state.League.StartingBudget, team.Spent()+team.Budget, "team %s budget", id)
	}

	// Every rostered player fills exactly one slot on one team; no player is
	// picked twice.
	seenPicks := make(map[string]int)
	for i := range state.Picks {
		seenPicks[state.Picks[i].PlayerName]++
	}
	for name, n := range seenPicks {
		assert.Equal(t, 1, n, "player %s picked %d times", name, n)
	}
	rostered := make(map[string]int)
	for _, team := range state.Teams {
		for i := range team.Roster.Slots {
			s := &team.Roster.Slots[i]
			if s.Filled() {
				rostered[s.PlayerName]++
			}
		}
	}
	for name, n := range rostered {
		assert.Equal(t, 1, n, "player %s rostered in %d slots", name, n)
	}

	// An open nomination never names a drafted player.
	if state.Nomination != nil {
		assert.False(t, state.PlayerDrafted(state.Nomination.PlayerName))
	}
}

func pick(ordinal int, team, player string, price int) models.SnapshotPick {
	return models.SnapshotPick{Ordinal: ordinal, TeamID: team, Player: player, Position: "1B", Price: price}
}

func TestApplyNewPicks(t *testing.T) {
	m := newTestMachine("Alpha One", "Bravo Two")

	diff, err := m.Apply(&models.Snapshot{
		Picks: []models.SnapshotPick{
			pick(1, "team_1", "Alpha One", 40),
			pick(2, "team_2", "Bravo Two", 12),
		},
		Teams: []models.SnapshotTeam{
			{TeamID: "team_1", Name: "Sluggers", Budget: 220},
			{TeamID: "team_2", Name: "Aces", Budget: 248},
		},
		MyTeamID: "team_1",
	})
	require.NoError(t, err)
	require.Len(t, diff.NewPicks, 2)
	assert.True(t, diff.BudgetsChanged)

	state := m.State()
	assert.Equal(t, 2, state.LastOrdinal)
	assert.Equal(t, 220, state.Teams["team_1"].Budget)
	assert.Equal(t, "Sluggers", state.Teams["team_1"].Name)
	assert.True(t, state.Teams["team_1"].IsMine)
	checkInvariants(t, state)
}

func TestDuplicateSnapshotIsIdempotent(t *testing.T) {
	m := newTestMachine("Alpha One")
	snap := &models.Snapshot{
		Picks: []models.SnapshotPick{pick(1, "team_1", "Alpha One", 60)},
		Teams: []models.SnapshotTeam{{TeamID: "team_1", Budget: 200}},
	}

	diff1, err := m.Apply(snap)
	require.NoError(t, err)
	require.Len(t, diff1.NewPicks, 1)
	fp1 := m.State().Fingerprint()

	diff2, err := m.Apply(snap)
	require.NoError(t, err)
	assert.Empty(t, diff2.NewPicks)
	assert.False(t, diff2.NominationChanged)

	assert.Len(t, m.State().Picks, 1)
	assert.Equal(t, fp1, m.State().Fingerprint())
	checkInvariants(t, m.State())
}

func TestSnapshotGapHeldThenEscalated(t *testing.T) {
	m := newTestMachine("Alpha One", "Bravo Two", "Charlie Three", "Delta Four")
	gapped := &models.Snapshot{
		Picks: []models.SnapshotPick{
			pick(1, "team_1", "Alpha One", 10),
			pick(2, "team_2", "Bravo Two", 10),
			pick(4, "team_2", "Delta Four", 10),
		},
	}

	// First delivery: contiguous prefix applies, the gapped tail is held.
	diff, err := m.Apply(gapped)
	require.NoError(t, err)
	assert.Len(t, diff.NewPicks, 2)
	assert.Equal(t, 2, m.State().LastOrdinal)

	// Two more gapped snapshots exhaust the retry budget.
	_, err = m.Apply(gapped)
	require.NoError(t, err)
	_, err = m.Apply(gapped)
	assert.ErrorIs(t, err, ErrSnapshotGap)

	// Pick 4 is still not applied.
	assert.Equal(t, 2, m.State().LastOrdinal)

	// Once pick 3 arrives the tail reconciles.
	full := &models.Snapshot{
		Picks: []models.SnapshotPick{
			pick(3, "team_1", "Charlie Three", 5),
			pick(4, "team_2", "Delta Four", 10),
		},
	}
	diff, err = m.Apply(full)
	require.NoError(t, err)
	assert.Len(t, diff.NewPicks, 2)
	assert.Equal(t, 4, m.State().LastOrdinal)
	checkInvariants(t, m.State())
}

func TestHistoryDivergenceEntersSafeMode(t *testing.T) {
	m := newTestMachine("Alpha One", "Bravo Two")
	_, err := m.Apply(&models.Snapshot{
		Picks: []models.SnapshotPick{pick(1, "team_1", "Alpha One", 40)},
	})
	require.NoError(t, err)

	// Same ordinal, different price.
	_, err = m.Apply(&models.Snapshot{
		Picks: []models.SnapshotPick{pick(1, "team_1", "Alpha One", 45)},
	})
	assert.ErrorIs(t, err, ErrHistoryDivergence)
	assert.True(t, m.State().SafeMode)

	// Safe mode is read-only.
	_, err = m.Apply(&models.Snapshot{
		Picks: []models.SnapshotPick{pick(2, "team_2", "Bravo Two", 5)},
	})
	assert.ErrorIs(t, err, ErrHistoryDivergence)
	assert.Len(t, m.State().Picks, 1)
}

func TestNominationLifecycle(t *testing.T) {
	m := newTestMachine("Alpha One", "Bravo Two")

	// absent -> open
	diff, err := m.Apply(&models.Snapshot{
		Nomination: &models.SnapshotNomination{Player: "Alpha One", NominatedBy: "team_2", CurrentBid: 1, TimeRemaining: 30},
	})
	require.NoError(t, err)
	assert.True(t, diff.NominationChanged)
	require.NotNil(t, m.State().Nomination)

	// open -> open: bid update mutates in place and flags the change.
	diff, err = m.Apply(&models.Snapshot{
		Nomination: &models.SnapshotNomination{Player: "Alpha One", NominatedBy: "team_2", CurrentBid: 7, CurrentBidder: "team_1", TimeRemaining: 22},
	})
	require.NoError(t, err)
	assert.True(t, diff.NominationChanged)
	assert.Equal(t, 7, m.State().Nomination.CurrentBid)

	// Clock-only updates are not a nomination change.
	diff, err = m.Apply(&models.Snapshot{
		Nomination: &models.SnapshotNomination{Player: "Alpha One", NominatedBy: "team_2", CurrentBid: 7, CurrentBidder: "team_1", TimeRemaining: 21},
	})
	require.NoError(t, err)
	assert.False(t, diff.NominationChanged)
	assert.Equal(t, 21, m.State().Nomination.TimeRemaining)

	// open -> consumed: the winning pick clears the nomination.
	diff, err = m.Apply(&models.Snapshot{
		Picks: []models.SnapshotPick{pick(1, "team_1", "Alpha One", 7)},
	})
	require.NoError(t, err)
	assert.True(t, diff.NominationChanged)
	assert.Nil(t, m.State().Nomination)
	checkInvariants(t, m.State())

	// Wholesale replacement when a different player is nominated.
	diff, err = m.Apply(&models.Snapshot{
		Nomination: &models.SnapshotNomination{Player: "Bravo Two", NominatedBy: "team_1", CurrentBid: 1, TimeRemaining: 30},
	})
	require.NoError(t, err)
	assert.True(t, diff.NominationChanged)
	assert.Equal(t, "Bravo Two", m.State().Nomination.PlayerName)
}

func TestDraftComplete(t *testing.T) {
	names := []string{
		"P01", "P02", "P03", "P04", "P05", "P06", "P07",
		"P08", "P09", "P10", "P11", "P12", "P13", "P14",
	}
	m := newTestMachine(names...)

	picks := make([]models.SnapshotPick, 0, len(names))
	for i, name := range names {
		team := "team_1"
		if i%2 == 1 {
			team = "team_2"
		}
		picks = append(picks, pick(i+1, team, name, 1))
	}

	_, err := m.Apply(&models.Snapshot{Picks: picks})
	require.NoError(t, err)

	// 2 teams x 7 slots: terminal state reached.
	assert.True(t, m.State().Complete)
	assert.Nil(t, m.State().Nomination)
	checkInvariants(t, m.State())
}

func TestFingerprintExcludesClock(t *testing.T) {
	m := newTestMachine("Alpha One")
	_, err := m.Apply(&models.Snapshot{
		Nomination: &models.SnapshotNomination{Player: "Alpha One", CurrentBid: 5, TimeRemaining: 30},
	})
	require.NoError(t, err)
	fp := m.State().Fingerprint()

	_, err = m.Apply(&models.Snapshot{
		Nomination: &models.SnapshotNomination{Player: "Alpha One", CurrentBid: 5, TimeRemaining: 12},
	})
	require.NoError(t, err)
	assert.Equal(t, fp, m.State().Fingerprint())

	_, err = m.Apply(&models.Snapshot{
		Nomination: &models.SnapshotNomination{Player: "Alpha One", CurrentBid: 9, TimeRemaining: 12},
	})
	require.NoError(t, err)
	assert.NotEqual(t, fp, m.State().Fingerprint())
}
