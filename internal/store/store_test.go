package store

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jstittsworth/auction-copilot/internal/models"
	"github.com/jstittsworth/auction-copilot/pkg/database"
)

type stubResolver struct{}

func (stubResolver) Lookup(name string) (*models.Player, bool) { return nil, false }

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	require.NoError(t, err)

	st, err := New(&database.DB{DB: gormDB}, quietLogger())
	require.NoError(t, err)
	return st
}

func testLeague() models.LeagueSettings {
	return models.LeagueSettings{
		TeamCount:      2,
		StartingBudget: 260,
		MinimumBid:     1,
		RosterTemplate: []models.SlotKind{
			models.SlotFirstBase, models.SlotOutfield, models.SlotUtility, models.SlotBench,
		},
		MyTeamID: "team_1",
	}
}

func slotPtr(k models.SlotKind) *models.SlotKind { return &k }

func TestAppendAndReplay(t *testing.T) {
	st := newTestStore(t)

	diff := &models.StateDiff{
		NewPicks: []models.DraftPick{
			{Ordinal: 1, TeamID: "team_1", PlayerName: "Mike Trout", Position: "CF", Price: 51,
				Slot: slotPtr(models.SlotOutfield), EligibleSlots: []int{5, 6, 7}},
			{Ordinal: 2, TeamID: "team_2", PlayerName: "Gerrit Cole", Position: "SP", Price: 30},
		},
		NominationChanged: true,
		Nomination:        &models.Nomination{PlayerName: "Mookie Betts", CurrentBid: 12, CurrentBidder: "team_2", TimeRemaining: 20},
	}
	require.NoError(t, st.AppendDiff(diff))

	state, err := st.Replay(testLeague(), stubResolver{}, quietLogger())
	require.NoError(t, err)

	require.Len(t, state.Picks, 2)
	assert.Equal(t, "Mike Trout", state.Picks[0].PlayerName)
	assert.Equal(t, []int{5, 6, 7}, state.Picks[0].EligibleSlots)
	assert.Equal(t, 2, state.LastOrdinal)
	assert.Equal(t, 260-51, state.Teams["team_1"].Budget)
	assert.Equal(t, 260-30, state.Teams["team_2"].Budget)
}

func TestCheckpointShortensReplay(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.AppendDiff(&models.StateDiff{
		NewPicks: []models.DraftPick{
			{Ordinal: 1, TeamID: "team_1", PlayerName: "Mike Trout", Position: "CF", Price: 51},
		},
	}))

	// Build and checkpoint the state after pick 1.
	checkpointed, err := st.Replay(testLeague(), stubResolver{}, quietLogger())
	require.NoError(t, err)
	require.NoError(t, st.Checkpoint(checkpointed))

	// A later event lands after the checkpoint.
	require.NoError(t, st.AppendDiff(&models.StateDiff{
		NewPicks: []models.DraftPick{
			{Ordinal: 2, TeamID: "team_2", PlayerName: "Gerrit Cole", Position: "SP", Price: 30},
		},
	}))

	state, err := st.Replay(testLeague(), stubResolver{}, quietLogger())
	require.NoError(t, err)

	require.Len(t, state.Picks, 2)
	assert.Equal(t, "Gerrit Cole", state.Picks[1].PlayerName)
	assert.Equal(t, 2, state.LastOrdinal)
	assert.Equal(t, 260-30, state.Teams["team_2"].Budget)
}

func TestEmptyDiffIsNoOp(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.AppendDiff(&models.StateDiff{}))

	state, err := st.Replay(testLeague(), stubResolver{}, quietLogger())
	require.NoError(t, err)
	assert.Empty(t, state.Picks)
	assert.Equal(t, 0, state.LastOrdinal)
}

func TestReplayWithoutSlotDataUsesFallback(t *testing.T) {
	st := newTestStore(t)

	// No eligible-slot blob recorded; placement must fall back to the
	// primary position tag.
	require.NoError(t, st.AppendDiff(&models.StateDiff{
		NewPicks: []models.DraftPick{
			{Ordinal: 1, TeamID: "team_1", PlayerName: "Corner Guy", Position: "1B", Price: 10},
		},
	}))

	state, err := st.Replay(testLeague(), stubResolver{}, quietLogger())
	require.NoError(t, err)

	roster := state.Teams["team_1"].Roster
	require.NotNil(t, roster)
	assert.Equal(t, 0, roster.OpenSlots(models.SlotFirstBase))
}
