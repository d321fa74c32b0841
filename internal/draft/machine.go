package draft

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/jstittsworth/auction-copilot/internal/models"
)

// ErrSnapshotGap indicates pick ordinals skipped ahead and reconciliation
// failed across consecutive snapshots. Non-fatal; the gap tail stays held.
var ErrSnapshotGap = errors.New("snapshot gap")

// ErrHistoryDivergence indicates a snapshot contradicts recorded history.
// The machine enters read-only safe mode; the operator must restart.
var ErrHistoryDivergence = errors.New("draft history divergence")

// gapRetryLimit is the count of consecutive gapped snapshots, the first one
// included, at which the gap escalates to a visible warning.
const gapRetryLimit = 3

// PlayerResolver joins scraper-reported player names to loaded projections.
type PlayerResolver interface {
	Lookup(name string) (*models.Player, bool)
}

// Machine reconciles an unordered, possibly duplicate, possibly lossy stream
// of scraper snapshots into a canonical, monotonically advancing draft
// history. Not safe for concurrent use; the coordinator serializes access.
type Machine struct {
	state      *models.DraftState
	resolver   PlayerResolver
	gapRetries int
	log        *logrus.Entry
}

func NewMachine(state *models.DraftState, resolver PlayerResolver, log *logrus.Logger) *Machine {
	return &Machine{
		state:    state,
		resolver: resolver,
		log:      log.WithField("component", "draft"),
	}
}

// State returns the canonical draft state. Callers outside the event loop
// must use Clone.
func (m *Machine) State() *models.DraftState {
	return m.state
}

// Apply reconciles one snapshot. Returns the diff of committed changes; the
// diff is empty for duplicate snapshots. ErrSnapshotGap is returned once the
// gap retry budget is exhausted; ErrHistoryDivergence flips safe mode.
func (m *Machine) Apply(snap *models.Snapshot) (*models.StateDiff, error) {
	if m.state.SafeMode {
		return nil, ErrHistoryDivergence
	}

	if snap.DraftID != "" && m.state.DraftID == "" {
		m.state.DraftID = snap.DraftID
	}
	if snap.MyTeamID != "" && snap.MyTeamID != m.state.League.MyTeamID {
		m.state.League.MyTeamID = snap.MyTeamID
		for _, t := range m.state.Teams {
			t.IsMine = t.ID == snap.MyTeamID
		}
	}
	m.syncTeams(snap)

	picks := append([]models.SnapshotPick(nil), snap.Picks...)
	sort.SliceStable(picks, func(i, j int) bool { return picks[i].Ordinal < picks[j].Ordinal })

	if err := m.checkHistory(picks); err != nil {
		m.state.SafeMode = true
		return nil, err
	}

	diff := &models.StateDiff{}

	newPicks, gapped := m.contiguousNew(picks)
	if gapped {
		m.gapRetries++
		if m.gapRetries >= gapRetryLimit {
			m.log.WithFields(logrus.Fields{
				"last_ordinal": m.state.LastOrdinal,
				"retries":      m.gapRetries,
			}).Warn("Snapshot gap unresolved, escalating")
			// Apply what is contiguous, surface the gap.
			m.applyPicks(newPicks, diff)
			m.finishApply(snap, diff)
			return diff, ErrSnapshotGap
		}
		m.log.WithField("last_ordinal", m.state.LastOrdinal).Debug("Snapshot gap held for reconciliation")
	} else {
		m.gapRetries = 0
	}

	m.applyPicks(newPicks, diff)
	m.finishApply(snap, diff)
	return diff, nil
}

// syncTeams creates teams named by the snapshot and records display names.
func (m *Machine) syncTeams(snap *models.Snapshot) {
	for _, st := range snap.Teams {
		t := m.state.Team(st.TeamID)
		if st.Name != "" {
			t.Name = st.Name
		}
	}
}

// checkHistory validates already-known ordinals against recorded picks.
func (m *Machine) checkHistory(picks []models.SnapshotPick) error {
	for _, sp := range picks {
		if sp.Ordinal < 1 {
			return fmt.Errorf("%w: pick ordinal %d", ErrHistoryDivergence, sp.Ordinal)
		}
		if sp.Ordinal > m.state.LastOrdinal {
			continue
		}
		recorded := m.state.Picks[sp.Ordinal-1]
		if recorded.PlayerName != models.NormalizeName(sp.Player) || recorded.Price != sp.Price {
			return fmt.Errorf("%w: ordinal %d recorded %s/$%d, snapshot %s/$%d",
				ErrHistoryDivergence, sp.Ordinal,
				recorded.PlayerName, recorded.Price,
				models.NormalizeName(sp.Player), sp.Price)
		}
	}
	return nil
}

// contiguousNew extracts the contiguous run of new picks starting at
// last_known+1. Anything past a gap is held; gapped reports whether a hole
// was observed.
func (m *Machine) contiguousNew(picks []models.SnapshotPick) (out []models.SnapshotPick, gapped bool) {
	next := m.state.LastOrdinal + 1
	for _, sp := range picks {
		if sp.Ordinal < next {
			continue
		}
		if sp.Ordinal > next {
			return out, true
		}
		out = append(out, sp)
		next++
	}
	return out, false
}

func (m *Machine) applyPicks(picks []models.SnapshotPick, diff *models.StateDiff) {
	for i := range picks {
		sp := &picks[i]
		pick := models.DraftPick{
			Ordinal:       sp.Ordinal,
			TeamID:        sp.TeamID,
			PlayerName:    models.NormalizeName(sp.Player),
			Position:      sp.Position,
			Price:         sp.Price,
			EligibleSlots: append([]int(nil), sp.EligibleSlots...),
		}
		if pl, ok := m.resolver.Lookup(pick.PlayerName); ok {
			pick.PlayerID = pl.ID
			if pick.Position == "" {
				pick.Position = string(pl.Position)
			}
			if len(pick.EligibleSlots) > 0 {
				pl.EligibleSlots = append([]int(nil), pick.EligibleSlots...)
			}
		} else {
			m.log.WithField("player", pick.PlayerName).Warn("Drafted player not found in projections")
		}

		team := m.state.Team(pick.TeamID)
		team.Budget -= pick.Price

		kind, err := PlacePick(team.Roster, &pick)
		if err != nil {
			pick.SlotFlagged = true
			m.log.WithFields(logrus.Fields{
				"team":    pick.TeamID,
				"player":  pick.PlayerName,
				"ordinal": pick.Ordinal,
			}).Warn("Roster full, pick recorded without a slot")
		} else {
			pick.Slot = &kind
		}

		team.Picks = append(team.Picks, pick)
		m.state.Picks = append(m.state.Picks, pick)
		m.state.LastOrdinal = pick.Ordinal
		diff.NewPicks = append(diff.NewPicks, pick)
		diff.BudgetsChanged = true

		// A completed pick consumes the nomination for that player.
		if m.state.Nomination != nil && m.state.Nomination.PlayerName == pick.PlayerName {
			m.state.Nomination = nil
			diff.NominationChanged = true
		}

		m.log.WithFields(logrus.Fields{
			"ordinal": pick.Ordinal,
			"team":    pick.TeamID,
			"player":  pick.PlayerName,
			"price":   pick.Price,
		}).Info("Pick committed")
	}
}

// finishApply updates the nomination, checks the terminal state, verifies
// budgets against the scraper's view, and stamps the diff fingerprint.
func (m *Machine) finishApply(snap *models.Snapshot, diff *models.StateDiff) {
	m.updateNomination(snap.Nomination, diff)
	if diff.NominationChanged {
		diff.Nomination = m.state.Nomination
	}

	total := m.state.League.TeamCount * m.state.League.RosterSize()
	if !m.state.Complete && len(m.state.Picks) >= total {
		m.state.Complete = true
		m.state.Nomination = nil
		m.log.WithField("picks", len(m.state.Picks)).Info("Draft complete")
	}

	for _, st := range snap.Teams {
		if t, ok := m.state.Teams[st.TeamID]; ok {
			derived := m.state.League.StartingBudget - t.Spent()
			if st.Budget != derived {
				m.log.WithFields(logrus.Fields{
					"team":            st.TeamID,
					"scraper_budget":  st.Budget,
					"derived_budget":  derived,
				}).Warn("Scraper budget disagrees with derived budget")
			}
			t.Budget = derived
		}
	}

	diff.Fingerprint = m.state.Fingerprint()
}

func (m *Machine) updateNomination(sn *models.SnapshotNomination, diff *models.StateDiff) {
	if sn == nil {
		return
	}
	name := models.NormalizeName(sn.Player)
	if m.state.PlayerDrafted(name) {
		// Stale nomination for an already-completed pick.
		return
	}

	cur := m.state.Nomination
	if cur != nil && cur.PlayerName == name {
		if cur.CurrentBid != sn.CurrentBid || cur.CurrentBidder != sn.CurrentBidder {
			diff.NominationChanged = true
		}
		cur.CurrentBid = sn.CurrentBid
		cur.CurrentBidder = sn.CurrentBidder
		cur.TimeRemaining = sn.TimeRemaining
		return
	}

	nom := &models.Nomination{
		PlayerName:    name,
		Position:      sn.Position,
		NominatedBy:   sn.NominatedBy,
		CurrentBid:    sn.CurrentBid,
		CurrentBidder: sn.CurrentBidder,
		TimeRemaining: sn.TimeRemaining,
		EligibleSlots: append([]int(nil), sn.EligibleSlots...),
	}
	if pl, ok := m.resolver.Lookup(name); ok {
		nom.PlayerID = pl.ID
	}
	m.state.Nomination = nom
	diff.NominationChanged = true
	diff.Nomination = nom
	m.log.WithFields(logrus.Fields{
		"player": name,
		"bid":    sn.CurrentBid,
	}).Info("New nomination")
}
