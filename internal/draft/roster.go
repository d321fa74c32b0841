package draft

import (
	"errors"

	"github.com/jstittsworth/auction-copilot/internal/models"
)

// ErrRosterFull indicates no roster slot could take the pick. The pick is
// still recorded (it was observed externally) but flagged.
var ErrRosterFull = errors.New("no open roster slot")

// PlacePick assigns a drafted player to a roster slot. Order: the first open
// slot matching the eligible-slot set (the primary-position slot first), a
// utility slot for hitters, then bench. Returns the filled slot kind, or
// ErrRosterFull with the pick flagged.
func PlacePick(roster *models.Roster, pick *models.DraftPick) (models.SlotKind, error) {
	tag, _ := models.ParsePositionTag(pick.Position)

	var kinds []models.SlotKind
	if len(pick.EligibleSlots) > 0 {
		kinds = slotKindsFor(pick.EligibleSlots)
		// Prefer the primary-position slot when the set allows it.
		primary := fallbackKinds(tag)
		if len(primary) > 0 {
			kinds = preferKind(kinds, primary[0])
		}
	} else {
		kinds = fallbackKinds(tag)
	}

	for _, kind := range kinds {
		if kind == models.SlotUtility || kind == models.SlotBench {
			// Utility and bench are the explicit later stages.
			continue
		}
		if fill(roster, kind, pick) {
			return kind, nil
		}
	}

	if !tag.IsPitcher() {
		if fill(roster, models.SlotUtility, pick) {
			return models.SlotUtility, nil
		}
	}

	if fill(roster, models.SlotBench, pick) {
		return models.SlotBench, nil
	}

	return "", ErrRosterFull
}

func preferKind(kinds []models.SlotKind, primary models.SlotKind) []models.SlotKind {
	for i, k := range kinds {
		if k == primary && i != 0 {
			out := make([]models.SlotKind, 0, len(kinds))
			out = append(out, primary)
			out = append(out, kinds[:i]...)
			out = append(out, kinds[i+1:]...)
			return out
		}
	}
	return kinds
}

func fill(roster *models.Roster, kind models.SlotKind, pick *models.DraftPick) bool {
	for i := range roster.Slots {
		s := &roster.Slots[i]
		if s.Kind == kind && !s.Filled() {
			s.PlayerID = pick.PlayerID
			s.PlayerName = pick.PlayerName
			s.PickOrdinal = pick.Ordinal
			return true
		}
	}
	return false
}
