package draft

import (
	"sync"

	"github.com/jstittsworth/auction-copilot/internal/models"
	"github.com/jstittsworth/auction-copilot/pkg/logger"
)

// knownSlotIDs maps the scraper's opaque slot identifiers to league slots.
// The identifiers are authoritative for legal placements; the mapping below
// was observed from the scraper, not derived. Identifiers absent here are
// logged and treated as non-applicable rather than guessed.
var knownSlotIDs = map[int]models.SlotKind{
	0:  models.SlotCatcher,
	1:  models.SlotFirstBase,
	2:  models.SlotSecondBase,
	3:  models.SlotThirdBase,
	4:  models.SlotShortstop,
	5:  models.SlotOutfield,
	6:  models.SlotOutfield,
	7:  models.SlotOutfield,
	8:  models.SlotUtility,
	9:  models.SlotStarter,
	10: models.SlotReliever,
	11: models.SlotBench,
	12: models.SlotUtility,
}

var (
	unknownSlotMu   sync.Mutex
	unknownSlotSeen = make(map[int]bool)
)

// slotKindsFor translates an eligible-slot set into league slot kinds,
// preserving order and dropping duplicates. Unknown identifiers are logged
// once each.
func slotKindsFor(eligible []int) []models.SlotKind {
	kinds := make([]models.SlotKind, 0, len(eligible))
	seen := make(map[models.SlotKind]bool, len(eligible))
	for _, id := range eligible {
		kind, ok := knownSlotIDs[id]
		if !ok {
			warnUnknownSlot(id)
			continue
		}
		if !seen[kind] {
			seen[kind] = true
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

func warnUnknownSlot(id int) {
	unknownSlotMu.Lock()
	defer unknownSlotMu.Unlock()
	if !unknownSlotSeen[id] {
		unknownSlotSeen[id] = true
		logger.WithComponent("draft").WithField("slot_id", id).Warn("Unknown eligible-slot identifier from scraper")
	}
}

// fallbackKinds derives placement slots from the primary position tag when
// the scraper supplied no eligible-slot set (manual entry or replay without
// slot data). The three outfield positions cross-fill the OF slots.
func fallbackKinds(tag models.PositionTag) []models.SlotKind {
	switch tag {
	case models.PositionCatcher:
		return []models.SlotKind{models.SlotCatcher}
	case models.PositionFirstBase:
		return []models.SlotKind{models.SlotFirstBase}
	case models.PositionSecondBase:
		return []models.SlotKind{models.SlotSecondBase}
	case models.PositionThirdBase:
		return []models.SlotKind{models.SlotThirdBase}
	case models.PositionShortstop:
		return []models.SlotKind{models.SlotShortstop}
	case models.PositionLeftField, models.PositionCenterField, models.PositionRightField:
		return []models.SlotKind{models.SlotOutfield}
	case models.PositionDH:
		return []models.SlotKind{models.SlotUtility}
	case models.PositionStarter:
		return []models.SlotKind{models.SlotStarter}
	case models.PositionReliever:
		return []models.SlotKind{models.SlotReliever}
	}
	return nil
}
