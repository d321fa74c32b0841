package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/jstittsworth/auction-copilot/internal/draft"
	"github.com/jstittsworth/auction-copilot/internal/models"
	"github.com/jstittsworth/auction-copilot/pkg/database"
)

// Store is the append-only durable log of pick and nomination events plus
// periodic full-state checkpoints. Writes happen on the coordinator
// goroutine; durability is guaranteed on successful return.
type Store struct {
	db  *database.DB
	log *logrus.Entry
}

func New(db *database.DB, log *logrus.Logger) (*Store, error) {
	if err := db.AutoMigrate(&models.PickRecord{}, &models.NominationRecord{}, &models.CheckpointRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Store{db: db, log: log.WithField("component", "store")}, nil
}

// AppendDiff persists the committed picks and nomination change from one
// state transition, atomically.
func (s *Store) AppendDiff(diff *models.StateDiff) error {
	if diff.Empty() {
		return nil
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		for i := range diff.NewPicks {
			pick := &diff.NewPicks[i]
			rec := models.PickRecord{
				Ordinal:     pick.Ordinal,
				TeamID:      pick.TeamID,
				Player:      pick.PlayerName,
				Position:    pick.Position,
				Price:       pick.Price,
				SlotFlagged: pick.SlotFlagged,
			}
			if pick.Slot != nil {
				rec.Slot = string(*pick.Slot)
			}
			if len(pick.EligibleSlots) > 0 {
				blob, err := json.Marshal(pick.EligibleSlots)
				if err != nil {
					return fmt.Errorf("failed to encode eligible slots: %w", err)
				}
				rec.EligibleSlots = datatypes.JSON(blob)
			}
			if err := tx.Create(&rec).Error; err != nil {
				return fmt.Errorf("failed to append pick %d: %w", pick.Ordinal, err)
			}
		}

		if diff.NominationChanged && diff.Nomination != nil {
			rec := models.NominationRecord{
				Player: diff.Nomination.PlayerName,
				Bid:    diff.Nomination.CurrentBid,
				Bidder: diff.Nomination.CurrentBidder,
				Clock:  diff.Nomination.TimeRemaining,
			}
			if err := tx.Create(&rec).Error; err != nil {
				return fmt.Errorf("failed to append nomination: %w", err)
			}
		}
		return nil
	})
}

// Checkpoint serializes the full draft state.
func (s *Store) Checkpoint(state *models.DraftState) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}
	rec := models.CheckpointRecord{State: datatypes.JSON(blob)}
	if err := s.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"picks":      len(state.Picks),
		"checkpoint": rec.ID,
	}).Debug("Checkpoint written")
	return nil
}

// Replay reconstructs draft state: latest checkpoint first, then pick events
// recorded after it, replayed through the state machine. Picks replayed
// without eligible-slot data fall back to primary-position placement.
func (s *Store) Replay(league models.LeagueSettings, resolver draft.PlayerResolver, log *logrus.Logger) (*models.DraftState, error) {
	state := &models.DraftState{
		League: league,
		Teams:  make(map[string]*models.Team),
	}

	var checkpoint models.CheckpointRecord
	err := s.db.Order("id DESC").First(&checkpoint).Error
	switch {
	case err == nil:
		if err := json.Unmarshal(checkpoint.State, state); err != nil {
			return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
		}
		if state.Teams == nil {
			state.Teams = make(map[string]*models.Team)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		// Fresh draft.
	default:
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	var records []models.PickRecord
	if err := s.db.Where("ordinal > ?", state.LastOrdinal).Order("ordinal ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load pick events: %w", err)
	}

	if len(records) > 0 {
		machine := draft.NewMachine(state, resolver, log)
		snap := &models.Snapshot{Picks: make([]models.SnapshotPick, 0, len(records))}
		for i := range records {
			rec := &records[i]
			sp := models.SnapshotPick{
				Ordinal:  rec.Ordinal,
				TeamID:   rec.TeamID,
				Player:   rec.Player,
				Position: rec.Position,
				Price:    rec.Price,
			}
			if len(rec.EligibleSlots) > 0 {
				if err := json.Unmarshal(rec.EligibleSlots, &sp.EligibleSlots); err != nil {
					return nil, fmt.Errorf("failed to decode eligible slots for pick %d: %w", rec.Ordinal, err)
				}
			}
			snap.Picks = append(snap.Picks, sp)
		}
		if _, err := machine.Apply(snap); err != nil {
			return nil, fmt.Errorf("failed to replay pick events: %w", err)
		}
	}

	s.log.WithFields(logrus.Fields{
		"picks":    len(state.Picks),
		"replayed": len(records),
	}).Info("State reconstructed from store")
	return state, nil
}
