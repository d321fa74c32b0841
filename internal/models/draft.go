package models

// SlotKind identifies a league roster slot type.
type SlotKind string

const (
	SlotCatcher    SlotKind = "C"
	SlotFirstBase  SlotKind = "1B"
	SlotSecondBase SlotKind = "2B"
	SlotThirdBase  SlotKind = "3B"
	SlotShortstop  SlotKind = "SS"
	SlotOutfield   SlotKind = "OF"
	SlotUtility    SlotKind = "UTIL"
	SlotBench      SlotKind = "BN"
	SlotStarter    SlotKind = "SP"
	SlotReliever   SlotKind = "RP"
)

// IsStarting reports whether the slot counts toward starting-lineup demand.
func (k SlotKind) IsStarting() bool {
	return k != SlotBench
}

// RosterSlot is one slot in a team's roster. PickOrdinal is zero while the
// slot is open.
type RosterSlot struct {
	Kind        SlotKind `json:"kind"`
	PlayerID    int      `json:"player_id"`
	PlayerName  string   `json:"player_name"`
	PickOrdinal int      `json:"pick_ordinal"`
}

// Filled reports whether a player occupies the slot.
func (s *RosterSlot) Filled() bool {
	return s.PickOrdinal != 0
}

// Roster is a team's ordered slot list, built from the league template.
type Roster struct {
	Slots []RosterSlot `json:"slots"`
}

// OpenSlots returns the count of unfilled slots of the given kind.
func (r *Roster) OpenSlots(kind SlotKind) int {
	n := 0
	for i := range r.Slots {
		if r.Slots[i].Kind == kind && !r.Slots[i].Filled() {
			n++
		}
	}
	return n
}

// OpenCount returns the total number of unfilled slots.
func (r *Roster) OpenCount() int {
	n := 0
	for i := range r.Slots {
		if !r.Slots[i].Filled() {
			n++
		}
	}
	return n
}

// DraftPick is one completed auction purchase. Picks are append-only.
type DraftPick struct {
	Ordinal       int       `json:"ordinal"`
	TeamID        string    `json:"team_id"`
	PlayerID      int       `json:"player_id"`
	PlayerName    string    `json:"player_name"`
	Position      string    `json:"position"`
	Price         int       `json:"price"`
	Slot          *SlotKind `json:"slot,omitempty"`
	SlotFlagged   bool      `json:"slot_flagged,omitempty"`
	EligibleSlots []int     `json:"eligible_slots,omitempty"`
}

// Nomination is the player currently on the block. Replaced wholesale when the
// nominated player changes; bid fields update in place otherwise.
type Nomination struct {
	PlayerName    string `json:"player_name"`
	PlayerID      int    `json:"player_id"`
	Position      string `json:"position"`
	NominatedBy   string `json:"nominated_by"`
	CurrentBid    int    `json:"current_bid"`
	CurrentBidder string `json:"current_bidder"`
	TimeRemaining int    `json:"time_remaining"`
	EligibleSlots []int  `json:"eligible_slots,omitempty"`
}

// Team is one franchise in the league.
type Team struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Budget int         `json:"budget"`
	Picks  []DraftPick `json:"picks"`
	Roster *Roster     `json:"roster"`
	IsMine bool        `json:"is_mine"`
}

// Spent returns the sum of prices across the team's picks.
func (t *Team) Spent() int {
	total := 0
	for i := range t.Picks {
		total += t.Picks[i].Price
	}
	return total
}

// LeagueSettings carries the league definition the engine needs at runtime.
// Loaded once from configuration and treated as immutable.
type LeagueSettings struct {
	TeamCount      int        `json:"team_count"`
	StartingBudget int        `json:"starting_budget"`
	MinimumBid     int        `json:"minimum_bid"`
	RosterTemplate []SlotKind `json:"roster_template"`
	MyTeamID       string     `json:"my_team_id"`
}

// RosterSize returns the total slots per team.
func (l *LeagueSettings) RosterSize() int {
	return len(l.RosterTemplate)
}

// StartingSlots returns the number of starting (non-bench) slots of the given kind.
func (l *LeagueSettings) StartingSlots(kind SlotKind) int {
	n := 0
	for _, k := range l.RosterTemplate {
		if k == kind {
			n++
		}
	}
	return n
}

// NewRoster builds an empty roster from the league template.
func (l *LeagueSettings) NewRoster() *Roster {
	slots := make([]RosterSlot, len(l.RosterTemplate))
	for i, k := range l.RosterTemplate {
		slots[i] = RosterSlot{Kind: k}
	}
	return &Roster{Slots: slots}
}

// DraftState is the canonical draft history plus per-team rosters and budgets.
// Process-singleton, owned by the coordinator's event loop.
type DraftState struct {
	League      LeagueSettings   `json:"league"`
	Teams       map[string]*Team `json:"teams"`
	TeamOrder   []string         `json:"team_order"`
	Picks       []DraftPick      `json:"picks"`
	Nomination  *Nomination      `json:"nomination,omitempty"`
	LastOrdinal int              `json:"last_ordinal"`
	SafeMode    bool             `json:"safe_mode"`
	Complete    bool             `json:"complete"`
	DraftID     string           `json:"draft_id"`
}

// Team returns the team by ID, creating it lazily when a snapshot introduces
// a team before the league config named it.
func (s *DraftState) Team(id string) *Team {
	if t, ok := s.Teams[id]; ok {
		return t
	}
	t := &Team{
		ID:     id,
		Name:   id,
		Budget: s.League.StartingBudget,
		Roster: s.League.NewRoster(),
		IsMine: id == s.League.MyTeamID,
	}
	s.Teams[id] = t
	s.TeamOrder = append(s.TeamOrder, id)
	return t
}

// PlayerDrafted reports whether the named player appears in any completed pick.
func (s *DraftState) PlayerDrafted(name string) bool {
	for i := range s.Picks {
		if s.Picks[i].PlayerName == name {
			return true
		}
	}
	return false
}

// Clone produces a deep point-in-time copy for readers outside the event loop.
func (s *DraftState) Clone() *DraftState {
	out := &DraftState{
		League:      s.League,
		Teams:       make(map[string]*Team, len(s.Teams)),
		TeamOrder:   append([]string(nil), s.TeamOrder...),
		Picks:       append([]DraftPick(nil), s.Picks...),
		LastOrdinal: s.LastOrdinal,
		SafeMode:    s.SafeMode,
		Complete:    s.Complete,
		DraftID:     s.DraftID,
	}
	out.League.RosterTemplate = append([]SlotKind(nil), s.League.RosterTemplate...)
	if s.Nomination != nil {
		nom := *s.Nomination
		out.Nomination = &nom
	}
	for id, t := range s.Teams {
		ct := &Team{
			ID:     t.ID,
			Name:   t.Name,
			Budget: t.Budget,
			Picks:  append([]DraftPick(nil), t.Picks...),
			IsMine: t.IsMine,
		}
		if t.Roster != nil {
			ct.Roster = &Roster{Slots: append([]RosterSlot(nil), t.Roster.Slots...)}
		}
		out.Teams[id] = ct
	}
	return out
}

// StateDiff summarizes one state transition for downstream consumers.
type StateDiff struct {
	NewPicks          []DraftPick `json:"new_picks"`
	NominationChanged bool        `json:"nomination_changed"`
	Nomination        *Nomination `json:"nomination,omitempty"`
	BudgetsChanged    bool        `json:"budgets_changed"`
	Fingerprint       string      `json:"fingerprint"`
}

// Empty reports whether the diff carries no observable change.
func (d *StateDiff) Empty() bool {
	return len(d.NewPicks) == 0 && !d.NominationChanged && !d.BudgetsChanged
}

// Snapshot is the decoded form of one scraper STATE_UPDATE frame.
type Snapshot struct {
	Picks      []SnapshotPick      `json:"picks"`
	Nomination *SnapshotNomination `json:"nomination,omitempty"`
	Teams      []SnapshotTeam      `json:"teams"`
	MyTeamID   string              `json:"my_team_id"`
	PickCount  int                 `json:"pick_count"`
	TotalPicks int                 `json:"total_picks"`
	DraftID    string              `json:"draft_id"`
	Source     string              `json:"source"`
}

// SnapshotPick is one completed pick as reported by the scraper.
type SnapshotPick struct {
	Ordinal       int    `json:"ordinal"`
	TeamID        string `json:"team"`
	Player        string `json:"player"`
	Position      string `json:"position"`
	Price         int    `json:"price"`
	EligibleSlots []int  `json:"eligible_slots"`
}

// SnapshotNomination is the scraper's view of the player on the block.
type SnapshotNomination struct {
	Player        string `json:"player"`
	Position      string `json:"position"`
	NominatedBy   string `json:"nominated_by"`
	CurrentBid    int    `json:"current_bid"`
	CurrentBidder string `json:"current_bidder"`
	TimeRemaining int    `json:"time_remaining"`
	EligibleSlots []int  `json:"eligible_slots"`
}

// SnapshotTeam is one team's identity and remaining budget.
type SnapshotTeam struct {
	TeamID string `json:"team_id"`
	Name   string `json:"name"`
	Budget int    `json:"budget"`
}
