package main

import "sync"

const maxSlots = 16

// Slot is one of a Match's 16 fixed positions (spec §3).
type Slot struct {
	Status  SlotStatus
	Team    Team
	Player  *Player
	Mods    uint32 // meaningful only when the match has freemods enabled
	Loaded  bool
	Skipped bool
}

func (s *Slot) reset() {
	*s = Slot{Status: SlotOpen, Team: TeamNeutral}
}

// Match is a multiplayer lobby: 16 slots, a host, map/mods state, and the
// state machine described in spec §4.6.
type Match struct {
	ID       int
	Name     string
	Password string

	mu sync.Mutex

	Host *Player

	MapMD5  string
	MapID   int32
	MapName string

	Mods     uint32
	Freemods bool
	GameMode uint8

	TeamType    TeamType
	ScoringType ScoringType

	InProgress bool
	Seed       int32

	Slots [maxSlots]Slot

	Chat *Channel
}

// newMatch allocates a Match shell; callers (MatchRegistry.Create) still
// need to seat the creator into slot 0 and join the chat channel.
func newMatch(id int, name, password string) *Match {
	m := &Match{ID: id, Name: name, Password: password}
	for i := range m.Slots {
		m.Slots[i].reset()
	}
	return m
}

// slotOf returns the index of p's slot, or -1 if p has none.
func (m *Match) slotOf(p *Player) int {
	for i := range m.Slots {
		if m.Slots[i].Player == p {
			return i
		}
	}
	return -1
}

// occupiedCount reports how many slots currently have a player.
func (m *Match) occupiedCount() int {
	n := 0
	for i := range m.Slots {
		if m.Slots[i].Status.HasPlayer() {
			n++
		}
	}
	return n
}

// firstOccupied returns the index of the first occupied slot, or -1.
func (m *Match) firstOccupied() int {
	for i := range m.Slots {
		if m.Slots[i].Status.HasPlayer() {
			return i
		}
	}
	return -1
}

// --- World-level match operations ---
//
// These take *World because most transitions end in a broadcast to the
// match's players and, for all but a handful of marked exceptions, to the
// lobby as well (spec §4.6's transition table). Holding m.mu for the whole
// operation satisfies spec §5's atomicity requirement: "every observable
// state change is followed atomically ... by a MatchUpdate broadcast".

// JoinSlot seats p into the lowest free open slot. Returns false (LobbyFull
// semantics at the match level) if no slot is free.
func (m *Match) JoinSlot(p *Player) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Slots {
		if m.Slots[i].Status == SlotOpen {
			m.Slots[i].Status = SlotNotReady
			m.Slots[i].Player = p
			return true
		}
	}
	return false
}

// LeaveSlot resets p's slot to open. Returns true if p held a slot.
func (m *Match) LeaveSlot(p *Player) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.slotOf(p)
	if i < 0 {
		return false
	}
	m.Slots[i].reset()
	return true
}

// ChangeSlot moves invoker's slot contents to `to` if `to` is open, per the
// ChangeSlot transition row.
func (m *Match) ChangeSlot(invoker *Player, to int) error {
	if to < 0 || to >= maxSlots {
		return newErr(KindInvalidSlot, "slot %d out of range", to)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	from := m.slotOf(invoker)
	if from < 0 {
		return newErr(KindNotInMatch, "")
	}
	if m.Slots[to].Status != SlotOpen {
		return newErr(KindSlotOccupied, "slot %d is not open", to)
	}
	m.Slots[to] = m.Slots[from]
	m.Slots[from].reset()
	return nil
}

// SetReady sets invoker's slot to ready/not_ready.
func (m *Match) SetReady(invoker *Player, ready bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.slotOf(invoker)
	if i < 0 {
		return newErr(KindNotInMatch, "")
	}
	if ready {
		m.Slots[i].Status = SlotReady
	} else {
		m.Slots[i].Status = SlotNotReady
	}
	return nil
}

// LockSlot toggles a slot between locked and open, evicting any occupant
// first. Host-only; caller checks that.
func (m *Match) LockSlot(i int) error {
	if i < 0 || i >= maxSlots {
		return newErr(KindInvalidSlot, "slot %d out of range", i)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Slots[i].Status == SlotLocked {
		m.Slots[i].reset()
		return nil
	}
	m.Slots[i].reset()
	m.Slots[i].Status = SlotLocked
	return nil
}

// SetHasMap sets invoker's slot to not_ready/no_map.
func (m *Match) SetHasMap(invoker *Player, hasMap bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.slotOf(invoker)
	if i < 0 {
		return newErr(KindNotInMatch, "")
	}
	if hasMap {
		m.Slots[i].Status = SlotNotReady
	} else {
		m.Slots[i].Status = SlotNoMap
	}
	return nil
}

// ChangeTeam toggles invoker's team between blue and red.
func (m *Match) ChangeTeam(invoker *Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.slotOf(invoker)
	if i < 0 {
		return newErr(KindNotInMatch, "")
	}
	if m.Slots[i].Team == TeamBlue {
		m.Slots[i].Team = TeamRed
	} else {
		m.Slots[i].Team = TeamBlue
	}
	return nil
}

// ChangeMods applies the freemods-aware mod change rule from spec §3/§4.6:
// when freemods is on, the host may only change the speed-changing subset
// of the match-wide mods, while any player (including the host) may set
// their own non-speed mods; when freemods is off, only the host may act,
// and they replace the match-wide mods outright.
func (m *Match) ChangeMods(invoker *Player, isHost bool, mods uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Freemods {
		if isHost {
			m.Mods = mods & SpeedChangingMods
			return nil
		}
		i := m.slotOf(invoker)
		if i < 0 {
			return newErr(KindNotInMatch, "")
		}
		m.Slots[i].Mods = mods &^ SpeedChangingMods
		return nil
	}
	if !isHost {
		return newErr(KindDenied, "only the host may change mods")
	}
	m.Mods = mods
	return nil
}

// SetFreemods rebalances mods per spec §3's invariant when the freemods
// flag flips: turning it on distributes the current match mods into every
// occupied slot as non-speed mods, keeping only the speed-changing subset at
// the match level; turning it off folds the host's slot mods back into a
// single match-wide value and clears every slot's mods.
func (m *Match) SetFreemods(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if on == m.Freemods {
		return
	}
	if on {
		nonSpeed := m.Mods &^ SpeedChangingMods
		m.Mods = m.Mods & SpeedChangingMods
		for i := range m.Slots {
			if m.Slots[i].Status.HasPlayer() {
				m.Slots[i].Mods = nonSpeed
			}
		}
	} else {
		hostSlot := m.slotOf(m.Host)
		if hostSlot >= 0 {
			m.Mods |= m.Slots[hostSlot].Mods
		}
		for i := range m.Slots {
			m.Slots[i].Mods = 0
		}
	}
	m.Freemods = on
}

// Start transitions every ready slot to playing and marks the match in
// progress, per the Start transition row. Returns the list of players now
// playing, in slot order, for the MatchStart broadcast.
func (m *Match) Start() []*Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	var playing []*Player
	for i := range m.Slots {
		if m.Slots[i].Status == SlotReady {
			m.Slots[i].Status = SlotPlaying
			m.Slots[i].Loaded = false
			m.Slots[i].Skipped = false
			playing = append(playing, m.Slots[i].Player)
		}
	}
	m.InProgress = true
	return playing
}

// MarkLoaded sets invoker's playing slot to loaded and reports whether
// every playing slot is now loaded (MatchAllPlayersLoaded trigger).
func (m *Match) MarkLoaded(invoker *Player) (allLoaded bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.slotOf(invoker)
	if i < 0 || m.Slots[i].Status != SlotPlaying {
		return false, newErr(KindNotInMatch, "player is not in a playing slot")
	}
	m.Slots[i].Loaded = true
	for j := range m.Slots {
		if m.Slots[j].Status == SlotPlaying && !m.Slots[j].Loaded {
			return false, nil
		}
	}
	return true, nil
}

// MarkSkipped sets invoker's playing slot to skipped and reports whether
// every playing slot is now skipped (MatchSkip trigger).
func (m *Match) MarkSkipped(invoker *Player) (allSkipped bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.slotOf(invoker)
	if i < 0 || m.Slots[i].Status != SlotPlaying {
		return false, newErr(KindNotInMatch, "player is not in a playing slot")
	}
	m.Slots[i].Skipped = true
	for j := range m.Slots {
		if m.Slots[j].Status == SlotPlaying && !m.Slots[j].Skipped {
			return false, nil
		}
	}
	return true, nil
}

// slotIDFor returns the wire slot id (its index) for a player, or -1.
func (m *Match) slotIDFor(p *Player) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slotOf(p)
}

// MarkComplete sets invoker's playing slot to complete; when no slot
// remains playing it resets every completed slot to not_ready, clears
// in_progress, and reports allComplete=true so the caller broadcasts
// MatchComplete exactly once.
func (m *Match) MarkComplete(invoker *Player) (allComplete bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.slotOf(invoker)
	if i < 0 || m.Slots[i].Status != SlotPlaying {
		return false, newErr(KindNotInMatch, "player is not in a playing slot")
	}
	m.Slots[i].Status = SlotComplete
	for j := range m.Slots {
		if m.Slots[j].Status == SlotPlaying {
			return false, nil
		}
	}
	m.InProgress = false
	for j := range m.Slots {
		if m.Slots[j].Status == SlotComplete {
			m.Slots[j].Status = SlotNotReady
			m.Slots[j].Loaded = false
			m.Slots[j].Skipped = false
		}
	}
	return true, nil
}

// TransferHost changes the host to the occupant of slot `to`. Caller has
// already verified the invoker is the current host.
func (m *Match) TransferHost(to int) (*Player, error) {
	if to < 0 || to >= maxSlots {
		return nil, newErr(KindInvalidSlot, "slot %d out of range", to)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	target := m.Slots[to].Player
	if target == nil {
		return nil, newErr(KindSlotOccupied, "slot %d is empty", to)
	}
	m.Host = target
	return target, nil
}

// ApplySettings implements the ChangeSettings transition row: freemods
// rebalancing, ready-downgrade when the map is cleared, and the plain field
// copy. Returns whether the map actually changed, so the caller knows
// whether to announce it in match chat.
type MatchSettings struct {
	Name        string
	Password    string
	MapMD5      string
	MapID       int32
	MapName     string
	Freemods    bool
	GameMode    uint8
	TeamType    TeamType
	ScoringType ScoringType
}

func (m *Match) ApplySettings(s MatchSettings) (mapChanged bool) {
	if s.Freemods != m.Freemods {
		// Unlock for SetFreemods, which takes its own lock.
		m.SetFreemods(s.Freemods)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	mapCleared := s.MapMD5 == ""
	if mapCleared {
		for i := range m.Slots {
			if m.Slots[i].Status == SlotReady {
				m.Slots[i].Status = SlotNotReady
			}
		}
	}

	mapChanged = s.MapMD5 != m.MapMD5
	m.MapMD5 = s.MapMD5
	m.MapID = s.MapID
	m.MapName = s.MapName
	m.GameMode = s.GameMode
	m.TeamType = s.TeamType
	m.ScoringType = s.ScoringType
	m.Name = s.Name
	return mapChanged
}

// ChangePassword replaces the match password (lobby broadcast suppressed
// per spec's transition table).
func (m *Match) ChangePassword(newPassword string) {
	m.mu.Lock()
	m.Password = newPassword
	m.mu.Unlock()
}

// RewriteScoreFrame rewrites the slot-id byte (offset 4) of a 29- or
// 37-byte ScoreUpdate frame, per spec §4.6's ScoreUpdate row: a selector
// byte at offset 28 of zero means 29 bytes total, nonzero means 37.
func RewriteScoreFrame(frame []byte, slotID int) ([]byte, error) {
	if len(frame) < 29 {
		return nil, newErr(KindMalformedFrame, "score frame too short: %d bytes", len(frame))
	}
	wantLen := 29
	if frame[28] != 0 {
		wantLen = 37
	}
	if len(frame) < wantLen {
		return nil, newErr(KindMalformedFrame, "score frame declares %d bytes but selector wants %d", len(frame), wantLen)
	}
	out := make([]byte, wantLen)
	copy(out, frame[:wantLen])
	out[4] = byte(slotID)
	return out, nil
}
