package main

import (
	"sync"
	"time"
)

// displacedGraceWindow is how long a stale session is given to ping before a
// same-name re-login evicts it, per spec §4.3.
const displacedGraceWindow = 10 * time.Second

// Roster is the process-wide set of online players, indexed three ways over
// the same Player set (by id, by case-folded name, by token). It is the
// central object in the arena-and-index pattern SPEC_FULL.md §9 calls for:
// every other reference to a Player elsewhere in the world resolves through
// here rather than being held directly.
type Roster struct {
	mu      sync.RWMutex
	byID    map[int32]*Player
	byName  map[string]*Player
	byToken map[string]*Player
}

// NewRoster returns an empty Roster.
func NewRoster() *Roster {
	return &Roster{
		byID:    make(map[int32]*Player),
		byName:  make(map[string]*Player),
		byToken: make(map[string]*Player),
	}
}

// Add registers a Player under all three indexes.
func (r *Roster) Add(p *Player) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[p.ID] = p
	r.byName[NameSafe(p.Name)] = p
	r.byToken[p.Token] = p
}

// Remove deregisters a Player from all three indexes.
func (r *Roster) Remove(p *Player) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, p.ID)
	delete(r.byName, NameSafe(p.Name))
	delete(r.byToken, p.Token)
}

func (r *Roster) LookupByID(id int32) *Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

func (r *Roster) LookupByName(name string) *Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[NameSafe(name)]
}

func (r *Roster) LookupByToken(token string) *Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byToken[token]
}

// All returns a snapshot slice of every online Player. Callers must not
// mutate the returned slice's backing Players' registry membership while
// iterating; this matches room.go's Clients() snapshot-then-release shape.
func (r *Roster) All() []*Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Player, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, p)
	}
	return out
}

// Staff returns every online Player with a staff privilege bit set.
func (r *Roster) Staff() []*Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Player
	for _, p := range r.byID {
		if p.IsStaff() {
			out = append(out, p)
		}
	}
	return out
}

// Count reports how many players are currently online.
func (r *Roster) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Broadcast encodes no framing itself — it appends raw encoded bytes to
// every online player's outbound queue except those in exclude. The
// snapshot of recipients is taken under RLock and released before any
// Enqueue call, per room.go's broadcastTarget/Broadcast pattern, so a slow
// or blocked player can never hold up world-state mutation.
func (r *Roster) Broadcast(b []byte, exclude map[int32]bool) {
	for _, p := range r.All() {
		if exclude != nil && exclude[p.ID] {
			continue
		}
		p.Enqueue(b)
	}
}

// EvictStale removes p from the roster and tells every remaining player
// that p logged out. It is the mechanical half of displaced re-login (spec
// §4.3/§4.7 step a) and of the idle-ping sweep (spec §5); the caller is
// responsible for deciding whether eviction is warranted.
func (r *Roster) EvictStale(p *Player, w *World) {
	w.teardownPlayer(p)
}

// displaced reports whether an existing same-name session should be evicted
// (true) or whether the incoming login must instead be refused with
// AlreadyLoggedIn (false, because the existing session pinged recently).
func displaced(existing *Player) bool {
	return existing.IdleFor() > displacedGraceWindow
}
