package main

import (
	"strings"
	"sync"
	"time"
)

// Player is one connected user's session: identity, live status, relations
// to other world objects, and a FIFO outbound packet queue. Fields that are
// read across goroutines without holding the owning registry's lock are
// guarded by mu; everything else is mutated only from handler code running
// under the World's lock (see world.go).
type Player struct {
	ID    int32
	Name  string // display name
	Token string // opaque session token, assigned at login

	PasswordHash string
	Privileges   uint32

	LoginTime     time.Time
	LastPingTime  time.Time
	UTCOffset     int8
	PresenceFilter PresenceFilter
	PMPrivate     bool
	AwayMsg       string
	SilenceEnd    time.Time

	Action    uint8
	InfoText  string
	MapMD5    string
	Mods      uint32
	GameMode  uint8
	MapID     int32

	IP string

	Stats Stats

	mu         sync.Mutex
	friends    map[int32]bool
	channels   map[string]*Channel
	spectating *Player
	spectators []*Player
	match      *Match
	inLobby    bool

	queue outQueue
}

// Stats mirrors the subset of the relational store's per-account stats this
// module cares about (spec §3's DATA MODEL supplement). Score submission and
// leaderboard computation remain the external pipeline's job; this module
// only carries whatever the store last loaded.
type Stats struct {
	RankedScore int64
	Accuracy    float64
	Playcount   int32
	TotalScore  int64
	Rank        int32
	PP          int32
}

// outQueue is a tiny FIFO byte accumulator used for the outbound queue. It
// exists as its own type (rather than a bare []byte) so Enqueue/Drain read
// clearly at call sites.
type outQueue struct {
	data []byte
}

func (q *outQueue) append(b []byte) { q.data = append(q.data, b...) }

func (q *outQueue) drain() []byte {
	if len(q.data) == 0 {
		return nil
	}
	out := q.data
	q.data = nil
	return out
}

// Relax reports whether the RELAX mod bit is set on the player's current
// mods, per spec §3's derived field.
func (p *Player) Relax() bool { return p.Mods&ModRelax != 0 }

// NameSafe returns the case-folded, space-collapsed lookup key used by the
// Roster's by-name index and the store's user_by_name.
func NameSafe(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
}

// newPlayer constructs a Player with its relation sets initialized. It does
// not register the player with any registry — callers (LoginService) do
// that once construction succeeds.
func newPlayer(id int32, name string) *Player {
	return &Player{
		ID:           id,
		Name:         name,
		LoginTime:    time.Now(),
		LastPingTime: time.Now(),
		friends:      make(map[int32]bool),
		channels:     make(map[string]*Channel),
		inLobby:      false,
	}
}

// Enqueue appends already-encoded packet bytes to the player's outbound
// queue. It takes its own mutex (not any registry lock) so a slow drain
// never blocks world-state mutation, per SPEC_FULL.md §5.
func (p *Player) Enqueue(b []byte) {
	if len(b) == 0 {
		return
	}
	p.mu.Lock()
	p.queue.append(b)
	p.mu.Unlock()
}

// Drain atomically removes and returns the concatenated outbound queue.
func (p *Player) Drain() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.drain()
}

// AddFriend/RemoveFriend/IsFriend/Friends mutate and query the in-memory
// friend set. Persistence through the Store happens in handlers.go
// (handleFriendAdd/handleFriendRemove) so this type stays storage-agnostic.
func (p *Player) AddFriend(id int32) {
	p.mu.Lock()
	p.friends[id] = true
	p.mu.Unlock()
}

func (p *Player) RemoveFriend(id int32) {
	p.mu.Lock()
	delete(p.friends, id)
	p.mu.Unlock()
}

func (p *Player) IsFriend(id int32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.friends[id]
}

func (p *Player) FriendIDs() []int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int32, 0, len(p.friends))
	for id := range p.friends {
		out = append(out, id)
	}
	return out
}

// Channels returns a snapshot slice of channels this player currently
// belongs to.
func (p *Player) Channels() []*Channel {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Channel, 0, len(p.channels))
	for _, c := range p.channels {
		out = append(out, c)
	}
	return out
}

func (p *Player) hasChannel(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.channels[name]
	return ok
}

func (p *Player) addChannelRef(c *Channel) {
	p.mu.Lock()
	p.channels[c.Name] = c
	p.mu.Unlock()
}

func (p *Player) removeChannelRef(name string) {
	p.mu.Lock()
	delete(p.channels, name)
	p.mu.Unlock()
}

// Spectating returns the host this player currently follows, if any.
func (p *Player) Spectating() *Player {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.spectating
}

func (p *Player) setSpectating(h *Player) {
	p.mu.Lock()
	p.spectating = h
	p.mu.Unlock()
}

// Spectators returns a snapshot of this player's current followers, in join
// order.
func (p *Player) Spectators() []*Player {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Player, len(p.spectators))
	copy(out, p.spectators)
	return out
}

func (p *Player) addSpectator(f *Player) {
	p.mu.Lock()
	p.spectators = append(p.spectators, f)
	p.mu.Unlock()
}

func (p *Player) removeSpectator(f *Player) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, s := range p.spectators {
		if s == f {
			p.spectators = append(p.spectators[:i], p.spectators[i+1:]...)
			return
		}
	}
}

// Match returns the lobby this player currently occupies, if any.
func (p *Player) Match() *Match {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.match
}

func (p *Player) setMatch(m *Match) {
	p.mu.Lock()
	p.match = m
	p.mu.Unlock()
}

// CanRead/CanWrite apply the capability-gate predicate from spec §3: a
// player may read/write a channel iff their privilege bitset intersects the
// channel's corresponding bitset.
func (p *Player) CanRead(c *Channel) bool  { return p.Privileges&c.ReadPriv != 0 }
func (p *Player) CanWrite(c *Channel) bool { return p.Privileges&c.WritePriv != 0 }

func (p *Player) IsStaff() bool { return p.Privileges&PrivStaff != 0 }

// Silenced reports whether the player is currently under a chat silence.
func (p *Player) Silenced() bool { return time.Now().Before(p.SilenceEnd) }

// Ping updates the last-seen timestamp; called once per SessionLoop request
// regardless of which packets the body carries (spec §4.8 step ii).
func (p *Player) Ping() { p.LastPingTime = time.Now() }

// IdleFor reports how long it has been since the player was last seen.
func (p *Player) IdleFor() time.Duration { return time.Since(p.LastPingTime) }
