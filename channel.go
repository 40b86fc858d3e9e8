package main

import (
	"strings"
	"sync"
)

// Channel is a named chat room with membership and capability-gated
// read/write access. Names beginning with "#spec_" or "#multi_" are
// dynamic: created on demand by SpectatorGroup/Match and disbanded when
// their last member leaves (spec §3).
type Channel struct {
	Name      string
	Topic     string
	ReadPriv  uint32
	WritePriv uint32
	AutoJoin  bool

	mu      sync.RWMutex
	members map[int32]*Player
}

// NewChannel constructs a static (non-dynamic) channel open to everyone by
// default; callers narrow ReadPriv/WritePriv as needed.
func NewChannel(name, topic string, autoJoin bool) *Channel {
	return &Channel{
		Name:      name,
		Topic:     topic,
		ReadPriv:  PrivNormal | PrivBAT | PrivSupporter | PrivModerator | PrivAdmin | PrivDeveloper,
		WritePriv: PrivNormal | PrivBAT | PrivSupporter | PrivModerator | PrivAdmin | PrivDeveloper,
		AutoJoin:  autoJoin,
		members:   make(map[int32]*Player),
	}
}

// IsDynamic reports whether this channel was created on demand for a
// spectator group or a multiplayer match, rather than loaded from the
// store's static channel list.
func (c *Channel) IsDynamic() bool {
	return strings.HasPrefix(c.Name, "#spec_") || strings.HasPrefix(c.Name, "#multi_")
}

func (c *Channel) addMember(p *Player) {
	c.mu.Lock()
	c.members[p.ID] = p
	c.mu.Unlock()
}

func (c *Channel) removeMember(p *Player) {
	c.mu.Lock()
	delete(c.members, p.ID)
	c.mu.Unlock()
}

// HasMember reports whether p currently belongs to the channel.
func (c *Channel) HasMember(p *Player) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.members[p.ID]
	return ok
}

// Members returns a snapshot of the channel's current membership.
func (c *Channel) Members() []*Player {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Player, 0, len(c.members))
	for _, p := range c.members {
		out = append(out, p)
	}
	return out
}

// MemberCount reports how many players currently belong to the channel.
func (c *Channel) MemberCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.members)
}

// Broadcast sends already-encoded bytes to every member except those in
// exclude, taking a read-locked membership snapshot before doing any
// Enqueue call — the same snapshot-then-release shape as Roster.Broadcast
// and room.go's Broadcast.
func (c *Channel) Broadcast(b []byte, exclude map[int32]bool) {
	for _, p := range c.Members() {
		if exclude != nil && exclude[p.ID] {
			continue
		}
		p.Enqueue(b)
	}
}

// Join adds p to the channel's membership after the caller has already
// verified read privilege; it does not itself enqueue or broadcast any
// packet — that is handler-level behavior (see handlers.go's joinChannelByName),
// matching spec §4.2's separation of the capability check from the
// notification side effects.
func (c *Channel) Join(p *Player) {
	c.addMember(p)
	p.addChannelRef(c)
}

// Leave removes p from the channel's membership.
func (c *Channel) Leave(p *Player) {
	c.removeMember(p)
	p.removeChannelRef(c.Name)
}
