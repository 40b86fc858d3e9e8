package main

import (
	"context"
	"log"
	"time"
)

// Store is the external persistence collaborator named in spec §6. This
// module ships store/store.go as its default SQLite-backed implementation;
// the interface exists so the session layer never depends on a concrete
// storage technology.
type Store interface {
	UserByName(ctx context.Context, nameSafe string) (*Account, error)
	InsertUser(ctx context.Context, name, nameSafe, pwHash string) (*Account, error)
	InsertStats(ctx context.Context, userID int32) error
	LoadStats(ctx context.Context, userID int32) (Stats, error)
	LoadFriends(ctx context.Context, userID int32) ([]int32, error)
	AddFriend(ctx context.Context, ownerID, friendID int32) error
	RemoveFriend(ctx context.Context, ownerID, friendID int32) error
	IterChannels(ctx context.Context) ([]ChannelDef, error)
}

// Account is the store-level identity record, separate from the in-memory
// Player session it seeds (SPEC_FULL.md §3).
type Account struct {
	ID         int32
	Name       string
	NameSafe   string
	PWHash     string
	Privileges uint32
	SilenceEnd time.Time
}

// ChannelDef is a persisted static channel definition loaded at startup.
type ChannelDef struct {
	Name      string
	Topic     string
	ReadPriv  uint32
	WritePriv uint32
	AutoJoin  bool
}

// Geolocator is the external IP→country collaborator named in spec §6.
type Geolocator interface {
	Locate(ip string) (country string)
}

// CommandProcessor is the external `!`-command collaborator named in
// spec §6.
type CommandProcessor interface {
	Process(p *Player, channel *Channel, message string) (public bool, resp string)
}

// BeatmapFetcher is the external beatmap-metadata collaborator named in
// spec §6.
type BeatmapFetcher interface {
	BeatmapFromBID(ctx context.Context, id int32) (*BeatmapInfo, error)
	BeatmapFromMD5(ctx context.Context, md5 string) (*BeatmapInfo, error)
}

// BeatmapInfo is the subset of beatmap metadata the core needs for
// now-playing embeds and PP estimate replies.
type BeatmapInfo struct {
	ID         int32
	MD5        string
	Title      string
	Version    string
	StarRating float64
}

// World is the explicit, passed-around context that owns every process-wide
// singleton (SPEC_FULL.md §9's "explicit context vs hidden globals" note):
// the Roster, ChannelRegistry, MatchRegistry, the external collaborators,
// and the reserved bot Player. Handlers receive it rather than reaching for
// package-level globals.
type World struct {
	Roster   *Roster
	Channels *ChannelRegistry
	Matches  *MatchRegistry

	Store            Store
	Geolocator       Geolocator
	CommandProcessor CommandProcessor
	Beatmaps         BeatmapFetcher

	Bot *Player

	CommandPrefix string
	IdleTimeout   time.Duration
}

// NewWorld wires the registries and collaborators into a ready-to-use
// World, constructing the bot Player (kept in World.Bot, not added to the
// Roster) and registering the store's static channels.
func NewWorld(ctx context.Context, store Store, geo Geolocator, cmds CommandProcessor, beatmaps BeatmapFetcher) (*World, error) {
	w := &World{
		Roster:           NewRoster(),
		Channels:         NewChannelRegistry(),
		Matches:          NewMatchRegistry(),
		Store:            store,
		Geolocator:       geo,
		CommandProcessor: cmds,
		Beatmaps:         beatmaps,
		CommandPrefix:    "!",
		IdleTimeout:      2 * time.Minute,
	}

	w.Bot = newBanchoBot()

	defs, err := store.IterChannels(ctx)
	if err != nil {
		return nil, newErr(KindInternalStoreError, "load channels: %w", err)
	}
	for _, d := range defs {
		c := NewChannel(d.Name, d.Topic, d.AutoJoin)
		c.ReadPriv = d.ReadPriv
		c.WritePriv = d.WritePriv
		w.Channels.Register(c)
	}
	return w, nil
}

// teardownPlayer performs logout's structured destruction in the order
// spec §9 prescribes: spectator relations → match → channels → roster,
// then a logout broadcast to everyone remaining.
func (w *World) teardownPlayer(p *Player) {
	if host := p.Spectating(); host != nil {
		w.RemoveSpectator(host, p)
	}
	for _, f := range p.Spectators() {
		w.RemoveSpectator(p, f)
	}

	if m := p.Match(); m != nil {
		w.LeaveMatch(p, m)
	}

	for _, c := range p.Channels() {
		c.Leave(p)
	}

	w.Roster.Remove(p)

	b := newBuilder()
	b.i32(p.ID)
	w.Roster.Broadcast(framePacket(outLogout, b), nil)

	log.Printf("bancho: %s (id=%d) logged out", p.Name, p.ID)
}

// SweepIdle logs out every player whose last ping exceeds the idle
// threshold (spec §5's periodic sweep).
func (w *World) SweepIdle() {
	for _, p := range w.Roster.All() {
		if p == w.Bot {
			continue
		}
		if p.IdleFor() > w.IdleTimeout {
			w.teardownPlayer(p)
		}
	}
}

// buildUserPresence encodes a UserPresence packet for p.
func buildUserPresence(p *Player) []byte {
	b := newBuilder()
	b.i32(p.ID)
	b.str(p.Name)
	b.u8(uint8(p.UTCOffset + 24))
	b.u8(0) // country id placeholder; real GeoIP lookup is out of scope
	b.u8(uint8(p.Privileges))
	b.i32(0) // latitude placeholder
	b.i32(0) // longitude placeholder
	b.i32(p.Stats.Rank)
	return framePacket(outUserPresence, b)
}

// buildUserStats encodes a UserStats packet for p.
func buildUserStats(p *Player) []byte {
	b := newBuilder()
	b.i32(p.ID)
	b.u8(p.Action)
	b.str(p.InfoText)
	b.str(p.MapMD5)
	b.u32(p.Mods)
	b.u8(p.GameMode)
	b.i32(p.MapID)
	b.i64(p.Stats.RankedScore)
	b.i32(int32(p.Stats.Accuracy * 100))
	b.i32(p.Stats.Playcount)
	b.i64(p.Stats.TotalScore)
	b.i32(p.Stats.Rank)
	b.i32(p.Stats.PP)
	return framePacket(outUserStats, b)
}

// buildChannelInfo encodes a ChannelInfo packet for c's basic info.
func buildChannelInfo(c *Channel) []byte {
	b := newBuilder()
	b.str(c.Name)
	b.str(c.Topic)
	b.u16(uint16(c.MemberCount()))
	return framePacket(outChannelInfo, b)
}

// buildMatchPacket encodes a full match serialization, per spec §6's
// "Match serialization" layout, under the given outer packet id (MatchNew
// or MatchUpdate share the same body shape).
func buildMatchPacket(id uint16, m *Match) []byte {
	b := newBuilder()
	writeMatchBody(b, m)
	return framePacket(id, b)
}

func writeMatchBody(b *packetBuilder, m *Match) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b.u16(uint16(m.ID))
	if m.InProgress {
		b.u8(1)
	} else {
		b.u8(0)
	}
	b.u8(0) // match_type, always 0 (no special match types implemented)
	b.u32(m.Mods)
	b.str(m.Name)
	b.str(m.Password)
	b.str(m.MapName)
	b.i32(m.MapID)
	b.str(m.MapMD5)

	for i := range m.Slots {
		b.u8(uint8(m.Slots[i].Status))
	}
	for i := range m.Slots {
		b.u8(uint8(m.Slots[i].Team))
	}
	for i := range m.Slots {
		if m.Slots[i].Status.HasPlayer() && m.Slots[i].Player != nil {
			b.i32(m.Slots[i].Player.ID)
		}
	}

	hostID := int32(-1)
	if m.Host != nil {
		hostID = m.Host.ID
	}
	b.i32(hostID)
	b.u8(m.GameMode)
	b.u8(uint8(m.ScoringType))
	b.u8(uint8(m.TeamType))
	if m.Freemods {
		b.u8(1)
		for i := range m.Slots {
			b.u32(m.Slots[i].Mods)
		}
	} else {
		b.u8(0)
	}
	b.i32(m.Seed)
}

// DecodedMatch is the wire-level decode of a buildMatchPacket body: it
// mirrors writeMatchBody's field order field-for-field, but holds slot
// occupants as bare player ids rather than *Player (the server never needs
// to decode its own match broadcasts; this exists to make the spec §8
// encode/decode round-trip for the match composite type checkable).
type DecodedMatch struct {
	ID         int
	InProgress bool
	Mods       uint32
	Name       string
	Password   string
	MapName    string
	MapID      int32
	MapMD5     string

	SlotStatus [maxSlots]SlotStatus
	SlotTeam   [maxSlots]Team
	SlotPlayer [maxSlots]int32 // -1 when the slot has no player

	HostID      int32
	GameMode    uint8
	ScoringType ScoringType
	TeamType    TeamType

	Freemods bool
	SlotMods [maxSlots]uint32 // only meaningful when Freemods is true

	Seed int32
}

// decodeMatchBody parses a buildMatchPacket body (the packet id and length
// prefix are assumed already stripped) in the exact field order
// writeMatchBody emits it.
func decodeMatchBody(r *Reader) (*DecodedMatch, error) {
	d := &DecodedMatch{}
	for i := range d.SlotPlayer {
		d.SlotPlayer[i] = -1
	}

	id, err := r.U16()
	if err != nil {
		return nil, err
	}
	d.ID = int(id)

	inProgress, err := r.U8()
	if err != nil {
		return nil, err
	}
	d.InProgress = inProgress != 0

	if _, err := r.U8(); err != nil { // match_type, unused
		return nil, err
	}

	if d.Mods, err = r.U32(); err != nil {
		return nil, err
	}
	if d.Name, err = r.Str(); err != nil {
		return nil, err
	}
	if d.Password, err = r.Str(); err != nil {
		return nil, err
	}
	if d.MapName, err = r.Str(); err != nil {
		return nil, err
	}
	if d.MapID, err = r.I32(); err != nil {
		return nil, err
	}
	if d.MapMD5, err = r.Str(); err != nil {
		return nil, err
	}

	for i := range d.SlotStatus {
		v, err := r.U8()
		if err != nil {
			return nil, err
		}
		d.SlotStatus[i] = SlotStatus(v)
	}
	for i := range d.SlotTeam {
		v, err := r.U8()
		if err != nil {
			return nil, err
		}
		d.SlotTeam[i] = Team(v)
	}
	for i := range d.SlotStatus {
		if !d.SlotStatus[i].HasPlayer() {
			continue
		}
		pid, err := r.I32()
		if err != nil {
			return nil, err
		}
		d.SlotPlayer[i] = pid
	}

	if d.HostID, err = r.I32(); err != nil {
		return nil, err
	}
	gameMode, err := r.U8()
	if err != nil {
		return nil, err
	}
	d.GameMode = gameMode
	scoringType, err := r.U8()
	if err != nil {
		return nil, err
	}
	d.ScoringType = ScoringType(scoringType)
	teamType, err := r.U8()
	if err != nil {
		return nil, err
	}
	d.TeamType = TeamType(teamType)

	freemods, err := r.U8()
	if err != nil {
		return nil, err
	}
	d.Freemods = freemods != 0
	if d.Freemods {
		for i := range d.SlotMods {
			v, err := r.U32()
			if err != nil {
				return nil, err
			}
			d.SlotMods[i] = v
		}
	}

	if d.Seed, err = r.I32(); err != nil {
		return nil, err
	}
	return d, nil
}

// broadcastMatchUpdate sends MatchUpdate to every occupied slot's player
// and, unless suppressed, to every lobby subscriber. This is the single
// chokepoint spec §4.6's transition table calls for ("all transitions
// cause a full MatchUpdate enqueue ... unless stated").
func (w *World) broadcastMatchUpdate(m *Match, alsoLobby bool) {
	pkt := buildMatchPacket(outMatchUpdate, m)
	m.mu.Lock()
	players := make([]*Player, 0, maxSlots)
	for i := range m.Slots {
		if m.Slots[i].Status.HasPlayer() && m.Slots[i].Player != nil {
			players = append(players, m.Slots[i].Player)
		}
	}
	m.mu.Unlock()
	for _, p := range players {
		p.Enqueue(pkt)
	}
	if alsoLobby {
		w.broadcastToLobby(pkt)
	}
}

// broadcastToLobby sends bytes to every player currently browsing the
// multiplayer lobby list (in_lobby=true).
func (w *World) broadcastToLobby(b []byte) {
	for _, p := range w.Roster.All() {
		if p.inLobby {
			p.Enqueue(b)
		}
	}
}

// LeaveMatch implements spec §4.6's Disposal: reset the leaver's slot; if
// no occupied slots remain, destroy the match; otherwise, if the leaver was
// host, promote the first occupied slot's player and notify them.
func (w *World) LeaveMatch(p *Player, m *Match) {
	m.LeaveSlot(p)
	p.setMatch(nil)
	if ch := w.Channels.Lookup(MatchChannelName(m.ID)); ch != nil {
		ch.Leave(p)
	}

	if m.occupiedCount() == 0 {
		w.Matches.Destroy(m.ID)
		w.Channels.Unregister(MatchChannelName(m.ID))
		b := newBuilder()
		b.u16(uint16(m.ID))
		w.broadcastToLobby(framePacket(outMatchDisband, b))
		return
	}

	m.mu.Lock()
	wasHost := m.Host == p
	m.mu.Unlock()
	if wasHost {
		i := m.firstOccupied()
		if i >= 0 {
			m.mu.Lock()
			newHost := m.Slots[i].Player
			m.Host = newHost
			m.mu.Unlock()
			newHost.Enqueue(framePacket(outMatchTransferHost, newBuilder()))
		}
	}
	w.broadcastMatchUpdate(m, true)
}
