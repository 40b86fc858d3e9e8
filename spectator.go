package main

// SpectatorGroup operations implement spec §4.5's host→followers fan-out.
// There is no standalone SpectatorGroup type holding state beyond what
// Player already carries (spectating/spectators) and the dynamic channel
// the ChannelRegistry owns; this file is the set of world-level operations
// that keep those three in sync, mirroring room.go's pattern of operating
// directly on Client/Room fields rather than introducing a parallel
// bookkeeping struct.

// AddSpectator makes f a follower of host: joins the dynamic #spec_<id>
// channel (creating it if this is the first follower), records the
// relation on both players, and notifies the existing followers and the
// host per spec §4.5.
func (w *World) AddSpectator(host, f *Player) {
	chanName := SpectatorChannelName(host.ID)
	ch := w.Channels.EnsureDynamic(chanName)

	existing := host.Spectators()

	if !ch.HasMember(host) {
		ch.Join(host)
	}
	ch.Join(f)

	host.addSpectator(f)
	f.setSpectating(host)

	joined := newBuilder()
	joined.i32(f.ID)
	joinedPkt := framePacket(outSpectatorJoined, joined)
	for _, other := range existing {
		other.Enqueue(joinedPkt)
	}

	hostJoined := newBuilder()
	hostJoined.i32(f.ID)
	host.Enqueue(framePacket(outHostSpectatorJoined, hostJoined))
}

// RemoveSpectator detaches f from host's follower set and, if f was the
// last follower, disbands the dynamic channel entirely.
func (w *World) RemoveSpectator(host, f *Player) {
	host.removeSpectator(f)
	f.setSpectating(nil)

	chanName := SpectatorChannelName(host.ID)
	if ch := w.Channels.Lookup(chanName); ch != nil {
		ch.Leave(f)

		left := newBuilder()
		left.i32(f.ID)
		leftPkt := framePacket(outSpectatorLeft, left)
		for _, other := range host.Spectators() {
			other.Enqueue(leftPkt)
		}
		host.Enqueue(leftPkt)

		if len(host.Spectators()) == 0 {
			ch.Leave(host)
			w.Channels.DisbandIfEmpty(chanName)
		}
	}
}

// RelayFrames re-broadcasts a host's SpectateFrames payload verbatim to
// every follower, per spec §4.5.
func (w *World) RelayFrames(host *Player, payload []byte) {
	pkt := framePacket(outSpectateFrames, rawPayload(payload))
	for _, f := range host.Spectators() {
		f.Enqueue(pkt)
	}
}

// RelayCantSpectate rebroadcasts a follower's CantSpectate to the host and
// every other follower, per spec §4.5.
func (w *World) RelayCantSpectate(follower *Player) {
	host := follower.Spectating()
	if host == nil {
		return
	}
	b := newBuilder()
	b.i32(follower.ID)
	pkt := framePacket(outSpectatorCantSpectate, b)
	host.Enqueue(pkt)
	for _, other := range host.Spectators() {
		if other != follower {
			other.Enqueue(pkt)
		}
	}
}
