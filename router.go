package main

import "log"

// PacketRouter holds the static packet-id → handler dispatch table, per
// spec §4.8 and SPEC_FULL.md §9's "dynamic dispatch on packet id is
// naturally a static table" note. Packet 68 (BeatmapInfoRequest) is
// intentionally absent, mirroring the original implementation's
// commented-out handler (see SPEC_FULL.md §9 Open Questions).
type PacketRouter struct {
	handlers map[uint16]handlerFunc
}

// NewPacketRouter builds the dispatch table.
func NewPacketRouter() *PacketRouter {
	r := &PacketRouter{handlers: make(map[uint16]handlerFunc)}
	r.register(inChangeAction, handleChangeAction)
	r.register(inPublicMessage, handlePublicMessage)
	r.register(inLogout, handleLogout)
	r.register(inStatsUpdateReq, handleStatsUpdateReq)
	r.register(inPing, handlePing)
	r.register(inStartSpectate, handleStartSpectate)
	r.register(inStopSpectate, handleStopSpectate)
	r.register(inSpectateFrames, handleSpectateFrames)
	r.register(inCantSpectate, handleCantSpectate)
	r.register(inPrivateMessage, handlePrivateMessage)
	r.register(inPartLobby, handlePartLobby)
	r.register(inJoinLobby, handleJoinLobby)
	r.register(inCreateMatch, handleCreateMatch)
	r.register(inJoinMatch, handleJoinMatch)
	r.register(inPartMatch, handlePartMatch)
	r.register(inMatchChangeSlot, handleMatchChangeSlot)
	r.register(inMatchReady, handleMatchReady)
	r.register(inMatchLock, handleMatchLock)
	r.register(inMatchChangeSettings, handleMatchChangeSettings)
	r.register(inMatchStart, handleMatchStart)
	r.register(inMatchScoreUpdate, handleMatchScoreUpdate)
	r.register(inMatchComplete, handleMatchComplete)
	r.register(inMatchChangeMods, handleMatchChangeMods)
	r.register(inMatchLoadComplete, handleMatchLoadComplete)
	r.register(inMatchNoBeatmap, handleMatchNoBeatmap)
	r.register(inMatchNotReady, handleMatchNotReady)
	r.register(inMatchFailed, handleMatchFailed)
	r.register(inMatchHasBeatmap, handleMatchHasBeatmap)
	r.register(inMatchSkipRequest, handleMatchSkipRequest)
	r.register(inChannelJoin, handleChannelJoin)
	r.register(inMatchTransferHost, handleMatchTransferHost)
	r.register(inFriendAdd, handleFriendAdd)
	r.register(inFriendRemove, handleFriendRemove)
	r.register(inMatchChangeTeam, handleMatchChangeTeam)
	r.register(inChannelPart, handleChannelPart)
	r.register(inReceiveUpdates, handleReceiveUpdates)
	r.register(inSetAwayMessage, handleSetAwayMessage)
	r.register(inUserStatsRequest, handleUserStatsRequest)
	r.register(inMatchInvite, handleMatchInvite)
	r.register(inMatchChangePassword, handleMatchChangePassword)
	r.register(inUserPresenceRequest, handleUserPresenceRequest)
	r.register(inToggleBlockNonFriendPM, handleToggleBlockNonFriendPM)
	return r
}

func (r *PacketRouter) register(id uint16, fn handlerFunc) {
	r.handlers[id] = fn
}

// Dispatch runs every frame in order against w/p. Per spec §7's propagation
// rules, a MalformedFrame or UnknownPacket error only aborts the current
// frame — Dispatch logs it and continues with the next one; any other
// error kind is reported to the invoker as a side-effect packet rather than
// aborting the stream.
func (r *PacketRouter) Dispatch(w *World, p *Player, frames []Frame) {
	for _, f := range frames {
		fn, ok := r.handlers[f.ID]
		if !ok {
			log.Printf("bancho: unknown packet id %d from %s, skipping %d bytes", f.ID, p.Name, len(f.Payload))
			continue
		}
		hc := handlerCtx{w: w, p: p, r: NewReader(f.Payload)}
		if err := fn(hc); err != nil {
			reportHandlerError(p, f.ID, err)
		}
	}
}

// reportHandlerError turns a handler's error into the side-effect packet
// (or silent log entry) spec §7 calls for; it never surfaces as an HTTP
// error, matching the "HTTP 200 with packet body" wire contract.
func reportHandlerError(p *Player, packetID uint16, err error) {
	kind, ok := kindOf(err)
	if !ok {
		log.Printf("bancho: packet %d from %s: %v", packetID, p.Name, err)
		return
	}
	switch kind {
	case KindMalformedFrame, KindUnknownPacket:
		log.Printf("bancho: packet %d from %s aborted: %v", packetID, p.Name, err)
	case KindSilenced:
		p.Enqueue(framePacket(outTargetIsSilenced, newBuilder()))
	case KindBlocking:
		p.Enqueue(framePacket(outUserPMBlocked, newBuilder()))
	case KindDenied, KindNotInMatch, KindInvalidSlot, KindSlotOccupied,
		KindNoSuchUser, KindNoSuchChannel, KindNoSuchMatch, KindLobbyFull,
		KindAlreadyMember:
		p.Enqueue(notifyPacket(err.Error()))
	default:
		log.Printf("bancho: packet %d from %s: %v", packetID, p.Name, err)
	}
}
