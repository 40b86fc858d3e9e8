package main

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
)

// --- simple packet builders shared by login.go and the handlers below ---

func userIDPacket(w *Writer, id int32) {
	b := newBuilder()
	b.i32(id)
	b.finish(w, outUserId)
}

func protocolVersionPacket(w *Writer) {
	b := newBuilder()
	b.i32(int32(banchoProtocolVersion))
	b.finish(w, outProtocolVersion)
}

func banchoPrivilegesPacket(w *Writer, p *Player) {
	b := newBuilder()
	b.i32(int32(p.Privileges))
	b.finish(w, outBanchoPrivileges)
}

func notif(w *Writer, message string) {
	b := newBuilder()
	b.str(message)
	b.finish(w, outNotification)
}

func notifyPacket(message string) []byte {
	b := newBuilder()
	b.str(message)
	return framePacket(outNotification, b)
}

func mainMenuIconPacket(w *Writer) {
	b := newBuilder()
	b.str("")
	b.finish(w, outMainMenuIcon)
}

func friendsListPacket(w *Writer, p *Player) {
	b := newBuilder()
	b.i32List(p.FriendIDs())
	b.finish(w, outFriendsList)
}

func silenceEndPacket(w *Writer, remainingSeconds int32) {
	b := newBuilder()
	b.i32(remainingSeconds)
	b.finish(w, outSilenceEnd)
}

func buildChannelInfoBody(c *Channel) []byte { return buildChannelInfo(c) }

func buildPublicMessage(sender *Player, targetName, text string) []byte {
	b := newBuilder()
	b.str(sender.Name)
	b.str(text)
	b.str(targetName)
	b.i32(sender.ID)
	return framePacket(outSendMessage, b)
}

func buildPrivateMessage(sender *Player, targetName, text string) []byte {
	return buildPublicMessage(sender, targetName, text)
}

// --- handler dispatch context ---

// handlerCtx is what every packet handler receives: the world, the invoking
// player, and a reader pre-bound to this frame's payload. Per spec §4.8,
// a handler may ignore trailing bytes or the whole frame.
type handlerCtx struct {
	w *World
	p *Player
	r *Reader
}

type handlerFunc func(hc handlerCtx) error

// nowPlayingPattern recognizes the now-playing chat convention (spec
// glossary): an embed link of the form [https://osu.ppy.sh/b/<id> <title>].
var nowPlayingPattern = regexp.MustCompile(`\[https?://osu\.ppy\.sh/b/(\d+)[^\]]*\]`)

func handleChangeAction(hc handlerCtx) error {
	action, err := hc.r.U8()
	if err != nil {
		return err
	}
	infoText, err := hc.r.Str()
	if err != nil {
		return err
	}
	mapMD5, err := hc.r.Str()
	if err != nil {
		return err
	}
	mods, err := hc.r.U32()
	if err != nil {
		return err
	}
	gameMode, err := hc.r.U8()
	if err != nil {
		return err
	}
	mapID, err := hc.r.I32()
	if err != nil {
		return err
	}

	p := hc.p
	p.Action = action
	p.InfoText = infoText
	p.MapMD5 = mapMD5
	p.Mods = mods
	p.GameMode = gameMode
	p.MapID = mapID

	pkt := buildUserStats(p)
	hc.w.Roster.Broadcast(pkt, map[int32]bool{p.ID: true})
	return nil
}

// resolvePublicTarget rewrites the symbolic #spectator/#multiplayer targets
// per spec §4.4 and otherwise looks the channel up verbatim.
func resolvePublicTarget(w *World, sender *Player, target string) *Channel {
	switch target {
	case "#spectator":
		hostID := sender.ID
		if h := sender.Spectating(); h != nil {
			hostID = h.ID
		}
		return w.Channels.Lookup(SpectatorChannelName(hostID))
	case "#multiplayer":
		if m := sender.Match(); m != nil {
			return w.Channels.Lookup(MatchChannelName(m.ID))
		}
		return nil
	default:
		return w.Channels.Lookup(target)
	}
}

func handlePublicMessage(hc handlerCtx) error {
	if _, err := hc.r.Str(); err != nil { // sender name, ignored: server is authoritative
		return err
	}
	message, err := hc.r.Str()
	if err != nil {
		return err
	}
	target, err := hc.r.Str()
	if err != nil {
		return err
	}

	c := resolvePublicTarget(hc.w, hc.p, target)
	if c == nil {
		return newErr(KindNoSuchChannel, "%s", target)
	}
	if !hc.p.CanWrite(c) {
		return newErr(KindDenied, "no write privilege on %s", c.Name)
	}

	message = truncateMessage(message)
	applyNowPlaying(hc.p, message)

	if strings.HasPrefix(message, hc.w.CommandPrefix) {
		dispatchCommand(hc.w, hc.p, c, message)
		return nil
	}

	pkt := buildPublicMessage(hc.p, c.Name, message)
	c.Broadcast(pkt, map[int32]bool{hc.p.ID: true})
	return nil
}

func applyNowPlaying(p *Player, message string) {
	m := nowPlayingPattern.FindStringSubmatch(message)
	if m == nil {
		return
	}
	if id, err := strconv.Atoi(m[1]); err == nil {
		p.MapID = int32(id)
	}
}

// ppEstimateAccuracies are the accuracy breakpoints spec §4.4 specifies for
// the bot's now-playing PP reply.
var ppEstimateAccuracies = []float64{90, 95, 98, 99, 100}

func dispatchCommand(w *World, p *Player, c *Channel, message string) {
	public, resp := w.CommandProcessor.Process(p, c, message)
	if resp == "" {
		// No command matched: nothing was triggered, so the triggering
		// message is dropped silently, same as an unrecognized command
		// in the original handler.
		return
	}
	if public {
		pkt := buildPublicMessage(p, c.Name, message)
		c.Broadcast(pkt, map[int32]bool{p.ID: true})
		botSendPublic(w, c, resp)
		return
	}
	for _, staff := range w.Roster.Staff() {
		if staff != p {
			staff.Enqueue(buildPrivateMessage(p, staff.Name, message))
		}
	}
	botSendPrivate(w, p, resp)
	for _, staff := range w.Roster.Staff() {
		if staff != p {
			botSendPrivate(w, staff, resp)
		}
	}
}

func handleLogout(hc handlerCtx) error {
	hc.w.teardownPlayer(hc.p)
	return nil
}

func handlePing(hc handlerCtx) error {
	return nil
}

func handleStatsUpdateReq(hc handlerCtx) error {
	hc.p.Enqueue(buildUserStats(hc.p))
	return nil
}

func handleStartSpectate(hc handlerCtx) error {
	hostID, err := hc.r.I32()
	if err != nil {
		return err
	}
	host := hc.w.Roster.LookupByID(hostID)
	if host == nil {
		return newErr(KindNoSuchUser, "id=%d", hostID)
	}
	hc.w.AddSpectator(host, hc.p)
	return nil
}

func handleStopSpectate(hc handlerCtx) error {
	host := hc.p.Spectating()
	if host == nil {
		return nil
	}
	hc.w.RemoveSpectator(host, hc.p)
	return nil
}

func handleSpectateFrames(hc handlerCtx) error {
	payload := hc.r.Rest()
	hc.w.RelayFrames(hc.p, payload)
	return nil
}

func handleCantSpectate(hc handlerCtx) error {
	hc.w.RelayCantSpectate(hc.p)
	return nil
}

func handlePrivateMessage(hc handlerCtx) error {
	if _, err := hc.r.Str(); err != nil {
		return err
	}
	message, err := hc.r.Str()
	if err != nil {
		return err
	}
	targetName, err := hc.r.Str()
	if err != nil {
		return err
	}

	if targetName == botName {
		message = truncateMessage(message)
		if strings.HasPrefix(message, hc.w.CommandPrefix) {
			if _, resp := hc.w.CommandProcessor.Process(hc.p, nil, message); resp != "" {
				botSendPrivate(hc.w, hc.p, resp)
			}
			return nil
		}
		if m := nowPlayingPattern.FindStringSubmatch(message); m != nil {
			applyNowPlaying(hc.p, message)
			botSendPrivate(hc.w, hc.p, formatPPEstimates(hc.w, hc.p))
		}
		return nil
	}

	target := hc.w.Roster.LookupByName(targetName)
	if target == nil {
		return newErr(KindNoSuchUser, "%s", targetName)
	}
	if target.PMPrivate && !target.IsFriend(hc.p.ID) {
		hc.p.Enqueue(notifyPacket(target.Name + " is blocking private messages from non-friends."))
		return newErr(KindBlocking, "")
	}
	if target.Silenced() {
		hc.p.Enqueue(notifyPacket(target.Name + " is silenced."))
		return newErr(KindSilenced, "")
	}

	message = truncateMessage(message)
	pkt := buildPrivateMessage(hc.p, target.Name, message)
	target.Enqueue(pkt)
	return nil
}

// formatPPEstimates renders the bot's reply for a now-playing private
// message, estimating PP at the accuracy breakpoints spec §4.4 names. Real
// difficulty/PP computation remains the external calculator's job per §1;
// this reply uses whatever SPEC_FULL.md §4.11's placeholder curve returns.
func formatPPEstimates(w *World, p *Player) string {
	if p.MapID == 0 {
		return "No beatmap set."
	}
	info, err := w.Beatmaps.BeatmapFromBID(context.Background(), p.MapID)
	if err != nil || info == nil {
		return "Could not look up beatmap metadata."
	}
	var sb strings.Builder
	sb.WriteString(info.Title)
	sb.WriteString(": ")
	for i, acc := range ppEstimateAccuracies {
		if i > 0 {
			sb.WriteString(" | ")
		}
		fmt.Fprintf(&sb, "%.0f%%: %.0fpp", acc, estimatePP(info.StarRating, acc))
	}
	return sb.String()
}

func handlePartLobby(hc handlerCtx) error {
	hc.p.inLobby = false
	return nil
}

func handleJoinLobby(hc handlerCtx) error {
	hc.p.inLobby = true
	for _, m := range hc.w.Matches.All() {
		hc.p.Enqueue(buildMatchPacket(outMatchNew, m))
	}
	return nil
}

func handleCreateMatch(hc handlerCtx) error {
	name, err := hc.r.Str()
	if err != nil {
		return err
	}
	password, err := hc.r.Str()
	if err != nil {
		return err
	}

	m, err := hc.w.Matches.Create(name, password, hc.p)
	if err != nil {
		return err
	}
	hc.p.setMatch(m)
	chatName := MatchChannelName(m.ID)
	ch := hc.w.Channels.EnsureDynamic(chatName)
	ch.Join(hc.p)
	m.Chat = ch

	hc.p.Enqueue(buildMatchPacket(outMatchNew, m))
	hc.w.broadcastToLobby(buildMatchPacket(outMatchNew, m))
	return nil
}

func handleJoinMatch(hc handlerCtx) error {
	matchID, err := hc.r.I32()
	if err != nil {
		return err
	}
	password, err := hc.r.Str()
	if err != nil {
		return err
	}
	m := hc.w.Matches.Lookup(int(matchID))
	if m == nil {
		return newErr(KindNoSuchMatch, "id=%d", matchID)
	}
	m.mu.Lock()
	wantPassword := m.Password
	m.mu.Unlock()
	if wantPassword != "" && wantPassword != password {
		return newErr(KindDenied, "bad match password")
	}
	if !m.JoinSlot(hc.p) {
		return newErr(KindLobbyFull, "match %d has no open slot", matchID)
	}
	hc.p.setMatch(m)
	ch := hc.w.Channels.EnsureDynamic(MatchChannelName(m.ID))
	ch.Join(hc.p)

	hc.p.Enqueue(buildMatchPacket(outMatchNew, m))
	hc.w.broadcastMatchUpdate(m, true)
	return nil
}

func handlePartMatch(hc handlerCtx) error {
	m := hc.p.Match()
	if m == nil {
		return nil
	}
	hc.w.LeaveMatch(hc.p, m)
	return nil
}

func withMatch(hc handlerCtx) (*Match, error) {
	m := hc.p.Match()
	if m == nil {
		log.Printf("bancho: %s sent a match packet while not in a match", hc.p.Name)
		return nil, newErr(KindNotInMatch, "")
	}
	return m, nil
}

func handleMatchChangeSlot(hc handlerCtx) error {
	m, err := withMatch(hc)
	if err != nil {
		return nil
	}
	to, err := hc.r.I32()
	if err != nil {
		return err
	}
	if err := m.ChangeSlot(hc.p, int(to)); err != nil {
		return err
	}
	hc.w.broadcastMatchUpdate(m, true)
	return nil
}

func handleMatchReady(hc handlerCtx) error {
	m, err := withMatch(hc)
	if err != nil {
		return nil
	}
	if err := m.SetReady(hc.p, true); err != nil {
		return err
	}
	hc.w.broadcastMatchUpdate(m, true)
	return nil
}

func handleMatchNotReady(hc handlerCtx) error {
	m, err := withMatch(hc)
	if err != nil {
		return nil
	}
	if err := m.SetReady(hc.p, false); err != nil {
		return err
	}
	hc.w.broadcastMatchUpdate(m, false) // lobby suppressed, per spec §4.6
	return nil
}

func handleMatchLock(hc handlerCtx) error {
	m, err := withMatch(hc)
	if err != nil {
		return nil
	}
	m.mu.Lock()
	isHost := m.Host == hc.p
	m.mu.Unlock()
	if !isHost {
		return newErr(KindDenied, "only the host may lock slots")
	}
	slot, err := hc.r.I32()
	if err != nil {
		return err
	}
	if err := m.LockSlot(int(slot)); err != nil {
		return err
	}
	hc.w.broadcastMatchUpdate(m, true)
	return nil
}

func handleMatchChangeSettings(hc handlerCtx) error {
	m, err := withMatch(hc)
	if err != nil {
		return nil
	}
	m.mu.Lock()
	isHost := m.Host == hc.p
	m.mu.Unlock()
	if !isHost {
		return newErr(KindDenied, "only the host may change settings")
	}

	var s MatchSettings
	if _, err := hc.r.U8(); err != nil { // in_progress, ignored here
		return err
	}
	if _, err := hc.r.U8(); err != nil { // match_type, ignored
		return err
	}
	mods, err := hc.r.U32()
	if err != nil {
		return err
	}
	if s.Name, err = hc.r.Str(); err != nil {
		return err
	}
	if s.Password, err = hc.r.Str(); err != nil {
		return err
	}
	if s.MapName, err = hc.r.Str(); err != nil {
		return err
	}
	if s.MapID, err = hc.r.I32(); err != nil {
		return err
	}
	if s.MapMD5, err = hc.r.Str(); err != nil {
		return err
	}
	// Skip slot status/team/occupant arrays — this server is authoritative
	// over slot state and ignores the client's echoed copy.
	var statuses [maxSlots]SlotStatus
	for i := 0; i < maxSlots; i++ {
		v, err := hc.r.U8()
		if err != nil {
			return err
		}
		statuses[i] = SlotStatus(v)
	}
	for i := 0; i < maxSlots; i++ {
		if _, err := hc.r.U8(); err != nil {
			return err
		}
	}
	for i := 0; i < maxSlots; i++ {
		if !statuses[i].HasPlayer() {
			continue
		}
		if _, err := hc.r.I32(); err != nil { // occupant user id
			return err
		}
	}
	if _, err := hc.r.I32(); err != nil { // host_id, ignored
		return err
	}
	gameMode, err := hc.r.U8()
	if err != nil {
		return err
	}
	s.GameMode = gameMode
	scoring, err := hc.r.U8()
	if err != nil {
		return err
	}
	s.ScoringType = ScoringType(scoring)
	teamType, err := hc.r.U8()
	if err != nil {
		return err
	}
	s.TeamType = TeamType(teamType)
	freemods, err := hc.r.U8()
	if err != nil {
		return err
	}
	s.Freemods = freemods != 0

	m.mu.Lock()
	m.Mods = mods
	m.mu.Unlock()

	mapChanged := m.ApplySettings(s)
	if mapChanged && m.Chat != nil {
		botSendPublic(hc.w, m.Chat, "Beatmap changed to: "+s.MapName)
	}
	hc.w.broadcastMatchUpdate(m, true)
	return nil
}

func handleMatchStart(hc handlerCtx) error {
	m, err := withMatch(hc)
	if err != nil {
		return nil
	}
	m.mu.Lock()
	isHost := m.Host == hc.p
	m.mu.Unlock()
	if !isHost {
		return newErr(KindDenied, "only the host may start the match")
	}
	playing := m.Start()
	startPkt := buildMatchPacket(outMatchStart, m)
	for _, pl := range playing {
		pl.Enqueue(startPkt)
	}
	return nil
}

func handleMatchScoreUpdate(hc handlerCtx) error {
	m, err := withMatch(hc)
	if err != nil {
		return nil
	}
	frame := hc.r.Rest()
	slotID := m.slotIDFor(hc.p)
	if slotID < 0 {
		return newErr(KindNotInMatch, "")
	}
	rewritten, err := RewriteScoreFrame(frame, slotID)
	if err != nil {
		return err
	}
	pkt := framePacket(outMatchScoreUpdate, rawPayload(rewritten))
	for i := range m.Slots {
		if m.Slots[i].Status.HasPlayer() && m.Slots[i].Player != nil {
			m.Slots[i].Player.Enqueue(pkt)
		}
	}
	return nil
}

func handleMatchComplete(hc handlerCtx) error {
	m, err := withMatch(hc)
	if err != nil {
		return nil
	}
	all, err := m.MarkComplete(hc.p)
	if err != nil {
		return err
	}
	if all {
		pkt := framePacket(outMatchComplete, newBuilder())
		for i := range m.Slots {
			if m.Slots[i].Player != nil {
				m.Slots[i].Player.Enqueue(pkt)
			}
		}
	}
	return nil
}

func handleMatchChangeMods(hc handlerCtx) error {
	m, err := withMatch(hc)
	if err != nil {
		return nil
	}
	mods, err := hc.r.U32()
	if err != nil {
		return err
	}
	m.mu.Lock()
	isHost := m.Host == hc.p
	m.mu.Unlock()
	if err := m.ChangeMods(hc.p, isHost, mods); err != nil {
		return err
	}
	hc.w.broadcastMatchUpdate(m, true)
	return nil
}

func handleMatchLoadComplete(hc handlerCtx) error {
	m, err := withMatch(hc)
	if err != nil {
		return nil
	}
	all, err := m.MarkLoaded(hc.p)
	if err != nil {
		return err
	}
	if all {
		pkt := framePacket(outMatchAllPlayersLoaded, newBuilder())
		for i := range m.Slots {
			if m.Slots[i].Status == SlotPlaying && m.Slots[i].Player != nil {
				m.Slots[i].Player.Enqueue(pkt)
			}
		}
	}
	return nil
}

func handleMatchNoBeatmap(hc handlerCtx) error {
	m, err := withMatch(hc)
	if err != nil {
		return nil
	}
	if err := m.SetHasMap(hc.p, false); err != nil {
		return err
	}
	hc.w.broadcastMatchUpdate(m, true)
	return nil
}

func handleMatchHasBeatmap(hc handlerCtx) error {
	m, err := withMatch(hc)
	if err != nil {
		return nil
	}
	if err := m.SetHasMap(hc.p, true); err != nil {
		return err
	}
	hc.w.broadcastMatchUpdate(m, true)
	return nil
}

func handleMatchFailed(hc handlerCtx) error {
	m, err := withMatch(hc)
	if err != nil {
		return nil
	}
	slotID := m.slotIDFor(hc.p)
	if slotID < 0 {
		return newErr(KindNotInMatch, "")
	}
	b := newBuilder()
	b.i32(int32(slotID))
	pkt := framePacket(outMatchPlayerFailed, b)
	for i := range m.Slots {
		if m.Slots[i].Player != nil {
			m.Slots[i].Player.Enqueue(pkt)
		}
	}
	return nil
}

func handleMatchSkipRequest(hc handlerCtx) error {
	m, err := withMatch(hc)
	if err != nil {
		return nil
	}
	slotID := m.slotIDFor(hc.p)
	if slotID < 0 {
		return newErr(KindNotInMatch, "")
	}
	b := newBuilder()
	b.i32(int32(slotID))
	skippedPkt := framePacket(outMatchPlayerSkipped, b)
	for i := range m.Slots {
		if m.Slots[i].Player != nil {
			m.Slots[i].Player.Enqueue(skippedPkt)
		}
	}

	all, err := m.MarkSkipped(hc.p)
	if err != nil {
		return err
	}
	if all {
		skipPkt := framePacket(outMatchSkip, newBuilder())
		for i := range m.Slots {
			if m.Slots[i].Player != nil {
				m.Slots[i].Player.Enqueue(skipPkt)
			}
		}
	}
	return nil
}

func handleChannelJoin(hc handlerCtx) error {
	name, err := hc.r.Str()
	if err != nil {
		return err
	}
	return joinChannelByName(hc.w, hc.p, name)
}

func joinChannelByName(w *World, p *Player, name string) error {
	c := w.Channels.Lookup(name)
	if c == nil {
		return newErr(KindNoSuchChannel, "%s", name)
	}
	if !p.CanRead(c) {
		return newErr(KindDenied, "no read privilege on %s", name)
	}
	if c.HasMember(p) {
		return newErr(KindAlreadyMember, "%s", name)
	}
	c.Join(p)

	b := newBuilder()
	b.str(c.Name)
	p.Enqueue(framePacket(outChannelJoin, b))

	w.Roster.Broadcast(buildChannelInfo(c), nil)
	return nil
}

func handleMatchTransferHost(hc handlerCtx) error {
	m, err := withMatch(hc)
	if err != nil {
		return nil
	}
	m.mu.Lock()
	isHost := m.Host == hc.p
	m.mu.Unlock()
	if !isHost {
		return newErr(KindDenied, "only the host may transfer host")
	}
	to, err := hc.r.I32()
	if err != nil {
		return err
	}
	target, err := m.TransferHost(int(to))
	if err != nil {
		return err
	}
	target.Enqueue(framePacket(outMatchTransferHost, newBuilder()))
	hc.w.broadcastMatchUpdate(m, true)
	return nil
}

func handleFriendAdd(hc handlerCtx) error {
	id, err := hc.r.I32()
	if err != nil {
		return err
	}
	hc.p.AddFriend(id)
	if err := hc.w.Store.AddFriend(context.Background(), hc.p.ID, id); err != nil {
		return newErr(KindInternalStoreError, "add friend: %w", err)
	}
	return nil
}

func handleFriendRemove(hc handlerCtx) error {
	id, err := hc.r.I32()
	if err != nil {
		return err
	}
	hc.p.RemoveFriend(id)
	if err := hc.w.Store.RemoveFriend(context.Background(), hc.p.ID, id); err != nil {
		return newErr(KindInternalStoreError, "remove friend: %w", err)
	}
	return nil
}

func handleMatchChangeTeam(hc handlerCtx) error {
	m, err := withMatch(hc)
	if err != nil {
		return nil
	}
	if err := m.ChangeTeam(hc.p); err != nil {
		return err
	}
	hc.w.broadcastMatchUpdate(m, true)
	return nil
}

func handleChannelPart(hc handlerCtx) error {
	name, err := hc.r.Str()
	if err != nil {
		return err
	}
	if name == "" {
		return nil // silent no-op, per spec §8 boundaries
	}
	c := hc.w.Channels.Lookup(name)
	if c == nil {
		return nil
	}
	c.Leave(hc.p)
	hc.w.Roster.Broadcast(buildChannelInfo(c), nil)
	return nil
}

func handleReceiveUpdates(hc handlerCtx) error {
	filter, err := hc.r.U8()
	if err != nil {
		return err
	}
	hc.p.PresenceFilter = PresenceFilter(filter)
	return nil
}

func handleSetAwayMessage(hc handlerCtx) error {
	msg, err := hc.r.Str()
	if err != nil {
		return err
	}
	hc.p.AwayMsg = msg
	return nil
}

func handleUserStatsRequest(hc handlerCtx) error {
	if hc.r.Remaining() < 6 {
		return nil // silently ignored, per spec §8 boundaries
	}
	ids, err := hc.r.I32List()
	if err != nil {
		return nil
	}
	for _, id := range ids {
		if target := hc.w.Roster.LookupByID(id); target != nil {
			hc.p.Enqueue(buildUserStats(target))
		}
	}
	return nil
}

func handleMatchInvite(hc handlerCtx) error {
	m := hc.p.Match()
	if m == nil {
		return newErr(KindNotInMatch, "")
	}
	userID, err := hc.r.I32()
	if err != nil {
		return err
	}
	target := hc.w.Roster.LookupByID(userID)
	if target == nil {
		return newErr(KindNoSuchUser, "id=%d", userID)
	}
	embed := fmt.Sprintf("[osump://%d/%s %s]", m.ID, m.Password, m.Name)
	botSendPrivate(hc.w, target, hc.p.Name+" invited you to join their multiplayer match: "+embed)
	return nil
}

func handleMatchChangePassword(hc handlerCtx) error {
	m, err := withMatch(hc)
	if err != nil {
		return nil
	}
	m.mu.Lock()
	isHost := m.Host == hc.p
	m.mu.Unlock()
	if !isHost {
		return newErr(KindDenied, "only the host may change the password")
	}
	newPassword, err := hc.r.Str()
	if err != nil {
		return err
	}
	m.ChangePassword(newPassword)
	return nil
}

func handleUserPresenceRequest(hc handlerCtx) error {
	ids, err := hc.r.I32List()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if target := hc.w.Roster.LookupByID(id); target != nil {
			hc.p.Enqueue(buildUserPresence(target))
		}
	}
	return nil
}

func handleToggleBlockNonFriendPM(hc handlerCtx) error {
	hc.p.PMPrivate = !hc.p.PMPrivate
	return nil
}
