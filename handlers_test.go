package main

import (
	"strings"
	"testing"
	"time"
)

func readerFor(b *packetBuilder) *Reader {
	w := NewWriter()
	b.finish(w, 0)
	frames, err := ReadFrames(w.Bytes())
	if err != nil || len(frames) != 1 {
		panic("readerFor: bad frame")
	}
	return NewReader(frames[0].Payload)
}

func TestHandleChangeActionBroadcastsStats(t *testing.T) {
	w := newTestWorld()
	p := newPlayer(1, "alice")
	bystander := newPlayer(2, "bob")
	w.Roster.Add(p)
	w.Roster.Add(bystander)

	b := newBuilder()
	b.u8(1)
	b.str("playing something")
	b.str("md5hash")
	b.u32(0)
	b.u8(0)
	b.i32(123)

	hc := handlerCtx{w: w, p: p, r: readerFor(b)}
	if err := handleChangeAction(hc); err != nil {
		t.Fatalf("handleChangeAction: %v", err)
	}
	if p.MapID != 123 || p.InfoText != "playing something" {
		t.Errorf("expected player state updated, got %+v", p)
	}
	if got := bystander.Drain(); len(got) == 0 {
		t.Error("expected bystander to receive UserStats broadcast")
	}
	if got := p.Drain(); got != nil {
		t.Error("expected sender excluded from its own broadcast")
	}
}

func TestHandlePublicMessageBroadcastsToChannel(t *testing.T) {
	w := newTestWorld(ChannelDef{Name: "#osu", Topic: "t", ReadPriv: PrivNormal, WritePriv: PrivNormal, AutoJoin: true})
	sender := newPlayer(2, "alice")
	sender.Privileges = PrivNormal
	other := newPlayer(3, "bob")
	w.Roster.Add(sender)
	w.Roster.Add(other)
	ch := w.Channels.Lookup("#osu")
	ch.Join(sender)
	ch.Join(other)

	b := newBuilder()
	b.str(sender.Name)
	b.str("hello world")
	b.str("#osu")

	hc := handlerCtx{w: w, p: sender, r: readerFor(b)}
	if err := handlePublicMessage(hc); err != nil {
		t.Fatalf("handlePublicMessage: %v", err)
	}
	if got := other.Drain(); len(got) == 0 {
		t.Error("expected channel member to receive message")
	}
}

func TestHandlePublicMessageDeniedWithoutWritePriv(t *testing.T) {
	w := newTestWorld(ChannelDef{Name: "#staff", Topic: "t", ReadPriv: PrivModerator, WritePriv: PrivModerator, AutoJoin: false})
	sender := newPlayer(2, "alice")
	w.Roster.Add(sender)

	b := newBuilder()
	b.str(sender.Name)
	b.str("hello")
	b.str("#staff")

	hc := handlerCtx{w: w, p: sender, r: readerFor(b)}
	err := handlePublicMessage(hc)
	if err == nil {
		t.Fatal("expected denial error")
	}
	if kind, ok := kindOf(err); !ok || kind != KindDenied {
		t.Errorf("expected KindDenied, got %v", err)
	}
}

func TestHandlePublicMessageUnknownChannel(t *testing.T) {
	w := newTestWorld()
	sender := newPlayer(2, "alice")
	w.Roster.Add(sender)

	b := newBuilder()
	b.str(sender.Name)
	b.str("hello")
	b.str("#nonexistent")

	hc := handlerCtx{w: w, p: sender, r: readerFor(b)}
	err := handlePublicMessage(hc)
	if kind, ok := kindOf(err); !ok || kind != KindNoSuchChannel {
		t.Errorf("expected KindNoSuchChannel, got %v", err)
	}
}

func TestHandlePublicMessageDispatchesCommand(t *testing.T) {
	w := newTestWorld(ChannelDef{Name: "#osu", Topic: "t", ReadPriv: PrivNormal, WritePriv: PrivNormal, AutoJoin: true})
	w.CommandPrefix = "!"
	sender := newPlayer(2, "alice")
	sender.Privileges = PrivNormal
	w.Roster.Add(sender)
	ch := w.Channels.Lookup("#osu")
	ch.Join(sender)

	b := newBuilder()
	b.str(sender.Name)
	b.str("!help")
	b.str("#osu")

	hc := handlerCtx{w: w, p: sender, r: readerFor(b)}
	if err := handlePublicMessage(hc); err != nil {
		t.Fatalf("handlePublicMessage: %v", err)
	}
	// fakeCommands.Process always returns (false, ""), so nothing should be
	// enqueued to anyone - this exercises the dispatch path without crashing.
	if got := sender.Drain(); got != nil {
		t.Errorf("expected no reply from fake command processor, got %v", got)
	}
}

// stubCommands lets a single test control the (public, response) tuple
// returned from command dispatch, unlike fakeCommands which always no-ops.
type stubCommands struct {
	public bool
	resp   string
}

func (s stubCommands) Process(p *Player, channel *Channel, message string) (bool, string) {
	return s.public, s.resp
}

func TestDispatchCommandEchoesTriggeringMessagePublicly(t *testing.T) {
	w := newTestWorld(ChannelDef{Name: "#osu", Topic: "t", ReadPriv: PrivNormal, WritePriv: PrivNormal, AutoJoin: true})
	w.CommandProcessor = stubCommands{public: true, resp: "alice rolls 50"}
	sender := newPlayer(2, "alice")
	sender.Privileges = PrivNormal
	w.Roster.Add(sender)
	ch := w.Channels.Lookup("#osu")
	ch.Join(sender)
	observer := newPlayer(3, "bob")
	observer.Privileges = PrivNormal
	w.Roster.Add(observer)
	ch.Join(observer)

	dispatchCommand(w, sender, ch, "!roll 50")

	got := observer.Drain()
	wantMinLen := len(buildPublicMessage(sender, ch.Name, "!roll 50")) + len(buildPublicMessage(w.Bot, ch.Name, "alice rolls 50"))
	if len(got) < wantMinLen {
		t.Fatalf("expected both the echoed trigger message and the bot reply, got %d bytes, want at least %d", len(got), wantMinLen)
	}
	if got := sender.Drain(); got != nil {
		t.Error("expected the sender to not receive its own echoed message")
	}
}

func TestDispatchCommandEchoesSelectivelyToStaffWhenNotPublic(t *testing.T) {
	w := newTestWorld(ChannelDef{Name: "#osu", Topic: "t", ReadPriv: PrivNormal, WritePriv: PrivNormal, AutoJoin: true})
	w.CommandProcessor = stubCommands{public: false, resp: "here are your stats"}
	sender := newPlayer(2, "alice")
	sender.Privileges = PrivNormal
	w.Roster.Add(sender)
	ch := w.Channels.Lookup("#osu")
	ch.Join(sender)
	staff := newPlayer(3, "mod")
	staff.Privileges = PrivModerator
	w.Roster.Add(staff)
	bystander := newPlayer(4, "bystander")
	bystander.Privileges = PrivNormal
	w.Roster.Add(bystander)
	ch.Join(bystander)

	dispatchCommand(w, sender, ch, "!stats")

	got := staff.Drain()
	wantMinLen := len(buildPrivateMessage(sender, staff.Name, "!stats")) + len(buildPrivateMessage(w.Bot, staff.Name, "here are your stats"))
	if len(got) < wantMinLen {
		t.Fatalf("expected staff to receive both the echoed trigger message and the bot reply, got %d bytes, want at least %d", len(got), wantMinLen)
	}
	if got := bystander.Drain(); got != nil {
		t.Error("expected a non-staff channel member to not receive the selectively-routed echo")
	}
}

func TestResolvePublicTargetSpectatorChannel(t *testing.T) {
	w := newTestWorld()
	host := newPlayer(1, "host")
	follower := newPlayer(2, "follower")
	w.Roster.Add(host)
	w.Roster.Add(follower)
	w.AddSpectator(host, follower)

	c := resolvePublicTarget(w, follower, "#spectator")
	if c == nil || c.Name != SpectatorChannelName(host.ID) {
		t.Errorf("expected spectator channel resolved, got %+v", c)
	}
}

func TestResolvePublicTargetMultiplayerChannelNoneWhenNotInMatch(t *testing.T) {
	w := newTestWorld()
	p := newPlayer(1, "alice")
	w.Roster.Add(p)
	if c := resolvePublicTarget(w, p, "#multiplayer"); c != nil {
		t.Errorf("expected nil channel when player not in a match, got %+v", c)
	}
}

func TestHandleLogoutTearsDownPlayer(t *testing.T) {
	w := newTestWorld()
	p := newPlayer(1, "alice")
	w.Roster.Add(p)

	hc := handlerCtx{w: w, p: p, r: NewReader(nil)}
	if err := handleLogout(hc); err != nil {
		t.Fatalf("handleLogout: %v", err)
	}
	if w.Roster.LookupByID(1) != nil {
		t.Error("expected player removed from roster")
	}
}

func TestHandlePingIsNoop(t *testing.T) {
	w := newTestWorld()
	p := newPlayer(1, "alice")
	hc := handlerCtx{w: w, p: p, r: NewReader(nil)}
	if err := handlePing(hc); err != nil {
		t.Fatalf("handlePing: %v", err)
	}
}

func TestHandleStatsUpdateReqEnqueuesStats(t *testing.T) {
	w := newTestWorld()
	p := newPlayer(1, "alice")
	hc := handlerCtx{w: w, p: p, r: NewReader(nil)}
	if err := handleStatsUpdateReq(hc); err != nil {
		t.Fatalf("handleStatsUpdateReq: %v", err)
	}
	if got := p.Drain(); len(got) == 0 {
		t.Error("expected stats packet enqueued")
	}
}

func TestHandleStartSpectateJoinsHost(t *testing.T) {
	w := newTestWorld()
	host := newPlayer(1, "host")
	follower := newPlayer(2, "follower")
	w.Roster.Add(host)
	w.Roster.Add(follower)

	b := newBuilder()
	b.i32(host.ID)
	hc := handlerCtx{w: w, p: follower, r: readerFor(b)}
	if err := handleStartSpectate(hc); err != nil {
		t.Fatalf("handleStartSpectate: %v", err)
	}
	if follower.Spectating() != host {
		t.Error("expected follower spectating host")
	}
}

func TestHandleStartSpectateNoSuchUser(t *testing.T) {
	w := newTestWorld()
	follower := newPlayer(2, "follower")
	w.Roster.Add(follower)

	b := newBuilder()
	b.i32(999)
	hc := handlerCtx{w: w, p: follower, r: readerFor(b)}
	err := handleStartSpectate(hc)
	if kind, ok := kindOf(err); !ok || kind != KindNoSuchUser {
		t.Errorf("expected KindNoSuchUser, got %v", err)
	}
}

func TestHandleStopSpectateNoopWhenNotSpectating(t *testing.T) {
	w := newTestWorld()
	p := newPlayer(1, "alice")
	hc := handlerCtx{w: w, p: p, r: NewReader(nil)}
	if err := handleStopSpectate(hc); err != nil {
		t.Fatalf("handleStopSpectate: %v", err)
	}
}

func TestHandleStopSpectateRemoves(t *testing.T) {
	w := newTestWorld()
	host := newPlayer(1, "host")
	follower := newPlayer(2, "follower")
	w.Roster.Add(host)
	w.Roster.Add(follower)
	w.AddSpectator(host, follower)

	hc := handlerCtx{w: w, p: follower, r: NewReader(nil)}
	if err := handleStopSpectate(hc); err != nil {
		t.Fatalf("handleStopSpectate: %v", err)
	}
	if follower.Spectating() != nil {
		t.Error("expected spectating relation cleared")
	}
}

func TestHandleSpectateFramesRelays(t *testing.T) {
	w := newTestWorld()
	host := newPlayer(1, "host")
	follower := newPlayer(2, "follower")
	w.Roster.Add(host)
	w.Roster.Add(follower)
	w.AddSpectator(host, follower)
	follower.Drain()
	host.Drain()

	hc := handlerCtx{w: w, p: host, r: NewReader([]byte{1, 2, 3})}
	if err := handleSpectateFrames(hc); err != nil {
		t.Fatalf("handleSpectateFrames: %v", err)
	}
	if got := follower.Drain(); len(got) == 0 {
		t.Error("expected follower to receive relayed frames")
	}
}

func TestHandleCantSpectate(t *testing.T) {
	w := newTestWorld()
	host := newPlayer(1, "host")
	follower := newPlayer(2, "follower")
	w.Roster.Add(host)
	w.Roster.Add(follower)
	w.AddSpectator(host, follower)
	host.Drain()

	hc := handlerCtx{w: w, p: follower, r: NewReader(nil)}
	if err := handleCantSpectate(hc); err != nil {
		t.Fatalf("handleCantSpectate: %v", err)
	}
	if got := host.Drain(); len(got) == 0 {
		t.Error("expected host notified")
	}
}

func TestHandlePrivateMessageDeliversToTarget(t *testing.T) {
	w := newTestWorld()
	sender := newPlayer(2, "alice")
	target := newPlayer(3, "bob")
	w.Roster.Add(sender)
	w.Roster.Add(target)

	b := newBuilder()
	b.str(sender.Name)
	b.str("hi there")
	b.str("bob")
	hc := handlerCtx{w: w, p: sender, r: readerFor(b)}
	if err := handlePrivateMessage(hc); err != nil {
		t.Fatalf("handlePrivateMessage: %v", err)
	}
	if got := target.Drain(); len(got) == 0 {
		t.Error("expected target to receive private message")
	}
}

func TestHandlePrivateMessageNoSuchUser(t *testing.T) {
	w := newTestWorld()
	sender := newPlayer(2, "alice")
	w.Roster.Add(sender)

	b := newBuilder()
	b.str(sender.Name)
	b.str("hi")
	b.str("ghost")
	hc := handlerCtx{w: w, p: sender, r: readerFor(b)}
	err := handlePrivateMessage(hc)
	if kind, ok := kindOf(err); !ok || kind != KindNoSuchUser {
		t.Errorf("expected KindNoSuchUser, got %v", err)
	}
}

func TestHandlePrivateMessageBlockedByPMPrivate(t *testing.T) {
	w := newTestWorld()
	sender := newPlayer(2, "alice")
	target := newPlayer(3, "bob")
	target.PMPrivate = true
	w.Roster.Add(sender)
	w.Roster.Add(target)

	b := newBuilder()
	b.str(sender.Name)
	b.str("hi")
	b.str("bob")
	hc := handlerCtx{w: w, p: sender, r: readerFor(b)}
	err := handlePrivateMessage(hc)
	if kind, ok := kindOf(err); !ok || kind != KindBlocking {
		t.Errorf("expected KindBlocking, got %v", err)
	}
	if got := sender.Drain(); len(got) == 0 {
		t.Error("expected sender notified of block")
	}
}

func TestHandlePrivateMessageFriendBypassesBlock(t *testing.T) {
	w := newTestWorld()
	sender := newPlayer(2, "alice")
	target := newPlayer(3, "bob")
	target.PMPrivate = true
	target.AddFriend(sender.ID)
	w.Roster.Add(sender)
	w.Roster.Add(target)

	b := newBuilder()
	b.str(sender.Name)
	b.str("hi")
	b.str("bob")
	hc := handlerCtx{w: w, p: sender, r: readerFor(b)}
	if err := handlePrivateMessage(hc); err != nil {
		t.Fatalf("handlePrivateMessage: %v", err)
	}
	if got := target.Drain(); len(got) == 0 {
		t.Error("expected friend to bypass PMPrivate block")
	}
}

func TestHandlePrivateMessageSilencedTarget(t *testing.T) {
	w := newTestWorld()
	sender := newPlayer(2, "alice")
	target := newPlayer(3, "bob")
	target.SilenceEnd = time.Now().Add(time.Hour)
	w.Roster.Add(sender)
	w.Roster.Add(target)

	b := newBuilder()
	b.str(sender.Name)
	b.str("hi")
	b.str("bob")
	hc := handlerCtx{w: w, p: sender, r: readerFor(b)}
	err := handlePrivateMessage(hc)
	if kind, ok := kindOf(err); !ok || kind != KindSilenced {
		t.Errorf("expected KindSilenced, got %v", err)
	}
}

func TestHandlePrivateMessageToBotDispatchesCommand(t *testing.T) {
	w := newTestWorld()
	w.CommandPrefix = "!"
	sender := newPlayer(2, "alice")
	w.Roster.Add(sender)

	b := newBuilder()
	b.str(sender.Name)
	b.str("!help")
	b.str(botName)
	hc := handlerCtx{w: w, p: sender, r: readerFor(b)}
	if err := handlePrivateMessage(hc); err != nil {
		t.Fatalf("handlePrivateMessage: %v", err)
	}
}

func TestHandlePartAndJoinLobby(t *testing.T) {
	w := newTestWorld()
	p := newPlayer(1, "alice")
	w.Roster.Add(p)

	hc := handlerCtx{w: w, p: p, r: NewReader(nil)}
	if err := handleJoinLobby(hc); err != nil {
		t.Fatalf("handleJoinLobby: %v", err)
	}
	if !p.inLobby {
		t.Error("expected inLobby true after join")
	}
	if err := handlePartLobby(hc); err != nil {
		t.Fatalf("handlePartLobby: %v", err)
	}
	if p.inLobby {
		t.Error("expected inLobby false after part")
	}
}

func TestHandleCreateMatchSeatsCreatorAndBroadcasts(t *testing.T) {
	w := newTestWorld()
	host := newPlayer(1, "host")
	lobbyBrowser := newPlayer(2, "browser")
	lobbyBrowser.inLobby = true
	w.Roster.Add(host)
	w.Roster.Add(lobbyBrowser)

	b := newBuilder()
	b.str("My Match")
	b.str("")
	hc := handlerCtx{w: w, p: host, r: readerFor(b)}
	if err := handleCreateMatch(hc); err != nil {
		t.Fatalf("handleCreateMatch: %v", err)
	}
	if host.Match() == nil {
		t.Fatal("expected host seated in a match")
	}
	if got := host.Drain(); len(got) == 0 {
		t.Error("expected host to receive MatchNew")
	}
	if got := lobbyBrowser.Drain(); len(got) == 0 {
		t.Error("expected lobby browser notified of new match")
	}
}

func TestHandleJoinMatchWrongPassword(t *testing.T) {
	w := newTestWorld()
	host := newPlayer(1, "host")
	guest := newPlayer(2, "guest")
	w.Roster.Add(host)
	w.Roster.Add(guest)
	m, err := w.Matches.Create("Match", "secret", host)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	b := newBuilder()
	b.i32(int32(m.ID))
	b.str("wrong")
	hc := handlerCtx{w: w, p: guest, r: readerFor(b)}
	err = handleJoinMatch(hc)
	if kind, ok := kindOf(err); !ok || kind != KindDenied {
		t.Errorf("expected KindDenied, got %v", err)
	}
}

func TestHandleJoinMatchSucceeds(t *testing.T) {
	w := newTestWorld()
	host := newPlayer(1, "host")
	guest := newPlayer(2, "guest")
	w.Roster.Add(host)
	w.Roster.Add(guest)
	m, err := w.Matches.Create("Match", "", host)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	b := newBuilder()
	b.i32(int32(m.ID))
	b.str("")
	hc := handlerCtx{w: w, p: guest, r: readerFor(b)}
	if err := handleJoinMatch(hc); err != nil {
		t.Fatalf("handleJoinMatch: %v", err)
	}
	if guest.Match() != m {
		t.Error("expected guest seated in match")
	}
}

func TestHandleJoinMatchNoSuchMatch(t *testing.T) {
	w := newTestWorld()
	guest := newPlayer(2, "guest")
	w.Roster.Add(guest)

	b := newBuilder()
	b.i32(999)
	b.str("")
	hc := handlerCtx{w: w, p: guest, r: readerFor(b)}
	err := handleJoinMatch(hc)
	if kind, ok := kindOf(err); !ok || kind != KindNoSuchMatch {
		t.Errorf("expected KindNoSuchMatch, got %v", err)
	}
}

func TestHandlePartMatchNoopWhenNotInMatch(t *testing.T) {
	w := newTestWorld()
	p := newPlayer(1, "alice")
	hc := handlerCtx{w: w, p: p, r: NewReader(nil)}
	if err := handlePartMatch(hc); err != nil {
		t.Fatalf("handlePartMatch: %v", err)
	}
}

func TestWithMatchErrorsWhenNotInMatch(t *testing.T) {
	p := newPlayer(1, "alice")
	hc := handlerCtx{w: newTestWorld(), p: p, r: NewReader(nil)}
	_, err := withMatch(hc)
	if kind, ok := kindOf(err); !ok || kind != KindNotInMatch {
		t.Errorf("expected KindNotInMatch, got %v", err)
	}
}

func setupMatch(w *World, host *Player) *Match {
	m, err := w.Matches.Create("Match", "", host)
	if err != nil {
		panic(err)
	}
	host.setMatch(m)
	return m
}

func TestHandleMatchChangeSlotMoves(t *testing.T) {
	w := newTestWorld()
	host := newPlayer(1, "host")
	w.Roster.Add(host)
	m := setupMatch(w, host)

	b := newBuilder()
	b.i32(5)
	hc := handlerCtx{w: w, p: host, r: readerFor(b)}
	if err := handleMatchChangeSlot(hc); err != nil {
		t.Fatalf("handleMatchChangeSlot: %v", err)
	}
	if m.slotOf(host) != 5 {
		t.Errorf("expected host moved to slot 5, got %d", m.slotOf(host))
	}
}

func TestHandleMatchReadyAndNotReady(t *testing.T) {
	w := newTestWorld()
	host := newPlayer(1, "host")
	w.Roster.Add(host)
	m := setupMatch(w, host)

	hc := handlerCtx{w: w, p: host, r: NewReader(nil)}
	if err := handleMatchReady(hc); err != nil {
		t.Fatalf("handleMatchReady: %v", err)
	}
	slot := m.slotOf(host)
	if m.Slots[slot].Status != SlotReady {
		t.Errorf("expected slot ready, got %v", m.Slots[slot].Status)
	}
	if err := handleMatchNotReady(hc); err != nil {
		t.Fatalf("handleMatchNotReady: %v", err)
	}
	if m.Slots[slot].Status != SlotNotReady {
		t.Errorf("expected slot not-ready, got %v", m.Slots[slot].Status)
	}
}

func TestHandleMatchLockRequiresHost(t *testing.T) {
	w := newTestWorld()
	host := newPlayer(1, "host")
	guest := newPlayer(2, "guest")
	w.Roster.Add(host)
	w.Roster.Add(guest)
	m := setupMatch(w, host)
	m.JoinSlot(guest)
	guest.setMatch(m)

	b := newBuilder()
	b.i32(2)
	hc := handlerCtx{w: w, p: guest, r: readerFor(b)}
	err := handleMatchLock(hc)
	if kind, ok := kindOf(err); !ok || kind != KindDenied {
		t.Errorf("expected KindDenied for non-host lock, got %v", err)
	}
}

func TestHandleMatchChangeSettingsRequiresHostAndAnnouncesMapChange(t *testing.T) {
	w := newTestWorld()
	host := newPlayer(1, "host")
	w.Roster.Add(host)
	m := setupMatch(w, host)
	ch := w.Channels.EnsureDynamic(MatchChannelName(m.ID))
	ch.Join(host)
	m.Chat = ch

	b := newBuilder()
	b.u8(0) // in_progress
	b.u8(0) // match_type
	b.u32(0)
	b.str("New Name")
	b.str("")
	b.str("New Map")
	b.i32(999)
	b.str("newmd5")
	for i := 0; i < maxSlots; i++ {
		b.u8(0)
	}
	for i := 0; i < maxSlots; i++ {
		b.u8(0)
	}
	b.i32(host.ID)
	b.u8(0)
	b.u8(0)
	b.u8(0)
	b.u8(0)
	hc := handlerCtx{w: w, p: host, r: readerFor(b)}
	if err := handleMatchChangeSettings(hc); err != nil {
		t.Fatalf("handleMatchChangeSettings: %v", err)
	}
	if m.MapID != 999 || m.Name != "New Name" {
		t.Errorf("expected settings applied, got %+v", m)
	}
	if got := host.Drain(); len(got) == 0 {
		t.Error("expected host to receive map-change announcement and/or match update")
	}
}

func TestHandleMatchStartRequiresHostAndEnqueuesStart(t *testing.T) {
	w := newTestWorld()
	host := newPlayer(1, "host")
	w.Roster.Add(host)
	m := setupMatch(w, host)
	m.SetReady(host, true)

	hc := handlerCtx{w: w, p: host, r: NewReader(nil)}
	if err := handleMatchStart(hc); err != nil {
		t.Fatalf("handleMatchStart: %v", err)
	}
	if got := host.Drain(); len(got) == 0 {
		t.Error("expected host to receive MatchStart")
	}
}

func TestHandleMatchStartDeniedForNonHost(t *testing.T) {
	w := newTestWorld()
	host := newPlayer(1, "host")
	guest := newPlayer(2, "guest")
	w.Roster.Add(host)
	w.Roster.Add(guest)
	m := setupMatch(w, host)
	m.JoinSlot(guest)
	guest.setMatch(m)

	hc := handlerCtx{w: w, p: guest, r: NewReader(nil)}
	err := handleMatchStart(hc)
	if kind, ok := kindOf(err); !ok || kind != KindDenied {
		t.Errorf("expected KindDenied, got %v", err)
	}
}

func TestHandleMatchScoreUpdateRewritesAndBroadcasts(t *testing.T) {
	w := newTestWorld()
	host := newPlayer(1, "host")
	guest := newPlayer(2, "guest")
	w.Roster.Add(host)
	w.Roster.Add(guest)
	m := setupMatch(w, host)
	m.JoinSlot(guest)
	guest.setMatch(m)
	m.Start()
	host.Drain()
	guest.Drain()

	frame := make([]byte, 29)
	hc := handlerCtx{w: w, p: host, r: NewReader(frame)}
	if err := handleMatchScoreUpdate(hc); err != nil {
		t.Fatalf("handleMatchScoreUpdate: %v", err)
	}
	if got := guest.Drain(); len(got) == 0 {
		t.Error("expected guest to receive rewritten score frame")
	}
}

func TestHandleMatchCompleteBroadcastsWhenAllDone(t *testing.T) {
	w := newTestWorld()
	host := newPlayer(1, "host")
	w.Roster.Add(host)
	m := setupMatch(w, host)
	m.SetReady(host, true)
	m.Start()
	host.Drain()

	hc := handlerCtx{w: w, p: host, r: NewReader(nil)}
	if err := handleMatchComplete(hc); err != nil {
		t.Fatalf("handleMatchComplete: %v", err)
	}
	if got := host.Drain(); len(got) == 0 {
		t.Error("expected host to receive MatchComplete")
	}
}

func TestHandleMatchChangeModsHostSetsMatchModsWithoutFreemods(t *testing.T) {
	w := newTestWorld()
	host := newPlayer(1, "host")
	w.Roster.Add(host)
	m := setupMatch(w, host)

	b := newBuilder()
	b.u32(uint32(ModDoubleTime))
	hc := handlerCtx{w: w, p: host, r: readerFor(b)}
	if err := handleMatchChangeMods(hc); err != nil {
		t.Fatalf("handleMatchChangeMods: %v", err)
	}
	if m.Mods&uint32(ModDoubleTime) == 0 {
		t.Error("expected DoubleTime applied to match mods")
	}
}

func TestHandleMatchLoadCompleteBroadcastsWhenAllLoaded(t *testing.T) {
	w := newTestWorld()
	host := newPlayer(1, "host")
	w.Roster.Add(host)
	m := setupMatch(w, host)
	m.SetReady(host, true)
	m.Start()
	host.Drain()

	hc := handlerCtx{w: w, p: host, r: NewReader(nil)}
	if err := handleMatchLoadComplete(hc); err != nil {
		t.Fatalf("handleMatchLoadComplete: %v", err)
	}
	if got := host.Drain(); len(got) == 0 {
		t.Error("expected AllPlayersLoaded broadcast")
	}
}

func TestHandleMatchNoBeatmapAndHasBeatmap(t *testing.T) {
	w := newTestWorld()
	host := newPlayer(1, "host")
	w.Roster.Add(host)
	m := setupMatch(w, host)

	hc := handlerCtx{w: w, p: host, r: NewReader(nil)}
	if err := handleMatchNoBeatmap(hc); err != nil {
		t.Fatalf("handleMatchNoBeatmap: %v", err)
	}
	slot := m.slotOf(host)
	if m.Slots[slot].Status != SlotNoMap {
		t.Errorf("expected SlotNoMap, got %v", m.Slots[slot].Status)
	}
	if err := handleMatchHasBeatmap(hc); err != nil {
		t.Fatalf("handleMatchHasBeatmap: %v", err)
	}
	if m.Slots[slot].Status == SlotNoMap {
		t.Error("expected slot status cleared from SlotNoMap")
	}
}

func TestHandleMatchFailedBroadcasts(t *testing.T) {
	w := newTestWorld()
	host := newPlayer(1, "host")
	guest := newPlayer(2, "guest")
	w.Roster.Add(host)
	w.Roster.Add(guest)
	m := setupMatch(w, host)
	m.JoinSlot(guest)
	guest.setMatch(m)
	host.Drain()
	guest.Drain()

	hc := handlerCtx{w: w, p: host, r: NewReader(nil)}
	if err := handleMatchFailed(hc); err != nil {
		t.Fatalf("handleMatchFailed: %v", err)
	}
	if got := guest.Drain(); len(got) == 0 {
		t.Error("expected guest to receive PlayerFailed broadcast")
	}
}

func TestHandleMatchSkipRequestBroadcastsAndSkipsWhenAllDone(t *testing.T) {
	w := newTestWorld()
	host := newPlayer(1, "host")
	w.Roster.Add(host)
	m := setupMatch(w, host)
	m.SetReady(host, true)
	m.Start()
	host.Drain()

	hc := handlerCtx{w: w, p: host, r: NewReader(nil)}
	if err := handleMatchSkipRequest(hc); err != nil {
		t.Fatalf("handleMatchSkipRequest: %v", err)
	}
	if got := host.Drain(); len(got) == 0 {
		t.Error("expected skip-related packets enqueued")
	}
}

func TestHandleChannelJoinAndAlreadyMember(t *testing.T) {
	w := newTestWorld(ChannelDef{Name: "#osu", Topic: "t", ReadPriv: PrivNormal, WritePriv: PrivNormal, AutoJoin: false})
	p := newPlayer(1, "alice")
	p.Privileges = PrivNormal
	w.Roster.Add(p)

	b := newBuilder()
	b.str("#osu")
	hc := handlerCtx{w: w, p: p, r: readerFor(b)}
	if err := handleChannelJoin(hc); err != nil {
		t.Fatalf("handleChannelJoin: %v", err)
	}
	if got := p.Drain(); len(got) == 0 {
		t.Error("expected ChannelJoin packet enqueued")
	}

	b2 := newBuilder()
	b2.str("#osu")
	hc2 := handlerCtx{w: w, p: p, r: readerFor(b2)}
	err := handleChannelJoin(hc2)
	if kind, ok := kindOf(err); !ok || kind != KindAlreadyMember {
		t.Errorf("expected KindAlreadyMember, got %v", err)
	}
}

func TestJoinChannelByNameDeniedWithoutReadPriv(t *testing.T) {
	w := newTestWorld(ChannelDef{Name: "#staff", Topic: "t", ReadPriv: PrivModerator, WritePriv: PrivModerator, AutoJoin: false})
	p := newPlayer(1, "alice")
	w.Roster.Add(p)

	err := joinChannelByName(w, p, "#staff")
	if kind, ok := kindOf(err); !ok || kind != KindDenied {
		t.Errorf("expected KindDenied, got %v", err)
	}
}

func TestHandleMatchTransferHostRequiresHost(t *testing.T) {
	w := newTestWorld()
	host := newPlayer(1, "host")
	guest := newPlayer(2, "guest")
	w.Roster.Add(host)
	w.Roster.Add(guest)
	m := setupMatch(w, host)
	m.JoinSlot(guest)
	guest.setMatch(m)

	b := newBuilder()
	b.i32(1)
	hc := handlerCtx{w: w, p: guest, r: readerFor(b)}
	err := handleMatchTransferHost(hc)
	if kind, ok := kindOf(err); !ok || kind != KindDenied {
		t.Errorf("expected KindDenied, got %v", err)
	}
}

func TestHandleMatchTransferHostSucceeds(t *testing.T) {
	w := newTestWorld()
	host := newPlayer(1, "host")
	guest := newPlayer(2, "guest")
	w.Roster.Add(host)
	w.Roster.Add(guest)
	m := setupMatch(w, host)
	m.JoinSlot(guest)
	guest.setMatch(m)
	slot := m.slotOf(guest)

	b := newBuilder()
	b.i32(int32(slot))
	hc := handlerCtx{w: w, p: host, r: readerFor(b)}
	if err := handleMatchTransferHost(hc); err != nil {
		t.Fatalf("handleMatchTransferHost: %v", err)
	}
	if m.Host != guest {
		t.Errorf("expected host transferred to guest, got %+v", m.Host)
	}
}

func TestHandleFriendAddAndRemove(t *testing.T) {
	w := newTestWorld()
	p := newPlayer(1, "alice")

	b := newBuilder()
	b.i32(42)
	hc := handlerCtx{w: w, p: p, r: readerFor(b)}
	if err := handleFriendAdd(hc); err != nil {
		t.Fatalf("handleFriendAdd: %v", err)
	}
	if !p.IsFriend(42) {
		t.Error("expected 42 added as friend")
	}

	b2 := newBuilder()
	b2.i32(42)
	hc2 := handlerCtx{w: w, p: p, r: readerFor(b2)}
	if err := handleFriendRemove(hc2); err != nil {
		t.Fatalf("handleFriendRemove: %v", err)
	}
	if p.IsFriend(42) {
		t.Error("expected 42 removed as friend")
	}
}

func TestHandleMatchChangeTeamToggles(t *testing.T) {
	w := newTestWorld()
	host := newPlayer(1, "host")
	w.Roster.Add(host)
	m := setupMatch(w, host)
	slot := m.slotOf(host)
	before := m.Slots[slot].Team

	hc := handlerCtx{w: w, p: host, r: NewReader(nil)}
	if err := handleMatchChangeTeam(hc); err != nil {
		t.Fatalf("handleMatchChangeTeam: %v", err)
	}
	if m.Slots[slot].Team == before {
		t.Error("expected team to change")
	}
}

func TestHandleChannelPartSilentOnEmptyOrUnknown(t *testing.T) {
	w := newTestWorld()
	p := newPlayer(1, "alice")

	b := newBuilder()
	b.str("")
	hc := handlerCtx{w: w, p: p, r: readerFor(b)}
	if err := handleChannelPart(hc); err != nil {
		t.Fatalf("handleChannelPart empty name: %v", err)
	}

	b2 := newBuilder()
	b2.str("#nonexistent")
	hc2 := handlerCtx{w: w, p: p, r: readerFor(b2)}
	if err := handleChannelPart(hc2); err != nil {
		t.Fatalf("handleChannelPart unknown channel: %v", err)
	}
}

func TestHandleChannelPartLeavesChannel(t *testing.T) {
	w := newTestWorld(ChannelDef{Name: "#osu", Topic: "t", ReadPriv: 1, WritePriv: 1, AutoJoin: false})
	p := newPlayer(1, "alice")
	w.Roster.Add(p)
	ch := w.Channels.Lookup("#osu")
	ch.Join(p)

	b := newBuilder()
	b.str("#osu")
	hc := handlerCtx{w: w, p: p, r: readerFor(b)}
	if err := handleChannelPart(hc); err != nil {
		t.Fatalf("handleChannelPart: %v", err)
	}
	if ch.HasMember(p) {
		t.Error("expected player removed from channel")
	}
}

func TestHandleReceiveUpdatesSetsFilter(t *testing.T) {
	w := newTestWorld()
	p := newPlayer(1, "alice")

	b := newBuilder()
	b.u8(2)
	hc := handlerCtx{w: w, p: p, r: readerFor(b)}
	if err := handleReceiveUpdates(hc); err != nil {
		t.Fatalf("handleReceiveUpdates: %v", err)
	}
	if p.PresenceFilter != PresenceFilter(2) {
		t.Errorf("expected filter set to 2, got %v", p.PresenceFilter)
	}
}

func TestHandleSetAwayMessage(t *testing.T) {
	w := newTestWorld()
	p := newPlayer(1, "alice")

	b := newBuilder()
	b.str("brb")
	hc := handlerCtx{w: w, p: p, r: readerFor(b)}
	if err := handleSetAwayMessage(hc); err != nil {
		t.Fatalf("handleSetAwayMessage: %v", err)
	}
	if p.AwayMsg != "brb" {
		t.Errorf("expected away message set, got %q", p.AwayMsg)
	}
}

func TestHandleUserStatsRequestSendsRequestedStats(t *testing.T) {
	w := newTestWorld()
	p := newPlayer(1, "alice")
	other := newPlayer(2, "bob")
	w.Roster.Add(p)
	w.Roster.Add(other)

	b := newBuilder()
	b.i32List([]int32{2})
	hc := handlerCtx{w: w, p: p, r: readerFor(b)}
	if err := handleUserStatsRequest(hc); err != nil {
		t.Fatalf("handleUserStatsRequest: %v", err)
	}
	if got := p.Drain(); len(got) == 0 {
		t.Error("expected stats packet enqueued for requested user")
	}
}

func TestHandleUserStatsRequestIgnoresShortPayload(t *testing.T) {
	w := newTestWorld()
	p := newPlayer(1, "alice")
	hc := handlerCtx{w: w, p: p, r: NewReader([]byte{1, 2})}
	if err := handleUserStatsRequest(hc); err != nil {
		t.Fatalf("handleUserStatsRequest: %v", err)
	}
	if got := p.Drain(); got != nil {
		t.Error("expected no packet enqueued for short payload")
	}
}

func TestHandleMatchInviteSendsEmbed(t *testing.T) {
	w := newTestWorld()
	host := newPlayer(1, "host")
	target := newPlayer(2, "target")
	w.Roster.Add(host)
	w.Roster.Add(target)
	setupMatch(w, host)

	b := newBuilder()
	b.i32(target.ID)
	hc := handlerCtx{w: w, p: host, r: readerFor(b)}
	if err := handleMatchInvite(hc); err != nil {
		t.Fatalf("handleMatchInvite: %v", err)
	}
	if got := target.Drain(); len(got) == 0 {
		t.Error("expected invite message delivered")
	}
}

func TestHandleMatchInviteNotInMatch(t *testing.T) {
	w := newTestWorld()
	p := newPlayer(1, "alice")
	w.Roster.Add(p)

	b := newBuilder()
	b.i32(2)
	hc := handlerCtx{w: w, p: p, r: readerFor(b)}
	err := handleMatchInvite(hc)
	if kind, ok := kindOf(err); !ok || kind != KindNotInMatch {
		t.Errorf("expected KindNotInMatch, got %v", err)
	}
}

func TestHandleMatchChangePasswordRequiresHost(t *testing.T) {
	w := newTestWorld()
	host := newPlayer(1, "host")
	guest := newPlayer(2, "guest")
	w.Roster.Add(host)
	w.Roster.Add(guest)
	m := setupMatch(w, host)
	m.JoinSlot(guest)
	guest.setMatch(m)

	b := newBuilder()
	b.str("newpass")
	hc := handlerCtx{w: w, p: guest, r: readerFor(b)}
	err := handleMatchChangePassword(hc)
	if kind, ok := kindOf(err); !ok || kind != KindDenied {
		t.Errorf("expected KindDenied, got %v", err)
	}

	b2 := newBuilder()
	b2.str("newpass")
	hc2 := handlerCtx{w: w, p: host, r: readerFor(b2)}
	if err := handleMatchChangePassword(hc2); err != nil {
		t.Fatalf("handleMatchChangePassword as host: %v", err)
	}
	m.mu.Lock()
	pw := m.Password
	m.mu.Unlock()
	if pw != "newpass" {
		t.Errorf("expected password updated, got %q", pw)
	}
}

func TestHandleUserPresenceRequestSendsPresence(t *testing.T) {
	w := newTestWorld()
	p := newPlayer(1, "alice")
	other := newPlayer(2, "bob")
	w.Roster.Add(p)
	w.Roster.Add(other)

	b := newBuilder()
	b.i32List([]int32{2})
	hc := handlerCtx{w: w, p: p, r: readerFor(b)}
	if err := handleUserPresenceRequest(hc); err != nil {
		t.Fatalf("handleUserPresenceRequest: %v", err)
	}
	if got := p.Drain(); len(got) == 0 {
		t.Error("expected presence packet enqueued")
	}
}

func TestHandleToggleBlockNonFriendPM(t *testing.T) {
	w := newTestWorld()
	p := newPlayer(1, "alice")
	hc := handlerCtx{w: w, p: p, r: NewReader(nil)}

	before := p.PMPrivate
	if err := handleToggleBlockNonFriendPM(hc); err != nil {
		t.Fatalf("handleToggleBlockNonFriendPM: %v", err)
	}
	if p.PMPrivate == before {
		t.Error("expected PMPrivate toggled")
	}
}

func TestResolvePublicTargetByVerbatimName(t *testing.T) {
	w := newTestWorld(ChannelDef{Name: "#announce", Topic: "t", ReadPriv: 1, WritePriv: 1, AutoJoin: true})
	p := newPlayer(1, "alice")
	c := resolvePublicTarget(w, p, "#announce")
	if c == nil || c.Name != "#announce" {
		t.Errorf("expected verbatim channel lookup, got %+v", c)
	}
}

func TestApplyNowPlayingSetsMapID(t *testing.T) {
	p := newPlayer(1, "alice")
	applyNowPlaying(p, "is playing [https://osu.ppy.sh/b/456 Some Song]")
	if p.MapID != 456 {
		t.Errorf("expected MapID parsed from now-playing link, got %d", p.MapID)
	}
}

func TestApplyNowPlayingIgnoresNonMatchingMessage(t *testing.T) {
	p := newPlayer(1, "alice")
	p.MapID = 7
	applyNowPlaying(p, "just chatting")
	if p.MapID != 7 {
		t.Errorf("expected MapID unchanged, got %d", p.MapID)
	}
}

func TestFormatPPEstimatesNoBeatmapSet(t *testing.T) {
	w := newTestWorld()
	p := newPlayer(1, "alice")
	if got := formatPPEstimates(w, p); !strings.Contains(got, "No beatmap set") {
		t.Errorf("unexpected reply: %q", got)
	}
}

func TestFormatPPEstimatesLookupFailure(t *testing.T) {
	w := newTestWorld()
	p := newPlayer(1, "alice")
	p.MapID = 123
	got := formatPPEstimates(w, p)
	if !strings.Contains(got, "Could not look up") {
		t.Errorf("expected lookup-failure message, got %q", got)
	}
}
