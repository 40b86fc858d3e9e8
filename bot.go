package main

// botID is the reserved Player id osu! clients recognize as "BanchoBot".
// Mirrors the original implementation's fixed bot account id.
const botID int32 = 1

// botName is the bot's display name, used as the sender of welcome
// messages, command replies, and now-playing PP estimate replies.
const botName = "BanchoBot"

// newBanchoBot constructs the bot's virtual Player. NewWorld stores it as
// World.Bot without adding it to the Roster, and it never goes through
// LoginService; private messages reach it by name (handlers.go compares the
// target against botName). This is the same "construct a session object without a real
// handshake" shortcut testbot.go used to seat a virtual client into a
// Room, here repointed at a chat-only participant instead of an audio
// source, since this protocol carries no audio payload.
func newBanchoBot() *Player {
	p := newPlayer(botID, botName)
	p.Token = "bot"
	p.Privileges = PrivNormal | PrivBAT | PrivDeveloper
	p.Action = 0
	p.InfoText = "genuinely don't know what's going on"
	return p
}

// botSendPublic builds and enqueues a PublicMessage from the bot into
// channel c, reusing the same framing every other chat send goes through
// (handlers.go's buildPublicMessage).
func botSendPublic(w *World, c *Channel, text string) {
	pkt := buildPublicMessage(w.Bot, c.Name, text)
	c.Broadcast(pkt, map[int32]bool{w.Bot.ID: true})
}

// botSendPrivate enqueues a PrivateMessage from the bot directly to one
// player.
func botSendPrivate(w *World, to *Player, text string) {
	pkt := buildPrivateMessage(w.Bot, to.Name, text)
	to.Enqueue(pkt)
}
