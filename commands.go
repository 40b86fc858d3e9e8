package main

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
)

// DefaultCommands is the built-in CommandProcessor: a handful of commands
// plus a clean extension point, grounded on client.go's processControl flat
// switch texture (spec §6's `process(player, channel, message)` interface;
// richer command bodies are the pluggable collaborator's job per spec §1).
type DefaultCommands struct {
	prefix string
}

// NewDefaultCommands returns a DefaultCommands keyed on the given prefix.
func NewDefaultCommands(prefix string) *DefaultCommands {
	return &DefaultCommands{prefix: prefix}
}

func (d *DefaultCommands) Process(p *Player, channel *Channel, message string) (public bool, resp string) {
	body := strings.TrimPrefix(message, d.prefix)
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return false, ""
	}
	name := strings.ToLower(fields[0])
	args := fields[1:]

	switch name {
	case "help":
		return false, "Available commands: !help, !roll [n], !stats [name]"

	case "roll":
		max := 100
		if len(args) > 0 {
			if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
				max = n
			}
		}
		return true, fmt.Sprintf("%s rolls %d point(s)", p.Name, rand.Intn(max)+1)

	case "stats":
		target := p
		// Lookup by name is the caller's job when args are present; this
		// default implementation only echoes the invoker's own stats,
		// since it has no Roster reference of its own (spec §1 keeps
		// command bodies decoupled from world state beyond the three
		// arguments Process receives).
		if len(args) > 0 {
			return false, "Looking up other players' stats isn't supported by the built-in command set."
		}
		return false, fmt.Sprintf("%s: %d pp, rank #%d, %d playcount", target.Name, target.Stats.PP, target.Stats.Rank, target.Stats.Playcount)

	default:
		return false, ""
	}
}
