package main

import (
	"context"
	"log"
	"time"
)

// RunMetrics logs roster/channel/match counts every interval until ctx is
// canceled, grounded on the teacher's own periodic-stats-logging loop shape.
func RunMetrics(ctx context.Context, w *World, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			players := w.Roster.Count()
			channels := len(w.Channels.All())
			matches := len(w.Matches.All())
			if players > 0 {
				log.Printf("[metrics] players=%d channels=%d matches=%d", players, channels, matches)
			}
		}
	}
}
