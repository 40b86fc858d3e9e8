package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"banchod/store"
)

func main() {
	// Check for CLI subcommands before parsing flags.
	if len(os.Args) > 1 {
		cliDB := "banchod.db"
		if RunCLI(os.Args[1:], cliDB) {
			return
		}
	}

	addr := flag.String("addr", ":8443", "HTTPS listen address for the Bancho session endpoint")
	apiAddr := flag.String("api-addr", ":8080", "admin REST API listen address (empty to disable)")
	dbPath := flag.String("db", "banchod.db", "SQLite database path")
	certValidity := flag.Duration("cert-validity", 24*time.Hour, "self-signed TLS certificate validity")
	idleTimeout := flag.Duration("idle-timeout", 2*time.Minute, "player idle timeout before forced logout")
	commandPrefix := flag.String("command-prefix", "!", "chat command prefix")
	beatmapAPI := flag.String("beatmap-api", "https://osu.ppy.sh/api/v2/beatmaps", "base URL for beatmap metadata lookups")
	flag.Parse()

	st, err := store.New(*dbPath)
	if err != nil {
		log.Fatalf("[store] %v", err)
	}
	defer st.Close()
	seedDefaults(st)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := NewWorld(ctx, newStoreAdapter(st), NewDefaultGeolocator(), NewDefaultCommands(*commandPrefix), NewHTTPBeatmapFetcher(*beatmapAPI))
	if err != nil {
		log.Fatalf("[world] %v", err)
	}
	w.IdleTimeout = *idleTimeout
	w.CommandPrefix = *commandPrefix

	login := NewLoginService(w)
	router := NewPacketRouter()
	loop := NewSessionLoop(w, login, router)

	tlsHostname := ""
	if host, _, err := net.SplitHostPort(*addr); err == nil && host != "" {
		tlsHostname = host
	}
	tlsConfig, fingerprint, err := generateTLSConfig(*certValidity, tlsHostname)
	if err != nil {
		log.Fatalf("[server] %v", err)
	}
	log.Printf("[server] TLS certificate fingerprint: %s", fingerprint)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.POST("/", loop.Handle)
	e.GET("/", loop.Handle)

	httpSrv := &http.Server{
		Addr:              *addr,
		Handler:           e,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown on interrupt.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("[server] shutting down...")
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutCancel()
		if err := httpSrv.Shutdown(shutCtx); err != nil {
			log.Printf("[server] shutdown: %v", err)
		}
		cancel()
	}()

	// Periodic metrics logging.
	go RunMetrics(ctx, w, 5*time.Second)

	// Periodically sweep idle players (spec §5's periodic sweep).
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.SweepIdle()
			}
		}
	}()

	// Periodically optimize SQLite query planner statistics.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := st.Optimize(); err != nil {
					log.Printf("[store] optimize: %v", err)
				}
			}
		}
	}()

	// Start the admin REST API on its own port, if configured.
	if *apiAddr != "" {
		api := NewAPIServer(w, st)
		go api.Run(ctx, *apiAddr)
		log.Printf("[api] listening on %s", *apiAddr)
	}

	log.Printf("[server] listening on %s", *addr)
	if err := httpSrv.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
		log.Fatalf("[server] %v", err)
	}
}

// seedDefaults writes factory-default settings when they have not been
// created yet (first-run initialisation).
func seedDefaults(st *store.Store) {
	ctx := context.Background()
	defaults := [][2]string{
		{"server_name", "banchod"},
	}
	for _, kv := range defaults {
		if _, ok, err := st.GetSetting(ctx, kv[0]); err == nil && !ok {
			if err := st.SetSetting(ctx, kv[0], kv[1]); err != nil {
				log.Printf("[store] seed %q: %v", kv[0], err)
			}
		}
	}

	defs, err := st.IterChannels(ctx)
	if err != nil {
		log.Printf("[store] list channels: %v", err)
		return
	}
	if len(defs) == 0 {
		if err := st.CreateChannel(ctx, store.ChannelDef{
			Name: "#osu", Topic: "Default chat channel", ReadPriv: 1, WritePriv: 1, AutoJoin: true,
		}); err != nil {
			log.Printf("[store] seed #osu channel: %v", err)
		}
		if err := st.CreateChannel(ctx, store.ChannelDef{
			Name: "#announce", Topic: "Server announcements", ReadPriv: 1, WritePriv: 8, AutoJoin: true,
		}); err != nil {
			log.Printf("[store] seed #announce channel: %v", err)
		}
	}
}
