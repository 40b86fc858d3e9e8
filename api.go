package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"banchod/store"
)

// APIServer provides read-mostly HTTP REST endpoints for server monitoring
// and administration (SPEC_FULL.md §4.10). It runs on a separate TCP port
// from the Bancho session endpoint, grounded on the teacher's own
// echo.Echo-on-a-second-port pattern.
type APIServer struct {
	world *World
	store *store.Store
	echo  *echo.Echo
}

// NewAPIServer constructs an APIServer and registers all routes.
func NewAPIServer(w *World, st *store.Store) *APIServer {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			log.Printf("[api] %s %s %d", v.Method, v.URI, v.Status)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = jsonErrorHandler

	s := &APIServer{world: w, store: st, echo: e}
	s.registerRoutes()
	return s
}

func (s *APIServer) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/api/version", s.handleVersion)
	s.echo.GET("/api/roster", s.handleRoster)
	s.echo.GET("/api/channels", s.handleChannels)
	s.echo.GET("/api/matches", s.handleMatches)
	s.echo.GET("/api/settings", s.handleGetSettings)
	s.echo.PUT("/api/settings/:key", s.handlePutSetting)
	s.echo.GET("/api/accounts", s.handleAccounts)
	s.echo.PUT("/api/accounts/:id/privileges", s.handlePutPrivileges)
	s.echo.GET("/api/audit", s.handleGetAuditLog)
}

// Run starts the Echo HTTP server on addr and blocks until ctx is cancelled.
func (s *APIServer) Run(ctx context.Context, addr string) {
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Printf("[api] server error: %v", err)
		}
	}()
	<-ctx.Done()
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutCtx); err != nil {
		log.Printf("[api] shutdown: %v", err)
	}
}

// Version is the current server version. Set at build time via -ldflags.
var Version = "0.1.0-dev"

type VersionResponse struct {
	Version string `json:"version"`
}

func (s *APIServer) handleVersion(c echo.Context) error {
	return c.JSON(http.StatusOK, VersionResponse{Version: Version})
}

type HealthResponse struct {
	Status  string `json:"status"`
	Players int    `json:"players"`
}

func (s *APIServer) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Players: s.world.Roster.Count(),
	})
}

// PlayerResponse is an element in the GET /api/roster array.
type PlayerResponse struct {
	ID       int32  `json:"id"`
	Name     string `json:"name"`
	Action   uint8  `json:"action"`
	InfoText string `json:"info_text"`
	InLobby  bool   `json:"in_lobby"`
}

func (s *APIServer) handleRoster(c echo.Context) error {
	players := s.world.Roster.All()
	resp := make([]PlayerResponse, 0, len(players))
	for _, p := range players {
		resp = append(resp, PlayerResponse{
			ID:       p.ID,
			Name:     p.Name,
			Action:   p.Action,
			InfoText: p.InfoText,
			InLobby:  p.inLobby,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// ChannelResponse is an element in the GET /api/channels array.
type ChannelResponse struct {
	Name        string `json:"name"`
	Topic       string `json:"topic"`
	MemberCount int    `json:"member_count"`
	Dynamic     bool   `json:"dynamic"`
}

func (s *APIServer) handleChannels(c echo.Context) error {
	channels := s.world.Channels.All()
	resp := make([]ChannelResponse, 0, len(channels))
	for _, ch := range channels {
		resp = append(resp, ChannelResponse{
			Name:        ch.Name,
			Topic:       ch.Topic,
			MemberCount: ch.MemberCount(),
			Dynamic:     ch.IsDynamic(),
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// MatchResponse is an element in the GET /api/matches array.
type MatchResponse struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	InProgress bool   `json:"in_progress"`
	Players    int    `json:"players"`
}

func (s *APIServer) handleMatches(c echo.Context) error {
	matches := s.world.Matches.All()
	resp := make([]MatchResponse, 0, len(matches))
	for _, m := range matches {
		m.mu.Lock()
		resp = append(resp, MatchResponse{
			ID:         m.ID,
			Name:       m.Name,
			InProgress: m.InProgress,
			Players:    m.occupiedCount(),
		})
		m.mu.Unlock()
	}
	return c.JSON(http.StatusOK, resp)
}

type SettingResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *APIServer) handleGetSettings(c echo.Context) error {
	all, err := s.store.GetAllSettings(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := make([]SettingResponse, 0, len(all))
	for k, v := range all {
		resp = append(resp, SettingResponse{Key: k, Value: v})
	}
	return c.JSON(http.StatusOK, resp)
}

type PutSettingRequest struct {
	Value string `json:"value"`
}

func (s *APIServer) handlePutSetting(c echo.Context) error {
	key := c.Param("key")
	var req PutSettingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := s.store.SetSetting(c.Request().Context(), key, req.Value); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// AccountResponse is an element in the GET /api/accounts array.
type AccountResponse struct {
	ID         int32  `json:"id"`
	Name       string `json:"name"`
	Privileges uint32 `json:"privileges"`
}

func (s *APIServer) handleAccounts(c echo.Context) error {
	accounts, err := s.store.ListAccounts(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := make([]AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		resp = append(resp, AccountResponse{ID: a.ID, Name: a.Name, Privileges: a.Privileges})
	}
	return c.JSON(http.StatusOK, resp)
}

type PutPrivilegesRequest struct {
	Privileges uint32 `json:"privileges"`
}

func (s *APIServer) handlePutPrivileges(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid account id")
	}
	var req PutPrivilegesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := s.store.SetPrivileges(c.Request().Context(), int32(id), req.Privileges); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "account not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIServer) handleGetAuditLog(c echo.Context) error {
	limit := 100
	if l := c.QueryParam("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	entries, err := s.store.GetAuditLog(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if entries == nil {
		entries = []store.AuditEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}

// jsonErrorHandler ensures all error responses have a consistent JSON body:
//
//	{"error": "message"}
//
// This replaces Echo's default handler which varies between text and JSON.
func jsonErrorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}
	if !c.Response().Committed {
		if c.Request().Method == http.MethodHead {
			c.NoContent(code) //nolint:errcheck
		} else {
			c.JSON(code, map[string]string{"error": msg}) //nolint:errcheck
		}
	}
}
