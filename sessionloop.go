package main

import (
	"context"
	"io"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	headerOsuToken  = "osu-token"
	headerChoToken  = "cho-token"
	sessionBodyLimit = 10 << 20 // 10 MiB, generous upper bound on one request's frame stream
)

// SessionLoop is the per-request entry point described in spec §4.8: locate
// the Player by token (or run the login handshake), update last-seen,
// dispatch every frame in the body, and return the drained outbound queue.
// It is grounded on client.go's handleClient/processControl read loop,
// reshaped from a persistent stream into one HTTP request/response pass
// since the transport here is stateless long-poll, not a kept-open session.
type SessionLoop struct {
	world  *World
	login  *LoginService
	router *PacketRouter
}

// NewSessionLoop wires a SessionLoop against w.
func NewSessionLoop(w *World, login *LoginService, router *PacketRouter) *SessionLoop {
	return &SessionLoop{world: w, login: login, router: router}
}

// Handle implements echo.HandlerFunc for the single Bancho POST endpoint.
func (s *SessionLoop) Handle(c echo.Context) error {
	ctx := c.Request().Context()
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, sessionBodyLimit))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read body")
	}

	token := c.Request().Header.Get(headerOsuToken)
	if token == "" {
		return s.handleLogin(ctx, c, body)
	}

	p := s.world.Roster.LookupByToken(token)
	if p == nil {
		// Unauthenticated aborts the request with an empty body, per
		// spec §7 — the client will re-run the login handshake.
		c.Response().Header().Set(headerChoToken, "no")
		return c.Blob(http.StatusOK, "application/octet-stream", nil)
	}

	p.Ping()

	frames, err := ReadFrames(body)
	if err != nil {
		log.Printf("bancho: %s sent an unparsable frame stream: %v", p.Name, err)
	}
	s.router.Dispatch(s.world, p, frames)

	c.Response().Header().Set(headerChoToken, token)
	return c.Blob(http.StatusOK, "application/octet-stream", p.Drain())
}

func (s *SessionLoop) handleLogin(ctx context.Context, c echo.Context, body []byte) error {
	req, err := ParseLoginRequest(body)
	if err != nil {
		c.Response().Header().Set(headerChoToken, "no")
		w := NewWriter()
		userIDPacket(w, userIDInvalidCredentials)
		return c.Blob(http.StatusOK, "application/octet-stream", w.Bytes())
	}

	ip := clientIP(c)
	result, err := s.login.Login(ctx, req, ip)
	if err != nil {
		log.Printf("bancho: login error for %q: %v", req.Username, err)
		c.Response().Header().Set(headerChoToken, "no")
		w := NewWriter()
		userIDPacket(w, userIDInvalidCredentials)
		return c.Blob(http.StatusOK, "application/octet-stream", w.Bytes())
	}

	c.Response().Header().Set(headerChoToken, result.Token)
	return c.Blob(http.StatusOK, "application/octet-stream", result.Body)
}

// clientIP prefers the geolocator-relevant real IP if the request passed
// through the echo.RealIP-aware middleware; RemoteAddr is the fallback.
func clientIP(c echo.Context) string {
	if ip := c.RealIP(); ip != "" {
		return ip
	}
	return c.Request().RemoteAddr
}
