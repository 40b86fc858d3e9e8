package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestSessionLoop() (*SessionLoop, *World) {
	w := newTestWorld()
	login := NewLoginService(w)
	router := NewPacketRouter()
	return NewSessionLoop(w, login, router), w
}

func TestSessionLoopHandleLoginWithoutToken(t *testing.T) {
	s, _ := newTestSessionLoop()
	e := echo.New()

	body := loginBlock("alice", "hunter2", "b1", 0, false, "h", false)
	req := httptest.NewRequest(http.MethodPost, "/", bytesReader(body))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := s.Handle(c); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	token := rec.Header().Get(headerChoToken)
	if token == "" || token == "no" {
		t.Fatalf("expected a session token issued, got %q", token)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestSessionLoopHandleMalformedLoginReturnsInvalidCredentials(t *testing.T) {
	s, _ := newTestSessionLoop()
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/", bytesReader([]byte("garbage")))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := s.Handle(c); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if rec.Header().Get(headerChoToken) != "no" {
		t.Errorf("expected cho-token=no for malformed login, got %q", rec.Header().Get(headerChoToken))
	}
	bodyBytes, _ := io.ReadAll(rec.Body)
	frames, err := ReadFrames(bodyBytes)
	if err != nil || len(frames) != 1 || frames[0].ID != outUserId {
		t.Errorf("expected a single UserId(-1) frame, got frames=%v err=%v", frames, err)
	}
}

func TestSessionLoopHandleUnknownTokenAbortsWithEmptyBody(t *testing.T) {
	s, _ := newTestSessionLoop()
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/", bytesReader(nil))
	req.Header.Set(headerOsuToken, "not-a-real-token")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := s.Handle(c); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if rec.Header().Get(headerChoToken) != "no" {
		t.Errorf("expected cho-token=no for unknown session token, got %q", rec.Header().Get(headerChoToken))
	}
	bodyBytes, _ := io.ReadAll(rec.Body)
	if len(bodyBytes) != 0 {
		t.Errorf("expected empty body on unauthenticated request, got %d bytes", len(bodyBytes))
	}
}

func TestSessionLoopHandleDispatchesFramesAndDrainsQueue(t *testing.T) {
	s, w := newTestSessionLoop()
	e := echo.New()

	p := newPlayer(2, "alice")
	p.Token = "tok-123"
	w.Roster.Add(p)

	wr := NewWriter()
	statsReqBuilder := newBuilder()
	statsReqBuilder.finish(wr, inStatsUpdateReq)

	req := httptest.NewRequest(http.MethodPost, "/", bytesReader(wr.Bytes()))
	req.Header.Set(headerOsuToken, "tok-123")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := s.Handle(c); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if rec.Header().Get(headerChoToken) != "tok-123" {
		t.Errorf("expected cho-token echoed back, got %q", rec.Header().Get(headerChoToken))
	}
	bodyBytes, _ := io.ReadAll(rec.Body)
	frames, err := ReadFrames(bodyBytes)
	if err != nil {
		t.Fatalf("ReadFrames: %v", err)
	}
	var sawStats bool
	for _, f := range frames {
		if f.ID == outUserStats {
			sawStats = true
		}
	}
	if !sawStats {
		t.Error("expected the drained response to include the UserStats reply from handleStatsUpdateReq")
	}
}

func TestSessionLoopHandlePingsOnEveryAuthenticatedRequest(t *testing.T) {
	s, w := newTestSessionLoop()
	e := echo.New()

	p := newPlayer(2, "alice")
	p.Token = "tok-123"
	p.LastPingTime = p.LastPingTime.Add(-1)
	w.Roster.Add(p)
	before := p.LastPingTime

	req := httptest.NewRequest(http.MethodPost, "/", bytesReader(nil))
	req.Header.Set(headerOsuToken, "tok-123")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := s.Handle(c); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !p.LastPingTime.After(before) {
		t.Error("expected LastPingTime updated by the session loop")
	}
}

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}
