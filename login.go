package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

// LoginService implements spec §4.7's one-shot handshake: credential check,
// registration, and initial snapshot synthesis.
type LoginService struct {
	world *World

	// pwCache maps a password token's SHA-256 digest to the bcrypt hash it
	// was last found to match, so repeat logins from the same client skip
	// the (deliberately slow) bcrypt comparison. This is a performance
	// cache, not a security boundary, per spec §4.7 step c.
	pwCacheMu sync.Mutex
	pwCache   map[string]string

	// limiters throttles login attempts per source IP, grounded on the
	// rate.Limiter pattern other_examples/.../irc-session.go uses for its
	// own connection throttling.
	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter

	nextID int32
	idMu   sync.Mutex
}

// NewLoginService constructs a LoginService bound to w.
func NewLoginService(w *World) *LoginService {
	return &LoginService{
		world:    w,
		pwCache:  make(map[string]string),
		limiters: make(map[string]*rate.Limiter),
		nextID:   2, // id 1 is reserved for the bot
	}
}

// LoginRequest is the parsed form of the newline-separated credential block
// spec §4.7 describes as input.
type LoginRequest struct {
	Username      string
	PasswordToken string
	Build         string
	UTCOffset     int8
	DisplayCity   bool
	ClientHashes  string
	PMPrivate     bool
}

// ParseLoginRequest decodes the body's first three lines:
// username\npassword_token\nbuild|utc_offset|display_city|hashes|pm_private
func ParseLoginRequest(body []byte) (*LoginRequest, error) {
	lines := strings.SplitN(string(body), "\n", 4)
	if len(lines) < 3 {
		return nil, newErr(KindMalformedFrame, "login block has %d lines, need 3", len(lines))
	}
	fields := strings.Split(strings.TrimRight(lines[2], "\r"), "|")
	if len(fields) < 5 {
		return nil, newErr(KindMalformedFrame, "login info block has %d fields, need 5", len(fields))
	}

	offset, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, newErr(KindMalformedFrame, "bad utc offset: %w", err)
	}

	return &LoginRequest{
		Username:      strings.TrimRight(lines[0], "\r"),
		PasswordToken: strings.TrimRight(lines[1], "\r"),
		Build:         fields[0],
		UTCOffset:     int8(offset),
		DisplayCity:   fields[2] == "1",
		ClientHashes:  fields[3],
		PMPrivate:     strings.TrimSuffix(fields[4], "\r") == "1",
	}, nil
}

// LoginResult carries the encoded response body and the assigned token.
// Token "no" signals denial, per spec §4.7.
type LoginResult struct {
	Body  []byte
	Token string
}

func (s *LoginService) limiterFor(ip string) *rate.Limiter {
	s.limitersMu.Lock()
	defer s.limitersMu.Unlock()
	l, ok := s.limiters[ip]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Second), 5)
		s.limiters[ip] = l
	}
	return l
}

// Login runs the full handshake for one request.
func (s *LoginService) Login(ctx context.Context, req *LoginRequest, ip string) (*LoginResult, error) {
	if !s.limiterFor(ip).Allow() {
		w := NewWriter()
		notif(w, "Too many login attempts, slow down.")
		return &LoginResult{Body: w.Bytes(), Token: "no"}, nil
	}

	nameSafe := NameSafe(req.Username)

	// (a) displaced re-login / already-logged-in refusal.
	if existing := s.world.Roster.LookupByName(nameSafe); existing != nil {
		if !displaced(existing) {
			w := NewWriter()
			notif(w, "You are already logged in!")
			userIDPacket(w, userIDInvalidCredentials)
			return &LoginResult{Body: w.Bytes(), Token: "no"}, nil
		}
		s.world.teardownPlayer(existing)
	}

	// (b) account lookup / privilege check.
	account, err := s.world.Store.UserByName(ctx, nameSafe)
	if err != nil {
		return nil, newErr(KindInternalStoreError, "user lookup: %w", err)
	}

	if account != nil && account.Privileges&PrivNormal == 0 {
		w := NewWriter()
		userIDPacket(w, userIDBanned)
		return &LoginResult{Body: w.Bytes(), Token: "no"}, nil
	}

	newAccount := account == nil
	if newAccount {
		// (d) registration.
		hash, err := bcrypt.GenerateFromPassword([]byte(req.PasswordToken), bcrypt.DefaultCost)
		if err != nil {
			return nil, newErr(KindInternalStoreError, "hash password: %w", err)
		}
		account, err = s.world.Store.InsertUser(ctx, req.Username, nameSafe, string(hash))
		if err != nil {
			return nil, newErr(KindInternalStoreError, "insert user: %w", err)
		}
		if err := s.world.Store.InsertStats(ctx, account.ID); err != nil {
			return nil, newErr(KindInternalStoreError, "insert stats: %w", err)
		}
	} else {
		// (c) password verification with a cache to skip repeat bcrypt work.
		if !s.verifyPassword(req.PasswordToken, account.PWHash) {
			w := NewWriter()
			userIDPacket(w, userIDInvalidCredentials)
			return &LoginResult{Body: w.Bytes(), Token: "no"}, nil
		}
	}

	p := newPlayer(account.ID, account.Name)
	p.Token = uuid.NewString()
	p.PasswordHash = account.PWHash
	p.Privileges = account.Privileges
	p.SilenceEnd = account.SilenceEnd
	p.UTCOffset = req.UTCOffset
	p.PMPrivate = req.PMPrivate
	p.IP = ip

	stats, err := s.world.Store.LoadStats(ctx, account.ID)
	if err != nil {
		return nil, newErr(KindInternalStoreError, "load stats: %w", err)
	}
	p.Stats = stats

	friendIDs, err := s.world.Store.LoadFriends(ctx, account.ID)
	if err != nil {
		return nil, newErr(KindInternalStoreError, "load friends: %w", err)
	}
	for _, id := range friendIDs {
		p.AddFriend(id)
	}

	s.world.Roster.Add(p)

	w := NewWriter()
	s.buildInitialSnapshot(w, p, newAccount)
	return &LoginResult{Body: w.Bytes(), Token: p.Token}, nil
}

// verifyPassword checks token against hash, consulting and then populating
// the per-token cache (spec §4.7 step c).
func (s *LoginService) verifyPassword(token, hash string) bool {
	key := tokenDigest(token)

	s.pwCacheMu.Lock()
	cached, ok := s.pwCache[key]
	s.pwCacheMu.Unlock()
	if ok {
		return cached == hash
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) != nil {
		return false
	}

	s.pwCacheMu.Lock()
	s.pwCache[key] = hash
	s.pwCacheMu.Unlock()
	return true
}

func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// buildInitialSnapshot assembles the packet sequence spec §6 lists for a
// successful login.
func (s *LoginService) buildInitialSnapshot(w *Writer, p *Player, newAccount bool) {
	userIDPacket(w, p.ID)
	protocolVersionPacket(w)
	banchoPrivilegesPacket(w, p)

	if newAccount {
		notif(w, "Welcome to the server for the first time, "+p.Name+"!")
	} else {
		notif(w, "Welcome back, "+p.Name+".")
	}

	writeSimple(w, outChannelInfoEnd)
	for _, c := range s.world.Channels.All() {
		if c.IsDynamic() {
			continue
		}
		if c.AutoJoin && p.CanRead(c) {
			c.Join(p)
			b := newBuilder()
			b.str(c.Name)
			b.finish(w, outChannelJoin)
		}
		if p.CanRead(c) {
			w.Append(buildChannelInfo(c))
		}
	}

	w.Append(buildUserPresence(p))
	w.Append(buildUserStats(p))

	for _, o := range s.world.Roster.All() {
		if o == p {
			continue
		}
		w.Append(buildUserPresence(o))
		w.Append(buildUserStats(o))
		o.Enqueue(buildUserPresence(p))
		o.Enqueue(buildUserStats(p))
	}

	mainMenuIconPacket(w)
	friendsListPacket(w, p)

	remaining := time.Until(p.SilenceEnd)
	if remaining < 0 {
		remaining = 0
	}
	silenceEndPacket(w, int32(remaining.Seconds()))
}
