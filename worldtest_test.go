package main

import (
	"context"
	"sync"
)

// fakeStore is an in-memory Store used across this package's tests so each
// test file doesn't need to stand up a real SQLite database.
type fakeStore struct {
	mu       sync.Mutex
	nextID   int32
	byName   map[string]*Account
	stats    map[int32]Stats
	friends  map[int32]map[int32]bool
	channels []ChannelDef
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextID:  2, // 1 is reserved for BanchoBot
		byName:  make(map[string]*Account),
		stats:   make(map[int32]Stats),
		friends: make(map[int32]map[int32]bool),
	}
}

func (s *fakeStore) UserByName(ctx context.Context, nameSafe string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byName[nameSafe], nil
}

func (s *fakeStore) InsertUser(ctx context.Context, name, nameSafe, pwHash string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := &Account{ID: s.nextID, Name: name, NameSafe: nameSafe, PWHash: pwHash, Privileges: 1}
	s.nextID++
	s.byName[nameSafe] = a
	return a, nil
}

func (s *fakeStore) InsertStats(ctx context.Context, userID int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[userID] = Stats{}
	return nil
}

func (s *fakeStore) LoadStats(ctx context.Context, userID int32) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats[userID], nil
}

func (s *fakeStore) LoadFriends(ctx context.Context, userID int32) ([]int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int32
	for id := range s.friends[userID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *fakeStore) AddFriend(ctx context.Context, ownerID, friendID int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.friends[ownerID] == nil {
		s.friends[ownerID] = make(map[int32]bool)
	}
	s.friends[ownerID][friendID] = true
	return nil
}

func (s *fakeStore) RemoveFriend(ctx context.Context, ownerID, friendID int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.friends[ownerID], friendID)
	return nil
}

func (s *fakeStore) IterChannels(ctx context.Context) ([]ChannelDef, error) {
	return s.channels, nil
}

// fakeGeolocator always reports the same country, avoiding any real network
// or GeoIP database dependency in tests.
type fakeGeolocator struct{}

func (fakeGeolocator) Locate(ip string) string { return "XX" }

// fakeCommands is a no-op CommandProcessor for tests that don't exercise
// command dispatch directly.
type fakeCommands struct{}

func (fakeCommands) Process(p *Player, channel *Channel, message string) (bool, string) {
	return false, ""
}

// fakeBeatmaps always fails lookups, matching the "no metadata available"
// degrade-gracefully path most handler tests want.
type fakeBeatmaps struct{}

func (fakeBeatmaps) BeatmapFromBID(ctx context.Context, id int32) (*BeatmapInfo, error) {
	return nil, errBeatmapNotFound
}

func (fakeBeatmaps) BeatmapFromMD5(ctx context.Context, md5 string) (*BeatmapInfo, error) {
	return nil, errBeatmapNotFound
}

type sentinelErr string

func (e sentinelErr) Error() string { return string(e) }

var errBeatmapNotFound error = sentinelErr("beatmap not found")

// newTestWorld builds a fully wired World over fake collaborators, with the
// given static channel definitions pre-registered.
func newTestWorld(channels ...ChannelDef) *World {
	fs := newFakeStore()
	fs.channels = channels
	w, err := NewWorld(context.Background(), fs, fakeGeolocator{}, fakeCommands{}, fakeBeatmaps{})
	if err != nil {
		panic(err)
	}
	return w
}
