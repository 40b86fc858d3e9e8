package main

import (
	"context"

	"banchod/store"
)

// storeAdapter satisfies the Store interface (world.go) in terms of the
// concrete store.Store SQLite implementation, translating between the
// store package's own Account/ChannelDef/stat types and this package's
// equivalents. store/store.go cannot import package main (it would be a
// cycle), so this thin translation layer lives here instead.
type storeAdapter struct {
	st *store.Store
}

func newStoreAdapter(st *store.Store) *storeAdapter {
	return &storeAdapter{st: st}
}

func (a *storeAdapter) UserByName(ctx context.Context, nameSafe string) (*Account, error) {
	acc, err := a.st.UserByName(ctx, nameSafe)
	if err != nil || acc == nil {
		return nil, err
	}
	return &Account{
		ID:         acc.ID,
		Name:       acc.Name,
		NameSafe:   acc.NameSafe,
		PWHash:     acc.PWHash,
		Privileges: acc.Privileges,
		SilenceEnd: acc.SilenceEnd,
	}, nil
}

func (a *storeAdapter) InsertUser(ctx context.Context, name, nameSafe, pwHash string) (*Account, error) {
	acc, err := a.st.InsertUser(ctx, name, nameSafe, pwHash)
	if err != nil {
		return nil, err
	}
	return &Account{
		ID:         acc.ID,
		Name:       acc.Name,
		NameSafe:   acc.NameSafe,
		PWHash:     acc.PWHash,
		Privileges: acc.Privileges,
		SilenceEnd: acc.SilenceEnd,
	}, nil
}

func (a *storeAdapter) InsertStats(ctx context.Context, userID int32) error {
	return a.st.InsertStats(ctx, userID)
}

func (a *storeAdapter) LoadStats(ctx context.Context, userID int32) (Stats, error) {
	st, err := a.st.LoadStats(ctx, userID)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		RankedScore: st.RankedScore,
		Accuracy:    st.Accuracy,
		Playcount:   st.Playcount,
		TotalScore:  st.TotalScore,
		Rank:        st.Rank,
		PP:          st.PP,
	}, nil
}

func (a *storeAdapter) LoadFriends(ctx context.Context, userID int32) ([]int32, error) {
	return a.st.LoadFriends(ctx, userID)
}

func (a *storeAdapter) AddFriend(ctx context.Context, ownerID, friendID int32) error {
	return a.st.AddFriend(ctx, ownerID, friendID)
}

func (a *storeAdapter) RemoveFriend(ctx context.Context, ownerID, friendID int32) error {
	return a.st.RemoveFriend(ctx, ownerID, friendID)
}

func (a *storeAdapter) IterChannels(ctx context.Context) ([]ChannelDef, error) {
	defs, err := a.st.IterChannels(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ChannelDef, len(defs))
	for i, d := range defs {
		out[i] = ChannelDef{
			Name:      d.Name,
			Topic:     d.Topic,
			ReadPriv:  d.ReadPriv,
			WritePriv: d.WritePriv,
			AutoJoin:  d.AutoJoin,
		}
	}
	return out, nil
}
