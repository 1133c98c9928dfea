package game

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/e-psi-lon/ParalyaBot-sub000/lg/store"
)

// Load returns the persisted game state, creating the default state on first
// access. A corrupt record is logged and replaced by the defaults.
func Load(ctx context.Context, s *store.Store) (State, error) {
	st, err := store.Get[State](ctx, s, Namespace, nil)
	if err == nil {
		return st.clone(), nil
	}
	var de *store.DecodeError
	switch {
	case errors.Is(err, store.ErrNotFound):
	case errors.As(err, &de):
		log.Warn().Err(err).Msg("[game] discarding unreadable game state")
	default:
		return State{}, err
	}
	st = NewState()
	if err := store.Put(ctx, s, Namespace, st); err != nil {
		return State{}, err
	}
	return st, nil
}

// Update applies fn to the persisted state atomically and returns the result.
func Update(ctx context.Context, s *store.Store, fn func(State) State) (State, error) {
	st, err := store.UpdateOrCreate(ctx, s, Namespace, nil, NewState, func(cur State) State {
		return fn(cur.clone())
	})
	var de *store.DecodeError
	if errors.As(err, &de) {
		log.Warn().Err(err).Msg("[game] discarding unreadable game state")
		if err := store.Put(ctx, s, Namespace, NewState()); err != nil {
			return State{}, err
		}
		return Update(ctx, s, fn)
	}
	return st, err
}

// Reset clears the game back to its defaults, channel registry included.
func Reset(ctx context.Context, s *store.Store) (State, error) {
	st := NewState()
	if err := store.Put(ctx, s, Namespace, st); err != nil {
		return State{}, err
	}
	return st, nil
}
