package vote

import (
	"context"
	"errors"
	"fmt"

	"github.com/e-psi-lon/ParalyaBot-sub000/lg/game"
	"github.com/e-psi-lon/ParalyaBot-sub000/lg/store"
)

// ErrNoSession is returned when no active session exists for a kind.
var ErrNoSession = errors.New("vote: no active session")

func activeOf(k game.Kind) func(Session) bool {
	return func(s Session) bool { return s.Active && s.Kind == k }
}

// Active returns the active session of kind k. While a session is being
// replaced two may briefly coexist; the newest one wins.
func Active(ctx context.Context, st *store.Store, k game.Kind) (Session, error) {
	sessions, err := store.GetAll(ctx, st, game.Namespace, activeOf(k))
	if err != nil {
		return Session{}, err
	}
	if len(sessions) == 0 {
		return Session{}, ErrNoSession
	}
	newest := sessions[0]
	for _, s := range sessions[1:] {
		if s.Round > newest.Round {
			newest = s
		}
	}
	return newest, nil
}

// Open stores a new active session of kind k with the given choices and
// returns it. Its round follows every stored session of that kind. Existing
// sessions are left untouched.
func Open(ctx context.Context, st *store.Store, k game.Kind, choices []string) (Session, error) {
	s, err := store.Insert(ctx, st, game.Namespace, func(s Session) bool { return s.Kind == k }, func(all []Session) Session {
		next := NewSession(k).WithChoices(choices)
		for _, prev := range all {
			if prev.Round >= next.Round {
				next.Round = prev.Round + 1
			}
		}
		return next
	})
	if err != nil {
		return Session{}, fmt.Errorf("open %s session: %w", k, err)
	}
	return s, nil
}

// Replace opens a fresh session of kind k, then finishes every other active
// session of that kind. It returns the fresh session and the finished ones.
func Replace(ctx context.Context, st *store.Store, k game.Kind) (Session, []Session, error) {
	fresh, err := Open(ctx, st, k, nil)
	if err != nil {
		return Session{}, nil, err
	}
	finished, err := store.Update(ctx, st, game.Namespace, func(s Session) bool {
		return s.Active && s.Kind == k && s.ID != fresh.ID
	}, Session.Finish)
	if err != nil {
		return fresh, nil, fmt.Errorf("finish %s session: %w", k, err)
	}
	return fresh, finished, nil
}

// Modify applies fn atomically to the session with the given id while it is
// still active. fn may veto the change by returning an error, in which case
// the session is left as it was and the error is returned.
func Modify(ctx context.Context, st *store.Store, id string, fn func(Session) (Session, error)) (Session, error) {
	var fnErr error
	updated, err := store.Update(ctx, st, game.Namespace, func(s Session) bool {
		return s.ID == id && s.Active
	}, func(s Session) Session {
		next, err := fn(s)
		if err != nil {
			fnErr = err
			return s
		}
		return next
	})
	if err != nil {
		return Session{}, err
	}
	if len(updated) == 0 {
		return Session{}, ErrNoSession
	}
	if fnErr != nil {
		return updated[0], fnErr
	}
	return updated[0], nil
}

// ModifyActive is Modify on the active session of kind k.
func ModifyActive(ctx context.Context, st *store.Store, k game.Kind, fn func(Session) (Session, error)) (Session, error) {
	cur, err := Active(ctx, st, k)
	if err != nil {
		return Session{}, err
	}
	return Modify(ctx, st, cur.ID, fn)
}

// RemoveAll deletes every session, finished or not.
func RemoveAll(ctx context.Context, st *store.Store) (int, error) {
	return store.Remove[Session](ctx, st, game.Namespace, nil)
}
