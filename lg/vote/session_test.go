package vote

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/e-psi-lon/ParalyaBot-sub000/lg/game"
	"github.com/e-psi-lon/ParalyaBot-sub000/lg/store"
)

func TestCastOverwrites(t *testing.T) {
	s := NewSession(game.Day)
	s, changed := s.Cast("a", "x")
	if changed {
		t.Fatal("first ballot reported as changed")
	}
	s, changed = s.Cast("a", "y")
	if !changed {
		t.Fatal("second ballot not reported as changed")
	}
	if len(s.Ballots) != 1 || s.Ballots["a"] != "y" {
		t.Fatalf("ballots = %v", s.Ballots)
	}
}

func TestCastDoesNotMutateOriginal(t *testing.T) {
	base := NewSession(game.Day)
	_, _ = base.Cast("a", "x")
	if len(base.Ballots) != 0 {
		t.Fatal("Cast mutated the receiver")
	}
}

func TestRetract(t *testing.T) {
	s, _ := NewSession(game.Day).Cast("a", "x")
	for i := 0; i < 3; i++ {
		if _, ok := s.Retract("b"); ok {
			t.Fatal("retracting a missing ballot succeeded")
		}
	}
	s, ok := s.Retract("a")
	if !ok || len(s.Ballots) != 0 {
		t.Fatalf("retract failed: %v %v", ok, s.Ballots)
	}
}

func TestEligible(t *testing.T) {
	s := NewSession(game.Day)
	if !s.Eligible("anyone") {
		t.Fatal("empty choices should accept any target")
	}
	s = s.WithChoices([]string{"x", "y"})
	if !s.Eligible("x") || s.Eligible("z") {
		t.Fatalf("choices not enforced: %v", s.Choices)
	}
}

func TestClearBallotsKeepsChoices(t *testing.T) {
	s, _ := NewSession(game.Day).WithChoices([]string{"x", "y"}).Cast("a", "x")
	s = s.ClearBallots()
	if len(s.Ballots) != 0 || len(s.Choices) != 2 {
		t.Fatalf("unexpected session after clear: %+v", s)
	}
}

func TestReplaceKeepsOneActiveSession(t *testing.T) {
	ctx := context.Background()
	st := store.New(store.NewMemoryBackend())

	first, err := Open(ctx, st, game.Day, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ModifyActive(ctx, st, game.Day, func(s Session) (Session, error) {
		s, _ = s.Cast("a", "x")
		return s, nil
	}); err != nil {
		t.Fatal(err)
	}

	fresh, finished, err := Replace(ctx, st, game.Day)
	if err != nil {
		t.Fatal(err)
	}
	if len(finished) != 1 || finished[0].ID != first.ID || finished[0].Active {
		t.Fatalf("finished = %+v", finished)
	}
	if finished[0].Ballots["a"] != "x" {
		t.Fatal("finished session lost its ballots")
	}
	if fresh.Round <= first.Round {
		t.Fatalf("fresh round %d not after %d", fresh.Round, first.Round)
	}

	active, err := Active(ctx, st, game.Day)
	if err != nil {
		t.Fatal(err)
	}
	if active.ID != fresh.ID || len(active.Ballots) != 0 {
		t.Fatalf("active = %+v", active)
	}

	all, err := store.GetAll[Session](ctx, st, game.Namespace, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("finished sessions must be retained, got %d sessions", len(all))
	}
}

func TestConcurrentOpenGetsDistinctRounds(t *testing.T) {
	ctx := context.Background()
	st := store.New(store.NewMemoryBackend())

	const n = 16
	rounds := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := Open(ctx, st, game.Night, nil)
			if err != nil {
				t.Error(err)
				return
			}
			rounds[i] = s.Round
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool, n)
	for _, r := range rounds {
		if seen[r] {
			t.Fatalf("round %d handed out twice: %v", r, rounds)
		}
		seen[r] = true
	}
	newest, err := Active(ctx, st, game.Night)
	if err != nil {
		t.Fatal(err)
	}
	if newest.Round != n-1 {
		t.Fatalf("active round = %d, want %d", newest.Round, n-1)
	}
}

func TestActiveMissing(t *testing.T) {
	st := store.New(store.NewMemoryBackend())
	if _, err := Active(context.Background(), st, game.Night); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestModifyVeto(t *testing.T) {
	ctx := context.Background()
	st := store.New(store.NewMemoryBackend())
	s, err := Open(ctx, st, game.Night, nil)
	if err != nil {
		t.Fatal(err)
	}
	veto := errors.New("nope")
	_, err = Modify(ctx, st, s.ID, func(s Session) (Session, error) {
		s, _ = s.Cast("a", "x")
		return s, veto
	})
	if !errors.Is(err, veto) {
		t.Fatalf("expected veto, got %v", err)
	}
	cur, _ := Active(ctx, st, game.Night)
	if len(cur.Ballots) != 0 {
		t.Fatal("vetoed change was written")
	}
}

func TestModifyFinishedSession(t *testing.T) {
	ctx := context.Background()
	st := store.New(store.NewMemoryBackend())
	s, _ := Open(ctx, st, game.Night, nil)
	if _, _, err := Replace(ctx, st, game.Night); err != nil {
		t.Fatal(err)
	}
	_, err := Modify(ctx, st, s.ID, func(s Session) (Session, error) { return s, nil })
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession for a finished session, got %v", err)
	}
}

func TestCorruptSessionIsSurfaced(t *testing.T) {
	ctx := context.Background()
	b := store.NewMemoryBackend()
	st := store.New(b)
	if err := b.Set(ctx, []byte("lg\x00vote_session\x00broken"), []byte("{")); err != nil {
		t.Fatal(err)
	}
	_, err := Active(ctx, st, game.Day)
	var de *store.DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected a decode error, got %v", err)
	}
}
