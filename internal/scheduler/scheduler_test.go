package scheduler

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"

	"github.com/dcrodman/crowdchess/internal/rules"
	"github.com/dcrodman/crowdchess/internal/session"
	"github.com/dcrodman/crowdchess/internal/tally"
)

var testStart = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

type fakeRecorder struct {
	commits  []string
	finishes []int64
	err      error
}

func (r *fakeRecorder) RecordCommit(s *session.Session, move string, _ tally.Snapshot) error {
	r.commits = append(r.commits, move)
	return r.err
}

func (r *fakeRecorder) RecordFinish(s *session.Session) error {
	r.finishes = append(r.finishes, s.ID)
	return r.err
}

func newTestScheduler() (*Scheduler, *fakeRecorder) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	rec := &fakeRecorder{}
	return New(logger, rec), rec
}

func newTestGame(id int64, interval time.Duration) *session.Session {
	return session.NewGame(id, rules.Chess{}, 1, "", session.Parameters{
		StartTime:    testStart,
		MoveInterval: interval,
	})
}

func TestScheduler_DrainCommitsDecidedMove(t *testing.T) {
	s, rec := newTestScheduler()
	g := newTestGame(1, time.Minute)
	if err := s.Add(g, nil); err != nil {
		t.Fatalf("Add() returned an unexpected error: %v", err)
	}

	if err := s.Vote(1, "e2e4", 2); err != nil {
		t.Fatalf("Vote() returned an unexpected error: %v", err)
	}
	if err := s.Vote(1, "d2d4", 1); err != nil {
		t.Fatalf("Vote() returned an unexpected error: %v", err)
	}

	if got := s.DrainAll(testStart.Add(59 * time.Second)); len(got) != 0 {
		t.Fatalf("expected nothing to be due, got %v", got)
	}

	now := testStart.Add(time.Minute)
	got := s.DrainAll(now)
	want := []Processed{{ID: 1, Outcome: Committed, Move: "e2e4"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("DrainAll() did not match; diff:\n%s", diff)
	}

	if diff := cmp.Diff([]string{"e2e4"}, g.Moves()); diff != "" {
		t.Errorf("moves did not match; diff:\n%s", diff)
	}
	if diff := cmp.Diff([]string{"e2e4"}, rec.commits); diff != "" {
		t.Errorf("recorded commits did not match; diff:\n%s", diff)
	}

	// The next ply starts with a fresh tally and a fresh deadline.
	tl, _ := s.Tally(1)
	if tl.Total() != 0 {
		t.Errorf("expected an empty tally after commit, got %d votes", tl.Total())
	}
	if deadline, _ := s.Deadline(1); !deadline.Equal(now.Add(time.Minute)) {
		t.Errorf("Deadline() want = %v, got = %v", now.Add(time.Minute), deadline)
	}
}

func TestScheduler_TieExtendsDeadline(t *testing.T) {
	s, rec := newTestScheduler()
	if err := s.Add(newTestGame(1, time.Minute), nil); err != nil {
		t.Fatalf("Add() returned an unexpected error: %v", err)
	}
	_ = s.Vote(1, "e2e4", 1)
	_ = s.Vote(1, "d2d4", 1)

	now := testStart.Add(time.Minute)
	got := s.DrainAll(now)
	want := []Processed{{ID: 1, Outcome: Retied, Tied: []string{"d2d4", "e2e4"}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("DrainAll() did not match; diff:\n%s", diff)
	}
	if len(rec.commits) != 0 {
		t.Errorf("a tie should not commit, got %v", rec.commits)
	}

	// Votes survive the tie and can break it.
	tl, _ := s.Tally(1)
	if tl.Total() != 2 {
		t.Errorf("expected the tally to be kept, got %d votes", tl.Total())
	}
	if deadline, _ := s.Deadline(1); !deadline.Equal(now.Add(time.Minute)) {
		t.Errorf("Deadline() want = %v, got = %v", now.Add(time.Minute), deadline)
	}

	_ = s.Vote(1, "d2d4", 1)
	got = s.DrainAll(now.Add(time.Minute))
	want = []Processed{{ID: 1, Outcome: Committed, Move: "d2d4"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DrainAll() did not match; diff:\n%s", diff)
	}
}

func TestScheduler_ZeroVotesIsATie(t *testing.T) {
	s, _ := newTestScheduler()
	_ = s.Add(newTestGame(1, time.Minute), nil)

	got := s.DrainAll(testStart.Add(time.Minute))
	if len(got) != 1 || got[0].Outcome != Retied || len(got[0].Tied) != 20 {
		t.Errorf("expected a 20-way tie, got %+v", got)
	}
}

func TestScheduler_DrainOrder(t *testing.T) {
	s, _ := newTestScheduler()
	_ = s.Add(newTestGame(3, 3*time.Minute), nil)
	_ = s.Add(newTestGame(1, time.Minute), nil)
	_ = s.Add(newTestGame(2, 2*time.Minute), nil)
	_ = s.Add(newTestGame(4, 2*time.Minute), nil)
	for _, id := range []int64{1, 2, 3, 4} {
		_ = s.Vote(id, "g1f3", 1)
	}

	got := s.DrainAll(testStart.Add(2 * time.Minute))
	var ids []int64
	for _, p := range got {
		ids = append(ids, p.ID)
	}
	if diff := cmp.Diff([]int64{1, 2, 4}, ids); diff != "" {
		t.Errorf("drain order did not match; diff:\n%s", diff)
	}

	next, ok := s.NextDeadline()
	if !ok || !next.Equal(testStart.Add(3*time.Minute)) {
		t.Errorf("NextDeadline() want = %v, got = %v", testStart.Add(3*time.Minute), next)
	}
}

func TestScheduler_FinishedGameIsDropped(t *testing.T) {
	s, rec := newTestScheduler()
	g := newTestGame(9, time.Minute)
	_ = s.Add(g, nil)

	// Fool's mate.
	now := testStart
	for _, mv := range []string{"f2f3", "e7e5", "g2g4", "d8h4"} {
		now = now.Add(time.Minute)
		_ = s.Vote(9, mv, 1)
		got := s.DrainAll(now)
		if len(got) != 1 || got[0].Move != mv {
			t.Fatalf("DrainAll() expected to play %s, got %+v", mv, got)
		}
	}

	if g.Status != session.Finished || g.Result != rules.BlackWins {
		t.Errorf("expected black to win, got %v %v", g.Status, g.Result)
	}
	if s.Len() != 0 {
		t.Errorf("expected the finished game to leave the schedule")
	}
	if _, ok := s.NextDeadline(); ok {
		t.Errorf("expected no pending deadline")
	}
	if diff := cmp.Diff([]int64{9}, rec.finishes); diff != "" {
		t.Errorf("recorded finishes did not match; diff:\n%s", diff)
	}
	if err := s.Vote(9, "e2e4", 1); !errors.Is(err, ErrNoSuchSession) {
		t.Errorf("expected ErrNoSuchSession voting on a finished game, got %v", err)
	}
}

func TestScheduler_SingleLegalMoveDecides(t *testing.T) {
	s, _ := newTestScheduler()
	// After 1. e4 f6 2. Qh5+ black can only block with g6.
	g, err := session.Restore(5, rules.Chess{}, 1, "", session.Parameters{StartTime: testStart, MoveInterval: time.Minute},
		[]string{"e2e4", "f7f6", "d1h5"}, testStart, nil)
	if err != nil {
		t.Fatalf("Restore() returned an unexpected error: %v", err)
	}
	_ = s.Add(g, nil)

	got := s.DrainAll(testStart.Add(time.Minute))
	want := []Processed{{ID: 5, Outcome: Committed, Move: "g7g6"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DrainAll() did not match; diff:\n%s", diff)
	}
}

func TestScheduler_Retire(t *testing.T) {
	s, rec := newTestScheduler()
	g := newTestGame(1, time.Minute)
	_ = s.Add(g, nil)
	_ = s.Add(newTestGame(2, time.Minute), nil)
	_ = s.Vote(2, "e2e4", 1)

	if !s.Retire(1, rules.Draw) {
		t.Fatalf("Retire() expected to find game 1")
	}
	if s.Retire(1, rules.Draw) {
		t.Errorf("Retire() expected game 1 to be gone")
	}
	if g.Status != session.Finished || g.Result != rules.Draw {
		t.Errorf("expected a drawn game, got %v %v", g.Status, g.Result)
	}

	got := s.DrainAll(testStart.Add(time.Hour))
	want := []Processed{{ID: 2, Outcome: Committed, Move: "e2e4"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DrainAll() did not match; diff:\n%s", diff)
	}
	if diff := cmp.Diff([]int64{1}, rec.finishes); diff != "" {
		t.Errorf("recorded finishes did not match; diff:\n%s", diff)
	}
	if diff := cmp.Diff([]int64{2}, s.IDs()); diff != "" {
		t.Errorf("IDs() did not match; diff:\n%s", diff)
	}
}

func TestScheduler_ForceResolve(t *testing.T) {
	s, _ := newTestScheduler()
	g := newTestGame(1, time.Minute)
	_ = s.Add(g, nil)
	_ = s.Vote(1, "g1f3", 1)
	_ = s.Vote(1, "b1c3", 1)

	now := testStart.Add(10 * time.Second)
	got, err := s.ForceResolve(1, now)
	if err != nil {
		t.Fatalf("ForceResolve() returned an unexpected error: %v", err)
	}
	if got.Move != "b1c3" || got.Outcome != Committed {
		t.Errorf("ForceResolve() expected to play b1c3, got %+v", got)
	}
	if deadline, _ := s.Deadline(1); !deadline.Equal(now.Add(time.Minute)) {
		t.Errorf("Deadline() want = %v, got = %v", now.Add(time.Minute), deadline)
	}

	// The old deadline no longer fires.
	if got := s.DrainAll(testStart.Add(time.Minute)); len(got) != 0 {
		t.Errorf("expected no due games, got %+v", got)
	}

	if _, err := s.ForceResolve(99, now); !errors.Is(err, ErrNoSuchSession) {
		t.Errorf("expected ErrNoSuchSession, got %v", err)
	}
}

func TestScheduler_AddRejectsDuplicatesAndFinished(t *testing.T) {
	s, _ := newTestScheduler()
	g := newTestGame(1, time.Minute)
	if err := s.Add(g, nil); err != nil {
		t.Fatalf("Add() returned an unexpected error: %v", err)
	}
	if err := s.Add(g, nil); err == nil {
		t.Errorf("expected an error adding game 1 twice")
	}

	done := newTestGame(2, time.Minute)
	done.Finish(rules.Draw)
	if err := s.Add(done, nil); !errors.Is(err, session.ErrSessionFinished) {
		t.Errorf("expected ErrSessionFinished, got %v", err)
	}
}

func TestScheduler_AddRejectsNonPositiveInterval(t *testing.T) {
	s, _ := newTestScheduler()
	for i, interval := range []time.Duration{0, -time.Second} {
		if err := s.Add(newTestGame(int64(i+1), interval), nil); !errors.Is(err, ErrInvalidInterval) {
			t.Errorf("Add() with interval %v: expected ErrInvalidInterval, got %v", interval, err)
		}
	}
	if s.Len() != 0 {
		t.Fatalf("expected no games to be scheduled, got %d", s.Len())
	}

	done := make(chan []Processed)
	go func() { done <- s.DrainAll(testStart) }()
	select {
	case got := <-done:
		if len(got) != 0 {
			t.Errorf("DrainAll() want nothing processed, got %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("DrainAll() did not return")
	}
}

func TestScheduler_AddWithRestoredTally(t *testing.T) {
	s, _ := newTestScheduler()
	g := newTestGame(1, time.Minute)
	restored := tally.FromSnapshot(g.LegalMoves(), tally.Snapshot{"a2a3": 4, "zzzz": 9})
	_ = s.Add(g, restored)

	got := s.DrainAll(testStart.Add(time.Minute))
	want := []Processed{{ID: 1, Outcome: Committed, Move: "a2a3"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DrainAll() did not match; diff:\n%s", diff)
	}
}

func TestScheduler_RecorderErrorsAreNotFatal(t *testing.T) {
	s, rec := newTestScheduler()
	rec.err = errors.New("disk full")
	_ = s.Add(newTestGame(1, time.Minute), nil)
	_ = s.Vote(1, "e2e4", 1)

	got := s.DrainAll(testStart.Add(time.Minute))
	if len(got) != 1 || got[0].Outcome != Committed {
		t.Errorf("expected the commit to go through, got %+v", got)
	}
}
