// Package scheduler drives every active game forward on its own deadline.
//
// Each active game owns exactly one entry in a min-heap keyed by the instant
// its current ply closes. DrainAll pops every entry that is due, in deadline
// order, and resolves that game's tally: a decided tally commits its move and
// opens a fresh tally for the next ply, while a tied tally is kept as it is and
// the game is given one more full interval. A game that keeps tying never
// advances on its own; ForceResolve is the way out.
package scheduler

import (
	"container/heap"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/crowdchess/internal/core/debug"
	"github.com/dcrodman/crowdchess/internal/rules"
	"github.com/dcrodman/crowdchess/internal/session"
	"github.com/dcrodman/crowdchess/internal/tally"
)

var (
	ErrNoSuchSession   = errors.New("no such game")
	ErrNothingToPlay   = errors.New("no move available")
	ErrInvalidInterval = errors.New("move interval must be positive")
)

// Outcome describes what a resolution did to a game.
type Outcome int

const (
	Committed Outcome = iota
	Retied
	Finished
)

func (o Outcome) String() string {
	switch o {
	case Retied:
		return "tied"
	case Finished:
		return "finished"
	default:
		return "committed"
	}
}

// Processed reports one resolution performed by the Scheduler.
type Processed struct {
	ID      int64
	Outcome Outcome
	// Move committed, empty when Retied.
	Move string
	// Moves sharing the top count when Retied.
	Tied   []string
	Result rules.Result
}

// Recorder persists resolutions. Failures are logged and never stop the
// Scheduler.
type Recorder interface {
	RecordCommit(s *session.Session, move string, snapshot tally.Snapshot) error
	RecordFinish(s *session.Session) error
}

type game struct {
	session *session.Session
	tally   *tally.Tally
	entry   *entry
}

// Scheduler owns the live games, their tallies and the deadline heap. It is
// not safe for concurrent use; the server's event loop is its only caller.
type Scheduler struct {
	Logger   *logrus.Logger
	Recorder Recorder

	games map[int64]*game
	queue queue
}

// New returns an empty Scheduler. recorder may be nil.
func New(logger *logrus.Logger, recorder Recorder) *Scheduler {
	return &Scheduler{
		Logger:   logger,
		Recorder: recorder,
		games:    make(map[int64]*game),
	}
}

// Add starts scheduling s at s.NextDeadline(). t carries votes already cast
// for the current ply; nil starts an empty tally. Adding a finished session
// or an ID that is already scheduled is an error, as is a non-positive move
// interval, since a tie would then be rescheduled at the instant it resolved.
func (s *Scheduler) Add(sess *session.Session, t *tally.Tally) error {
	if sess.Status == session.Finished {
		return fmt.Errorf("game %d: %w", sess.ID, session.ErrSessionFinished)
	}
	if sess.Params.MoveInterval <= 0 {
		return fmt.Errorf("game %d: %w (%v)", sess.ID, ErrInvalidInterval, sess.Params.MoveInterval)
	}
	if _, ok := s.games[sess.ID]; ok {
		return fmt.Errorf("game %d is already scheduled", sess.ID)
	}
	if t == nil {
		t = sess.NewTally()
	}

	g := &game{session: sess, tally: t}
	s.games[sess.ID] = g
	s.schedule(g, sess.NextDeadline())
	return nil
}

func (s *Scheduler) schedule(g *game, deadline time.Time) {
	g.entry = &entry{deadline: deadline, id: g.session.ID}
	heap.Push(&s.queue, g.entry)
}

// Session returns the live session with the given ID.
func (s *Scheduler) Session(id int64) (*session.Session, bool) {
	g, ok := s.games[id]
	if !ok {
		return nil, false
	}
	return g.session, true
}

// Tally returns the open tally of a live session.
func (s *Scheduler) Tally(id int64) (*tally.Tally, bool) {
	g, ok := s.games[id]
	if !ok {
		return nil, false
	}
	return g.tally, true
}

// Deadline returns the instant the session's current ply closes.
func (s *Scheduler) Deadline(id int64) (time.Time, bool) {
	g, ok := s.games[id]
	if !ok || g.entry == nil {
		return time.Time{}, false
	}
	return g.entry.deadline, true
}

// Len is the number of live sessions.
func (s *Scheduler) Len() int {
	return len(s.games)
}

// IDs lists the live sessions in ascending order.
func (s *Scheduler) IDs() []int64 {
	ids := make([]int64, 0, len(s.games))
	for id := range s.games {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Vote adds weight votes for move to the open tally of game id.
func (s *Scheduler) Vote(id int64, move string, weight int) error {
	g, ok := s.games[id]
	if !ok {
		return ErrNoSuchSession
	}
	return g.tally.Cast(move, weight)
}

// DrainAll resolves every session whose deadline is at or before now, in
// deadline order, and reports each resolution.
func (s *Scheduler) DrainAll(now time.Time) []Processed {
	var processed []Processed
	for {
		e := s.queue.peek()
		if e == nil || now.Before(e.deadline) {
			return processed
		}
		heap.Pop(&s.queue)

		g, ok := s.games[e.id]
		if !ok || g.entry != e {
			// Retired by another path; the entry is stale.
			continue
		}
		g.entry = nil
		processed = append(processed, s.resolve(g, now))
	}
}

func (s *Scheduler) resolve(g *game, now time.Time) Processed {
	sess := g.session
	res := g.tally.Resolve()

	if res.Kind == tally.Tied {
		s.Logger.Debugf("[SCHEDULER] game %d tied between %v, extending voting", sess.ID, res.Moves)
		s.schedule(g, now.Add(sess.Params.MoveInterval))
		return Processed{ID: sess.ID, Outcome: Retied, Tied: res.Moves}
	}
	return s.commit(g, res.Move(), now)
}

// commit plays move on g and either reschedules or retires the game. g must
// not have a live entry.
func (s *Scheduler) commit(g *game, move string, now time.Time) Processed {
	sess := g.session
	snapshot := g.tally.Snapshot()

	status, err := sess.Commit(move, snapshot, now)
	if err != nil {
		// The tally only ever holds legal moves, so this means the session and
		// its tally drifted apart. Start the ply over rather than lose the game.
		s.Logger.Errorf("[SCHEDULER] game %d failed to commit %s: %v", sess.ID, move, err)
		g.tally = sess.NewTally()
		s.schedule(g, now.Add(sess.Params.MoveInterval))
		return Processed{ID: sess.ID, Outcome: Retied}
	}

	s.Logger.Infof("[SCHEDULER] game %d played %s (ply %d, votes %s)",
		sess.ID, move, sess.Ply(), debug.SortedCounts(snapshot))
	s.Logger.Debugf("[SCHEDULER] game %d tally at commit:\n%s", sess.ID, debug.Dump(snapshot))
	s.record(func(r Recorder) error { return r.RecordCommit(sess, move, snapshot) })

	if status == session.Finished {
		delete(s.games, sess.ID)
		s.Logger.Infof("[SCHEDULER] game %d finished %s", sess.ID, sess.Result)
		s.record(func(r Recorder) error { return r.RecordFinish(sess) })
		return Processed{ID: sess.ID, Outcome: Finished, Move: move, Result: sess.Result}
	}

	g.tally = sess.NewTally()
	s.schedule(g, sess.NextDeadline())
	return Processed{ID: sess.ID, Outcome: Committed, Move: move}
}

func (s *Scheduler) record(fn func(Recorder) error) {
	if s.Recorder == nil {
		return
	}
	if err := fn(s.Recorder); err != nil {
		s.Logger.Errorf("[SCHEDULER] error recording game state: %v", err)
	}
}

// ForceResolve commits the current leader of game id immediately, breaking a
// tie in favor of the lexicographically smallest leading move.
func (s *Scheduler) ForceResolve(id int64, now time.Time) (Processed, error) {
	g, ok := s.games[id]
	if !ok {
		return Processed{}, ErrNoSuchSession
	}
	move, ok := g.tally.ForceResolve()
	if !ok {
		return Processed{}, ErrNothingToPlay
	}

	s.unschedule(g)
	return s.commit(g, move, now), nil
}

// Retire finishes game id out of band and drops it from the schedule.
// Retiring an unknown game is a no-op that returns false.
func (s *Scheduler) Retire(id int64, result rules.Result) bool {
	g, ok := s.games[id]
	if !ok {
		return false
	}

	s.unschedule(g)
	delete(s.games, id)
	g.session.Finish(result)
	s.Logger.Infof("[SCHEDULER] game %d retired %s", id, result)
	s.record(func(r Recorder) error { return r.RecordFinish(g.session) })
	return true
}

func (s *Scheduler) unschedule(g *game) {
	if g.entry != nil && g.entry.index >= 0 {
		heap.Remove(&s.queue, g.entry.index)
	}
	g.entry = nil
}

// NextDeadline returns the earliest pending deadline.
func (s *Scheduler) NextDeadline() (time.Time, bool) {
	e := s.queue.peek()
	if e == nil {
		return time.Time{}, false
	}
	return e.deadline, true
}
