// Package session holds the authoritative state of a single voted game.
package session

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dcrodman/crowdchess/internal/rules"
	"github.com/dcrodman/crowdchess/internal/tally"
)

var (
	ErrWrongPassword   = errors.New("wrong game password")
	ErrAlreadyMember   = errors.New("account already plays in this game")
	ErrIllegalMove     = errors.New("illegal move")
	ErrSessionFinished = errors.New("game has already finished")
)

// Status is either Active or Finished.
type Status int

const (
	Active Status = iota
	Finished
)

func (s Status) String() string {
	if s == Finished {
		return "FINISHED"
	}
	return "ACTIVE"
}

// Parameters configure the pace and visibility of a game.
type Parameters struct {
	StartTime    time.Time
	MoveInterval time.Duration
	Anonymous    bool
}

// Session is one game: its position, members and history. A Session is not
// safe for concurrent use; its owner serializes access.
type Session struct {
	ID       int64
	Creator  uint64
	Password string
	Params   Parameters
	LastMove time.Time
	Status   Status
	Result   rules.Result

	members  [2]map[uint64]struct{}
	engine   rules.Engine
	position *rules.Position
	history  []tally.Snapshot
}

// NewGame creates a Session at the starting position with no members. The
// first deadline is one interval after the start time.
func NewGame(id int64, engine rules.Engine, creator uint64, password string, params Parameters) *Session {
	return &Session{
		ID:       id,
		Creator:  creator,
		Password: password,
		Params:   params,
		LastMove: params.StartTime,
		Status:   Active,
		members:  [2]map[uint64]struct{}{{}, {}},
		engine:   engine,
		position: engine.Start(),
	}
}

// Restore rebuilds a Session from persisted state. The history may be shorter
// than the move list if snapshots were lost; missing plies are left empty.
func Restore(id int64, engine rules.Engine, creator uint64, password string, params Parameters,
	moves []string, lastMove time.Time, history []tally.Snapshot) (*Session, error) {
	pos, err := engine.Replay("", moves)
	if err != nil {
		return nil, fmt.Errorf("error restoring game %d: %w", id, err)
	}

	s := NewGame(id, engine, creator, password, params)
	s.position = pos
	s.LastMove = lastMove
	s.history = make([]tally.Snapshot, len(moves))
	copy(s.history, history)
	if result := engine.Result(pos); result.Terminal() {
		s.Status = Finished
		s.Result = result
	}
	return s, nil
}

// Join adds account to one color's members. Open games (blank password)
// accept any password.
func (s *Session) Join(account uint64, color rules.Color, password string) error {
	if s.Status == Finished {
		return ErrSessionFinished
	}
	if s.Password != "" && s.Password != password {
		return ErrWrongPassword
	}
	if _, ok := s.ColorOf(account); ok {
		return ErrAlreadyMember
	}
	s.members[color][account] = struct{}{}
	return nil
}

// AddMember records membership without any checks. Used when restoring.
func (s *Session) AddMember(account uint64, color rules.Color) {
	s.members[color][account] = struct{}{}
}

// ColorOf returns the side account votes for, if any.
func (s *Session) ColorOf(account uint64) (rules.Color, bool) {
	for _, c := range []rules.Color{rules.White, rules.Black} {
		if _, ok := s.members[c][account]; ok {
			return c, true
		}
	}
	return rules.White, false
}

// Members returns the sorted account IDs playing color.
func (s *Session) Members(color rules.Color) []uint64 {
	ids := make([]uint64, 0, len(s.members[color]))
	for id := range s.members[color] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Commit plays move, records the tally it won with and stamps the commit
// time. If the new position is terminal the Session becomes Finished.
func (s *Session) Commit(move string, snapshot tally.Snapshot, at time.Time) (Status, error) {
	if s.Status == Finished {
		return s.Status, ErrSessionFinished
	}
	if !rules.IsLegal(s.engine.LegalMoves(s.position), move) {
		return s.Status, fmt.Errorf("%w: %s", ErrIllegalMove, move)
	}
	next, err := s.engine.Apply(s.position, move)
	if err != nil {
		return s.Status, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}

	s.position = next
	s.history = append(s.history, snapshot)
	s.LastMove = at

	if result := s.engine.Result(next); result.Terminal() {
		s.Status = Finished
		s.Result = result
	}
	return s.Status, nil
}

// Finish ends the game out of band with the given result.
func (s *Session) Finish(result rules.Result) {
	s.Status = Finished
	s.Result = result
}

// NextDeadline is when voting on the current ply closes.
func (s *Session) NextDeadline() time.Time {
	return s.LastMove.Add(s.Params.MoveInterval)
}

// LegalMoves lists the moves a new Tally should accept.
func (s *Session) LegalMoves() []string {
	return s.engine.LegalMoves(s.position)
}

// NewTally returns an empty Tally for the current ply.
func (s *Session) NewTally() *tally.Tally {
	return tally.New(s.LegalMoves())
}

// FEN encodes the current position.
func (s *Session) FEN() string {
	return s.engine.FEN(s.position)
}

// PGN renders the game so far.
func (s *Session) PGN() string {
	return s.engine.PGN(s.position)
}

// Turn is the side whose members may currently vote.
func (s *Session) Turn() rules.Color {
	return s.position.Turn()
}

// Ply is the number of committed half-moves.
func (s *Session) Ply() int {
	return s.position.Ply()
}

// Moves returns the committed moves in UCI notation.
func (s *Session) Moves() []string {
	return s.position.Moves()
}

// VoteHistory returns the tally snapshot of every committed ply.
func (s *Session) VoteHistory() []tally.Snapshot {
	return append([]tally.Snapshot(nil), s.history...)
}
