// Package tally accumulates the votes cast for one ply of one game.
package tally

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrUnknownMove   = errors.New("move is not legal in this position")
	ErrInvalidWeight = errors.New("vote weight must be positive")
)

// Kind distinguishes the two possible resolutions.
type Kind int

const (
	Decided Kind = iota
	Tied
)

func (k Kind) String() string {
	if k == Tied {
		return "tied"
	}
	return "decided"
}

// Resolution is the result of counting a Tally. Decided resolutions carry
// exactly one move; Tied resolutions carry every move sharing the top count,
// sorted.
type Resolution struct {
	Kind  Kind
	Moves []string
}

// Move returns the winning move of a Decided resolution.
func (r Resolution) Move() string {
	if r.Kind != Decided || len(r.Moves) == 0 {
		return ""
	}
	return r.Moves[0]
}

// Snapshot is a copy of the counts at a point in time.
type Snapshot map[string]int

// Tally maps every legal move of a position to the number of votes it has
// received. The set of keys is fixed when the Tally is created.
type Tally struct {
	counts map[string]int
	total  int
}

// New creates an empty Tally over the given legal moves.
func New(legal []string) *Tally {
	counts := make(map[string]int, len(legal))
	for _, mv := range legal {
		counts[mv] = 0
	}
	return &Tally{counts: counts}
}

// FromSnapshot creates a Tally holding previously recorded counts. Moves
// present in snap but absent from legal are ignored.
func FromSnapshot(legal []string, snap Snapshot) *Tally {
	t := New(legal)
	for mv, n := range snap {
		if _, ok := t.counts[mv]; ok && n > 0 {
			t.counts[mv] = n
			t.total += n
		}
	}
	return t
}

// Cast adds weight votes to move. Unknown moves are rejected and leave the
// counts untouched.
func (t *Tally) Cast(move string, weight int) error {
	if weight < 1 {
		return ErrInvalidWeight
	}
	n, ok := t.counts[move]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMove, move)
	}
	t.counts[move] = n + weight
	t.total += weight
	return nil
}

// Has reports whether move is a candidate of this Tally.
func (t *Tally) Has(move string) bool {
	_, ok := t.counts[move]
	return ok
}

// Total is the number of votes cast so far.
func (t *Tally) Total() int {
	return t.total
}

// Candidates returns the moves that may be voted for, sorted.
func (t *Tally) Candidates() []string {
	moves := make([]string, 0, len(t.counts))
	for mv := range t.counts {
		moves = append(moves, mv)
	}
	sort.Strings(moves)
	return moves
}

// Resolve finds the moves with the highest count. A single leader is
// Decided; otherwise the leaders are Tied. A Tally with no candidates
// resolves to an empty tie.
func (t *Tally) Resolve() Resolution {
	best := -1
	var leaders []string
	for mv, n := range t.counts {
		switch {
		case n > best:
			best = n
			leaders = append(leaders[:0], mv)
		case n == best:
			leaders = append(leaders, mv)
		}
	}
	sort.Strings(leaders)

	if len(leaders) == 1 {
		return Resolution{Kind: Decided, Moves: leaders}
	}
	return Resolution{Kind: Tied, Moves: leaders}
}

// ForceResolve breaks a tie deterministically by choosing the
// lexicographically smallest of the leading moves.
func (t *Tally) ForceResolve() (string, bool) {
	res := t.Resolve()
	if len(res.Moves) == 0 {
		return "", false
	}
	return res.Moves[0], true
}

// Snapshot copies the current counts.
func (t *Tally) Snapshot() Snapshot {
	snap := make(Snapshot, len(t.counts))
	for mv, n := range t.counts {
		snap[mv] = n
	}
	return snap
}

// Votes returns only the moves that received at least one vote.
func (s Snapshot) Votes() Snapshot {
	out := make(Snapshot)
	for mv, n := range s {
		if n > 0 {
			out[mv] = n
		}
	}
	return out
}
