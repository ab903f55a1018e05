// Package rules adapts a chess library to the small surface the voting engine
// needs: legal moves in UCI notation, move application, FEN, PGN and the
// terminal result of a position.
package rules

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/corentings/chess/v2"
)

// Result is the outcome of a position.
type Result int

const (
	Ongoing Result = iota
	WhiteWins
	BlackWins
	Draw
)

func (r Result) String() string {
	switch r {
	case WhiteWins:
		return "1-0"
	case BlackWins:
		return "0-1"
	case Draw:
		return "1/2-1/2"
	default:
		return "*"
	}
}

// Terminal reports whether the game is over.
func (r Result) Terminal() bool {
	return r != Ongoing
}

// ParseResult is the inverse of Result.String.
func ParseResult(s string) Result {
	switch s {
	case "1-0":
		return WhiteWins
	case "0-1":
		return BlackWins
	case "1/2-1/2":
		return Draw
	default:
		return Ongoing
	}
}

// Color is a side of the board.
type Color int

const (
	White Color = iota
	Black
)

func (c Color) String() string {
	if c == Black {
		return "b"
	}
	return "w"
}

// ParseColor accepts w/b and white/black in any case.
func ParseColor(s string) (Color, error) {
	switch strings.ToLower(s) {
	case "w", "white":
		return White, nil
	case "b", "black":
		return Black, nil
	}
	return White, fmt.Errorf("unknown color %q", s)
}

// ErrIllegalMove is returned by Apply for moves that are not legal in the position.
var ErrIllegalMove = errors.New("illegal move")

// StartingFEN is the standard initial position.
const StartingFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Position is an immutable handle on a game: the position it started from
// and the UCI moves played since.
type Position struct {
	start string
	moves []string
	game  *chess.Game
}

// Moves returns the UCI moves played since the start position.
func (p *Position) Moves() []string {
	return append([]string(nil), p.moves...)
}

// Ply is the number of half-moves played.
func (p *Position) Ply() int {
	return len(p.moves)
}

// Turn returns the side to move.
func (p *Position) Turn() Color {
	if p.game.Position().Turn() == chess.Black {
		return Black
	}
	return White
}

// Engine is the rules collaborator consumed by sessions and tallies.
type Engine interface {
	// Start returns the initial position of a new game.
	Start() *Position
	// Replay rebuilds a position from a start FEN (blank for the standard one)
	// and the UCI moves played from it.
	Replay(fen string, moves []string) (*Position, error)
	// LegalMoves lists the legal moves of p in UCI notation, sorted.
	LegalMoves(p *Position) []string
	// Apply returns the position reached by playing move from p. p is unchanged.
	Apply(p *Position, move string) (*Position, error)
	// FEN encodes p.
	FEN(p *Position) string
	// PGN renders the game leading to p.
	PGN(p *Position) string
	// Result evaluates whether p is terminal.
	Result(p *Position) Result
}

// Chess is the Engine implementation for standard chess.
type Chess struct{}

var _ Engine = Chess{}

func (Chess) Start() *Position {
	return &Position{start: StartingFEN, game: chess.NewGame()}
}

func (c Chess) Replay(fen string, moves []string) (*Position, error) {
	if fen == "" {
		fen = StartingFEN
	}
	game, err := newGame(fen)
	if err != nil {
		return nil, err
	}
	for i, mv := range moves {
		if err := game.PushNotationMove(mv, chess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("replaying move %d (%s): %w", i+1, mv, ErrIllegalMove)
		}
	}
	return &Position{start: fen, moves: append([]string(nil), moves...), game: game}, nil
}

func (Chess) LegalMoves(p *Position) []string {
	valid := p.game.ValidMoves()
	moves := make([]string, 0, len(valid))
	for _, mv := range valid {
		moves = append(moves, mv.String())
	}
	sort.Strings(moves)
	return moves
}

func (c Chess) Apply(p *Position, move string) (*Position, error) {
	if c.Result(p).Terminal() {
		return nil, fmt.Errorf("%w: game is over", ErrIllegalMove)
	}
	if !IsLegal(c.LegalMoves(p), move) {
		return nil, fmt.Errorf("%w: %s", ErrIllegalMove, move)
	}
	// Positions are shared by reference, so play the move on a fresh copy.
	next, err := c.Replay(p.start, p.moves)
	if err != nil {
		return nil, err
	}
	if err := next.game.PushNotationMove(move, chess.UCINotation{}, nil); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrIllegalMove, move)
	}
	next.moves = append(next.moves, move)
	return next, nil
}

func (Chess) FEN(p *Position) string {
	return p.game.FEN()
}

func (Chess) PGN(p *Position) string {
	return p.game.String()
}

func (Chess) Result(p *Position) Result {
	switch p.game.Outcome() {
	case chess.WhiteWon:
		return WhiteWins
	case chess.BlackWon:
		return BlackWins
	case chess.Draw:
		return Draw
	}
	return Ongoing
}

// IsLegal reports whether move is in the sorted list legal.
func IsLegal(legal []string, move string) bool {
	i := sort.SearchStrings(legal, move)
	return i < len(legal) && legal[i] == move
}

func newGame(fen string) (*chess.Game, error) {
	if fen == StartingFEN {
		return chess.NewGame(), nil
	}
	option, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("error parsing FEN %q: %w", fen, err)
	}
	return chess.NewGame(option), nil
}
