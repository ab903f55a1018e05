// Package archive persists games as they are played so that active games
// survive a restart and finished ones keep their full vote history.
package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/dcrodman/crowdchess/internal/account"
	"github.com/dcrodman/crowdchess/internal/core/data"
	"github.com/dcrodman/crowdchess/internal/rules"
	"github.com/dcrodman/crowdchess/internal/session"
	"github.com/dcrodman/crowdchess/internal/tally"
)

// Archive implements scheduler.Recorder on top of the game tables.
type Archive struct {
	DB       *gorm.DB
	Logger   *logrus.Logger
	Engine   rules.Engine
	Accounts *account.Store
	// Directory finished games are written to as <id>.pgn. Blank disables it.
	PGNDir string
}

// Restored is an active game rebuilt from the database along with the votes
// already cast for its current ply.
type Restored struct {
	Session *session.Session
	Tally   *tally.Tally
}

// NextGameID hands out game IDs from a persisted counter so IDs are never
// reused across restarts.
func (a *Archive) NextGameID() (int64, error) {
	id, err := data.NextValue(a.DB, data.NextGameIDCounter, 1)
	if err != nil {
		return 0, fmt.Errorf("error allocating game id: %w", err)
	}
	return id, nil
}

// RecordCreate persists a newly created game.
func (a *Archive) RecordCreate(s *session.Session) error {
	game := &data.Game{
		ID:           s.ID,
		CreatorID:    s.Creator,
		Password:     s.Password,
		StartTime:    s.Params.StartTime,
		MoveInterval: int(s.Params.MoveInterval / time.Second),
		Anonymous:    s.Params.Anonymous,
		LastMoveTime: s.LastMove,
		Status:       data.GameStatusActive,
	}
	if err := data.CreateGame(a.DB, game); err != nil {
		return fmt.Errorf("error saving game %d: %w", s.ID, err)
	}
	return nil
}

// RecordCommit stores the new move list and the tally the move won with.
func (a *Archive) RecordCommit(s *session.Session, move string, snapshot tally.Snapshot) error {
	counts, err := json.Marshal(snapshot.Votes())
	if err != nil {
		return fmt.Errorf("error encoding tally of game %d: %w", s.ID, err)
	}

	return a.DB.Transaction(func(tx *gorm.DB) error {
		game, err := a.findGame(tx, s.ID)
		if err != nil {
			return err
		}
		game.Moves = strings.Join(s.Moves(), " ")
		game.LastMoveTime = s.LastMove
		if err := data.SaveGame(tx, game); err != nil {
			return fmt.Errorf("error saving game %d: %w", s.ID, err)
		}

		return data.CreateTallySnapshot(tx, &data.TallySnapshot{
			GameID: s.ID,
			Ply:    s.Ply() - 1,
			Counts: string(counts),
		})
	})
}

// RecordFinish marks the game finished and archives it as PGN.
func (a *Archive) RecordFinish(s *session.Session) error {
	game, err := a.findGame(a.DB, s.ID)
	if err != nil {
		return err
	}

	game.Moves = strings.Join(s.Moves(), " ")
	game.LastMoveTime = s.LastMove
	game.Status = data.GameStatusFinished
	game.Result = s.Result.String()
	headers, err := a.pgnHeaders(s)
	if err != nil {
		return err
	}
	game.PGN = headers + s.PGN()
	if err := data.SaveGame(a.DB, game); err != nil {
		return fmt.Errorf("error saving game %d: %w", s.ID, err)
	}
	if a.Accounts != nil {
		a.Accounts.ForgetGame(s.ID)
	}

	if a.PGNDir != "" {
		if err := a.writePGN(s.ID, game.PGN); err != nil {
			return err
		}
	}
	a.Logger.Infof("[ARCHIVE] game %d archived (%s)", s.ID, game.Result)
	return nil
}

// pgnHeaders renders the tag pairs of a finished game. Each side is named by
// the logins of its members.
func (a *Archive) pgnHeaders(s *session.Session) (string, error) {
	sides := make(map[rules.Color]string, 2)
	for _, color := range []rules.Color{rules.White, rules.Black} {
		var logins []string
		for _, id := range s.Members(color) {
			acct, err := data.FindAccountByID(a.DB, id)
			if err != nil {
				return "", fmt.Errorf("error looking up account %d: %w", id, err)
			}
			if acct != nil {
				logins = append(logins, acct.Username)
			}
		}
		sides[color] = strings.Join(logins, ", ")
	}

	var b strings.Builder
	for _, tag := range [][2]string{
		{"Event", "crowdchess game " + strconv.FormatInt(s.ID, 10)},
		{"Site", "crowdchess"},
		{"Date", s.Params.StartTime.Format("2006.01.02")},
		{"White", sides[rules.White]},
		{"Black", sides[rules.Black]},
		{"Result", s.Result.String()},
	} {
		fmt.Fprintf(&b, "[%s %q]\n", tag[0], tag[1])
	}
	b.WriteString("\n")
	return b.String(), nil
}

func (a *Archive) writePGN(id int64, pgn string) error {
	if err := os.MkdirAll(a.PGNDir, 0755); err != nil {
		return fmt.Errorf("error creating archive directory: %w", err)
	}
	path := filepath.Join(a.PGNDir, fmt.Sprintf("%d.pgn", id))
	if err := os.WriteFile(path, []byte(pgn), 0644); err != nil {
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	return nil
}

func (a *Archive) findGame(db *gorm.DB, id int64) (*data.Game, error) {
	game, err := data.FindGame(db, id)
	if err != nil {
		return nil, fmt.Errorf("error loading game %d: %w", id, err)
	} else if game == nil {
		return nil, fmt.Errorf("game %d has not been archived", id)
	}
	return game, nil
}

// Restore rebuilds every active game. A game that cannot be replayed is
// logged and skipped rather than failing the whole restore.
func (a *Archive) Restore() ([]Restored, error) {
	games, err := data.FindActiveGames(a.DB)
	if err != nil {
		return nil, fmt.Errorf("error loading active games: %w", err)
	}

	var restored []Restored
	for i := range games {
		r, err := a.restoreGame(&games[i])
		if err != nil {
			a.Logger.Errorf("[ARCHIVE] skipping game %d: %v", games[i].ID, err)
			continue
		}
		restored = append(restored, r)
	}
	return restored, nil
}

func (a *Archive) restoreGame(game *data.Game) (Restored, error) {
	history, err := a.loadHistory(game.ID)
	if err != nil {
		return Restored{}, err
	}

	s, err := session.Restore(game.ID, a.Engine, game.CreatorID, game.Password,
		session.Parameters{
			StartTime:    game.StartTime,
			MoveInterval: time.Duration(game.MoveInterval) * time.Second,
			Anonymous:    game.Anonymous,
		},
		strings.Fields(game.Moves), game.LastMoveTime, history)
	if err != nil {
		return Restored{}, err
	}

	members, err := a.members(game.ID)
	if err != nil {
		return Restored{}, err
	}
	for id, color := range members {
		s.AddMember(id, color)
	}

	t, err := a.currentTally(s, members)
	if err != nil {
		return Restored{}, err
	}
	a.Logger.Infof("[ARCHIVE] restored game %d at ply %d with %d votes pending", s.ID, s.Ply(), t.Total())
	return Restored{Session: s, Tally: t}, nil
}

func (a *Archive) loadHistory(gameID int64) ([]tally.Snapshot, error) {
	rows, err := data.FindTallySnapshots(a.DB, gameID)
	if err != nil {
		return nil, fmt.Errorf("error loading tally history: %w", err)
	}

	var history []tally.Snapshot
	for _, row := range rows {
		for len(history) < row.Ply {
			history = append(history, nil)
		}
		snap := tally.Snapshot{}
		if err := json.Unmarshal([]byte(row.Counts), &snap); err != nil {
			return nil, fmt.Errorf("error decoding tally of ply %d: %w", row.Ply, err)
		}
		history = append(history, snap)
	}
	return history, nil
}

func (a *Archive) members(gameID int64) (map[uint64]rules.Color, error) {
	if a.Accounts != nil {
		return a.Accounts.Members(gameID)
	}

	rows, err := data.FindMembershipsByGame(a.DB, gameID)
	if err != nil {
		return nil, fmt.Errorf("error loading members: %w", err)
	}
	members := make(map[uint64]rules.Color, len(rows))
	for _, m := range rows {
		if color, err := rules.ParseColor(m.Color); err == nil {
			members[m.AccountID] = color
		}
	}
	return members, nil
}

// currentTally replays the vote ledger of the open ply. Votes from accounts
// not on the side to move, or for moves no longer legal, are dropped.
func (a *Archive) currentTally(s *session.Session, members map[uint64]rules.Color) (*tally.Tally, error) {
	votes, err := data.FindVotesForPly(a.DB, s.ID, s.Ply())
	if err != nil {
		return nil, fmt.Errorf("error loading votes: %w", err)
	}

	t := s.NewTally()
	for _, v := range votes {
		if color, ok := members[v.AccountID]; !ok || color != s.Turn() {
			continue
		}
		if err := t.Cast(v.Move, 1); err != nil {
			a.Logger.Warnf("[ARCHIVE] game %d: dropping vote %d: %v", s.ID, v.ID, err)
		}
	}
	return t, nil
}
