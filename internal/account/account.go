// Package account is the server's view of registered players: credentials,
// the side each one plays in every game, and the ledger of their votes.
package account

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/dcrodman/crowdchess/internal/core/auth"
	"github.com/dcrodman/crowdchess/internal/core/data"
	"github.com/dcrodman/crowdchess/internal/rules"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountExists      = errors.New("account exists")
)

// Account is the logged-in identity attached to a connection.
type Account struct {
	ID       uint64
	Username string
}

// LedgerEntry is one vote from an account's history in a game.
type LedgerEntry struct {
	Ply    int
	Move   string
	CastAt time.Time
}

// Store reads and writes accounts, memberships and votes. It is used from
// the server's event loop and from the command line tools.
type Store struct {
	DB     *gorm.DB
	Logger *logrus.Logger

	colors *colorCache
}

func NewStore(db *gorm.DB, logger *logrus.Logger) *Store {
	return &Store{DB: db, Logger: logger, colors: newColorCache()}
}

// Register creates an account with the given credentials.
func (s *Store) Register(login, secret string) (*Account, error) {
	account, err := auth.CreateAccount(s.DB, login, secret)
	switch {
	case errors.Is(err, auth.ErrAccountExists):
		return nil, ErrAccountExists
	case errors.Is(err, auth.ErrInvalidUsername):
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	case err != nil:
		return nil, fmt.Errorf("error registering %s: %w", login, err)
	}

	s.Logger.Infof("[ACCOUNT] registered %s (ID: %d)", account.Username, account.ID)
	return &Account{ID: account.ID, Username: account.Username}, nil
}

// Authenticate checks login and secret. Unknown logins, wrong secrets and
// banned accounts are all reported as ErrInvalidCredentials.
func (s *Store) Authenticate(login, secret string) (*Account, error) {
	account, err := auth.VerifyAccount(s.DB, login, secret)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrAccountBanned):
		return nil, ErrInvalidCredentials
	case err != nil:
		return nil, err
	}
	return &Account{ID: account.ID, Username: account.Username}, nil
}

// ColorOf returns the side accountID plays in gameID, if it has joined.
func (s *Store) ColorOf(accountID uint64, gameID int64) (rules.Color, bool, error) {
	if color, ok := s.colors.Get(accountID, gameID); ok {
		return color, true, nil
	}

	membership, err := data.FindMembership(s.DB, accountID, gameID)
	if err != nil {
		return rules.White, false, fmt.Errorf("error looking up membership: %w", err)
	} else if membership == nil {
		return rules.White, false, nil
	}

	color, err := rules.ParseColor(membership.Color)
	if err != nil {
		return rules.White, false, fmt.Errorf("corrupt membership %d: %w", membership.ID, err)
	}
	s.colors.Put(accountID, gameID, color)
	return color, true, nil
}

// RecordMembership persists that accountID plays color in gameID.
func (s *Store) RecordMembership(accountID uint64, gameID int64, color rules.Color) error {
	err := data.CreateMembership(s.DB, &data.Membership{
		AccountID: accountID,
		GameID:    gameID,
		Color:     color.String(),
	})
	if err != nil {
		return fmt.Errorf("error recording membership: %w", err)
	}
	s.colors.Put(accountID, gameID, color)
	return nil
}

// Members returns the persisted memberships of gameID keyed by account.
func (s *Store) Members(gameID int64) (map[uint64]rules.Color, error) {
	memberships, err := data.FindMembershipsByGame(s.DB, gameID)
	if err != nil {
		return nil, fmt.Errorf("error loading members of game %d: %w", gameID, err)
	}

	members := make(map[uint64]rules.Color, len(memberships))
	for _, m := range memberships {
		color, err := rules.ParseColor(m.Color)
		if err != nil {
			s.Logger.Warnf("[ACCOUNT] skipping corrupt membership %d: %v", m.ID, err)
			continue
		}
		members[m.AccountID] = color
		s.colors.Put(m.AccountID, gameID, color)
	}
	return members, nil
}

// RecordVote appends a vote to the ledger.
func (s *Store) RecordVote(accountID uint64, gameID int64, ply int, move string, at time.Time) error {
	err := data.CreateVote(s.DB, &data.Vote{
		AccountID: accountID,
		GameID:    gameID,
		Ply:       ply,
		Move:      move,
		CastAt:    at,
	})
	if err != nil {
		return fmt.Errorf("error recording vote: %w", err)
	}
	return nil
}

// Ledger returns every vote accountID cast in gameID, oldest first.
func (s *Store) Ledger(accountID uint64, gameID int64) ([]LedgerEntry, error) {
	votes, err := data.FindAccountVotes(s.DB, accountID, gameID)
	if err != nil {
		return nil, fmt.Errorf("error loading vote ledger: %w", err)
	}

	ledger := make([]LedgerEntry, len(votes))
	for i, v := range votes {
		ledger[i] = LedgerEntry{Ply: v.Ply, Move: v.Move, CastAt: v.CastAt}
	}
	return ledger, nil
}

// ActiveGames lists the unfinished games accountID has joined.
func (s *Store) ActiveGames(accountID uint64) ([]int64, error) {
	ids, err := data.FindActiveGameIDs(s.DB, accountID)
	if err != nil {
		return nil, fmt.Errorf("error loading active games: %w", err)
	}
	return ids, nil
}

// ForgetGame drops cached memberships of a finished game.
func (s *Store) ForgetGame(gameID int64) {
	s.colors.Forget(gameID)
}
