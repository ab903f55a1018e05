package server

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/crowdchess/internal/core/client"
	"github.com/dcrodman/crowdchess/internal/core/frame"
	"github.com/dcrodman/crowdchess/internal/session"
)

// positionMessage is the frame carrying a game's FEN, both in replies and pushes.
func positionMessage(s *session.Session) string {
	return frame.PositionPrefix + s.FEN()
}

// handleClient dispatches one player frame and answers it with a single
// reply: a control byte and at most one frame.
func (s *Server) handleClient(c *client.Client, payload string) {
	var (
		msg string
		err error
	)

	switch cmd := ParseCommand(payload).(type) {
	case RegisterCommand:
		err = s.register(c, cmd)
	case LoginCommand:
		msg, err = s.login(c, cmd)
	case CreateCommand:
		msg, err = s.createGame(c, cmd)
	case JoinCommand:
		msg, err = s.joinGame(c, cmd)
	case VoteCommand:
		msg, err = s.vote(c, cmd)
	case RequestPositionCommand:
		msg, err = s.requestPosition(cmd)
	case ListGamesCommand:
		msg, err = s.listGames(c)
	case VotesCommand:
		msg, err = s.listVotes(c, cmd)
	case DisconnectCommand:
		s.reply(c, true, "")
		if s.registered(c) {
			s.teardown(c)
		}
		return
	case UnknownCommand:
		err = &Rejection{Reason: BadRequest, Detail: cmd.Usage}
	}

	if err != nil {
		rejection := asRejection(err)
		entry := s.Logger.WithFields(logrus.Fields{"client": c.ID, "request": payload})
		if rejection.Reason == Internal {
			entry.Errorf("[%s] request failed: %v", s.Name, err)
		} else {
			entry.Debugf("[%s] request rejected: %v", s.Name, rejection)
		}
		s.reply(c, false, rejection.Message())
		return
	}
	s.reply(c, true, msg)
}

func (s *Server) register(c *client.Client, cmd RegisterCommand) error {
	if c.LoggedIn() {
		return reject(AlreadyLoggedIn)
	}
	acct, err := s.Accounts.Register(cmd.Login, cmd.Password)
	if err != nil {
		return err
	}
	s.Logger.Infof("[%s] client %d registered account %s", s.Name, c.ID, acct.Username)
	return nil
}

func (s *Server) login(c *client.Client, cmd LoginCommand) (string, error) {
	if c.LoggedIn() {
		return "", reject(AlreadyLoggedIn)
	}
	acct, err := s.Accounts.Authenticate(cmd.Login, cmd.Password)
	if err != nil {
		return "", err
	}
	c.Account = acct
	s.Logger.Infof("[%s] client %d logged in as %s", s.Name, c.ID, acct.Username)
	return "Hello " + acct.Username, nil
}

func (s *Server) createGame(c *client.Client, cmd CreateCommand) (string, error) {
	if !c.LoggedIn() {
		return "", reject(NotLoggedIn)
	}
	interval := cmd.Interval
	if interval == 0 {
		interval = s.Config.MoveInterval()
	}

	id, err := s.Archive.NextGameID()
	if err != nil {
		return "", err
	}
	sess := session.NewGame(id, s.Engine, c.Account.ID, cmd.Password, session.Parameters{
		StartTime:    s.now(),
		MoveInterval: interval,
	})
	if err := s.Archive.RecordCreate(sess); err != nil {
		return "", err
	}
	if err := s.Scheduler.Add(sess, nil); err != nil {
		return "", err
	}
	s.games[id] = sess

	s.Logger.Infof("[%s] %s created game %d (%v per move)", s.Name, c.Account.Username, id, interval)
	return fmt.Sprintf("Your game ID is %d", id), nil
}

func (s *Server) joinGame(c *client.Client, cmd JoinCommand) (string, error) {
	if !c.LoggedIn() {
		return "", reject(NotLoggedIn)
	}
	sess, ok := s.games[cmd.GameID]
	if !ok {
		return "", reject(NoSuchSession)
	}
	if err := sess.Join(c.Account.ID, cmd.Color, cmd.Password); err != nil {
		return "", err
	}

	if err := s.Accounts.RecordMembership(c.Account.ID, sess.ID, cmd.Color); err != nil {
		// The in-memory membership stands; only a restart would lose it.
		s.Logger.Errorf("[%s] failed to persist membership of %s in game %d: %v",
			s.Name, c.Account.Username, sess.ID, err)
	}
	s.Logger.Infof("[%s] %s joined game %d as %s", s.Name, c.Account.Username, sess.ID, cmd.Color)
	return positionMessage(sess), nil
}

func (s *Server) vote(c *client.Client, cmd VoteCommand) (string, error) {
	if !c.LoggedIn() {
		return "", reject(NotLoggedIn)
	}
	sess, ok := s.Scheduler.Session(cmd.GameID)
	if !ok {
		if _, known := s.games[cmd.GameID]; known {
			return "", reject(SessionFinished)
		}
		return "", reject(NoSuchSession)
	}

	color, member := sess.ColorOf(c.Account.ID)
	if !member || color != sess.Turn() {
		return "", reject(NoPermission)
	}

	ply := sess.Ply()
	if err := s.Scheduler.Vote(sess.ID, cmd.Move, 1); err != nil {
		return "", err
	}
	if err := s.Accounts.RecordVote(c.Account.ID, sess.ID, ply, cmd.Move, s.now()); err != nil {
		s.Logger.Errorf("[%s] failed to persist vote of %s in game %d: %v",
			s.Name, c.Account.Username, sess.ID, err)
	}

	s.Logger.Debugf("[%s] %s voted %s in game %d", s.Name, c.Account.Username, cmd.Move, sess.ID)
	return "You have voted on " + cmd.Move, nil
}

func (s *Server) requestPosition(cmd RequestPositionCommand) (string, error) {
	sess, ok := s.games[cmd.GameID]
	if !ok {
		return "", reject(NoSuchSession)
	}
	return positionMessage(sess), nil
}

func (s *Server) listGames(c *client.Client) (string, error) {
	if !c.LoggedIn() {
		return "", reject(NotLoggedIn)
	}
	ids, err := s.Accounts.ActiveGames(c.Account.ID)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "You are not playing any games", nil
	}

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, " "), nil
}

// listVotes renders the caller's persisted vote ledger for a game: the side
// they joined followed by "ply:move" pairs, oldest first.
func (s *Server) listVotes(c *client.Client, cmd VotesCommand) (string, error) {
	if !c.LoggedIn() {
		return "", reject(NotLoggedIn)
	}
	if _, ok := s.games[cmd.GameID]; !ok {
		return "", reject(NoSuchSession)
	}
	color, member, err := s.Accounts.ColorOf(c.Account.ID, cmd.GameID)
	if err != nil {
		return "", err
	}
	if !member {
		return "", &Rejection{Reason: NoPermission, Detail: "You have not joined this game"}
	}

	ledger, err := s.Accounts.Ledger(c.Account.ID, cmd.GameID)
	if err != nil {
		return "", err
	}
	if len(ledger) == 0 {
		return "You have not voted in this game", nil
	}

	parts := make([]string, 0, len(ledger)+1)
	parts = append(parts, color.String())
	for _, entry := range ledger {
		parts = append(parts, fmt.Sprintf("%d:%s", entry.Ply, entry.Move))
	}
	return strings.Join(parts, " "), nil
}
