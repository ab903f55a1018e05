package server

import (
	"errors"
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dcrodman/crowdchess/internal/account"
	"github.com/dcrodman/crowdchess/internal/rules"
	"github.com/dcrodman/crowdchess/internal/scheduler"
	"github.com/dcrodman/crowdchess/internal/session"
	"github.com/dcrodman/crowdchess/internal/tally"
)

// Reason classifies why a player request was refused. The connection always
// stays open after a rejection.
type Reason int

const (
	Internal Reason = iota
	WrongPassword
	AlreadyMember
	UnknownMove
	IllegalMove
	NoPermission
	NotLoggedIn
	NoSuchSession
	SessionFinished
	AlreadyLoggedIn
	InvalidCredentials
	AccountExists
	BadRequest
)

var reasonMessages = map[Reason]string{
	Internal:           "internal server error",
	WrongPassword:      "wrong game password",
	AlreadyMember:      "you already play in this game",
	UnknownMove:        "unknown move",
	IllegalMove:        "illegal move",
	NoPermission:       "it is not your side's turn",
	NotLoggedIn:        "you are not logged in",
	NoSuchSession:      "no such game",
	SessionFinished:    "game has finished",
	AlreadyLoggedIn:    "you are already logged in",
	InvalidCredentials: "invalid login or password",
	AccountExists:      "account already exists",
	BadRequest:         "unknown command",
}

var titleCaser = cases.Title(language.English)

func (r Reason) String() string {
	return reasonMessages[r]
}

// Rejection is the error a handler returns to refuse a request.
type Rejection struct {
	Reason Reason
	// Detail replaces the default message when set.
	Detail string
}

func (r *Rejection) Error() string {
	if r.Detail != "" {
		return r.Detail
	}
	return r.Reason.String()
}

// Message is the text sent to the player after the failure byte.
func (r *Rejection) Message() string {
	if r.Detail != "" {
		return r.Detail
	}
	return titleCaser.String(r.Reason.String())
}

func reject(reason Reason) error {
	return &Rejection{Reason: reason}
}

// asRejection maps errors from the game packages onto rejections. Anything
// unrecognized is Internal.
func asRejection(err error) *Rejection {
	var rejection *Rejection
	if errors.As(err, &rejection) {
		return rejection
	}

	switch {
	case errors.Is(err, session.ErrWrongPassword):
		return &Rejection{Reason: WrongPassword}
	case errors.Is(err, session.ErrAlreadyMember):
		return &Rejection{Reason: AlreadyMember}
	case errors.Is(err, session.ErrSessionFinished):
		return &Rejection{Reason: SessionFinished}
	case errors.Is(err, session.ErrIllegalMove), errors.Is(err, rules.ErrIllegalMove):
		return &Rejection{Reason: IllegalMove}
	case errors.Is(err, tally.ErrUnknownMove):
		return &Rejection{Reason: UnknownMove}
	case errors.Is(err, scheduler.ErrNoSuchSession):
		return &Rejection{Reason: NoSuchSession}
	case errors.Is(err, account.ErrInvalidCredentials):
		return &Rejection{Reason: InvalidCredentials}
	case errors.Is(err, account.ErrAccountExists):
		return &Rejection{Reason: AccountExists}
	default:
		return &Rejection{Reason: Internal, Detail: fmt.Sprintf("%s, please try again later", titleCaser.String(Internal.String()))}
	}
}
