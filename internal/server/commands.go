package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/dcrodman/crowdchess/internal/core/frame"
	"github.com/dcrodman/crowdchess/internal/rules"
)

// Command is one parsed player request. The set of variants is closed; the
// server dispatches on them with a single type switch.
type Command interface {
	command()
}

type RegisterCommand struct {
	Login    string
	Password string
}

type LoginCommand struct {
	Login    string
	Password string
}

// CreateCommand starts a new game. A zero Interval uses the server default.
type CreateCommand struct {
	Password string
	Interval time.Duration
}

type JoinCommand struct {
	GameID   int64
	Password string
	Color    rules.Color
}

type VoteCommand struct {
	GameID int64
	Move   string
}

type RequestPositionCommand struct {
	GameID int64
}

type ListGamesCommand struct{}

// VotesCommand asks for the votes the caller cast in a game.
type VotesCommand struct {
	GameID int64
}

type DisconnectCommand struct{}

// UnknownCommand is anything that did not parse. Usage is set when the verb
// was recognized but its arguments were not.
type UnknownCommand struct {
	Text  string
	Usage string
}

func (RegisterCommand) command()        {}
func (LoginCommand) command()           {}
func (CreateCommand) command()          {}
func (JoinCommand) command()            {}
func (VoteCommand) command()            {}
func (RequestPositionCommand) command() {}
func (ListGamesCommand) command()       {}
func (VotesCommand) command()           {}
func (DisconnectCommand) command()      {}
func (UnknownCommand) command()         {}

const (
	usageRegister = "usage: register <login> <password>"
	usageLogin    = "usage: login <login> <password>"
	usageCreate   = "usage: create [password] [interval seconds]"
	usageJoin     = "usage: join <game id> [password] <w|b>"
	usageVote     = "usage: vote <game id> <move>"
	usagePosition = "usage: rf <game id>"
	usageVotes    = "usage: votes <game id>"
)

// ParseCommand turns a player frame into a Command.
func ParseCommand(payload string) Command {
	fields := strings.Fields(payload)
	if len(fields) == 0 {
		return UnknownCommand{Text: payload}
	}

	args := fields[1:]
	switch fields[0] {
	case "register":
		if len(args) != 2 {
			return UnknownCommand{Text: payload, Usage: usageRegister}
		}
		return RegisterCommand{Login: args[0], Password: args[1]}

	case "login":
		if len(args) != 2 {
			return UnknownCommand{Text: payload, Usage: usageLogin}
		}
		return LoginCommand{Login: args[0], Password: args[1]}

	case "create":
		return parseCreate(payload, args)

	case "join":
		return parseJoin(payload, args)

	case "vote":
		if len(args) != 2 {
			return UnknownCommand{Text: payload, Usage: usageVote}
		}
		id, ok := parseGameID(args[0])
		if !ok {
			return UnknownCommand{Text: payload, Usage: usageVote}
		}
		return VoteCommand{GameID: id, Move: strings.ToLower(args[1])}

	case "rf", "requestPosition":
		if len(args) != 1 {
			return UnknownCommand{Text: payload, Usage: usagePosition}
		}
		id, ok := parseGameID(args[0])
		if !ok {
			return UnknownCommand{Text: payload, Usage: usagePosition}
		}
		return RequestPositionCommand{GameID: id}

	case "games":
		return ListGamesCommand{}

	case "votes":
		if len(args) != 1 {
			return UnknownCommand{Text: payload, Usage: usageVotes}
		}
		id, ok := parseGameID(args[0])
		if !ok {
			return UnknownCommand{Text: payload, Usage: usageVotes}
		}
		return VotesCommand{GameID: id}

	case frame.ClientDisconnect:
		if len(args) == 0 {
			return DisconnectCommand{}
		}
	}
	return UnknownCommand{Text: payload}
}

func parseCreate(payload string, args []string) Command {
	switch len(args) {
	case 0:
		return CreateCommand{}
	case 1:
		return CreateCommand{Password: args[0]}
	case 2:
		seconds, err := strconv.Atoi(args[1])
		if err != nil || seconds < 1 {
			return UnknownCommand{Text: payload, Usage: usageCreate}
		}
		return CreateCommand{Password: args[0], Interval: time.Duration(seconds) * time.Second}
	default:
		return UnknownCommand{Text: payload, Usage: usageCreate}
	}
}

func parseJoin(payload string, args []string) Command {
	if len(args) != 2 && len(args) != 3 {
		return UnknownCommand{Text: payload, Usage: usageJoin}
	}
	id, ok := parseGameID(args[0])
	if !ok {
		return UnknownCommand{Text: payload, Usage: usageJoin}
	}
	color, err := rules.ParseColor(strings.ToLower(args[len(args)-1]))
	if err != nil {
		return UnknownCommand{Text: payload, Usage: usageJoin}
	}

	cmd := JoinCommand{GameID: id, Color: color}
	if len(args) == 3 {
		cmd.Password = args[1]
	}
	return cmd
}

func parseGameID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

// ConsoleCommand is one parsed administrative request.
type ConsoleCommand interface {
	consoleCommand()
}

type ListenCommand struct {
	Host string
	Port int
}

type DisconnectClientCommand struct {
	ClientID int64
}

type InfoCommand struct{}

type ToggleProcessingCommand struct{}

// ForceCommand commits the current leader of a game immediately.
type ForceCommand struct {
	GameID int64
}

// FinishCommand ends a game out of band.
type FinishCommand struct {
	GameID int64
	Result rules.Result
}

type DetachCommand struct{}

type ShutdownCommand struct{}

type UnknownConsoleCommand struct {
	Text  string
	Usage string
}

func (ListenCommand) consoleCommand()           {}
func (DisconnectClientCommand) consoleCommand() {}
func (InfoCommand) consoleCommand()             {}
func (ToggleProcessingCommand) consoleCommand() {}
func (ForceCommand) consoleCommand()            {}
func (FinishCommand) consoleCommand()           {}
func (DetachCommand) consoleCommand()           {}
func (ShutdownCommand) consoleCommand()         {}
func (UnknownConsoleCommand) consoleCommand()   {}

const (
	usageListen = "usage: listen <host> <port>"
	usageDsc    = "usage: dsc <client id>"
	usageForce  = "usage: force <game id>"
	usageFinish = "usage: finish <game id> [1-0|0-1|1/2-1/2]"
)

// ParseConsoleCommand turns a console frame into a ConsoleCommand.
func ParseConsoleCommand(payload string) ConsoleCommand {
	fields := strings.Fields(payload)
	if len(fields) == 0 {
		return UnknownConsoleCommand{Text: payload}
	}

	args := fields[1:]
	switch fields[0] {
	case "listen":
		if len(args) != 2 {
			return UnknownConsoleCommand{Text: payload, Usage: usageListen}
		}
		port, err := strconv.Atoi(args[1])
		if err != nil || port < 0 || port > 65535 {
			return UnknownConsoleCommand{Text: payload, Usage: usageListen}
		}
		return ListenCommand{Host: args[0], Port: port}

	case "dsc":
		if len(args) != 1 {
			return UnknownConsoleCommand{Text: payload, Usage: usageDsc}
		}
		id, ok := parseGameID(args[0])
		if !ok {
			return UnknownConsoleCommand{Text: payload, Usage: usageDsc}
		}
		return DisconnectClientCommand{ClientID: id}

	case "info":
		return InfoCommand{}

	case "process":
		return ToggleProcessingCommand{}

	case "force":
		if len(args) != 1 {
			return UnknownConsoleCommand{Text: payload, Usage: usageForce}
		}
		id, ok := parseGameID(args[0])
		if !ok {
			return UnknownConsoleCommand{Text: payload, Usage: usageForce}
		}
		return ForceCommand{GameID: id}

	case "finish":
		if len(args) != 1 && len(args) != 2 {
			return UnknownConsoleCommand{Text: payload, Usage: usageFinish}
		}
		id, ok := parseGameID(args[0])
		if !ok {
			return UnknownConsoleCommand{Text: payload, Usage: usageFinish}
		}
		result := rules.Draw
		if len(args) == 2 {
			if result = rules.ParseResult(args[1]); !result.Terminal() {
				return UnknownConsoleCommand{Text: payload, Usage: usageFinish}
			}
		}
		return FinishCommand{GameID: id, Result: result}

	case frame.ConsoleDisconnect:
		return DetachCommand{}

	case frame.Shutdown:
		return ShutdownCommand{}
	}
	return UnknownConsoleCommand{Text: payload}
}
