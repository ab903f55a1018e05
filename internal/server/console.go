package server

import (
	"fmt"
	"net"
	"strconv"

	"github.com/dcrodman/crowdchess/internal/core/client"
	"github.com/dcrodman/crowdchess/internal/scheduler"
)

const (
	consoleUnknown  = "Command not recognized"
	consoleDetached = "Console detached"
	consoleExiting  = "Shutting down"
)

// handleConsole runs one administrative command. Every command is answered
// with exactly one text frame and no control byte.
func (s *Server) handleConsole(c *client.Client, payload string) {
	var msg string

	switch cmd := ParseConsoleCommand(payload).(type) {
	case ListenCommand:
		addr := net.JoinHostPort(cmd.Host, strconv.Itoa(cmd.Port))
		if err := s.startAccepting(addr); err != nil {
			msg = "Unable to listen: " + err.Error()
		} else {
			msg = "Listening for clients on " + s.clientListener.Addr().String()
		}

	case DisconnectClientCommand:
		if s.disconnect(cmd.ClientID) {
			msg = fmt.Sprintf("Disconnected client %d", cmd.ClientID)
		} else {
			msg = fmt.Sprintf("No client with ID %d", cmd.ClientID)
		}

	case InfoCommand:
		msg = fmt.Sprintf("Currently there are %d clients connected", len(s.clients))

	case ToggleProcessingCommand:
		s.processing = !s.processing
		if s.processing {
			msg = "Processing enabled"
		} else {
			msg = "Processing disabled"
		}

	case ForceCommand:
		msg = s.force(cmd.GameID)

	case FinishCommand:
		if s.Scheduler.Retire(cmd.GameID, cmd.Result) {
			s.pushPosition(cmd.GameID)
			msg = fmt.Sprintf("Game %d finished %s", cmd.GameID, cmd.Result)
		} else {
			msg = fmt.Sprintf("No active game %d", cmd.GameID)
		}

	case DetachCommand:
		s.send(c, consoleDetached)
		if s.registered(c) {
			s.teardown(c)
		}
		return

	case ShutdownCommand:
		s.send(c, consoleExiting)
		s.stopped = true
		return

	case UnknownConsoleCommand:
		msg = consoleUnknown
		if cmd.Usage != "" {
			msg = cmd.Usage
		}
	}

	s.Logger.Infof("[%s] console: %q -> %q", s.Name, payload, msg)
	s.send(c, msg)
}

func (s *Server) force(id int64) string {
	p, err := s.Scheduler.ForceResolve(id, s.now())
	if err != nil {
		return fmt.Sprintf("Unable to force game %d: %v", id, err)
	}
	s.publish([]scheduler.Processed{p})

	switch p.Outcome {
	case scheduler.Finished:
		return fmt.Sprintf("Game %d played %s and finished %s", id, p.Move, p.Result)
	case scheduler.Retied:
		return fmt.Sprintf("Game %d could not play, voting restarted", id)
	default:
		return fmt.Sprintf("Game %d played %s", id, p.Move)
	}
}
