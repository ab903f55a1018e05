// Package server multiplexes player and console connections onto a single
// event loop that also drives the game scheduler.
//
// Every socket gets a goroutine that does nothing but read bytes and hand
// them to the loop over a channel. The loop owns everything else: frame
// reassembly, command handling, the scheduler and every session, so none of
// that state needs a lock. The loop wakes at least once per tick interval
// to drain due games even when no peer is talking.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"runtime/debug"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/crowdchess/internal/account"
	"github.com/dcrodman/crowdchess/internal/archive"
	"github.com/dcrodman/crowdchess/internal/core"
	"github.com/dcrodman/crowdchess/internal/core/client"
	archdebug "github.com/dcrodman/crowdchess/internal/core/debug"
	"github.com/dcrodman/crowdchess/internal/rules"
	"github.com/dcrodman/crowdchess/internal/scheduler"
	"github.com/dcrodman/crowdchess/internal/session"
)

const readBufferSize = 4096

// Accounts is what the server needs from the account store.
type Accounts interface {
	Register(login, secret string) (*account.Account, error)
	Authenticate(login, secret string) (*account.Account, error)
	ColorOf(accountID uint64, gameID int64) (rules.Color, bool, error)
	RecordMembership(accountID uint64, gameID int64, color rules.Color) error
	RecordVote(accountID uint64, gameID int64, ply int, move string, at time.Time) error
	ActiveGames(accountID uint64) ([]int64, error)
	Ledger(accountID uint64, gameID int64) ([]account.LedgerEntry, error)
}

// Archive allocates game IDs, persists new games and restores active ones.
type Archive interface {
	NextGameID() (int64, error)
	RecordCreate(s *session.Session) error
	Restore() ([]archive.Restored, error)
}

type eventKind int

const (
	eventAccept eventKind = iota
	eventData
	eventClosed
)

type event struct {
	kind eventKind
	// Set for eventAccept.
	conn net.Conn
	role client.Role
	// Set for eventData and eventClosed.
	client *client.Client
	data   []byte
	err    error
}

// Server is the connection multiplexer and the facade players talk to.
type Server struct {
	Name      string
	Config    *core.Config
	Logger    *logrus.Logger
	Accounts  Accounts
	Archive   Archive
	Engine    rules.Engine
	Scheduler *scheduler.Scheduler
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time

	events chan event
	calls  chan func()
	done   chan struct{}

	consoleListener net.Listener
	clientListener  net.Listener

	console      *client.Client
	clients      map[int64]*client.Client
	nextClientID int64

	// Every game seen by this process, including finished ones.
	games map[int64]*session.Session

	processing bool
	stopped    bool
	frameLog   *bufio.Writer
}

// Init binds the console listener, restores active games and, if configured,
// starts accepting players. It must be called once before Run.
func (s *Server) Init() error {
	if s.Name == "" {
		s.Name = "SERVER"
	}
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.Config.Voting.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %v", s.Config.Voting.TickInterval)
	}
	if s.Scheduler == nil {
		s.Scheduler = scheduler.New(s.Logger, nil)
	}

	s.events = make(chan event)
	s.calls = make(chan func())
	s.done = make(chan struct{})
	s.clients = make(map[int64]*client.Client)
	s.games = make(map[int64]*session.Session)
	s.processing = s.Config.Voting.ProcessOnStart
	if s.Config.Debugging.FrameLoggingEnabled {
		s.frameLog = bufio.NewWriter(os.Stdout)
	}

	if err := s.restoreGames(); err != nil {
		return err
	}

	listener, err := net.Listen("tcp", s.Config.ConsoleAddress())
	if err != nil {
		return fmt.Errorf("error listening for the console on %s: %w", s.Config.ConsoleAddress(), err)
	}
	s.consoleListener = listener
	go s.acceptLoop(listener, client.Console)
	s.Logger.Infof("[%s] waiting for the console on %v", s.Name, listener.Addr())

	if s.Config.ListenOnStart {
		if err := s.startAccepting(s.Config.ClientAddress()); err != nil {
			s.consoleListener.Close()
			return err
		}
	}
	return nil
}

func (s *Server) restoreGames() error {
	if s.Archive == nil {
		return nil
	}
	restored, err := s.Archive.Restore()
	if err != nil {
		return fmt.Errorf("error restoring games: %w", err)
	}
	for _, r := range restored {
		if err := s.Scheduler.Add(r.Session, r.Tally); err != nil {
			s.Logger.Warnf("[%s] could not schedule restored game %d: %v", s.Name, r.Session.ID, err)
			continue
		}
		s.games[r.Session.ID] = r.Session
	}
	if len(restored) > 0 {
		s.Logger.Infof("[%s] restored %d active games", s.Name, len(restored))
	}
	return nil
}

// ConsoleAddr is the address the console listener is bound to.
func (s *Server) ConsoleAddr() net.Addr {
	return s.consoleListener.Addr()
}

// Run is the event loop. It returns once ctx is cancelled or the console
// asks the server to shut down, after closing every connection.
func (s *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Config.Voting.TickInterval)
	defer ticker.Stop()
	defer s.shutdown()

	for !s.stopped {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			s.handleEvent(ev)
		case fn := <-s.calls:
			fn()
		case <-ticker.C:
		}

		if s.processing && !s.stopped {
			s.drain()
		}
	}
}

func (s *Server) shutdown() {
	s.Logger.Infof("[%s] shutting down", s.Name)
	close(s.done)

	s.consoleListener.Close()
	if s.clientListener != nil {
		s.clientListener.Close()
	}
	if s.console != nil {
		s.teardown(s.console)
	}
	for _, c := range s.clients {
		s.teardown(c)
	}
	if s.frameLog != nil {
		s.frameLog.Flush()
	}
	s.Logger.Infof("[%s] exited", s.Name)
}

// call runs fn on the loop goroutine and waits for it. It returns false if
// the loop has already exited.
func (s *Server) call(fn func()) bool {
	finished := make(chan struct{})
	select {
	case s.calls <- func() { fn(); close(finished) }:
	case <-s.done:
		return false
	}
	<-finished
	return true
}

// StartAccepting opens the player listener on addr, replacing any previous one.
func (s *Server) StartAccepting(addr string) error {
	var err error
	if !s.call(func() { err = s.startAccepting(addr) }) {
		return errors.New("server is not running")
	}
	return err
}

// Disconnect drops the player connection with the given ID.
func (s *Server) Disconnect(clientID int64) bool {
	var ok bool
	s.call(func() { ok = s.disconnect(clientID) })
	return ok
}

// SetProcessingEnabled turns the scheduler's drain passes on or off.
func (s *Server) SetProcessingEnabled(enabled bool) {
	s.call(func() { s.processing = enabled })
}

// ConnectionCount is the number of connected players.
func (s *Server) ConnectionCount() int {
	var n int
	s.call(func() { n = len(s.clients) })
	return n
}

// ClientAddr is the address players connect to, or nil if not listening.
func (s *Server) ClientAddr() net.Addr {
	var addr net.Addr
	s.call(func() {
		if s.clientListener != nil {
			addr = s.clientListener.Addr()
		}
	})
	return addr
}

// Shutdown stops the event loop.
func (s *Server) Shutdown() {
	s.call(func() { s.stopped = true })
}

func (s *Server) startAccepting(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("error listening for clients on %s: %w", addr, err)
	}
	if s.clientListener != nil {
		s.clientListener.Close()
	}
	s.clientListener = listener
	go s.acceptLoop(listener, client.Player)

	s.Logger.Infof("[%s] waiting for clients on %v", s.Name, listener.Addr())
	return nil
}

func (s *Server) disconnect(clientID int64) bool {
	c, ok := s.clients[clientID]
	if !ok {
		return false
	}
	s.teardown(c)
	return true
}

// acceptLoop hands every accepted connection to the event loop. It exits
// once the listener is closed.
func (s *Server) acceptLoop(listener net.Listener, role client.Role) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.Logger.Warnf("[%s] failed to accept %s connection: %v", s.Name, role, err)
			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		if !s.deliver(event{kind: eventAccept, conn: conn, role: role}) {
			conn.Close()
			return
		}
	}
}

// readLoop copies whatever the peer sends into events until the connection
// fails or is closed.
func (s *Server) readLoop(c *client.Client) {
	buffer := make([]byte, readBufferSize)
	for {
		n, err := c.Read(buffer)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buffer[:n])
			if !s.deliver(event{kind: eventData, client: c, data: chunk}) {
				return
			}
		}
		if err != nil {
			s.deliver(event{kind: eventClosed, client: c, err: err})
			return
		}
	}
}

func (s *Server) deliver(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *Server) handleEvent(ev event) {
	switch ev.kind {
	case eventAccept:
		s.accept(ev.conn, ev.role)
	case eventData:
		s.receive(ev.client, ev.data)
	case eventClosed:
		if s.registered(ev.client) {
			s.Logger.Debugf("[%s] %s %d closed the connection: %v", s.Name, ev.client.Role, ev.client.ID, ev.err)
			s.teardown(ev.client)
		}
	}
}

func (s *Server) accept(conn net.Conn, role client.Role) {
	if role == client.Player && s.Config.MaxConnections > 0 && len(s.clients) >= s.Config.MaxConnections {
		s.Logger.Warnf("[%s] rejected connection from %v: at capacity", s.Name, conn.RemoteAddr())
		conn.Close()
		return
	}

	s.nextClientID++
	c := client.NewClient(conn, s.nextClientID, role, s.Config.Protocol.MaxFrameSize)
	c.WriteTimeout = s.Config.Protocol.WriteTimeout

	if err := c.SendIdentity(); err != nil {
		s.Logger.Warnf("[%s] failed to greet %s %d: %v", s.Name, role, c.ID, err)
		c.Close()
		return
	}

	if role == client.Console {
		if s.console != nil {
			s.Logger.Infof("[%s] replacing console %d", s.Name, s.console.ID)
			s.teardown(s.console)
		}
		s.console = c
	} else {
		s.clients[c.ID] = c
	}

	s.Logger.Infof("[%s] accepted %s %d from %s", s.Name, role, c.ID, c.IPAddr())
	go s.readLoop(c)
}

func (s *Server) registered(c *client.Client) bool {
	if c.Role == client.Console {
		return s.console == c
	}
	return s.clients[c.ID] == c
}

// receive feeds data to the connection's decoder and handles every frame it
// completes. A malformed frame or a panic while handling one only costs the
// offending connection.
func (s *Server) receive(c *client.Client, data []byte) {
	if !s.registered(c) {
		return
	}
	defer s.recoverConnection(c)

	frames, err := c.Decoder.Feed(data)
	for _, f := range frames {
		if !s.registered(c) {
			return
		}
		if s.frameLog != nil {
			archdebug.PrintFrame(archdebug.PrintFrameParams{
				Writer:     s.frameLog,
				Role:       c.Role.String(),
				PeerID:     c.ID,
				FromClient: true,
				Payload:    f,
			})
		}

		if c.Role == client.Console {
			s.handleConsole(c, string(f))
		} else {
			s.handleClient(c, string(f))
		}
	}

	if err != nil && s.registered(c) {
		s.Logger.Warnf("[%s] protocol violation from %s %d: %v", s.Name, c.Role, c.ID, err)
		s.teardown(c)
	}
}

// recoverConnection is the failsafe that catches any panics while handling a
// connection's frames and drops only that connection.
func (s *Server) recoverConnection(c *client.Client) {
	if err := recover(); err != nil {
		s.Logger.Errorf("[%s] error in communication with %s %d: error=%v, trace: %s",
			s.Name, c.Role, c.ID, err, debug.Stack())
		if s.registered(c) {
			s.teardown(c)
		}
	}
}

// teardown closes and forgets a connection. Memberships and votes of its
// account are untouched.
func (s *Server) teardown(c *client.Client) {
	if err := c.Close(); err != nil {
		s.Logger.Debugf("[%s] error closing %s %d: %v", s.Name, c.Role, c.ID, err)
	}
	if c.Role == client.Console {
		if s.console == c {
			s.console = nil
		}
	} else {
		delete(s.clients, c.ID)
	}
	s.Logger.Infof("[%s] disconnected %s %d", s.Name, c.Role, c.ID)
}

func (s *Server) now() time.Time {
	return s.Clock()
}

// drain resolves every due game and pushes new positions to their members.
func (s *Server) drain() {
	s.publish(s.Scheduler.DrainAll(s.now()))
}

func (s *Server) publish(processed []scheduler.Processed) {
	for _, p := range processed {
		switch p.Outcome {
		case scheduler.Committed, scheduler.Finished:
			s.pushPosition(p.ID)
		}
	}
}

// pushPosition sends the current position of game id to every connected
// member of either side.
func (s *Server) pushPosition(id int64) {
	sess, ok := s.games[id]
	if !ok {
		return
	}

	members := make(map[uint64]struct{})
	for _, color := range []rules.Color{rules.White, rules.Black} {
		for _, accountID := range sess.Members(color) {
			members[accountID] = struct{}{}
		}
	}

	position := positionMessage(sess)
	for _, c := range s.connectedClients() {
		if !c.LoggedIn() {
			continue
		}
		if _, ok := members[c.Account.ID]; !ok {
			continue
		}
		s.send(c, position)
	}
}

// connectedClients returns the players ordered by connection ID.
func (s *Server) connectedClients() []*client.Client {
	clients := make([]*client.Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].ID < clients[j].ID })
	return clients
}

// reply sends a control byte and optional message, dropping the connection
// if the write fails.
func (s *Server) reply(c *client.Client, ok bool, msg string) {
	if err := c.Reply(ok, msg); err != nil {
		s.Logger.Warnf("[%s] %v", s.Name, err)
		s.teardown(c)
	}
}

// send writes a single frame, dropping the connection if the write fails.
func (s *Server) send(c *client.Client, msg string) {
	if err := c.Send(msg); err != nil {
		s.Logger.Warnf("[%s] %v", s.Name, err)
		s.teardown(c)
	}
}
