package client

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/dcrodman/crowdchess/internal/account"
	"github.com/dcrodman/crowdchess/internal/core/frame"
)

// Role distinguishes the administrative console from players.
type Role int

const (
	Player Role = iota
	Console
)

func (r Role) String() string {
	if r == Console {
		return "console"
	}
	return "client"
}

// Client represents a peer connected to one of the server's listeners.
type Client struct {
	connection net.Conn
	ipAddr     string
	port       string

	// ID is unique among the connections accepted by one server.
	ID   int64
	Role Role

	// Decoder holds any partial frame received from the peer.
	Decoder *frame.Decoder

	// Account the player logged in as; nil until a successful login.
	Account *account.Account

	// Deadline applied to every write. Zero means no deadline.
	WriteTimeout time.Duration
}

func NewClient(connection net.Conn, id int64, role Role, maxFrameSize int) *Client {
	host, port, err := net.SplitHostPort(connection.RemoteAddr().String())
	if err != nil {
		host = connection.RemoteAddr().String()
	}

	return &Client{
		connection: connection,
		ipAddr:     host,
		port:       port,
		ID:         id,
		Role:       role,
		Decoder:    frame.NewDecoder(maxFrameSize),
	}
}

func (c *Client) IPAddr() string { return c.ipAddr }
func (c *Client) Port() string   { return c.port }

// LoggedIn reports whether an account is attached to the connection.
func (c *Client) LoggedIn() bool { return c.Account != nil }

// Read consumes the available bytes directly from the client's TCP connection.
func (c *Client) Read(b []byte) (int, error) {
	return c.connection.Read(b)
}

// Write directly sends data to the client over its TCP connection.
func (c *Client) Write(bytes []byte) (int, error) {
	return c.connection.Write(bytes)
}

// Close the TCP connection.
func (c *Client) Close() error {
	return c.connection.Close()
}

// SendIdentity writes the raw identity byte for the client's role. Players
// are also told their connection ID in a frame.
func (c *Client) SendIdentity() error {
	if c.Role == Console {
		return c.transmit([]byte{frame.IdentityConsole})
	}
	data := append([]byte{frame.IdentityClient}, frame.EncodeString(strconv.FormatInt(c.ID, 10))...)
	return c.transmit(data)
}

// Reply sends a success or failure control byte, followed by msg as a frame
// unless msg is empty.
func (c *Client) Reply(ok bool, msg string) error {
	ack := frame.Nack
	if ok {
		ack = frame.Ack
	}
	data := []byte{ack}
	if msg != "" {
		data = append(data, frame.EncodeString(msg)...)
	}
	return c.transmit(data)
}

// Send writes msg as a single frame.
func (c *Client) Send(msg string) error {
	return c.transmit(frame.EncodeString(msg))
}

// transmit writes the contents of data to the TCP connection, giving up once
// WriteTimeout has passed.
func (c *Client) transmit(data []byte) error {
	if c.WriteTimeout > 0 {
		if err := c.connection.SetWriteDeadline(time.Now().Add(c.WriteTimeout)); err != nil {
			return fmt.Errorf("failed to set write deadline for client %d: %w", c.ID, err)
		}
	}

	bytesSent := 0
	for bytesSent < len(data) {
		b, err := c.Write(data[bytesSent:])
		if err != nil {
			return fmt.Errorf("failed to send to client %d (%s): %w", c.ID, c.IPAddr(), err)
		}
		bytesSent += b
	}

	return nil
}
