package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dcrodman/crowdchess/internal/core/frame"
)

var consoleCmd = &cobra.Command{
	Use:   "console <host> <port>",
	Short: "Attaches an interactive console to a running server",
	Args:  cobra.ExactArgs(2),
	Run:   ConsoleCommand,
}

// ConsoleCommand relays lines typed on stdin to the server's console port
// and prints every reply until the console is detached or the server exits.
func ConsoleCommand(cmd *cobra.Command, args []string) {
	conn, err := net.Dial("tcp", net.JoinHostPort(args[0], args[1]))
	if err != nil {
		fmt.Println("error connecting to console:", err)
		os.Exit(1)
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)
	identity, err := frame.ReadByte(reader)
	if err != nil {
		fmt.Println("error reading identity:", err)
		os.Exit(1)
	}
	if identity != frame.IdentityConsole {
		fmt.Printf("unexpected identity byte %#x; is this the console port?\n", identity)
		os.Exit(1)
	}
	fmt.Println("connected; type <> to detach or exit to stop the server")

	input := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !input.Scan() {
			return
		}
		line := strings.TrimSpace(input.Text())
		if line == "" {
			continue
		}

		if err := frame.WriteFrame(conn, line); err != nil {
			fmt.Println("error sending command:", err)
			return
		}
		reply, err := frame.ReadFrame(reader)
		if err != nil {
			fmt.Println("error reading reply:", err)
			return
		}
		fmt.Println(reply)

		if line == frame.ConsoleDisconnect || line == frame.Shutdown {
			return
		}
	}
}
