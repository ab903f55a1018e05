package debug

import (
	"bufio"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"sort"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"
)

// StartUtilities spins off the services associated with debug mode.
func StartUtilities(logger *logrus.Logger, pprofPort int) {
	startPprofServer(logger, pprofPort)
}

// This function starts the default pprof HTTP server that can be accessed via localhost
// to get runtime information about the server. See https://golang.org/pkg/net/http/pprof/
func startPprofServer(logger *logrus.Logger, port int) {
	listenerAddr := fmt.Sprintf("localhost:%d", port)
	logger.Infof("starting pprof server on %s", listenerAddr)

	go func() {
		if err := http.ListenAndServe(listenerAddr, nil); err != nil {
			logger.Infof("error starting pprof server: %s", err)
		}
	}()
}

var dumpConfig = spew.ConfigState{
	Indent:                  "  ",
	SortKeys:                true,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
}

// Dump renders any value (usually a tally snapshot) for debug logs.
func Dump(v interface{}) string {
	return strings.TrimSpace(dumpConfig.Sdump(v))
}

// PrintFrameParams describes a frame to be written to a debug log.
type PrintFrameParams struct {
	Writer     *bufio.Writer
	Role       string
	PeerID     int64
	FromClient bool
	Payload    []byte
}

// PrintFrame writes a single line describing a frame.
func PrintFrame(params PrintFrameParams) {
	direction := "server -> " + params.Role
	if params.FromClient {
		direction = params.Role + " -> server"
	}
	fmt.Fprintf(params.Writer, "[%s %d] (%d bytes) %q\n", direction, params.PeerID, len(params.Payload), params.Payload)
	params.Writer.Flush()
}

// SortedCounts renders a move->votes map as "move:n" pairs ordered by move.
func SortedCounts(counts map[string]int) string {
	moves := make([]string, 0, len(counts))
	for mv, n := range counts {
		if n > 0 {
			moves = append(moves, mv)
		}
	}
	sort.Strings(moves)

	parts := make([]string, len(moves))
	for i, mv := range moves {
		parts[i] = fmt.Sprintf("%s:%d", mv, counts[mv])
	}
	return strings.Join(parts, " ")
}
