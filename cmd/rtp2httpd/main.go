// Command rtp2httpd is the multicast/RTSP-to-HTTP gateway binary: a
// supervisor parent forking N worker processes, or (when invoked with
// the control-bus environment supervisor.runOnce sets) a single worker
// running the HTTP front end and reactor.
package main

import (
	"fmt"
	"os"

	"github.com/stackia/rtp2httpd/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
