// Package supervisor implements spec §6.4's control channel: a parent
// process that forks N worker processes, aggregates their periodic status
// snapshots, and relays operator commands ("force-disconnect client id",
// "set log level") down to a specific worker.
//
// Grounded on nabbar-golib/config/components/natsServer, which embeds
// github.com/nats-io/nats-server/v2 in-process and exposes it as a
// libnat.Server component; this package reuses the same two packages
// (nats-server embedded here, nats.go in each worker) for exactly the
// publish/subscribe shape spec §6.4 describes, instead of hand-rolling a
// framed protocol over a Unix socket.
package supervisor

import (
	"encoding/json"

	"github.com/stackia/rtp2httpd/internal/status"
)

// Subject layout: one status/cmd pair per worker index, so the supervisor can
// target a single worker without every worker receiving every command.
const (
	statusSubjectFmt = "rtp2httpd.worker.%d.status"
	cmdSubjectFmt    = "rtp2httpd.worker.%d.cmd"
)

// CommandKind distinguishes the two operator commands spec §6.4 names.
type CommandKind string

const (
	CommandForceDisconnect CommandKind = "force-disconnect"
	CommandSetLogLevel     CommandKind = "set-log-level"
)

// Command is published on a worker's cmd subject.
type Command struct {
	Kind     CommandKind `json:"kind"`
	ClientID uint64      `json:"clientId,omitempty"`
	Level    string      `json:"level,omitempty"`
}

func (c Command) marshal() []byte {
	b, _ := json.Marshal(c)
	return b
}

func unmarshalCommand(data []byte) (Command, error) {
	var c Command
	err := json.Unmarshal(data, &c)
	return c, err
}

func unmarshalSnapshot(data []byte, snap *status.Snapshot) error {
	return json.Unmarshal(data, snap)
}
