package supervisor

import (
	"fmt"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"

	"github.com/stackia/rtp2httpd/internal/logger"
)

// Broker owns the embedded, loopback-only NATS server the supervisor and
// every worker connect to. Grounded on nabbar-golib's componentNats, which
// builds a *natsrv.Options then libnat.NewServer(opt, status).Listen(ctx);
// here the options are fixed (loopback, random port, no logging of its
// own — this process's logger owns that) since this is an internal
// control bus, not a reconfigurable component.
type Broker struct {
	srv *natsserver.Server
	log *logger.Entry
}

// StartBroker boots the embedded server and blocks until it is ready to
// accept connections or readyTimeout elapses.
func StartBroker(log *logger.Entry, readyTimeout time.Duration) (*Broker, error) {
	opts := &natsserver.Options{
		Host:      "127.0.0.1",
		Port:      -1, // random free port; only this host's workers need it
		NoLog:     true,
		NoSigs:    true,
		MaxPayload: 4 << 20,
	}

	srv, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("supervisor: starting control bus: %w", err)
	}

	go srv.Start()

	if !srv.ReadyForConnections(readyTimeout) {
		srv.Shutdown()
		return nil, fmt.Errorf("supervisor: control bus not ready after %s", readyTimeout)
	}

	log.Infof("supervisor: control bus listening on %s", srv.ClientURL())
	return &Broker{srv: srv, log: log}, nil
}

// ClientURL is the address workers dial with nats.Connect.
func (b *Broker) ClientURL() string { return b.srv.ClientURL() }

// Shutdown stops the embedded server, closing every worker connection.
func (b *Broker) Shutdown() {
	b.srv.Shutdown()
	b.srv.WaitForShutdown()
}
