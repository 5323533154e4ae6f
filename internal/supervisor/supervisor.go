package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/stackia/rtp2httpd/internal/logger"
	"github.com/stackia/rtp2httpd/internal/status"
)

// WorkerEnvVar is set on forked worker processes to the control bus URL and
// their logical worker index, the way the teacher's components pass
// runtime context through injected functions rather than global state —
// here the boundary is a process fork instead of an in-process component,
// so it travels as environment instead.
const (
	WorkerEnvVar      = "RTP2HTTPD_NATS_URL"
	WorkerIndexEnvVar = "RTP2HTTPD_WORKER_INDEX"
)

// Supervisor forks and restarts worker processes and aggregates their
// status snapshots (spec §6.4, spec §3 "the parent supervises workers").
type Supervisor struct {
	broker *Broker
	log    *logger.Entry

	selfPath string
	selfArgs []string
	count    int

	mu       sync.Mutex
	snapshot map[int]status.Snapshot // by worker index

	nc *nats.Conn
}

// New constructs a Supervisor that will fork `count` copies of the current
// executable (selfPath, selfArgs — typically the running binary and the
// parent's own arguments) once Run is called. Each child gets WorkerEnvVar
// in its environment, which the CLI layer checks to run in worker mode.
func New(broker *Broker, log *logger.Entry, selfPath string, selfArgs []string, count int) *Supervisor {
	if count < 1 {
		count = 1
	}
	return &Supervisor{
		broker:   broker,
		log:      log,
		selfPath: selfPath,
		selfArgs: selfArgs,
		count:    count,
		snapshot: make(map[int]status.Snapshot, count),
	}
}

// Run forks every worker and restarts any that exit unexpectedly, until ctx
// is canceled. Each worker's lifecycle is an independent errgroup member so
// one crash-looping worker doesn't bring down its siblings (spec §3: "the
// parent supervises workers... and restarts them").
func (s *Supervisor) Run(ctx context.Context) error {
	nc, err := nats.Connect(s.broker.ClientURL(), nats.Name("rtp2httpd-supervisor"))
	if err != nil {
		return fmt.Errorf("supervisor: dialing own control bus: %w", err)
	}
	s.nc = nc
	defer nc.Close()

	sub, err := nc.Subscribe("rtp2httpd.worker.*.status", s.handleStatus)
	if err != nil {
		return fmt.Errorf("supervisor: subscribing to worker status: %w", err)
	}
	defer sub.Unsubscribe()

	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < s.count; i++ {
		idx := i
		g.Go(func() error {
			return s.superviseOne(gctx, idx)
		})
	}

	return g.Wait()
}

func (s *Supervisor) superviseOne(ctx context.Context, idx int) error {
	backoff := time.Second
	for {
		err := s.runOnce(ctx, idx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			s.log.Warnf("supervisor: worker %d exited: %v, restarting in %s", idx, err, backoff)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (s *Supervisor) runOnce(ctx context.Context, idx int) error {
	cmd := exec.CommandContext(ctx, s.selfPath, s.selfArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("%s=%s", WorkerEnvVar, s.broker.ClientURL()),
		fmt.Sprintf("%s=%d", WorkerIndexEnvVar, idx),
	)

	s.log.Infof("supervisor: starting worker %d", idx)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting worker %d: %w", idx, err)
	}
	return cmd.Wait()
}

// Snapshots returns the most recently received status for each worker
// index currently known.
func (s *Supervisor) Snapshots() map[int]status.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]status.Snapshot, len(s.snapshot))
	for k, v := range s.snapshot {
		out[k] = v
	}
	return out
}

func (s *Supervisor) recordSnapshot(idx int, snap status.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot[idx] = snap
}

// handleStatus decodes "rtp2httpd.worker.<idx>.status" deliveries; the
// worker index travels in the subject rather than the payload so the
// supervisor never has to trust a worker-reported identity.
func (s *Supervisor) handleStatus(msg *nats.Msg) {
	idx, ok := workerIndexFromSubject(msg.Subject)
	if !ok {
		return
	}

	var snap status.Snapshot
	if err := unmarshalSnapshot(msg.Data, &snap); err != nil {
		s.log.Warnf("supervisor: malformed status from worker %d: %v", idx, err)
		return
	}
	s.recordSnapshot(idx, snap)
}

func workerIndexFromSubject(subject string) (int, bool) {
	parts := strings.Split(subject, ".")
	if len(parts) != 4 {
		return 0, false
	}
	idx, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, false
	}
	return idx, true
}

// SendCommand publishes cmd to worker idx's cmd subject (spec §6.4:
// "force-disconnect client id" / "set log level").
func (s *Supervisor) SendCommand(idx int, cmd Command) error {
	if s.nc == nil {
		return fmt.Errorf("supervisor: control bus not connected")
	}
	return s.nc.Publish(fmt.Sprintf(cmdSubjectFmt, idx), cmd.marshal())
}
