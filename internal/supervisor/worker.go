package supervisor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/stackia/rtp2httpd/internal/logger"
	"github.com/stackia/rtp2httpd/internal/status"
)

// WorkerClient is the worker side of the control bus: it publishes a
// status snapshot on a timer and subscribes for commands targeted at its
// own worker index, mirroring nabbar-golib's libnat client usage pattern but scoped
// to one subject pair instead of a general pub/sub component.
type WorkerClient struct {
	nc  *nats.Conn
	idx int
	log *logger.Entry
}

// DialWorker connects to the supervisor's embedded broker at url.
func DialWorker(url string, idx int, log *logger.Entry) (*WorkerClient, error) {
	nc, err := nats.Connect(url, nats.Name(fmt.Sprintf("rtp2httpd-worker-%d", idx)))
	if err != nil {
		return nil, fmt.Errorf("supervisor: worker %d dialing control bus: %w", idx, err)
	}
	return &WorkerClient{nc: nc, idx: idx, log: log}, nil
}

// PublishStatus sends one snapshot on this worker's status subject.
func (w *WorkerClient) PublishStatus(snap status.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("supervisor: marshaling status: %w", err)
	}
	return w.nc.Publish(fmt.Sprintf(statusSubjectFmt, w.idx), data)
}

// RunStatusLoop publishes build() on every tick until stop is closed.
func (w *WorkerClient) RunStatusLoop(interval time.Duration, stop <-chan struct{}, build func() status.Snapshot) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			if err := w.PublishStatus(build()); err != nil {
				w.log.Warnf("supervisor: worker %d publishing status: %v", w.idx, err)
			}
		}
	}
}

// OnCommand subscribes to this worker's cmd subject and invokes handle for
// every force-disconnect/set-log-level command received (spec §6.4).
func (w *WorkerClient) OnCommand(handle func(Command)) (*nats.Subscription, error) {
	return w.nc.Subscribe(fmt.Sprintf(cmdSubjectFmt, w.idx), func(msg *nats.Msg) {
		cmd, err := unmarshalCommand(msg.Data)
		if err != nil {
			w.log.Warnf("supervisor: worker %d: malformed command: %v", w.idx, err)
			return
		}
		handle(cmd)
	})
}

func (w *WorkerClient) Close() { w.nc.Close() }
