package worker

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/stackia/rtp2httpd/internal/buffer"
	"github.com/stackia/rtp2httpd/internal/client"
	"github.com/stackia/rtp2httpd/internal/config"
	"github.com/stackia/rtp2httpd/internal/logger"
	"github.com/stackia/rtp2httpd/internal/m3u"
	"github.com/stackia/rtp2httpd/internal/reactor"
	"github.com/stackia/rtp2httpd/internal/service"
	"github.com/stackia/rtp2httpd/internal/status"
)

// Worker is one process's runtime (spec §3 Worker): the reactor driving
// upstream multicast sockets and timers, the buffer pool, the multicast
// session registry, and the HTTP front end accepting client connections.
// Each accepted connection is handled on its own goroutine (net/http's
// usual model via http.Server), since the per-client data-plane loop is
// one-socket-to-one-client regardless of scheduling model; only the
// upstream fan-out — the path with genuine N:1 contention — runs on the
// single-threaded reactor spec §4.1 describes.
type Worker struct {
	PID int

	cfg *config.Config
	log *logger.Entry

	pool     *buffer.Pool
	reactor  *reactor.Reactor
	registry *Registry

	services   map[string]*service.Service
	servicesMu sync.RWMutex

	clients   map[uint64]*clientHandle
	clientsMu sync.Mutex
	nextID    atomic.Uint64

	statusBuilder *status.Builder
	playlist      *m3u.Playlist

	zcEnabled bool
	startedAt time.Time
}

// New builds a Worker from a parsed Config; services named in cfg.Services
// are registered up front, and more may be added later via SetServices
// when the config's [services] section is hot-reloaded (spec §6.2).
func New(cfg *config.Config, log *logger.Entry) (*Worker, error) {
	pool, err := buffer.NewPool(cfg.Global.BufferPoolInitial, cfg.Global.BufferPoolMaxSize)
	if err != nil {
		return nil, fmt.Errorf("worker: allocating buffer pool: %w", err)
	}

	rct, err := reactor.New()
	if err != nil {
		return nil, fmt.Errorf("worker: starting reactor: %w", err)
	}

	w := &Worker{
		PID:      pid(),
		cfg:      cfg,
		log:      log,
		pool:     pool,
		reactor:  rct,
		registry: NewRegistry(pool, log),
		services: make(map[string]*service.Service),
		clients:  make(map[uint64]*clientHandle),
		statusBuilder: &status.Builder{
			WorkerPID: pid(),
			StartedAt: time.Now(),
			Pool:      pool,
			LogRing:   status.NewRingBuffer(200),
		},
		startedAt: time.Now(),
		zcEnabled: probeZeroCopy(),
	}

	w.registry.SetFECMatrix(cfg.Global.FECColumns, cfg.Global.FECRows)

	for _, def := range cfg.Services {
		svc, err := def.BuildService()
		if err != nil {
			return nil, err
		}
		w.services[svc.Name] = svc
	}

	return w, nil
}

// SetServices atomically replaces the named-service table, the
// non-disruptive reload path config.Watch triggers (spec §6.2): live
// clients keep their already-joined sessions untouched.
func (w *Worker) SetServices(defs []config.ServiceDef) {
	next := make(map[string]*service.Service, len(defs))
	for _, def := range defs {
		if svc, err := def.BuildService(); err == nil {
			next[svc.Name] = svc
		}
	}
	w.servicesMu.Lock()
	w.services = next
	w.servicesMu.Unlock()
}

func (w *Worker) lookupService(name string) (*service.Service, bool) {
	w.servicesMu.RLock()
	defer w.servicesMu.RUnlock()
	svc, ok := w.services[name]
	return svc, ok
}

// Run starts the HTTP front end and the reactor's timer-driven ticks
// (bandwidth sampling, multicast rejoin), blocking until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", w.cfg.Bind.Address, w.cfg.Bind.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("worker: binding %s: %w", addr, err)
	}

	srv := &http.Server{Handler: w.httpHandler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	// Timers must be armed before the reactor goroutine starts draining
	// them: the heap is single-threaded per spec §5, so every later
	// Schedule call happens from inside a timer callback on that same
	// goroutine, but this first one runs on the caller's goroutine.
	w.scheduleBandwidthTick()
	w.scheduleFCCTick()
	if w.cfg.Global.RejoinInterval > 0 {
		w.scheduleRejoinTick()
	}

	stopReactor := make(chan struct{})
	go w.runReactor(stopReactor)
	defer close(stopReactor)

	w.log.Infof("worker %d: listening on %s", w.PID, addr)
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("worker: http server: %w", err)
	}
	return nil
}

func (w *Worker) runReactor(stop <-chan struct{}) {
	if err := w.reactor.Run(stop); err != nil {
		w.log.Errorf("worker %d: reactor exited: %v", w.PID, err)
	}
}

// registerFd is passed to Registry.joinMulticast (and to per-client FCC
// unicast setup in session.go) so every ingress socket joins the worker's
// single reactor under its own callback, rather than a per-socket
// goroutine or a linear fd scan.
func (w *Worker) registerFd(fd int, cb func(events uint32)) (int32, error) {
	return w.reactor.Register(fd, unix.EPOLLIN, cb)
}

const bandwidthSampleInterval = 1 * time.Second

func (w *Worker) scheduleBandwidthTick() {
	var tick func(now time.Time)
	tick = func(now time.Time) {
		w.clientsMu.Lock()
		handles := make([]*clientHandle, 0, len(w.clients))
		for _, h := range w.clients {
			handles = append(handles, h)
		}
		w.clientsMu.Unlock()

		for _, h := range handles {
			h.client.SampleBandwidth(now)
		}
		w.reactor.Timers().Schedule(now.Add(bandwidthSampleInterval), tick)
	}
	w.reactor.Timers().Schedule(time.Now().Add(bandwidthSampleInterval), tick)
}

// fccTickInterval polls every live FCC engine's 80 ms response deadline
// (spec §4.2/§5) at a fine enough grain that the fallback-to-multicast
// transition fires close to on time without a per-client timer.
const fccTickInterval = 10 * time.Millisecond

func (w *Worker) scheduleFCCTick() {
	var tick func(now time.Time)
	tick = func(now time.Time) {
		w.clientsMu.Lock()
		handles := make([]*clientHandle, 0, len(w.clients))
		for _, h := range w.clients {
			if h.fcc != nil {
				handles = append(handles, h)
			}
		}
		w.clientsMu.Unlock()

		for _, h := range handles {
			h.fcc.CheckTimeout(now)
		}
		w.reactor.Timers().Schedule(now.Add(fccTickInterval), tick)
	}
	w.reactor.Timers().Schedule(time.Now().Add(fccTickInterval), tick)
}

func (w *Worker) scheduleRejoinTick() {
	interval := time.Duration(w.cfg.Global.RejoinInterval) * time.Second
	var tick func(now time.Time)
	tick = func(now time.Time) {
		w.registry.mu.Lock()
		sessions := make([]*multicastSession, 0, len(w.registry.sessions))
		for _, s := range w.registry.sessions {
			sessions = append(sessions, s)
		}
		w.registry.mu.Unlock()

		for _, s := range sessions {
			if err := s.sock.Rejoin(); err != nil {
				w.log.Warnf("worker %d: multicast rejoin failed: %v", w.PID, err)
			}
		}
		w.reactor.Timers().Schedule(now.Add(interval), tick)
	}
	w.reactor.Timers().Schedule(time.Now().Add(interval), tick)
}

func (w *Worker) nextClientID() uint64 { return w.nextID.Add(1) }

// Snapshot renders the current status.Snapshot for this worker, the
// payload the supervisor control bus publishes on a timer (spec §6.4).
func (w *Worker) Snapshot() status.Snapshot {
	w.clientsMu.Lock()
	clients := make([]*client.Client, 0, len(w.clients))
	for _, h := range w.clients {
		clients = append(clients, h.client)
	}
	w.clientsMu.Unlock()

	return w.statusBuilder.Build(nil, clients, time.Now())
}

func pid() int { return osGetpid() }
