package worker

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/stackia/rtp2httpd/internal/client"
	"github.com/stackia/rtp2httpd/internal/fcc"
	"github.com/stackia/rtp2httpd/internal/httpfront"
	"github.com/stackia/rtp2httpd/internal/service"
	"github.com/stackia/rtp2httpd/internal/zerocopy"
)

const clientQueueBytes = 8 << 20 // 8MiB per-client backlog before "slow" (spec §4.5)

// clientHandle bundles everything the worker's timers and teardown path
// need about one live connection: the Client record, its FCC engine and
// persistent unicast socket (nil when the service doesn't use FCC), and
// the goroutine-owned stop channel that ends the per-connection send loop.
type clientHandle struct {
	client *client.Client
	fcc    *fcc.Engine
	fccUC  *fccUnicast
	stop   chan struct{}
}

// httpHandler returns the net/http.Handler serving every route spec §6.1
// names. Each call runs on its own goroutine (net/http's normal model);
// only the upstream multicast fan-out touches the shared reactor.
func (w *Worker) httpHandler() http.Handler {
	return http.HandlerFunc(w.serveHTTP)
}

func (w *Worker) serveHTTP(rw http.ResponseWriter, r *http.Request) {
	if !httpfront.Authenticate(r, w.cfg.Global.Token, w.cfg.Global.Hostname) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}

	route, err := httpfront.ParseRoute(r.URL.Path, r.URL.Query(), w.cfg.Global.StatusPagePath, w.cfg.Global.PlayerPagePath)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}

	switch route.Kind {
	case httpfront.RouteStatic:
		w.serveStatic(rw, r, route)
	case httpfront.RoutePlaylist:
		w.servePlaylist(rw, r)
	case httpfront.RouteRTP, httpfront.RouteUDP:
		svc, buildErr := adHocMulticastService(route)
		if buildErr != nil {
			http.Error(rw, buildErr.Error(), http.StatusBadRequest)
			return
		}
		w.serveMulticast(rw, r, svc, route.Snapshot)
	case httpfront.RouteRTSP:
		w.serveRTSPProxy(rw, r, route)
	case httpfront.RouteHTTPProxy:
		w.serveHTTPProxy(rw, r, route)
	case httpfront.RouteNamedService:
		svc, ok := w.lookupService(route.Name)
		if !ok {
			http.NotFound(rw, r)
			return
		}
		if svc.Kind == service.KindRTSP {
			w.serveRTSPUpstream(rw, r, svc, route.Snapshot)
			return
		}
		w.serveMulticast(rw, r, svc, route.Snapshot)
	default:
		http.NotFound(rw, r)
	}
}

func (w *Worker) serveStatic(rw http.ResponseWriter, r *http.Request, route httpfront.Route) {
	switch route.Name {
	case "status":
		w.clientsMu.Lock()
		handles := make([]*client.Client, 0, len(w.clients))
		for _, h := range w.clients {
			handles = append(handles, h.client)
		}
		w.clientsMu.Unlock()

		snap := w.statusBuilder.Build(nil, handles, time.Now())
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(snap)
	case "player":
		rw.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(rw, playerPageHTML)
	default:
		http.NotFound(rw, r)
	}
}

func (w *Worker) servePlaylist(rw http.ResponseWriter, r *http.Request) {
	if w.playlist == nil {
		http.NotFound(rw, r)
		return
	}
	rw.Header().Set("Content-Type", "audio/x-mpegurl")
	_, _ = w.playlist.WriteTo(rw)
}

// adHocMulticastService builds a throwaway Service for the udpxy-compatible
// /rtp/<addr>:<port> and /udp/<addr>:<port> routes, which name their target
// directly in the path rather than through a configured service (spec
// §6.1).
func adHocMulticastService(route httpfront.Route) (*service.Service, error) {
	name := fmt.Sprintf("%s:%d", route.MulticastAddr, route.MulticastPort)
	if route.Kind == httpfront.RouteUDP {
		return service.NewMulticastUDP(name, route.MulticastAddr, route.MulticastPort), nil
	}

	variant := service.FCCUnset
	switch strings.ToLower(route.FCCType) {
	case "telecom":
		variant = service.FCCTelecom
	case "huawei":
		variant = service.FCCHuawei
	}
	return service.NewMulticastRTP(name, route.MulticastAddr, route.MulticastPort, route.FCCServer, variant, route.FECPort)
}

// serveMulticast drives the whole client lifecycle for an RTP/UDP
// multicast service: join (direct or FCC-accelerated), zero-copy send
// loop, teardown. A snapshot request never needs the zero-copy path at
// all (spec §4.6: one decoded JPEG, not a stream) and is handled entirely
// by serveSnapshot instead. http.Hijacker drops to the raw fd once stream
// headers are framed, since the data plane from here on is
// length-prefix-free raw bytes (spec §6.1: "byte stream... no chunked
// framing"); the status line and headers must be written to the
// connection's own buffered writer after Hijack, since net/http stops
// serializing anything set through ResponseWriter.Header() the moment the
// handler takes over the raw socket.
func (w *Worker) serveMulticast(rw http.ResponseWriter, r *http.Request, svc *service.Service, snapshot bool) {
	if snapshot {
		w.serveSnapshot(rw, r, svc)
		return
	}

	hj, ok := rw.(http.Hijacker)
	if !ok {
		http.Error(rw, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	conn, bufrw, err := hj.Hijack()
	if err != nil {
		w.log.Warnf("worker %d: hijack failed: %v", w.PID, err)
		return
	}
	defer conn.Close()
	if err := httpfront.WriteHijackedStreamHeaders(bufrw.Writer, false); err != nil {
		return
	}

	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		w.log.Warnf("worker %d: hijacked conn is not *net.TCPConn, falling back to buffered copy", w.PID)
		w.streamMulticastFallback(conn, svc)
		return
	}
	rawConn, err := tcpConn.SyscallConn()
	if err != nil {
		return
	}
	var fd int
	_ = rawConn.Control(func(sysfd uintptr) { fd = int(sysfd) })

	id := w.nextClientID()
	queue := zerocopy.NewQueue(clientQueueBytes)
	cl := client.New(id, w.PID, conn.RemoteAddr(), svc, queue)

	handle := &clientHandle{client: cl, stop: make(chan struct{})}
	sub := subscriber{queue: queue}
	if svc.UsesFCC() {
		engine, uc, err := w.startFCC(svc, queue)
		if err != nil {
			w.log.Warnf("worker %d: fcc start failed for client %d: %v", w.PID, id, err)
		} else {
			handle.fcc = engine
			handle.fccUC = uc
			sub.fcc = engine
			sub.closeUnicast = func() { w.closeFCC(handle.fccUC) }
		}
	}

	w.registerClient(handle)
	defer w.unregisterClient(id, svc)

	if err := w.registry.joinMulticast(svc, id, sub, w.registerFd); err != nil {
		w.log.Warnf("worker %d: joining multicast for client %d: %v", w.PID, id, err)
		return
	}
	defer w.registry.leaveMulticast(svc, id)

	if handle.fcc != nil {
		if err := handle.fcc.Start(time.Now()); err != nil {
			w.log.Warnf("worker %d: fcc start failed for client %d: %v", w.PID, id, err)
		}
	}

	w.runSendLoop(fd, cl, handle.stop)
}

// streamMulticastFallback handles the (practically unreachable in
// production, but possible under net/http/httptest) case where the
// hijacked connection isn't backed by a raw TCP fd: the zero-copy sender
// requires a raw socket fd, so this path has nothing to degrade to and
// simply declines the connection.
func (w *Worker) streamMulticastFallback(conn net.Conn, svc *service.Service) {
	w.log.Warnf("worker %d: service %s requires a raw TCP client socket for zero-copy send", w.PID, svc.Name)
}

func (w *Worker) registerClient(h *clientHandle) {
	w.clientsMu.Lock()
	w.clients[h.client.ID] = h
	w.clientsMu.Unlock()
}

func (w *Worker) unregisterClient(id uint64, svc *service.Service) {
	w.clientsMu.Lock()
	h, ok := w.clients[id]
	delete(w.clients, id)
	w.clientsMu.Unlock()
	if ok {
		if h.fcc != nil {
			_ = h.fcc.Close(time.Now())
		}
		w.closeFCC(h.fccUC)
		close(h.stop)
	}
}

// runSendLoop drives the zero-copy Sender (or its socket-write path) off
// the client's queue until the connection breaks, the client is
// tombstoned (Client.Tombstone), or stop is closed. This is
// the per-connection goroutine the resolved net/http architecture uses in
// place of registering client sockets back onto the shared reactor: each
// client's data plane is independent and gains nothing from multiplexing
// onto the single upstream-facing epoll loop.
func (w *Worker) runSendLoop(fd int, cl *client.Client, stop <-chan struct{}) {
	sender := zerocopy.NewSender(fd, cl.Queue, w.zcEnabled)
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if cl.Tombstoned() {
				return
			}
			if _, err := sender.ReapCompletions(); err != nil {
				return
			}
			before := cl.Queue.Stats()
			if sender.ShouldFlush(int(before.QueueBuffers), now) {
				if err := sender.Flush(now, false); err != nil {
					return
				}
				after := cl.Queue.Stats()
				if sent := before.QueueBytes - after.QueueBytes; sent > 0 {
					cl.RecordSent(int(sent))
				}
			}
		}
	}
}

// serveRTSPProxy resolves an ad-hoc RTSP upstream named directly in the
// path (spec §6.1's /rtsp/<host>:<port>/<path> route).
func (w *Worker) serveRTSPProxy(rw http.ResponseWriter, r *http.Request, route httpfront.Route) {
	w.serveRTSPProxyImpl(rw, r, route)
}

func (w *Worker) serveRTSPUpstream(rw http.ResponseWriter, r *http.Request, svc *service.Service, snapshot bool) {
	w.serveRTSPUpstreamImpl(rw, r, svc, snapshot)
}

// serveHTTPProxy is a plain byte-for-byte reverse proxy for the /http/
// passthrough route (spec §6.1); it intentionally bypasses the zero-copy
// path since there is no multicast fan-out to dedupe here; one upstream
// connection per client is already the correct shape.
func (w *Worker) serveHTTPProxy(rw http.ResponseWriter, r *http.Request, route httpfront.Route) {
	upstream := fmt.Sprintf("%s:%d", route.ProxyHost, route.ProxyPort)
	conn, err := net.DialTimeout("tcp", upstream, 5*time.Second)
	if err != nil {
		httpfront.WriteUpstreamError(rw, false)
		return
	}
	defer conn.Close()

	req := fmt.Sprintf("GET %s HTTP/1.0\r\nHost: %s\r\n\r\n", route.ProxyPath, route.ProxyHost)
	if _, err := io.WriteString(conn, req); err != nil {
		httpfront.WriteUpstreamError(rw, false)
		return
	}

	httpfront.WriteStreamHeaders(rw, false)
	_, _ = io.Copy(rw, conn)
}

const playerPageHTML = `<!doctype html>
<html><head><title>rtp2httpd</title></head>
<body><video controls autoplay src="playlist.m3u"></video></body></html>
`
