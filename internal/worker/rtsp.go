package worker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/stackia/rtp2httpd/internal/httpfront"
	"github.com/stackia/rtp2httpd/internal/ingress"
	"github.com/stackia/rtp2httpd/internal/rtsp"
	"github.com/stackia/rtp2httpd/internal/service"
)

// maxRTSPReconnectAttempts bounds how many times a lost session is
// rebuilt before the client connection is given up on (spec §4.3:
// "loss of keepalive or of media... triggers RECONNECTING").
const maxRTSPReconnectAttempts = 3

// rtspStaleAfter is how long the interleaved read loop waits for a media
// frame before treating the connection as lost; a multiple of the
// keepalive period so a single delayed OPTIONS round trip doesn't trip it.
const rtspStaleAfter = 2 * rtsp.KeepalivePeriod

// rtspRequest writes one textual RTSP 1.0 request line plus headers and
// flushes it, the request-building idiom this package grounds on
// wink-rtsp-bench's client.go.
func rtspRequest(w *bufio.Writer, method, requestURL string, cseq int, extra map[string]string) error {
	fmt.Fprintf(w, "%s %s RTSP/1.0\r\n", method, requestURL)
	fmt.Fprintf(w, "CSeq: %d\r\n", cseq)
	for k, v := range extra {
		fmt.Fprintf(w, "%s: %s\r\n", k, v)
	}
	fmt.Fprintf(w, "\r\n")
	return w.Flush()
}

// rtspResponse is the handful of header fields the engine needs back.
type rtspResponse struct {
	status  int
	session string
}

// readRTSPResponse parses one response's status line and headers,
// discarding any Content-Length body (DESCRIBE's SDP payload isn't
// needed: the upstream's advertised media format is assumed compatible,
// since rtp2httpd re-streams the MPEG-TS payload opaquely).
func readRTSPResponse(r *bufio.Reader) (rtspResponse, error) {
	var resp rtspResponse
	statusLine, err := r.ReadString('\n')
	if err != nil {
		return resp, err
	}
	parts := strings.Fields(statusLine)
	if len(parts) < 2 {
		return resp, fmt.Errorf("rtsp: malformed status line %q", statusLine)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return resp, fmt.Errorf("rtsp: malformed status code %q", parts[1])
	}
	resp.status = code

	contentLength := 0
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return resp, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "session":
			resp.session, _, _ = strings.Cut(strings.TrimSpace(v), ";")
		case "content-length":
			contentLength, _ = strconv.Atoi(strings.TrimSpace(v))
		}
	}
	if contentLength > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(contentLength)); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// rtspHandshake drives DESCRIBE/SETUP/PLAY, skipping DESCRIBE when resuming
// is true (spec §4.3: "restarts from SETUP on the same session if the
// server permits, else from DESCRIBE"). The caller must capture
// engine.ResumeFromSetup() before calling engine.OnConnected, since
// OnConnected itself transitions RECONNECTING away to CONNECTED. A SETUP
// failure against a resumed session drops it and retries once through the
// full DESCRIBE path.
func rtspHandshake(engine *rtsp.Engine, base *url.URL, br *bufio.Reader, bw *bufio.Writer, query url.Values, resuming bool) error {
	if !resuming {
		method, reqURL, cseq, err := engine.DescribeRequest(query, "rtp2httpd", time.Now())
		if err != nil {
			return err
		}
		if err := rtspRequest(bw, method, reqURL, cseq, map[string]string{"Accept": "application/sdp"}); err != nil {
			return err
		}
		resp, err := readRTSPResponse(br)
		if err != nil {
			return err
		}
		if err := engine.OnDescribeResponse(resp.status, time.Now()); err != nil {
			return err
		}
	}

	method, transportHeader, cseq := engine.SetupRequest(time.Now())
	extra := map[string]string{"Transport": transportHeader}
	if session := engine.Session(); session != "" {
		extra["Session"] = session
	}
	if err := rtspRequest(bw, method, base.String(), cseq, extra); err != nil {
		return err
	}
	resp, err := readRTSPResponse(br)
	if err != nil {
		return err
	}
	if err := engine.OnSetupResponse(resp.status, resp.session, time.Now()); err != nil {
		if resuming {
			engine.AbandonSession()
			return rtspHandshake(engine, base, br, bw, query, false)
		}
		return err
	}

	method, cseq = engine.PlayRequest(time.Now())
	if err := rtspRequest(bw, method, base.String(), cseq, map[string]string{"Session": resp.session, "Range": "npt=0.000-"}); err != nil {
		return err
	}
	resp, err = readRTSPResponse(br)
	if err != nil {
		return err
	}
	return engine.OnPlayResponse(resp.status, time.Now())
}

// rtspKeepaliveLoop sends an OPTIONS request on engine's KeepalivePeriod
// timer (spec §4.3) until stop is closed. Its replies arrive interleaved
// with media frames on the same connection and are discarded by
// copyInterleavedFrames' resync-on-stray-byte handling, so nothing reads
// them here.
func rtspKeepaliveLoop(engine *rtsp.Engine, base *url.URL, bw *bufio.Writer, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(rtsp.KeepalivePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			method, session, cseq := engine.KeepaliveRequest(now)
			extra := map[string]string{}
			if session != "" {
				extra["Session"] = session
			}
			if err := rtspRequest(bw, method, base.String(), cseq, extra); err != nil {
				return
			}
		}
	}
}

// copyInterleavedFrames strips RFC 2326 "$<channel><u16 len><payload>"
// framing and forwards only the payload bytes, since the client side of
// this gateway speaks a raw MPEG-TS byte stream, not RTSP interleaving. A
// read deadline is renewed before every frame header so a stalled
// upstream is reported as an error (media loss) rather than blocking
// forever; when acc is non-nil, payload is fed to it instead of out and
// the copy returns as soon as the snapshot accumulation completes.
func copyInterleavedFrames(conn net.Conn, br *bufio.Reader, out io.Writer, acc *ingress.Accumulator, staleAfter time.Duration) error {
	header := make([]byte, 4)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(staleAfter)); err != nil {
			return err
		}
		if _, err := io.ReadFull(br, header[:1]); err != nil {
			return err
		}
		if header[0] != '$' {
			continue // resync on stray keepalive/control bytes
		}
		if _, err := io.ReadFull(br, header[1:4]); err != nil {
			return err
		}
		length := int(header[2])<<8 | int(header[3])

		if acc != nil {
			payload := make([]byte, length)
			if _, err := io.ReadFull(br, payload); err != nil {
				return err
			}
			acc.Feed(payload)
			if acc.Completed {
				return nil
			}
			continue
		}

		if _, err := io.CopyN(out, br, int64(length)); err != nil {
			return err
		}
	}
}

// rtspTeardown best-effort sends TEARDOWN and reads its response, bounded
// by ResponseTimeout so a dead connection doesn't delay connection
// teardown (spec §4.3: "TEARDOWN is sent as the session ends").
func rtspTeardown(engine *rtsp.Engine, base *url.URL, conn net.Conn, br *bufio.Reader, bw *bufio.Writer) {
	_ = conn.SetDeadline(time.Now().Add(rtsp.ResponseTimeout))
	method, cseq := engine.TeardownRequest(time.Now())
	if err := rtspRequest(bw, method, base.String(), cseq, map[string]string{"Session": engine.Session()}); err != nil {
		return
	}
	if _, err := readRTSPResponse(br); err != nil {
		return
	}
	engine.OnTeardownResponse(time.Now())
}

// streamInterleavedRTSP drives the full session lifecycle against base:
// handshake, a keepalive timer alongside the blocking interleaved read
// loop, reconnect-with-SETUP-resume on media loss up to
// maxRTSPReconnectAttempts, and a TEARDOWN on exit. dial opens a fresh
// upstream connection, called again on every reconnect attempt.
func (w *Worker) streamInterleavedRTSP(dial func() (net.Conn, error), base *url.URL, query url.Values, out io.Writer, acc *ingress.Accumulator) error {
	engine := rtsp.NewEngine(base, rtsp.TransportInterleaved, "playseek", 0, w.log)

	conn, err := dial()
	if err != nil {
		return err
	}

	attempts := 0
	for {
		resuming := engine.ResumeFromSetup()
		engine.OnConnected(time.Now())
		br := bufio.NewReader(conn)
		bw := bufio.NewWriter(conn)

		if err := rtspHandshake(engine, base, br, bw, query, resuming); err != nil {
			conn.Close()
			return err
		}
		// The dial-time deadline only bounds the handshake; once PLAYING,
		// writes are infrequent (keepalive only) and must not inherit a
		// stale write deadline from minutes ago.
		_ = conn.SetWriteDeadline(time.Time{})

		keepaliveStop := make(chan struct{})
		keepaliveDone := make(chan struct{})
		go rtspKeepaliveLoop(engine, base, bw, keepaliveStop, keepaliveDone)

		mediaErr := copyInterleavedFrames(conn, br, out, acc, rtspStaleAfter)

		close(keepaliveStop)
		<-keepaliveDone

		if mediaErr == nil {
			rtspTeardown(engine, base, conn, br, bw)
			conn.Close()
			return nil
		}

		attempts++
		if attempts > maxRTSPReconnectAttempts {
			rtspTeardown(engine, base, conn, br, bw)
			conn.Close()
			return mediaErr
		}

		if w.log != nil {
			w.log.Warnf("worker %d: rtsp media loss on %s, reconnecting (attempt %d/%d): %v", w.PID, base.Host, attempts, maxRTSPReconnectAttempts, mediaErr)
		}
		engine.OnMediaLoss(time.Now())
		conn.Close()

		conn, err = dial()
		if err != nil {
			return err
		}
	}
}

func (w *Worker) serveRTSPUpstreamImpl(rw http.ResponseWriter, r *http.Request, svc *service.Service, snapshot bool) {
	w.dialAndStreamRTSP(rw, r, svc.RTSPURL, r.URL.Query(), snapshot)
}

func (w *Worker) serveRTSPProxyImpl(rw http.ResponseWriter, r *http.Request, route httpfront.Route) {
	u := &url.URL{Scheme: "rtsp", Host: fmt.Sprintf("%s:%d", route.Host, route.Port), Path: route.Path}
	w.dialAndStreamRTSP(rw, r, u, route.Query, route.Snapshot)
}

// dialAndStreamRTSP drives one client's RTSP request: a snapshot request
// accumulates frames off-path into an ingress.Accumulator and decodes them
// through the external JPEG encoder (spec §4.6), while a live stream
// request copies media straight to rw as it arrives.
func (w *Worker) dialAndStreamRTSP(rw http.ResponseWriter, r *http.Request, target *url.URL, query url.Values, snapshot bool) {
	dial := func() (net.Conn, error) {
		conn, err := net.DialTimeout("tcp", target.Host, rtsp.ConnectTimeout)
		if err != nil {
			return nil, err
		}
		_ = conn.SetDeadline(time.Now().Add(rtsp.ResponseTimeout))
		return conn, nil
	}

	if snapshot {
		acc := ingress.NewAccumulator(tsRandomAccess)
		if err := w.streamInterleavedRTSP(dial, target, query, io.Discard, acc); err != nil {
			w.log.Warnf("worker %d: rtsp snapshot session to %s ended: %v", w.PID, target.Host, err)
			httpfront.WriteUpstreamError(rw, false)
			return
		}
		decodeCtx, cancel := context.WithTimeout(r.Context(), ingress.DecodeTimeout)
		defer cancel()
		jpeg, err := ingress.DecodeJPEG(decodeCtx, w.cfg.Global.FFmpegPath, w.cfg.Global.FFmpegArgs, acc.Bytes(), w.log)
		if err != nil {
			w.log.Warnf("worker %d: rtsp snapshot decode for %s failed: %v", w.PID, target.Host, err)
			httpfront.WriteUpstreamError(rw, false)
			return
		}
		rw.Header().Set("Content-Type", "image/jpeg")
		rw.Header().Set("Connection", "close")
		_, _ = rw.Write(jpeg)
		return
	}

	httpfront.WriteStreamHeaders(rw, false)
	flusher, _ := rw.(http.Flusher)
	if flusher != nil {
		defer flusher.Flush()
	}

	if err := w.streamInterleavedRTSP(dial, target, query, rw, nil); err != nil {
		w.log.Warnf("worker %d: rtsp session to %s ended: %v", w.PID, target.Host, err)
	}
}
