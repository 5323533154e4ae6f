package rtsp

import (
	"fmt"
	"net/url"
	"time"

	"github.com/stackia/rtp2httpd/internal/logger"
	"github.com/stackia/rtp2httpd/internal/rerror"
)

// Deadlines from spec §5: "RTSP response 5 s, RTSP keepalive 30 s, connect
// 10 s".
const (
	ConnectTimeout  = 10 * time.Second
	ResponseTimeout = 5 * time.Second
	KeepalivePeriod = 30 * time.Second
)

// Engine drives one client's RTSP session (spec §4.3). It owns no socket
// itself: request strings are built by its methods and handed to the
// caller's transport, and responses are fed back in via the On*
// callbacks, the same separation of concerns as the fcc Engine.
type Engine struct {
	base       *url.URL
	transport  Transport
	seekParam  string
	seekOffset int

	state      State
	stateSince time.Time
	cseq       int
	session    string

	log *logger.Entry
}

// NewEngine constructs an engine for the upstream URL; seekParamName
// overrides the default "playseek" query key (spec §4.3: "a custom name
// can be specified by r2h-seek-name").
func NewEngine(base *url.URL, transport Transport, seekParamName string, seekOffsetSeconds int, log *logger.Entry) *Engine {
	if seekParamName == "" {
		seekParamName = "playseek"
	}
	return &Engine{
		base:       base,
		transport:  transport,
		seekParam:  seekParamName,
		seekOffset: seekOffsetSeconds,
		state:      StateInit,
		log:        log,
	}
}

func (e *Engine) State() State { return e.state }

func (e *Engine) setState(s State, now time.Time) {
	if e.log != nil {
		e.log.Debugf("rtsp: %s -> %s", e.state, s)
	}
	e.state = s
	e.stateSince = now
}

func (e *Engine) nextCSeq() int {
	e.cseq++
	return e.cseq
}

// OnConnected moves INIT/CONNECTING/RECONNECTING -> CONNECTED, ready to
// send DESCRIBE (or SETUP directly, on a resumed reconnect).
func (e *Engine) OnConnected(now time.Time) {
	if e.state == StateInit || e.state == StateConnecting || e.state == StateReconnecting {
		e.setState(StateConnected, now)
	}
}

// DescribeRequest builds the DESCRIBE request line and URL, with any
// requested time-shift range substituted into the query string per spec
// §4.3.
func (e *Engine) DescribeRequest(query url.Values, userAgent string, now time.Time) (method string, requestURL string, cseq int, err error) {
	u := *e.base
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}

	rewritten, present, err := Resolve(q, e.seekParam, e.seekOffset, userAgent, now)
	if err != nil {
		return "", "", 0, rerror.Wrap(rerror.CodeBadRequest, "rtsp: invalid playseek parameter", err)
	}
	if present {
		q.Set(e.seekParam, rewritten)
	}
	u.RawQuery = q.Encode()

	e.setState(StateDescribeSent, now)
	return "DESCRIBE", u.String(), e.nextCSeq(), nil
}

// OnDescribeResponse applies the server's reply status.
func (e *Engine) OnDescribeResponse(status int, now time.Time) error {
	if status < 200 || status >= 300 {
		e.setState(StateError, now)
		return rerror.Newf(rerror.CodeRTSPUpstream, "rtsp: DESCRIBE failed with status %d", status)
	}
	e.setState(StateDescribed, now)
	return nil
}

// SetupRequest builds the SETUP request's Transport header value for the
// configured transport mode.
func (e *Engine) SetupRequest(now time.Time) (method string, transportHeader string, cseq int) {
	e.setState(StateSetupSent, now)
	if e.transport == TransportUDP {
		return "SETUP", "RTP/AVP;unicast;client_port=0-1", e.nextCSeq()
	}
	return "SETUP", "RTP/AVP/TCP;interleaved=0-1", e.nextCSeq()
}

// OnSetupResponse records the session id the server assigned.
func (e *Engine) OnSetupResponse(status int, session string, now time.Time) error {
	if status < 200 || status >= 300 {
		e.setState(StateError, now)
		return rerror.Newf(rerror.CodeRTSPUpstream, "rtsp: SETUP failed with status %d", status)
	}
	e.session = session
	e.setState(StateSetup, now)
	return nil
}

func (e *Engine) PlayRequest(now time.Time) (method string, cseq int) {
	e.setState(StatePlaySent, now)
	return "PLAY", e.nextCSeq()
}

func (e *Engine) OnPlayResponse(status int, now time.Time) error {
	if status < 200 || status >= 300 {
		e.setState(StateError, now)
		return rerror.Newf(rerror.CodeRTSPUpstream, "rtsp: PLAY failed with status %d", status)
	}
	e.setState(StatePlaying, now)
	return nil
}

func (e *Engine) TeardownRequest(now time.Time) (method string, cseq int) {
	e.setState(StateTeardownSent, now)
	return "TEARDOWN", e.nextCSeq()
}

func (e *Engine) OnTeardownResponse(now time.Time) {
	e.setState(StateTeardownComplete, now)
}

// KeepaliveRequest builds an OPTIONS request carrying the held session id,
// sent on a KeepalivePeriod timer while PLAYING (spec §4.3: "keepalive is
// sent on a timer"). It does not change engine state; a failed send or a
// non-2xx reply is the caller's cue to call OnKeepaliveTimeout.
func (e *Engine) KeepaliveRequest(now time.Time) (method string, session string, cseq int) {
	return "OPTIONS", e.session, e.nextCSeq()
}

// Session exposes the held session id, so a caller reconnecting after
// keepalive/media loss can decide whether SETUP alone can resume it.
func (e *Engine) Session() string { return e.session }

// OnKeepaliveTimeout and OnMediaLoss both drive the reconnect policy of
// spec §4.3: "loss of keepalive or of media for a configurable interval
// triggers RECONNECTING, which restarts from SETUP on the same session if
// the server permits, else from DESCRIBE." Whether SETUP-resume is
// possible is discovered only when the server answers SETUP with the
// stale session id, so the engine always restarts from SETUP when it
// still holds one and falls back to DESCRIBE only if that SETUP fails.
func (e *Engine) OnKeepaliveTimeout(now time.Time) {
	e.enterReconnecting(now)
}

func (e *Engine) OnMediaLoss(now time.Time) {
	e.enterReconnecting(now)
}

func (e *Engine) enterReconnecting(now time.Time) {
	if e.log != nil {
		e.log.Warnf("rtsp: keepalive/media timeout, reconnecting (session=%s)", e.session)
	}
	e.setState(StateReconnecting, now)
}

// ResumeFromSetup reports whether a held session id lets the reconnect
// skip DESCRIBE and retry SETUP directly.
func (e *Engine) ResumeFromSetup() bool {
	return e.state == StateReconnecting && e.session != ""
}

// AbandonSession drops the held session id after a failed resume SETUP,
// forcing the next reconnect attempt through DESCRIBE.
func (e *Engine) AbandonSession() {
	e.session = ""
}

func (e *Engine) String() string {
	return fmt.Sprintf("rtsp.Engine{state=%s session=%s cseq=%d}", e.state, e.session, e.cseq)
}
