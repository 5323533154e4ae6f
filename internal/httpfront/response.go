package httpfront

import (
	"bufio"
	"fmt"
	"net/http"
)

// WriteStreamHeaders applies spec §6.1's response framing for a live
// stream: "Content-Type: video/mp2t for streams, Transfer-Encoding:
// identity (no chunking)". Go's net/http switches to chunked transfer
// encoding automatically unless Content-Length is set or the handler
// flushes without one and HTTP/1.0 semantics apply; to guarantee identity
// framing over HTTP/1.1 the handler must avoid http.Flusher on a
// zero-Content-Length response and instead close the connection at
// stream end, which WriteStreamHeaders signals via Connection: close.
func WriteStreamHeaders(w http.ResponseWriter, snapshot bool) {
	h := w.Header()
	if snapshot {
		h.Set("Content-Type", "image/jpeg")
	} else {
		h.Set("Content-Type", "video/mp2t")
		h.Set("Transfer-Encoding", "identity")
	}
	h.Set("Connection", "close")
}

// WriteHijackedStreamHeaders writes the literal status line and stream
// headers of spec §6.1 straight to a just-hijacked connection's buffered
// writer. Once http.Hijacker.Hijack is called, net/http no longer
// serializes anything set via ResponseWriter.Header() — the handler owns
// the entire response byte-for-byte — so this is the hijack-path
// counterpart to WriteStreamHeaders, used by serveMulticast's zero-copy
// path instead of it.
func WriteHijackedStreamHeaders(w *bufio.Writer, snapshot bool) error {
	fmt.Fprint(w, "HTTP/1.1 200 OK\r\n")
	if snapshot {
		fmt.Fprint(w, "Content-Type: image/jpeg\r\n")
	} else {
		fmt.Fprint(w, "Content-Type: video/mp2t\r\n")
		fmt.Fprint(w, "Transfer-Encoding: identity\r\n")
	}
	fmt.Fprint(w, "Connection: close\r\n\r\n")
	return w.Flush()
}

// WriteUpstreamError maps an upstream failure to the HTTP status spec §7
// calls for: "closed with an HTTP 502/504-class status if no bytes have
// yet been sent". byteSent must be checked by the caller before calling
// this, since once bytes are written the status line can no longer
// change and the caller should just close the connection instead.
func WriteUpstreamError(w http.ResponseWriter, timedOut bool) {
	if timedOut {
		http.Error(w, "upstream timeout", http.StatusGatewayTimeout)
		return
	}
	http.Error(w, "upstream unavailable", http.StatusBadGateway)
}
