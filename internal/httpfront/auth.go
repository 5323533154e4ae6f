package httpfront

import (
	"net/http"
	"regexp"
	"strings"
)

var tokenUAPattern = regexp.MustCompile(`R2HTOKEN/(\S+)`)

// Authenticate enforces spec §6.1's token and hostname checks. token=""
// disables the token check entirely; hostname="" disables the Host
// check. Returns true when the request may proceed.
func Authenticate(r *http.Request, token, hostname string) bool {
	if hostname != "" && !hostMatches(r.Host, hostname) {
		return false
	}
	if token == "" {
		return true
	}
	return tokenFromQuery(r) == token || tokenFromCookie(r) == token || tokenFromUA(r) == token
}

func hostMatches(reqHost, configured string) bool {
	h := reqHost
	if idx := strings.IndexByte(h, ':'); idx >= 0 {
		h = h[:idx]
	}
	return strings.EqualFold(h, configured)
}

func tokenFromQuery(r *http.Request) string {
	return r.URL.Query().Get("r2h-token")
}

func tokenFromCookie(r *http.Request) string {
	c, err := r.Cookie("r2h-token")
	if err != nil {
		return ""
	}
	return c.Value
}

func tokenFromUA(r *http.Request) string {
	m := tokenUAPattern.FindStringSubmatch(r.UserAgent())
	if m == nil {
		return ""
	}
	return m[1]
}

// WantsSnapshot reports whether the request asks for the snapshot
// variant of the stream (spec §6.1: "snapshot=1... Accept: image/jpeg...
// X-Request-Snapshot: 1").
func WantsSnapshot(r *http.Request) bool {
	if r.URL.Query().Get("snapshot") == "1" {
		return true
	}
	if r.Header.Get("X-Request-Snapshot") == "1" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "image/jpeg")
}
