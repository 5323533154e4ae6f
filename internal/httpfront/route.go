// Package httpfront implements spec §6.1's HTTP surface: the minimal
// request parser and router for the udpxy-compatible and named-service
// stream routes, the M3U playlist endpoint, and the shared-token /
// hostname authentication gate.
//
// Grounded on nabbar-golib's httpserver (handler.go's key-to-http.Handler
// lookup, server.go's net/http.Server wiring), re-scoped from a
// general-purpose multi-pool HTTP server down to the fixed set of route
// shapes this gateway recognizes (spec §1 Non-goals: "no general-purpose
// HTTP server").
package httpfront

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/stackia/rtp2httpd/internal/service"
)

// RouteKind distinguishes the request shapes of spec §6.1's table.
type RouteKind uint8

const (
	RouteRTP RouteKind = iota
	RouteUDP
	RouteRTSP
	RouteHTTPProxy
	RouteNamedService
	RoutePlaylist
	RouteStatic
)

// Route is a parsed, not-yet-resolved request: everything the router
// extracted from the path and query before a Service is constructed.
type Route struct {
	Kind RouteKind

	// RouteRTP / RouteUDP
	MulticastAddr net.IP
	MulticastPort int
	FCCServer     string
	FCCType       string
	FECPort       int

	// RouteRTSP
	Host string
	Port int
	Path string
	Query url.Values

	// RouteHTTPProxy
	ProxyHost string
	ProxyPort int
	ProxyPath string

	// RouteNamedService / RouteStatic
	Name string

	Snapshot bool
}

// staticPaths maps configurable static UI endpoints (spec §6.1: "/player,
// /status (configurable paths)") to their route; the caller supplies the
// configured paths since they are not fixed by the spec.
type staticPaths struct {
	status string
	player string
}

// ParseRoute classifies rawPath (already percent-decoded) plus its query
// string into a Route, per spec §6.1's table. An unrecognized path that
// doesn't match any pattern and isn't a configured static path falls back
// to RouteNamedService, resolved against config/M3U by the caller.
func ParseRoute(rawPath string, query url.Values, statusPath, playerPath string) (Route, error) {
	path := strings.TrimPrefix(rawPath, "/")
	snapshot := isSnapshotRequest(query)

	switch {
	case path == strings.TrimPrefix(statusPath, "/") && statusPath != "":
		return Route{Kind: RouteStatic, Name: "status"}, nil
	case path == strings.TrimPrefix(playerPath, "/") && playerPath != "":
		return Route{Kind: RouteStatic, Name: "player"}, nil
	case path == "playlist.m3u":
		return Route{Kind: RoutePlaylist}, nil
	case strings.HasPrefix(path, "rtp/"):
		return parseMulticastRoute(RouteRTP, strings.TrimPrefix(path, "rtp/"), query, snapshot)
	case strings.HasPrefix(path, "udp/"):
		return parseMulticastRoute(RouteUDP, strings.TrimPrefix(path, "udp/"), query, snapshot)
	case strings.HasPrefix(path, "rtsp/"):
		return parseRTSPRoute(strings.TrimPrefix(path, "rtsp/"), query, snapshot)
	case strings.HasPrefix(path, "http/"):
		return parseHTTPProxyRoute(strings.TrimPrefix(path, "http/"), query, snapshot)
	case path != "":
		return Route{Kind: RouteNamedService, Name: path, Snapshot: snapshot}, nil
	default:
		return Route{}, fmt.Errorf("httpfront: empty path")
	}
}

func isSnapshotRequest(query url.Values) bool {
	return query.Get("snapshot") == "1"
}

func parseMulticastRoute(kind RouteKind, rest string, query url.Values, snapshot bool) (Route, error) {
	target := strings.SplitN(rest, "?", 2)[0]
	ip, port, err := service.ParseMulticastTarget(target)
	if err != nil {
		return Route{}, err
	}

	r := Route{Kind: kind, MulticastAddr: ip, MulticastPort: port, Snapshot: snapshot}
	r.FCCServer = query.Get("fcc")
	r.FCCType = query.Get("fcc-type")
	if fec := query.Get("fec"); fec != "" {
		if p, err := strconv.Atoi(fec); err == nil {
			r.FECPort = p
		}
	}
	return r, nil
}

func parseRTSPRoute(rest string, query url.Values, snapshot bool) (Route, error) {
	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return Route{}, fmt.Errorf("httpfront: malformed rtsp route %q", rest)
	}
	hostport := rest[:slash]
	path := rest[slash:]

	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		host, portStr = hostport, "554"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Route{}, fmt.Errorf("httpfront: invalid rtsp port %q", portStr)
	}

	return Route{Kind: RouteRTSP, Host: host, Port: port, Path: path, Query: query, Snapshot: snapshot}, nil
}

func parseHTTPProxyRoute(rest string, query url.Values, snapshot bool) (Route, error) {
	slash := strings.IndexByte(rest, '/')
	hostport := rest
	path := "/"
	if slash >= 0 {
		hostport = rest[:slash]
		path = rest[slash:]
	}

	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		host, portStr = hostport, "80"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Route{}, fmt.Errorf("httpfront: invalid http port %q", portStr)
	}

	return Route{Kind: RouteHTTPProxy, ProxyHost: host, ProxyPort: port, ProxyPath: path, Query: query, Snapshot: snapshot}, nil
}
