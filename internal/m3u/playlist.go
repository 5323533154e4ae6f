// Package m3u implements the M3U playlist parser and rewriter that spec
// §9 lists as an external collaborator and §8 holds to a round-trip
// invariant: parse, rewrite with proxied URLs, re-parse must yield the
// same channel set, with every upstream URL converted and every external
// URL preserved verbatim.
//
// No pack example ships an M3U library, so this is a direct line-oriented
// scanner over bufio.Scanner — the same plain-text-parsing idiom the
// corpus's own config loaders use for their INI/line formats, just
// applied to M3U's directive-then-URL grammar; no ecosystem dependency
// covers this narrow a format.
package m3u

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

const headerDirective = "#EXTM3U"

// Entry is one playlist channel: the directive lines that preceded it
// (#EXTINF and any vendor extensions, preserved verbatim and in order)
// plus its URL.
type Entry struct {
	Directives []string
	URL        string
}

// Playlist is an ordered list of entries plus the optional header
// attributes line (e.g. `#EXTM3U x-tvg-url="..."`).
type Playlist struct {
	Header  string
	Entries []Entry
}

// Parse reads an M3U document. Blank lines are skipped; a leading
// #EXTM3U line (if present) is captured as the header; every other
// "#"-prefixed line is a directive attached to the next URL line.
func Parse(r io.Reader) (*Playlist, error) {
	p := &Playlist{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var pending []string
	sawHeader := false

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if !sawHeader && strings.HasPrefix(trimmed, headerDirective) {
			p.Header = trimmed
			sawHeader = true
			continue
		}

		if strings.HasPrefix(trimmed, "#") {
			pending = append(pending, trimmed)
			continue
		}

		p.Entries = append(p.Entries, Entry{Directives: pending, URL: trimmed})
		pending = nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("m3u: scan failed: %w", err)
	}

	if !sawHeader {
		p.Header = headerDirective
	}

	return p, nil
}

// RewriteFunc maps an upstream URL found in the playlist to its proxied
// equivalent. It returns ok=false for URLs that should be preserved
// verbatim (spec §8: "every external URL preserved verbatim").
type RewriteFunc func(upstreamURL string) (proxiedURL string, ok bool)

// Rewrite returns a new Playlist with every entry's URL passed through
// rewrite; entries rewrite declines are copied unchanged.
func (p *Playlist) Rewrite(rewrite RewriteFunc) *Playlist {
	out := &Playlist{Header: p.Header, Entries: make([]Entry, len(p.Entries))}
	for i, e := range p.Entries {
		newURL := e.URL
		if proxied, ok := rewrite(e.URL); ok {
			newURL = proxied
		}
		out.Entries[i] = Entry{Directives: append([]string(nil), e.Directives...), URL: newURL}
	}
	return out
}

// WriteTo serializes the playlist back to M3U text.
func (p *Playlist) WriteTo(w io.Writer) (int64, error) {
	var n int64
	write := func(s string) error {
		m, err := io.WriteString(w, s)
		n += int64(m)
		return err
	}

	if err := write(p.Header + "\n"); err != nil {
		return n, err
	}
	for _, e := range p.Entries {
		for _, d := range e.Directives {
			if err := write(d + "\n"); err != nil {
				return n, err
			}
		}
		if err := write(e.URL + "\n"); err != nil {
			return n, err
		}
	}
	return n, nil
}

// String renders the playlist to M3U text.
func (p *Playlist) String() string {
	var sb strings.Builder
	_, _ = p.WriteTo(&sb)
	return sb.String()
}
