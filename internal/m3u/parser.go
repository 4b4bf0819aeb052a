// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package m3u parses extended M3U playlists.
package m3u

import (
	"bufio"
	"io"
	"regexp"
	"strings"
)

// Channel represents a single entry of an extended M3U playlist.
type Channel struct {
	Number string `json:"number,omitempty"`
	Name   string `json:"name"`
	TvgID  string `json:"tvgId,omitempty"`
	Logo   string `json:"logo,omitempty"`
	Group  string `json:"group,omitempty"`
	URL    string `json:"url"`
}

var attrRe = regexp.MustCompile(`([a-zA-Z0-9-]+)="([^"]*)"`)

// Parse parses M3U content and returns a list of channels.
func Parse(content string) []Channel {
	channels, _ := ParseReader(strings.NewReader(content))
	return channels
}

// ParseReader parses M3U content from r. Entries without a URL line are dropped.
func ParseReader(r io.Reader) ([]Channel, error) {
	var (
		channels []Channel
		current  Channel
		pending  bool
	)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, "#EXTINF:"):
			current = parseExtinf(line)
			pending = true
		case strings.HasPrefix(line, "#EXTGRP:"):
			if current.Group == "" {
				current.Group = strings.TrimSpace(strings.TrimPrefix(line, "#EXTGRP:"))
			}
		case strings.HasPrefix(line, "#"):
		default:
			if !pending {
				current = Channel{}
			}
			current.URL = line
			if current.Name == "" {
				current.Name = line
			}
			channels = append(channels, current)
			current = Channel{}
			pending = false
		}
	}
	return channels, sc.Err()
}

// #EXTINF:-1 tvg-id="..." tvg-name="..." tvg-logo="..." group-title="..." tvg-chno="...",Display Name
func parseExtinf(line string) Channel {
	var ch Channel
	head := line
	// The display name follows the first comma outside quoted attributes.
	if idx := nameSeparator(line); idx != -1 {
		head = line[:idx]
		ch.Name = strings.TrimSpace(line[idx+1:])
	}
	for _, m := range attrRe.FindAllStringSubmatch(head, -1) {
		switch strings.ToLower(m[1]) {
		case "tvg-chno":
			ch.Number = m[2]
		case "tvg-id":
			ch.TvgID = m[2]
		case "tvg-logo":
			ch.Logo = m[2]
		case "group-title":
			ch.Group = m[2]
		case "tvg-name":
			if ch.Name == "" {
				ch.Name = m[2]
			}
		}
	}
	return ch
}

func nameSeparator(line string) int {
	inQuote := false
	for i, r := range line {
		switch r {
		case '"':
			inQuote = !inQuote
		case ',':
			if !inQuote {
				return i
			}
		}
	}
	return -1
}
