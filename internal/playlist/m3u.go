// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package playlist renders the ordered session list as an M3U playlist.
package playlist

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ManuGH/hlsrelay/internal/domain/session/model"
)

type Item struct {
	Name    string
	TvgID   string
	TvgChNo int
	TvgLogo string
	Group   string
	URL     string
}

var attrReplacer = strings.NewReplacer(`"`, "'", "\r", " ", "\n", " ")
var lineReplacer = strings.NewReplacer("\r", " ", "\n", " ")

func WriteM3U(w io.Writer, items []Item) error {
	buf := &bytes.Buffer{}
	buf.WriteString("#EXTM3U\n")
	for _, it := range items {
		fmt.Fprintf(buf,
			`#EXTINF:-1 tvg-chno="%d" tvg-id="%s" tvg-logo="%s" group-title="%s",%s`+"\n",
			it.TvgChNo,
			attrReplacer.Replace(it.TvgID),
			attrReplacer.Replace(it.TvgLogo),
			attrReplacer.Replace(it.Group),
			lineReplacer.Replace(it.Name),
		)
		buf.WriteString(lineReplacer.Replace(it.URL) + "\n")
	}
	_, err := io.Copy(w, buf)
	return err
}

// ItemsFromViews maps active sessions, in order, to playlist entries.
// Stopped and failed sessions have no live playlist and are skipped.
func ItemsFromViews(views []model.SessionView, baseURL string, group string) []Item {
	baseURL = strings.TrimRight(baseURL, "/")
	items := make([]Item, 0, len(views))
	for _, v := range views {
		if !v.Status.IsActive() {
			continue
		}
		items = append(items, Item{
			Name:    v.Name,
			TvgID:   v.ID,
			TvgChNo: len(items) + 1,
			TvgLogo: v.Logo,
			Group:   group,
			URL:     baseURL + model.PlaylistPath(v.ID),
		})
	}
	return items
}

// Render returns the playlist for views.
func Render(views []model.SessionView, baseURL, group string) []byte {
	var buf bytes.Buffer
	// Writes to a bytes.Buffer cannot fail.
	_ = WriteM3U(&buf, ItemsFromViews(views, baseURL, group))
	return buf.Bytes()
}
