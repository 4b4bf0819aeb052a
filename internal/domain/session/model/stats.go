// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "time"

// Stats is one snapshot of worker progress. A newer snapshot replaces the old one whole.
type Stats struct {
	Frame       int64   `json:"frame"`
	FPS         float64 `json:"fps"`
	BitrateKbps float64 `json:"bitrateKbps"`
	TotalSize   int64   `json:"totalSize"`
	OutTimeMs   int64   `json:"outTimeMs"`
	Speed       float64 `json:"speed"`
	DupFrames   int64   `json:"dupFrames"`
	DropFrames  int64   `json:"dropFrames"`
	Progress    string  `json:"progress,omitempty"`

	CPUPercent float64 `json:"cpuPercent"`
	RSSBytes   uint64  `json:"rssBytes"`

	UpdatedAt time.Time `json:"updatedAt"`
}
