package api

import (
	"time"

	"imei-sim/internal/track"
)

// 文档注释：轨迹点返回结构（对外）
// 约束：字段稳定；时间统一为 RFC3339 UTC。
type pointResult struct {
	Seq     int     `json:"seq"`
	Time    string  `json:"time"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Snapped bool    `json:"snapped"`
	Label   string  `json:"label"`
}

type quotaResult struct {
	Capacity  int    `json:"capacity"`
	Consumed  int    `json:"consumed,omitempty"`
	Remaining int    `json:"remaining"`
	ResetAt   string `json:"reset_at"`
}

// 文档注释：轨迹查询返回结构（对外）
// 背景：仅包含脱敏标识；原始标识不出现在任何响应字段中。
type trackResult struct {
	IMEI     string        `json:"imei"`
	Day      string        `json:"day"`
	Snapped  bool          `json:"snapped"`
	Points   []pointResult `json:"points"`
	LastSeen pointResult   `json:"last_seen"`
	Quota    quotaResult   `json:"quota"`
}

type errorResult struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	ResetAt string `json:"reset_at,omitempty"`
}

func toPoint(p track.Point) pointResult {
	return pointResult{
		Seq:     p.Seq,
		Time:    p.Time.UTC().Format(time.RFC3339),
		Lat:     p.Coord.Lat,
		Lon:     p.Coord.Lon,
		Snapped: p.Snapped,
		Label:   p.Label,
	}
}

func toTrack(t track.Track) ([]pointResult, pointResult) {
	pts := make([]pointResult, len(t.Points))
	for i, p := range t.Points {
		pts[i] = toPoint(p)
	}
	return pts, toPoint(t.Last())
}
