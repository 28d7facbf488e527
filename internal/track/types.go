// 包 track：确定性轨迹合成与缓存
package track

import (
	"time"

	"imei-sim/internal/day"
	"imei-sim/internal/geo"
)

// PointsPerTrack 为每条轨迹的固定点数
const PointsPerTrack = 5

// MaxOffset 为每个点相对基准坐标在各轴上的最大偏移（度）
const MaxOffset = 0.3

// 文档注释：轨迹点
// 约束：Seq 为 0..4；Time 为 UTC、秒级精度；Snapped 表示坐标来自道路吸附。
type Point struct {
	Seq     int
	Time    time.Time
	Coord   geo.Point
	Snapped bool
	Label   string
}

// 文档注释：一条合成轨迹
// 背景：对应一个 (标识, 日)；Prefix 为脱敏后的标识，轨迹本身不携带原始标识。
// 约束：Points 为定长数组，按值复制，不存在共享可变状态；时间严格递增且落在 Day 内。
type Track struct {
	Prefix string
	Day    day.Day
	Base   geo.Point
	Points [PointsPerTrack]Point
}

// Coords：按顺序返回全部坐标
func (t Track) Coords() []geo.Point {
	out := make([]geo.Point, len(t.Points))
	for i, p := range t.Points {
		out[i] = p.Coord
	}
	return out
}

// Last：最后一个点（“最后出现”）
func (t Track) Last() Point { return t.Points[len(t.Points)-1] }

// Snapped：是否全部点都经过道路吸附
func (t Track) Snapped() bool {
	for _, p := range t.Points {
		if !p.Snapped {
			return false
		}
	}
	return true
}
