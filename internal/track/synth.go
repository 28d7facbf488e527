package track

import (
	"context"
	"time"

	"imei-sim/internal/day"
	"imei-sim/internal/geo"
	"imei-sim/internal/imei"
	"imei-sim/internal/logger"
	"imei-sim/internal/metrics"
	"imei-sim/internal/seed"
	"imei-sim/internal/snap"
)

// 基准坐标范围；经度两端预留 MaxOffset，偏移后仍在 [-180, 180] 内
const (
	baseLatMin  = -85.0
	baseLatSpan = 170.0
	baseLonMin  = -180.0 + MaxOffset
	baseLonSpan = 360.0 - 2*MaxOffset
)

// 每个点占用的时间槽（秒）；点 i 落在第 i 个槽内，保证时间严格递增
var slotSeconds = int64(24 * time.Hour / time.Second / PointsPerTrack)

// Options：合成器配置
type Options struct {
	// Labels 为空时使用 DefaultLabels
	Labels []string
	// Snapper 为空时不做道路吸附
	Snapper     snap.Adapter
	SnapTimeout time.Duration
}

// 文档注释：轨迹合成器
// 背景：Build 为纯函数，仅消费熵；Generate 在其上叠加可选的道路吸附，吸附失败静默回退。
// 约束：无共享可变状态，可跨标识、跨日并发调用。
type Synthesizer struct {
	labels      []string
	snapper     snap.Adapter
	snapTimeout time.Duration
}

func NewSynthesizer(opts Options) *Synthesizer {
	labels := opts.Labels
	if len(labels) == 0 {
		labels = DefaultLabels()
	} else {
		labels = append([]string(nil), labels...)
	}
	to := opts.SnapTimeout
	if to <= 0 {
		to = 3 * time.Second
	}
	return &Synthesizer{labels: labels, snapper: opts.Snapper, snapTimeout: to}
}

// BaseCoord：由基准熵得到标识的基准坐标，与日无关
func BaseCoord(ent seed.Entropy) geo.Point {
	s := seed.NewStream(ent.Base)
	lat := baseLatMin + s.Float()*baseLatSpan
	lon := baseLonMin + s.Float()*baseLonSpan
	return geo.Point{Lat: lat, Lon: lon}
}

// 文档注释：合成原始轨迹（不吸附）
// 背景：每个点依次消费 4 个流值：纬度偏移、经度偏移、槽内时间、标签下标。
// 约束：相同 (标识, 日, 熵) 必得逐字段相同的结果；不访问网络与时钟。
func (s *Synthesizer) Build(id imei.Identifier, d day.Day, ent seed.Entropy) Track {
	t := Track{Prefix: imei.Redact(id), Day: d, Base: BaseCoord(ent)}
	ds := seed.NewStream(ent.Daily)
	start := d.Start()
	for i := range t.Points {
		dLat := (ds.Float() - 0.5) * 2 * MaxOffset
		dLon := (ds.Float() - 0.5) * 2 * MaxOffset
		off := int64(ds.Float() * float64(slotSeconds))
		ts := start.Add(time.Duration(int64(i)*slotSeconds+off) * time.Second)
		t.Points[i] = Point{
			Seq:   i,
			Time:  ts,
			Coord: geo.Point{Lat: t.Base.Lat + dLat, Lon: t.Base.Lon + dLon},
			Label: s.labels[ds.Intn(len(s.labels))],
		}
	}
	return t
}

// 文档注释：合成轨迹并尝试道路吸附
// 背景：吸附成功时替换坐标并标记 Snapped；失败、超时或任一点偏离基准超过 MaxOffset 时保留原始坐标，不返回错误。
func (s *Synthesizer) Generate(ctx context.Context, id imei.Identifier, d day.Day, ent seed.Entropy) Track {
	t := s.Build(id, d, ent)
	if s.snapper == nil {
		return t
	}
	out, ok := snap.Apply(ctx, s.snapper, t.Coords(), s.snapTimeout)
	if !ok {
		return t
	}
	for i, p := range out {
		if !p.Within(t.Base, MaxOffset) {
			// 远离基准（如海上基准吸附到远处道路）视同吸附失败
			metrics.SnapTotal.WithLabelValues("out_of_range").Inc()
			logger.L().Debug("snap_out_of_range", "seq", i, "imei", t.Prefix)
			return t
		}
	}
	for i := range t.Points {
		t.Points[i].Coord = out[i]
		t.Points[i].Snapped = true
	}
	return t
}
