// 包 snap：道路吸附能力接口与尽力而为的降级封装
package snap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"imei-sim/internal/geo"
	"imei-sim/internal/logger"
	"imei-sim/internal/metrics"
)

// ErrUnavailable：吸附服务不可用；仅在核心内部出现，始终由调用方降级
var ErrUnavailable = errors.New("snap unavailable")

// 文档注释：道路吸附能力
// 约束：返回序列与输入等长且一一对应；任何失败应包装 ErrUnavailable。
type Adapter interface {
	Snap(ctx context.Context, pts []geo.Point) ([]geo.Point, error)
}

// 文档注释：带超时的吸附调用
// 背景：以 timeout 约束调用；失败、超时、长度不符或坐标非法时返回原始坐标与 false，不向上传播错误。
func Apply(ctx context.Context, a Adapter, pts []geo.Point, timeout time.Duration) ([]geo.Point, bool) {
	if a == nil || len(pts) == 0 {
		return pts, false
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	out, err := a.Snap(ctx, pts)
	if err == nil {
		err = check(pts, out)
	}
	if err != nil {
		status := "fail"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			status = "timeout"
		}
		metrics.SnapTotal.WithLabelValues(status).Inc()
		logger.L().Debug("snap_fallback", "status", status, "err", err)
		return pts, false
	}
	metrics.SnapTotal.WithLabelValues("ok").Inc()
	return out, true
}

func check(in, out []geo.Point) error {
	if len(out) != len(in) {
		return fmt.Errorf("%w: got %d points, want %d", ErrUnavailable, len(out), len(in))
	}
	for _, p := range out {
		if !p.Valid() {
			return fmt.Errorf("%w: invalid coordinate", ErrUnavailable)
		}
	}
	return nil
}

// Nearest：单点吸附能力，如 OSRM nearest
type Nearest interface {
	Nearest(ctx context.Context, p geo.Point) (geo.Point, error)
}

// 文档注释：逐点吸附适配器
// 背景：将单点 nearest 调用扇出到有界工作池（errgroup.SetLimit），结果按下标汇合回原顺序。
// 约束：任一点失败即整体失败，由 Apply 回退到原始坐标；workers<=0 时按点数并发。
type PerPoint struct {
	src     Nearest
	workers int
}

func NewPerPoint(src Nearest, workers int) *PerPoint {
	return &PerPoint{src: src, workers: workers}
}

func (p *PerPoint) Snap(ctx context.Context, pts []geo.Point) ([]geo.Point, error) {
	out := make([]geo.Point, len(pts))
	g, gctx := errgroup.WithContext(ctx)
	if p.workers > 0 {
		g.SetLimit(p.workers)
	}
	for i := range pts {
		i := i
		g.Go(func() error {
			q, err := p.src.Nearest(gctx, pts[i])
			if err != nil {
				return err
			}
			out[i] = q
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return out, nil
}
