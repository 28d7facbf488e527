// 包 sweep：每日回收过期日分区，运行在服务进程内的后台协程
package sweep

import (
	"context"
	"time"

	"imei-sim/internal/day"
	"imei-sim/internal/logger"
	"imei-sim/internal/metrics"
	"imei-sim/internal/store"
)

// Sweeper：持久存储的按日回收能力
type Sweeper interface {
	SweepBefore(ctx context.Context, before day.Day) (store.SweepResult, error)
}

// Expirer：进程内存储的按日回收能力
type Expirer interface {
	Sweep(before time.Time) int
}

// Job：一次回收涉及的全部存储；任一字段可为空
type Job struct {
	Store     Sweeper
	Memory    []Expirer
	Retention int
	Now       func() time.Time
}

// runAfterMidnight：每日 00:00 UTC 之后的执行偏移，避开日界附近的写入高峰
const runAfterMidnight = 5 * time.Minute

// nextRunAt：计算下一次执行时刻（严格晚于 now）
func nextRunAt(now time.Time) time.Time {
	t := day.Of(now).Start().Add(runAfterMidnight)
	if !t.After(now) {
		t = day.Of(now).Next().Start().Add(runAfterMidnight)
	}
	return t
}

// cutoff：保留最近 retention 天（含今日），早于该日的分区可删除
func cutoff(now time.Time, retention int) day.Day {
	if retention < 1 {
		retention = 1
	}
	return day.Of(now).AddDays(-(retention - 1))
}

// RunOnce：执行一次回收；正确性不依赖此操作，错误仅记录
func (j Job) RunOnce(ctx context.Context) error {
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	before := cutoff(now(), j.Retention)
	for _, m := range j.Memory {
		if n := m.Sweep(before.Start()); n > 0 {
			metrics.SweepDeletedTotal.WithLabelValues("memory").Add(float64(n))
		}
	}
	if j.Store == nil {
		return nil
	}
	r, err := j.Store.SweepBefore(ctx, before)
	if err != nil {
		return err
	}
	metrics.SweepDeletedTotal.WithLabelValues("quota_usage").Add(float64(r.Quota))
	metrics.SweepDeletedTotal.WithLabelValues("track_queries").Add(float64(r.Queries))
	logger.L().Info("sweep_done", "before", before.String(), "quota", r.Quota, "queries", r.Queries)
	return nil
}

// StartDaily：每日 00:05 UTC 执行回收，ctx 取消后退出
func StartDaily(ctx context.Context, j Job) {
	l := logger.L()
	go func() {
		for {
			next := nextRunAt(time.Now())
			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			l.Info("sweep_start", "at", next)
			if err := j.RunOnce(ctx); err != nil {
				l.Error("sweep_error", "err", err)
			}
		}
	}()
}
