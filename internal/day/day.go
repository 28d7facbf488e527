// 包 day：UTC 日历日，作为种子、缓存与配额的分区键
package day

import (
	"fmt"
	"time"
)

const layout = "2006-01-02"

// 文档注释：UTC 日历日
// 背景：内部保存当日 00:00 UTC；可比较、可作为 map 键。
// 约束：零值无意义，应通过 Of/Parse/Date 构造。
type Day struct {
	start time.Time
}

// Of：取时间所在的 UTC 日
func Of(t time.Time) Day {
	u := t.UTC()
	return Day{start: time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)}
}

func Date(year int, month time.Month, d int) Day {
	return Of(time.Date(year, month, d, 0, 0, 0, 0, time.UTC))
}

// Today：当前 UTC 日
func Today() Day { return Of(time.Now()) }

// Parse：解析 YYYY-MM-DD
func Parse(s string) (Day, error) {
	t, err := time.ParseInLocation(layout, s, time.UTC)
	if err != nil {
		return Day{}, fmt.Errorf("parse day %q: %w", s, err)
	}
	return Of(t), nil
}

func (d Day) IsZero() bool { return d.start.IsZero() }

// Start：当日 00:00 UTC
func (d Day) Start() time.Time { return d.start }

// Next：次日
func (d Day) Next() Day { return Day{start: d.start.AddDate(0, 0, 1)} }

// Prev：前一日
func (d Day) Prev() Day { return Day{start: d.start.AddDate(0, 0, -1)} }

// AddDays：按天偏移，n 可为负
func (d Day) AddDays(n int) Day { return Day{start: d.start.AddDate(0, 0, n)} }

// ResetAt：配额重置时刻，即次日 00:00 UTC
func (d Day) ResetAt() time.Time { return d.Next().start }

// Contains：t 是否落在 [Start, ResetAt)
func (d Day) Contains(t time.Time) bool {
	return !t.Before(d.start) && t.Before(d.ResetAt())
}

func (d Day) Before(o Day) bool { return d.start.Before(o.start) }

// UntilReset：now 到当日结束的剩余时长；now 已越过日界时返回 0
func (d Day) UntilReset(now time.Time) time.Duration {
	r := d.ResetAt().Sub(now)
	if r < 0 {
		return 0
	}
	return r
}

// String：规范化 YYYY-MM-DD 文本，跨进程与平台稳定
func (d Day) String() string { return d.start.Format(layout) }

func (d Day) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Day) UnmarshalText(b []byte) error {
	p, err := Parse(string(b))
	if err != nil {
		return err
	}
	*d = p
	return nil
}
