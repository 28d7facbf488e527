// 包 quota：按用户按日的查询配额账本
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"imei-sim/internal/day"
)

// DefaultCapacity 为每用户每日可消费次数
const DefaultCapacity = 3

var (
	// ErrQuotaExceeded：当日配额已用尽；属正常业务结果
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrUnavailable：权威存储不可达，按失败关闭处理
	ErrUnavailable = errors.New("quota store unavailable")
)

// ExceededError 携带重置时刻，errors.Is(err, ErrQuotaExceeded) 为真
type ExceededError struct {
	ResetAt time.Time
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota exceeded, resets at %s", e.ResetAt.UTC().Format(time.RFC3339))
}

func (e *ExceededError) Is(target error) bool { return target == ErrQuotaExceeded }

// 文档注释：配额键
// 约束：快存储与权威存储使用同一 (UserID, Day) 键，容量语义不会分叉。
type Key struct {
	UserID string
	Day    day.Day
}

func (k Key) String() string { return "quota:user:" + k.UserID + ":" + k.Day.String() }

// 文档注释：有界计数能力（带过期）
// 背景：权威存储与快存储统一实现该能力，配额协议只依赖此接口。
// 约束：
// - IncrBounded 在一次往返内原子完成“递增后不超过 limit 才递增”；返回递增后的值与 true，
//   或当前值与 false；不允许先读后写。
// - Peek 读取当前值，不存在时 found=false。
// - Raise 将值提升为 max(当前, count)，用于镜像回填；永不降低。
// - ttl 仅对会自然过期的存储有意义，持久存储按日分区可忽略。
type Counter interface {
	IncrBounded(ctx context.Context, key Key, limit int, ttl time.Duration) (count int, ok bool, err error)
	Peek(ctx context.Context, key Key) (count int, found bool, err error)
	Raise(ctx context.Context, key Key, count int, ttl time.Duration) error
}

// Decision：放行结果
type Decision struct {
	Allowed   bool
	Consumed  int
	Remaining int
	ResetAt   time.Time
}
