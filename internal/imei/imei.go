// 包 imei：设备标识校验与脱敏；纯函数，无 I/O
package imei

import (
	"errors"
	"strings"
)

const (
	// Length 为合法标识的固定长度
	Length = 15
	// PrefixLen 为脱敏后保留的前缀长度（TAC 段）
	PrefixLen = 8
	mask      = "********"
)

// ErrInvalidIdentifier：长度、字符或 Luhn 校验位不合法
var ErrInvalidIdentifier = errors.New("invalid identifier")

// 文档注释：已校验的设备标识
// 背景：仅能通过 Validate 构造，结构上分为 8 位前缀、6 位序列号与 1 位校验位。
// 约束：值类型、不可变；原文只允许在核心内部流转，对外一律使用 Redact 结果。
type Identifier struct {
	s string
}

// 文档注释：校验并规范化原始输入
// 背景：去掉首尾空白后要求恰好 15 位 ASCII 数字且通过 Luhn 校验。
// 返回：失败时统一返回 ErrInvalidIdentifier，不携带原始值。
func Validate(raw string) (Identifier, error) {
	s := strings.TrimSpace(raw)
	if len(s) != Length {
		return Identifier{}, ErrInvalidIdentifier
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return Identifier{}, ErrInvalidIdentifier
		}
	}
	if !luhnValid(s) {
		return Identifier{}, ErrInvalidIdentifier
	}
	return Identifier{s: s}, nil
}

// luhnValid：自右向左每隔一位加倍，总和模 10 为 0
func luhnValid(s string) bool {
	sum := 0
	for i := 0; i < len(s); i++ {
		d := int(s[len(s)-1-i] - '0')
		if i%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return sum%10 == 0
}

func (id Identifier) String() string { return id.s }

func (id Identifier) IsZero() bool { return id.s == "" }

func (id Identifier) Prefix() string { return id.s[:PrefixLen] }

func (id Identifier) Serial() string { return id.s[PrefixLen : Length-1] }

func (id Identifier) Check() byte { return id.s[Length-1] - '0' }

// 文档注释：脱敏输出
// 约束：前 8 位 + 固定掩码；这是唯一允许进入日志、展示与外部渲染的形式。
func Redact(id Identifier) string {
	if id.IsZero() {
		return ""
	}
	return id.Prefix() + mask
}

// RedactRaw：对未校验的原始输入做同样的掩码，供日志使用
func RedactRaw(raw string) string {
	s := strings.TrimSpace(raw)
	if len(s) <= PrefixLen {
		return mask
	}
	return s[:PrefixLen] + mask
}
