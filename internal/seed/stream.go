package seed

import (
	"crypto/sha256"
	"encoding/binary"
)

const window = 4

// 文档注释：确定性伪随机流
// 背景：将摘要按 4 字节窗口切分，大端解释为 uint32 并除以 2^32 归一化到 [0,1)；
// 摘要耗尽后以 SHA-256(digest || counter) 续接新块，结果只由摘要决定。
// 约束：非并发安全；每次合成各自持有一个流。
type Stream struct {
	digest  [Size]byte
	block   [Size]byte
	off     int
	counter uint32
}

func NewStream(digest [Size]byte) *Stream {
	return &Stream{digest: digest, block: digest}
}

// Uint32：下一个窗口的原始整数
func (s *Stream) Uint32() uint32 {
	if s.off+window > len(s.block) {
		s.counter++
		var c [4]byte
		binary.BigEndian.PutUint32(c[:], s.counter)
		h := sha256.New()
		h.Write(s.digest[:])
		h.Write(c[:])
		copy(s.block[:], h.Sum(nil))
		s.off = 0
	}
	v := binary.BigEndian.Uint32(s.block[s.off : s.off+window])
	s.off += window
	return v
}

// Float：下一个 [0,1) 值
func (s *Stream) Float() float64 {
	return float64(s.Uint32()) / (1 << 32)
}

// Intn：[0,n) 的下标，n<=0 时返回 0
func (s *Stream) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	i := int(s.Float() * float64(n))
	if i >= n {
		i = n - 1
	}
	return i
}
