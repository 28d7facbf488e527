// 包 seed：由 (标识, 日, 密钥) 派生确定性的带密钥熵
package seed

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"imei-sim/internal/day"
	"imei-sim/internal/imei"
)

// Size 为摘要字节数
const Size = sha256.Size

var ErrEmptyKey = errors.New("seed: empty secret key")

// Entropy：一次合成所需的全部熵
// Base 只依赖标识，决定基准坐标；Daily 依赖标识与日，决定当日偏移、时间与标签。
type Entropy struct {
	Base  [Size]byte
	Daily [Size]byte
}

// 文档注释：种子派生器
// 背景：密钥在构造时注入并复制到私有字段，派生结果为 HMAC-SHA256，无法反推密钥。
// 约束：不提供任何读取密钥的方法；不要打印该结构体。
type Deriver struct {
	key []byte
}

func New(secret []byte) (*Deriver, error) {
	if len(secret) == 0 {
		return nil, ErrEmptyKey
	}
	k := make([]byte, len(secret))
	copy(k, secret)
	return &Deriver{key: k}, nil
}

// DailySeed：日的规范化编码
func DailySeed(d day.Day) []byte { return []byte(d.String()) }

func (dv *Deriver) mac(parts ...[]byte) [Size]byte {
	m := hmac.New(sha256.New, dv.key)
	for _, p := range parts {
		m.Write(p)
	}
	var out [Size]byte
	copy(out[:], m.Sum(nil))
	return out
}

// DeriveEntropy：HMAC(key, identifier || DailySeed(day))
func (dv *Deriver) DeriveEntropy(id imei.Identifier, d day.Day) [Size]byte {
	return dv.mac([]byte(id.String()), DailySeed(d))
}

// BaseEntropy：与日无关的基准熵，使同一标识的轨迹逐日聚集
func (dv *Deriver) BaseEntropy(id imei.Identifier) [Size]byte {
	return dv.mac([]byte("base:"), []byte(id.String()))
}

func (dv *Deriver) Derive(id imei.Identifier, d day.Day) Entropy {
	return Entropy{Base: dv.BaseEntropy(id), Daily: dv.DeriveEntropy(id, d)}
}

// 文档注释：缓存键指纹
// 背景：缓存键不得包含原始标识；使用独立域前缀的 HMAC，避免与熵摘要相同。
func (dv *Deriver) Fingerprint(id imei.Identifier, d day.Day) string {
	sum := dv.mac([]byte("cache:"), []byte(id.String()), []byte{':'}, DailySeed(d))
	return hex.EncodeToString(sum[:16])
}
