package api

import (
	"net/http"
	"strings"
)

// UserIDHeader：上游网关透传的用户标识
const UserIDHeader = "X-User-ID"

// 文档注释：获取访问者 IP（用于无用户标识时的配额键）
// 背景：多层代理环境下，优先常见反向代理头，最后回退远端地址。
// 约束：头部存在伪造风险，部署于未经信任的代理链路需配合网关过滤与鉴权策略。
func getVisitorIP(r *http.Request) string {
	h := r.Header
	if x := h.Get("x-forwarded-for"); x != "" {
		return strings.TrimSpace(strings.Split(x, ",")[0])
	}
	if x := h.Get("cf-connecting-ip"); x != "" {
		return x
	}
	if x := h.Get("x-real-ip"); x != "" {
		return x
	}
	if x := h.Get("x-client-ip"); x != "" {
		return x
	}
	if x := h.Get("forwarded"); x != "" {
		i := strings.Index(strings.ToLower(x), "for=")
		if i >= 0 {
			y := x[i+4:]
			if p := strings.IndexByte(y, ';'); p >= 0 {
				y = y[:p]
			}
			if p := strings.IndexByte(y, ','); p >= 0 {
				y = y[:p]
			}
			return strings.Trim(y, "\" ")
		}
	}
	host := r.RemoteAddr
	if host != "" {
		if i := strings.LastIndex(host, ":"); i > 0 {
			return strings.Trim(host[:i], "[]")
		}
		return host
	}
	return ""
}

// 文档注释：配额计量键
// 约束：X-User-ID 由客户端可任意改写，仅在 trustHeader（前置网关已鉴权并覆盖该头）时采用；
// 否则一律按访问者 IP 计量（加 ip: 前缀避免与用户标识冲突）。
func userID(r *http.Request, trustHeader bool) string {
	if trustHeader {
		if u := strings.TrimSpace(r.Header.Get(UserIDHeader)); u != "" {
			return u
		}
	}
	if ip := getVisitorIP(r); ip != "" {
		return "ip:" + ip
	}
	return ""
}
