// 包 api：集中注册 HTTP API 路由以解耦主入口，便于后续扩展与替换
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"imei-sim/internal/imei"
	"imei-sim/internal/logger"
	"imei-sim/internal/quota"
	"imei-sim/internal/service"
)

// Check：依赖健康探测；返回错误表示该依赖不可用
type Check func(ctx context.Context) error

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var ex *quota.ExceededError
	switch {
	case errors.Is(err, imei.ErrInvalidIdentifier):
		writeJSON(w, http.StatusBadRequest, errorResult{Error: "invalid_identifier", Message: "identifier must be 15 digits with a valid check digit"})
	case errors.Is(err, service.ErrMissingUser):
		writeJSON(w, http.StatusBadRequest, errorResult{Error: "missing_user", Message: "user id required"})
	case errors.As(err, &ex):
		secs := int64(time.Until(ex.ResetAt).Seconds())
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
		writeJSON(w, http.StatusTooManyRequests, errorResult{Error: "quota_exceeded", Message: "daily lookup quota used up", ResetAt: ex.ResetAt.UTC().Format(time.RFC3339)})
	case errors.Is(err, quota.ErrUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResult{Error: "unavailable", Message: "service temporarily unavailable"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResult{Error: "internal", Message: "internal error"})
	}
}

func getOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

// Options：路由配置
type Options struct {
	// Checks 为健康探测集合，键为依赖名（如 db、redis、osrm）
	Checks map[string]Check
	// Optional 中的依赖失败只标记 degraded
	Optional map[string]bool
	// TrustUserHeader 为真时按 X-User-ID 计量配额，否则按访问者 IP
	TrustUserHeader bool
}

// 构建并返回 API 路由：独立 ServeMux 便于在主入口挂载到 API_BASE 前缀
func BuildRoutes(t *service.Tracker, opts Options) *http.ServeMux {
	apiMux := http.NewServeMux()
	checks, optional := opts.Checks, opts.Optional
	who := func(r *http.Request) string { return userID(r, opts.TrustUserHeader) }

	// /track：每次成功查询消费一次配额。
	// 信任前提：X-User-ID 仅在 TrustUserHeader 开启（网关已鉴权并覆盖该头）时作为计量键，
	// 否则按访问者 IP 计量，客户端改写该头无法重置配额。
	apiMux.HandleFunc("/track", getOnly(func(w http.ResponseWriter, r *http.Request) {
		res, err := t.Lookup(r.Context(), r.URL.Query().Get("imei"), who(r))
		if err != nil {
			if !errors.Is(err, imei.ErrInvalidIdentifier) {
				logger.L().Debug("track_lookup_rejected", "err", err)
			}
			writeError(w, err)
			return
		}
		pts, last := toTrack(res.Track)
		writeJSON(w, http.StatusOK, trackResult{
			IMEI:     res.RedactedIdentifier,
			Day:      res.Track.Day.String(),
			Snapped:  res.Track.Snapped(),
			Points:   pts,
			LastSeen: last,
			Quota: quotaResult{
				Capacity:  t.Capacity(),
				Remaining: res.QuotaRemaining,
				ResetAt:   res.QuotaResetAt.UTC().Format(time.RFC3339),
			},
		})
	}))

	apiMux.HandleFunc("/quota", getOnly(func(w http.ResponseWriter, r *http.Request) {
		dec, err := t.Quota(r.Context(), who(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, quotaResult{
			Capacity:  t.Capacity(),
			Consumed:  dec.Consumed,
			Remaining: dec.Remaining,
			ResetAt:   dec.ResetAt.UTC().Format(time.RFC3339),
		})
	}))

	apiMux.HandleFunc("/healthz", getOnly(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := "ok"
		code := http.StatusOK
		deps := map[string]string{}
		for name, c := range checks {
			if err := c(ctx); err != nil {
				deps[name] = err.Error()
				if optional[name] {
					if status == "ok" {
						status = "degraded"
					}
					continue
				}
				status = "down"
				code = http.StatusServiceUnavailable
				continue
			}
			deps[name] = "ok"
		}
		writeJSON(w, code, map[string]any{"status": status, "deps": deps})
	}))

	return apiMux
}
