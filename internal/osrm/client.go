package osrm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"imei-sim/internal/geo"
	"imei-sim/internal/logger"
	"imei-sim/internal/metrics"
)

// DefaultBaseURL 为 OSRM 公共演示服务
const DefaultBaseURL = "https://router.project-osrm.org"

var ErrNoWaypoint = errors.New("osrm: no waypoint")

// 文档注释：OSRM nearest 响应结构
// 背景：仅解析 code 与 waypoints[].location；location 为 [lon, lat]。
// 约束：响应结构只在本包内使用，不向轨迹模型泄露。
type nearestResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Waypoints []struct {
		Location []float64 `json:"location"`
		Distance float64   `json:"distance"`
		Name     string    `json:"name"`
	} `json:"waypoints"`
}

// Client：OSRM HTTP 客户端
type Client struct {
	base    string
	profile string
	http    *http.Client
}

// 文档注释：构建客户端
// 参数：base 为服务根地址，空时使用 DefaultBaseURL；client 为空时使用 5s 超时的默认客户端。
func NewClient(base string, client *http.Client) *Client {
	if base == "" {
		base = DefaultBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Client{base: strings.TrimRight(base, "/"), profile: "driving", http: client}
}

// 文档注释：查询最近可通行道路上的点
// 参数：ctx 控制超时与取消；p 为待吸附坐标。
// 返回：吸附后的坐标；非 200、code!="Ok" 或无 waypoint 时返回错误，由上层统一降级。
func (c *Client) Nearest(ctx context.Context, p geo.Point) (geo.Point, error) {
	u := c.base + "/nearest/v1/" + c.profile + "/" +
		strconv.FormatFloat(p.Lon, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lat, 'f', 6, 64) +
		"?number=1"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return p, err
	}
	t0 := time.Now()
	metrics.OSRMRequestsTotal.Inc()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.OSRMFailTotal.Inc()
		logger.L().Debug("osrm_http_error", "err", err)
		return p, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		metrics.OSRMFailTotal.Inc()
		return p, fmt.Errorf("osrm: status %d", resp.StatusCode)
	}
	var r nearestResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		metrics.OSRMFailTotal.Inc()
		return p, fmt.Errorf("osrm: decode: %w", err)
	}
	dur := time.Since(t0).Milliseconds()
	metrics.OSRMDurationMs.Observe(float64(dur))
	if r.Code != "Ok" {
		metrics.OSRMFailTotal.Inc()
		return p, fmt.Errorf("osrm: code %s: %s", r.Code, r.Message)
	}
	if len(r.Waypoints) == 0 || len(r.Waypoints[0].Location) != 2 {
		metrics.OSRMFailTotal.Inc()
		return p, ErrNoWaypoint
	}
	loc := r.Waypoints[0].Location
	out := geo.Point{Lat: loc[1], Lon: loc[0]}
	logger.L().Debug("osrm_nearest", "distance_m", r.Waypoints[0].Distance, "duration_ms", dur)
	return out, nil
}

// 文档注释：健康检测
// 背景：对固定坐标发起一次 nearest 请求，用于启动时探测可用性；失败不阻断服务。
func (c *Client) Heartbeat(ctx context.Context) error {
	_, err := c.Nearest(ctx, geo.Point{Lat: 52.517037, Lon: 13.388860})
	return err
}
