package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"imei-sim/internal/day"
	"imei-sim/internal/geo"
	"imei-sim/internal/track"
)

// 序列化记录：与 track 模型解耦，时间以 Unix 秒保存，避免解码后时区漂移
type pointRecord struct {
	Seq     int     `msgpack:"s"`
	Unix    int64   `msgpack:"t"`
	Lat     float64 `msgpack:"la"`
	Lon     float64 `msgpack:"lo"`
	Snapped bool    `msgpack:"sn"`
	Label   string  `msgpack:"l"`
}

type trackRecord struct {
	Prefix  string        `msgpack:"p"`
	Day     string        `msgpack:"d"`
	BaseLat float64       `msgpack:"bla"`
	BaseLon float64       `msgpack:"blo"`
	Points  []pointRecord `msgpack:"pts"`
}

func encodeTrack(t track.Track) ([]byte, error) {
	r := trackRecord{Prefix: t.Prefix, Day: t.Day.String(), BaseLat: t.Base.Lat, BaseLon: t.Base.Lon}
	for _, p := range t.Points {
		r.Points = append(r.Points, pointRecord{
			Seq: p.Seq, Unix: p.Time.Unix(), Lat: p.Coord.Lat, Lon: p.Coord.Lon, Snapped: p.Snapped, Label: p.Label,
		})
	}
	return msgpack.Marshal(&r)
}

func decodeTrack(b []byte) (track.Track, error) {
	var r trackRecord
	if err := msgpack.Unmarshal(b, &r); err != nil {
		return track.Track{}, err
	}
	if len(r.Points) != track.PointsPerTrack {
		return track.Track{}, fmt.Errorf("decode track: %d points", len(r.Points))
	}
	d, err := day.Parse(r.Day)
	if err != nil {
		return track.Track{}, err
	}
	t := track.Track{Prefix: r.Prefix, Day: d, Base: geo.Point{Lat: r.BaseLat, Lon: r.BaseLon}}
	for i, p := range r.Points {
		t.Points[i] = track.Point{
			Seq:     p.Seq,
			Time:    time.Unix(p.Unix, 0).UTC(),
			Coord:   geo.Point{Lat: p.Lat, Lon: p.Lon},
			Snapped: p.Snapped,
			Label:   p.Label,
		}
	}
	return t, nil
}

// 文档注释：Redis 轨迹缓存后端
// 背景：msgpack 编码，SET ... PX ttl；作为多实例共享的二级缓存。
// 约束：损坏的条目按未命中处理并返回错误供计数；rc 为 nil 时等同禁用。
type TrackCache struct {
	rc     *redis.Client
	prefix string
}

func NewTrackCache(rc *redis.Client) *TrackCache {
	return &TrackCache{rc: rc, prefix: "imeisim:"}
}

func (c *TrackCache) Name() string { return "redis" }

func (c *TrackCache) Load(ctx context.Context, key string) (track.Track, bool, error) {
	if c.rc == nil {
		return track.Track{}, false, errNoClient
	}
	b, err := c.rc.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return track.Track{}, false, nil
	}
	if err != nil {
		return track.Track{}, false, err
	}
	t, err := decodeTrack(b)
	if err != nil {
		return track.Track{}, false, err
	}
	return t, true, nil
}

func (c *TrackCache) Store(ctx context.Context, key string, t track.Track, ttl time.Duration) error {
	if c.rc == nil {
		return errNoClient
	}
	b, err := encodeTrack(t)
	if err != nil {
		return err
	}
	return c.rc.Set(ctx, c.prefix+key, b, ttl).Err()
}
