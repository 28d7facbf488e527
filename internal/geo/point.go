// 包 geo：坐标基础类型（WGS84，单位为度）
package geo

import "math"

// 点坐标（WGS84）
type Point struct {
	Lat float64
	Lon float64
}

// Valid：经纬度为有限值且在合法范围内
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Within：两轴偏差均不超过 deg
func (p Point) Within(base Point, deg float64) bool {
	return math.Abs(p.Lat-base.Lat) <= deg && math.Abs(p.Lon-base.Lon) <= deg
}
