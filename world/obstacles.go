// Package world exposes the static collision geometry of the escape
// map. The source tile data lives with the client assets; the server
// only needs axis-aligned rectangles for overlap queries.
package world

const (
	// 地图尺寸：120x120 tiles, 48px each
	MapWidth  = 5760.0
	MapHeight = 5760.0

	// TileSize is the grid step of the source collision layer.
	TileSize = 48.0
)

// Obstacle 轴对齐碰撞矩形
type Obstacle struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Overlaps reports whether a square of half-extent `half` centered at
// (cx, cy) intersects the obstacle.
func (o Obstacle) Overlaps(cx, cy, half float64) bool {
	return cx+half > o.X &&
		cx-half < o.X+o.Width &&
		cy+half > o.Y &&
		cy-half < o.Y+o.Height
}

// ObstacleSet answers collision queries against a fixed rectangle set.
type ObstacleSet struct {
	obstacles []Obstacle
}

func NewObstacleSet(obstacles []Obstacle) *ObstacleSet {
	return &ObstacleSet{obstacles: obstacles}
}

// Blocked reports whether a square of half-extent `half` centered at
// (cx, cy) hits any obstacle or leaves the map.
func (s *ObstacleSet) Blocked(cx, cy, half float64) bool {
	if cx-half < 0 || cy-half < 0 || cx+half > MapWidth || cy+half > MapHeight {
		return true
	}
	for _, o := range s.obstacles {
		if o.Overlaps(cx, cy, half) {
			return true
		}
	}
	return false
}

// InBounds reports whether a point lies on the map.
func (s *ObstacleSet) InBounds(x, y float64) bool {
	return x >= 0 && y >= 0 && x <= MapWidth && y <= MapHeight
}

func (s *ObstacleSet) Obstacles() []Obstacle {
	return s.obstacles
}

// DefaultObstacles is the building footprint layout of the escape map:
// the hardware store, police station, border checkpoints and the town
// blocks between them. Rectangles mirror the client's collision layer.
func DefaultObstacles() []Obstacle {
	return []Obstacle{
		// hardware store block
		{X: 2640, Y: 624, Width: 384, Height: 192},
		{X: 3072, Y: 624, Width: 240, Height: 336},
		// town center blocks
		{X: 1872, Y: 1488, Width: 480, Height: 288},
		{X: 2544, Y: 1968, Width: 336, Height: 432},
		{X: 3360, Y: 1728, Width: 528, Height: 240},
		// police station
		{X: 3888, Y: 4080, Width: 432, Height: 192},
		{X: 3888, Y: 4416, Width: 192, Height: 336},
		// border checkpoint walls
		{X: 480, Y: 4800, Width: 192, Height: 480},
		{X: 864, Y: 4800, Width: 192, Height: 480},
		{X: 432, Y: 1392, Width: 192, Height: 432},
		// dig site ridge
		{X: 1104, Y: 3360, Width: 432, Height: 144},
		// helicopter pad fencing
		{X: 4416, Y: 4848, Width: 144, Height: 384},
		{X: 4752, Y: 4848, Width: 144, Height: 384},
	}
}
