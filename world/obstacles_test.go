package world

import "testing"

func TestObstacle_Overlaps(t *testing.T) {
	o := Obstacle{X: 100, Y: 100, Width: 48, Height: 48}

	cases := []struct {
		name     string
		cx, cy   float64
		half     float64
		expected bool
	}{
		{"center inside", 124, 124, 10, true},
		{"edge touch from left", 80, 124, 20, false},
		{"overlap from left", 85, 124, 20, true},
		{"far away", 500, 500, 20, false},
		{"corner graze", 90, 90, 12, true},
	}
	for _, c := range cases {
		if got := o.Overlaps(c.cx, c.cy, c.half); got != c.expected {
			t.Errorf("%s: Overlaps(%v, %v, %v) = %v, expected %v", c.name, c.cx, c.cy, c.half, got, c.expected)
		}
	}
}

func TestObstacleSet_Blocked(t *testing.T) {
	set := NewObstacleSet([]Obstacle{{X: 100, Y: 100, Width: 48, Height: 48}})

	if !set.Blocked(124, 124, 10) {
		t.Error("Point inside an obstacle should be blocked")
	}
	if set.Blocked(500, 500, 10) {
		t.Error("Open ground should not be blocked")
	}
}

func TestObstacleSet_MapBounds(t *testing.T) {
	set := NewObstacleSet(nil)

	if !set.Blocked(5, 100, 10) {
		t.Error("Hanging over the left edge should count as blocked")
	}
	if !set.Blocked(MapWidth-5, 100, 10) {
		t.Error("Hanging over the right edge should count as blocked")
	}
	if set.Blocked(MapWidth/2, MapHeight/2, 20) {
		t.Error("The map center should be free on an empty set")
	}
}

func TestObstacleSet_InBounds(t *testing.T) {
	set := NewObstacleSet(nil)

	if !set.InBounds(0, 0) || !set.InBounds(MapWidth, MapHeight) {
		t.Error("Map corners are in bounds")
	}
	if set.InBounds(-1, 100) || set.InBounds(100, MapHeight+1) {
		t.Error("Points beyond the edges are out of bounds")
	}
}

func TestDefaultObstacles_WithinMap(t *testing.T) {
	for i, o := range DefaultObstacles() {
		if o.X < 0 || o.Y < 0 || o.X+o.Width > MapWidth || o.Y+o.Height > MapHeight {
			t.Errorf("Obstacle %d leaves the map: %+v", i, o)
		}
		if o.Width <= 0 || o.Height <= 0 {
			t.Errorf("Obstacle %d has a degenerate size: %+v", i, o)
		}
	}
}
