package model

import (
	"fmt"
	"image"
	"strings"
)

// Area is a panel rectangle with inclusive corners, the shape the graphics
// library uses for dirty rectangles. X1/Y1 may be negative and X2/Y2 may lie
// past the panel edge until the area is clipped.
type Area struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Width is the number of columns covered (0 for an empty area).
func (a Area) Width() int {
	if a.X2 < a.X1 {
		return 0
	}
	return a.X2 - a.X1 + 1
}

// Height is the number of lines covered (0 for an empty area).
func (a Area) Height() int {
	if a.Y2 < a.Y1 {
		return 0
	}
	return a.Y2 - a.Y1 + 1
}

func (a Area) Empty() bool {
	return a.X2 < a.X1 || a.Y2 < a.Y1
}

// Size is Width*Height.
func (a Area) Size() int {
	return a.Width() * a.Height()
}

// Clip limits a to [0,w) × [0,h). The result is Empty when a does not
// overlap the panel at all.
func (a Area) Clip(w, h int) Area {
	if a.X1 < 0 {
		a.X1 = 0
	}
	if a.Y1 < 0 {
		a.Y1 = 0
	}
	if a.X2 > w-1 {
		a.X2 = w - 1
	}
	if a.Y2 > h-1 {
		a.Y2 = h - 1
	}
	return a
}

// Union returns the smallest area containing both a and b.
func (a Area) Union(b Area) Area {
	return Area{
		X1: min(a.X1, b.X1),
		Y1: min(a.Y1, b.Y1),
		X2: max(a.X2, b.X2),
		Y2: max(a.Y2, b.Y2),
	}
}

// Overlaps reports whether a and b share at least one pixel or touch on an
// edge.
func (a Area) Overlaps(b Area) bool {
	return a.X1 <= b.X2+1 && b.X1 <= a.X2+1 && a.Y1 <= b.Y2+1 && b.Y1 <= a.Y2+1
}

// Rect converts to the half-open image.Rectangle form.
func (a Area) Rect() image.Rectangle {
	return image.Rect(a.X1, a.Y1, a.X2+1, a.Y2+1)
}

// AreaFromRect converts a half-open rectangle to an inclusive Area.
func AreaFromRect(r image.Rectangle) Area {
	return Area{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X - 1, Y2: r.Max.Y - 1}
}

func (a Area) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", a.X1, a.Y1, a.X2, a.Y2)
}

// TouchSample is the last known touch reading: coordinate plus contact flag.
// A release keeps the coordinate of the last contact.
type TouchSample struct {
	X       uint16 `json:"x"`
	Y       uint16 `json:"y"`
	Contact bool   `json:"contact"`
}

// Direction is a full-refresh transition requested by the UI layer.
type Direction uint8

const (
	None Direction = iota
	Up
	Down
	Left
	Right
	LeftAnim
	RightAnim
)

var directionNames = [...]string{
	None:      "none",
	Up:        "up",
	Down:      "down",
	Left:      "left",
	Right:     "right",
	LeftAnim:  "left_anim",
	RightAnim: "right_anim",
}

func (d Direction) String() string {
	if int(d) < len(directionNames) {
		return directionNames[d]
	}
	return fmt.Sprintf("direction(%d)", uint8(d))
}

// Animated reports whether the transition is driven by the scroll
// controller's own strip loop instead of the normal flush path.
func (d Direction) Animated() bool {
	return d == Down || d == LeftAnim || d == RightAnim
}

// ParseDirection accepts the names produced by Direction.String
// (case-insensitive, "-" and "_" interchangeable).
func ParseDirection(s string) (Direction, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for i, name := range directionNames {
		if name == norm {
			return Direction(i), nil
		}
	}
	return None, fmt.Errorf("model: unknown direction %q", s)
}

// MarshalText lets directions appear by name in YAML and JSON.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}
