package domain

import "fmt"

// Location is a block coordinate in a named world.
type Location struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Z     int    `json:"z"`
	World string `json:"world"`
}

func NewLocation(x, y, z int, world string) Location {
	return Location{X: x, Y: y, Z: z, World: world}
}

func (l Location) String() string {
	return fmt.Sprintf("%d,%d,%d,%s", l.X, l.Y, l.Z, l.World)
}

// Area is an inclusive rectangle on the X/Z plane of one world.
type Area struct {
	MinX  int    `json:"min_x"`
	MinZ  int    `json:"min_z"`
	MaxX  int    `json:"max_x"`
	MaxZ  int    `json:"max_z"`
	World string `json:"world"`
}

// Normalize swaps bounds given in the wrong order.
func (a Area) Normalize() Area {
	if a.MinX > a.MaxX {
		a.MinX, a.MaxX = a.MaxX, a.MinX
	}
	if a.MinZ > a.MaxZ {
		a.MinZ, a.MaxZ = a.MaxZ, a.MinZ
	}
	return a
}

func (a Area) Contains(l Location) bool {
	n := a.Normalize()
	return l.World == n.World &&
		l.X >= n.MinX && l.X <= n.MaxX &&
		l.Z >= n.MinZ && l.Z <= n.MaxZ
}

func locationPtr(l Location) *Location {
	return &l
}

func sameLocation(a *Location, b Location) bool {
	return a != nil && *a == b
}
