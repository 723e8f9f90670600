// Package level implements the impact-point level engine.
//
// Levels are a pure function of a user's accumulated impact points. The
// persisted level column is a cache; whenever points change, the value
// computed here is authoritative.
package level

import "errors"

// ErrInvalidInput is returned for negative point totals.
var ErrInvalidInput = errors.New("invalid_input")

// Level is a named tier of accumulated impact points.
type Level struct {
	Number int
	Name   string
}

type tier struct {
	number int
	name   string
	min    int
	max    int // -1 marks the unbounded top tier
}

// Boundary values belong to the higher tier: exactly 100 points is Bronze.
var tiers = []tier{
	{1, "Iniciante", 0, 99},
	{2, "Bronze", 100, 299},
	{3, "Prata", 300, 599},
	{4, "Ouro", 600, 999},
	{5, "Diamante", 1000, -1},
}

func tierFor(points int) tier {
	for _, t := range tiers {
		if t.max < 0 || points <= t.max {
			return t
		}
	}
	// Unreachable: the last tier is unbounded.
	return tiers[len(tiers)-1]
}

// For maps a non-negative point total to its level.
func For(points int) (Level, error) {
	if points < 0 {
		return Level{}, ErrInvalidInput
	}
	t := tierFor(points)
	return Level{Number: t.number, Name: t.name}, nil
}

// Progress returns the percentage [0,100] of the way through the current
// tier. The unbounded top tier always reports 100.
func Progress(points int) (int, error) {
	if points < 0 {
		return 0, ErrInvalidInput
	}
	t := tierFor(points)
	if t.max < 0 {
		return 100, nil
	}
	pct := 100 * (points - t.min) / (t.max - t.min + 1)
	if pct > 100 {
		pct = 100
	}
	return pct, nil
}

// PointsToNext returns how many points are missing to reach the next tier.
// ok is false when points already sit in the unbounded top tier.
func PointsToNext(points int) (missing int, ok bool, err error) {
	if points < 0 {
		return 0, false, ErrInvalidInput
	}
	t := tierFor(points)
	if t.max < 0 {
		return 0, false, nil
	}
	return t.max + 1 - points, true, nil
}
