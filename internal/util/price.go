// Package util provides common utility functions for price calculations.
package util

import "math"

// StrikeTick is the grid strikes are quantized to before grouping.
// Feeds occasionally deliver the same strike as 100 and 100.0000001.
const StrikeTick = 0.001

// RoundToTick rounds x to the nearest tick increment.
// NaN and infinite inputs, and non-positive ticks, return x unchanged.
// Ticks that divide 1 evenly round through the integer count per unit, so
// whole and half strikes come back exactly representable.
func RoundToTick(x, tick float64) float64 {
	if tick <= 0 || math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	if perUnit := 1 / tick; perUnit == math.Trunc(perUnit) {
		return math.Round(x*perUnit) / perUnit
	}
	return math.Round(x/tick) * tick
}

// NormalizeStrike quantizes a strike to StrikeTick.
func NormalizeStrike(strike float64) float64 {
	return RoundToTick(strike, StrikeTick)
}
