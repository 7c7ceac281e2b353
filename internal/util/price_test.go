package util

import (
	"math"
	"testing"
)

func TestRoundToTick(t *testing.T) {
	tests := []struct {
		name     string
		x        float64
		tick     float64
		expected float64
	}{
		{
			name:     "basic rounding down",
			x:        1.2345,
			tick:     0.01,
			expected: 1.23,
		},
		{
			name:     "negative basic rounding",
			x:        -1.2345,
			tick:     0.01,
			expected: -1.23,
		},
		{
			name:     "larger tick size",
			x:        1.27,
			tick:     0.05,
			expected: 1.25,
		},
		{
			name:     "exact multiple",
			x:        1.25,
			tick:     0.05,
			expected: 1.25,
		},
		{
			name:     "whole strike increments",
			x:        447.6,
			tick:     1,
			expected: 448,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RoundToTick(tt.x, tt.tick)
			if math.Abs(result-tt.expected) > 1e-10 {
				t.Errorf("RoundToTick(%v, %v) = %v, expected %v", tt.x, tt.tick, result, tt.expected)
			}
		})
	}
}

func TestTickRoundingEdgeCases(t *testing.T) {
	t.Run("zero tick returns input", func(t *testing.T) {
		input := 1.2345
		if result := RoundToTick(input, 0); result != input {
			t.Errorf("RoundToTick(%v, 0) = %v, expected %v", input, result, input)
		}
	})

	t.Run("negative tick returns input", func(t *testing.T) {
		input := 1.2345
		if result := RoundToTick(input, -0.01); result != input {
			t.Errorf("RoundToTick(%v, -0.01) = %v, expected %v", input, result, input)
		}
	})

	t.Run("NaN inputs return unchanged", func(t *testing.T) {
		if result := RoundToTick(math.NaN(), 0.01); !math.IsNaN(result) {
			t.Errorf("RoundToTick(NaN, 0.01) = %v, expected NaN", result)
		}
	})

	t.Run("infinite inputs return unchanged", func(t *testing.T) {
		posInf := math.Inf(1)
		if result := RoundToTick(posInf, 0.01); result != posInf {
			t.Errorf("RoundToTick(+Inf, 0.01) = %v, expected +Inf", result)
		}
	})
}

func TestNormalizeStrike(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{100.0000001, 100},
		{99.9999999, 100},
		{42.5, 42.5},
		{447.125, 447.125},
		{0.0004, 0},
		{502.5, 502.5},
	}
	for _, tt := range tests {
		if got := NormalizeStrike(tt.in); got != tt.want {
			t.Errorf("NormalizeStrike(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeStrike_MatchesRoundToTick(t *testing.T) {
	for _, in := range []float64{100.0000001, 447.1254, 0.0006, 1234.5} {
		if got, want := NormalizeStrike(in), RoundToTick(in, StrikeTick); got != want {
			t.Errorf("NormalizeStrike(%v) = %v, RoundToTick = %v", in, got, want)
		}
	}
	if got := RoundToTick(0.9, 0.3); math.Abs(got-0.9) > 1e-10 {
		t.Errorf("RoundToTick(0.9, 0.3) = %v, expected 0.9", got)
	}
}
