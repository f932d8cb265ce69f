// Package units converts byte counts to human-friendly sizes and back.
package units

import (
	"fmt"
	"math"
	"strings"
)

// Unit is a binary size unit.
type Unit string

const (
	Bytes     Unit = "bytes"
	Kilobytes Unit = "kB"
	Megabytes Unit = "MB"
	Gigabytes Unit = "GB"
	Terabytes Unit = "TB"
	Petabytes Unit = "PB"
)

// ascending order, used by Humanize to pick the smallest unit whose value
// does not exceed 1024.
var ladder = []Unit{Bytes, Kilobytes, Megabytes, Gigabytes, Terabytes, Petabytes}

var factors = map[Unit]float64{
	Bytes:     1,
	Kilobytes: 1 << 10,
	Megabytes: 1 << 20,
	Gigabytes: 1 << 30,
	Terabytes: 1 << 40,
	Petabytes: 1 << 50,
}

// Size is a value expressed in a particular unit.
type Size struct {
	Value float64 `json:"value"`
	Units Unit    `json:"units"`
}

// ParseUnit resolves a unit name case-insensitively.
func ParseUnit(name string) (Unit, error) {
	for u := range factors {
		if strings.EqualFold(string(u), name) {
			return u, nil
		}
	}
	return "", fmt.Errorf("unknown size unit %q", name)
}

// Factor returns the number of bytes in one of the given unit.
func Factor(u Unit) float64 {
	return factors[u]
}

// Humanize converts a byte count to the largest unit in which the value is
// at most 1024. Values are rounded to two decimal places; positive values
// that would round to zero are reported as 0.01.
func Humanize(bytes float64) Size {
	unit := ladder[len(ladder)-1]
	for _, u := range ladder {
		if bytes/factors[u] <= 1024 {
			unit = u
			break
		}
	}
	return Size{Value: round2(bytes / factors[unit]), Units: unit}
}

// Convert expresses a byte count in the requested unit with two-decimal
// rounding (same rounding rule as Humanize).
func Convert(bytes float64, u Unit) Size {
	return Size{Value: round2(bytes / factors[u]), Units: u}
}

// InBytes converts a Size back to bytes.
func (s Size) InBytes() float64 {
	return s.Value * factors[s.Units]
}

func round2(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 && v > 0 {
		return 0.01
	}
	return r
}
